package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/libohan-ha/BaiHe-sub001/internal/models"
	"github.com/libohan-ha/BaiHe-sub001/internal/service"
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
	"github.com/libohan-ha/BaiHe-sub001/pkg/middleware"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	users  *service.UserService
	logger *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users *service.UserService, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{users: users, logger: logger}
}

// Signup handles user registration
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("error binding JSON for signup", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	user, token, err := h.users.CreateUser(&req)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "A user with this email already exists"})
			return
		}
		h.logger.Error("error creating user", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user account"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Login handles user authentication
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("error binding JSON for login", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	user, token, err := h.users.Login(&req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		h.logger.Error("error during login", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred during login"})
		return
	}

	h.logger.Info("user logged in", "userID", user.ID, "email", user.Email)

	c.JSON(http.StatusOK, gin.H{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Me returns the current authenticated user
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	user, err := h.users.GetUserByID(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user.ToResponse()})
}
