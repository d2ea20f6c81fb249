package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/libohan-ha/BaiHe-sub001/internal/models"
	"github.com/libohan-ha/BaiHe-sub001/internal/service"
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
	"github.com/libohan-ha/BaiHe-sub001/pkg/middleware"
)

// PersonaHandler handles AI persona management requests
type PersonaHandler struct {
	personas *service.PersonaService
	logger   *logger.Logger
}

// NewPersonaHandler creates a new persona handler
func NewPersonaHandler(personas *service.PersonaService, logger *logger.Logger) *PersonaHandler {
	return &PersonaHandler{personas: personas, logger: logger}
}

// Create registers a new persona owned by the authenticated user
func (h *PersonaHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.CreatePersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("error binding JSON for persona create", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	persona, err := h.personas.CreatePersona(userID, &req)
	if err != nil {
		h.logger.Error("error creating persona", "error", err.Error(), "ownerID", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create persona"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"persona": persona})
}

// List returns the personas owned by the authenticated user
func (h *PersonaHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	personas, err := h.personas.ListPersonas(userID)
	if err != nil {
		h.logger.Error("error listing personas", "error", err.Error(), "ownerID", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list personas"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"personas": personas})
}

// Get returns a single persona owned by the authenticated user
func (h *PersonaHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid persona ID"})
		return
	}

	persona, err := h.personas.GetPersona(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrPersonaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Persona not found"})
			return
		}
		h.logger.Error("error fetching persona", "error", err.Error(), "personaID", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch persona"})
		return
	}

	// Personas are private to their owner; do not leak existence.
	if persona.OwnerID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Persona not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"persona": persona})
}
