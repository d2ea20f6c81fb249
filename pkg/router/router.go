package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/libohan-ha/BaiHe-sub001/internal/api"
	"github.com/libohan-ha/BaiHe-sub001/internal/ws"
	"github.com/libohan-ha/BaiHe-sub001/pkg/config"
	"github.com/libohan-ha/BaiHe-sub001/pkg/di"
	"github.com/libohan-ha/BaiHe-sub001/pkg/errors"
	"github.com/libohan-ha/BaiHe-sub001/pkg/health"
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
	"github.com/libohan-ha/BaiHe-sub001/pkg/middleware"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Hub       *ws.Hub
	Health    *health.Checker
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	// Use the container's logger
	logger.SetGlobal(container.Logger)

	cfg := config.Get()

	// Configure Gin mode based on environment
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Use the logger middleware first to capture all requests
	engine.Use(logger.Middleware(container.Logger))

	// Add custom error handler middleware
	engine.Use(errors.ErrorHandler())

	// Add custom recovery middleware with structured logging instead of default
	engine.Use(errors.RecoveryWithLogger())

	// Create rate limiter with default options
	rateLimiter := middleware.NewRateLimiter(container.Logger)

	// Apply rate limiting to all routes
	engine.Use(rateLimiter.Middleware())

	// Background health checks for the critical dependencies
	checker := health.NewChecker(container.Logger, 30*time.Second)
	if db, err := container.DB.DB(); err == nil {
		checker.RegisterDatabaseCheck(db.Ping)
	}
	checker.RegisterCheck("hub", false, func() (health.Status, string, error) {
		return health.StatusUp, fmt.Sprintf("%d participants online", container.Hub.Presence().Count()), nil
	})
	checker.Start()

	// Start the hub loop
	go container.Hub.Run()

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Hub:       container.Hub,
		Health:    checker,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	// Add CORS middleware
	r.Engine.Use(corsMiddleware())

	// Create JWT auth middleware
	jwtAuth := middleware.JWTAuthMiddleware(r.Container.JWTService, r.Logger)

	authHandler := api.NewAuthHandler(r.Container.UserService, r.Logger)
	personaHandler := api.NewPersonaHandler(r.Container.PersonaService, r.Logger)
	messageHandler := api.NewMessageHandler(r.Container.MessageService, r.Logger)

	// API version 1 routes
	v1 := r.Engine.Group("/api/v1")

	// Public routes (no auth required)
	publicRoutes := v1.Group("/")
	{
		// Health check endpoint
		publicRoutes.GET("/health", r.Health.Handler())

		// Auth routes
		authRoutes := publicRoutes.Group("/auth")
		{
			authRoutes.POST("/signup", authHandler.Signup)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.GET("/me", jwtAuth, authHandler.Me)
		}
	}

	// Protected routes (require authentication)
	protectedRoutes := v1.Group("/")
	protectedRoutes.Use(jwtAuth)
	{
		personaRoutes := protectedRoutes.Group("/personas")
		{
			personaRoutes.POST("", personaHandler.Create)
			personaRoutes.GET("", personaHandler.List)
			personaRoutes.GET("/:id", personaHandler.Get)
		}

		messageRoutes := protectedRoutes.Group("/messages")
		{
			messageRoutes.GET("", messageHandler.Recent)
		}
	}

	// WebSocket route. Token auth happens inside the handshake so that
	// browser clients can pass the token as a query parameter.
	r.Engine.GET("/ws/chat", func(c *gin.Context) {
		ws.ServeWs(r.Hub, r.Container.Orchestrator, r.Container.JWTService, r.Container.UserService, c)
	})
}

// Enhance CORS middleware to explicitly allow WebSocket-specific headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, X-CSRF-Token, Authorization, Origin, Upgrade, Connection, Cache-Control")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
