package di

import (
	"time"

	"gorm.io/gorm"

	"github.com/libohan-ha/BaiHe-sub001/ai"
	"github.com/libohan-ha/BaiHe-sub001/internal/service"
	"github.com/libohan-ha/BaiHe-sub001/internal/ws"
	"github.com/libohan-ha/BaiHe-sub001/pkg/jwt"
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
	"github.com/libohan-ha/BaiHe-sub001/shared/redis"
)

// Container holds all the dependencies for the application
type Container struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *logger.Logger
	JWTService     *jwt.Service
	UserService    *service.UserService
	PersonaService *service.PersonaService
	MessageService *service.MessageService
	AIClient       *ai.Client
	Hub            *ws.Hub
	Orchestrator   *ws.Orchestrator
}

// Config holds the configuration for the container
type Config struct {
	LoggerConfig   logger.Config
	JWTSecret      string
	JWTExpiryHours int
	Orchestrator   ws.Options
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		LoggerConfig:   logger.DefaultConfig(),
		JWTSecret:      "",
		JWTExpiryHours: 0, // Use default
		Orchestrator:   ws.OptionsFromConfig(),
	}
}

// New creates a new dependency injection container
func New(db *gorm.DB, rdb *redis.Client, config *Config) (*Container, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Initialize the logger
	log := logger.New(config.LoggerConfig)

	// Initialize JWT service
	jwtService := jwt.NewService(config.JWTSecret, time.Duration(config.JWTExpiryHours)*time.Hour)

	// Initialize core services
	userService := service.NewUserService(db, jwtService)
	personaService := service.NewPersonaService(db)
	messageService := service.NewMessageService(db, rdb)

	// Initialize the streaming completion client
	aiClient := ai.NewClient()

	// Initialize the hub and the orchestrator that feeds it
	hub := ws.NewHub(log)
	orchestrator := ws.NewOrchestrator(hub, messageService, personaService, aiClient, config.Orchestrator, log)

	return &Container{
		DB:             db,
		Redis:          rdb,
		Logger:         log,
		JWTService:     jwtService,
		UserService:    userService,
		PersonaService: personaService,
		MessageService: messageService,
		AIClient:       aiClient,
		Hub:            hub,
		Orchestrator:   orchestrator,
	}, nil
}
