package main

import (
	"log"

	"github.com/cpp-cyber/dirauth/internal/api/handlers"
	"github.com/cpp-cyber/dirauth/internal/api/routes"
	"github.com/cpp-cyber/dirauth/internal/directory"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Config holds all application configuration
type Config struct {
	Port          string `envconfig:"PORT" default:":8080"`
	SessionSecret string `envconfig:"SESSION_SECRET" default:"default-secret-key"`
}

// init the environment
func init() {
	_ = godotenv.Load()
}

func main() {
	gin.SetMode(gin.ReleaseMode)

	// Load and parse configuration from environment variables
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("Failed to process environment configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	directoryConfig, err := directory.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load directory configuration", zap.Error(err))
	}

	service := directory.NewService(directoryConfig, logger)
	defer service.Close()

	r := gin.Default()

	// Setup session middleware
	store := cookie.NewStore([]byte(config.SessionSecret))
	r.Use(sessions.Sessions("session", store))

	routes.RegisterRoutes(r,
		handlers.NewAuthHandler(service, logger),
		handlers.NewDirectoryHandler(service, logger),
	)

	if err := r.Run(config.Port); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
