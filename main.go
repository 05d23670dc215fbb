package main

import (
	"context"
	"log"

	"github.com/Conceptual-Machines/daytale-api/internal/api"
	"github.com/Conceptual-Machines/daytale-api/internal/app"
	"github.com/Conceptual-Machines/daytale-api/internal/config"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

// GetVersion returns the current release version
func GetVersion() string {
	return releaseVersion
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	app.InitSentry(cfg, releaseVersion)

	a, err := app.Build(context.Background(), cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to initialize:", err)
	}
	defer a.Close()

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.SetupRouter(cfg, api.Dependencies{
		Journal:  a.Journal,
		Provider: a.Provider,
		Recorder: a.Recorder,
	}, GetVersion())

	log.Printf("🚀 Starting server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to start server:", err)
	}
}
