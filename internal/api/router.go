package api

import (
	"github.com/Conceptual-Machines/daytale-api/internal/api/handlers"
	apimiddleware "github.com/Conceptual-Machines/daytale-api/internal/api/middleware"
	"github.com/Conceptual-Machines/daytale-api/internal/config"
	"github.com/Conceptual-Machines/daytale-api/internal/journal"
	"github.com/Conceptual-Machines/daytale-api/internal/llm"
	"github.com/Conceptual-Machines/daytale-api/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the components shared by all routes
type Dependencies struct {
	Journal  *journal.Handler
	Provider llm.Provider
	Recorder metrics.Recorder
}

func SetupRouter(cfg *config.Config, deps Dependencies, version string) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	router.Use(apimiddleware.RequestTracking(deps.Recorder))

	// Health check
	healthHandler := handlers.NewHealthHandler(deps.Provider, cfg.PromptTemplate)
	router.GET("/health", healthHandler.HealthCheck)

	// Metrics endpoints
	metricsHandler := handlers.NewMetricsHandler(version)
	router.GET("/api/metrics", metricsHandler.GetMetrics)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Journal generation; every method is routed so the handler can answer 405
	generateHandler := handlers.NewGenerateHandler(deps.Journal)
	router.Any("/api/generate", generateHandler.Generate)

	return router
}
