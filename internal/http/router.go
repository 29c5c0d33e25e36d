package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.ngs.io/resampler/internal/usecase"
)

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	// AllowedOrigins for CORS. Empty allows all origins.
	AllowedOrigins []string
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// SetupRouter creates and configures the Gin router.
func SetupRouter(resampleUC *usecase.ResampleUseCase, cfg RouterConfig) *gin.Engine {

	router := gin.Default()

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}

	router.Use(cors.New(corsConfig))

	// Create handler.
	handler := NewHandler(resampleUC)

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.POST("/resample", handler.Resample)
	v1.GET("/areas", handler.ListAreas)

	// Health check.
	router.GET("/health", handler.HealthCheck)

	// Metrics.
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}
