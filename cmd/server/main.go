// Package main provides the resampling HTTP server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"go.ngs.io/resampler/internal/adapter/store/areas"
	"go.ngs.io/resampler/internal/adapter/store/csv"
	"go.ngs.io/resampler/internal/adapter/store/ncfile"
	"go.ngs.io/resampler/internal/config"
	httpHandler "go.ngs.io/resampler/internal/http"
	"go.ngs.io/resampler/internal/lazy"
	"go.ngs.io/resampler/internal/observability"
	"go.ngs.io/resampler/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("nnresample-server version %s\n", version)
		return
	}

	// A missing .env file is fine; the environment alone is enough.
	_ = godotenv.Load()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting resampling server...")
	logger.Info("configuration",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"workers", cfg.Workers,
		"chunk_size", cfg.ChunkSize,
		"cache_size", cfg.CacheSize,
		"cache_ttl", cfg.CacheTTL)

	// Initialize stores.
	loaders := usecase.Loaders{
		NetCDF: ncfile.NewStore(cfg.DataDir),
		CSV:    csv.NewPointStore(cfg.DataDir),
	}

	// Initialize area registry (optional).
	var registry *areas.Registry
	if cfg.AreasFile != "" {
		registry, err = areas.LoadFile(cfg.AreasFile)
		if err != nil {
			logger.Error("failed to load areas", "path", cfg.AreasFile, "error", err)
			os.Exit(1)
		}
		logger.Info("area registry loaded", "path", cfg.AreasFile, "areas", registry.Len())
	} else {
		logger.Info("area registry disabled (AREAS_FILE not set)")
	}

	scheduler := lazy.NewScheduler(cfg.Workers)
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer, func() float64 {
		return float64(scheduler.Evaluated())
	})

	// Initialize use case.
	resampleUC := usecase.NewResampleUseCase(loaders, registry, usecase.Options{
		Scheduler: scheduler,
		ChunkSize: cfg.ChunkSize,
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
		MaxPoints: cfg.MaxRequestPoints,
		Metrics:   metrics,
		Logger:    logger,
	})

	// Setup router.
	router := httpHandler.SetupRouter(resampleUC, httpHandler.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// Start server.
	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info("server listening", "addr", addr)
	logger.Info("health check", "url", fmt.Sprintf("http://localhost:%s/health", cfg.Port))
	logger.Info("API endpoints", "routes", []string{"POST /v1/resample", "GET /v1/areas", "GET /metrics"})

	if err := router.Run(addr); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("Resampling Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  nnresample-server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES (also read from .env):")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  DATA_DIR                NetCDF/CSV dataset directory (default: ./data)")
	fmt.Println("  AREAS_FILE              TOML file of target area definitions (optional)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println("  LOG_LEVEL               debug, info, warn or error (default: info)")
	fmt.Println("  LOG_FORMAT              text or json (default: text)")
	fmt.Println("  RESAMPLE_WORKERS        Parallel chunk evaluations (default: number of CPUs)")
	fmt.Println("  RESAMPLE_CHUNK_SIZE     Samples per chunk (default: 4096)")
	fmt.Println("  RESAMPLER_CACHE_SIZE    Cached source/target resamplers (default: 64)")
	fmt.Println("  RESAMPLER_CACHE_TTL     Lifetime of a cached resampler (default: 30m)")
	fmt.Println("  MAX_REQUEST_POINTS      Largest inline geometry accepted (default: 4000000)")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start server with default settings")
	fmt.Println("  nnresample-server")
	fmt.Println()
	fmt.Println("  # Start server with an area registry on a custom port")
	fmt.Println("  PORT=3000 AREAS_FILE=./areas.toml nnresample-server")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET  /health                   Health check")
	fmt.Println("  GET  /metrics                  Prometheus metrics")
	fmt.Println("  GET  /v1/areas                 List target areas")
	fmt.Println("  POST /v1/resample              Nearest neighbour resampling")
	fmt.Println()
}
