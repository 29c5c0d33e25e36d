// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Port               string
	DataDir            string
	AreasFile          string
	CORSAllowedOrigins []string
	LogLevel           string
	LogFormat          string

	// Resampling.
	Workers   int
	ChunkSize int

	// Resampler cache.
	CacheSize int
	CacheTTL  time.Duration

	// MaxRequestPoints caps the inline source or target size of one request.
	MaxRequestPoints int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	workers, err := intFromEnv("RESAMPLE_WORKERS", runtime.GOMAXPROCS(0))
	if err != nil {
		return nil, err
	}
	chunkSize, err := intFromEnv("RESAMPLE_CHUNK_SIZE", 4096)
	if err != nil {
		return nil, err
	}
	cacheSize, err := intFromEnv("RESAMPLER_CACHE_SIZE", 64)
	if err != nil {
		return nil, err
	}
	maxPoints, err := intFromEnv("MAX_REQUEST_POINTS", 4_000_000)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := time.ParseDuration(envOrDefault("RESAMPLER_CACHE_TTL", "30m"))
	if err != nil || cacheTTL <= 0 {
		return nil, errors.New("invalid RESAMPLER_CACHE_TTL")
	}

	cfg := &Config{
		Port:               envOrDefault("PORT", "8080"),
		DataDir:            envOrDefault("DATA_DIR", "./data"),
		AreasFile:          os.Getenv("AREAS_FILE"),
		CORSAllowedOrigins: parseList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "text"),
		Workers:            workers,
		ChunkSize:          chunkSize,
		CacheSize:          cacheSize,
		CacheTTL:           cacheTTL,
		MaxRequestPoints:   maxPoints,
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT %q", cfg.Port)
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
