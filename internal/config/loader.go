package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables and returns a
// validated [Config]. Unset optional variables take the documented
// defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:              os.Getenv("COGMEM_DATABASE_URL"),
		EmbeddingAPIKey:          os.Getenv("COGMEM_EMBEDDING_API_KEY"),
		EmbeddingFallbackModel:   os.Getenv("COGMEM_EMBEDDING_FALLBACK_MODEL"),
		EmbeddingFallbackBaseURL: os.Getenv("COGMEM_EMBEDDING_FALLBACK_BASE_URL"),
		Environment:              Environment(getOr("COGMEM_ENVIRONMENT", string(EnvDevelopment))),
		LogLevel:                 LogLevel(getOr("COGMEM_LOG_LEVEL", string(LogLevelInfo))),
		FidelityThreshold:        0.7,
		RRFK:                     60,
		EmbeddingDimensions:      1536,
		WorkingMemoryCapacity:    10,
		DBMaxConns:               10,
		DBStatementTimeout:       time.Second,
	}

	var err error
	if cfg.WatchdogEnabled, err = getBool("COGMEM_WATCHDOG_ENABLED", false); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.FidelityThreshold, err = getFloat("COGMEM_FIDELITY_THRESHOLD", cfg.FidelityThreshold); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.RRFK, err = getInt("COGMEM_RRF_K", cfg.RRFK); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.EmbeddingDimensions, err = getInt("COGMEM_EMBEDDING_DIMENSIONS", cfg.EmbeddingDimensions); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.WorkingMemoryCapacity, err = getInt("COGMEM_WORKING_MEMORY_CAPACITY", cfg.WorkingMemoryCapacity); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.DBMaxConns, err = getInt("COGMEM_DB_MAX_CONNS", cfg.DBMaxConns); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if ms, err := getInt("COGMEM_DB_STATEMENT_TIMEOUT_MS", int(cfg.DBStatementTimeout/time.Millisecond)); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	} else {
		cfg.DBStatementTimeout = time.Duration(ms) * time.Millisecond
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s=%q is not a valid bool", key, v)
	}
	return b, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s=%q is not a valid int", key, v)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s=%q is not a valid float", key, v)
	}
	return f, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found. Non-fatal concerns are
// logged via slog.Warn rather than rejected.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		errs = append(errs, errors.New("COGMEM_DATABASE_URL is required"))
	}
	if !cfg.Environment.IsValid() {
		errs = append(errs, fmt.Errorf("COGMEM_ENVIRONMENT %q is invalid; valid values: development, production", cfg.Environment))
	}
	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("COGMEM_LOG_LEVEL %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("COGMEM_EMBEDDING_DIMENSIONS must be positive, got %d", cfg.EmbeddingDimensions))
	}
	if cfg.WorkingMemoryCapacity <= 0 {
		errs = append(errs, fmt.Errorf("COGMEM_WORKING_MEMORY_CAPACITY must be positive, got %d", cfg.WorkingMemoryCapacity))
	}
	if cfg.RRFK <= 0 {
		errs = append(errs, fmt.Errorf("COGMEM_RRF_K must be positive, got %d", cfg.RRFK))
	}
	if cfg.FidelityThreshold < 0 || cfg.FidelityThreshold > 1 {
		errs = append(errs, fmt.Errorf("COGMEM_FIDELITY_THRESHOLD %.2f is out of range [0,1]", cfg.FidelityThreshold))
	}
	if cfg.DBMaxConns <= 0 {
		errs = append(errs, fmt.Errorf("COGMEM_DB_MAX_CONNS must be positive, got %d", cfg.DBMaxConns))
	}

	if !cfg.EmbeddingsConfigured() {
		slog.Warn("no embedding API key configured; embedding-dependent tools will return Embedding failed errors")
	}
	if cfg.Environment == EnvProduction && cfg.LogLevel == LogLevelDebug {
		slog.Warn("debug logging enabled in production environment")
	}

	return errors.Join(errs...)
}
