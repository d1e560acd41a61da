// Package config loads and validates cogmemd's runtime configuration from
// environment variables.
package config

import "time"

// LogLevel is a validated logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether lvl is one of the recognised log levels.
func (lvl LogLevel) IsValid() bool {
	switch lvl {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, "":
		return true
	default:
		return false
	}
}

// Environment distinguishes deployment environments.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvProduction, "":
		return true
	default:
		return false
	}
}

// notConfiguredPlaceholder is the sentinel embedding API key value that is
// treated as "not configured" per the embedding contract (spec §6).
const notConfiguredPlaceholder = "not-configured"

// Config is the fully validated runtime configuration for cogmemd.
type Config struct {
	// DatabaseURL is the Postgres DSN. Required.
	DatabaseURL string

	// EmbeddingAPIKey authenticates the configured embeddings provider.
	// A value equal to the "not configured" placeholder, or an empty
	// string, disables embedding-dependent tools.
	EmbeddingAPIKey string

	// Environment is the deployment environment.
	Environment Environment

	// LogLevel is the minimum logged severity.
	LogLevel LogLevel

	// WatchdogEnabled turns on the 30s liveness heartbeat.
	WatchdogEnabled bool

	// FidelityThreshold is loaded and validated from the environment but
	// is not passed to the insight store: Compress applies its own fixed
	// threshold (0.6) when deciding whether to attach a fidelity_warning.
	FidelityThreshold float64

	// RRFK is the Reciprocal Rank Fusion constant (spec §4.G), normally 60.
	RRFK int

	// EmbeddingDimensions is the fixed vector width D.
	EmbeddingDimensions int

	// WorkingMemoryCapacity is the bounded working-memory buffer size C.
	WorkingMemoryCapacity int

	// DBMaxConns caps the Postgres connection pool size.
	DBMaxConns int

	// DBStatementTimeout bounds pathfinding and other long-running queries.
	DBStatementTimeout time.Duration

	// EmbeddingFallbackModel, when non-empty, enables a local Ollama
	// embeddings provider as a fallback behind the primary: if a primary
	// call fails, or the primary's circuit breaker is open, embedding calls
	// fall over to this model on EmbeddingFallbackBaseURL instead of
	// failing outright.
	EmbeddingFallbackModel string

	// EmbeddingFallbackBaseURL is the Ollama server URL used for the
	// fallback provider. Defaults to ollama.DefaultBaseURL when empty.
	EmbeddingFallbackBaseURL string
}

// EmbeddingFallbackConfigured reports whether a fallback embeddings
// provider should be constructed alongside the primary.
func (c *Config) EmbeddingFallbackConfigured() bool {
	return c.EmbeddingFallbackModel != ""
}

// EmbeddingsConfigured reports whether an embedding provider can be used.
func (c *Config) EmbeddingsConfigured() bool {
	return c.EmbeddingAPIKey != "" && c.EmbeddingAPIKey != notConfiguredPlaceholder
}
