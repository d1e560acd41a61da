// Command cogmemd is the main entry point for the cognitive memory MCP
// server. It speaks MCP over stdio, logs only to stderr, and exposes the
// tool and resource surface defined in internal/toolserver and
// internal/resources.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ethrdev/cogmem/internal/config"
	"github.com/ethrdev/cogmem/internal/constitutive"
	"github.com/ethrdev/cogmem/internal/episode"
	"github.com/ethrdev/cogmem/internal/graph"
	"github.com/ethrdev/cogmem/internal/ief"
	"github.com/ethrdev/cogmem/internal/insight"
	"github.com/ethrdev/cogmem/internal/nuance"
	"github.com/ethrdev/cogmem/internal/observe"
	"github.com/ethrdev/cogmem/internal/rawdialogue"
	"github.com/ethrdev/cogmem/internal/resources"
	"github.com/ethrdev/cogmem/internal/retrieval"
	"github.com/ethrdev/cogmem/internal/store/postgres"
	"github.com/ethrdev/cogmem/internal/tenancy"
	"github.com/ethrdev/cogmem/internal/toolserver"
	"github.com/ethrdev/cogmem/internal/watchdog"
	"github.com/ethrdev/cogmem/internal/workingmem"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings/fallback"
	embeddingsmock "github.com/ethrdev/cogmem/pkg/provider/embeddings/mock"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings/ollama"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings/openai"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings/retry"
)

// serverName and serverVersion identify this build in the MCP handshake.
const (
	serverName    = "cogmem"
	serverVersion = "0.1.0"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cogmemd: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    serverName,
		ServiceVersion: serverVersion,
	})
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	pool, err := postgres.Open(ctx, postgres.Config{
		DSN:                cfg.DatabaseURL,
		EmbeddingDims:      cfg.EmbeddingDimensions,
		StatementTimeoutMS: int(cfg.DBStatementTimeout / time.Millisecond),
		MaxConns:           int32(cfg.DBMaxConns),
	})
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		return 1
	}
	defer pool.Close()

	embedder := buildEmbeddingsProvider(cfg, metrics)

	graphStore := graph.New(pool)
	guard := constitutive.New(pool, graphStore)
	insightStore := insight.New(pool.Raw(), embedder)
	episodeStore := episode.New(pool.Raw(), embedder)
	workingMemStore := workingmem.New(pool, cfg.WorkingMemoryCapacity)
	nuanceEngine := nuance.New(pool)
	shadowAudit := tenancy.NewSlogShadowAudit(logger)
	retrievalEngine := retrieval.NewEngine(insightStore, episodeStore, graphStore, embedder, shadowAudit, cfg.RRFK)
	iefEngine := ief.NewEngine(ief.NoopRecalibration{})
	rawDialogueStore := rawdialogue.New(pool)

	srv := toolserver.NewServer(serverName, serverVersion, toolserver.Deps{
		Graph:        graphStore,
		Constitutive: guard,
		Insights:     insightStore,
		Episodes:     episodeStore,
		WorkingMem:   workingMemStore,
		Nuance:       nuanceEngine,
		Retrieval:    retrievalEngine,
		IEF:          iefEngine,
		Metrics:      metrics,
	})

	resources.Register(srv.MCPServer(), resources.Deps{
		Insights:    insightStore,
		Episodes:    episodeStore,
		WorkingMem:  workingMemStore,
		RawDialogue: rawDialogueStore,
		Embeddings:  embedder,
	})

	var wd *watchdog.Watchdog
	if cfg.WatchdogEnabled {
		wd = watchdog.New(watchdog.Config{Logger: logger})
		wd.Start(ctx)
		defer wd.Stop()
	}

	slog.Info("cogmemd ready", "environment", cfg.Environment, "watchdog", cfg.WatchdogEnabled)

	metrics.ActiveSessions.Add(ctx, 1)
	defer metrics.ActiveSessions.Add(context.Background(), -1)

	if err := srv.MCPServer().Run(ctx, mcp.NewStdioTransport()); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "error", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// buildEmbeddingsProvider constructs the configured embeddings provider,
// wrapped with bounded retry on rate-limit errors (spec §5). Falls back to
// a mock provider when no API key is configured, so embedding-independent
// tools (graph, working-memory, nuance) still function in that mode; the
// embedding-dependent tools surface apperr.EmbeddingFailed at call time.
//
// When COGMEM_EMBEDDING_FALLBACK_MODEL is set, the retry-wrapped primary is
// further wrapped in a fallback.Provider backed by a local Ollama model: if
// a primary call fails, or the primary's circuit breaker is open, embedding
// calls fail over to Ollama instead of surfacing apperr.EmbeddingFailed
// immediately.
func buildEmbeddingsProvider(cfg *config.Config, metrics *observe.Metrics) embeddings.Provider {
	if !cfg.EmbeddingsConfigured() {
		notConfigured := errors.New("embeddings provider not configured: no embedding API key set")
		return &embeddingsmock.Provider{DimensionsValue: cfg.EmbeddingDimensions, EmbedErr: notConfigured, EmbedBatchErr: notConfigured}
	}

	primary, err := openai.New(cfg.EmbeddingAPIKey, "")
	if err != nil {
		slog.Warn("failed to construct embeddings provider, falling back to mock", "error", err)
		return &embeddingsmock.Provider{DimensionsValue: cfg.EmbeddingDimensions, EmbedErr: err, EmbedBatchErr: err}
	}
	provider := embeddings.Provider(retry.New(primary, retry.Config{Metrics: metrics}))

	if cfg.EmbeddingFallbackConfigured() {
		fallbackProvider, err := ollama.New(cfg.EmbeddingFallbackBaseURL, cfg.EmbeddingFallbackModel, ollama.WithDimensions(cfg.EmbeddingDimensions))
		if err != nil {
			slog.Warn("failed to construct fallback embeddings provider, continuing without it", "error", err)
			return provider
		}
		chain := fallback.New(provider, "openai", fallback.Config{})
		chain.AddFallback("ollama:"+cfg.EmbeddingFallbackModel, fallbackProvider)
		provider = chain
	}

	return provider
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
