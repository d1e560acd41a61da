// Package retry wraps an embeddings.Provider with bounded exponential
// backoff, retrying only the rate-limit/transient failure variant the
// wrapped provider tags with embeddings.ErrRateLimited: a fixed attempt
// count with doubling, capped backoff between a single blocking call's
// retries (not a background monitor loop).
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethrdev/cogmem/internal/observe"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings"
)

// Default retry parameters: up to 3 attempts, waiting 1s and then 2s
// between them.
const (
	defaultMaxAttempts = 3
	defaultBackoff     = 1 * time.Second
)

// Provider wraps an embeddings.Provider, retrying Embed/EmbedBatch calls
// that fail with embeddings.ErrRateLimited.
type Provider struct {
	inner       embeddings.Provider
	maxAttempts int
	backoff     time.Duration
	metrics     *observe.Metrics
}

// Config configures a [Provider].
type Config struct {
	// MaxAttempts caps the number of attempts per call, including the
	// first. Defaults to 3 if zero.
	MaxAttempts int

	// Backoff is the initial wait between attempts; doubles each retry
	// (1s then 2s for the default 3 attempts). Defaults to 1s if zero.
	Backoff time.Duration

	// Metrics records provider request/error counts. Defaults to
	// observe.DefaultMetrics() if nil.
	Metrics *observe.Metrics
}

// New wraps inner with retry behavior.
func New(inner embeddings.Provider, cfg Config) *Provider {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Provider{inner: inner, maxAttempts: maxAttempts, backoff: backoff, metrics: metrics}
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	var (
		vec []float32
		err error
	)
	retryErr := p.do(ctx, "embed", func() error {
		vec, err = p.inner.Embed(ctx, text)
		return err
	})
	if retryErr != nil {
		return nil, retryErr
	}
	return vec, nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var (
		vecs [][]float32
		err  error
	)
	retryErr := p.do(ctx, "embed_batch", func() error {
		vecs, err = p.inner.EmbedBatch(ctx, texts)
		return err
	})
	if retryErr != nil {
		return nil, retryErr
	}
	return vecs, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.inner.Dimensions() }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.inner.ModelID() }

// do runs call up to maxAttempts times, retrying only when call's error is
// (or wraps) embeddings.ErrRateLimited, with exponential backoff between
// attempts. Every attempt is recorded against the embeddings provider
// metrics, so dashboards see retried calls as multiple requests.
func (p *Provider) do(ctx context.Context, kind string, call func() error) error {
	currentBackoff := p.backoff

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			p.metrics.RecordProviderRequest(ctx, "embeddings", kind, "success")
			return nil
		}
		if !errors.Is(lastErr, embeddings.ErrRateLimited) {
			p.metrics.RecordProviderRequest(ctx, "embeddings", kind, "error")
			p.metrics.RecordProviderError(ctx, "embeddings", kind)
			return lastErr
		}
		p.metrics.RecordProviderRequest(ctx, "embeddings", kind, "rate_limited")
		if attempt == p.maxAttempts {
			break
		}

		slog.Warn("embedding call rate limited, retrying",
			"attempt", attempt,
			"max_attempts", p.maxAttempts,
			"backoff", currentBackoff,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(currentBackoff):
		}
		currentBackoff *= 2
	}
	p.metrics.RecordProviderError(ctx, "embeddings", kind)
	return fmt.Errorf("embeddings: exhausted %d attempts: %w", p.maxAttempts, lastErr)
}

var _ embeddings.Provider = (*Provider)(nil)
