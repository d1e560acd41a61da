// Package fallback wraps a primary embeddings.Provider with one or more
// fallback providers, trying each in order via a per-entry circuit breaker
// so a primary that's down doesn't get hammered on every call. Built on
// internal/resilience.FallbackGroup.
package fallback

import (
	"context"

	"github.com/ethrdev/cogmem/internal/resilience"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings"
)

// Provider tries a primary embeddings.Provider first, falling back to
// additional providers in registration order when the primary fails or its
// circuit breaker is open. Dimensions and ModelID are reported from
// whichever provider registered first (the primary) — callers must ensure
// every entry shares the primary's vector space, since mixing models mid
// fan-out would corrupt similarity search.
type Provider struct {
	group   *resilience.FallbackGroup[embeddings.Provider]
	primary embeddings.Provider
}

// Config configures the circuit breaker shared by every entry in the chain.
type Config struct {
	// CircuitBreaker tunes the per-entry breaker. Zero value uses the
	// package defaults (5 consecutive failures, 30s reset, 3 half-open
	// probes).
	CircuitBreaker resilience.CircuitBreakerConfig
}

// New builds a Provider with primary as the first entry, named primaryName
// in breaker logs and metrics.
func New(primary embeddings.Provider, primaryName string, cfg Config) *Provider {
	return &Provider{
		group:   resilience.NewFallbackGroup(primary, primaryName, resilience.FallbackConfig{CircuitBreaker: cfg.CircuitBreaker}),
		primary: primary,
	}
}

// AddFallback appends a fallback provider, tried after every earlier entry
// fails or is circuit-open.
func (p *Provider) AddFallback(name string, fallback embeddings.Provider) {
	p.group.AddFallback(name, fallback)
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	return resilience.ExecuteWithResult(p.group, func(prov embeddings.Provider) ([]float32, error) {
		return prov.Embed(ctx, text)
	})
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return resilience.ExecuteWithResult(p.group, func(prov embeddings.Provider) ([][]float32, error) {
		return prov.EmbedBatch(ctx, texts)
	})
}

// Dimensions implements embeddings.Provider, reporting the primary's
// dimensionality.
func (p *Provider) Dimensions() int { return p.primary.Dimensions() }

// ModelID implements embeddings.Provider, reporting the primary's model id.
func (p *Provider) ModelID() string { return p.primary.ModelID() }

var _ embeddings.Provider = (*Provider)(nil)
