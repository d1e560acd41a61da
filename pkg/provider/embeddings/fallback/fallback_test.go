package fallback_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethrdev/cogmem/internal/resilience"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings/fallback"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings/mock"
)

var errPrimaryDown = errors.New("primary down")

func TestProvider_UsesPrimaryWhenHealthy(t *testing.T) {
	primary := &mock.Provider{EmbedResult: []float32{1, 2, 3}, DimensionsValue: 3, ModelIDValue: "primary"}
	fb := &mock.Provider{EmbedResult: []float32{9, 9, 9}, DimensionsValue: 3, ModelIDValue: "fallback"}

	p := fallback.New(primary, "primary", fallback.Config{})
	p.AddFallback("fallback", fb)

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 1 {
		t.Errorf("Embed() = %v, want primary's result", vec)
	}
	if len(fb.EmbedCalls) != 0 {
		t.Errorf("fallback was called %d times, want 0", len(fb.EmbedCalls))
	}
	if p.Dimensions() != 3 {
		t.Errorf("Dimensions() = %d, want 3", p.Dimensions())
	}
	if p.ModelID() != "primary" {
		t.Errorf("ModelID() = %q, want %q", p.ModelID(), "primary")
	}
}

func TestProvider_FallsOverWhenPrimaryFails(t *testing.T) {
	primary := &mock.Provider{EmbedErr: errPrimaryDown}
	fb := &mock.Provider{EmbedResult: []float32{9, 9, 9}}

	p := fallback.New(primary, "primary", fallback.Config{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 1},
	})
	p.AddFallback("fallback", fb)

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 9 {
		t.Errorf("Embed() = %v, want fallback's result", vec)
	}
}

func TestProvider_EmbedBatchFallsOver(t *testing.T) {
	primary := &mock.Provider{EmbedBatchErr: errPrimaryDown}
	fb := &mock.Provider{EmbedBatchResult: [][]float32{{1, 1}, {2, 2}}}

	p := fallback.New(primary, "primary", fallback.Config{})
	p.AddFallback("fallback", fb)

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 {
		t.Errorf("EmbedBatch() = %v, want fallback's result", vecs)
	}
}

func TestProvider_AllFailedReturnsError(t *testing.T) {
	primary := &mock.Provider{EmbedErr: errPrimaryDown}
	fb := &mock.Provider{EmbedErr: errPrimaryDown}

	p := fallback.New(primary, "primary", fallback.Config{})
	p.AddFallback("fallback", fb)

	_, err := p.Embed(context.Background(), "hello")
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("Embed() error = %v, want resilience.ErrAllFailed", err)
	}
}
