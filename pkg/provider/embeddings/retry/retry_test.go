package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethrdev/cogmem/pkg/provider/embeddings"
	embeddingsmock "github.com/ethrdev/cogmem/pkg/provider/embeddings/mock"
)

func TestProvider_Defaults(t *testing.T) {
	p := New(&embeddingsmock.Provider{}, Config{})
	if p.maxAttempts != 3 {
		t.Errorf("expected default maxAttempts=3, got %d", p.maxAttempts)
	}
	if p.backoff != 1*time.Second {
		t.Errorf("expected default backoff=1s, got %v", p.backoff)
	}
}

func TestProvider_Embed_SucceedsWithoutRetry(t *testing.T) {
	inner := &embeddingsmock.Provider{EmbedResult: []float32{0.1, 0.2}}
	p := New(inner, Config{Backoff: time.Millisecond})

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("expected 2-dim vector, got %d", len(vec))
	}
	if len(inner.EmbedCalls) != 1 {
		t.Errorf("expected 1 inner call, got %d", len(inner.EmbedCalls))
	}
}

func TestProvider_Embed_NonRateLimitErrorIsNotRetried(t *testing.T) {
	inner := &embeddingsmock.Provider{EmbedErr: errors.New("malformed request")}
	p := New(inner, Config{Backoff: time.Millisecond})

	_, err := p.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(inner.EmbedCalls) != 1 {
		t.Errorf("expected exactly 1 call for a non-rate-limit error, got %d", len(inner.EmbedCalls))
	}
}

// failNTimesProvider fails its first N Embed/EmbedBatch calls with
// embeddings.ErrRateLimited, then succeeds.
type failNTimesProvider struct {
	embeddingsmock.Provider
	failTimes int
	count     atomic.Int32
}

func (p *failNTimesProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	n := p.count.Add(1)
	if int(n) <= p.failTimes {
		return nil, embeddings.ErrRateLimited
	}
	return []float32{1, 2, 3}, nil
}

func TestProvider_Embed_RetriesOnRateLimit(t *testing.T) {
	inner := &failNTimesProvider{failTimes: 2}
	p := New(inner, Config{MaxAttempts: 3, Backoff: time.Millisecond})

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected successful embedding on final attempt, got %v", vec)
	}
	if got := inner.count.Load(); got != 3 {
		t.Errorf("expected 3 attempts (2 failures + 1 success), got %d", got)
	}
}

func TestProvider_Embed_ExhaustsRetriesAndReturnsError(t *testing.T) {
	inner := &failNTimesProvider{failTimes: 10}
	p := New(inner, Config{MaxAttempts: 3, Backoff: time.Millisecond})

	_, err := p.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, embeddings.ErrRateLimited) {
		t.Errorf("expected wrapped ErrRateLimited, got %v", err)
	}
	if got := inner.count.Load(); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
}

func TestProvider_Embed_StopsOnContextCancel(t *testing.T) {
	inner := &failNTimesProvider{failTimes: 10}
	p := New(inner, Config{MaxAttempts: 5, Backoff: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Embed(ctx, "hello")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestProvider_EmbedBatch_RetriesOnRateLimit(t *testing.T) {
	inner := &failNTimesBatchProvider{failTimes: 1}
	p := New(inner, Config{MaxAttempts: 3, Backoff: time.Millisecond})

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Errorf("expected 2 vectors, got %d", len(vecs))
	}
}

type failNTimesBatchProvider struct {
	embeddingsmock.Provider
	failTimes int
	count     atomic.Int32
}

func (p *failNTimesBatchProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	n := p.count.Add(1)
	if int(n) <= p.failTimes {
		return nil, embeddings.ErrRateLimited
	}
	return make([][]float32, len(texts)), nil
}

func TestProvider_DimensionsAndModelIDPassthrough(t *testing.T) {
	inner := &embeddingsmock.Provider{DimensionsValue: 1536, ModelIDValue: "text-embedding-3-small"}
	p := New(inner, Config{})

	if p.Dimensions() != 1536 {
		t.Errorf("expected passthrough dimensions 1536, got %d", p.Dimensions())
	}
	if p.ModelID() != "text-embedding-3-small" {
		t.Errorf("expected passthrough model id, got %s", p.ModelID())
	}
}
