package nuance_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethrdev/cogmem/internal/nuance"
	"github.com/ethrdev/cogmem/internal/store/postgres"
)

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("COGMEM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COGMEM_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestPool(t *testing.T) *postgres.Pool {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	clean, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := clean.Exec(ctx, "DROP TABLE IF EXISTS nuance_reviews CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	clean.Close()

	pool, err := postgres.Open(ctx, postgres.Config{DSN: dsn, EmbeddingDims: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestFlagAndResolveDissonance_Lifecycle(t *testing.T) {
	pool := newTestPool(t)
	engine := nuance.New(pool)
	ctx := context.Background()

	review, err := engine.FlagDissonance(ctx, "proj-a", []string{"edge-1", "edge-2"})
	if err != nil {
		t.Fatalf("flag dissonance: %v", err)
	}
	if review.Status != nuance.StatusPendingReview {
		t.Fatalf("expected status PENDING_REVIEW, got %q", review.Status)
	}

	pending, err := engine.GetPendingNuanceEdgeIDs(ctx, "proj-a")
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending edge ids, got %v", pending)
	}

	resolved, err := engine.ResolveDissonance(ctx, "proj-a", review.ID, "edge-1 superseded edge-2")
	if err != nil {
		t.Fatalf("resolve dissonance: %v", err)
	}
	if resolved.Status != nuance.StatusResolved {
		t.Errorf("expected status RESOLVED, got %q", resolved.Status)
	}

	pending, err = engine.GetPendingNuanceEdgeIDs(ctx, "proj-a")
	if err != nil {
		t.Fatalf("get pending after resolve: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending edges after resolution, got %v", pending)
	}
}

func TestResolveDissonance_MissingReviewNotFound(t *testing.T) {
	pool := newTestPool(t)
	engine := nuance.New(pool)
	ctx := context.Background()

	if _, err := engine.ResolveDissonance(ctx, "proj-a", 999999, "resolution"); err == nil {
		t.Error("expected not-found error for missing review")
	}
}

func TestCountResolved(t *testing.T) {
	pool := newTestPool(t)
	engine := nuance.New(pool)
	ctx := context.Background()

	count, err := engine.CountResolved(ctx, "proj-a")
	if err != nil {
		t.Fatalf("count resolved (empty): %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 resolved reviews initially, got %d", count)
	}

	r1, err := engine.FlagDissonance(ctx, "proj-a", []string{"edge-1"})
	if err != nil {
		t.Fatalf("flag dissonance: %v", err)
	}
	r2, err := engine.FlagDissonance(ctx, "proj-a", []string{"edge-2"})
	if err != nil {
		t.Fatalf("flag dissonance: %v", err)
	}

	if _, err := engine.ResolveDissonance(ctx, "proj-a", r1.ID, "resolved r1"); err != nil {
		t.Fatalf("resolve r1: %v", err)
	}

	count, err = engine.CountResolved(ctx, "proj-a")
	if err != nil {
		t.Fatalf("count resolved: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 resolved review with one still pending, got %d", count)
	}

	if _, err := engine.ResolveDissonance(ctx, "proj-a", r2.ID, "resolved r2"); err != nil {
		t.Fatalf("resolve r2: %v", err)
	}
	count, err = engine.CountResolved(ctx, "proj-a")
	if err != nil {
		t.Fatalf("count resolved: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 resolved reviews, got %d", count)
	}

	otherCount, err := engine.CountResolved(ctx, "proj-b")
	if err != nil {
		t.Fatalf("count resolved other project: %v", err)
	}
	if otherCount != 0 {
		t.Errorf("expected project isolation, got %d resolved reviews for proj-b", otherCount)
	}
}

func TestResolveDissonance_AlreadyResolvedNotFound(t *testing.T) {
	pool := newTestPool(t)
	engine := nuance.New(pool)
	ctx := context.Background()

	review, err := engine.FlagDissonance(ctx, "proj-a", []string{"edge-1"})
	if err != nil {
		t.Fatalf("flag dissonance: %v", err)
	}
	if _, err := engine.ResolveDissonance(ctx, "proj-a", review.ID, "first resolution"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := engine.ResolveDissonance(ctx, "proj-a", review.ID, "second resolution"); err == nil {
		t.Error("expected not-found error resolving an already-resolved review")
	}
}
