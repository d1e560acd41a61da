package rawdialogue_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethrdev/cogmem/internal/rawdialogue"
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
	if _, err := clean.Exec(ctx, "DROP TABLE IF EXISTS raw_dialogue CASCADE"); err != nil {
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

func insertTurn(t *testing.T, pool *postgres.Pool, project, session, speaker, content string, createdAt time.Time) {
	t.Helper()
	_, err := pool.Raw().Exec(context.Background(),
		`INSERT INTO raw_dialogue (project_id, session_id, speaker, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		project, session, speaker, content, createdAt)
	if err != nil {
		t.Fatalf("insert turn: %v", err)
	}
}

func TestList_FiltersBySession(t *testing.T) {
	pool := newTestPool(t)
	store := rawdialogue.New(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	insertTurn(t, pool, "proj-a", "sess-1", "user", "hello from session 1", now)
	insertTurn(t, pool, "proj-a", "sess-2", "user", "hello from session 2", now)

	turns, err := store.List(ctx, "proj-a", "sess-1", time.Time{}, time.Time{}, 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn for sess-1, got %d", len(turns))
	}
	if turns[0].SessionID != "sess-1" {
		t.Errorf("expected sess-1, got %q", turns[0].SessionID)
	}
}

func TestList_EmptySessionIDReturnsAllSessions(t *testing.T) {
	pool := newTestPool(t)
	store := rawdialogue.New(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	insertTurn(t, pool, "proj-a", "sess-1", "user", "a", now)
	insertTurn(t, pool, "proj-a", "sess-2", "user", "b", now)

	turns, err := store.List(ctx, "proj-a", "", time.Time{}, time.Time{}, 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 2 {
		t.Errorf("expected 2 turns across sessions, got %d", len(turns))
	}
}

func TestList_FiltersByDateRange(t *testing.T) {
	pool := newTestPool(t)
	store := rawdialogue.New(pool)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	insertTurn(t, pool, "proj-a", "sess-1", "user", "old", base)
	insertTurn(t, pool, "proj-a", "sess-1", "user", "middle", base.AddDate(0, 0, 5))
	insertTurn(t, pool, "proj-a", "sess-1", "user", "recent", base.AddDate(0, 0, 10))

	turns, err := store.List(ctx, "proj-a", "", base.AddDate(0, 0, 2), base.AddDate(0, 0, 8), 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn within range, got %d", len(turns))
	}
	if turns[0].Content != "middle" {
		t.Errorf("expected %q, got %q", "middle", turns[0].Content)
	}
}

func TestList_RespectsLimitAndProjectIsolation(t *testing.T) {
	pool := newTestPool(t)
	store := rawdialogue.New(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		insertTurn(t, pool, "proj-a", "sess-1", "user", "turn", now)
	}
	insertTurn(t, pool, "proj-b", "sess-1", "user", "other project", now)

	turns, err := store.List(ctx, "proj-a", "", time.Time{}, time.Time{}, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 3 {
		t.Errorf("expected limit of 3, got %d", len(turns))
	}

	otherTurns, err := store.List(ctx, "proj-b", "", time.Time{}, time.Time{}, 50)
	if err != nil {
		t.Fatalf("list other project: %v", err)
	}
	if len(otherTurns) != 1 {
		t.Errorf("expected project isolation, got %d turns for proj-b", len(otherTurns))
	}
}
