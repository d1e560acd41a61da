// Package rawdialogue provides read access to the L0 tier of the memory
// hierarchy: unprocessed dialogue turns recorded before any compression or
// working-memory promotion. Spec §6's memory://l0-raw resource is the only
// consumer — this package has no write path of its own since raw dialogue
// ingestion sits upstream of this service (spec §1 scope). Grounded on
// internal/episode's pool-backed read pattern and the raw_dialogue DDL in
// internal/store/postgres/schema.go.
package rawdialogue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ethrdev/cogmem/internal/store/postgres"
)

// Turn is a single recorded utterance.
type Turn struct {
	ID        int64
	SessionID string
	Speaker   string
	Content   string
	CreatedAt time.Time
}

// Store provides read-only access to raw_dialogue.
type Store struct {
	pool *postgres.Pool
}

// New builds a Store.
func New(pool *postgres.Pool) *Store {
	return &Store{pool: pool}
}

// List returns raw dialogue turns for project, optionally restricted to a
// session and/or a [from, to] creation-time window, most recent first.
// Either bound of the date range may be zero to leave that side open.
func (s *Store) List(ctx context.Context, project, sessionID string, from, to time.Time, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, session_id, speaker, content, created_at
		FROM raw_dialogue
		WHERE project_id = $1
		  AND ($2 = '' OR session_id = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at <= $4)
		ORDER BY created_at DESC
		LIMIT $5`

	var fromArg, toArg *time.Time
	if !from.IsZero() {
		fromArg = &from
	}
	if !to.IsZero() {
		toArg = &to
	}

	var turns []Turn
	err := s.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, q, project, sessionID, fromArg, toArg, limit)
		if err != nil {
			return err
		}
		collected, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
			var t Turn
			scanErr := row.Scan(&t.ID, &t.SessionID, &t.Speaker, &t.Content, &t.CreatedAt)
			return t, scanErr
		})
		if err != nil {
			return err
		}
		turns = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rawdialogue: list: %w", err)
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}
