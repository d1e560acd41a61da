// Package workingmem implements the bounded working-memory buffer: insert
// with capacity-triggered LRU-among-non-critical eviction, forced eviction
// when every item is critical, archival to stale memory, and idempotent
// delete. Grounded on spec §4.E and
// original_source/tests/test_working_memory.py for eviction-order
// assertions.
package workingmem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ethrdev/cogmem/internal/apperr"
	"github.com/ethrdev/cogmem/internal/store/postgres"
)

// criticalThreshold is the importance above which an item is exempt from
// LRU eviction (spec §4.E: "LRU-among-non-critical eviction (importance ≤
// 0.8)").
const criticalThreshold = 0.8

// Item is a single working-memory entry.
type Item struct {
	ID         string
	Content    string
	Importance float64
	CreatedAt  time.Time
	AccessedAt time.Time
}

// Store manages the working-memory buffer for a fixed capacity.
type Store struct {
	pool     *postgres.Pool
	capacity int
}

// New builds a Store with the given buffer capacity (spec §4.E default 10).
func New(pool *postgres.Pool, capacity int) *Store {
	if capacity <= 0 {
		capacity = 10
	}
	return &Store{pool: pool, capacity: capacity}
}

// AddResult reports what happened to the buffer as a side effect of Add.
type AddResult struct {
	AddedID    string
	EvictedID  string
	ArchivedID string
}

// Add inserts a new item, capacity-enforced. When the buffer is already at
// capacity, the oldest non-critical item is evicted and archived to stale
// memory before the insert; if every item is critical, the oldest item is
// force-evicted regardless of importance.
func (s *Store) Add(ctx context.Context, project, content string, importance float64) (AddResult, error) {
	if importance < 0 || importance > 1 {
		return AddResult{}, apperr.Validationf("importance must be in [0, 1], got %v", importance)
	}

	var result AddResult
	err := s.pool.WithConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM working_memory WHERE project_id = $1`, project).Scan(&count); err != nil {
			return fmt.Errorf("count working memory: %w", err)
		}

		if count >= s.capacity {
			evictedID, err := evictLRU(ctx, tx, project)
			if errors.Is(err, errNoEvictable) {
				evictedID, err = forceEvictOldest(ctx, tx, project)
			}
			if err != nil {
				return err
			}
			archivedID, err := archive(ctx, tx, project, evictedID, "LRU_EVICTION")
			if err != nil {
				return err
			}
			result.EvictedID = evictedID
			result.ArchivedID = archivedID
		}

		id := uuid.NewString()
		const insertQ = `
			INSERT INTO working_memory (id, project_id, content, importance, created_at, accessed_at)
			VALUES ($1, $2, $3, $4, now(), now())`
		if _, err := tx.Exec(ctx, insertQ, id, project, content, importance); err != nil {
			return fmt.Errorf("insert working memory item: %w", err)
		}
		result.AddedID = id
		return nil
	})
	if err != nil {
		return AddResult{}, err
	}
	return result, nil
}

// Delete removes a working-memory item by id. Idempotent: deleting a
// missing or already-deleted id is not an error (spec §8: "a second
// delete_working_memory(id) returns status=not_found and does not alter
// stale memory").
func (s *Store) Delete(ctx context.Context, project, id string) (found bool, err error) {
	const q = `DELETE FROM working_memory WHERE project_id = $1 AND id = $2`
	err = s.pool.WithConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		tag, execErr := tx.Exec(ctx, q, project, id)
		if execErr != nil {
			return execErr
		}
		found = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("workingmem: delete: %w", err)
	}
	return found, nil
}

// Archive manually archives a working-memory item with reason
// "MANUAL_ARCHIVE" and removes it from the active buffer.
func (s *Store) Archive(ctx context.Context, project, id string) (archivedID string, err error) {
	err = s.pool.WithConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		var innerErr error
		archivedID, innerErr = archive(ctx, tx, project, id, "MANUAL_ARCHIVE")
		return innerErr
	})
	if err != nil {
		return "", fmt.Errorf("workingmem: archive: %w", err)
	}
	return archivedID, nil
}

// List returns the active working-memory buffer for project, most
// recently created first, for memory://working-memory resource reads.
func (s *Store) List(ctx context.Context, project string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
		SELECT id, content, importance, created_at, accessed_at
		FROM working_memory
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	var items []Item
	err := s.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, q, project, limit)
		if err != nil {
			return err
		}
		collected, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
			var it Item
			scanErr := row.Scan(&it.ID, &it.Content, &it.Importance, &it.CreatedAt, &it.AccessedAt)
			return it, scanErr
		})
		if err != nil {
			return err
		}
		items = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workingmem: list: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// StaleItem is a working-memory item that has been archived.
type StaleItem struct {
	ID                string
	Content           string
	Importance        float64
	Reason            string
	ArchivedAt        time.Time
	OriginalCreatedAt time.Time
}

// ListStale returns archived stale-memory items for project with
// importance >= importanceMin, most recently archived first, for
// memory://stale-memory resource reads.
func (s *Store) ListStale(ctx context.Context, project string, importanceMin float64, limit int) ([]StaleItem, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
		SELECT id, content, importance, reason, archived_at, original_created_at
		FROM stale_memory
		WHERE project_id = $1 AND importance >= $2
		ORDER BY archived_at DESC
		LIMIT $3`

	var items []StaleItem
	err := s.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, q, project, importanceMin, limit)
		if err != nil {
			return err
		}
		collected, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StaleItem, error) {
			var it StaleItem
			scanErr := row.Scan(&it.ID, &it.Content, &it.Importance, &it.Reason, &it.ArchivedAt, &it.OriginalCreatedAt)
			return it, scanErr
		})
		if err != nil {
			return err
		}
		items = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workingmem: list stale: %w", err)
	}
	if items == nil {
		items = []StaleItem{}
	}
	return items, nil
}

var errNoEvictable = errors.New("workingmem: no non-critical item to evict")

// evictLRU deletes and returns the id of the least-recently-accessed item
// with importance <= criticalThreshold. Returns errNoEvictable when every
// item is critical.
func evictLRU(ctx context.Context, tx pgx.Tx, project string) (string, error) {
	const q = `
		DELETE FROM working_memory
		WHERE id = (
		    SELECT id FROM working_memory
		    WHERE project_id = $1 AND importance <= $2
		    ORDER BY accessed_at ASC
		    LIMIT 1
		)
		RETURNING id`
	var id string
	err := tx.QueryRow(ctx, q, project, criticalThreshold).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errNoEvictable
		}
		return "", fmt.Errorf("evict lru: %w", err)
	}
	return id, nil
}

// forceEvictOldest deletes and returns the id of the oldest item
// regardless of importance, used when every item is critical.
func forceEvictOldest(ctx context.Context, tx pgx.Tx, project string) (string, error) {
	const q = `
		DELETE FROM working_memory
		WHERE id = (
		    SELECT id FROM working_memory
		    WHERE project_id = $1
		    ORDER BY created_at ASC
		    LIMIT 1
		)
		RETURNING id`
	var id string
	err := tx.QueryRow(ctx, q, project).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("force evict: working memory is empty")
		}
		return "", fmt.Errorf("force evict: %w", err)
	}
	return id, nil
}

// archive moves a working-memory item into stale_memory with the given
// reason and removes it from the active buffer. Returns an error when id
// does not exist.
func archive(ctx context.Context, tx pgx.Tx, project, id, reason string) (string, error) {
	const selectQ = `
		SELECT content, importance, created_at FROM working_memory
		WHERE project_id = $1 AND id = $2`
	var (
		content    string
		importance float64
		createdAt  time.Time
	)
	if err := tx.QueryRow(ctx, selectQ, project, id).Scan(&content, &importance, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("working memory item %q not found", id)
		}
		return "", fmt.Errorf("archive: lookup: %w", err)
	}

	archiveID := uuid.NewString()
	const insertQ = `
		INSERT INTO stale_memory (id, project_id, content, importance, reason, archived_at, original_created_at)
		VALUES ($1, $2, $3, $4, $5, now(), $6)`
	if _, err := tx.Exec(ctx, insertQ, archiveID, project, content, importance, reason, createdAt); err != nil {
		return "", fmt.Errorf("archive: insert stale memory: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM working_memory WHERE project_id = $1 AND id = $2`, project, id); err != nil {
		return "", fmt.Errorf("archive: remove from working memory: %w", err)
	}
	return archiveID, nil
}
