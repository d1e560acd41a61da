// Package nuance implements the dissonance/nuance review lifecycle:
// flagging a set of edges as contradictory pending human or model review,
// and resolving that review. The IEF engine (internal/ief) consults
// GetPendingNuanceEdgeIDs to apply a dissonance penalty to edges still
// under review. Grounded on spec §4.J and
// original_source/mcp_server/db/graph.py's use of
// get_pending_nuance_edge_ids/calculate_ief_score.
package nuance

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ethrdev/cogmem/internal/apperr"
	"github.com/ethrdev/cogmem/internal/store/postgres"
)

const (
	StatusPendingReview = "PENDING_REVIEW"
	StatusResolved      = "RESOLVED"
)

// Review is a single dissonance review covering one or more contradictory
// edges.
type Review struct {
	ID         int64
	EdgeIDs    []string
	Status     string
	Resolution string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Engine manages the nuance_reviews table.
type Engine struct {
	pool *postgres.Pool
}

// New builds an Engine over pool.
func New(pool *postgres.Pool) *Engine {
	return &Engine{pool: pool}
}

// FlagDissonance implements spec §4.K's dissonance_check: opens a new
// review in PENDING_REVIEW status for the given edges.
func (e *Engine) FlagDissonance(ctx context.Context, project string, edgeIDs []string) (Review, error) {
	if len(edgeIDs) == 0 {
		return Review{}, apperr.Validationf("edge_ids must not be empty")
	}

	var review Review
	err := e.pool.WithConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		const q = `
			INSERT INTO nuance_reviews (project_id, edge_ids, status)
			VALUES ($1, $2, $3)
			RETURNING id, edge_ids, status, created_at`
		return tx.QueryRow(ctx, q, project, edgeIDs, StatusPendingReview).
			Scan(&review.ID, &review.EdgeIDs, &review.Status, &review.CreatedAt)
	})
	if err != nil {
		return Review{}, fmt.Errorf("nuance: flag dissonance: %w", err)
	}
	return review, nil
}

// ResolveDissonance implements spec §4.K's resolve_dissonance: transitions
// a review from PENDING_REVIEW to RESOLVED, recording the resolution text.
// Resolving an already-resolved or missing review is reported as a
// not-found apperr, not raised as a storage failure.
func (e *Engine) ResolveDissonance(ctx context.Context, project string, reviewID int64, resolution string) (Review, error) {
	if resolution == "" {
		return Review{}, apperr.Validationf("resolution must not be empty")
	}

	var review Review
	err := e.pool.WithConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		const q = `
			UPDATE nuance_reviews
			SET status = $1, resolution = $2, resolved_at = now()
			WHERE project_id = $3 AND id = $4 AND status = $5
			RETURNING id, edge_ids, status, resolution, created_at, resolved_at`
		err := tx.QueryRow(ctx, q, StatusResolved, resolution, project, reviewID, StatusPendingReview).
			Scan(&review.ID, &review.EdgeIDs, &review.Status, &review.Resolution, &review.CreatedAt, &review.ResolvedAt)
		if err == pgx.ErrNoRows {
			return apperr.NotFoundf("nuance review %d not found or already resolved", reviewID)
		}
		return err
	})
	if err != nil {
		return Review{}, err
	}
	return review, nil
}

// GetPendingNuanceEdgeIDs returns every edge id currently covered by a
// PENDING_REVIEW review, deduplicated, for the IEF engine's dissonance
// penalty.
func (e *Engine) GetPendingNuanceEdgeIDs(ctx context.Context, project string) ([]string, error) {
	const q = `
		SELECT DISTINCT edge_id
		FROM nuance_reviews, unnest(edge_ids) AS edge_id
		WHERE project_id = $1 AND status = $2`

	var ids []string
	err := e.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, q, project, StatusPendingReview)
		if err != nil {
			return err
		}
		collected, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
			var id string
			err := row.Scan(&id)
			return id, err
		})
		if err != nil {
			return err
		}
		ids = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("nuance: get pending edge ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// CountResolved returns how many reviews have reached RESOLVED for project,
// the judged-case tally get_golden_test_results reports in place of the
// external dual-judge harness it approximates.
func (e *Engine) CountResolved(ctx context.Context, project string) (int, error) {
	const q = `SELECT count(*) FROM nuance_reviews WHERE project_id = $1 AND status = $2`

	var n int
	err := e.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx, q, project, StatusResolved).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("nuance: count resolved: %w", err)
	}
	return n, nil
}
