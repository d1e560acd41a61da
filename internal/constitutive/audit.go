package constitutive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// AuditEntry is one row of the append-only edge_audit_log.
type AuditEntry struct {
	ID        int64
	EdgeID    string
	Action    string
	Actor     string
	Blocked   bool
	Reason    string
	CreatedAt time.Time
}

func (g *Guard) logAuditEntry(ctx context.Context, project, edgeID, action string, blocked bool, reason, actor string) error {
	const q = `
		INSERT INTO edge_audit_log (project_id, edge_id, action, actor, blocked, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`
	return g.pool.WithConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, project, edgeID, action, actor, blocked, reason)
		return err
	})
}

// AuditFilter narrows GetAuditLog to matching rows, all fields optional.
type AuditFilter struct {
	EdgeID string
	Action string
	Actor  string
	Limit  int // 0 defaults to 100
}

// GetAuditLog implements spec §4.F: filterable by edge id/action/actor with
// a bounded LIMIT, newest first. Returns an empty (non-nil) slice on a
// fresh boot with no entries yet.
func (g *Guard) GetAuditLog(ctx context.Context, project string, filter AuditFilter) ([]AuditEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	args = append(args, project)
	conditions := []string{"project_id = $1"}
	if filter.EdgeID != "" {
		conditions = append(conditions, "edge_id = "+next(filter.EdgeID))
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = "+next(filter.Action))
	}
	if filter.Actor != "" {
		conditions = append(conditions, "actor = "+next(filter.Actor))
	}

	q := "SELECT id, edge_id, action, actor, blocked, reason, created_at FROM edge_audit_log WHERE "
	for i, c := range conditions {
		if i > 0 {
			q += " AND "
		}
		q += c
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	var entries []AuditEntry
	err := g.pool.WithReadOnlyConnection(ctx, project, func(ctx context.Context, tx pgx.Tx) error {
		rows, qErr := tx.Query(ctx, q, args...)
		if qErr != nil {
			return qErr
		}
		collected, cErr := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AuditEntry, error) {
			var e AuditEntry
			if sErr := row.Scan(&e.ID, &e.EdgeID, &e.Action, &e.Actor, &e.Blocked, &e.Reason, &e.CreatedAt); sErr != nil {
				return AuditEntry{}, sErr
			}
			return e, nil
		})
		if cErr != nil {
			return cErr
		}
		entries = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("constitutive: get audit log: %w", err)
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	return entries, nil
}
