// Package constitutive implements the pre-delete policy check protecting
// identity-defining edges, and the append-only audit log of every delete
// attempt. Constitutive edges are a property flag, not a subtype, and the
// audit log is a separate entity: edges can be deleted, audit rows cannot
// (spec §9 "Constitutive edges ... not a subtype ... not co-owned with
// edges").
package constitutive

import (
	"context"
	"fmt"

	"github.com/ethrdev/cogmem/internal/apperr"
	"github.com/ethrdev/cogmem/internal/graph"
	"github.com/ethrdev/cogmem/internal/propval"
	"github.com/ethrdev/cogmem/internal/store/postgres"
)

// Guard wraps a graph.Store with constitutive-edge protection and audit
// logging around edge deletion.
type Guard struct {
	pool  *postgres.Pool
	graph *graph.Store
}

// New builds a Guard over graph for the given pool.
func New(pool *postgres.Pool, g *graph.Store) *Guard {
	return &Guard{pool: pool, graph: g}
}

// DeleteResult mirrors spec §4.F / §8's `delete_edge` response shape.
type DeleteResult struct {
	Deleted         bool
	EdgeID          string
	WasConstitutive bool
	Reason          string
}

// DeleteEdge implements spec §4.F: fetch the edge, check the constitutive
// flag, block without bilateral consent (logging a DELETE_ATTEMPT audit
// entry), otherwise delete and log DELETE_SUCCESS. Deleting a missing edge
// is reported, not raised.
func (g *Guard) DeleteEdge(ctx context.Context, project, edgeID string, consentGiven bool, actor string) (DeleteResult, error) {
	edge, err := g.graph.GetEdgeByID(ctx, project, edgeID)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("constitutive: fetch edge: %w", err)
	}
	if edge == nil {
		return DeleteResult{EdgeID: edgeID, Reason: "Edge not found"}, nil
	}

	isConstitutive := propval.IsConstitutive(edge.Properties)

	if isConstitutive && !consentGiven {
		reason := fmt.Sprintf("Constitutive edge %q requires bilateral consent for deletion", edge.Relation)
		if logErr := g.logAuditEntry(ctx, project, edgeID, "DELETE_ATTEMPT", true, reason, "system"); logErr != nil {
			return DeleteResult{}, fmt.Errorf("constitutive: audit blocked attempt: %w", logErr)
		}
		return DeleteResult{}, apperr.ConstitutiveErr(reason)
	}

	if err := g.graph.RawDeleteEdge(ctx, project, edgeID); err != nil {
		return DeleteResult{}, fmt.Errorf("constitutive: delete edge: %w", err)
	}

	deleteActor := "system"
	reason := fmt.Sprintf("Edge %q deleted", edge.Relation)
	if isConstitutive {
		deleteActor = "I/O"
		reason += " with bilateral consent"
	}
	if actor != "" {
		deleteActor = actor
	}
	if logErr := g.logAuditEntry(ctx, project, edgeID, "DELETE_SUCCESS", false, reason, deleteActor); logErr != nil {
		return DeleteResult{}, fmt.Errorf("constitutive: audit success: %w", logErr)
	}

	return DeleteResult{Deleted: true, EdgeID: edgeID, WasConstitutive: isConstitutive}, nil
}
