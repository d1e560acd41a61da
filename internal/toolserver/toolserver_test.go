package toolserver

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethrdev/cogmem/internal/constitutive"
	"github.com/ethrdev/cogmem/internal/episode"
	"github.com/ethrdev/cogmem/internal/graph"
	"github.com/ethrdev/cogmem/internal/ief"
	"github.com/ethrdev/cogmem/internal/insight"
	"github.com/ethrdev/cogmem/internal/nuance"
	"github.com/ethrdev/cogmem/internal/retrieval"
	"github.com/ethrdev/cogmem/internal/store/postgres"
	"github.com/ethrdev/cogmem/internal/tenancy"
	"github.com/ethrdev/cogmem/internal/workingmem"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings/mock"
)

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("COGMEM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COGMEM_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestServer builds a fully wired Server against a clean database, the
// same way cmd/cogmemd does, so tool handlers can be exercised end to end.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	clean, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS edge_audit_log CASCADE",
		"DROP TABLE IF EXISTS nuance_reviews CASCADE",
		"DROP TABLE IF EXISTS stale_memory CASCADE",
		"DROP TABLE IF EXISTS working_memory CASCADE",
		"DROP TABLE IF EXISTS episodes CASCADE",
		"DROP TABLE IF EXISTS insights CASCADE",
		"DROP TABLE IF EXISTS edges CASCADE",
		"DROP TABLE IF EXISTS nodes CASCADE",
	} {
		if _, err := clean.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema %q: %v", stmt, err)
		}
	}
	clean.Close()

	pool, err := postgres.Open(ctx, postgres.Config{DSN: dsn, EmbeddingDims: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(pool.Close)

	provider := &mock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3, 0.4}, DimensionsValue: 4}
	graphStore := graph.New(pool)
	guard := constitutive.New(pool, graphStore)
	insights := insight.New(pool.Raw(), provider)
	episodes := episode.New(pool.Raw(), provider)
	workingMem := workingmem.New(pool, 10)
	nuanceEngine := nuance.New(pool)
	retrievalEngine := retrieval.NewEngine(insights, episodes, graphStore, provider, tenancy.NopShadowAudit{}, 0)
	iefEngine := ief.NewEngine(ief.NoopRecalibration{})

	return NewServer("cogmem-test", "0.0.0-test", Deps{
		Graph:        graphStore,
		Constitutive: guard,
		Insights:     insights,
		Episodes:     episodes,
		WorkingMem:   workingMem,
		Nuance:       nuanceEngine,
		Retrieval:    retrievalEngine,
		IEF:          iefEngine,
	})
}

func TestHandleGraphAddNode_RejectsMissingProject(t *testing.T) {
	s := newTestServer(t)
	_, result, _ := s.handleGraphAddNode(context.Background(), nil, GraphAddNodeArgs{
		Label: "npc", Name: "Grek",
	})
	if result.Metadata.ProjectID != "" {
		t.Errorf("expected no metadata on a validation failure, got %+v", result)
	}
}

func TestHandleGraphAddNodeAndEdge_RoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, nodeA, _ := s.handleGraphAddNode(ctx, nil, GraphAddNodeArgs{Project: "proj-a", Label: "npc", Name: "Grek"})
	if nodeA.NodeID == "" {
		t.Fatalf("expected a created node id, got result: %+v", nodeA)
	}
	_, nodeB, _ := s.handleGraphAddNode(ctx, nil, GraphAddNodeArgs{Project: "proj-a", Label: "location", Name: "The Keep"})
	if nodeB.NodeID == "" {
		t.Fatalf("expected a created node id, got result: %+v", nodeB)
	}

	_, edge, _ := s.handleGraphAddEdge(ctx, nil, GraphAddEdgeArgs{
		Project: "proj-a", SourceName: "Grek", TargetName: "The Keep", Relation: "located_at",
	})
	if edge.EdgeID == "" {
		t.Fatalf("expected a created edge id, got result: %+v", edge)
	}

	_, got, _ := s.handleGetEdge(ctx, nil, GetEdgeArgs{
		Project: "proj-a", SourceName: "Grek", TargetName: "The Keep", Relation: "located_at",
	})
	if got.Status != "success" {
		t.Fatalf("expected get_edge to find the round-tripped edge, got status %q", got.Status)
	}
}

func TestHandleStoreEpisodeAndListEpisodes(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, stored, _ := s.handleStoreEpisode(ctx, nil, StoreEpisodeArgs{
		Project: "proj-a", Query: "goblin ambush", Reward: 0.8, Reflection: "flanking worked",
	})
	if stored.ID == 0 {
		t.Fatalf("expected a stored episode id, got %+v", stored)
	}

	_, listed, _ := s.handleListEpisodes(ctx, nil, ListEpisodesArgs{Project: "proj-a", Limit: 10})
	if len(listed.Episodes) != 1 {
		t.Fatalf("expected 1 listed episode, got %d", len(listed.Episodes))
	}
	if listed.Episodes[0].ID != strconv.FormatInt(stored.ID, 10) {
		t.Errorf("expected listed episode to match stored id %d, got %q", stored.ID, listed.Episodes[0].ID)
	}
}

func TestHandleUpdateAndDeleteWorkingMemory(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, added, _ := s.handleUpdateWorkingMemory(ctx, nil, UpdateWorkingMemoryArgs{
		Project: "proj-a", Content: "the party is low on rations", Importance: 0.4,
	})
	if added.AddedID == "" {
		t.Fatalf("expected a working-memory item id, got %+v", added)
	}

	_, deleted, _ := s.handleDeleteWorkingMemory(ctx, nil, DeleteWorkingMemoryArgs{
		Project: "proj-a", ID: added.AddedID,
	})
	if deleted.Status != "success" {
		t.Errorf("expected status=success on first delete, got %q", deleted.Status)
	}

	_, secondDelete, _ := s.handleDeleteWorkingMemory(ctx, nil, DeleteWorkingMemoryArgs{
		Project: "proj-a", ID: added.AddedID,
	})
	if secondDelete.Status != "not_found" {
		t.Errorf("expected idempotent second delete to report not_found, got %q", secondDelete.Status)
	}
}

func TestHandleDissonanceCheckAndResolve(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, review, _ := s.handleDissonanceCheck(ctx, nil, DissonanceCheckArgs{
		Project: "proj-a", EdgeIDs: []string{"edge-1", "edge-2"},
	})
	if review.Review.Status != string(nuance.StatusPendingReview) {
		t.Fatalf("expected PENDING_REVIEW status, got %+v", review)
	}

	_, resolved, _ := s.handleResolveDissonance(ctx, nil, ResolveDissonanceArgs{
		Project: "proj-a", ReviewID: review.Review.ID, Resolution: "edge-1 wins",
	})
	if resolved.Review.Status != string(nuance.StatusResolved) {
		t.Errorf("expected RESOLVED status, got %+v", resolved)
	}
}

func TestHandleGetGoldenTestResults_TracksJudgedAndPending(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, baseline, _ := s.handleGetGoldenTestResults(ctx, nil, GetGoldenTestResultsArgs{Project: "proj-a"})
	if baseline.JudgedCount != 0 || baseline.PendingCount != 0 {
		t.Fatalf("expected a clean project to start at 0/0, got %+v", baseline)
	}

	_, review, _ := s.handleDissonanceCheck(ctx, nil, DissonanceCheckArgs{
		Project: "proj-a", EdgeIDs: []string{"edge-1", "edge-2"},
	})
	_, afterFlag, _ := s.handleGetGoldenTestResults(ctx, nil, GetGoldenTestResultsArgs{Project: "proj-a"})
	if afterFlag.PendingCount != 1 {
		t.Errorf("expected 1 pending review after flagging, got %d", afterFlag.PendingCount)
	}

	_, _, _ = s.handleResolveDissonance(ctx, nil, ResolveDissonanceArgs{
		Project: "proj-a", ReviewID: review.Review.ID, Resolution: "settled",
	})
	_, afterResolve, _ := s.handleGetGoldenTestResults(ctx, nil, GetGoldenTestResultsArgs{Project: "proj-a"})
	if afterResolve.JudgedCount != 1 {
		t.Errorf("expected judged_count=1 after resolving, got %d", afterResolve.JudgedCount)
	}
	if afterResolve.PendingCount != 0 {
		t.Errorf("expected pending_count=0 after resolving, got %d", afterResolve.PendingCount)
	}
}
