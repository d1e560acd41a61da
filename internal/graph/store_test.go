package graph_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethrdev/cogmem/internal/graph"
	"github.com/ethrdev/cogmem/internal/store/postgres"
)

const testEmbeddingDim = 4

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
	t.Cleanup(clean.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS edges CASCADE",
		"DROP TABLE IF EXISTS nodes CASCADE",
	} {
		if _, err := clean.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema %q: %v", stmt, err)
		}
	}
	clean.Close()

	pool, err := postgres.Open(ctx, postgres.Config{DSN: dsn, EmbeddingDims: testEmbeddingDim})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestUpsertNode_ConflictPreservesID(t *testing.T) {
	pool := newTestPool(t)
	g := graph.New(pool)
	ctx := context.Background()

	n1, created1, err := g.UpsertNode(ctx, "proj-a", "npc", "Grimjaw", map[string]any{"role": "blacksmith"}, nil)
	if err != nil {
		t.Fatalf("upsert 1: %v", err)
	}
	if !created1 {
		t.Error("first upsert should report created=true")
	}

	n2, created2, err := g.UpsertNode(ctx, "proj-a", "npc", "Grimjaw", map[string]any{"role": "smith"}, nil)
	if err != nil {
		t.Fatalf("upsert 2: %v", err)
	}
	if created2 {
		t.Error("second upsert on same key should report created=false")
	}
	if n1.ID != n2.ID {
		t.Errorf("node id changed across conflicting upsert: %s -> %s", n1.ID, n2.ID)
	}
	if n2.Properties["role"] != "smith" {
		t.Errorf("properties not overwritten: %v", n2.Properties)
	}
}

func TestUpsertNode_DistinctProjectsYieldDistinctNodes(t *testing.T) {
	pool := newTestPool(t)
	g := graph.New(pool)
	ctx := context.Background()

	na, _, err := g.UpsertNode(ctx, "proj-a", "npc", "Grimjaw", nil, nil)
	if err != nil {
		t.Fatalf("upsert proj-a: %v", err)
	}
	nb, _, err := g.UpsertNode(ctx, "proj-b", "npc", "Grimjaw", nil, nil)
	if err != nil {
		t.Fatalf("upsert proj-b: %v", err)
	}
	if na.ID == nb.ID {
		t.Error("same name in different projects should yield distinct node ids")
	}
	if na.ProjectID != "proj-a" || nb.ProjectID != "proj-b" {
		t.Errorf("project ids not preserved: %q, %q", na.ProjectID, nb.ProjectID)
	}
}

func TestUpsertEdge_ConstitutiveForcesEntrenchment(t *testing.T) {
	pool := newTestPool(t)
	g := graph.New(pool)
	ctx := context.Background()

	a, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "A", nil, nil)
	b, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "B", nil, nil)

	edge, created, err := g.UpsertEdge(ctx, "proj-a", a.ID, b.ID, "LOVES", 1.0, map[string]any{"edge_type": "constitutive"}, "")
	if err != nil {
		t.Fatalf("upsert edge: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}
	if edge.Properties["entrenchment_level"] != "maximal" {
		t.Errorf("expected entrenchment_level=maximal, got %v", edge.Properties["entrenchment_level"])
	}
	if edge.Sector != "emotional" && edge.Sector != "semantic" {
		// LOVES with no emotional_valence falls through to semantic by default rules
		t.Logf("sector classified as %q", edge.Sector)
	}
}

func TestUpsertEdge_RejectsCrossProjectEndpoints(t *testing.T) {
	pool := newTestPool(t)
	g := graph.New(pool)
	ctx := context.Background()

	a, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "A", nil, nil)
	b, _, _ := g.UpsertNode(ctx, "proj-b", "npc", "B", nil, nil)

	_, _, err := g.UpsertEdge(ctx, "proj-a", a.ID, b.ID, "KNOWS", 1.0, nil, "")
	if err == nil {
		t.Fatal("expected error when target node belongs to a different project")
	}
}

func TestNeighbors_CycleSafe(t *testing.T) {
	pool := newTestPool(t)
	g := graph.New(pool)
	ctx := context.Background()

	a, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "A", nil, nil)
	b, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "B", nil, nil)
	c, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "C", nil, nil)

	if _, _, err := g.UpsertEdge(ctx, "proj-a", a.ID, b.ID, "KNOWS", 1, nil, ""); err != nil {
		t.Fatalf("edge a->b: %v", err)
	}
	if _, _, err := g.UpsertEdge(ctx, "proj-a", b.ID, c.ID, "KNOWS", 1, nil, ""); err != nil {
		t.Fatalf("edge b->c: %v", err)
	}
	if _, _, err := g.UpsertEdge(ctx, "proj-a", c.ID, a.ID, "KNOWS", 1, nil, ""); err != nil {
		t.Fatalf("edge c->a (cycle): %v", err)
	}

	neighbors, err := g.Neighbors(ctx, "proj-a", a.ID, 5)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("want 2 reachable neighbors (B, C), got %d", len(neighbors))
	}
	for _, n := range neighbors {
		if n.EdgeID == "" {
			t.Errorf("neighbor %q missing traversing edge id", n.Node.Name)
		}
		if n.Relation != "KNOWS" {
			t.Errorf("neighbor %q relation = %q, want KNOWS", n.Node.Name, n.Relation)
		}
	}
}

func TestNeighbors_PropertiesFilterParticipants(t *testing.T) {
	pool := newTestPool(t)
	g := graph.New(pool)
	ctx := context.Background()

	a, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "A", nil, nil)
	b, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "B", nil, nil)
	c, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "C", nil, nil)

	if _, _, err := g.UpsertEdge(ctx, "proj-a", a.ID, b.ID, "TALKED_TO", 1, map[string]any{
		"participants": []any{"alice", "bob"},
	}, ""); err != nil {
		t.Fatalf("edge a->b: %v", err)
	}
	if _, _, err := g.UpsertEdge(ctx, "proj-a", a.ID, c.ID, "TALKED_TO", 1, map[string]any{
		"participants": []any{"carol"},
	}, ""); err != nil {
		t.Fatalf("edge a->c: %v", err)
	}

	neighbors, err := g.Neighbors(ctx, "proj-a", a.ID, 1, graph.WithPropertiesFilter(map[string]any{"participants": "alice"}))
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].Node.Name != "B" {
		t.Fatalf("want only B, got %+v", neighbors)
	}
}

func TestNeighbors_SupersededEdgesExcludedByDefault(t *testing.T) {
	pool := newTestPool(t)
	g := graph.New(pool)
	ctx := context.Background()

	a, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "A", nil, nil)
	b, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "B", nil, nil)

	if _, _, err := g.UpsertEdge(ctx, "proj-a", a.ID, b.ID, "KNOWS", 1, map[string]any{
		"superseded": true,
	}, ""); err != nil {
		t.Fatalf("edge a->b: %v", err)
	}

	neighbors, err := g.Neighbors(ctx, "proj-a", a.ID, 1)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(neighbors) != 0 {
		t.Fatalf("want superseded edge excluded by default, got %d neighbors", len(neighbors))
	}

	included, err := g.Neighbors(ctx, "proj-a", a.ID, 1, graph.WithIncludeSuperseded(true))
	if err != nil {
		t.Fatalf("neighbors with include_superseded: %v", err)
	}
	if len(included) != 1 {
		t.Fatalf("want 1 neighbor with include_superseded, got %d", len(included))
	}
}

func TestFindPath_NoPathReturnsEmptyNotNil(t *testing.T) {
	pool := newTestPool(t)
	g := graph.New(pool)
	ctx := context.Background()

	a, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "A", nil, nil)
	b, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "B", nil, nil)

	path, err := g.FindPath(ctx, "proj-a", a.ID, b.ID, 5)
	if err != nil {
		t.Fatalf("find path: %v", err)
	}
	if path == nil {
		t.Fatal("expected empty non-nil slice when no path exists")
	}
	if len(path) != 0 {
		t.Fatalf("want 0, got %d", len(path))
	}
}

func TestFindPath_RanksByHopsThenWeight(t *testing.T) {
	pool := newTestPool(t)
	g := graph.New(pool)
	ctx := context.Background()

	a, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "A", nil, nil)
	b, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "B", nil, nil)
	c, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "C", nil, nil)

	if _, _, err := g.UpsertEdge(ctx, "proj-a", a.ID, c.ID, "KNOWS", 0.5, nil, ""); err != nil {
		t.Fatalf("edge a->c: %v", err)
	}
	if _, _, err := g.UpsertEdge(ctx, "proj-a", a.ID, b.ID, "KNOWS", 1, nil, ""); err != nil {
		t.Fatalf("edge a->b: %v", err)
	}
	if _, _, err := g.UpsertEdge(ctx, "proj-a", b.ID, c.ID, "KNOWS", 1, nil, ""); err != nil {
		t.Fatalf("edge b->c: %v", err)
	}

	paths, err := g.FindPath(ctx, "proj-a", a.ID, c.ID, 5)
	if err != nil {
		t.Fatalf("find path: %v", err)
	}
	if len(paths) < 2 {
		t.Fatalf("want at least 2 ranked paths (direct + via B), got %d", len(paths))
	}
	if len(paths[0].Edges) != 1 {
		t.Fatalf("want shortest path (1 hop) ranked first, got %d hops", len(paths[0].Edges))
	}
	if paths[0].PathRelevance <= 0 || paths[0].PathRelevance > 1 {
		t.Errorf("path_relevance = %v, want in (0,1]", paths[0].PathRelevance)
	}
}

func TestFindPath_TrivialStartEqualsEndHasZeroLength(t *testing.T) {
	pool := newTestPool(t)
	g := graph.New(pool)
	ctx := context.Background()

	a, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "A", nil, nil)

	paths, err := g.FindPath(ctx, "proj-a", a.ID, a.ID, 5)
	if err != nil {
		t.Fatalf("find path: %v", err)
	}
	if len(paths) != 1 || len(paths[0].Edges) != 0 {
		t.Fatalf("want one trivial 0-hop path, got %+v", paths)
	}
	if paths[0].PathRelevance != 1.0 {
		t.Errorf("path_relevance = %v, want 1.0 for trivial path", paths[0].PathRelevance)
	}
}

func TestRawDeleteEdge_Idempotent(t *testing.T) {
	pool := newTestPool(t)
	g := graph.New(pool)
	ctx := context.Background()

	a, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "A", nil, nil)
	b, _, _ := g.UpsertNode(ctx, "proj-a", "npc", "B", nil, nil)
	edge, _, _ := g.UpsertEdge(ctx, "proj-a", a.ID, b.ID, "KNOWS", 1, nil, "")

	if err := g.RawDeleteEdge(ctx, "proj-a", edge.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := g.RawDeleteEdge(ctx, "proj-a", edge.ID); err != nil {
		t.Fatalf("second delete (idempotent): %v", err)
	}

	got, err := g.GetEdgeByID(ctx, "proj-a", edge.ID)
	if err != nil {
		t.Fatalf("get edge: %v", err)
	}
	if got != nil {
		t.Error("expected edge to be gone after delete")
	}
}
