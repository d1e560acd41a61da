package retrieval_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethrdev/cogmem/internal/episode"
	"github.com/ethrdev/cogmem/internal/graph"
	"github.com/ethrdev/cogmem/internal/insight"
	"github.com/ethrdev/cogmem/internal/retrieval"
	"github.com/ethrdev/cogmem/internal/store/postgres"
	"github.com/ethrdev/cogmem/internal/tenancy"
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

// testRig bundles the engine under test with direct access to its backing
// stores, so tests can seed data without going through the hybrid_search
// tool surface itself.
type testRig struct {
	engine   *retrieval.Engine
	insights *insight.Store
	episodes *episode.Store
	graph    *graph.Store
}

func newTestRig(t *testing.T, provider *mock.Provider) testRig {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	clean, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS edges CASCADE",
		"DROP TABLE IF EXISTS nodes CASCADE",
		"DROP TABLE IF EXISTS insights CASCADE",
		"DROP TABLE IF EXISTS episodes CASCADE",
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

	insights := insight.New(pool.Raw(), provider)
	episodes := episode.New(pool.Raw(), provider)
	graphStore := graph.New(pool)
	engine := retrieval.NewEngine(insights, episodes, graphStore, provider, tenancy.NopShadowAudit{}, 0)

	return testRig{engine: engine, insights: insights, episodes: episodes, graph: graphStore}
}

func TestSearch_RejectsMissingQueryAndEmbedding(t *testing.T) {
	engine := retrieval.NewEngine(nil, nil, nil, nil, nil, 0)
	_, err := engine.Search(context.Background(), "proj-a", "", nil, 5, nil, retrieval.Filters{})
	if err == nil {
		t.Error("expected validation error when both query_text and query_embedding are empty")
	}
}

func TestSearch_RejectsInvertedDateRange(t *testing.T) {
	engine := retrieval.NewEngine(nil, nil, nil, nil, nil, 0)
	from := mustParseDate(t, "2026-02-01")
	to := mustParseDate(t, "2026-01-01")
	_, err := engine.Search(context.Background(), "proj-a", "irrelevant", []float32{0.1, 0.2, 0.3, 0.4}, 5, nil, retrieval.Filters{
		DateFrom: &from,
		DateTo:   &to,
	})
	if err == nil {
		t.Error("expected validation error when date_from is after date_to")
	}
}

func TestSearch_SectorFilterEmptySliceSkipsGraphChannel(t *testing.T) {
	provider := &mock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3, 0.4}, DimensionsValue: 4}
	rig := newTestRig(t, provider)
	ctx := context.Background()

	if _, err := rig.insights.Compress(ctx, "proj-a", "the team retreated north", nil, nil, 0); err != nil {
		t.Fatalf("seed insight: %v", err)
	}

	result, err := rig.engine.Search(ctx, "proj-a", "retreat", nil, 5, nil, retrieval.Filters{SectorFilter: []string{}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.GraphResultCount != 0 {
		t.Errorf("expected graph channel skipped (sector_filter=[]), got %d graph results", result.GraphResultCount)
	}
}

func TestSearch_FusesSemanticAndKeywordResults(t *testing.T) {
	provider := &mock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3, 0.4}, DimensionsValue: 4}
	rig := newTestRig(t, provider)
	ctx := context.Background()

	if _, err := rig.insights.Compress(ctx, "proj-a", "the billing service depends on auth", nil, []string{"infra"}, 0.9); err != nil {
		t.Fatalf("seed insight: %v", err)
	}

	result, err := rig.engine.Search(ctx, "proj-a", "billing service", nil, 5, nil, retrieval.Filters{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Results) == 0 {
		t.Fatal("expected at least one fused result")
	}
	if result.SemanticResultCount == 0 {
		t.Error("expected semantic channel to contribute a result")
	}
}

func TestSearch_SourceTypeFilterExcludesGraphChannel(t *testing.T) {
	provider := &mock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3, 0.4}, DimensionsValue: 4}
	rig := newTestRig(t, provider)
	ctx := context.Background()

	if _, err := rig.insights.Compress(ctx, "proj-a", "the billing service depends on auth", nil, nil, 0); err != nil {
		t.Fatalf("seed insight: %v", err)
	}
	if _, _, err := rig.graph.UpsertNode(ctx, "proj-a", "service", "billing service", nil, nil); err != nil {
		t.Fatalf("seed node: %v", err)
	}

	result, err := rig.engine.Search(ctx, "proj-a", "billing service", nil, 5, nil, retrieval.Filters{
		SourceTypeFilter: []string{"l2_insight"},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.GraphResultCount != 0 {
		t.Errorf("expected graph channel excluded by source_type_filter, got %d", result.GraphResultCount)
	}
}

func mustParseDate(t *testing.T, ymd string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", ymd)
	if err != nil {
		t.Fatalf("parse date %q: %v", ymd, err)
	}
	return parsed
}
