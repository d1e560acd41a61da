package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ethrdev/cogmem/internal/apperr"
	"github.com/ethrdev/cogmem/internal/episode"
	"github.com/ethrdev/cogmem/internal/graph"
	"github.com/ethrdev/cogmem/internal/insight"
	"github.com/ethrdev/cogmem/internal/observe"
	"github.com/ethrdev/cogmem/internal/resilience"
	"github.com/ethrdev/cogmem/internal/tenancy"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings"
)

// sourceType names the three document kinds a caller can opt in or out of
// via source_type_filter.
const (
	sourceInsight = "l2_insight"
	sourceEpisode = "episode_memory"
	sourceGraph   = "graph"
)

// graphNeighborDepth is the traversal depth used to seed the graph channel
// from each extracted entity (spec §4.G doesn't name a depth; one hop
// keeps the channel's cost comparable to the other two).
const graphNeighborDepth = 1

// Engine is the hybrid_search tool's implementation: query routing,
// three-channel concurrent fan-out, filter application, and RRF fusion.
// Grounded on spec §4.G and original_source/mcp_server/tools/__init__.py.
type Engine struct {
	insights    *insight.Store
	episodes    *episode.Store
	graphStore  *graph.Store
	embeddings  embeddings.Provider
	shadowAudit tenancy.ShadowAuditSink

	// Per-channel circuit breakers: a channel that fails repeatedly trips
	// its own breaker so hybrid_search stops hammering it on every call
	// and degrades immediately instead of waiting out each query's own
	// timeout (spec §7's graceful-degradation requirement, one breaker
	// per fan-out channel rather than one per backend provider).
	insightsBreaker *resilience.CircuitBreaker
	episodesBreaker *resilience.CircuitBreaker
	keywordBreaker  *resilience.CircuitBreaker
	graphBreaker    *resilience.CircuitBreaker

	rrfK int
}

// NewEngine wires the three channel stores plus the embeddings provider
// used to embed query text when the caller doesn't supply a precomputed
// vector. shadowAudit may be tenancy.NopShadowAudit{} to disable auditing.
// rrfK is the RRF constant (config.Config.RRFK); 0 falls back to
// DefaultRRFK so callers that don't thread config through still get the
// literature default.
func NewEngine(insights *insight.Store, episodes *episode.Store, graphStore *graph.Store, provider embeddings.Provider, shadowAudit tenancy.ShadowAuditSink, rrfK int) *Engine {
	if shadowAudit == nil {
		shadowAudit = tenancy.NopShadowAudit{}
	}
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}
	return &Engine{
		insights:        insights,
		episodes:        episodes,
		graphStore:      graphStore,
		embeddings:      provider,
		shadowAudit:     shadowAudit,
		insightsBreaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "retrieval.semantic.insights"}),
		episodesBreaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "retrieval.semantic.episodes"}),
		keywordBreaker:  resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "retrieval.keyword"}),
		graphBreaker:    resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "retrieval.graph"}),
		rrfK:            rrfK,
	}
}

// Filters bundles the pre-retrieval filter-stage parameters (spec §4.G).
type Filters struct {
	Tags             []string
	DateFrom         *time.Time
	DateTo           *time.Time
	SourceTypeFilter []string // subset of {l2_insight, episode_memory, graph}; empty means all
	SectorFilter     []string // restricts the graph channel; non-nil empty slice short-circuits it
}

// wantsSource reports whether kind should participate, honoring an empty
// (unset) SourceTypeFilter as "all sources".
func (f Filters) wantsSource(kind string) bool {
	if len(f.SourceTypeFilter) == 0 {
		return true
	}
	for _, k := range f.SourceTypeFilter {
		if k == kind {
			return true
		}
	}
	return false
}

// SearchResult is one hybrid_search response plus the response envelope
// counts spec §4.G's tool contract requires.
type SearchResult struct {
	Results             []FusedResult
	SemanticResultCount int
	KeywordResultCount  int
	GraphResultCount    int
	AppliedWeights      Weights
}

// semanticCandidate holds a channel-agnostic hit alongside the distance
// used to interleave insights and episodes into one ranked semantic
// channel before RRF sees it.
type semanticCandidate struct {
	hit      Hit
	distance float64
}

// Search implements hybrid_search: embeds queryText when queryEmbedding is
// nil, routes to a weight profile (or normalizes callerWeights when
// supplied), fans the three channels out concurrently, and fuses results.
// A channel that errors contributes no hits and is logged via slog.Warn —
// the overall call never fails because one channel degraded (spec §7).
func (e *Engine) Search(ctx context.Context, project, queryText string, queryEmbedding []float32, topK int, callerWeights *Weights, filters Filters) (SearchResult, error) {
	if queryText == "" && len(queryEmbedding) == 0 {
		return SearchResult{}, apperr.Validationf("query_text or query_embedding is required")
	}
	if topK <= 0 {
		topK = 5
	}
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateFrom.After(*filters.DateTo) {
		return SearchResult{}, apperr.Validationf("date_from must not be after date_to")
	}

	weights := RouteQuery(queryText)
	if callerWeights != nil {
		weights = NormalizeWeights(*callerWeights)
	}

	if len(queryEmbedding) == 0 {
		vec, err := e.embeddings.Embed(ctx, queryText)
		if err != nil {
			return SearchResult{}, apperr.EmbeddingErr(err)
		}
		queryEmbedding = vec
	}

	logger := observe.Logger(ctx)
	insightFilter := insight.Filter{TagsFilter: filters.Tags, DateFrom: filters.DateFrom, DateTo: filters.DateTo}

	var (
		semanticMu         sync.Mutex
		semanticCandidates []semanticCandidate
		keywordHits        []Hit
		graphHits          []Hit
	)
	g, gctx := errgroup.WithContext(ctx)

	if filters.wantsSource(sourceInsight) {
		g.Go(func() error {
			var results []insight.Result
			err := e.insightsBreaker.Execute(func() error {
				var searchErr error
				results, searchErr = e.insights.Search(gctx, project, queryEmbedding, topK, insightFilter)
				return searchErr
			})
			if err != nil {
				logger.Warn("retrieval: semantic channel (insights) degraded", "error", err)
				return nil
			}
			cands := make([]semanticCandidate, len(results))
			for i, r := range results {
				cands[i] = semanticCandidate{hit: insightHit(r.Insight), distance: r.Distance}
			}
			semanticMu.Lock()
			semanticCandidates = append(semanticCandidates, cands...)
			semanticMu.Unlock()
			return nil
		})
	}

	// Episodes carry no full-text index, so they only ever join the
	// semantic channel; source_type_filter still folds them in or out.
	if filters.wantsSource(sourceEpisode) {
		g.Go(func() error {
			var results []episode.Result
			err := e.episodesBreaker.Execute(func() error {
				var searchErr error
				results, searchErr = e.episodes.Search(gctx, project, queryEmbedding, topK)
				return searchErr
			})
			if err != nil {
				logger.Warn("retrieval: semantic channel (episodes) degraded", "error", err)
				return nil
			}
			cands := make([]semanticCandidate, len(results))
			for i, r := range results {
				cands[i] = semanticCandidate{hit: episodeHit(r.Episode), distance: r.Distance}
			}
			semanticMu.Lock()
			semanticCandidates = append(semanticCandidates, cands...)
			semanticMu.Unlock()
			return nil
		})
	}

	if filters.wantsSource(sourceInsight) && queryText != "" {
		g.Go(func() error {
			var results []insight.KeywordResult
			err := e.keywordBreaker.Execute(func() error {
				var searchErr error
				results, searchErr = e.insights.SearchKeyword(gctx, project, queryText, topK, insightFilter)
				return searchErr
			})
			if err != nil {
				logger.Warn("retrieval: keyword channel degraded", "error", err)
				return nil
			}
			keywordHits = make([]Hit, len(results))
			for i, r := range results {
				keywordHits[i] = insightHit(r.Insight)
			}
			return nil
		})
	}

	graphSkipped := filters.SectorFilter != nil && len(filters.SectorFilter) == 0
	if filters.wantsSource(sourceGraph) && !graphSkipped {
		g.Go(func() error {
			var hits []Hit
			err := e.graphBreaker.Execute(func() error {
				var searchErr error
				hits, searchErr = e.searchGraph(gctx, project, queryText, filters.SectorFilter)
				return searchErr
			})
			if err != nil {
				logger.Warn("retrieval: graph channel degraded", "error", err)
				return nil
			}
			graphHits = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// errgroup only surfaces an error here on context cancellation —
		// every channel above swallows its own error, so a degraded
		// channel never reaches this point.
		return SearchResult{}, fmt.Errorf("retrieval: search: %w", err)
	}

	sort.Slice(semanticCandidates, func(i, j int) bool {
		return semanticCandidates[i].distance < semanticCandidates[j].distance
	})
	if len(semanticCandidates) > topK {
		semanticCandidates = semanticCandidates[:topK]
	}
	semanticHits := make([]Hit, len(semanticCandidates))
	for i, c := range semanticCandidates {
		semanticHits[i] = c.hit
	}

	fused := Fuse(semanticHits, keywordHits, graphHits, weights, e.rrfK)
	if topK < len(fused) {
		fused = fused[:topK]
	}

	e.auditProjectLeakage(ctx, project, fused)

	return SearchResult{
		Results:             fused,
		SemanticResultCount: len(semanticHits),
		KeywordResultCount:  len(keywordHits),
		GraphResultCount:    len(graphHits),
		AppliedWeights:      weights,
	}, nil
}

func insightHit(ins insight.Insight) Hit {
	return Hit{
		DocID: fmt.Sprintf("insight:%d", ins.ID),
		Doc: Doc{
			Kind:           "insight",
			ID:             fmt.Sprintf("%d", ins.ID),
			Content:        ins.Content,
			MemoryStrength: ins.MemoryStrength,
			Metadata:       ins.Metadata,
		},
	}
}

func episodeHit(ep episode.Episode) Hit {
	return Hit{
		DocID: fmt.Sprintf("episode:%d", ep.ID),
		Doc: Doc{
			Kind:           "episode",
			ID:             fmt.Sprintf("%d", ep.ID),
			Content:        ep.Query,
			MemoryStrength: 1.0,
			Metadata:       map[string]any{"reward": ep.Reward, "reflection": ep.Reflection},
		},
	}
}

// searchGraph seeds traversal from entities extracted out of queryText and
// walks one hop from each, applying sectorFilter when non-empty. Results
// are deduplicated by node id across seeds, first-seen order preserved as
// the channel's rank.
func (e *Engine) searchGraph(ctx context.Context, project, queryText string, sectorFilter []string) ([]Hit, error) {
	if queryText == "" {
		return nil, nil
	}
	names, err := e.graphStore.ListNodeNames(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("list node names: %w", err)
	}
	entities := ExtractEntities(queryText, names)
	if len(entities) == 0 {
		return nil, nil
	}

	var opts []graph.TraversalOpt
	if len(sectorFilter) > 0 {
		opts = append(opts, graph.WithSectors(sectorFilter...))
	}

	seen := make(map[string]bool)
	var hits []Hit
	for _, name := range entities {
		start, err := e.graphStore.GetNodeByName(ctx, project, name)
		if err != nil || start == nil {
			continue
		}
		neighbors, err := e.graphStore.Neighbors(ctx, project, start.ID, graphNeighborDepth, opts...)
		if err != nil {
			return nil, fmt.Errorf("neighbors of %q: %w", name, err)
		}
		for _, n := range neighbors {
			if seen[n.Node.ID] {
				continue
			}
			seen[n.Node.ID] = true
			hits = append(hits, Hit{
				DocID: fmt.Sprintf("node:%s", n.Node.ID),
				Doc: Doc{
					Kind:           "node",
					ID:             n.Node.ID,
					Content:        n.Node.Name,
					MemoryStrength: 1.0,
					Metadata:       n.Node.Properties,
				},
			})
		}
	}
	return hits, nil
}

// auditProjectLeakage logs any fused result whose stored project id
// (carried in Doc.Metadata["project_id"] when a store attaches one)
// differs from the requesting project. Every channel here already filters
// by project_id at the SQL layer, so under correct row-level-security
// policy this never fires; the hook exists for shared/super access-level
// callers layered on top of this engine (spec §4.G "shadow cross-project
// audit"). Audit failures never block the response.
func (e *Engine) auditProjectLeakage(ctx context.Context, project string, results []FusedResult) {
	for _, r := range results {
		found, ok := r.Doc.Metadata["project_id"].(string)
		if !ok || found == "" || found == project {
			continue
		}
		e.shadowAudit.RecordLeak(ctx, project, found, r.Doc.Kind, r.Doc.ID)
	}
}
