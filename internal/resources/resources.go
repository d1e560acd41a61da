// Package resources implements the read-only memory:// resource surface
// (spec §4.L/§6): one URI template registered on the MCP server, dispatched
// by tier to a dedicated reader function, each returning a JSON array.
// Grounded on the same github.com/modelcontextprotocol/go-sdk/mcp
// generic-registration convention internal/toolserver uses for tools
// (mcp.AddTool), applied here to mcp.AddResourceTemplate.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ethrdev/cogmem/internal/episode"
	"github.com/ethrdev/cogmem/internal/insight"
	"github.com/ethrdev/cogmem/internal/rawdialogue"
	"github.com/ethrdev/cogmem/internal/tenancy"
	"github.com/ethrdev/cogmem/internal/workingmem"
	"github.com/ethrdev/cogmem/pkg/provider/embeddings"
)

// Tier names, matching spec §6's memory://<tier> URIs.
const (
	TierL2Insights    = "l2-insights"
	TierWorkingMemory = "working-memory"
	TierEpisodeMemory = "episode-memory"
	TierL0Raw         = "l0-raw"
	TierStaleMemory   = "stale-memory"
)

// Deps bundles the stores resource reads delegate to.
type Deps struct {
	Insights    *insight.Store
	Episodes    *episode.Store
	WorkingMem  *workingmem.Store
	RawDialogue *rawdialogue.Store
	Embeddings  embeddings.Provider
}

// Register wires the memory://{tier} resource template onto server.
func Register(server *mcp.Server, deps Deps) {
	r := &registry{deps: deps}
	mcp.AddResourceTemplate(server, &mcp.ResourceTemplate{
		URITemplate: "memory://{tier}",
		Name:        "memory",
		Description: "Read-only access to the memory hierarchy, selected by tier and filtered by query parameters.",
		MIMEType:    "application/json",
	}, r.read)
}

type registry struct {
	deps Deps
}

// read dispatches a memory://<tier>?<query> URI to its tier function and
// serializes the result (or an {"error": ...} object) as JSON text content.
func (r *registry) read(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	u, err := url.Parse(req.Params.URI)
	if err != nil {
		return errorResult(req.Params.URI, fmt.Sprintf("invalid resource uri: %v", err)), nil
	}

	tier := u.Host
	q := u.Query()

	project := q.Get("project")
	if project == "" {
		return errorResult(req.Params.URI, "project query parameter is required"), nil
	}
	ctx = tenancy.WithProject(ctx, project)

	var (
		payload any
		readErr error
	)
	switch tier {
	case TierL2Insights:
		payload, readErr = r.l2Insights(ctx, project, q)
	case TierWorkingMemory:
		payload, readErr = r.workingMemory(ctx, project, q)
	case TierEpisodeMemory:
		payload, readErr = r.episodeMemory(ctx, project, q)
	case TierL0Raw:
		payload, readErr = r.l0Raw(ctx, project, q)
	case TierStaleMemory:
		payload, readErr = r.staleMemory(ctx, project, q)
	default:
		return errorResult(req.Params.URI, fmt.Sprintf("unknown memory tier %q", tier)), nil
	}
	if readErr != nil {
		return errorResult(req.Params.URI, readErr.Error()), nil
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return errorResult(req.Params.URI, err.Error()), nil
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		}},
	}, nil
}

func errorResult(uri, msg string) *mcp.ReadResourceResult {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(body),
		}},
	}
}

func (r *registry) l2Insights(ctx context.Context, project string, q url.Values) (any, error) {
	query := q.Get("query")
	topK := intParam(q, "top_k", 5)
	if query == "" {
		return []insight.Result{}, nil
	}
	vec, err := r.deps.Embeddings.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.deps.Insights.Search(ctx, project, vec, topK, insight.Filter{})
}

func (r *registry) workingMemory(ctx context.Context, project string, q url.Values) (any, error) {
	limit := intParam(q, "limit", 20)
	return r.deps.WorkingMem.List(ctx, project, limit)
}

func (r *registry) episodeMemory(ctx context.Context, project string, q url.Values) (any, error) {
	query := q.Get("query")
	topK := intParam(q, "top_k", 5)
	if query == "" {
		return []episode.Result{}, nil
	}
	vec, err := r.deps.Embeddings.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.deps.Episodes.Search(ctx, project, vec, topK)
	if err != nil {
		return nil, err
	}
	minSim := floatParam(q, "min_similarity", 0)
	if minSim <= 0 {
		return results, nil
	}
	filtered := make([]episode.Result, 0, len(results))
	for _, res := range results {
		if (1 - res.Distance) >= minSim {
			filtered = append(filtered, res)
		}
	}
	return filtered, nil
}

func (r *registry) l0Raw(ctx context.Context, project string, q url.Values) (any, error) {
	sessionID := q.Get("session_id")
	limit := intParam(q, "limit", 50)
	var from, to time.Time
	if dr := q.Get("date_range"); dr != "" {
		parts := strings.SplitN(dr, ":", 2)
		if len(parts) == 2 {
			from, _ = time.Parse("2006-01-02", parts[0])
			to, _ = time.Parse("2006-01-02", parts[1])
		}
	}
	return r.deps.RawDialogue.List(ctx, project, sessionID, from, to, limit)
}

func (r *registry) staleMemory(ctx context.Context, project string, q url.Values) (any, error) {
	importanceMin := floatParam(q, "importance_min", 0)
	limit := intParam(q, "limit", 20)
	return r.deps.WorkingMem.ListStale(ctx, project, importanceMin, limit)
}

func intParam(q url.Values, key string, def int) int {
	v := q.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatParam(q url.Values, key string, def float64) float64 {
	v := q.Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
