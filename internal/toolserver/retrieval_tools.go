package toolserver

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ethrdev/cogmem/internal/apperr"
	"github.com/ethrdev/cogmem/internal/retrieval"
)

func (s *Server) registerRetrievalTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "hybrid_search",
		Description: "Search across insights, episodes, and the graph with query-routed RRF fusion.",
	}, s.handleHybridSearch)
}

type HybridSearchWeights struct {
	Semantic float64 `json:"semantic,omitempty" jsonschema:"Semantic channel weight"`
	Keyword  float64 `json:"keyword,omitempty" jsonschema:"Keyword channel weight"`
	Graph    float64 `json:"graph,omitempty" jsonschema:"Graph channel weight"`
}

type HybridSearchArgs struct {
	Project          string               `json:"project" jsonschema:"Project identifier that scopes this request"`
	QueryText        string               `json:"query_text,omitempty" jsonschema:"Free-text query; required unless query_embedding is supplied"`
	QueryEmbedding   []float32            `json:"query_embedding,omitempty" jsonschema:"Precomputed query embedding; required unless query_text is supplied"`
	TopK             int                  `json:"top_k,omitempty" jsonschema:"Number of fused results to return, default 5"`
	Weights          *HybridSearchWeights `json:"weights,omitempty" jsonschema:"Caller-supplied channel weight overrides, normalized to sum to 1"`
	TagsFilter       []string             `json:"tags_filter,omitempty" jsonschema:"Restrict insight results to those carrying any of these tags"`
	DateFrom         string               `json:"date_from,omitempty" jsonschema:"Restrict results to insights created on or after this date (YYYY-MM-DD)"`
	DateTo           string               `json:"date_to,omitempty" jsonschema:"Restrict results to insights created on or before this date (YYYY-MM-DD)"`
	SourceTypeFilter []string             `json:"source_type_filter,omitempty" jsonschema:"Restrict to a subset of {l2_insight, episode_memory, graph}"`
	SectorFilter     []string             `json:"sector_filter,omitempty" jsonschema:"Restrict the graph channel to these memory sectors; an empty list skips it entirely"`
}

type hybridSearchResultItem struct {
	Kind           string         `json:"kind"`
	ID             string         `json:"id"`
	Content        string         `json:"content,omitempty"`
	RRFScore       float64        `json:"rrf_score"`
	FinalScore     float64        `json:"final_score"`
	MemoryStrength float64        `json:"memory_strength"`
	Properties     map[string]any `json:"properties,omitempty"`
	ProjectID      string         `json:"project_id"`
}

type HybridSearchResult struct {
	Results              []hybridSearchResultItem `json:"results"`
	SemanticResultsCount int                      `json:"semantic_results_count"`
	KeywordResultsCount  int                      `json:"keyword_results_count"`
	GraphResultsCount    int                      `json:"graph_results_count"`
	AppliedWeights       retrieval.Weights        `json:"applied_weights"`
	AppliedFilters       retrieval.Filters        `json:"applied_filters"`
	Status               string                   `json:"status"`
	Metadata             Metadata                 `json:"metadata"`
	ProjectID            string                   `json:"project_id"`
}

func parseFilterDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Server) handleHybridSearch(ctx context.Context, req *mcp.CallToolRequest, args HybridSearchArgs) (*mcp.CallToolResult, HybridSearchResult, error) {
	const tool = "hybrid_search"
	defer s.recordToolDuration(ctx, tool)()
	var errs []error
	if args.QueryText == "" && len(args.QueryEmbedding) == 0 {
		errs = append(errs, errors.New("query_text or query_embedding is required"))
	}
	dateFrom, dfErr := parseFilterDate(args.DateFrom)
	if dfErr != nil {
		errs = append(errs, errors.New("date_from must be YYYY-MM-DD or RFC3339"))
	}
	dateTo, dtErr := parseFilterDate(args.DateTo)
	if dtErr != nil {
		errs = append(errs, errors.New("date_to must be YYYY-MM-DD or RFC3339"))
	} else if dateTo != nil && len(args.DateTo) == len("2006-01-02") {
		// A bare date covers that whole day.
		endOfDay := dateTo.Add(24*time.Hour - time.Nanosecond)
		dateTo = &endOfDay
	}
	ctx, perr := requireProject(ctx, args.Project)
	if perr != nil {
		errs = append(errs, perr)
	}
	if err := errors.Join(errs...); err != nil {
		s.recordToolCall(ctx, tool, "validation_error")
		return s.errorResult(tool, args.Project, apperr.Validationf("%s", err)), HybridSearchResult{}, nil
	}

	filters := retrieval.Filters{
		Tags:             args.TagsFilter,
		DateFrom:         dateFrom,
		DateTo:           dateTo,
		SourceTypeFilter: args.SourceTypeFilter,
		SectorFilter:     args.SectorFilter,
	}

	var callerWeights *retrieval.Weights
	if args.Weights != nil {
		callerWeights = &retrieval.Weights{
			Semantic: args.Weights.Semantic,
			Keyword:  args.Weights.Keyword,
			Graph:    args.Weights.Graph,
		}
	}

	topK := args.TopK
	searchResult, err := s.retrieval.Search(ctx, args.Project, args.QueryText, args.QueryEmbedding, topK, callerWeights, filters)
	if err != nil {
		s.recordToolCall(ctx, tool, "error")
		return s.errorResult(tool, args.Project, err), HybridSearchResult{}, nil
	}

	items := make([]hybridSearchResultItem, len(searchResult.Results))
	for i, r := range searchResult.Results {
		items[i] = hybridSearchResultItem{
			Kind:           r.Doc.Kind,
			ID:             r.Doc.ID,
			Content:        r.Doc.Content,
			RRFScore:       r.RRFScore,
			FinalScore:     r.FinalScore,
			MemoryStrength: r.Doc.MemoryStrength,
			Properties:     r.Doc.Metadata,
			ProjectID:      args.Project,
		}
	}

	result := HybridSearchResult{
		Results:              items,
		SemanticResultsCount: searchResult.SemanticResultCount,
		KeywordResultsCount:  searchResult.KeywordResultCount,
		GraphResultsCount:    searchResult.GraphResultCount,
		AppliedWeights:       searchResult.AppliedWeights,
		AppliedFilters:       filters,
		Status:               "success",
		Metadata:             withMetadata(args.Project),
		ProjectID:            args.Project,
	}
	s.recordToolCall(ctx, tool, "success")
	return s.textResult(result), result, nil
}
