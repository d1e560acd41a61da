// Package retrieval implements the hybrid retrieval engine: entity
// extraction, query routing, three-channel fan-out (semantic, keyword,
// graph), and reciprocal-rank fusion. Grounded on spec §4.G and
// original_source/mcp_server/tools/__init__.py's rrf_fusion,
// semantic_search, and keyword_search.
package retrieval

import "strings"

// Weights are the three RRF channel weights, normalized to sum to 1.
type Weights struct {
	Semantic float64
	Keyword  float64
	Graph    float64
}

// DefaultWeights is the non-relational weight profile (spec §4.G).
func DefaultWeights() Weights {
	return Weights{Semantic: 0.6, Keyword: 0.2, Graph: 0.2}
}

// RelationalWeights emphasizes the graph channel for queries about
// relationships between entities (spec §4.G).
func RelationalWeights() Weights {
	return Weights{Semantic: 0.4, Keyword: 0.2, Graph: 0.4}
}

// relationalKeywords flags a query as relational when it contains any of
// these tokens (spec: "uses", "depends on", "related to", "who", "connects").
var relationalKeywords = []string{
	"uses", "depends on", "related to", "relates to", "who", "connects",
	"connected to", "relationship", "relation between",
}

// RouteQuery classifies query as relational or default and returns the
// matching weight profile. Classification is case-insensitive substring
// matching against relationalKeywords.
func RouteQuery(query string) Weights {
	lower := strings.ToLower(query)
	for _, kw := range relationalKeywords {
		if strings.Contains(lower, kw) {
			return RelationalWeights()
		}
	}
	return DefaultWeights()
}

// NormalizeWeights rescales w to sum to 1 when it doesn't already
// (within tolerance), per spec §4.G: "any supplied weights that don't sum
// to 1 are normalized (never rejected)". A zero-sum input falls back to
// DefaultWeights.
func NormalizeWeights(w Weights) Weights {
	total := w.Semantic + w.Keyword + w.Graph
	if total <= 0 {
		return DefaultWeights()
	}
	if absDiff(total, 1.0) < 1e-9 {
		return w
	}
	return Weights{
		Semantic: w.Semantic / total,
		Keyword:  w.Keyword / total,
		Graph:    w.Graph / total,
	}
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
