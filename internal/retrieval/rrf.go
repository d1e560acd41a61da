package retrieval

import "sort"

// DefaultRRFK is the standard literature value for reciprocal-rank fusion,
// used when a caller doesn't have a configured COGMEM_RRF_K.
const DefaultRRFK = 60

// Hit is one ranked result from a single retrieval channel, rank-ordered
// (best first) by the channel itself.
type Hit struct {
	DocID string
	Doc   Doc
}

// Doc carries the fields common to every document type fusable across
// channels (insight, node, episode) — spec §4.G's memory_strength
// final-score multiplier applies uniformly regardless of source.
type Doc struct {
	Kind           string // "insight", "node", or "episode"
	ID             string
	Content        string
	MemoryStrength float64 // 1.0 for kinds without a memory_strength field (nodes)
	Metadata       map[string]any
}

// FusedResult is one document after RRF fusion across channels.
type FusedResult struct {
	Doc        Doc
	RRFScore   float64 // the raw weighted-reciprocal-rank sum, preserved separately
	FinalScore float64 // RRFScore * Doc.MemoryStrength
}

// Fuse implements original_source's rrf_fusion: for each channel, each
// document's rank (1-indexed) contributes weight/(k+rank) to its running
// score; documents present in more than one channel have their
// contributions summed. k is the RRF constant (config.Config.RRFK,
// overridable via COGMEM_RRF_K; pass DefaultRRFK absent a configured
// value). Channels absent entirely (nil slice, e.g. a degraded channel per
// spec §7) contribute nothing. Returns results sorted by FinalScore
// descending; an all-empty input returns an empty (non-nil) slice, never
// an error.
func Fuse(semantic, keyword, graph []Hit, weights Weights, k int) []FusedResult {
	merged := make(map[string]*FusedResult)

	accumulate := func(hits []Hit, weight float64) {
		for rank, hit := range hits {
			score := weight / (float64(k) + float64(rank+1))
			if existing, ok := merged[hit.DocID]; ok {
				existing.RRFScore += score
			} else {
				merged[hit.DocID] = &FusedResult{Doc: hit.Doc, RRFScore: score}
			}
		}
	}

	accumulate(semantic, weights.Semantic)
	accumulate(keyword, weights.Keyword)
	accumulate(graph, weights.Graph)

	results := make([]FusedResult, 0, len(merged))
	for _, r := range merged {
		strength := r.Doc.MemoryStrength
		if strength == 0 {
			strength = 1.0
		}
		r.FinalScore = r.RRFScore * strength
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	return results
}
