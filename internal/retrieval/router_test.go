package retrieval_test

import (
	"testing"

	"github.com/ethrdev/cogmem/internal/retrieval"
)

func TestRouteQuery_RelationalKeywordSelectsGraphWeightedProfile(t *testing.T) {
	w := retrieval.RouteQuery("who depends on the billing service?")
	want := retrieval.RelationalWeights()
	if w != want {
		t.Fatalf("got %+v, want %+v", w, want)
	}
}

func TestRouteQuery_DefaultProfileForNonRelationalQuery(t *testing.T) {
	w := retrieval.RouteQuery("what did we decide about the release date")
	want := retrieval.DefaultWeights()
	if w != want {
		t.Fatalf("got %+v, want %+v", w, want)
	}
}

func TestNormalizeWeights_RescalesNonUnitSum(t *testing.T) {
	got := retrieval.NormalizeWeights(retrieval.Weights{Semantic: 2, Keyword: 1, Graph: 1})
	want := retrieval.Weights{Semantic: 0.5, Keyword: 0.25, Graph: 0.25}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestNormalizeWeights_LeavesUnitSumUnchanged(t *testing.T) {
	in := retrieval.Weights{Semantic: 0.6, Keyword: 0.2, Graph: 0.2}
	if got := retrieval.NormalizeWeights(in); got != in {
		t.Fatalf("got %+v, want unchanged %+v", got, in)
	}
}

func TestNormalizeWeights_ZeroSumFallsBackToDefault(t *testing.T) {
	got := retrieval.NormalizeWeights(retrieval.Weights{})
	if got != retrieval.DefaultWeights() {
		t.Fatalf("got %+v, want default weights", got)
	}
}
