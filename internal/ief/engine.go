package ief

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Score is the result of composing an IEF score for one edge, returned in
// full for transparency (components, weights, and a feedback correlation
// handle).
type Score struct {
	IEFScore   float64
	Components Components
	Weights    Weights
	QueryID    string
}

// Components are the four inputs to an IEF score, before weighting.
type Components struct {
	RelevanceScore     float64
	SemanticSimilarity float64
	RecencyBoost       float64
	ConstitutiveWeight float64
	NuancePenalty      float64
}

// RecalibrationStrategy adjusts IEF weights in response to accumulated
// feedback. Per DESIGN NOTES §9, the recalibration policy itself is
// pluggable; the only contractual requirement is that the returned weights
// remain non-negative and sum to 1.
type RecalibrationStrategy interface {
	Recalibrate(current Weights, helpfulCount, totalCount int) Weights
}

// NoopRecalibration leaves weights unchanged. It is the default strategy
// and satisfies the Open Question left unresolved by the source: no
// deterministic update rule is mandated.
type NoopRecalibration struct{}

func (NoopRecalibration) Recalibrate(current Weights, helpfulCount, totalCount int) Weights {
	return current
}

const recalibrationThreshold = 50

// Engine holds the IEF weights and feedback counters as a single stateful
// value, per DESIGN NOTES §9 ("global mutable state"): no package-level
// globals, initialized at startup, with a lifecycle ending at shutdown.
// Safe for concurrent use.
type Engine struct {
	mu                 sync.Mutex
	weights            Weights
	feedbackSinceCalib int
	helpfulSinceCalib  int
	totalFeedback      int
	pendingNuanceEdges map[string]bool
	strategy           RecalibrationStrategy
}

// NewEngine returns an [Engine] with the default weights and the given
// recalibration strategy. A nil strategy defaults to [NoopRecalibration].
func NewEngine(strategy RecalibrationStrategy) *Engine {
	if strategy == nil {
		strategy = NoopRecalibration{}
	}
	return &Engine{
		weights:            DefaultWeights(),
		pendingNuanceEdges: make(map[string]bool),
		strategy:           strategy,
	}
}

// GetWeights returns a copy of the current weights.
func (e *Engine) GetWeights() Weights {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weights
}

// SetPendingNuanceEdges replaces the set of edge IDs referenced by any
// unresolved nuance review (see internal/nuance).
func (e *Engine) SetPendingNuanceEdges(edgeIDs map[string]bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingNuanceEdges = edgeIDs
}

// Compose calculates the full IEF score for one edge. now is passed in
// explicitly (rather than time.Now()) so callers control time for tests.
func (e *Engine) Compose(edgeID string, in EdgeDecayInput, queryEmbedding []float32, lookup func(vectorID int64) ([]float32, bool), now time.Time) Score {
	e.mu.Lock()
	w := e.weights
	nuance := e.pendingNuanceEdges[edgeID]
	e.mu.Unlock()

	relevance := RelevanceScore(in, now)
	similarity := SemanticSimilarity(in, queryEmbedding, lookup)
	recency := RecencyBoost(in.ModifiedAt, now)
	constWeight := constitutiveWeight(in.Properties)

	nuancePenalty := 0.0
	if nuance {
		nuancePenalty = nuancePenaltyAmount
	}

	score := (relevance * w.Relevance) +
		(similarity * w.Similarity) +
		(recency * w.Recency) +
		(constWeight * w.Constitutive) -
		nuancePenalty
	score = clamp(score, 0, 1.5)

	return Score{
		IEFScore: score,
		Components: Components{
			RelevanceScore:     relevance,
			SemanticSimilarity: similarity,
			RecencyBoost:       recency,
			ConstitutiveWeight: constWeight,
			NuancePenalty:      nuancePenalty,
		},
		Weights: w,
		QueryID: uuid.NewString(),
	}
}

// RecordFeedback registers a helpful/unhelpful vote for a previously issued
// query ID. Counts accumulate in-process (DESIGN NOTES §9: persistence
// across restarts is left to the implementer; this Engine does not
// persist). Every 50 accumulated feedbacks triggers a recalibration via the
// configured [RecalibrationStrategy]; the result is re-validated to remain
// non-negative and sum to 1 before being applied.
func (e *Engine) RecordFeedback(helpful bool, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalFeedback++
	e.feedbackSinceCalib++
	if helpful {
		e.helpfulSinceCalib++
	}

	if e.feedbackSinceCalib >= recalibrationThreshold {
		proposed := e.strategy.Recalibrate(e.weights, e.helpfulSinceCalib, e.feedbackSinceCalib)
		if validWeights(proposed) {
			e.weights = proposed
		}
		e.feedbackSinceCalib = 0
		e.helpfulSinceCalib = 0
	}
}

// TotalFeedback returns the lifetime feedback count.
func (e *Engine) TotalFeedback() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFeedback
}

func validWeights(w Weights) bool {
	if w.Relevance < 0 || w.Similarity < 0 || w.Recency < 0 || w.Constitutive < 0 {
		return false
	}
	sum := w.Relevance + w.Similarity + w.Recency + w.Constitutive
	return math.Abs(sum-1.0) < 1e-9
}
