package ief

import (
	"testing"
	"time"
)

func TestEngine_ComposeClampAndTransparency(t *testing.T) {
	e := NewEngine(nil)
	now := time.Now()
	score := e.Compose("edge-1", EdgeDecayInput{Properties: map[string]any{"edge_type": "constitutive"}}, nil, nil, now)

	if score.Components.ConstitutiveWeight != 1.5 {
		t.Errorf("constitutive weight = %v, want 1.5 (W_min guarantee)", score.Components.ConstitutiveWeight)
	}
	if score.IEFScore > 1.5 || score.IEFScore < 0 {
		t.Errorf("IEF score %v out of clamp range [0, 1.5]", score.IEFScore)
	}
	if score.QueryID == "" {
		t.Error("expected non-empty feedback query id")
	}
	if score.Weights != DefaultWeights() {
		t.Errorf("weights = %+v, want defaults", score.Weights)
	}
}

func TestEngine_NuancePenaltyApplied(t *testing.T) {
	e := NewEngine(nil)
	e.SetPendingNuanceEdges(map[string]bool{"edge-X": true})

	now := time.Now()
	in := EdgeDecayInput{Properties: map[string]any{}}
	withPenalty := e.Compose("edge-X", in, nil, nil, now)
	withoutPenalty := e.Compose("edge-Y", in, nil, nil, now)

	if withPenalty.Components.NuancePenalty != 0.1 {
		t.Errorf("expected nuance penalty 0.1, got %v", withPenalty.Components.NuancePenalty)
	}
	if withoutPenalty.Components.NuancePenalty != 0 {
		t.Errorf("expected no nuance penalty, got %v", withoutPenalty.Components.NuancePenalty)
	}
	if withPenalty.IEFScore >= withoutPenalty.IEFScore {
		t.Error("penalized edge should score lower than unpenalized identical edge")
	}
}

func TestEngine_RecalibrationKeepsWeightsValid(t *testing.T) {
	e := NewEngine(NoopRecalibration{})
	for i := 0; i < recalibrationThreshold; i++ {
		e.RecordFeedback(true, "")
	}
	w := e.GetWeights()
	if !validWeights(w) {
		t.Errorf("weights invalid after recalibration: %+v", w)
	}
	if e.TotalFeedback() != recalibrationThreshold {
		t.Errorf("TotalFeedback = %d, want %d", e.TotalFeedback(), recalibrationThreshold)
	}
}

type rejectingStrategy struct{}

func (rejectingStrategy) Recalibrate(current Weights, helpful, total int) Weights {
	// Proposes invalid weights; Engine must reject and keep current.
	return Weights{Relevance: 2, Similarity: 2, Recency: 2, Constitutive: 2}
}

func TestEngine_RejectsInvalidRecalibration(t *testing.T) {
	e := NewEngine(rejectingStrategy{})
	before := e.GetWeights()
	for i := 0; i < recalibrationThreshold; i++ {
		e.RecordFeedback(true, "")
	}
	after := e.GetWeights()
	if after != before {
		t.Errorf("weights changed despite invalid recalibration proposal: %+v -> %+v", before, after)
	}
}
