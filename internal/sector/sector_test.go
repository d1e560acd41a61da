package sector

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		relation string
		props    map[string]any
		want     Sector
	}{
		{"emotional wins over relation", "LEARNED", map[string]any{"emotional_valence": "positive"}, Emotional},
		{"shared experience", "ANY", map[string]any{"context_type": "shared_experience"}, Episodic},
		{"learned", "LEARNED", nil, Procedural},
		{"can do", "CAN_DO", nil, Procedural},
		{"reflects", "REFLECTS", nil, Reflective},
		{"realized", "REALIZED", nil, Reflective},
		{"default semantic", "USES", nil, Semantic},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.relation, tc.props); got != tc.want {
				t.Errorf("Classify(%q, %v) = %v, want %v", tc.relation, tc.props, got, tc.want)
			}
		})
	}
}

func TestClassify_Reclassification(t *testing.T) {
	// Spec scenario 3: same edge key, property update reclassifies.
	before := Classify("USES", nil)
	if before != Semantic {
		t.Fatalf("expected semantic before update, got %v", before)
	}
	after := Classify("USES", map[string]any{"emotional_valence": "positive"})
	if after != Emotional {
		t.Fatalf("expected emotional after update, got %v", after)
	}
}
