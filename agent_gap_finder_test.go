package studyforge

import (
	"context"
	"testing"
)

func TestGapFinderClampsAndFiltersInvalidKinds(t *testing.T) {
	state := PageAnalysisState{Page: testPage(1, "Matrices", "A matrix is a rectangular array.")}
	provider := constChat(`{"gaps":[
		{"concept":"determinant","gap_kind":"PREREQUISITE","priority":9},
		{"concept":"","gap_kind":"example","priority":3},
		{"concept":"rank","gap_kind":"not-a-real-kind","priority":2},
		{"concept":"trace","gap_kind":"intuition","priority":0}
	]}`)

	got, err := GapFinder(context.Background(), provider, "test-model", state)
	if err != nil {
		t.Fatalf("GapFinder: %v", err)
	}

	if len(got.Gaps) != 2 {
		t.Fatalf("len(Gaps) = %d, want 2 (empty concept and invalid gap_kind dropped): %+v", len(got.Gaps), got.Gaps)
	}

	byConcept := make(map[string]KnowledgeGap)
	for _, g := range got.Gaps {
		byConcept[g.Concept] = g
	}

	if g, ok := byConcept["determinant"]; !ok || g.Priority != 5 {
		t.Errorf("determinant priority = %+v, want clamped to 5", g)
	}
	if g, ok := byConcept["trace"]; !ok || g.Priority != 1 {
		t.Errorf("trace priority = %+v, want clamped to 1", g)
	}
	if g, ok := byConcept["determinant"]; ok && g.GapKind != GapPrerequisite {
		t.Errorf("gap_kind not lowercased: %q", g.GapKind)
	}
}

func TestGapFinderCapsAtFive(t *testing.T) {
	state := PageAnalysisState{Page: testPage(1, "x", "y")}
	provider := constChat(`{"gaps":[
		{"concept":"a","gap_kind":"example","priority":5},
		{"concept":"b","gap_kind":"example","priority":5},
		{"concept":"c","gap_kind":"example","priority":5},
		{"concept":"d","gap_kind":"example","priority":5},
		{"concept":"e","gap_kind":"example","priority":5},
		{"concept":"f","gap_kind":"example","priority":5}
	]}`)

	got, err := GapFinder(context.Background(), provider, "test-model", state)
	if err != nil {
		t.Fatalf("GapFinder: %v", err)
	}
	if len(got.Gaps) != maxKnowledgeGaps {
		t.Errorf("len(Gaps) = %d, want %d", len(got.Gaps), maxKnowledgeGaps)
	}
}
