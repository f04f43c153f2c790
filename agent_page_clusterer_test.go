package studyforge

import (
	"context"
	"strings"
	"testing"
)

func TestPageClustererClampsDifficultyAndDropsEmptyConcept(t *testing.T) {
	state := PageAnalysisState{Page: testPage(1, "Eigenvalues", "A scalar lambda such that Av = lambda v.")}
	provider := constChat(`{"clusters":[
		{"concept":"eigenvector","difficulty":9,"why_difficult":"abstract","related_concepts":["matrix"]},
		{"concept":"","difficulty":3,"why_difficult":"n/a","related_concepts":[]},
		{"concept":"determinant","difficulty":0,"why_difficult":"notation","related_concepts":[]}
	]}`)

	got, err := PageClusterer(context.Background(), provider, "test-model", state)
	if err != nil {
		t.Fatalf("PageClusterer: %v", err)
	}
	if len(got.Clusters) != 2 {
		t.Fatalf("len(Clusters) = %d, want 2 (empty concept dropped): %+v", len(got.Clusters), got.Clusters)
	}

	byConcept := make(map[string]ConceptCluster)
	for _, c := range got.Clusters {
		byConcept[c.Concept] = c
	}
	if c, ok := byConcept["eigenvector"]; !ok || c.Difficulty != 5 {
		t.Errorf("eigenvector difficulty = %+v, want clamped to 5", c)
	}
	if c, ok := byConcept["determinant"]; !ok || c.Difficulty != 1 {
		t.Errorf("determinant difficulty = %+v, want clamped to 1", c)
	}
}

func TestPageClustererCapsAtTen(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"clusters":[`)
	for i := 0; i < 12; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"concept":"c","difficulty":3,"why_difficult":"x","related_concepts":[]}`)
	}
	sb.WriteString(`]}`)

	state := PageAnalysisState{Page: testPage(1, "x", "y")}
	provider := constChat(sb.String())

	got, err := PageClusterer(context.Background(), provider, "test-model", state)
	if err != nil {
		t.Fatalf("PageClusterer: %v", err)
	}
	if len(got.Clusters) != maxConceptClusters {
		t.Errorf("len(Clusters) = %d, want %d", len(got.Clusters), maxConceptClusters)
	}
}

func TestPageClustererDegradesOnParseFailure(t *testing.T) {
	state := PageAnalysisState{Page: testPage(1, "x", "y")}
	provider := constChat("not json, still not json after nudge")

	got, err := PageClusterer(context.Background(), provider, "test-model", state)
	if err != nil {
		t.Fatalf("PageClusterer should degrade, not error: %v", err)
	}
	if got.Clusters != nil {
		t.Errorf("Clusters = %+v, want nil on parse failure", got.Clusters)
	}
}

func TestPageClustererStampsGlobalContext(t *testing.T) {
	state := PageAnalysisState{
		Page:   testPage(1, "x", "y"),
		Global: &GlobalAnalysis{MainTopic: "linear algebra"},
	}
	provider := constChat(`{"clusters":[{"concept":"rank","difficulty":3,"why_difficult":"x","related_concepts":[]}]}`)

	got, err := PageClusterer(context.Background(), provider, "test-model", state)
	if err != nil {
		t.Fatalf("PageClusterer: %v", err)
	}
	if len(got.Clusters) != 1 || got.Clusters[0].GlobalContext != "linear algebra" {
		t.Errorf("Clusters = %+v, want GlobalContext stamped from state.Global", got.Clusters)
	}
}

func TestGlobalContextSnippetEmptyWithoutGlobal(t *testing.T) {
	if got := globalContextSnippet(nil); got != "" {
		t.Errorf("globalContextSnippet(nil) = %q, want empty", got)
	}
}

func TestGlobalContextSnippetIncludesMainTopic(t *testing.T) {
	got := globalContextSnippet(&GlobalAnalysis{MainTopic: "graph theory", KnowledgeFlow: "intro to advanced"})
	if !strings.Contains(got, "graph theory") {
		t.Errorf("globalContextSnippet = %q, want to mention main topic", got)
	}
}
