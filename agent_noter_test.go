package studyforge

import (
	"context"
	"testing"

	"github.com/bbiangul/studyforge/llm"
)

func TestNoterProducesNotesAndStructure(t *testing.T) {
	state := PageAnalysisState{Page: testPage(3, "Vectors", "A vector has magnitude and direction.")}

	provider := &fakeProvider{chatFn: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		if req.ResponseFormat == "json_object" {
			return &llm.ChatResponse{Content: `{"page_number":3,"title":"Vectors","main_concepts":["vector"],"key_points":["has direction"]}`}, nil
		}
		return &llm.ChatResponse{Content: "## Vectors\n- vector\nFocus on direction and magnitude."}, nil
	}}

	got, err := Noter(context.Background(), provider, "test-model", state)
	if err != nil {
		t.Fatalf("Noter: %v", err)
	}
	if got.Notes == "" {
		t.Error("Notes is empty, want the free-text notes call's content")
	}
	if got.Structure.Title != "Vectors" || len(got.Structure.MainConcepts) != 1 {
		t.Errorf("Structure = %+v, want decoded from the structured call", got.Structure)
	}
}

func TestNoterTruncatesNotes(t *testing.T) {
	state := PageAnalysisState{Page: testPage(1, "x", "y")}
	long := ""
	for i := 0; i < 100; i++ {
		long += "word "
	}

	provider := &fakeProvider{chatFn: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		if req.ResponseFormat == "json_object" {
			return &llm.ChatResponse{Content: `{"page_number":1,"title":"x","main_concepts":[],"key_points":[]}`}, nil
		}
		return &llm.ChatResponse{Content: long}, nil
	}}

	got, err := Noter(context.Background(), provider, "test-model", state)
	if err != nil {
		t.Fatalf("Noter: %v", err)
	}
	if len(got.Notes) > notesMaxChars {
		t.Errorf("len(Notes) = %d, want <= %d", len(got.Notes), notesMaxChars)
	}
}

func TestNoterZeroesStructureOnSecondCallParseFailure(t *testing.T) {
	state := PageAnalysisState{Page: testPage(2, "Intro", "text")}

	provider := &fakeProvider{chatFn: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		if req.ResponseFormat == "json_object" {
			return &llm.ChatResponse{Content: "garbage, still garbage after nudge"}, nil
		}
		return &llm.ChatResponse{Content: "## Intro\nnotes"}, nil
	}}

	got, err := Noter(context.Background(), provider, "test-model", state)
	if err != nil {
		t.Fatalf("Noter should degrade the structured call, not error: %v", err)
	}
	if got.Notes == "" {
		t.Error("Notes should still be set from the successful free-text call")
	}
	if got.Structure.PageNumber != 2 || got.Structure.Title != "Intro" {
		t.Errorf("Structure = %+v, want zeroed-but-seeded fallback from the page", got.Structure)
	}
	if len(got.Structure.MainConcepts) != 0 {
		t.Errorf("Structure.MainConcepts = %+v, want empty on parse failure", got.Structure.MainConcepts)
	}
}

func TestNoterPropagatesFirstCallUpstreamError(t *testing.T) {
	state := PageAnalysisState{Page: testPage(1, "x", "y")}
	provider := failChat(ErrFatalStorage)

	_, err := Noter(context.Background(), provider, "test-model", state)
	if err != ErrFatalStorage {
		t.Errorf("err = %v, want ErrFatalStorage", err)
	}
}
