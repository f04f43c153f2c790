package studyforge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bbiangul/studyforge/retrieval"
	"github.com/bbiangul/studyforge/store"
)

// fakeSource is a retrieval.Source stub for exercising the Router without
// any network access.
type fakeSource struct {
	name      string
	available bool
	hits      []retrieval.Hit
}

func (f *fakeSource) Name() string                        { return f.name }
func (f *fakeSource) Probe(ctx context.Context) bool       { return f.available }
func (f *fakeSource) Search(ctx context.Context, query string, max int) ([]retrieval.Hit, error) {
	if max < len(f.hits) {
		return f.hits[:max], nil
	}
	return f.hits, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "retriever.db"), 3)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRetrieverEarlyExitsWithoutHighPriorityGaps(t *testing.T) {
	s := newTestStore(t)
	state := PageAnalysisState{
		Page: testPage(1, "x", "y"),
		Gaps: []KnowledgeGap{{Concept: "low", Priority: 2}},
	}
	embed := constChat("")

	got, err := Retriever(context.Background(), embed, s, nil, RetrievalConfig{MaxResults: 3}, "doc-1", state)
	if err != nil {
		t.Fatalf("Retriever: %v", err)
	}
	if got.References != nil {
		t.Errorf("References = %+v, want nil on early exit", got.References)
	}
}

func TestRetrieverFindsLocalHits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.UpsertDocument(ctx, store.DocumentRow{ID: "doc-1", FileName: "d.json", FileKind: "deck"}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	chunks, err := s.UpsertPageChunks(ctx, "doc-1", 2, []string{"Eigenvectors satisfy Av = lambda v for a scalar lambda."})
	if err != nil {
		t.Fatalf("UpsertPageChunks: %v", err)
	}
	for _, c := range chunks {
		if err := s.InsertChunkEmbedding(ctx, c.ID, []float32{0.1, 0.2, 0.3}); err != nil {
			t.Fatalf("InsertChunkEmbedding: %v", err)
		}
	}

	state := PageAnalysisState{
		Page: testPage(1, "Eigen", "intro"),
		Gaps: []KnowledgeGap{{Concept: "eigenvector", Priority: 5, RelatedConcepts: []string{"lambda"}}},
	}
	embed := &fakeProvider{embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{0.1, 0.2, 0.3}}, nil
	}}

	got, err := Retriever(ctx, embed, s, nil, RetrievalConfig{MaxResults: 3, MinScore: -1}, "doc-1", state)
	if err != nil {
		t.Fatalf("Retriever: %v", err)
	}
	if len(got.References) == 0 {
		t.Fatal("expected at least one local reference")
	}
	if got.References[0].SourceTag != "local" {
		t.Errorf("SourceTag = %q, want local", got.References[0].SourceTag)
	}
}

func TestRetrieverFallsThroughToRouterWhenLocalInsufficient(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.UpsertDocument(ctx, store.DocumentRow{ID: "doc-1", FileName: "d.json", FileKind: "deck"}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	src := &fakeSource{name: "web", available: true, hits: []retrieval.Hit{
		{Title: "External result", URL: "https://example.com/a", SourceTag: "web", Snippet: "snippet"},
	}}
	router := retrieval.NewRouter(ctx, []retrieval.Source{src}, nil)

	state := PageAnalysisState{
		Page: testPage(1, "Eigen", "intro"),
		Gaps: []KnowledgeGap{{Concept: "eigenvector", Priority: 5}},
	}
	embed := &fakeProvider{embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{0.1, 0.2, 0.3}}, nil
	}}

	got, err := Retriever(ctx, embed, s, router, RetrievalConfig{MaxResults: 3, MinScore: -1, LocalRAGPriority: false}, "doc-1", state)
	if err != nil {
		t.Fatalf("Retriever: %v", err)
	}
	var sawExternal bool
	for _, r := range got.References {
		if r.SourceTag == "web" {
			sawExternal = true
		}
	}
	if !sawExternal {
		t.Errorf("References = %+v, want at least one external hit from the router", got.References)
	}
}

func TestRetrieverDedupsByURLAndCapsAtMaxResults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.UpsertDocument(ctx, store.DocumentRow{ID: "doc-1", FileName: "d.json", FileKind: "deck"}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	src := &fakeSource{name: "web", available: true, hits: []retrieval.Hit{
		{Title: "A", URL: "https://example.com/a", SourceTag: "web", Snippet: "s"},
		{Title: "A dup", URL: "https://example.com/a", SourceTag: "web", Snippet: "s"},
		{Title: "B", URL: "https://example.com/b", SourceTag: "web", Snippet: "s"},
		{Title: "C", URL: "https://example.com/c", SourceTag: "web", Snippet: "s"},
	}}
	router := retrieval.NewRouter(ctx, []retrieval.Source{src}, nil)

	state := PageAnalysisState{
		Page: testPage(1, "x", "y"),
		Gaps: []KnowledgeGap{{Concept: "concept", Priority: 5}},
	}
	embed := &fakeProvider{embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, ErrFatalStorage // force the local search to degrade to substring/empty, pushing work to the router
	}}

	cfg := RetrievalConfig{MaxResults: 2, MinScore: -1}
	got, err := Retriever(ctx, embed, s, router, cfg, "doc-1", state)
	if err != nil {
		t.Fatalf("Retriever: %v", err)
	}
	if len(got.References) > cfg.MaxResults {
		t.Errorf("len(References) = %d, want <= %d", len(got.References), cfg.MaxResults)
	}
	seen := make(map[string]bool)
	for _, r := range got.References {
		if seen[r.URL] {
			t.Errorf("duplicate URL %q in References", r.URL)
		}
		seen[r.URL] = true
	}
}

func TestHighPriorityGapsFiltersByThreshold(t *testing.T) {
	gaps := []KnowledgeGap{
		{Concept: "a", Priority: 5},
		{Concept: "b", Priority: 3},
		{Concept: "c", Priority: 4},
	}
	got := highPriorityGaps(gaps)
	if len(got) != 2 {
		t.Fatalf("len(highPriorityGaps) = %d, want 2", len(got))
	}
}

func TestBuildRetrievalQueryMergesTopTwoRelated(t *testing.T) {
	gap := KnowledgeGap{Concept: "eigenvector", RelatedConcepts: []string{"lambda", "matrix", "rank"}}
	got := buildRetrievalQuery(gap)
	if got != "eigenvector lambda matrix" {
		t.Errorf("buildRetrievalQuery = %q, want top 2 related concepts merged", got)
	}
}
