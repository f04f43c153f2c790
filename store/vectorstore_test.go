//go:build cgo

package store

import (
	"context"
	"strings"
	"testing"
)

func TestChunkPageTextSplitsOnSentenceBoundaries(t *testing.T) {
	text := strings.Repeat("Eigenvalues determine the long-run behavior of a linear system. ", 40)
	chunks := ChunkPageText(text, 50, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected text longer than maxTokens to split into multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Error("got an empty chunk")
		}
	}
}

func TestChunkPageTextEmptyInput(t *testing.T) {
	if chunks := ChunkPageText("   ", 100, 10); chunks != nil {
		t.Errorf("expected nil chunks for blank input, got %v", chunks)
	}
}

func TestChunkPageTextOverlapCarriesTrailingSentences(t *testing.T) {
	text := "First sentence here. Second sentence here. Third sentence here. Fourth sentence here."
	chunks := ChunkPageText(text, 8, 4)
	if len(chunks) < 2 {
		t.Fatalf("expected split, got %d chunk(s): %v", len(chunks), chunks)
	}
	// The overlap sentence from the end of chunk N should reappear at the
	// start of chunk N+1.
	last := strings.Split(chunks[0], ". ")
	firstOfNext := strings.Split(chunks[1], ". ")
	if len(last) == 0 || len(firstOfNext) == 0 {
		t.Fatal("expected non-empty sentence splits")
	}
	if strings.TrimSuffix(last[len(last)-1], ".") != firstOfNext[0] {
		t.Errorf("expected chunk 1 to start with chunk 0's last sentence, got %q then %q", chunks[0], chunks[1])
	}
}

func TestUpsertPageChunksIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, _ := s.UpsertDocument(ctx, sampleDoc("doc-1", "hash-1"))

	texts := []string{"first chunk", "second chunk"}
	first, err := s.UpsertPageChunks(ctx, doc.ID, 1, texts)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := s.UpsertPageChunks(ctx, doc.ID, 1, texts)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected same chunk count, got %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d: expected stable id across re-upsert, got %d then %d", i, first[i].ID, second[i].ID)
		}
	}
}

func TestVectorSearchDedupesPerPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, _ := s.UpsertDocument(ctx, sampleDoc("doc-1", "hash-1"))

	chunks, err := s.UpsertPageChunks(ctx, doc.ID, 1, []string{"about eigenvalues", "about eigenvectors too"})
	if err != nil {
		t.Fatalf("upserting chunks: %v", err)
	}

	// Two near-identical embeddings on the same page; only the best should
	// survive dedup.
	if err := s.InsertChunkEmbedding(ctx, chunks[0].ID, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("inserting embedding 0: %v", err)
	}
	if err := s.InsertChunkEmbedding(ctx, chunks[1].ID, []float32{0.9, 0.1, 0, 0}); err != nil {
		t.Fatalf("inserting embedding 1: %v", err)
	}

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, 5, 0.0, "")
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one deduped hit for page 1, got %d", len(hits))
	}
	if hits[0].ChunkID != chunks[0].ID {
		t.Errorf("expected the exact-match chunk to win dedup, got chunk %d", hits[0].ChunkID)
	}
}

func TestVectorSearchAppliesMinScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, _ := s.UpsertDocument(ctx, sampleDoc("doc-1", "hash-1"))

	chunks, err := s.UpsertPageChunks(ctx, doc.ID, 1, []string{"unrelated content"})
	if err != nil {
		t.Fatalf("upserting chunks: %v", err)
	}
	if err := s.InsertChunkEmbedding(ctx, chunks[0].ID, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("inserting embedding: %v", err)
	}

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, 5, 0.9, "")
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected orthogonal vector below min_score to be excluded, got %d hits", len(hits))
	}
}

func TestSubstringSearchDegradePath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, _ := s.UpsertDocument(ctx, sampleDoc("doc-1", "hash-1"))

	if _, err := s.UpsertPageChunks(ctx, doc.ID, 1, []string{"the spectral theorem applies to symmetric matrices"}); err != nil {
		t.Fatalf("upserting chunks: %v", err)
	}

	hits, err := s.SubstringSearch(ctx, "spectral theorem", "", 10)
	if err != nil {
		t.Fatalf("substring search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one substring hit, got %d", len(hits))
	}
}

// TestLikeSearchReturnsZeroScore exercises the LIKE-scan fallback directly
// (bypassing FTS5, which would otherwise satisfy this query first): it must
// report score=0.0 for every hit, since a substring match carries no
// relevance ranking (spec.md §4.2).
func TestLikeSearchReturnsZeroScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, _ := s.UpsertDocument(ctx, sampleDoc("doc-1", "hash-1"))

	if _, err := s.UpsertPageChunks(ctx, doc.ID, 1, []string{"the spectral theorem applies to symmetric matrices"}); err != nil {
		t.Fatalf("upserting chunks: %v", err)
	}

	hits, err := s.likeSearch(ctx, "spectral theorem", "", 10)
	if err != nil {
		t.Fatalf("like search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one LIKE hit, got %d", len(hits))
	}
	if hits[0].Score != 0.0 {
		t.Errorf("likeSearch hit Score = %v, want 0.0 (spec.md §4.2 degrade-path contract)", hits[0].Score)
	}
}

func TestDeleteChunksByDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, _ := s.UpsertDocument(ctx, sampleDoc("doc-1", "hash-1"))

	chunks, err := s.UpsertPageChunks(ctx, doc.ID, 1, []string{"chunk one"})
	if err != nil {
		t.Fatalf("upserting chunks: %v", err)
	}
	if err := s.InsertChunkEmbedding(ctx, chunks[0].ID, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("inserting embedding: %v", err)
	}

	if err := s.DeleteChunksByDocument(ctx, doc.ID); err != nil {
		t.Fatalf("deleting chunks: %v", err)
	}

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, 5, 0.0, "")
	if err != nil {
		t.Fatalf("vector search after delete: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits after deleting chunks, got %d", len(hits))
	}
}
