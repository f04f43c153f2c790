//go:build cgo

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.EmbeddingDim() != 4 {
		t.Fatalf("expected embedding dim 4, got %d", s.EmbeddingDim())
	}
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

// ---------------------------------------------------------------------------
// Document CRUD
// ---------------------------------------------------------------------------

func sampleDoc(id, hash string) DocumentRow {
	return DocumentRow{
		ID:          id,
		FileName:    "lecture01.pdf",
		FileKind:    "pdf",
		ContentHash: hash,
		PagesJSON:   `[{"page_number":1,"title":"Intro"}]`,
	}
}

func TestUpsertAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("doc-1", "hash-abc")
	row, existed, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("upserting document: %v", err)
	}
	if existed {
		t.Fatal("expected new document, got existed=true")
	}

	got, err := s.GetDocument(ctx, row.ID)
	if err != nil {
		t.Fatalf("getting document by id: %v", err)
	}
	if got.FileName != "lecture01.pdf" {
		t.Errorf("filename = %q, want lecture01.pdf", got.FileName)
	}
	if got.ContentHash != "hash-abc" {
		t.Errorf("content_hash = %q, want hash-abc", got.ContentHash)
	}
}

func TestUpsertDocumentDedupesByContentHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, existed, err := s.UpsertDocument(ctx, sampleDoc("doc-1", "same-hash"))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if existed {
		t.Fatal("first upsert should not report existed")
	}

	second, existed, err := s.UpsertDocument(ctx, sampleDoc("doc-2", "same-hash"))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if !existed {
		t.Fatal("re-ingesting the same content hash should report existed=true")
	}
	if second.ID != first.ID {
		t.Fatalf("expected dedup to return original id %q, got %q", first.ID, second.ID)
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("listing documents: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected exactly one stored document after dedup, got %d", len(docs))
	}
}

func TestGetDocumentByHashNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetDocumentByHash(ctx, "nope")
	if err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestUpdateGlobalAnalysis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, _, err := s.UpsertDocument(ctx, sampleDoc("doc-1", "hash-1"))
	if err != nil {
		t.Fatalf("upserting document: %v", err)
	}

	if err := s.UpdateGlobalAnalysis(ctx, doc.ID, `{"main_topic":"graphs"}`); err != nil {
		t.Fatalf("updating global analysis: %v", err)
	}

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("getting document: %v", err)
	}
	if !got.GlobalAnalysisJSON.Valid || got.GlobalAnalysisJSON.String != `{"main_topic":"graphs"}` {
		t.Errorf("global_analysis = %+v, want the written JSON", got.GlobalAnalysisJSON)
	}
}

func TestUpdateGlobalAnalysisUnknownDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpdateGlobalAnalysis(ctx, "missing", `{}`)
	if err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows for unknown document, got %v", err)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, _, err := s.UpsertDocument(ctx, sampleDoc("doc-1", "hash-1"))
	if err != nil {
		t.Fatalf("upserting document: %v", err)
	}

	if err := s.UpsertPageAnalysis(ctx, samplePageAnalysis(doc.ID, 1)); err != nil {
		t.Fatalf("upserting page analysis: %v", err)
	}
	if _, err := s.UpsertPageChunks(ctx, doc.ID, 1, []string{"a chunk of page text."}); err != nil {
		t.Fatalf("upserting page chunks: %v", err)
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("deleting document: %v", err)
	}

	if _, err := s.GetDocument(ctx, doc.ID); err != sql.ErrNoRows {
		t.Errorf("expected document gone, got err=%v", err)
	}
	if _, err := s.GetPageAnalysis(ctx, doc.ID, 1); err != sql.ErrNoRows {
		t.Errorf("expected page analysis gone, got err=%v", err)
	}
}

// ---------------------------------------------------------------------------
// Page analysis cache
// ---------------------------------------------------------------------------

func samplePageAnalysis(docID string, page int) PageAnalysisRow {
	return PageAnalysisRow{
		DocumentID:      docID,
		PageNumber:      page,
		ClustersJSON:    `[]`,
		Notes:           "some markdown notes",
		GapsJSON:        `[]`,
		ExpansionsJSON:  `[]`,
		ReferencesJSON:  `[]`,
		CheckResultJSON: `{"status":"pass","issues":[],"suggestions":[]}`,
		FinalNotes:      "some markdown notes",
		RevisionCount:   0,
	}
}

func TestUpsertPageAnalysisThenGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, _, _ := s.UpsertDocument(ctx, sampleDoc("doc-1", "hash-1"))

	if err := s.UpsertPageAnalysis(ctx, samplePageAnalysis(doc.ID, 1)); err != nil {
		t.Fatalf("upserting page analysis: %v", err)
	}

	got, err := s.GetPageAnalysis(ctx, doc.ID, 1)
	if err != nil {
		t.Fatalf("getting page analysis: %v", err)
	}
	if got.Notes != "some markdown notes" {
		t.Errorf("notes = %q", got.Notes)
	}
}

func TestUpsertPageAnalysisOverwritesOnForceRecompute(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, _, _ := s.UpsertDocument(ctx, sampleDoc("doc-1", "hash-1"))

	first := samplePageAnalysis(doc.ID, 1)
	if err := s.UpsertPageAnalysis(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	revised := first
	revised.RevisionCount = 1
	revised.FinalNotes = "revised notes"
	if err := s.UpsertPageAnalysis(ctx, revised); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetPageAnalysis(ctx, doc.ID, 1)
	if err != nil {
		t.Fatalf("getting page analysis: %v", err)
	}
	if got.RevisionCount != 1 || got.FinalNotes != "revised notes" {
		t.Errorf("got %+v, want overwritten revision_count=1 final_notes=revised notes", got)
	}

	list, err := s.ListPageAnalyses(ctx, doc.ID)
	if err != nil {
		t.Fatalf("listing page analyses: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one row after overwrite, got %d", len(list))
	}
}

func TestGetPageAnalysisCacheMiss(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, _, _ := s.UpsertDocument(ctx, sampleDoc("doc-1", "hash-1"))
	_, err := s.GetPageAnalysis(ctx, doc.ID, 99)
	if err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows on cache miss, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Retrieval log
// ---------------------------------------------------------------------------

func TestLogRetrieval(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, _, _ := s.UpsertDocument(ctx, sampleDoc("doc-1", "hash-1"))
	if err := s.LogRetrieval(ctx, doc.ID, 1, "eigenvalues", "encyclopedia", 3, false); err != nil {
		t.Fatalf("logging retrieval: %v", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM retrieval_log").Scan(&count); err != nil {
		t.Fatalf("counting retrieval_log rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one retrieval_log row, got %d", count)
	}
}

// ---------------------------------------------------------------------------
// Closed store rejects writes
// ---------------------------------------------------------------------------

func TestClosedStoreRejectsWrites(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	s.Close()

	_, _, err = s.UpsertDocument(context.Background(), sampleDoc("doc-1", "hash-1"))
	if err == nil {
		t.Fatal("expected error writing to a closed store")
	}
}
