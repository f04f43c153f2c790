package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// DocumentRow is the persisted shape of a document. Pages and
// GlobalAnalysisJSON are opaque serialized JSON blobs: the store has no
// opinion on their structure, only on content-addressed identity
// (SPEC_FULL.md §6, "Persisted state layout").
type DocumentRow struct {
	ID                 string
	FileName           string
	FileKind           string
	ContentHash        string
	PagesJSON          string
	GlobalAnalysisJSON sql.NullString
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PageAnalysisRow is the persisted shape of one page's deep-analysis cache
// entry, keyed by (DocumentID, PageNumber).
type PageAnalysisRow struct {
	DocumentID      string
	PageNumber      int
	ClustersJSON    string
	Notes           string
	GapsJSON        string
	ExpansionsJSON  string
	ReferencesJSON  string
	CheckResultJSON string
	FinalNotes      string
	RevisionCount   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Store wraps the SQLite database for all studyforge persistence. Writes
// go through one mutex per Store (spec.md §5: "single-writer
// discipline with per-store mutual exclusion"); reads do not block on it.
type Store struct {
	db           *sql.DB
	embeddingDim int
	writeMu      sync.Mutex
	closed       bool
}

// New opens (or creates) a SQLite database at the given path and
// initializes the schema, including the sqlite-vec and FTS5 virtual tables.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.writeMu.Lock()
	s.closed = true
	s.writeMu.Unlock()
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries (used by the
// Vector Store, which shares this connection pool).
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Document operations ---

// UpsertDocument inserts a document if its content hash is new, or returns
// the existing row unchanged if a document with that hash already exists
// (spec.md §6, §8 law: "ingesting identical bytes twice yields one
// Document"). existed reports whether the hash collided with a prior row.
func (s *Store) UpsertDocument(ctx context.Context, doc DocumentRow) (row DocumentRow, existed bool, err error) {
	if existing, getErr := s.GetDocumentByHash(ctx, doc.ContentHash); getErr == nil {
		return *existing, true, nil
	} else if getErr != sql.ErrNoRows {
		return DocumentRow{}, false, getErr
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return DocumentRow{}, false, fmt.Errorf("store is closed")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, file_name, file_kind, content_hash, pages, global_analysis)
		VALUES (?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.FileName, doc.FileKind, doc.ContentHash, doc.PagesJSON, doc.GlobalAnalysisJSON)
	if err != nil {
		return DocumentRow{}, false, err
	}

	stored, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		return DocumentRow{}, false, err
	}
	return *stored, false, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*DocumentRow, error) {
	d := &DocumentRow{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, file_name, file_kind, content_hash, pages, global_analysis, created_at, updated_at
		FROM documents WHERE id = ?
	`, id).Scan(&d.ID, &d.FileName, &d.FileKind, &d.ContentHash, &d.PagesJSON,
		&d.GlobalAnalysisJSON, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDocumentByHash retrieves a document by its content hash.
func (s *Store) GetDocumentByHash(ctx context.Context, hash string) (*DocumentRow, error) {
	d := &DocumentRow{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, file_name, file_kind, content_hash, pages, global_analysis, created_at, updated_at
		FROM documents WHERE content_hash = ?
	`, hash).Scan(&d.ID, &d.FileName, &d.FileKind, &d.ContentHash, &d.PagesJSON,
		&d.GlobalAnalysisJSON, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDocuments returns all documents ordered by creation time.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, file_kind, content_hash, pages, global_analysis, created_at, updated_at
		FROM documents ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.ID, &d.FileName, &d.FileKind, &d.ContentHash, &d.PagesJSON,
			&d.GlobalAnalysisJSON, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpdateGlobalAnalysis writes the global pass result for a document. Called
// once per successful AnalyzeGlobal run, including force-recompute.
func (s *Store) UpdateGlobalAnalysis(ctx context.Context, id string, globalAnalysisJSON string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET global_analysis = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		globalAnalysisJSON, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteDocument removes a document and cascades to its page analyses and
// page chunks (foreign keys declared ON DELETE CASCADE).
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM page_chunks WHERE document_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM page_analyses WHERE document_id = ?", id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		return err
	})
}

// --- Page analysis operations ---

// UpsertPageAnalysis writes (or overwrites, on force-recompute) the
// deep-analysis cache entry for one page.
func (s *Store) UpsertPageAnalysis(ctx context.Context, row PageAnalysisRow) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO page_analyses (document_id, page_number, clusters, notes, gaps,
			expansions, "references", check_result, final_notes, revision_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, page_number) DO UPDATE SET
			clusters = excluded.clusters,
			notes = excluded.notes,
			gaps = excluded.gaps,
			expansions = excluded.expansions,
			"references" = excluded."references",
			check_result = excluded.check_result,
			final_notes = excluded.final_notes,
			revision_count = excluded.revision_count,
			updated_at = CURRENT_TIMESTAMP
	`, row.DocumentID, row.PageNumber, row.ClustersJSON, row.Notes, row.GapsJSON,
		row.ExpansionsJSON, row.ReferencesJSON, row.CheckResultJSON, row.FinalNotes, row.RevisionCount)
	return err
}

// GetPageAnalysis retrieves a cached page analysis, or sql.ErrNoRows if none
// exists yet (a cache miss, not an error condition to the caller).
func (s *Store) GetPageAnalysis(ctx context.Context, documentID string, pageNumber int) (*PageAnalysisRow, error) {
	r := &PageAnalysisRow{}
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, page_number, clusters, notes, gaps, expansions,
			"references", check_result, final_notes, revision_count, created_at, updated_at
		FROM page_analyses WHERE document_id = ? AND page_number = ?
	`, documentID, pageNumber).Scan(&r.DocumentID, &r.PageNumber, &r.ClustersJSON, &r.Notes,
		&r.GapsJSON, &r.ExpansionsJSON, &r.ReferencesJSON, &r.CheckResultJSON,
		&r.FinalNotes, &r.RevisionCount, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListPageAnalyses returns all cached page analyses for a document, ordered
// by page number.
func (s *Store) ListPageAnalyses(ctx context.Context, documentID string) ([]PageAnalysisRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, page_number, clusters, notes, gaps, expansions,
			"references", check_result, final_notes, revision_count, created_at, updated_at
		FROM page_analyses WHERE document_id = ? ORDER BY page_number
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PageAnalysisRow
	for rows.Next() {
		var r PageAnalysisRow
		if err := rows.Scan(&r.DocumentID, &r.PageNumber, &r.ClustersJSON, &r.Notes,
			&r.GapsJSON, &r.ExpansionsJSON, &r.ReferencesJSON, &r.CheckResultJSON,
			&r.FinalNotes, &r.RevisionCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Retrieval audit log ---

// LogRetrieval records one retrieval-diagnostics row; the Retriever writes
// one per high-priority gap on each call.
func (s *Store) LogRetrieval(ctx context.Context, documentID string, pageNumber int, concept, sourceTag string, resultCount int, degraded bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	degradedInt := 0
	if degraded {
		degradedInt = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retrieval_log (document_id, page_number, concept, source_tag, result_count, degraded)
		VALUES (?, ?, ?, ?, ?, ?)
	`, documentID, pageNumber, concept, sourceTag, resultCount, degradedInt)
	return err
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
