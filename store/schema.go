package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension (SPEC_FULL.md §6, "Persisted state layout").
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Document registry with hash-based change detection. pages and
-- global_analysis are stored as serialized JSON: the pipeline owns their
-- shape, the store only needs content-addressed identity and a place to
-- put the result.
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    file_name TEXT NOT NULL,
    file_kind TEXT NOT NULL,
    content_hash TEXT NOT NULL UNIQUE,
    pages JSON NOT NULL,
    global_analysis JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Per-page deep-analysis cache, keyed by (document_id, page_number).
-- force_recompute overwrites in place; a normal run is a read-through cache.
CREATE TABLE IF NOT EXISTS page_analyses (
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    clusters JSON NOT NULL,
    notes TEXT,
    gaps JSON NOT NULL,
    expansions JSON NOT NULL,
    "references" JSON NOT NULL,
    check_result JSON NOT NULL,
    final_notes TEXT,
    revision_count INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (document_id, page_number)
);

-- Page chunks backing the Vector Store (SPEC_FULL.md §4.2). Content-addressed
-- by (document_id, page_number, chunk_index); re-ingesting the same page
-- content is an upsert, not a duplicate insert.
CREATE TABLE IF NOT EXISTS page_chunks (
    id INTEGER PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    chunk_index INTEGER NOT NULL,
    content TEXT NOT NULL,
    token_count INTEGER,
    content_hash TEXT NOT NULL,
    UNIQUE(document_id, page_number, chunk_index)
);

-- Vector embeddings via sqlite-vec, one row per page_chunks.id.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_page_chunks USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Full-text index, used only as the substring-search degrade path when
-- the embedding provider is unavailable (SPEC_FULL.md §4.2).
CREATE VIRTUAL TABLE IF NOT EXISTS page_chunks_fts USING fts5(
    content,
    content='page_chunks',
    content_rowid='id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS page_chunks_ai AFTER INSERT ON page_chunks BEGIN
    INSERT INTO page_chunks_fts(rowid, content) VALUES (new.id, new.content);
END;
CREATE TRIGGER IF NOT EXISTS page_chunks_ad AFTER DELETE ON page_chunks BEGIN
    INSERT INTO page_chunks_fts(page_chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;
CREATE TRIGGER IF NOT EXISTS page_chunks_au AFTER UPDATE ON page_chunks BEGIN
    INSERT INTO page_chunks_fts(page_chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
    INSERT INTO page_chunks_fts(rowid, content) VALUES (new.id, new.content);
END;

-- External retrieval audit log, mirrors the teacher's query_log shape;
-- the Retriever writes one row per high-priority gap on each call
-- (SPEC_FULL.md §4.3).
CREATE TABLE IF NOT EXISTS retrieval_log (
    id INTEGER PRIMARY KEY,
    document_id TEXT NOT NULL,
    page_number INTEGER NOT NULL,
    concept TEXT NOT NULL,
    source_tag TEXT,
    result_count INTEGER DEFAULT 0,
    degraded INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_page_analyses_document ON page_analyses(document_id);
CREATE INDEX IF NOT EXISTS idx_page_chunks_document ON page_chunks(document_id, page_number);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
CREATE INDEX IF NOT EXISTS idx_retrieval_log_document ON retrieval_log(document_id, page_number);
`, embeddingDim)
}
