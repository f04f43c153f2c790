package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// PageChunk is one content-addressed slice of a page's text, the unit the
// Vector Store embeds and searches over (SPEC_FULL.md §4.2).
type PageChunk struct {
	ID          int64
	DocumentID  string
	PageNumber  int
	ChunkIndex  int
	Content     string
	TokenCount  int
	ContentHash string
}

// ChunkHit is one Vector Store search result.
type ChunkHit struct {
	ChunkID    int64
	DocumentID string
	PageNumber int
	Content    string
	Score      float64
}

// ChunkPageText splits raw page text into overlapping chunks for embedding.
// Oversized pages (long raw_text plus expanded bullet content) get split on
// sentence boundaries: maxTokens bounds each chunk, overlap
// sentences are repeated at the head of the next chunk so a concept split
// across a boundary is still retrievable from either side.
func ChunkPageText(text string, maxTokens, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = 1200
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))
	}

	for _, sent := range sentences {
		t := estimateTokens(sent)
		if currentTokens > 0 && currentTokens+t > maxTokens {
			flush()
			current = extractOverlap(current, overlap)
			currentTokens = 0
			for _, s := range current {
				currentTokens += estimateTokens(s)
			}
		}
		current = append(current, sent)
		currentTokens += t
	}
	flush()

	return chunks
}

// estimateTokens approximates a token count from word count. Good enough
// for chunk-sizing decisions; not used for billing.
func estimateTokens(s string) int {
	words := len(strings.Fields(s))
	return int(float64(words) * 1.3)
}

// extractOverlap keeps the trailing sentences of a chunk, up to overlap
// tokens worth, to seed the next chunk.
func extractOverlap(sentences []string, overlap int) []string {
	if overlap <= 0 || len(sentences) == 0 {
		return nil
	}
	var kept []string
	tokens := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		t := estimateTokens(sentences[i])
		if tokens+t > overlap && len(kept) > 0 {
			break
		}
		kept = append([]string{sentences[i]}, kept...)
		tokens += t
	}
	return kept
}

// splitSentences performs a rune-based sentence split on ., !, ? boundaries,
// tolerant of decimal numbers and abbreviations not being perfectly handled
// (a conservative heuristic, not a full sentence tokenizer).
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			nextIsSpaceOrEnd := i+1 >= len(runes) || unicode.IsSpace(runes[i+1])
			prevIsDigit := i > 0 && unicode.IsDigit(runes[i-1])
			if nextIsSpaceOrEnd && !prevIsDigit {
				sentences = append(sentences, strings.TrimSpace(b.String()))
				b.Reset()
			}
		}
	}
	if rest := strings.TrimSpace(b.String()); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// UpsertPageChunks writes the given texts as chunks 0..len(texts)-1 of one
// page, content-addressed by (document_id, page_number, chunk_index). Safe
// to call repeatedly with the same inputs: existing rows are updated
// in place rather than duplicated, and keep their ids. Chunks stored at
// higher indices by an earlier, longer call are left in place.
func (s *Store) UpsertPageChunks(ctx context.Context, documentID string, pageNumber int, texts []string) ([]PageChunk, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	chunks := make([]PageChunk, len(texts))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for i, text := range texts {
			hash := sha256.Sum256([]byte(text))
			contentHash := hex.EncodeToString(hash[:])

			_, err := tx.ExecContext(ctx, `
				INSERT INTO page_chunks (document_id, page_number, chunk_index, content, token_count, content_hash)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(document_id, page_number, chunk_index) DO UPDATE SET
					content = excluded.content,
					token_count = excluded.token_count,
					content_hash = excluded.content_hash
			`, documentID, pageNumber, i, text, estimateTokens(text), contentHash)
			if err != nil {
				return err
			}

			// LastInsertId does not report the row's id when the upsert took
			// the DO UPDATE path, so the id is always read back by key.
			var id int64
			row := tx.QueryRowContext(ctx, `
				SELECT id FROM page_chunks WHERE document_id = ? AND page_number = ? AND chunk_index = ?
			`, documentID, pageNumber, i)
			if err := row.Scan(&id); err != nil {
				return err
			}

			chunks[i] = PageChunk{
				ID: id, DocumentID: documentID, PageNumber: pageNumber,
				ChunkIndex: i, Content: text, TokenCount: estimateTokens(text), ContentHash: contentHash,
			}
		}
		return nil
	})
	return chunks, err
}

// InsertChunkEmbedding stores a vector embedding for a chunk.
func (s *Store) InsertChunkEmbedding(ctx context.Context, chunkID int64, embedding []float32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_page_chunks (chunk_id, embedding) VALUES (?, ?)",
		chunkID, serializeFloat32(embedding))
	return err
}

// VectorSearch performs a KNN search and deduplicates hits so at most one
// result survives per page, keeping the best-scoring chunk (spec.md §4.2:
// "search results are deduplicated per page, keeping the best-scoring
// chunk"). documentID filters to one document when non-empty.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, k int, minScore float64, documentID string) ([]ChunkHit, error) {
	query := `
		SELECT v.chunk_id, v.distance, c.document_id, c.page_number, c.content
		FROM vec_page_chunks v
		JOIN page_chunks c ON c.id = v.chunk_id
		WHERE v.embedding MATCH ? AND k = ?`
	args := []interface{}{serializeFloat32(queryEmbedding), k}
	if documentID != "" {
		query += " AND c.document_id = ?"
		args = append(args, documentID)
	}
	query += " ORDER BY v.distance"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bestByPage := make(map[int]ChunkHit)
	var order []int
	for rows.Next() {
		var h ChunkHit
		var distance float64
		if err := rows.Scan(&h.ChunkID, &distance, &h.DocumentID, &h.PageNumber, &h.Content); err != nil {
			return nil, err
		}
		h.Score = 1.0 - distance
		if h.Score < minScore {
			continue
		}
		if existing, ok := bestByPage[h.PageNumber]; !ok || h.Score > existing.Score {
			if !ok {
				order = append(order, h.PageNumber)
			}
			bestByPage[h.PageNumber] = h
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hits := make([]ChunkHit, 0, len(order))
	for _, page := range order {
		hits = append(hits, bestByPage[page])
	}
	return hits, nil
}

// SubstringSearch is the degrade path used when the embedding provider is
// unavailable (spec.md §4.2, §7: "graceful degrade to substring search").
// It tries FTS5 first and falls back to a LIKE scan if the query can't be
// parsed as an FTS5 match expression (e.g. it contains bare punctuation).
func (s *Store) SubstringSearch(ctx context.Context, queryText string, documentID string, limit int) ([]ChunkHit, error) {
	hits, err := s.ftsSearch(ctx, queryText, documentID, limit)
	if err == nil {
		return hits, nil
	}
	return s.likeSearch(ctx, queryText, documentID, limit)
}

func (s *Store) ftsSearch(ctx context.Context, queryText, documentID string, limit int) ([]ChunkHit, error) {
	query := `
		SELECT f.rowid, f.rank, c.document_id, c.page_number, c.content
		FROM page_chunks_fts f
		JOIN page_chunks c ON c.id = f.rowid
		WHERE page_chunks_fts MATCH ?`
	args := []interface{}{queryText}
	if documentID != "" {
		query += " AND c.document_id = ?"
		args = append(args, documentID)
	}
	query += " ORDER BY f.rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []ChunkHit
	for rows.Next() {
		var h ChunkHit
		var rank float64
		if err := rows.Scan(&h.ChunkID, &rank, &h.DocumentID, &h.PageNumber, &h.Content); err != nil {
			return nil, err
		}
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Store) likeSearch(ctx context.Context, queryText, documentID string, limit int) ([]ChunkHit, error) {
	query := `
		SELECT id, document_id, page_number, content
		FROM page_chunks WHERE LOWER(content) LIKE '%' || LOWER(?) || '%'`
	args := []interface{}{queryText}
	if documentID != "" {
		query += " AND document_id = ?"
		args = append(args, documentID)
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []ChunkHit
	for rows.Next() {
		var h ChunkHit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.PageNumber, &h.Content); err != nil {
			return nil, err
		}
		h.Score = 0.0
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// DeleteChunksByDocument removes all chunks (and their embeddings, via the
// vec0 table's own cascade-free design) for a document. DeleteDocument
// already cascades via foreign keys; this is exposed separately for callers
// that re-chunk a document without deleting it.
func (s *Store) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_page_chunks WHERE chunk_id IN (
				SELECT id FROM page_chunks WHERE document_id = ?
			)`, documentID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM page_chunks WHERE document_id = ?", documentID)
		return err
	})
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
