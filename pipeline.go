package studyforge

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bbiangul/studyforge/llm"
	"github.com/bbiangul/studyforge/retrieval"
	"github.com/bbiangul/studyforge/store"
)

// Pipeline is the orchestrator wiring together the LLM/Embedding Gateways,
// the Vector Store, the External Retrieval Router, and the Persistence
// Store, and exposing the two entry points spec.md §4.10 defines:
// AnalyzeGlobal and AnalyzePage. It is grounded on goreason.go's engine
// struct, generalized from Ingest/Query to AnalyzeGlobal/AnalyzePage.
type Pipeline struct {
	cfg    Config
	store  *store.Store
	chat   llm.Provider
	embed  llm.Provider
	router *retrieval.Router
}

// NewPipeline builds a Pipeline from configuration: opens the Persistence
// Store (which also backs the Vector Store), constructs the LLM and
// Embedding Gateway providers, and probes the External Retrieval Router's
// sources once (spec.md §4.3 step 1; goreason.go's New()).
func NewPipeline(cfg Config) (*Pipeline, error) {
	dbPath := cfg.resolveDBPath()

	dim := cfg.VectorStore.EmbeddingDim
	if dim == 0 {
		dim = 768
	}

	s, err := store.New(dbPath, dim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	llmCfg := cfg.LLM
	llmCfg.Timeout = cfg.LLMTimeout
	chatProvider, err := llm.NewProvider(llmCfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}

	embeddingCfg := cfg.Embedding
	embeddingCfg.Timeout = cfg.EmbeddingTimeout
	embedProvider, err := llm.NewProvider(embeddingCfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	router := retrieval.NewRouter(context.Background(), defaultSources(cfg.SearchTimeout), cfg.Retrieval.PreferredSources)

	return &Pipeline{cfg: cfg, store: s, chat: chatProvider, embed: embedProvider, router: router}, nil
}

// defaultSources builds the three source archetypes spec.md §6 expects
// ("at least three archetypes: academic-paper index, encyclopedia, web
// search"). Base URLs are illustrative wiring points; callers that need real
// endpoints construct their own Pipeline with NewPipelineWithRouter. timeout
// is the per-request budget for each source's HTTP client (cfg.SearchTimeout,
// SPEC_FULL.md §5).
func defaultSources(timeout time.Duration) []retrieval.Source {
	return []retrieval.Source{
		retrieval.NewAcademicSource("https://api.openalex.org", timeout),
		retrieval.NewEncyclopediaSource("https://en.wikipedia.org/api/rest_v1", timeout),
		retrieval.NewWebSource("https://api.search.brave.com/res/v1/web", timeout),
	}
}

// NewPipelineWithRouter builds a Pipeline with a caller-supplied Router,
// bypassing the default source wiring — used by tests that stub sources.
func NewPipelineWithRouter(cfg Config, chatProvider, embedProvider llm.Provider, s *store.Store, router *retrieval.Router) *Pipeline {
	return &Pipeline{cfg: cfg, store: s, chat: chatProvider, embed: embedProvider, router: router}
}

// Close releases the Pipeline's Persistence Store.
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// Store exposes the underlying Persistence Store for diagnostic access.
func (p *Pipeline) Store() *store.Store {
	return p.store
}

// IngestDocument assigns a fresh id and content_hash to a parsed Document and
// persists it, expanding it into the Vector Store before it becomes
// queryable (spec.md §5: "writes during expand_document happen before the
// document becomes queryable"). On hash collision the pre-existing Document
// is returned unchanged and no duplicate row is created
// (spec.md §6, §8 dedup law).
func (p *Pipeline) IngestDocument(ctx context.Context, rawBytes []byte, fileName string, fileKind FileKind, pages []Page) (Document, error) {
	if len(pages) == 0 {
		return Document{}, fmt.Errorf("studyforge: document has no pages")
	}

	hash := sha256.Sum256(rawBytes)
	contentHash := hex.EncodeToString(hash[:])

	pagesJSON, err := json.Marshal(pages)
	if err != nil {
		return Document{}, fmt.Errorf("marshaling pages: %w", err)
	}

	row, existed, err := p.store.UpsertDocument(ctx, store.DocumentRow{
		ID:          contentHash,
		FileName:    fileName,
		FileKind:    string(fileKind),
		ContentHash: contentHash,
		PagesJSON:   string(pagesJSON),
	})
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFatalStorage, err)
	}

	doc, err := documentFromRow(row)
	if err != nil {
		return Document{}, err
	}

	if existed {
		slog.Info("ingest: content hash matched existing document", "document_id", doc.ID, "file", fileName)
		return doc, nil
	}

	slog.Info("ingest: new document", "document_id", doc.ID, "file", fileName, "pages", len(pages))
	if err := p.expandDocument(ctx, doc.ID, pages); err != nil {
		slog.Warn("ingest: expanding document into vector store failed (non-fatal)", "document_id", doc.ID, "error", err)
	}

	return doc, nil
}

// expandDocument chunks each page's text and embeds the chunks into the
// Vector Store (spec.md §4.2: "one chunk per page is the default... a
// secondary policy splits into overlapping windows when a page exceeds a
// configured length budget").
func (p *Pipeline) expandDocument(ctx context.Context, documentID string, pages []Page) error {
	maxTokens := p.cfg.VectorStore.ChunkSize
	overlap := p.cfg.VectorStore.ChunkOverlap

	for _, page := range pages {
		text := strings.TrimSpace(pageText(page, 1<<20))
		if text == "" {
			continue
		}

		var texts []string
		if estimatedTokenLen(text) <= maxTokens {
			texts = []string{text}
		} else {
			texts = store.ChunkPageText(text, maxTokens, overlap)
		}
		if len(texts) == 0 {
			continue
		}

		chunks, err := p.store.UpsertPageChunks(ctx, documentID, page.PageNumber, texts)
		if err != nil {
			return fmt.Errorf("upserting chunks for page %d: %w", page.PageNumber, err)
		}

		embeddings, err := p.embed.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding page %d: %w", page.PageNumber, err)
		}
		for i, chunk := range chunks {
			if i >= len(embeddings) || len(embeddings[i]) == 0 {
				continue
			}
			if err := p.store.InsertChunkEmbedding(ctx, chunk.ID, embeddings[i]); err != nil {
				return fmt.Errorf("storing embedding for page %d chunk %d: %w", page.PageNumber, i, err)
			}
		}
	}
	return nil
}

func estimatedTokenLen(s string) int {
	return len(strings.Fields(s))
}

// AnalyzeGlobal runs (or replays) the global document-analysis pass
// (spec.md §4.10). With force=false and a persisted GlobalAnalysis present,
// it returns that value without invoking any agent. With force=true, or no
// prior GlobalAnalysis, it runs GlobalStructure then KnowledgeClustering and
// atomically replaces the persisted value.
func (p *Pipeline) AnalyzeGlobal(ctx context.Context, documentID string, force bool) (GlobalAnalysis, error) {
	row, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return GlobalAnalysis{}, ErrDocumentNotFound
		}
		return GlobalAnalysis{}, fmt.Errorf("%w: %v", ErrFatalStorage, err)
	}

	if !force && row.GlobalAnalysisJSON.Valid {
		var cached GlobalAnalysis
		if err := json.Unmarshal([]byte(row.GlobalAnalysisJSON.String), &cached); err == nil {
			return cached, nil
		}
	}

	doc, err := documentFromRow(*row)
	if err != nil {
		return GlobalAnalysis{}, err
	}

	start := time.Now()
	slog.Info("analyze_global: starting", "document_id", documentID, "pages", len(doc.Pages), "force", force)

	state, err := GlobalStructure(ctx, p.chat, p.cfg.LLM.Model, doc)
	if err != nil {
		return GlobalAnalysis{}, fmt.Errorf("global structure: %w", err)
	}

	state, err = KnowledgeClustering(ctx, p.chat, p.cfg.LLM.Model, state)
	if err != nil {
		return GlobalAnalysis{}, fmt.Errorf("knowledge clustering: %w", err)
	}

	result := state.Result()
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return GlobalAnalysis{}, fmt.Errorf("marshaling global analysis: %w", err)
	}
	if err := p.store.UpdateGlobalAnalysis(ctx, documentID, string(resultJSON)); err != nil {
		return GlobalAnalysis{}, fmt.Errorf("%w: %v", ErrFatalStorage, err)
	}

	slog.Info("analyze_global: complete", "document_id", documentID,
		"main_topic", result.MainTopic, "chapters", len(result.Chapters),
		"knowledge_units", len(result.KnowledgeUnits),
		"elapsed", time.Since(start).Round(time.Millisecond))

	return result, nil
}

// AnalyzePage runs (or replays) the per-page deep-analysis pass, returning a
// channel of ProgressEvents the caller ranges over (the "lazy sequence" of
// spec.md §4.10, §6). The channel is always closed; its final element is
// either a `complete` event carrying the full PageAnalysis or an `error`
// event. With force=false and a cached PageAnalysis present, the channel
// carries exactly one `complete` event replaying it.
func (p *Pipeline) AnalyzePage(ctx context.Context, documentID string, pageNumber int, force bool) (<-chan ProgressEvent, error) {
	docRow, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrFatalStorage, err)
	}

	doc, err := documentFromRow(*docRow)
	if err != nil {
		return nil, err
	}

	var page *Page
	for i := range doc.Pages {
		if doc.Pages[i].PageNumber == pageNumber {
			page = &doc.Pages[i]
			break
		}
	}
	if page == nil {
		return nil, ErrPageNotFound
	}

	if !force {
		if cachedRow, err := p.store.GetPageAnalysis(ctx, documentID, pageNumber); err == nil {
			cached, err := pageAnalysisFromRow(*cachedRow)
			if err == nil {
				ch := make(chan ProgressEvent, 1)
				ch <- ProgressEvent{Stage: StageComplete, Data: cached, Message: "replayed cached analysis"}
				close(ch)
				return ch, nil
			}
		}
	}

	ch := make(chan ProgressEvent, 8)
	go p.runPage(ctx, ch, documentID, doc, *page)
	return ch, nil
}

// runPage executes the per-page agent graph (spec.md §4.10's diagram) and
// writes ProgressEvents to ch, closing it on exit via every path.
func (p *Pipeline) runPage(ctx context.Context, ch chan<- ProgressEvent, documentID string, doc Document, page Page) {
	defer close(ch)

	if p.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PageTimeout)
		defer cancel()
	}

	emit := func(stage ProgressStage, data interface{}, message string) bool {
		if !p.cfg.Streaming.Enabled && stage != StageComplete && stage != StageError {
			return true
		}
		select {
		case ch <- ProgressEvent{Stage: stage, Data: data, Message: message}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	state := PageAnalysisState{Document: doc, Page: page, Global: doc.GlobalAnalysis}

	var err error
	state, err = PageClusterer(ctx, p.chat, p.cfg.LLM.Model, state)
	if err != nil {
		emit(StageError, nil, err.Error())
		return
	}
	if !emit(StageClustering, state.Clusters, "clustered concepts") {
		return
	}

	state, err = Noter(ctx, p.chat, p.cfg.LLM.Model, state)
	if err != nil {
		emit(StageError, nil, err.Error())
		return
	}
	if !emit(StageUnderstanding, state.Notes, "generated notes") {
		return
	}

	state, err = GapFinder(ctx, p.chat, p.cfg.LLM.Model, state)
	if err != nil {
		emit(StageError, nil, err.Error())
		return
	}
	if !emit(StageGaps, state.Gaps, "identified gaps") {
		return
	}

	maxRevisions := p.cfg.Expansion.MaxRevisions
	for {
		// Expander and Retriever share no dependency on each other's output
		// (spec.md §5) and both start from the same pre-revision state, so
		// they run as the two concurrent tasks the spec's diagram calls for;
		// Checker only starts once both have returned, same semaphore-free
		// wg.Wait() shape as graph/community.go's SummarizeCommunities.
		input := state
		runRetriever := state.RevisionCount == 0 || shouldRetryRetrieval(state.CheckResult)

		var (
			wg       sync.WaitGroup
			expState PageAnalysisState
			expErr   error
			retState PageAnalysisState
			retErr   error
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			expState, expErr = Expander(ctx, p.chat, p.cfg.LLM.Model, p.cfg.Expansion.Temperature, p.cfg.Expansion.MinGapPriority, input)
		}()

		if runRetriever {
			wg.Add(1)
			go func() {
				defer wg.Done()
				retState, retErr = Retriever(ctx, p.embed, p.store, p.router, p.cfg.Retrieval, documentID, input)
			}()
		}

		wg.Wait()

		if expErr != nil {
			emit(StageError, nil, expErr.Error())
			return
		}
		state.Expansions = expState.Expansions
		if !emit(StageExpansion, state.Expansions, "expanded gaps") {
			return
		}

		if runRetriever {
			if retErr != nil {
				emit(StageError, nil, retErr.Error())
				return
			}
			state.References = retState.References
			if !emit(StageRetrieval, state.References, "retrieved references") {
				return
			}
		}

		state, err = Checker(ctx, p.chat, p.cfg.LLM.Model, state)
		if err != nil {
			emit(StageError, nil, err.Error())
			return
		}

		if state.CheckResult.Status == CheckPass || state.RevisionCount >= maxRevisions {
			break
		}
		state.RevisionCount++
	}

	state, err = Organizer(ctx, p.chat, p.cfg.LLM.Model, state)
	if err != nil {
		emit(StageError, nil, err.Error())
		return
	}

	result := state.Result()
	now := time.Now()
	result.CreatedAt = now
	result.UpdatedAt = now

	if err := p.persistPageAnalysis(ctx, documentID, result); err != nil {
		emit(StageError, nil, err.Error())
		return
	}

	emit(StageComplete, result, "page analysis complete")
}

// shouldRetryRetrieval resolves SPEC_FULL.md §9 Open Question 2: the
// Retriever re-runs on a revision only if some Checker issue contains
// "missing", "absent" or "unsupported" (case-insensitive) — a cheap keyword
// heuristic, not an LLM call. The current references are not consulted.
func shouldRetryRetrieval(result CheckResult) bool {
	for _, issue := range result.Issues {
		if strings.Contains(strings.ToLower(issue), "missing") || strings.Contains(strings.ToLower(issue), "absent") || strings.Contains(strings.ToLower(issue), "unsupported") {
			return true
		}
	}
	return false
}

func (p *Pipeline) persistPageAnalysis(ctx context.Context, documentID string, a PageAnalysis) error {
	clustersJSON, _ := json.Marshal(a.Clusters)
	gapsJSON, _ := json.Marshal(a.Gaps)
	expansionsJSON, _ := json.Marshal(a.Expansions)
	referencesJSON, _ := json.Marshal(a.References)
	checkResultJSON, _ := json.Marshal(a.CheckResult)

	err := p.store.UpsertPageAnalysis(ctx, store.PageAnalysisRow{
		DocumentID:      documentID,
		PageNumber:      a.PageNumber,
		ClustersJSON:    string(clustersJSON),
		Notes:           a.Notes,
		GapsJSON:        string(gapsJSON),
		ExpansionsJSON:  string(expansionsJSON),
		ReferencesJSON:  string(referencesJSON),
		CheckResultJSON: string(checkResultJSON),
		FinalNotes:      a.FinalNotes,
		RevisionCount:   a.RevisionCount,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFatalStorage, err)
	}
	return nil
}

// documentFromRow deserializes a store.DocumentRow into a Document,
// including its optional GlobalAnalysis.
func documentFromRow(row store.DocumentRow) (Document, error) {
	var pages []Page
	if err := json.Unmarshal([]byte(row.PagesJSON), &pages); err != nil {
		return Document{}, fmt.Errorf("unmarshaling pages: %w", err)
	}

	doc := Document{
		ID:          row.ID,
		FileName:    row.FileName,
		FileKind:    FileKind(row.FileKind),
		ContentHash: row.ContentHash,
		Pages:       pages,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}

	if row.GlobalAnalysisJSON.Valid {
		var ga GlobalAnalysis
		if err := json.Unmarshal([]byte(row.GlobalAnalysisJSON.String), &ga); err == nil {
			doc.GlobalAnalysis = &ga
		}
	}
	return doc, nil
}

// pageAnalysisFromRow deserializes a store.PageAnalysisRow into a
// PageAnalysis.
func pageAnalysisFromRow(row store.PageAnalysisRow) (PageAnalysis, error) {
	var a PageAnalysis
	a.PageNumber = row.PageNumber
	a.Notes = row.Notes
	a.FinalNotes = row.FinalNotes
	a.RevisionCount = row.RevisionCount
	a.CreatedAt = row.CreatedAt
	a.UpdatedAt = row.UpdatedAt

	if err := json.Unmarshal([]byte(row.ClustersJSON), &a.Clusters); err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(row.GapsJSON), &a.Gaps); err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(row.ExpansionsJSON), &a.Expansions); err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(row.ReferencesJSON), &a.References); err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(row.CheckResultJSON), &a.CheckResult); err != nil {
		return a, err
	}
	return a, nil
}
