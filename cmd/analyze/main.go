// Command analyze runs the studyforge pipeline end-to-end against a single
// document and prints each ProgressEvent as a JSON line to stdout — a plain,
// un-framed stand-in for the SSE framing the pipeline's caller owns.
//
// Deck fixture usage:
//
//	go run ./cmd/analyze --deck ./testdata/deck.json --chat-provider ollama --chat-model llama3.1:8b
//
// PDF usage:
//
//	go run ./cmd/analyze --pdf ./testdata/lecture.pdf --embed-provider ollama --embed-model nomic-embed-text
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/bbiangul/studyforge"
	"github.com/bbiangul/studyforge/docsource"
	"github.com/bbiangul/studyforge/llm"
)

func main() {
	var (
		deckPath     = flag.String("deck", "", "Path to a JSON deck fixture")
		pdfPath      = flag.String("pdf", "", "Path to a PDF file")
		dbPath       = flag.String("db", "", "SQLite database path (default: ~/.studyforge/studyforge.db)")
		chatProvider = flag.String("chat-provider", "ollama", "Chat LLM provider")
		chatModel    = flag.String("chat-model", "llama3.1:8b", "Chat LLM model")
		chatBaseURL  = flag.String("chat-base-url", "http://localhost:11434", "Chat LLM base URL")
		chatAPIKey   = flag.String("chat-api-key", "", "Chat LLM API key")
		embedProvider = flag.String("embed-provider", "ollama", "Embedding provider")
		embedModel    = flag.String("embed-model", "nomic-embed-text", "Embedding model")
		embedBaseURL  = flag.String("embed-base-url", "http://localhost:11434", "Embedding base URL")
		embedAPIKey   = flag.String("embed-api-key", "", "Embedding API key")
		force         = flag.Bool("force", false, "Force recompute, ignoring cached analyses")
		pages         = flag.Int("pages", 0, "Limit to the first N pages (0 = all)")
	)
	flag.Parse()

	if *deckPath == "" && *pdfPath == "" {
		log.Fatal("one of --deck or --pdf is required")
	}

	cfg := studyforge.DefaultConfig()
	cfg.DBPath = *dbPath
	cfg.LLM = llm.Config{Provider: *chatProvider, Model: *chatModel, BaseURL: *chatBaseURL, APIKey: *chatAPIKey}
	cfg.Embedding = llm.Config{Provider: *embedProvider, Model: *embedModel, BaseURL: *embedBaseURL, APIKey: *embedAPIKey}

	pipeline, err := studyforge.NewPipeline(cfg)
	if err != nil {
		log.Fatalf("creating pipeline: %v", err)
	}
	defer pipeline.Close()

	ctx := context.Background()

	var source docsource.Source
	var path string
	if *deckPath != "" {
		source, path = docsource.DeckSource{}, *deckPath
	} else {
		source, path = docsource.PDFSource{}, *pdfPath
	}

	fileKind, raw, parsedPages, err := source.Load(path)
	if err != nil {
		log.Fatalf("loading %s: %v", path, err)
	}
	if *pages > 0 && *pages < len(parsedPages) {
		parsedPages = parsedPages[:*pages]
	}

	start := time.Now()
	doc, err := pipeline.IngestDocument(ctx, raw, path, fileKind, parsedPages)
	if err != nil {
		log.Fatalf("ingesting document: %v", err)
	}
	slog.Info("analyze: ingested", "document_id", doc.ID, "pages", len(doc.Pages),
		"elapsed", time.Since(start).Round(time.Millisecond))

	global, err := pipeline.AnalyzeGlobal(ctx, doc.ID, *force)
	if err != nil {
		log.Fatalf("analyze_global: %v", err)
	}
	printEvent(struct {
		Stage string                    `json:"stage"`
		Data  studyforge.GlobalAnalysis `json:"data"`
	}{Stage: "global_complete", Data: global})

	for _, page := range doc.Pages {
		events, err := pipeline.AnalyzePage(ctx, doc.ID, page.PageNumber, *force)
		if err != nil {
			log.Fatalf("analyze_page %d: %v", page.PageNumber, err)
		}
		for ev := range events {
			printEvent(ev)
		}
	}
}

func printEvent(ev interface{}) {
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(ev); err != nil {
		fmt.Fprintf(os.Stderr, "encoding event: %v\n", err)
	}
}
