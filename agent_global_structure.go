package studyforge

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbiangul/studyforge/llm"
)

// globalStructureFullPageChars bounds how much of each sampled page's text feeds
// the prompt: 800 chars when every page is used directly, narrower (200-500)
// when the long-document sampling policy kicks in (spec.md §4.4 steps 1-2).
const globalStructureFullPageChars = 800

// globalStructureSampleThreshold gates the long-document sampling policy:
// documents with more pages than this are subsampled via sampledPages
// instead of fed in full (spec.md §4.4 step 1).
const globalStructureSampleThreshold = 20

var globalStructurePrompt = `You are analyzing a lecture deck to build a document-level outline.
Below is the text of each page, in order. Identify the deck's main topic, a
chapter structure grouping related pages, and a short paragraph describing
how the knowledge flows from page to page.

Return a JSON object with exactly these keys:
  "main_topic": string, the deck's overall subject. Never the literal "unknown".
  "chapters": array of {"title": string, "page_numbers": [int], "key_concepts": [string]}
  "knowledge_flow": string, 2-4 sentences describing the progression of ideas.

Rules:
- main_topic must be non-empty and specific, never "unknown".
- Include at least one chapter.
- Do not include any text outside the JSON object.

PAGES:
%s`

type globalStructureResult struct {
	MainTopic     string    `json:"main_topic"`
	Chapters      []Chapter `json:"chapters"`
	KnowledgeFlow string    `json:"knowledge_flow"`
}

// GlobalStructure is the document-analysis agent producing main_topic,
// chapters, and knowledge_flow for a document (spec.md §4.4). It degrades to
// a best-effort result on ParseFailure or a violated guard rail and never
// returns an error for those cases; only a genuine upstream failure (network,
// retries exhausted) propagates.
func GlobalStructure(ctx context.Context, provider llm.Provider, model string, doc Document) (GlobalAnalysisState, error) {
	state := GlobalAnalysisState{Document: doc, TotalPages: len(doc.Pages)}

	pages := doc.Pages
	perPageBudget := globalStructureFullPageChars
	if len(pages) > globalStructureSampleThreshold {
		pages = sampledPages(pages, globalStructureSampleThreshold)
		perPageBudget = 350 // midpoint of the 200-500 char sampled-page budget
	}

	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "--- Page %d: %s ---\n%s\n\n", p.PageNumber, p.Title, truncate(p.RawText, perPageBudget))
	}

	var result globalStructureResult
	err := llm.Structured(ctx, provider, llm.ChatRequest{
		Model:       model,
		Temperature: 0.0,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(globalStructurePrompt, b.String())},
		},
	}, &result)
	if err != nil {
		if _, isParseFailure := err.(*llm.ParseFailure); isParseFailure {
			return degradeGlobalStructure(state, doc), nil
		}
		return state, err
	}

	if result.MainTopic == "" || strings.EqualFold(strings.TrimSpace(result.MainTopic), "unknown") || len(result.Chapters) == 0 {
		return degradeGlobalStructure(state, doc), nil
	}

	state.MainTopic = result.MainTopic
	state.Chapters = result.Chapters
	state.KnowledgeFlow = result.KnowledgeFlow
	return state, nil
}

// degradeGlobalStructure builds the best-effort fallback: the first
// non-empty page title as main_topic, an empty chapter list, and an empty
// knowledge_flow (spec.md §4.4 step 4). It still returns a valid, non-empty
// main_topic whenever any page carries a title.
func degradeGlobalStructure(state GlobalAnalysisState, doc Document) GlobalAnalysisState {
	for _, p := range doc.Pages {
		if strings.TrimSpace(p.Title) != "" {
			state.MainTopic = p.Title
			return state
		}
	}
	state.MainTopic = "Untitled deck"
	return state
}
