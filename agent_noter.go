package studyforge

import (
	"context"
	"fmt"

	"github.com/bbiangul/studyforge/llm"
)

const notesMaxChars = 300

var noterNotesPrompt = `You are writing concise study notes for one lecture slide.
%s
PAGE TEXT:
%s

Write markdown notes structured as:
  ## <a short title for this page>
  - core concepts (bulleted)
  - key points (bulleted)
  A short focus paragraph (1-2 sentences) on what to pay attention to.

Keep the entire note under 300 characters. Return only the markdown, no
surrounding commentary or code fences.`

var noterStructurePrompt = `Extract a structured summary of this page.
PAGE TEXT:
%s

Return a JSON object with exactly these keys:
  "page_number": int
  "title": string
  "main_concepts": array of string
  "key_points": array of string

Do not include any text outside the JSON object.`

// Noter is the per-page agent producing markdown study notes and a
// structured PageStructure extraction via two sequential LLM calls
// (spec.md §4.6). The first call (notes, temperature ~0.5) is free text, not
// structured generation; the second (page_structure, temperature 0) is.
// A ParseFailure on the second call leaves Structure holding only the page's
// number and title rather than aborting the page pass — downstream agents only read Notes and Clusters.
func Noter(ctx context.Context, provider llm.Provider, model string, state PageAnalysisState) (PageAnalysisState, error) {
	globalSnippet := globalContextSnippet(state.Global)

	notesResp, err := provider.Chat(ctx, llm.ChatRequest{
		Model:       model,
		Temperature: 0.5,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(noterNotesPrompt, globalSnippet, pageText(state.Page, 1000))},
		},
	})
	if err != nil {
		return state, err
	}
	state.Notes = truncate(notesResp.Content, notesMaxChars)

	var structure PageStructure
	err = llm.Structured(ctx, provider, llm.ChatRequest{
		Model:       model,
		Temperature: 0.0,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(noterStructurePrompt, pageText(state.Page, 1000))},
		},
	}, &structure)
	if err != nil {
		if _, isParseFailure := err.(*llm.ParseFailure); isParseFailure {
			structure = PageStructure{PageNumber: state.Page.PageNumber, Title: state.Page.Title}
		} else {
			return state, err
		}
	}

	state.Structure = structure
	return state, nil
}
