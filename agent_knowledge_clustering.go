package studyforge

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbiangul/studyforge/llm"
)

const maxKnowledgeUnits = 15

// knowledgeClusteringSampleThreshold gates the long-document sampling
// policy: documents with more pages than this are subsampled via
// sampledPages instead of fed in full (spec.md §4.5).
const knowledgeClusteringSampleThreshold = 15

var knowledgeClusteringPrompt = `You are grouping a lecture deck's pages into cross-page knowledge units.
The deck's main topic is: %s
Knowledge flow: %s

Below is the text of each page, in order. Group related pages into knowledge
units, each bundling the core concepts that span those pages.

Return a JSON object with exactly one key:
  "knowledge_units": array of {"title": string, "page_numbers": [int], "core_concepts": [string]}

Rules:
- page_numbers must be non-empty and within [1, %d].
- core_concepts must be non-empty.
- Produce at most 15 units.
- Do not include any text outside the JSON object.

PAGES:
%s`

type knowledgeClusteringResult struct {
	KnowledgeUnits []KnowledgeUnit `json:"knowledge_units"`
}

// KnowledgeClustering is the document-analysis agent producing cross-page
// KnowledgeUnits from the GlobalAnalysis structure GlobalStructure already
// produced (spec.md §4.5). Invalid units (empty title, out-of-range or empty
// page_numbers) are dropped rather than causing the whole call to fail; the
// result is capped to the first 15 valid units.
func KnowledgeClustering(ctx context.Context, provider llm.Provider, model string, state GlobalAnalysisState) (GlobalAnalysisState, error) {
	pages := state.Document.Pages
	perPageBudget := 1000
	if len(pages) > knowledgeClusteringSampleThreshold {
		pages = sampledPages(pages, knowledgeClusteringSampleThreshold)
		perPageBudget = 750 // midpoint of the 500-1000 char sampled-page budget
	}

	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "--- Page %d: %s ---\n%s\n\n", p.PageNumber, p.Title, truncate(p.RawText, perPageBudget))
	}

	var result knowledgeClusteringResult
	err := llm.Structured(ctx, provider, llm.ChatRequest{
		Model:       model,
		Temperature: 0.0,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(knowledgeClusteringPrompt, state.MainTopic, state.KnowledgeFlow, state.TotalPages, b.String())},
		},
	}, &result)
	if err != nil {
		if _, isParseFailure := err.(*llm.ParseFailure); isParseFailure {
			state.KnowledgeUnits = nil
			return state, nil
		}
		return state, err
	}

	units := make([]KnowledgeUnit, 0, len(result.KnowledgeUnits))
	for i, u := range result.KnowledgeUnits {
		if strings.TrimSpace(u.Title) == "" || len(u.PageNumbers) == 0 || len(u.CoreConcepts) == 0 {
			continue
		}
		valid := true
		for _, n := range u.PageNumbers {
			if n < 1 || n > state.TotalPages {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}
		u.UnitID = fmt.Sprintf("ku-%d", i)
		units = append(units, u)
		if len(units) == maxKnowledgeUnits {
			break
		}
	}

	state.KnowledgeUnits = units
	return state, nil
}
