package studyforge

import (
	"context"
	"fmt"

	"github.com/bbiangul/studyforge/llm"
)

const checkerTextChars = 600
const checkerMaxReferences = 3

var checkerPrompt = `You are verifying a set of expansions written for a lecture slide, checking
four rules:
1. No fabrication: expansions may not introduce concepts absent from the
   page text and the references below.
2. Grounded: every assertion must be traceable to the page text or a
   reference.
3. Mark speculation: uncertain statements must be flagged as speculative.
4. Flag contradictions: a contradiction with the page text or a reference
   must set status to "revise".

PAGE TEXT:
%s

REFERENCES:
%s

EXPANSIONS:
%s

Return a JSON object with exactly these keys:
  "status": "pass" or "revise"
  "issues": array of string, non-empty when status is "revise"
  "suggestions": array of string

Do not include any text outside the JSON object.`

// Checker is the per-page agent verifying expansions against the page text
// and references (spec.md §4.8). On decode failure it fails open: returns
// CheckPass with one recorded issue describing the parse failure, so the
// revision loop terminates normally rather than looping forever on a model
// that cannot produce valid JSON.
func Checker(ctx context.Context, provider llm.Provider, model string, state PageAnalysisState) (PageAnalysisState, error) {
	var result CheckResult
	err := llm.Structured(ctx, provider, llm.ChatRequest{
		Model:       model,
		Temperature: 0.0,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(checkerPrompt,
				truncate(state.Page.RawText, checkerTextChars),
				renderReferences(state.References, checkerMaxReferences),
				renderExpansions(state.Expansions))},
		},
	}, &result)
	if err != nil {
		if _, isParseFailure := err.(*llm.ParseFailure); isParseFailure {
			state.CheckResult = CheckResult{
				Status: CheckPass,
				Issues: []string{"checker response could not be parsed; failing open"},
			}
			return state, nil
		}
		return state, err
	}

	if result.Status != CheckPass && result.Status != CheckRevise {
		result.Status = CheckPass
	}
	if result.Status == CheckRevise && len(result.Issues) == 0 {
		result.Issues = []string{"revision requested without a stated issue"}
	}

	state.CheckResult = result
	return state, nil
}

func renderReferences(refs []Reference, max int) string {
	if len(refs) > max {
		refs = refs[:max]
	}
	out := ""
	for i, r := range refs {
		out += fmt.Sprintf("%d. %s: %s\n", i+1, r.Title, r.Snippet)
	}
	if out == "" {
		return "(none)"
	}
	return out
}

func renderExpansions(expansions []ExpandedContent) string {
	out := ""
	for i, e := range expansions {
		out += fmt.Sprintf("%d. [%s] %s: %s\n", i+1, e.GapKind, e.Concept, e.Body)
	}
	if out == "" {
		return "(none)"
	}
	return out
}
