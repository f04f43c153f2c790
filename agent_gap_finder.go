package studyforge

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbiangul/studyforge/llm"
)

const maxKnowledgeGaps = 5

var gapFinderPrompt = `You are identifying comprehension gaps a learner would hit on this slide —
missing intuition, a missing worked example, an unstated prerequisite, or a
missing derivation step.
%s
PAGE TEXT:
%s

Return a JSON object with exactly one key:
  "gaps": array of {"concept": string, "gap_kind": string, "priority": int (1-5)}

gap_kind must be exactly one of: "intuition", "example", "prerequisite", "derivation".
Produce at most 5 gaps, ordered by priority descending. Do not include any
text outside the JSON object.`

var gapFinderCrossPageNote = "\nConsider cross-page prerequisite relationships: a concept may depend on material introduced earlier in the deck.\n"

type gapFinderResult struct {
	Gaps []KnowledgeGap `json:"gaps"`
}

// GapFinder is the per-page agent producing up to 5 KnowledgeGaps
// (spec.md §4.6). When global context is present, the prompt explicitly
// directs the model to consider cross-page prerequisites. Invalid gap_kind
// values are dropped; priorities are clamped to [1,5].
func GapFinder(ctx context.Context, provider llm.Provider, model string, state PageAnalysisState) (PageAnalysisState, error) {
	globalSnippet := globalContextSnippet(state.Global)
	if state.Global != nil {
		globalSnippet += gapFinderCrossPageNote
	}

	var result gapFinderResult
	err := llm.Structured(ctx, provider, llm.ChatRequest{
		Model:       model,
		Temperature: 0.2,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(gapFinderPrompt, globalSnippet, pageText(state.Page, 1000))},
		},
	}, &result)
	if err != nil {
		if _, isParseFailure := err.(*llm.ParseFailure); isParseFailure {
			state.Gaps = nil
			return state, nil
		}
		return state, err
	}

	validKinds := map[GapKind]bool{
		GapIntuition: true, GapExample: true, GapPrerequisite: true, GapDerivation: true,
	}

	gaps := make([]KnowledgeGap, 0, len(result.Gaps))
	for _, g := range result.Gaps {
		g.GapKind = GapKind(strings.ToLower(string(g.GapKind)))
		if strings.TrimSpace(g.Concept) == "" || !validKinds[g.GapKind] {
			continue
		}
		if g.Priority < 1 {
			g.Priority = 1
		} else if g.Priority > 5 {
			g.Priority = 5
		}
		gaps = append(gaps, g)
		if len(gaps) == maxKnowledgeGaps {
			break
		}
	}

	state.Gaps = gaps
	return state, nil
}
