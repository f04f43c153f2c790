package studyforge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bbiangul/studyforge/llm"
)

const (
	maxExpansions     = 3
	expandedBodyChars = 150
)

// gapKindStyle conditions the Expander's prompt on gap kind: prerequisite
// favors a concise definition, derivation favors ordered steps, example
// favors one concrete case, intuition favors a plain-language analogy
// (spec.md §4.6).
var gapKindStyle = map[GapKind]string{
	GapPrerequisite: "Give a concise definition of the prerequisite concept.",
	GapDerivation:   "Walk through the derivation as a short ordered list of steps.",
	GapExample:      "Give exactly one concrete worked example.",
	GapIntuition:    "Give a plain-language analogy or intuition, no formalism.",
}

var expanderPrompt = `You are writing a short, grounded elaboration for a single comprehension gap
on a lecture slide. %s

PAGE TEXT:
%s

GAP: %s (%s)

Return a JSON object with exactly one key:
  "body": string, at most 150 characters, markdown allowed.

Do not introduce any concept absent from the page text above. Do not include
any text outside the JSON object.`

type expanderResult struct {
	Body string `json:"body"`
}

// Expander is the per-page agent producing ExpandedContent for the
// highest-priority gaps (spec.md §4.6). Gaps are sorted by priority
// descending; only the top 3 are considered, and of those, only the ones
// meeting minGapPriority receive an expansion — the intersection semantics
// SPEC_FULL.md §9 resolves Open Question 1 with. Runs concurrently with
// Retriever in the orchestrator (spec.md §5); it has no dependency on
// Retriever's output.
func Expander(ctx context.Context, provider llm.Provider, model string, temperature float64, minGapPriority int, state PageAnalysisState) (PageAnalysisState, error) {
	sorted := make([]KnowledgeGap, len(state.Gaps))
	copy(sorted, state.Gaps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	top := sorted
	if len(top) > maxExpansions {
		top = top[:maxExpansions]
	}

	var expansions []ExpandedContent
	for _, gap := range top {
		if gap.Priority < minGapPriority {
			continue
		}

		style := gapKindStyle[gap.GapKind]
		var result expanderResult
		err := llm.Structured(ctx, provider, llm.ChatRequest{
			Model:       model,
			Temperature: temperature,
			Messages: []llm.Message{
				{Role: "user", Content: fmt.Sprintf(expanderPrompt, style, truncate(state.Page.RawText, 1000), gap.Concept, gap.GapKind)},
			},
		}, &result)
		if err != nil {
			if _, isParseFailure := err.(*llm.ParseFailure); isParseFailure {
				continue // degrade: skip this gap's expansion, not the whole agent
			}
			return state, err
		}

		body := strings.TrimSpace(result.Body)
		if body == "" {
			continue
		}
		expansions = append(expansions, ExpandedContent{
			Concept: gap.Concept,
			GapKind: gap.GapKind,
			Body:    truncate(body, expandedBodyChars),
		})
	}

	state.Expansions = expansions
	return state, nil
}
