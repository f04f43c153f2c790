package studyforge

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbiangul/studyforge/llm"
)

const maxConceptClusters = 10

var pageClustererPrompt = `You are identifying the hardest concepts on a single lecture slide for a
learner seeing it for the first time.
%s
PAGE TEXT:
%s

Return a JSON object with exactly one key:
  "clusters": array of {"concept": string, "difficulty": int (1-5), "why_difficult": string, "related_concepts": [string]}

Rules:
- concept must be non-empty.
- difficulty is an integer from 1 (easy) to 5 (hardest).
- Produce at most 10 clusters, ordered by difficulty descending.
- Do not include any text outside the JSON object.`

type pageClustererResult struct {
	Clusters []ConceptCluster `json:"clusters"`
}

// PageClusterer is the per-page agent producing difficulty-ranked concept
// clusters for the current page (spec.md §4.6). Out-of-range difficulty
// values are clamped rather than rejected; clusters with an empty concept
// are dropped.
func PageClusterer(ctx context.Context, provider llm.Provider, model string, state PageAnalysisState) (PageAnalysisState, error) {
	globalSnippet := globalContextSnippet(state.Global)

	var result pageClustererResult
	err := llm.Structured(ctx, provider, llm.ChatRequest{
		Model:       model,
		Temperature: 0.3,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(pageClustererPrompt, globalSnippet, pageText(state.Page, 1000))},
		},
	}, &result)
	if err != nil {
		if _, isParseFailure := err.(*llm.ParseFailure); isParseFailure {
			state.Clusters = nil
			return state, nil
		}
		return state, err
	}

	clusters := make([]ConceptCluster, 0, len(result.Clusters))
	for _, c := range result.Clusters {
		if strings.TrimSpace(c.Concept) == "" {
			continue
		}
		if c.Difficulty < 1 {
			c.Difficulty = 1
		} else if c.Difficulty > 5 {
			c.Difficulty = 5
		}
		if state.Global != nil {
			c.GlobalContext = state.Global.MainTopic
		}
		clusters = append(clusters, c)
		if len(clusters) == maxConceptClusters {
			break
		}
	}

	state.Clusters = clusters
	return state, nil
}

// globalContextSnippet renders an optional one-line global-analysis hint an
// agent's prompt can prepend; empty when no global pass has run yet
// (spec.md §4.6: "all four [per-page agents] use the optional GlobalAnalysis
// to enrich its prompt").
func globalContextSnippet(g *GlobalAnalysis) string {
	if g == nil {
		return ""
	}
	return fmt.Sprintf("\nDocument context: this page is part of a deck about %q. %s\n", g.MainTopic, truncate(g.KnowledgeFlow, 800))
}
