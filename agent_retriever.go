package studyforge

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbiangul/studyforge/llm"
	"github.com/bbiangul/studyforge/retrieval"
	"github.com/bbiangul/studyforge/store"
)

const retrieverHighPriority = 4
const retrieverQueryCharBudget = 800

// Retriever is the per-page agent producing grounded References for the
// page's high-priority gaps (spec.md §4.7). It queries the local Vector
// Store first and only falls through to the External Retrieval Router when
// local hits are insufficient and local_rag_priority allows it — "local RAG
// priority" (spec.md §4.7 step 3). Runs concurrently with Expander in the
// orchestrator; it has no dependency on Expander's output.
func Retriever(ctx context.Context, embedProvider llm.Provider, vecStore *store.Store, router *retrieval.Router, cfg RetrievalConfig, documentID string, state PageAnalysisState) (PageAnalysisState, error) {
	highPriority := highPriorityGaps(state.Gaps)
	if len(highPriority) == 0 && len(state.References) == 0 {
		// Early exit: spec.md §4.7 step 1.
		return state, nil
	}
	if len(highPriority) == 0 {
		// No new high-priority gaps this cycle; keep prior references as-is.
		return state, nil
	}

	seenURL := make(map[string]bool)
	var merged []Reference
	degraded := false

	for _, gap := range highPriority {
		if len(merged) >= cfg.MaxResults {
			break
		}

		query := buildRetrievalQuery(gap)

		localHits, localDegraded, err := searchLocal(ctx, embedProvider, vecStore, query, documentID, cfg)
		if err != nil {
			return state, err
		}
		degraded = degraded || localDegraded

		for _, h := range localHits {
			if len(merged) >= cfg.MaxResults {
				break
			}
			ref := Reference{
				Title:     fmt.Sprintf("%s (page %d)", truncate(state.Page.Title, 60), h.PageNumber),
				URL:       fmt.Sprintf("studyforge://document/%s/page/%d", documentID, h.PageNumber),
				SourceTag: "local",
				Snippet:   extractSnippet(h.Content, conceptWordSet(gap.Concept, gap.RelatedConcepts)),
			}
			if ref.URL == "" || seenURL[ref.URL] {
				continue
			}
			seenURL[ref.URL] = true
			merged = append(merged, ref)
		}

		localSufficient := cfg.LocalRAGPriority && len(localHits) >= cfg.MaxResults
		if localSufficient || router == nil || !router.AnyAvailable() {
			continue
		}

		remaining := cfg.MaxResults - len(merged)
		if remaining <= 0 {
			continue
		}
		hits := router.Search(ctx, query, remaining)
		for _, h := range hits {
			if len(merged) >= cfg.MaxResults {
				break
			}
			if h.URL == "" || seenURL[h.URL] {
				continue
			}
			seenURL[h.URL] = true
			merged = append(merged, Reference{
				Title:     h.Title,
				URL:       h.URL,
				SourceTag: h.SourceTag,
				Snippet:   h.Snippet,
			})
		}
	}

	if vecStore != nil {
		for _, gap := range highPriority {
			_ = vecStore.LogRetrieval(ctx, documentID, state.Page.PageNumber, gap.Concept, "merged", len(merged), degraded)
		}
	}

	state.References = merged
	return state, nil
}

// highPriorityGaps returns the gaps whose priority meets the Retriever's
// threshold (spec.md §4.7: "priority >= 4").
func highPriorityGaps(gaps []KnowledgeGap) []KnowledgeGap {
	var out []KnowledgeGap
	for _, g := range gaps {
		if g.Priority >= retrieverHighPriority {
			out = append(out, g)
		}
	}
	return out
}

// buildRetrievalQuery merges a gap's concept with up to two related
// concepts into one query string, capped at ~800 characters total
// (spec.md §4.7 step 2).
func buildRetrievalQuery(gap KnowledgeGap) string {
	parts := []string{gap.Concept}
	for i, r := range gap.RelatedConcepts {
		if i >= 2 {
			break
		}
		parts = append(parts, r)
	}
	return truncate(strings.Join(parts, " "), retrieverQueryCharBudget)
}

// searchLocal embeds the query and performs a Vector Store KNN search,
// degrading to SubstringSearch when the embedding call fails
// (spec.md §4.2: "the store MAY degrade to a case-insensitive substring
// match... when vector search raises").
func searchLocal(ctx context.Context, embedProvider llm.Provider, vecStore *store.Store, query, documentID string, cfg RetrievalConfig) ([]store.ChunkHit, bool, error) {
	if vecStore == nil {
		return nil, false, nil
	}

	embeddings, err := embedProvider.Embed(ctx, []string{query})
	if err != nil || len(embeddings) == 0 {
		hits, searchErr := vecStore.SubstringSearch(ctx, query, documentID, cfg.MaxResults)
		if searchErr != nil {
			return nil, true, nil
		}
		return hits, true, nil
	}

	hits, err := vecStore.VectorSearch(ctx, embeddings[0], cfg.MaxResults, cfg.MinScore, documentID)
	if err != nil {
		hits, searchErr := vecStore.SubstringSearch(ctx, query, documentID, cfg.MaxResults)
		if searchErr != nil {
			return nil, true, nil
		}
		return hits, true, nil
	}
	return hits, false, nil
}
