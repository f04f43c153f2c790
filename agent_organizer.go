package studyforge

import (
	"context"
	"fmt"

	"github.com/bbiangul/studyforge/llm"
)

const finalNotesMaxChars = 300

var organizerPrompt = `Integrate the study notes and expansions below into one final markdown
note block for this slide. Merge duplicate content across expansions rather
than listing them separately. Do not summarize or list the references — this
is a study note, not a bibliography.

NOTES:
%s

EXPANSIONS:
%s

Return only the markdown, under 300 characters, no surrounding commentary or
code fences.`

// Organizer is the per-page agent producing the final, consistency-checked
// study note by integrating Notes with the surviving Expansions
// (spec.md §4.9). Runs only after the Checker reaches pass (or exhausts
// max_revisions).
func Organizer(ctx context.Context, provider llm.Provider, model string, state PageAnalysisState) (PageAnalysisState, error) {
	resp, err := provider.Chat(ctx, llm.ChatRequest{
		Model:       model,
		Temperature: 0.5,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(organizerPrompt, state.Notes, renderExpansions(state.Expansions))},
		},
	})
	if err != nil {
		return state, err
	}

	state.FinalNotes = truncate(resp.Content, finalNotesMaxChars)
	return state, nil
}
