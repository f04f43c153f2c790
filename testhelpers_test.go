package studyforge

import (
	"context"

	"github.com/bbiangul/studyforge/llm"
)

// fakeProvider is a stub llm.Provider for agent-level tests: it returns
// canned responses without touching the network, the same role the teacher
// repo's integration tests give a real Ollama endpoint but without the
// dependency on one being reachable.
type fakeProvider struct {
	chatFn  func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
	embedFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return f.chatFn(ctx, req)
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embedFn != nil {
		return f.embedFn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

// constChat returns a fakeProvider whose Chat call always succeeds with the
// given content (already-valid JSON for Structured callers, or plain text).
func constChat(content string) *fakeProvider {
	return &fakeProvider{
		chatFn: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{Content: content, Model: req.Model}, nil
		},
	}
}

// failChat returns a fakeProvider whose Chat call always returns err,
// simulating exhausted upstream retries.
func failChat(err error) *fakeProvider {
	return &fakeProvider{
		chatFn: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return nil, err
		},
	}
}

func testPage(n int, title, text string) Page {
	return Page{PageNumber: n, Title: title, RawText: text}
}
