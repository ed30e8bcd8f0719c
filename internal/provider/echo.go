package provider

import (
	"context"
	"strings"
	"sync"

	"codeloom/internal/prompt"
)

// Echo is an offline provider. It replays scripted replies in order and,
// once they run out, echoes the last paragraph of the prompt.
type Echo struct {
	mu      sync.Mutex
	replies []string
	calls   []Request
}

// NewEcho returns an echo provider with optional scripted replies.
func NewEcho(replies ...string) *Echo {
	return &Echo{replies: replies}
}

// Name returns "echo".
func (e *Echo) Name() string { return "echo" }

// Generate never fails unless ctx is done.
func (e *Echo) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	e.mu.Lock()
	e.calls = append(e.calls, req)
	var text string
	if len(e.replies) > 0 {
		text, e.replies = e.replies[0], e.replies[1:]
	}
	e.mu.Unlock()

	if text == "" {
		text = lastParagraph(req.Prompt)
	}
	model := req.Model
	if model == "" {
		model = "echo"
	}
	return Response{
		Text:  text,
		Model: model,
		Usage: Usage{
			InputTokens:  prompt.EstimateTokens(req.Prompt),
			OutputTokens: prompt.EstimateTokens(text),
		},
	}, nil
}

// Calls returns the requests seen so far.
func (e *Echo) Calls() []Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Request(nil), e.calls...)
}

func lastParagraph(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n\n"); i >= 0 {
		return strings.TrimSpace(s[i+2:])
	}
	return s
}
