package provider

import (
	"context"
	"fmt"
	"time"

	"codeloom/internal/logging"

	"google.golang.org/genai"
)

// GenAIOptions configures the Gemini adapter.
type GenAIOptions struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// GenAI calls Gemini through google.golang.org/genai.
type GenAI struct {
	client *genai.Client
	opts   GenAIOptions
}

// NewGenAI creates a Gemini client.
func NewGenAI(ctx context.Context, opts GenAIOptions) (*GenAI, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set GEMINI_API_KEY)")
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GenAI{client: client, opts: opts}, nil
}

// Name returns "gemini".
func (g *GenAI) Name() string { return "gemini" }

// Generate sends the prompt as a single user turn.
func (g *GenAI) Generate(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = g.opts.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.opts.MaxTokens
	}
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	var cfg *genai.GenerateContentConfig
	if maxTokens > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)}
	}

	start := time.Now()
	res, err := g.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		logging.ProviderError("gemini %s failed after %v: %v", model, time.Since(start), err)
		return Response{}, fmt.Errorf("gemini generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return Response{}, fmt.Errorf("gemini returned empty text")
	}

	out := Response{Text: text, Model: model}
	if u := res.UsageMetadata; u != nil {
		out.Usage.InputTokens = int(u.PromptTokenCount)
		out.Usage.OutputTokens = int(u.CandidatesTokenCount)
	}
	out.Usage.CostUSD = EstimateCost(model, out.Usage.InputTokens, out.Usage.OutputTokens)

	logging.Provider("gemini %s: %d in / %d out tokens in %v",
		model, out.Usage.InputTokens, out.Usage.OutputTokens, time.Since(start))
	return out, nil
}
