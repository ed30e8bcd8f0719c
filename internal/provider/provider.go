// Package provider is the narrow interface to language-model backends plus
// the adapters the CLI can select from configuration.
package provider

import (
	"context"
	"fmt"
	"time"

	"codeloom/internal/config"
)

// Request is one completion call.
type Request struct {
	Prompt    string
	Model     string // empty uses the provider default
	MaxTokens int    // 0 uses the provider default
}

// Usage is token and cost accounting for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Response is the provider's reply.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Provider generates text from a composed prompt.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

// FromConfig builds the provider named in cfg.
func FromConfig(ctx context.Context, cfg config.ProviderConfig, timeout time.Duration) (Provider, error) {
	switch cfg.Name {
	case "gemini":
		return NewGenAI(ctx, GenAIOptions{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   timeout,
		})
	case "echo":
		return NewEcho(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// pricing is USD per million tokens, input then output.
var pricing = map[string][2]float64{
	"gemini-2.5-pro":        {1.25, 10.00},
	"gemini-2.5-flash":      {0.30, 2.50},
	"gemini-2.5-flash-lite": {0.10, 0.40},
	"gemini-2.0-flash":      {0.10, 0.40},
}

// EstimateCost prices a call; unknown models cost 0.
func EstimateCost(model string, in, out int) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return (float64(in)*p[0] + float64(out)*p[1]) / 1e6
}
