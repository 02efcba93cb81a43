// Package llm holds the clients for the generative service the classifier
// depends on. The pipeline only ever needs a single-turn query; no session
// state or streaming.
package llm

import (
	"context"
	"fmt"
)

// Provider answers one standalone natural-language query.
type Provider interface {
	Query(ctx context.Context, prompt string) (string, error)
}

// NewProvider builds the configured provider. Supported names are
// "openai" (any OpenAI-compatible endpoint) and "anthropic".
func NewProvider(name, apiKey, apiBase, model string) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(apiKey, apiBase, model), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey, apiBase, model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}
