// Package coach produces the conversational guidance for each phase of a
// session. The orchestrator talks to a Responder; the concrete client is
// either a live LLM or the scripted fallback. Coaching is advisory:
// every failure here degrades to scripted text and the session keeps
// moving.
package coach

import (
	"context"

	"cadence/internal/config"
)

// Responder generates coaching text.
type Responder interface {
	// Complete sends a prompt and returns the completion.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New builds the configured responder. Without an API key the scripted
// coach runs the session offline.
func New(cfg config.LLMConfig) Responder {
	if cfg.APIKey == "" {
		return NewScripted()
	}
	return NewAnthropicClient(AnthropicConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Timeout:    cfg.GetTimeout(),
		MaxRetries: cfg.GetMaxRetries(),
	})
}
