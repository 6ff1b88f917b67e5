// Package llm provides a pluggable interface for the AI collaborator and its
// provider bindings.
package llm

import (
	"context"
	"fmt"

	"github.com/factchecker/labdesk/internal/config"
	"github.com/factchecker/labdesk/internal/models"
)

// Source is a reference the collaborator relied on.
type Source struct {
	Title string `json:"title,omitempty"`
	URI   string `json:"uri"`
}

// Usage reports token consumption for one turn.
type Usage struct {
	TotalTokens int `json:"total_tokens"`
}

// Request is everything the collaborator sees for one turn.
type Request struct {
	DocumentText string
	History      []models.Turn
	NewMessage   string
	Locale       string
}

// Result is the structured reply of one turn.
type Result struct {
	Text      string
	Sources   []Source
	Conflicts []models.Conflict
	Patches   []models.PatchRequest
	Usage     Usage
	Provider  string
	// Dropped counts tool calls discarded because their arguments were malformed.
	Dropped int
}

// Collaborator defines the interface for AI providers.
type Collaborator interface {
	// SendTurn sends the document, recent history and a new message, and
	// returns the provider's structured reply.
	SendTurn(ctx context.Context, req Request) (*Result, error)

	// Name returns the provider name.
	Name() string
}

// Options contains generation options shared by all providers.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

func optionsFrom(cfg *config.LLMConfig, defaultModel string) Options {
	opts := Options{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	return opts
}

// NewProvider creates the provider binding named in the configuration.
func NewProvider(cfg *config.LLMConfig) (Collaborator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "gemini":
		return NewGeminiProvider(cfg)
	case "ollama":
		return NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// NewCollaborator creates the configured provider wrapped in the quota retry policy.
func NewCollaborator(cfg *config.LLMConfig) (Collaborator, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewRetrying(provider, RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BackoffBase,
		MaxDelay:    cfg.BackoffMax,
	}), nil
}
