// Package llm provides OpenAI implementation of the Collaborator interface.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/factchecker/labdesk/internal/config"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Collaborator using the OpenAI chat completions API
// with function tools.
type OpenAIProvider struct {
	client *openai.Client
	opts   Options
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg *config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		opts:   optionsFrom(cfg, "gpt-4o-mini"),
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// SendTurn sends one conversation turn.
func (p *OpenAIProvider) SendTurn(ctx context.Context, req Request) (*Result, error) {
	messages := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: buildSystemPrompt(req),
	}}
	for _, m := range buildMessages(req) {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	tools := make([]openai.Tool, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.opts.Model,
		Messages:    messages,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: float32(p.opts.Temperature),
		Tools:       tools,
	})
	if err != nil {
		return nil, p.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned no choices: %w", ErrMalformedResponse)
	}

	msg := resp.Choices[0].Message
	calls := make([]toolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		calls = append(calls, toolCall{
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}

	res := assemble(p.Name(), msg.Content, calls)
	res.Usage.TotalTokens = resp.Usage.TotalTokens
	return res, nil
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classify(p.Name(), apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classify(p.Name(), reqErr.HTTPStatusCode, reqErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("OpenAI completion failed: %w", err)
	}
	return transportError(p.Name(), err)
}
