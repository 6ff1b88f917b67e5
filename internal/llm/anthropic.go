// Package llm provides Anthropic Claude implementation of the Collaborator interface.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/factchecker/labdesk/internal/config"
)

// AnthropicProvider implements Collaborator using the Anthropic Messages API with tool use.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	opts       Options
	httpClient *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg *config.LLMConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		opts:       optionsFrom(cfg, "claude-3-5-haiku-latest"),
		httpClient: &http.Client{},
	}, nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// SendTurn sends one conversation turn.
func (p *AnthropicProvider) SendTurn(ctx context.Context, req Request) (*Result, error) {
	reqBody := anthropicRequest{
		Model:       p.opts.Model,
		MaxTokens:   p.opts.MaxTokens,
		System:      buildSystemPrompt(req),
		Temperature: p.opts.Temperature,
	}
	for _, m := range alternate(buildMessages(req)) {
		reqBody.Messages = append(reqBody.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	for _, spec := range toolSpecs {
		reqBody.Tools = append(reqBody.Tools, anthropicTool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.Parameters,
		})
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(p.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(p.Name(), err)
	}

	var result anthropicResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, classify(p.Name(), resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return nil, fmt.Errorf("failed to parse Anthropic response: %w", ErrMalformedResponse)
	}

	if result.Error != nil || resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if result.Error != nil {
			msg = result.Error.Type + ": " + result.Error.Message
		}
		return nil, classify(p.Name(), resp.StatusCode, msg)
	}

	var text strings.Builder
	var calls []toolCall
	for _, block := range result.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			calls = append(calls, toolCall{Name: block.Name, Args: block.Input})
		}
	}

	res := assemble(p.Name(), text.String(), calls)
	res.Usage.TotalTokens = result.Usage.InputTokens + result.Usage.OutputTokens
	return res, nil
}
