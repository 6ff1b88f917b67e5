// Package llm provides Ollama (local LLM) implementation of the Collaborator interface.
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

// OllamaProvider implements Collaborator using a local Ollama server's chat API.
type OllamaProvider struct {
	baseURL    string
	opts       Options
	httpClient *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(cfg *config.LLMConfig) (*OllamaProvider, error) {
	baseURL := cfg.OllamaURL
	if baseURL == "" {
		baseURL = cfg.BaseURL
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		opts:       optionsFrom(cfg, "llama3.1"),
		httpClient: &http.Client{},
	}, nil
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	ToolCalls []struct {
		Function struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	Error           string        `json:"error,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// SendTurn sends one conversation turn.
func (p *OllamaProvider) SendTurn(ctx context.Context, req Request) (*Result, error) {
	reqBody := ollamaChatRequest{
		Model:  p.opts.Model,
		Stream: false,
	}
	reqBody.Options.Temperature = p.opts.Temperature
	reqBody.Options.NumPredict = p.opts.MaxTokens

	reqBody.Messages = append(reqBody.Messages, ollamaMessage{Role: "system", Content: buildSystemPrompt(req)})
	for _, m := range buildMessages(req) {
		reqBody.Messages = append(reqBody.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	for _, spec := range toolSpecs {
		var t ollamaTool
		t.Type = "function"
		t.Function.Name = spec.Name
		t.Function.Description = spec.Description
		t.Function.Parameters = spec.Parameters
		reqBody.Tools = append(reqBody.Tools, t)
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(p.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(p.Name(), err)
	}

	var result ollamaChatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, classify(p.Name(), resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return nil, fmt.Errorf("failed to parse Ollama response: %w", ErrMalformedResponse)
	}

	if result.Error != "" || resp.StatusCode != http.StatusOK {
		msg := result.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, classify(p.Name(), resp.StatusCode, msg)
	}

	calls := make([]toolCall, 0, len(result.Message.ToolCalls))
	for _, tc := range result.Message.ToolCalls {
		calls = append(calls, toolCall{Name: tc.Function.Name, Args: tc.Function.Arguments})
	}

	res := assemble(p.Name(), result.Message.Content, calls)
	res.Usage.TotalTokens = result.PromptEvalCount + result.EvalCount
	return res, nil
}
