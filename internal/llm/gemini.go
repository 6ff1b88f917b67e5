// Package llm provides Google Gemini implementation of the Collaborator interface.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/factchecker/labdesk/internal/config"
)

// GeminiProvider implements Collaborator using the Gemini generateContent API
// with function declarations.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	opts       Options
	httpClient *http.Client
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(cfg *config.LLMConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	return &GeminiProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		opts:       optionsFrom(cfg, "gemini-1.5-flash"),
		httpClient: &http.Client{},
	}, nil
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content           geminiContent `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata,omitempty"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// SendTurn sends one conversation turn.
func (p *GeminiProvider) SendTurn(ctx context.Context, req Request) (*Result, error) {
	reqBody := geminiRequest{
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: buildSystemPrompt(req)}},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     p.opts.Temperature,
			MaxOutputTokens: p.opts.MaxTokens,
		},
	}
	for _, m := range alternate(buildMessages(req)) {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		reqBody.Contents = append(reqBody.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	decls := make([]geminiFunctionDeclaration, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		decls = append(decls, geminiFunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  geminiSchema(spec.Parameters),
		})
	}
	reqBody.Tools = []geminiTool{{FunctionDeclarations: decls}}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		p.baseURL, p.opts.Model, url.QueryEscape(p.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(bodyBytes))
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

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, classify(p.Name(), resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return nil, fmt.Errorf("failed to parse Gemini response: %w", ErrMalformedResponse)
	}

	if result.Error != nil {
		return nil, classify(p.Name(), result.Error.Code, result.Error.Status+": "+result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classify(p.Name(), resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("Gemini returned no candidates: %w", ErrMalformedResponse)
	}

	cand := result.Candidates[0]
	var text strings.Builder
	var calls []toolCall
	for _, part := range cand.Content.Parts {
		if part.FunctionCall != nil {
			calls = append(calls, toolCall{Name: part.FunctionCall.Name, Args: part.FunctionCall.Args})
			continue
		}
		text.WriteString(part.Text)
	}

	res := assemble(p.Name(), text.String(), calls)
	if cand.GroundingMetadata != nil {
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				res.Sources = append(res.Sources, Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
			}
		}
	}
	res.Usage.TotalTokens = result.UsageMetadata.TotalTokenCount
	return res, nil
}

// geminiSchema converts a JSON schema to Gemini's OpenAPI subset, which
// expects upper-case type names.
func geminiSchema(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		switch val := v.(type) {
		case map[string]any:
			out[k] = geminiSchema(val)
		case string:
			if k == "type" {
				out[k] = strings.ToUpper(val)
			} else {
				out[k] = val
			}
		default:
			out[k] = val
		}
	}
	return out
}
