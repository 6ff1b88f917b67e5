package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/factchecker/labdesk/internal/config"
	"github.com/factchecker/labdesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() Request {
	return Request{
		DocumentText: "Water boils at 99°C.",
		History: []models.Turn{
			{Role: models.RoleAssistant, Text: "Hello, upload a report to begin."},
			{Role: models.RoleUser, Text: "Is the boiling point right?"},
			{Role: models.RoleAssistant, Text: "Let me check."},
		},
		NewMessage: "Please fix it.",
		Locale:     "en",
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func TestOpenAIProvider_SendTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body := decodeBody(t, r)
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Len(t, body["tools"], 3)
		msgs := body["messages"].([]any)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "Fixed the boiling point.",
					"tool_calls": [
						{"id": "c1", "type": "function", "function": {"name": "update_report", "arguments": "{\"search_text\":\"99°C\",\"replacement_text\":\"100°C\"}"}},
						{"id": "c2", "type": "function", "function": {"name": "cite_source", "arguments": "{\"uri\":\"https://example.org/water\"}"}}
					]
				}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(&config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	res, err := p.SendTurn(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "Fixed the boiling point.", res.Text)
	assert.Equal(t, []models.PatchRequest{{SearchText: "99°C", ReplacementText: "100°C"}}, res.Patches)
	assert.Equal(t, []Source{{URI: "https://example.org/water"}}, res.Sources)
	assert.Equal(t, 15, res.Usage.TotalTokens)
	assert.Equal(t, "openai", res.Provider)
}

func TestOpenAIProvider_QuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(&config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = p.SendTurn(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, IsQuota(err))
}

func TestOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(&config.LLMConfig{})
	assert.Error(t, err)
}

func TestAnthropicProvider_SendTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		body := decodeBody(t, r)
		assert.Contains(t, body["system"], "Water boils at 99°C.")
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 3)
		assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "Is the boiling point right?", msgs[0].(map[string]any)["content"])
		assert.Equal(t, "Please fix it.", msgs[2].(map[string]any)["content"])

		io.WriteString(w, `{
			"content": [
				{"type": "text", "text": "There is a discrepancy."},
				{"type": "tool_use", "name": "report_conflict", "input": {"existing_info": "99°C", "new_info": "100°C", "description": "Boiling point"}}
			],
			"usage": {"input_tokens": 20, "output_tokens": 7}
		}`)
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(&config.LLMConfig{APIKey: "ak-test", BaseURL: srv.URL})
	require.NoError(t, err)

	res, err := p.SendTurn(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "There is a discrepancy.", res.Text)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "Boiling point", res.Conflicts[0].Description)
	assert.Equal(t, 27, res.Usage.TotalTokens)
}

func TestAnthropicProvider_RateLimitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(&config.LLMConfig{APIKey: "ak-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.SendTurn(context.Background(), testRequest())
	assert.True(t, IsQuota(err))
}

func TestGeminiProvider_SendTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gk-test", r.URL.Query().Get("key"))
		body := decodeBody(t, r)
		tools := body["tools"].([]any)
		decls := tools[0].(map[string]any)["functionDeclarations"].([]any)
		require.Len(t, decls, 3)
		params := decls[0].(map[string]any)["parameters"].(map[string]any)
		assert.Equal(t, "OBJECT", params["type"])

		io.WriteString(w, `{
			"candidates": [{
				"content": {"role": "model", "parts": [
					{"text": "Updated."},
					{"functionCall": {"name": "update_report", "args": {"searchText": "99°C", "replacementText": "100°C"}}}
				]},
				"groundingMetadata": {"groundingChunks": [{"web": {"uri": "https://example.org/water", "title": "Water"}}]}
			}],
			"usageMetadata": {"totalTokenCount": 42}
		}`)
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(&config.LLMConfig{APIKey: "gk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	res, err := p.SendTurn(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "Updated.", res.Text)
	assert.Equal(t, []models.PatchRequest{{SearchText: "99°C", ReplacementText: "100°C"}}, res.Patches)
	assert.Equal(t, []Source{{URI: "https://example.org/water", Title: "Water"}}, res.Sources)
	assert.Equal(t, 42, res.Usage.TotalTokens)
}

func TestGeminiProvider_ResourceExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(&config.LLMConfig{APIKey: "gk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.SendTurn(context.Background(), testRequest())
	assert.True(t, IsQuota(err))
}

func TestGeminiProvider_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates": []}`)
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(&config.LLMConfig{APIKey: "gk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.SendTurn(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGeminiSchema_UppercasesNestedTypes(t *testing.T) {
	out := geminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"uri": map[string]any{"type": "string", "description": "type"},
		},
	})

	assert.Equal(t, "OBJECT", out["type"])
	uri := out["properties"].(map[string]any)["uri"].(map[string]any)
	assert.Equal(t, "STRING", uri["type"])
	assert.Equal(t, "type", uri["description"])
}

func TestOllamaProvider_SendTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, false, body["stream"])
		assert.Equal(t, "llama3.1", body["model"])

		io.WriteString(w, `{
			"message": {
				"role": "assistant",
				"content": "Done.",
				"tool_calls": [
					{"function": {"name": "update_report", "arguments": {"search_text": "99°C", "replacement_text": "100°C"}}},
					{"function": {"name": "update_report", "arguments": {"replacement_text": "missing search"}}}
				]
			},
			"done": true,
			"prompt_eval_count": 30,
			"eval_count": 12
		}`)
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(&config.LLMConfig{OllamaURL: srv.URL + "/"})
	require.NoError(t, err)

	res, err := p.SendTurn(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "Done.", res.Text)
	assert.Len(t, res.Patches, 1)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 42, res.Usage.TotalTokens)
}

func TestOllamaProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"model not loaded"}`)
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(&config.LLMConfig{OllamaURL: srv.URL})
	require.NoError(t, err)

	_, err = p.SendTurn(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(&config.LLMConfig{Provider: "mystery"})
	assert.Error(t, err)

	c, err := NewCollaborator(&config.LLMConfig{Provider: "ollama", MaxAttempts: 2})
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.Name())
	_, ok := c.(*Retrying)
	assert.True(t, ok)
}
