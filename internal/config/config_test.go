package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_InterpolatesEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("LABDESK_TEST_KEY", "sk-test")
	path := writeConfig(t, `
llm:
  provider: openai
  api_key: ${LABDESK_TEST_KEY}
  request_timeout: 15s
conversation:
  history_limit: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 15*time.Second, cfg.LLM.RequestTimeout)
	assert.Equal(t, 4, cfg.Conversation.HistoryLimit)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "lab-report-session", cfg.Session.StorageKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--generate-config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "llm: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestGenerateSample_IsLoadable(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-sample")
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, GenerateSample(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.Session.AutosaveInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid ollama without key", func(c *Config) { c.LLM.Provider = "ollama" }, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }, "unsupported database driver"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "azure" }, "unsupported LLM provider"},
		{"missing openai key", func(c *Config) { c.LLM.APIKey = "" }, "OpenAI API key is required"},
		{"missing gemini key", func(c *Config) { c.LLM.Provider = "gemini"; c.LLM.APIKey = "" }, "Gemini API key is required"},
		{"zero attempts", func(c *Config) { c.LLM.MaxAttempts = 0 }, "max_attempts"},
		{"zero timeout", func(c *Config) { c.LLM.RequestTimeout = 0 }, "request_timeout"},
		{"bad style", func(c *Config) { c.Citations.Style = "chicago" }, "citation style"},
		{"empty key", func(c *Config) { c.Session.StorageKey = "" }, "storage_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LLM.APIKey = "k"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInterpolateEnvVars_KeepsUnsetPlaceholders(t *testing.T) {
	t.Setenv("LABDESK_SET", "value")
	out := interpolateEnvVars("a=${LABDESK_SET} b=${LABDESK_UNSET_VAR}")
	assert.Equal(t, "a=value b=${LABDESK_UNSET_VAR}", out)
}
