// Package config handles application configuration from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	LLM          LLMConfig          `yaml:"llm"`
	Conversation ConversationConfig `yaml:"conversation"`
	Session      SessionConfig      `yaml:"session"`
	Citations    CitationConfig     `yaml:"citations"`
	RateLimits   RateLimitConfig    `yaml:"rate_limits"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"` // optional static bearer token
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, bolt
	Path   string `yaml:"path"`
}

type LLMConfig struct {
	Provider       string        `yaml:"provider"` // openai, anthropic, gemini, ollama
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	OllamaURL      string        `yaml:"ollama_url"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

type ConversationConfig struct {
	HistoryLimit int    `yaml:"history_limit"`
	Locale       string `yaml:"locale"`
}

type SessionConfig struct {
	StorageKey       string        `yaml:"storage_key"`
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
}

type CitationConfig struct {
	Style         string        `yaml:"style"` // apa, mla, harvard
	FetchMetadata bool          `yaml:"fetch_metadata"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, text
	File       string `yaml:"file"`   // optional, rotated
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./data/labdesk.db",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			MaxTokens:      4096,
			Temperature:    0.2,
			RequestTimeout: 60 * time.Second,
			MaxAttempts:    3,
			BackoffBase:    2 * time.Second,
			BackoffMax:     30 * time.Second,
		},
		Conversation: ConversationConfig{
			HistoryLimit: 10,
			Locale:       "en",
		},
		Session: SessionConfig{
			StorageKey:       "lab-report-session",
			AutosaveInterval: 30 * time.Second,
		},
		Citations: CitationConfig{
			Style:         "apa",
			FetchMetadata: true,
			FetchTimeout:  10 * time.Second,
			CacheTTL:      time.Hour,
		},
		RateLimits: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s (run with --generate-config to create one)", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	content := interpolateEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// GenerateSample creates a sample configuration file.
func GenerateSample(path string) error {
	sample := `# labdesk configuration

server:
  port: 8080
  # auth_token: ${LABDESK_TOKEN}

database:
  driver: sqlite  # sqlite or bolt
  path: ./data/labdesk.db

llm:
  provider: openai  # openai, anthropic, gemini, ollama
  model: gpt-4o-mini
  api_key: ${OPENAI_API_KEY}
  max_tokens: 4096
  temperature: 0.2
  request_timeout: 60s
  max_attempts: 3     # total attempts when the provider reports quota exhaustion
  backoff_base: 2s
  backoff_max: 30s

  # For Anthropic Claude:
  # provider: anthropic
  # model: claude-3-5-haiku-latest
  # api_key: ${ANTHROPIC_API_KEY}

  # For Google Gemini:
  # provider: gemini
  # model: gemini-1.5-flash
  # api_key: ${GEMINI_API_KEY}

  # For Ollama (local):
  # provider: ollama
  # model: llama3.1
  # ollama_url: http://localhost:11434

conversation:
  history_limit: 10
  locale: en

session:
  storage_key: lab-report-session
  autosave_interval: 30s

citations:
  style: apa  # apa, mla, harvard
  fetch_metadata: true
  fetch_timeout: 10s
  cache_ttl: 1h

rate_limits:
  requests_per_minute: 60

logging:
  level: info  # debug, info, warn, error
  format: json # json or text
  # file: ./data/labdesk.log
`
	return os.WriteFile(path, []byte(sample), 0644)
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "bolt" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	validProviders := map[string]bool{"openai": true, "anthropic": true, "gemini": true, "ollama": true}
	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("OpenAI API key is required")
		}
	case "anthropic":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("Anthropic API key is required")
		}
	case "gemini":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("Gemini API key is required")
		}
	}

	if c.LLM.RequestTimeout <= 0 {
		return fmt.Errorf("llm.request_timeout must be positive")
	}
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm.max_attempts must be at least 1")
	}
	if c.Conversation.HistoryLimit < 0 {
		return fmt.Errorf("conversation.history_limit must not be negative")
	}
	if c.Session.StorageKey == "" {
		return fmt.Errorf("session.storage_key is required")
	}

	switch c.Citations.Style {
	case "apa", "mla", "harvard":
	default:
		return fmt.Errorf("unsupported citation style: %s", c.Citations.Style)
	}

	return nil
}

// interpolateEnvVars replaces ${VAR_NAME} with environment variable values.
func interpolateEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return match
	})
}
