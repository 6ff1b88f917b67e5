package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrQuotaExceeded marks rate-limit and quota failures; these are retried.
	ErrQuotaExceeded = errors.New("provider quota exceeded")
	// ErrAuth marks rejected or missing credentials.
	ErrAuth = errors.New("provider rejected credentials")
	// ErrUnavailable marks transport failures and provider-side outages.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrMalformedResponse marks replies that could not be decoded.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// ProviderError is a failure reported by a provider API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Kind       error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Kind
}

// classify maps an HTTP status and provider message to a ProviderError.
func classify(provider string, status int, message string) error {
	lower := strings.ToLower(message)
	var kind error
	switch {
	case status == http.StatusTooManyRequests,
		strings.Contains(lower, "resource_exhausted"),
		strings.Contains(lower, "quota"),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "rate_limit"):
		kind = ErrQuotaExceeded
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = ErrAuth
	case status >= 500:
		kind = ErrUnavailable
	}
	return &ProviderError{Provider: provider, StatusCode: status, Message: message, Kind: kind}
}

// transportError wraps a failed HTTP round trip.
func transportError(provider string, err error) error {
	return fmt.Errorf("%s request failed: %w", provider, errors.Join(ErrUnavailable, err))
}

// IsQuota reports whether err is a quota or rate-limit failure.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// UserMessage turns a collaborator failure into text fit for the conversation.
// Provider payloads and wrapped error chains are never included.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "The AI assistant did not respond in time. Please try again."
	case errors.Is(err, context.Canceled):
		return "The request to the AI assistant was cancelled."
	case errors.Is(err, ErrQuotaExceeded):
		return "The AI provider's usage quota is exhausted. Please wait a moment and try again."
	case errors.Is(err, ErrAuth):
		return "The AI provider rejected the configured credentials. Check the API key."
	case errors.Is(err, ErrMalformedResponse):
		return "The AI assistant returned a response that could not be read. Please try again."
	default:
		return "The AI assistant could not be reached. Please try again."
	}
}
