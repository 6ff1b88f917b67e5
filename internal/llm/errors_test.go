package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status  int
		message string
		want    error
	}{
		{429, "slow down", ErrQuotaExceeded},
		{400, "RESOURCE_EXHAUSTED: quota", ErrQuotaExceeded},
		{529, "rate_limit_error: overloaded", ErrQuotaExceeded},
		{200, "Rate limit reached for requests", ErrQuotaExceeded},
		{401, "invalid key", ErrAuth},
		{403, "forbidden", ErrAuth},
		{503, "upstream down", ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d %s", tt.status, tt.message), func(t *testing.T) {
			err := classify("test", tt.status, tt.message)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "test error")
		})
	}

	err := classify("test", 400, "bad request")
	for _, kind := range []error{ErrQuotaExceeded, ErrAuth, ErrUnavailable, ErrMalformedResponse} {
		assert.False(t, errors.Is(err, kind))
	}
}

func TestTransportError(t *testing.T) {
	err := transportError("ollama", errors.New("connection refused"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Contains(t, UserMessage(fmt.Errorf("x: %w", context.DeadlineExceeded)), "did not respond in time")
	assert.Contains(t, UserMessage(context.Canceled), "cancelled")
	assert.Contains(t, UserMessage(classify("p", 429, "")), "quota")
	assert.Contains(t, UserMessage(classify("p", 401, "")), "credentials")
	assert.Contains(t, UserMessage(ErrMalformedResponse), "could not be read")

	msg := UserMessage(classify("p", 500, `{"secret":"payload"}`))
	assert.NotContains(t, msg, "secret")
	assert.Contains(t, msg, "could not be reached")
}
