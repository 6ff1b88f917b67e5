package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds quota retries. MaxAttempts counts every call, including
// the first one.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Backoff returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 || p.BaseDelay <= 0 {
		return 0
	}
	wait := p.BaseDelay * time.Duration(1<<uint(attempt-1))
	if p.MaxDelay > 0 && wait > p.MaxDelay {
		return p.MaxDelay
	}
	return wait
}

// Retrying retries quota failures of the wrapped collaborator with exponential backoff.
type Retrying struct {
	next   Collaborator
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps next with policy.
func NewRetrying(next Collaborator, policy RetryPolicy) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrying{next: next, policy: policy, sleep: sleepWithContext}
}

// Name returns the wrapped provider name.
func (r *Retrying) Name() string {
	return r.next.Name()
}

// SendTurn calls the wrapped collaborator, retrying only on ErrQuotaExceeded.
func (r *Retrying) SendTurn(ctx context.Context, req Request) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		res, err := r.next.SendTurn(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, ErrQuotaExceeded) || attempt == r.policy.MaxAttempts {
			break
		}

		wait := r.policy.Backoff(attempt)
		log.Warn().
			Str("provider", r.next.Name()).
			Int("attempt", attempt).
			Int("max_attempts", r.policy.MaxAttempts).
			Dur("retry_in", wait).
			Msg("Provider quota exceeded, backing off")
		if err := r.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	if errors.Is(lastErr, ErrQuotaExceeded) {
		return nil, fmt.Errorf("retries exhausted after %d attempts: %w", r.policy.MaxAttempts, lastErr)
	}
	return nil, lastErr
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
