package pipeline

import (
	"fmt"
	"slices"
	"time"
)

// Policy bounds the retry behavior of a single pipeline step.
type Policy struct {
	MaxAttempts     int           `json:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval"`
	NonRetryable    []ErrorKind   `json:"non_retryable,omitempty"`
}

// Validate reports whether the policy bounds are coherent.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialInterval < 0 || p.MaxInterval < 0 {
		return fmt.Errorf("retry intervals must be non-negative")
	}
	if p.InitialInterval > p.MaxInterval {
		return fmt.Errorf(
			"initial_interval %v exceeds max_interval %v",
			p.InitialInterval, p.MaxInterval,
		)
	}
	return nil
}

// Retryable reports whether a failure of the given kind may be retried
// under this policy. Kinds not listed as non-retryable are retryable.
func (p Policy) Retryable(kind ErrorKind) bool {
	return !slices.Contains(p.NonRetryable, kind)
}

// Delay returns the backoff interval after the given 1-based attempt.
// The schedule doubles from InitialInterval and is capped at MaxInterval,
// so successive delays are non-decreasing.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.InitialInterval
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxInterval {
			return p.MaxInterval
		}
	}

	return min(delay, p.MaxInterval)
}
