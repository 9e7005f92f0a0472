package pipeline

import (
	"context"
	"errors"
	"time"
)

// Executor performs the remote call bound to a step. Provider adapters and
// the queue dispatcher both satisfy this contract.
type Executor interface {
	Execute(ctx context.Context, req Request) (*StepResult, error)
}

// Step binds one provider call to a timeout and a retry policy.
type Step struct {
	Kind     StepKind
	Provider string
	Timeout  time.Duration
	Retry    Policy
	Optional bool
}

// Run executes the step against exec, retrying per the step's policy.
// Attempts that exceed the step timeout count as failures of KindTimeout.
// A failure whose kind is listed as non-retryable surfaces immediately with
// no backoff wait; otherwise attempts continue until success or exhaustion,
// at which point the last error is wrapped in KindRetriesExhausted.
func (s Step) Run(ctx context.Context, exec Executor, req Request) (*StepResult, error) {
	req.Kind = s.Kind
	req.Provider = s.Provider

	var last error
	for attempt := 1; ; attempt++ {
		result, err := s.attempt(ctx, exec, req)
		if err == nil {
			return result, nil
		}

		last = err
		kind := Classify(err)

		if !s.Retry.Retryable(kind) {
			return nil, err
		}
		if attempt >= s.Retry.MaxAttempts {
			return nil, &StepError{Kind: KindRetriesExhausted, Err: last}
		}

		select {
		case <-time.After(s.Retry.Delay(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s Step) attempt(ctx context.Context, exec Executor, req Request) (*StepResult, error) {
	actx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	result, err := exec.Execute(actx, req)
	if err != nil {
		// Distinguish the step deadline from cancellation of the whole run.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &StepError{Kind: KindTimeout, Err: err}
		}
		return nil, err
	}

	return result, nil
}
