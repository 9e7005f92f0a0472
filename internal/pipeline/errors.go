// Package pipeline provides the building blocks for document pipeline
// execution: the error taxonomy, retry policies, step result shapes, and the
// retryable step runner that wraps provider calls.
package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies step failures for retry decisions. Kinds are compared
// by value; classification never inspects error strings or type names.
type ErrorKind string

// Error kinds, ordered roughly from startup-time to runtime failures.
const (
	KindConfig            ErrorKind = "config"
	KindInput             ErrorKind = "input"
	KindProviderTransient ErrorKind = "provider_transient"
	KindProviderFatal     ErrorKind = "provider_fatal"
	KindTimeout           ErrorKind = "timeout"
	KindRetriesExhausted  ErrorKind = "retries_exhausted"
)

// StepError carries a classified error kind alongside the underlying cause.
type StepError struct {
	Kind ErrorKind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ConfigErr wraps err as a fatal configuration error.
func ConfigErr(err error) error {
	return &StepError{Kind: KindConfig, Err: err}
}

// InputErr wraps err as a fatal input error (missing file, unreadable document).
func InputErr(err error) error {
	return &StepError{Kind: KindInput, Err: err}
}

// TransientErr wraps err as a retryable provider error.
func TransientErr(err error) error {
	return &StepError{Kind: KindProviderTransient, Err: err}
}

// FatalErr wraps err as a non-retryable provider error.
func FatalErr(err error) error {
	return &StepError{Kind: KindProviderFatal, Err: err}
}

// Classify maps an error to its ErrorKind. Classified StepErrors report their
// own kind, deadline expiry maps to KindTimeout, and anything unrecognized
// defaults to KindProviderTransient so that unknown provider failures remain
// retryable.
func Classify(err error) ErrorKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	return KindProviderTransient
}
