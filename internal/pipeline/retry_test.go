package pipeline_test

import (
	"strings"
	"testing"
	"time"

	"github.com/collate-ai/collate/internal/pipeline"
)

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  pipeline.Policy
		wantErr string
	}{
		{
			name: "valid",
			policy: pipeline.Policy{
				MaxAttempts:     3,
				InitialInterval: 10 * time.Second,
				MaxInterval:     time.Minute,
			},
		},
		{
			name:    "zero attempts",
			policy:  pipeline.Policy{MaxAttempts: 0},
			wantErr: "max_attempts",
		},
		{
			name: "initial exceeds max",
			policy: pipeline.Policy{
				MaxAttempts:     3,
				InitialInterval: 2 * time.Minute,
				MaxInterval:     time.Minute,
			},
			wantErr: "exceeds max_interval",
		},
		{
			name: "negative interval",
			policy: pipeline.Policy{
				MaxAttempts:     1,
				InitialInterval: -time.Second,
			},
			wantErr: "non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestPolicyDelayDoublesAndCaps(t *testing.T) {
	policy := pipeline.Policy{
		MaxAttempts:     5,
		InitialInterval: 10 * time.Second,
		MaxInterval:     time.Minute,
	}

	want := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		time.Minute,
		time.Minute,
	}

	for attempt, expected := range want {
		if got := policy.Delay(attempt + 1); got != expected {
			t.Errorf("Delay(%d) = %v, want %v", attempt+1, got, expected)
		}
	}
}

func TestPolicyDelayMonotone(t *testing.T) {
	policy := pipeline.Policy{
		MaxAttempts:     10,
		InitialInterval: 15 * time.Second,
		MaxInterval:     2 * time.Minute,
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		delay := policy.Delay(attempt)
		if delay < prev {
			t.Fatalf("Delay(%d) = %v decreased from %v", attempt, delay, prev)
		}
		if delay > policy.MaxInterval {
			t.Fatalf("Delay(%d) = %v exceeds cap %v", attempt, delay, policy.MaxInterval)
		}
		prev = delay
	}
}

func TestPolicyRetryable(t *testing.T) {
	policy := pipeline.Policy{
		MaxAttempts:  3,
		NonRetryable: []pipeline.ErrorKind{pipeline.KindInput, pipeline.KindConfig},
	}

	tests := []struct {
		kind pipeline.ErrorKind
		want bool
	}{
		{pipeline.KindInput, false},
		{pipeline.KindConfig, false},
		{pipeline.KindProviderTransient, true},
		{pipeline.KindTimeout, true},
		{pipeline.KindProviderFatal, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := policy.Retryable(tt.kind); got != tt.want {
				t.Errorf("Retryable(%s) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}
