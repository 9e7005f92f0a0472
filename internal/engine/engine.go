// Package engine implements the workflow orchestration core for Collate. It
// claims pending runs from the durable store, walks them through their
// pipeline's stages with replay from persisted records, and aggregates the
// stage outcomes into a composite result.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/collate-ai/collate/internal/documents"
	"github.com/collate-ai/collate/internal/pipeline"
	"github.com/collate-ai/collate/internal/providers"
	"github.com/collate-ai/collate/internal/runs"
)

// Engine errors surfaced to submitters.
var (
	ErrUnknownPipeline = errors.New("unknown pipeline")
	ErrUnknownProvider = errors.New("provider not configured")
	ErrRunFailed       = errors.New("workflow run failed")
)

// Engine coordinates run claiming and pipeline execution. Steps execute
// through exec, normally the queue dispatcher.
type Engine struct {
	store    runs.System
	exec     pipeline.Executor
	loader   *documents.Loader
	registry *providers.Registry
	cfg      *Config
	logger   *slog.Logger
	workerID string
}

// New creates an engine bound to a run store, a step executor, and the
// configured provider registry.
func New(
	store runs.System,
	exec pipeline.Executor,
	loader *documents.Loader,
	registry *providers.Registry,
	cfg *Config,
	logger *slog.Logger,
) *Engine {
	host, _ := os.Hostname()
	return &Engine{
		store:    store,
		exec:     exec,
		loader:   loader,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With("system", "engine"),
		workerID: fmt.Sprintf("%s-%d", host, os.Getpid()),
	}
}

// Submit validates and persists a new run. The run executes when a worker
// claims it.
func (e *Engine) Submit(ctx context.Context, cmd runs.CreateCommand) (*runs.WorkflowRun, error) {
	if !ValidPipeline(cmd.Pipeline) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, cmd.Pipeline)
	}

	for _, provider := range cmd.Providers {
		if !e.registry.Has(provider) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
		}
	}

	return e.store.Create(ctx, cmd)
}

// AwaitResult polls the run row until it reaches a terminal status and
// returns the composite result, or ErrRunFailed wrapping the recorded error.
func (e *Engine) AwaitResult(ctx context.Context, id uuid.UUID, poll time.Duration) (*CompositeResult, error) {
	if poll <= 0 {
		poll = e.cfg.PollIntervalDuration()
	}

	for {
		run, err := e.store.Find(ctx, id)
		if err != nil {
			return nil, err
		}

		switch run.Status {
		case runs.StatusSucceeded:
			var composite CompositeResult
			if err := json.Unmarshal(run.Result, &composite); err != nil {
				return nil, fmt.Errorf("unmarshal run result: %w", err)
			}
			return &composite, nil
		case runs.StatusFailed:
			message := "unknown error"
			if run.Error != nil {
				message = *run.Error
			}
			return nil, fmt.Errorf("%w: %s", ErrRunFailed, message)
		}

		select {
		case <-time.After(poll):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Resume returns stale running claims to pending so this worker can pick
// them up. Called once at worker startup before the claim loop.
func (e *Engine) Resume(ctx context.Context) error {
	count, err := e.store.Requeue(ctx, e.cfg.StaleClaimDuration())
	if err != nil {
		return fmt.Errorf("resume sweep: %w", err)
	}
	if count > 0 {
		e.logger.InfoContext(ctx, "orphaned runs recovered", "count", count)
	}
	return nil
}

// Run claims and executes pending runs until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "claim loop started",
		"worker", e.workerID,
		"poll_interval", e.cfg.PollInterval,
	)

	for {
		run, err := e.store.Claim(ctx, e.workerID)
		switch {
		case errors.Is(err, runs.ErrNonePending):
			select {
			case <-time.After(e.cfg.PollIntervalDuration()):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.ErrorContext(ctx, "claim failed", "error", err)
			select {
			case <-time.After(e.cfg.PollIntervalDuration()):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		e.Execute(ctx, run)
	}
}

// Execute walks a claimed run through its pipeline and records the terminal
// status. Failures classify through the error taxonomy; the raw provider
// error is recorded on the run, never returned to submitters.
func (e *Engine) Execute(ctx context.Context, run *runs.WorkflowRun) {
	started := time.Now()
	rc := &runContext{e: e, run: run}

	composite, err := e.dispatch(ctx, rc)
	if err != nil {
		kind := pipeline.Classify(err)
		message := fmt.Sprintf("%s: %v", kind, err)

		if _, failErr := e.store.Fail(ctx, run.ID, message); failErr != nil {
			e.logger.ErrorContext(ctx, "recording run failure failed",
				"run", run.ID,
				"error", failErr,
			)
		}

		e.logger.ErrorContext(ctx, "run failed",
			"run", run.ID,
			"pipeline", run.Pipeline,
			"kind", kind,
			"error", err,
			"elapsed", time.Since(started),
		)
		return
	}

	raw, err := json.Marshal(composite)
	if err != nil {
		e.store.Fail(ctx, run.ID, fmt.Sprintf("marshal composite result: %v", err))
		return
	}

	if _, err := e.store.Complete(ctx, run.ID, raw); err != nil {
		e.logger.ErrorContext(ctx, "recording run completion failed",
			"run", run.ID,
			"error", err,
		)
		return
	}

	e.logger.InfoContext(ctx, "run complete",
		"run", run.ID,
		"pipeline", run.Pipeline,
		"degraded", composite.Degraded,
		"elapsed", time.Since(started),
	)
}

func (e *Engine) dispatch(ctx context.Context, rc *runContext) (*CompositeResult, error) {
	switch rc.run.Pipeline {
	case PipelineExtract:
		return e.runExtract(ctx, rc)
	case PipelineMarkdown:
		return e.runMarkdown(ctx, rc)
	case PipelineConsensus:
		return e.runConsensus(ctx, rc)
	case PipelineChain:
		return e.runChain(ctx, rc)
	case PipelineSpecialist:
		return e.runSpecialist(ctx, rc)
	default:
		return nil, pipeline.ConfigErr(fmt.Errorf("%w: %q", ErrUnknownPipeline, rc.run.Pipeline))
	}
}
