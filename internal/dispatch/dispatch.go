// Package dispatch routes pipeline step requests onto provider-keyed task
// queues backed by bounded worker pools. Each provider gets its own queue so
// saturation or an outage of one provider never blocks work destined for
// another.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/collate-ai/collate/internal/pipeline"
)

// DefaultQueue receives requests for providers without a dedicated queue.
const DefaultQueue = "document-processing-queue"

// QueueFor returns the task queue name for a provider.
func QueueFor(provider string) string {
	if provider == "" {
		return DefaultQueue
	}
	return provider + "-ai-queue"
}

type task struct {
	ctx    context.Context
	req    pipeline.Request
	result chan outcome
}

type outcome struct {
	result *pipeline.StepResult
	err    error
}

type queue struct {
	name  string
	tasks chan task
}

// Dispatcher fans step requests out across per-provider worker pools, each
// executing against the shared downstream executor. It satisfies
// pipeline.Executor so steps can run through it transparently.
type Dispatcher struct {
	exec   pipeline.Executor
	cfg    *Config
	queues map[string]*queue
	logger *slog.Logger

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New creates a dispatcher with one queue per provider plus the default
// queue. Workers are not started until Start is called.
func New(exec pipeline.Executor, cfg *Config, providers []string, logger *slog.Logger) *Dispatcher {
	queues := make(map[string]*queue)
	for _, provider := range providers {
		name := QueueFor(provider)
		queues[name] = &queue{
			name:  name,
			tasks: make(chan task, cfg.Depth),
		}
	}
	queues[DefaultQueue] = &queue{
		name:  DefaultQueue,
		tasks: make(chan task, cfg.Depth),
	}

	return &Dispatcher{
		exec:   exec,
		cfg:    cfg,
		queues: queues,
		logger: logger.With("system", "dispatch"),
	}
}

// Queues returns the configured queue names in sorted order.
func (d *Dispatcher) Queues() []string {
	names := make([]string, 0, len(d.queues))
	for name := range d.queues {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start launches the worker pools. Workers run until Stop is called.
func (d *Dispatcher) Start(ctx context.Context) error {
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.group, wctx = errgroup.WithContext(wctx)

	for _, q := range d.queues {
		for i := range d.cfg.Workers {
			d.group.Go(d.worker(wctx, q, i))
		}
		d.logger.InfoContext(ctx, "queue started",
			"queue", q.name,
			"workers", d.cfg.Workers,
			"depth", d.cfg.Depth)
	}

	return nil
}

// Stop signals all workers to exit and waits for them to drain. In-flight
// executions run to completion; queued tasks that no worker picks up fail at
// the caller through its context.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()

	done := make(chan error, 1)
	go func() { done <- d.group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("dispatcher drain: %w", ctx.Err())
	}
}

// Execute enqueues the request on its provider's queue and blocks until a
// worker returns the result or ctx is done.
func (d *Dispatcher) Execute(ctx context.Context, req pipeline.Request) (*pipeline.StepResult, error) {
	q, ok := d.queues[QueueFor(req.Provider)]
	if !ok {
		q = d.queues[DefaultQueue]
	}

	t := task{
		ctx:    ctx,
		req:    req,
		result: make(chan outcome, 1),
	}

	select {
	case q.tasks <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-t.result:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) worker(ctx context.Context, q *queue, id int) func() error {
	return func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case t := <-q.tasks:
				if t.ctx.Err() != nil {
					// Caller gave up while queued.
					continue
				}

				result, err := d.exec.Execute(t.ctx, t.req)
				if err != nil {
					d.logger.Debug("step failed",
						"queue", q.name,
						"worker", id,
						"kind", t.req.Kind,
						"error", err)
				}
				t.result <- outcome{result: result, err: err}
			}
		}
	}
}
