package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/collate-ai/collate/internal/documents"
	"github.com/collate-ai/collate/internal/engine"
	"github.com/collate-ai/collate/internal/pipeline"
	"github.com/collate-ai/collate/internal/providers"
	"github.com/collate-ai/collate/internal/runs"
	"github.com/collate-ai/collate/pkg/pagination"
)

// memStore is an in-memory runs.System for exercising the engine without
// Postgres.
type memStore struct {
	mu   sync.Mutex
	data map[uuid.UUID]*runs.WorkflowRun
}

func newMemStore() *memStore {
	return &memStore{data: make(map[uuid.UUID]*runs.WorkflowRun)}
}

func (s *memStore) put(run *runs.WorkflowRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[run.ID] = run
}

func (s *memStore) get(t *testing.T, id uuid.UUID) runs.WorkflowRun {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.data[id]
	if !ok {
		t.Fatalf("run %s not in store", id)
	}
	return *run
}

func (s *memStore) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters runs.Filters,
) (*pagination.PageResult[runs.WorkflowRun], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []runs.WorkflowRun
	for _, run := range s.data {
		out = append(out, *run)
	}
	result := pagination.NewPageResult(out, len(out), 1, len(out))
	return &result, nil
}

func (s *memStore) Find(ctx context.Context, id uuid.UUID) (*runs.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.data[id]
	if !ok {
		return nil, runs.ErrNotFound
	}
	copied := *run
	return &copied, nil
}

func (s *memStore) Create(ctx context.Context, cmd runs.CreateCommand) (*runs.WorkflowRun, error) {
	run := &runs.WorkflowRun{
		ID:        uuid.New(),
		Pipeline:  cmd.Pipeline,
		Document:  cmd.Document,
		Prompt:    cmd.Prompt,
		Providers: cmd.Providers,
		Status:    runs.StatusPending,
		Records:   []runs.StageRecord{},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.put(run)
	return run, nil
}

func (s *memStore) Claim(ctx context.Context, workerID string) (*runs.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.data {
		if run.Status == runs.StatusPending {
			run.Status = runs.StatusRunning
			run.ClaimedBy = &workerID
			copied := *run
			return &copied, nil
		}
	}
	return nil, runs.ErrNonePending
}

func (s *memStore) RecordStage(ctx context.Context, id uuid.UUID, record runs.StageRecord) (*runs.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.data[id]
	if !ok {
		return nil, runs.ErrNotFound
	}
	if run.Status != runs.StatusRunning {
		return nil, runs.ErrNotRunning
	}
	run.Records = append(run.Records, record)
	run.Cursor++
	copied := *run
	return &copied, nil
}

func (s *memStore) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) (*runs.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.data[id]
	if !ok {
		return nil, runs.ErrNotFound
	}
	run.Status = runs.StatusSucceeded
	run.Result = result
	copied := *run
	return &copied, nil
}

func (s *memStore) Fail(ctx context.Context, id uuid.UUID, message string) (*runs.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.data[id]
	if !ok {
		return nil, runs.ErrNotFound
	}
	run.Status = runs.StatusFailed
	run.Error = &message
	copied := *run
	return &copied, nil
}

func (s *memStore) Requeue(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, run := range s.data {
		if run.Status == runs.StatusRunning {
			run.Status = runs.StatusPending
			run.ClaimedBy = nil
			count++
		}
	}
	return count, nil
}

// scriptedExec returns canned results keyed by provider and step kind, and
// records every request it served.
type scriptedExec struct {
	mu       sync.Mutex
	results  map[string]*pipeline.StepResult
	failures map[string]error
	requests []pipeline.Request
}

func newScriptedExec() *scriptedExec {
	return &scriptedExec{
		results:  make(map[string]*pipeline.StepResult),
		failures: make(map[string]error),
	}
}

func execKey(provider string, kind pipeline.StepKind) string {
	return provider + "/" + string(kind)
}

func (s *scriptedExec) on(provider string, kind pipeline.StepKind, result *pipeline.StepResult) {
	result.Provider = provider
	result.Kind = kind
	s.results[execKey(provider, kind)] = result
}

func (s *scriptedExec) failOn(provider string, kind pipeline.StepKind, err error) {
	s.failures[execKey(provider, kind)] = err
}

func (s *scriptedExec) Execute(ctx context.Context, req pipeline.Request) (*pipeline.StepResult, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	key := execKey(req.Provider, req.Kind)
	if err, ok := s.failures[key]; ok {
		return nil, err
	}
	if result, ok := s.results[key]; ok {
		copied := *result
		return &copied, nil
	}
	return nil, pipeline.FatalErr(fmt.Errorf("unscripted request %s", key))
}

func (s *scriptedExec) served(provider string, kind pipeline.StepKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, req := range s.requests {
		if req.Provider == provider && req.Kind == kind {
			count++
		}
	}
	return count
}

func (s *scriptedExec) request(provider string, kind pipeline.StepKind) (pipeline.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.requests {
		if req.Provider == provider && req.Kind == kind {
			return req, true
		}
	}
	return pipeline.Request{}, false
}

func testDocument(t *testing.T) documents.Reference {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.txt")
	if err := os.WriteFile(path, []byte("quarterly figures"), 0o644); err != nil {
		t.Fatal(err)
	}
	return documents.Reference{Path: path}
}

func testEngine(t *testing.T, store runs.System, exec pipeline.Executor) *engine.Engine {
	t.Helper()

	cfg := engine.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("config finalize: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	loader := documents.NewLoader(nil, 1<<20, logger)
	registry := providers.NewRegistry(logger)
	registry.Register(&stubAdapter{name: providers.Gemini})
	registry.Register(&stubAdapter{name: providers.OpenAI})
	registry.Register(&stubAdapter{name: providers.Anthropic})

	return engine.New(store, exec, loader, registry, &cfg, logger)
}

type stubAdapter struct {
	name string
}

func (a *stubAdapter) Name() string  { return a.name }
func (a *stubAdapter) Model() string { return "stub" }
func (a *stubAdapter) Execute(ctx context.Context, req pipeline.Request) (*pipeline.StepResult, error) {
	return &pipeline.StepResult{Kind: req.Kind, Provider: a.name}, nil
}

func TestSubmitRejectsUnknownPipeline(t *testing.T) {
	eng := testEngine(t, newMemStore(), newScriptedExec())

	_, err := eng.Submit(context.Background(), runs.CreateCommand{
		Pipeline: "transmogrify",
		Document: testDocument(t),
	})
	if !errors.Is(err, engine.ErrUnknownPipeline) {
		t.Errorf("Submit() error = %v, want ErrUnknownPipeline", err)
	}
}

func TestSubmitRejectsUnknownProvider(t *testing.T) {
	eng := testEngine(t, newMemStore(), newScriptedExec())

	_, err := eng.Submit(context.Background(), runs.CreateCommand{
		Pipeline:  engine.PipelineConsensus,
		Document:  testDocument(t),
		Providers: []string{providers.Gemini, "mistral"},
	})
	if !errors.Is(err, engine.ErrUnknownProvider) {
		t.Errorf("Submit() error = %v, want ErrUnknownProvider", err)
	}
}

func TestSubmitCreatesPendingRun(t *testing.T) {
	store := newMemStore()
	eng := testEngine(t, store, newScriptedExec())

	run, err := eng.Submit(context.Background(), runs.CreateCommand{
		Pipeline: engine.PipelineExtract,
		Document: testDocument(t),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if run.Status != runs.StatusPending {
		t.Errorf("Status = %q, want pending", run.Status)
	}
	if got := store.get(t, run.ID); got.Pipeline != engine.PipelineExtract {
		t.Errorf("stored pipeline = %q", got.Pipeline)
	}
}

func TestAwaitResultSucceeded(t *testing.T) {
	store := newMemStore()
	eng := testEngine(t, store, newScriptedExec())

	composite := engine.CompositeResult{
		RunID:    uuid.New(),
		Pipeline: engine.PipelineExtract,
		FullText: "done",
	}
	raw, _ := json.Marshal(composite)
	store.put(&runs.WorkflowRun{
		ID:     composite.RunID,
		Status: runs.StatusSucceeded,
		Result: raw,
	})

	got, err := eng.AwaitResult(context.Background(), composite.RunID, time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitResult() error = %v", err)
	}
	if got.FullText != "done" {
		t.Errorf("FullText = %q, want done", got.FullText)
	}
}

func TestAwaitResultFailed(t *testing.T) {
	store := newMemStore()
	eng := testEngine(t, store, newScriptedExec())

	id := uuid.New()
	message := "provider_fatal: upstream rejected document"
	store.put(&runs.WorkflowRun{
		ID:     id,
		Status: runs.StatusFailed,
		Error:  &message,
	})

	_, err := eng.AwaitResult(context.Background(), id, time.Millisecond)
	if !errors.Is(err, engine.ErrRunFailed) {
		t.Fatalf("AwaitResult() error = %v, want ErrRunFailed", err)
	}
	if !strings.Contains(err.Error(), "upstream rejected document") {
		t.Errorf("error %q missing recorded message", err)
	}
}

func TestResumeSweepsStaleClaims(t *testing.T) {
	store := newMemStore()
	eng := testEngine(t, store, newScriptedExec())

	id := uuid.New()
	store.put(&runs.WorkflowRun{ID: id, Status: runs.StatusRunning})

	if err := eng.Resume(context.Background()); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if got := store.get(t, id); got.Status != runs.StatusPending {
		t.Errorf("Status = %q, want pending after sweep", got.Status)
	}
}
