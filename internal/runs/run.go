// Package runs implements durable workflow run state for Collate. A run is one
// row in Postgres: the pipeline name, document reference, provider set, and an
// append-only log of completed stage records. Workers claim pending runs,
// replay completed stages from the record log, and advance the cursor as new
// stages finish.
package runs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/collate-ai/collate/internal/documents"
	"github.com/collate-ai/collate/internal/pipeline"
)

// Run lifecycle statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// StageRecord is the persisted outcome of one completed pipeline stage,
// keyed by provider name for fan-out stages. Single-provider stages hold
// exactly one entry.
type StageRecord struct {
	Name    string                         `json:"name"`
	Results map[string]pipeline.StepResult `json:"results"`
}

// WorkflowRun mirrors the workflow_runs table. Records holds the stage log in
// execution order; Cursor counts how many stages have completed, so a
// restarted run replays Records[0:Cursor] without re-executing them.
type WorkflowRun struct {
	ID          uuid.UUID           `json:"id"`
	Pipeline    string              `json:"pipeline"`
	Document    documents.Reference `json:"document"`
	Prompt      string              `json:"prompt,omitempty"`
	Providers   []string            `json:"providers"`
	Status      string              `json:"status"`
	Cursor      int                 `json:"cursor"`
	Records     []StageRecord       `json:"records"`
	Result      json.RawMessage     `json:"result,omitempty"`
	Error       *string             `json:"error,omitempty"`
	ClaimedBy   *string             `json:"claimed_by,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Record returns the stage record at cursor position i, or nil when the run
// has not progressed that far.
func (r *WorkflowRun) Record(i int) *StageRecord {
	if i < 0 || i >= r.Cursor || i >= len(r.Records) {
		return nil
	}
	return &r.Records[i]
}

// Terminal reports whether the run has reached a final status.
func (r *WorkflowRun) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// CreateCommand carries the data needed to submit a new run.
type CreateCommand struct {
	Pipeline  string              `json:"pipeline"`
	Document  documents.Reference `json:"document"`
	Prompt    string              `json:"prompt,omitempty"`
	Providers []string            `json:"providers"`
}
