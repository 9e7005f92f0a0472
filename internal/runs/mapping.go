package runs

import (
	"encoding/json"
	"fmt"

	"github.com/collate-ai/collate/pkg/query"
	"github.com/collate-ai/collate/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "workflow_runs", "r").
	Project("id", "ID").
	Project("pipeline", "Pipeline").
	Project("document", "Document").
	Project("prompt", "Prompt").
	Project("providers", "Providers").
	Project("status", "Status").
	Project("cursor", "Cursor").
	Project("records", "Records").
	Project("result", "Result").
	Project("error", "Error").
	Project("claimed_by", "ClaimedBy").
	Project("created_at", "CreatedAt").
	Project("started_at", "StartedAt").
	Project("completed_at", "CompletedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for run queries.
// Nil fields are ignored. All fields use exact matching.
type Filters struct {
	Status   *string `json:"status,omitempty"`
	Pipeline *string `json:"pipeline,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("Pipeline", f.Pipeline)
}

const runColumns = `id, pipeline, document, prompt, providers, status, cursor,
	records, result, error, claimed_by, created_at, started_at, completed_at,
	updated_at`

func scanRun(s repository.Scanner) (WorkflowRun, error) {
	var r WorkflowRun
	var documentRaw, providersRaw, recordsRaw, resultRaw []byte

	err := s.Scan(
		&r.ID,
		&r.Pipeline,
		&documentRaw,
		&r.Prompt,
		&providersRaw,
		&r.Status,
		&r.Cursor,
		&recordsRaw,
		&resultRaw,
		&r.Error,
		&r.ClaimedBy,
		&r.CreatedAt,
		&r.StartedAt,
		&r.CompletedAt,
		&r.UpdatedAt,
	)

	if err != nil {
		return r, err
	}

	if len(documentRaw) > 0 {
		if err := json.Unmarshal(documentRaw, &r.Document); err != nil {
			return r, fmt.Errorf("unmarshal document: %w", err)
		}
	}

	if len(providersRaw) > 0 {
		if err := json.Unmarshal(providersRaw, &r.Providers); err != nil {
			return r, fmt.Errorf("unmarshal providers: %w", err)
		}
	}

	if len(recordsRaw) > 0 {
		if err := json.Unmarshal(recordsRaw, &r.Records); err != nil {
			return r, fmt.Errorf("unmarshal records: %w", err)
		}
	}

	if len(resultRaw) > 0 {
		r.Result = json.RawMessage(resultRaw)
	}

	if r.Providers == nil {
		r.Providers = []string{}
	}
	if r.Records == nil {
		r.Records = []StageRecord{}
	}

	return r, nil
}
