package runs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/collate-ai/collate/pkg/pagination"
)

// System defines the public contract for workflow run persistence.
type System interface {
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[WorkflowRun], error)

	Find(ctx context.Context, id uuid.UUID) (*WorkflowRun, error)
	Create(ctx context.Context, cmd CreateCommand) (*WorkflowRun, error)

	// Claim atomically moves one pending run to running on behalf of a
	// worker. Returns ErrNonePending when no run is available.
	Claim(ctx context.Context, workerID string) (*WorkflowRun, error)

	// RecordStage appends a completed stage record and advances the cursor.
	// Only running runs accept records.
	RecordStage(ctx context.Context, id uuid.UUID, record StageRecord) (*WorkflowRun, error)

	Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) (*WorkflowRun, error)
	Fail(ctx context.Context, id uuid.UUID, message string) (*WorkflowRun, error)

	// Requeue returns running runs whose claim has gone stale back to
	// pending, reporting how many were reset. Used by the crash sweep on
	// worker startup.
	Requeue(ctx context.Context, olderThan time.Duration) (int, error)
}
