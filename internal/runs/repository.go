package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/collate-ai/collate/pkg/pagination"
	"github.com/collate-ai/collate/pkg/query"
	"github.com/collate-ai/collate/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a run repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "runs"),
		pagination: pagination,
	}
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[WorkflowRun], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Pipeline", "Error")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanRun)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*WorkflowRun, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	run, err := repository.QueryOne(ctx, r.db, q, args, scanRun)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &run, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*WorkflowRun, error) {
	documentJSON, err := json.Marshal(cmd.Document)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}

	providers := cmd.Providers
	if providers == nil {
		providers = []string{}
	}
	providersJSON, err := json.Marshal(providers)
	if err != nil {
		return nil, fmt.Errorf("marshal providers: %w", err)
	}

	insertQ := fmt.Sprintf(`
		INSERT INTO workflow_runs(pipeline, document, prompt, providers, status, cursor, records)
		VALUES ($1, $2, $3, $4, '%s', 0, '[]'::jsonb)
		RETURNING %s`, StatusPending, runColumns)

	run, err := repository.QueryOne(ctx, r.db, insertQ,
		[]any{cmd.Pipeline, documentJSON, cmd.Prompt, providersJSON},
		scanRun,
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("run submitted",
		"id", run.ID,
		"pipeline", run.Pipeline,
		"providers", run.Providers,
	)
	return &run, nil
}

func (r *repo) Claim(ctx context.Context, workerID string) (*WorkflowRun, error) {
	selectQ := fmt.Sprintf(`
		SELECT id FROM workflow_runs
		WHERE status = '%s'
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, StatusPending)

	claimQ := fmt.Sprintf(`
		UPDATE workflow_runs
		SET status = '%s', claimed_by = $1,
			started_at = COALESCE(started_at, NOW()), updated_at = NOW()
		WHERE id = $2
		RETURNING %s`, StatusRunning, runColumns)

	run, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (WorkflowRun, error) {
		var id uuid.UUID
		if err := tx.QueryRowContext(ctx, selectQ).Scan(&id); err != nil {
			return WorkflowRun{}, err
		}
		return repository.QueryOne(ctx, tx, claimQ, []any{workerID, id}, scanRun)
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNonePending
		}
		return nil, fmt.Errorf("claim run: %w", err)
	}

	r.logger.Info("run claimed",
		"id", run.ID,
		"pipeline", run.Pipeline,
		"worker", workerID,
		"cursor", run.Cursor,
	)
	return &run, nil
}

func (r *repo) RecordStage(ctx context.Context, id uuid.UUID, record StageRecord) (*WorkflowRun, error) {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal stage record: %w", err)
	}

	updateQ := fmt.Sprintf(`
		UPDATE workflow_runs
		SET records = records || $1::jsonb, cursor = cursor + 1, updated_at = NOW()
		WHERE id = $2 AND status = '%s'
		RETURNING %s`, StatusRunning, runColumns)

	run, err := repository.QueryOne(ctx, r.db, updateQ, []any{recordJSON, id}, scanRun)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.resolveMissing(ctx, id)
		}
		return nil, fmt.Errorf("record stage: %w", err)
	}

	r.logger.Info("stage recorded",
		"id", run.ID,
		"stage", record.Name,
		"cursor", run.Cursor,
	)
	return &run, nil
}

func (r *repo) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) (*WorkflowRun, error) {
	updateQ := fmt.Sprintf(`
		UPDATE workflow_runs
		SET status = '%s', result = $1, completed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = '%s'
		RETURNING %s`, StatusSucceeded, StatusRunning, runColumns)

	run, err := repository.QueryOne(ctx, r.db, updateQ, []any{[]byte(result), id}, scanRun)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.resolveMissing(ctx, id)
		}
		return nil, fmt.Errorf("complete run: %w", err)
	}

	r.logger.Info("run succeeded",
		"id", run.ID,
		"pipeline", run.Pipeline,
		"stages", run.Cursor,
	)
	return &run, nil
}

func (r *repo) Fail(ctx context.Context, id uuid.UUID, message string) (*WorkflowRun, error) {
	updateQ := fmt.Sprintf(`
		UPDATE workflow_runs
		SET status = '%s', error = $1, completed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = '%s'
		RETURNING %s`, StatusFailed, StatusRunning, runColumns)

	run, err := repository.QueryOne(ctx, r.db, updateQ, []any{message, id}, scanRun)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.resolveMissing(ctx, id)
		}
		return nil, fmt.Errorf("fail run: %w", err)
	}

	r.logger.Warn("run failed",
		"id", run.ID,
		"pipeline", run.Pipeline,
		"error", message,
	)
	return &run, nil
}

func (r *repo) Requeue(ctx context.Context, olderThan time.Duration) (int, error) {
	requeueQ := fmt.Sprintf(`
		UPDATE workflow_runs
		SET status = '%s', claimed_by = NULL, updated_at = NOW()
		WHERE status = '%s' AND updated_at < NOW() - make_interval(secs => $1)`,
		StatusPending, StatusRunning)

	result, err := r.db.ExecContext(ctx, requeueQ, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("requeue stale runs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if rows > 0 {
		r.logger.Info("stale runs requeued", "count", rows)
	}
	return int(rows), nil
}

// resolveMissing distinguishes a missing run from one in the wrong status.
func (r *repo) resolveMissing(ctx context.Context, id uuid.UUID) error {
	run, err := r.Find(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if run.Status != StatusRunning {
		return fmt.Errorf("%w: status is %s", ErrNotRunning, run.Status)
	}
	return ErrNotFound
}
