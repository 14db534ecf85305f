package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// RunRepo provides database operations for pipeline runs.
type RunRepo struct {
	DB           *sql.DB
	logger       *slog.Logger
	timeProvider TimeProvider
}

// NewRunRepo creates a RunRepo with the given database handle.
func NewRunRepo(db *sql.DB, logger *slog.Logger) *RunRepo {
	return &RunRepo{
		DB:           db,
		logger:       logger,
		timeProvider: &RealTimeProvider{},
	}
}

const runColumns = `id, tenant_id, domains, options, status, metrics,
	started_at, completed_at, created_at, updated_at`

func scanRunRow(scanner interface{ Scan(...any) error }) (*model.Run, error) {
	run := &model.Run{}
	var (
		domains                 []byte
		options, metrics        []byte
		startedAt, completedAt  sql.NullTime
	)

	if err := scanner.Scan(
		&run.ID,
		&run.TenantID,
		&domains,
		&options,
		&run.Status,
		&metrics,
		&startedAt,
		&completedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(domains, &run.Domains); err != nil {
		return nil, fmt.Errorf("decode run domains: %w", err)
	}
	if err := json.Unmarshal(options, &run.Options); err != nil {
		return nil, fmt.Errorf("decode run options: %w", err)
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &run.Metrics); err != nil {
			return nil, fmt.Errorf("decode run metrics: %w", err)
		}
	}
	run.StartedAt = cloneNullableTime(startedAt)
	run.CompletedAt = cloneNullableTime(completedAt)
	return run, nil
}

// Create persists a newly submitted run in the queued state.
func (r *RunRepo) Create(ctx context.Context, req *model.CreateRunRequest) (*model.Run, error) {
	if req == nil {
		return nil, errors.New("create run request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	domains, err := json.Marshal(req.Domains)
	if err != nil {
		return nil, fmt.Errorf("encode run domains: %w", err)
	}
	options, err := json.Marshal(req.Options)
	if err != nil {
		return nil, fmt.Errorf("encode run options: %w", err)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO runs (tenant_id, domains, options, status, metrics)
		VALUES ($1, $2, $3, 'queued', '{}')
		RETURNING `+runColumns,
		req.TenantID, domains, options,
	)

	run, err := scanRunRow(row)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepo) GetByID(ctx context.Context, id string) (*model.Run, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = $1
	`, id)

	run, err := scanRunRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// UpdateStatus transitions a run's status, stamping started/completed times.
func (r *RunRepo) UpdateStatus(ctx context.Context, id string, status model.RunStatus) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("invalid run status: %s", status)
	}

	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE runs
		SET status = $2,
		    started_at = CASE WHEN $2 = 'running' THEN COALESCE(started_at, $3) ELSE started_at END,
		    completed_at = CASE WHEN $2 IN ('succeeded', 'completed_with_errors', 'failed')
		                        THEN $3 ELSE completed_at END,
		    updated_at = $3
		WHERE id = $1
	`, id, status, currentTime)
	if err != nil {
		return false, fmt.Errorf("update run status: %w", err)
	}
	return rowsChanged(res)
}

// UpdateMetrics persists the progress blob. Called after each company fanout
// so a crash mid-fanout leaves inspectable partial state.
func (r *RunRepo) UpdateMetrics(ctx context.Context, id string, metrics model.RunMetrics) error {
	blob, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("encode run metrics: %w", err)
	}

	if _, err := r.DB.ExecContext(ctx, `
		UPDATE runs
		SET metrics = $2, updated_at = $3
		WHERE id = $1
	`, id, blob, r.timeProvider.Now().UTC()); err != nil {
		return fmt.Errorf("update run metrics: %w", err)
	}
	return nil
}

// SumRecentDomainCounts sums the domain counts of this tenant's recent runs.
// This is the fallback input to the rolling 24h tenant cap when the activity
// log is unavailable.
func (r *RunRepo) SumRecentDomainCounts(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var total sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `
		SELECT SUM(jsonb_array_length(domains))
		FROM runs
		WHERE tenant_id = $1 AND created_at >= $2
	`, tenantID, since.UTC()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum recent domain counts: %w", err)
	}
	return int(total.Int64), nil
}
