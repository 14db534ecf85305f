package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/data/pgxutil"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// ErrJobNotFound is returned when a job is not found.
var ErrJobNotFound = errors.New("job not found")

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	RetryDelaySeconds int
	Logger            *slog.Logger
	TimeProvider      TimeProvider
}

// JobRepo provides database operations for queue-level job management.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const defaultRetryDelaySeconds = 30

func (r *JobRepo) retryDelay() time.Duration {
	if r.cfg.RetryDelaySeconds > 0 {
		return time.Duration(r.cfg.RetryDelaySeconds) * time.Second
	}
	return defaultRetryDelaySeconds * time.Second
}

const jobColumns = `
  id,
  type,
  status,
  priority,
  payload,
  metadata,
  tenant_id,
  run_id,
  company_id,
  depends_on,
  scheduled_at,
  started_at,
  completed_at,
  retry_count,
  max_retries,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`

// SQL used by ReserveNext to atomically reserve the next eligible job. A job
// with a dependency only becomes eligible once that dependency has completed;
// a failed dependency permanently blocks the dependent job, which the reaper
// eventually fails.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT j.id FROM jobs j
    WHERE j.type = $1 AND j.status = 'pending' AND j.scheduled_at <= $2
      AND (j.depends_on IS NULL OR EXISTS (
        SELECT 1 FROM jobs d WHERE d.id = j.depends_on AND d.status = 'completed'
      ))
    ORDER BY j.priority DESC, j.scheduled_at ASC, j.created_at ASC
    LIMIT 1
    FOR UPDATE OF j SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'running',
    started_at = COALESCE(j.started_at, $3),
    lease_expires_at = $4,
    updated_at = $5
  FROM cte
  WHERE j.id = cte.id
  RETURNING ` + jobColumns

// Create enqueues a new job and notifies listeners for its type.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	meta := []byte(`{}`)
	if req.Metadata != nil {
		meta = req.Metadata
	}

	maxRetries := 3
	if req.MaxRetries > 0 {
		maxRetries = req.MaxRetries
	}

	scheduledAt := r.timeProvider.Now().UTC()
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}

	var job *model.Job
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `
			  INSERT INTO jobs(type, status, priority, payload, metadata,
			                   tenant_id, run_id, company_id, depends_on, scheduled_at, max_retries)
			  VALUES ($1,'pending',$2,$3,$4,$5,$6,$7,$8,$9,$10)
			  RETURNING `+jobColumns,
				req.Type, req.Priority, []byte(req.Payload), meta,
				req.TenantID, req.RunID, req.CompanyID, req.DependsOn, scheduledAt, maxRetries,
			)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			job, err = collectJobFromRows(rows)
			rows.Close()
			if err != nil {
				return fmt.Errorf("collect job: %w", err)
			}

			channel := "job_added_" + string(req.Type)
			if _, err := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, channel, job.ID); err != nil {
				return fmt.Errorf("send job notification: %w", err)
			}
			return nil
		},
	})
	if txErr != nil {
		return nil, txErr
	}
	return job, nil
}

// collectJobFromRows collects a single job from pgx rows using pgx v5 helpers.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var (
		payload, metadata                        []byte
		tenantID, runID, companyID               sql.NullString
		dependsOn, lastError                     sql.NullString
		startedAt, completedAt, leaseExpiresAt   sql.NullTime
	)

	if err := scanner.Scan(
		&job.ID,
		&job.Type,
		&job.Status,
		&job.Priority,
		&payload,
		&metadata,
		&tenantID,
		&runID,
		&companyID,
		&dependsOn,
		&job.ScheduledAt,
		&startedAt,
		&completedAt,
		&job.RetryCount,
		&job.MaxRetries,
		&lastError,
		&leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.Payload = cloneJSON(payload)
	job.Metadata = cloneJSON(metadata)
	job.TenantID = cloneNullableString(tenantID)
	job.RunID = cloneNullableString(runID)
	job.CompanyID = cloneNullableString(companyID)
	job.DependsOn = cloneNullableString(dependsOn)
	job.LastError = cloneNullableString(lastError)
	job.StartedAt = cloneNullableTime(startedAt)
	job.CompletedAt = cloneNullableTime(completedAt)
	job.LeaseExpiresAt = cloneNullableTime(leaseExpiresAt)
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Advisory lock namespace for requeueExpired to avoid cross-job-type contention.
const advisoryLockRequeueMajor int64 = 2001

func advisoryLockRequeueMinor(jobType model.JobType) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobType))
	hashValue := h.Sum32()
	maxInt32 := uint32(math.MaxInt32)
	if hashValue > maxInt32 {
		hashValue &= maxInt32
	}
	return int64(hashValue)
}

// requeueExpired requeues expired jobs of the given type and returns the number of jobs requeued.
func (r *JobRepo) requeueExpired(ctx context.Context, jobType model.JobType) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			minorKey := advisoryLockRequeueMinor(jobType)
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockRequeueMajor, minorKey,
			).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
			  UPDATE jobs
			  SET status = 'pending', lease_expires_at = NULL
			  WHERE type = $1 AND status = 'running'
			    AND lease_expires_at IS NOT NULL
			    AND lease_expires_at < $2
			`, jobType, currentTime.UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// ReserveNext reserves the next available job of the given type for processing.
func (r *JobRepo) ReserveNext(
	ctx context.Context,
	jobType model.JobType,
	leaseSeconds int,
) (*model.Job, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("invalid job type: %s", jobType)
	}

	if _, err := r.requeueExpired(ctx, jobType); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				reserveNextUpdateSQL,
				jobType,
				currentTime.UTC(),
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Heartbeat refreshes the lease on a running job.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, jobID, currentTime.Add(time.Duration(leaseSeconds)*time.Second), currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}
	return rowsChanged(res)
}

// Complete marks a job as completed successfully.
func (r *JobRepo) Complete(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = $2,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
	`, id, currentTime)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	return rowsChanged(res)
}

// Fail marks a job as failed, rescheduling with the repository's fixed delay.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	return r.FailWithDelay(ctx, id, errMsg, r.retryDelay())
}

// FailWithDelay marks a job as failed with a caller-chosen retry delay. The
// verification task uses this to push exponential backoff with jitter into
// the queue's own rescheduling rather than sleeping in a worker.
func (r *JobRepo) FailWithDelay(ctx context.Context, id, errMsg string, delay time.Duration) (bool, error) {
	if errMsg == "" {
		return false, errors.New("error message required")
	}
	if delay <= 0 {
		delay = r.retryDelay()
	}

	currentTime := r.timeProvider.Now()
	res, err := r.DB.ExecContext(ctx, `
	  UPDATE jobs
	  SET
	    last_error = $2,
	    retry_count = retry_count + 1,
	    status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
	    completed_at = CASE WHEN retry_count + 1 >= max_retries THEN $3::timestamptz ELSE NULL END,
	    lease_expires_at = NULL,
	    scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at
	                        ELSE $4::timestamptz END,
	    updated_at = $5
	  WHERE id = $1 AND status = 'running'
	`, id, errMsg, currentTime.UTC(), currentTime.Add(delay).UTC(), currentTime.UTC())
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	return rowsChanged(res)
}

// Stats returns statistics about jobs of the given type in different states.
func (r *JobRepo) Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
	  SELECT
	    count(*) FILTER (WHERE status = 'pending')   AS pending,
	    count(*) FILTER (WHERE status = 'running')   AS running,
	    count(*) FILTER (WHERE status = 'completed') AS completed,
	    count(*) FILTER (WHERE status = 'failed')    AS failed
	  FROM jobs
	  WHERE type = $1
	`, jobType).Scan(&s.Pending, &s.Running, &s.Completed, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

// CountByRun reports per-stage job stats for one run, used by run finalization.
func (r *JobRepo) CountByRun(ctx context.Context, runID string) (map[model.JobType]*model.JobStats, error) {
	rows, err := r.DB.QueryContext(ctx, `
	  SELECT type,
	    count(*) FILTER (WHERE status = 'pending')   AS pending,
	    count(*) FILTER (WHERE status = 'running')   AS running,
	    count(*) FILTER (WHERE status = 'completed') AS completed,
	    count(*) FILTER (WHERE status = 'failed')    AS failed
	  FROM jobs
	  WHERE run_id = $1
	  GROUP BY type
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count jobs by run: %w", err)
	}
	defer rows.Close()

	out := make(map[model.JobType]*model.JobStats)
	for rows.Next() {
		var jobType model.JobType
		var s model.JobStats
		if err := rows.Scan(&jobType, &s.Pending, &s.Running, &s.Completed, &s.Failed); err != nil {
			return nil, fmt.Errorf("scan run job stats: %w", err)
		}
		out[jobType] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count jobs by run: %w", err)
	}
	return out, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new jobs are available.
func (r *JobRepo) WaitForNotification(ctx context.Context, jobType model.JobType) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	channel := "job_added_" + string(jobType)
	quoted := pgx.Identifier{channel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FailBlockedDependents fails pending jobs whose dependency finished in the
// failed state; the reservation query would never pick them up.
func (r *JobRepo) FailBlockedDependents(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs j
		SET status = 'failed',
		    last_error = 'dependency failed',
		    completed_at = $1,
		    updated_at = $1
		FROM jobs d
		WHERE j.status = 'pending'
		  AND j.depends_on = d.id
		  AND d.status = 'failed'
	`, r.timeProvider.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("fail blocked dependents: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail blocked dependents rows affected: %w", err)
	}
	return count, nil
}

// DeleteTerminalBefore prunes completed or failed jobs older than cutoff.
func (r *JobRepo) DeleteTerminalBefore(ctx context.Context, status model.JobStatus, cutoff time.Time) (int64, error) {
	if status != model.JobStatusCompleted && status != model.JobStatusFailed {
		return 0, fmt.Errorf("cannot prune non-terminal status %q", status)
	}

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status = $1 AND completed_at < $2
	`, status, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete %s jobs: %w", status, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s jobs rows affected: %w", status, err)
	}
	return count, nil
}
