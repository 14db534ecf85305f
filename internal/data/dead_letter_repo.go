package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// DeadLetterRepo records unrecoverable probe failures as a durable stream,
// mirroring the queue's own failure bookkeeping.
type DeadLetterRepo struct {
	DB *sql.DB
}

// NewDeadLetterRepo creates a DeadLetterRepo with the given database handle.
func NewDeadLetterRepo(db *sql.DB) *DeadLetterRepo {
	return &DeadLetterRepo{DB: db}
}

// Record appends one dead letter.
func (r *DeadLetterRepo) Record(ctx context.Context, letter *model.DeadLetter) error {
	if letter == nil {
		return errors.New("dead letter is required")
	}
	if letter.Email == "" {
		return errors.New("dead letter email is required")
	}

	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO dead_letters (job_id, email, mx_host, error, attempts)
		VALUES ($1, $2, $3, $4, $5)
	`, letter.JobID, letter.Email, letter.MXHost, letter.Error, letter.Attempts); err != nil {
		return fmt.Errorf("record dead letter: %w", err)
	}
	return nil
}

// ListRecent returns the most recent dead letters, newest first.
func (r *DeadLetterRepo) ListRecent(ctx context.Context, limit int) ([]*model.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, job_id, email, mx_host, error, attempts, created_at
		FROM dead_letters
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*model.DeadLetter
	for rows.Next() {
		letter := &model.DeadLetter{}
		if err := rows.Scan(
			&letter.ID, &letter.JobID, &letter.Email,
			&letter.MXHost, &letter.Error, &letter.Attempts, &letter.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		out = append(out, letter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return out, nil
}

// DeleteOlderThan prunes dead letters older than the cutoff.
func (r *DeadLetterRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM dead_letters
		WHERE created_at < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old dead letters: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("dead letter rows affected: %w", err)
	}
	return removed, nil
}

// ActivityRepo tracks per-tenant pipeline activity for quota computation.
type ActivityRepo struct {
	DB *sql.DB
}

// NewActivityRepo creates an ActivityRepo with the given database handle.
func NewActivityRepo(db *sql.DB) *ActivityRepo {
	return &ActivityRepo{DB: db}
}

// RecordDomains logs that a tenant enqueued count domains.
func (r *ActivityRepo) RecordDomains(ctx context.Context, tenantID string, count int) error {
	if tenantID == "" {
		return errors.New("tenant id is required")
	}
	if count <= 0 {
		return nil
	}

	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO tenant_activity (tenant_id, domain_count)
		VALUES ($1, $2)
	`, tenantID, count); err != nil {
		return fmt.Errorf("record tenant activity: %w", err)
	}
	return nil
}

// CountDomainsSince computes the tenant's rolling domain usage from the log.
func (r *ActivityRepo) CountDomainsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var total sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `
		SELECT SUM(domain_count)
		FROM tenant_activity
		WHERE tenant_id = $1 AND created_at >= $2
	`, tenantID, since.UTC()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count tenant activity: %w", err)
	}
	return int(total.Int64), nil
}
