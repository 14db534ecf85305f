package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// VerificationRepo implements core.VerificationRepository on PostgreSQL.
//
// Every mutation is written so that at-least-once redelivery and concurrent
// writers converge: upserts key on email_id, status transitions guard on the
// current state in the WHERE clause, and derived fields are recomputed rather
// than incremented.
type VerificationRepo struct {
	DB           *sql.DB
	logger       *slog.Logger
	timeProvider TimeProvider
}

// NewVerificationRepo creates a VerificationRepo with the given database handle.
func NewVerificationRepo(db *sql.DB, logger *slog.Logger) *VerificationRepo {
	return &VerificationRepo{
		DB:           db,
		logger:       logger,
		timeProvider: &RealTimeProvider{},
	}
}

const verificationColumns = `email_id, email, domain, person_id, source, verify_status, verify_reason,
	mx_host, test_send_status, test_send_token, test_send_at, bounce_code, bounce_reason,
	verified_at, created_at, updated_at`

type verificationRowScanner interface {
	Scan(dest ...any) error
}

func scanVerificationRow(scanner verificationRowScanner) (*model.VerificationResult, error) {
	row := &model.VerificationResult{}
	var (
		personID                 sql.NullInt64
		token, code, reason      sql.NullString
		testSendAt, verifiedAt   sql.NullTime
	)

	if err := scanner.Scan(
		&row.EmailID,
		&row.Email,
		&row.Domain,
		&personID,
		&row.Source,
		&row.VerifyStatus,
		&row.VerifyReason,
		&row.MXHost,
		&row.TestSendStatus,
		&token,
		&testSendAt,
		&code,
		&reason,
		&verifiedAt,
		&row.CreatedAt,
		&row.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if personID.Valid {
		v := personID.Int64
		row.PersonID = &v
	}
	row.TestSendToken = cloneNullableString(token)
	row.BounceCode = cloneNullableString(code)
	row.BounceReason = cloneNullableString(reason)
	row.TestSendAt = cloneNullableTime(testSendAt)
	row.VerifiedAt = cloneNullableTime(verifiedAt)
	return row, nil
}

func collectVerificationRows(rows *sql.Rows) ([]*model.VerificationResult, error) {
	defer rows.Close()

	var out []*model.VerificationResult
	for rows.Next() {
		row, err := scanVerificationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert writes a probe outcome keyed by email id. Repeated or concurrent
// probes of the same address converge to one row; test-send state is never
// touched here so a probe replay cannot rewind the send lifecycle.
func (r *VerificationRepo) Upsert(
	ctx context.Context,
	params core.UpsertVerificationParams,
) (*model.VerificationResult, error) {
	if params.EmailID <= 0 {
		return nil, ErrEmailIDRequired
	}
	if params.Email == "" {
		return nil, errors.New("email is required")
	}
	if !params.VerifyStatus.Valid() {
		return nil, fmt.Errorf("invalid verify status: %s", params.VerifyStatus)
	}

	source := params.Source
	if source == "" {
		source = model.EmailSourceSourced
	}

	currentTime := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO verification_results
			(email_id, email, domain, person_id, source, verify_status, verify_reason,
			 mx_host, test_send_status, verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'not_requested', $9, $9, $9)
		ON CONFLICT (email_id) DO UPDATE SET
			verify_status = EXCLUDED.verify_status,
			verify_reason = EXCLUDED.verify_reason,
			mx_host = EXCLUDED.mx_host,
			verified_at = EXCLUDED.verified_at,
			updated_at = EXCLUDED.updated_at
		RETURNING `+verificationColumns,
		params.EmailID, params.Email, model.NormalizeDomain(params.Domain), params.PersonID,
		source, params.VerifyStatus, params.VerifyReason, params.MXHost, currentTime,
	)

	result, err := scanVerificationRow(row)
	if err != nil {
		return nil, fmt.Errorf("upsert verification result: %w", err)
	}
	return result, nil
}

// GetByEmailID retrieves one verification row.
func (r *VerificationRepo) GetByEmailID(ctx context.Context, emailID int64) (*model.VerificationResult, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+verificationColumns+`
		FROM verification_results
		WHERE email_id = $1
	`, emailID)

	result, err := scanVerificationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification result: %w", err)
	}
	return result, nil
}

// ListByPersonDomain returns every address known for one person at one domain.
func (r *VerificationRepo) ListByPersonDomain(
	ctx context.Context,
	personID int64,
	domain string,
) ([]*model.VerificationResult, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+verificationColumns+`
		FROM verification_results
		WHERE person_id = $1 AND domain = $2
		ORDER BY email_id
	`, personID, model.NormalizeDomain(domain))
	if err != nil {
		return nil, fmt.Errorf("list by person/domain: %w", err)
	}
	return collectVerificationRows(rows)
}

// ListTestSentByDomain returns the complete test-send history of a domain.
// Rows that only ever sat at not_requested carry no evidence and are excluded.
func (r *VerificationRepo) ListTestSentByDomain(
	ctx context.Context,
	domain string,
) ([]*model.VerificationResult, error) {
	if domain == "" {
		return nil, ErrDomainRequired
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+verificationColumns+`
		FROM verification_results
		WHERE domain = $1
		  AND test_send_status IN ('sent', 'bounce_hard', 'bounce_soft', 'delivered_assumed')
		ORDER BY email_id
	`, model.NormalizeDomain(domain))
	if err != nil {
		return nil, fmt.Errorf("list test-sent by domain: %w", err)
	}
	return collectVerificationRows(rows)
}

// MarkTestSend records a freshly minted token. The WHERE clause enforces the
// invariant of at most one outstanding token per row: only rows with no active
// token and a pre-send status can accept a new one.
func (r *VerificationRepo) MarkTestSend(ctx context.Context, params core.MarkTestSendParams) (bool, error) {
	if params.Token == "" {
		return false, errors.New("token is required")
	}
	status := params.Status
	if status == "" {
		status = model.TestSendStatusPending
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE verification_results
		SET test_send_token = $2,
		    test_send_status = $3,
		    test_send_at = $4,
		    updated_at = $4
		WHERE email_id = $1
		  AND test_send_status IN ('', 'not_requested')
	`, params.EmailID, params.Token, status, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark test send: %w", err)
	}
	return rowsChanged(res)
}

// MarkTestSendDispatched moves a pending test-send to sent.
func (r *VerificationRepo) MarkTestSendDispatched(ctx context.Context, emailID int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE verification_results
		SET test_send_status = 'sent',
		    test_send_at = $2,
		    updated_at = $2
		WHERE email_id = $1 AND test_send_status = 'pending'
	`, emailID, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark test send dispatched: %w", err)
	}
	return rowsChanged(res)
}

// ApplyBounce applies a bounce to a row. Guarding on non-terminal states keeps
// the transition forward-only and makes replayed bounce events a no-op.
func (r *VerificationRepo) ApplyBounce(ctx context.Context, params core.ApplyBounceParams) (bool, error) {
	if !params.Status.Terminal() {
		return false, fmt.Errorf("bounce status must be terminal, got %s", params.Status)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE verification_results
		SET test_send_status = $2,
		    bounce_code = NULLIF($3, ''),
		    bounce_reason = NULLIF($4, ''),
		    verify_status = CASE WHEN $2 = 'bounce_hard' THEN 'invalid' ELSE verify_status END,
		    verify_reason = CASE WHEN $2 = 'bounce_hard' THEN 'hard_bounce' ELSE verify_reason END,
		    updated_at = $5
		WHERE email_id = $1
		  AND test_send_status IN ('pending', 'sent')
	`, params.EmailID, params.Status, params.Code, params.Reason, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("apply bounce: %w", err)
	}
	return rowsChanged(res)
}

// FindLatestPendingTestSend is the bounce resolution fallback when no token is
// recoverable from the provider payload.
func (r *VerificationRepo) FindLatestPendingTestSend(ctx context.Context, email string) (*model.VerificationResult, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+verificationColumns+`
		FROM verification_results
		WHERE email = $1
		  AND test_send_status IN ('pending', 'sent')
		ORDER BY test_send_at DESC NULLS LAST
		LIMIT 1
	`, email)

	result, err := scanVerificationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find pending test send: %w", err)
	}
	return result, nil
}

// UpgradeToValid rewrites a row to valid. The FromStatus guard makes the
// upgrade self-guarding: once valid, repeat runs change nothing.
func (r *VerificationRepo) UpgradeToValid(ctx context.Context, params core.UpgradeToValidParams) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE verification_results
		SET verify_status = 'valid',
		    verify_reason = $3,
		    verified_at = $4,
		    updated_at = $4
		WHERE email_id = $1 AND verify_status = $2
	`, params.EmailID, params.FromStatus, params.Reason, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("upgrade to valid: %w", err)
	}
	return rowsChanged(res)
}

// AgePendingTestSends resolves rows stuck at sent past the waiting window:
// the send is assumed delivered, and rows whose verify status was still
// ambiguous are simultaneously upgraded to valid.
func (r *VerificationRepo) AgePendingTestSends(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE verification_results
		SET test_send_status = 'delivered_assumed',
		    verify_status = CASE
		        WHEN verify_status IN ('', 'pending', 'unknown_timeout', 'risky_catch_all')
		        THEN 'valid' ELSE verify_status END,
		    verify_reason = CASE
		        WHEN verify_status IN ('', 'pending', 'unknown_timeout', 'risky_catch_all')
		        THEN $2 ELSE verify_reason END,
		    updated_at = $3
		WHERE test_send_status = 'sent'
		  AND test_send_at < $1
	`, olderThan.UTC(), model.VerifyReasonNoBounceAfterTestSend, r.timeProvider.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("age pending test sends: %w", err)
	}
	aged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("age pending rows affected: %w", err)
	}
	if aged > 0 && r.logger != nil {
		r.logger.InfoContext(ctx, "aged pending test sends to delivered_assumed", "rows", aged)
	}
	return aged, nil
}

// ReleaseStalePendingTestSends resolves rows stuck at pending past the cutoff.
// A pending row whose dispatch was never confirmed holds its token forever and
// blocks the person's escalation chain, so the token is abandoned and the row
// returns to not_requested where the next escalation step can claim it again.
func (r *VerificationRepo) ReleaseStalePendingTestSends(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE verification_results
		SET test_send_status = 'not_requested',
		    test_send_token = NULL,
		    updated_at = $2
		WHERE test_send_status = 'pending'
		  AND test_send_at < $1
	`, olderThan.UTC(), r.timeProvider.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("release stale pending test sends: %w", err)
	}
	released, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release stale pending rows affected: %w", err)
	}
	if released > 0 && r.logger != nil {
		r.logger.InfoContext(ctx, "released stale pending test sends", "rows", released)
	}
	return released, nil
}

// ListUnverifiedByDomain returns addresses awaiting probing for a sweep.
func (r *VerificationRepo) ListUnverifiedByDomain(
	ctx context.Context,
	domain string,
	sourcedOnly bool,
) ([]*model.VerificationResult, error) {
	query := `
		SELECT ` + verificationColumns + `
		FROM verification_results
		WHERE domain = $1
		  AND verify_status IN ('', 'pending')
	`
	args := []any{model.NormalizeDomain(domain)}
	if sourcedOnly {
		query += ` AND source = $2`
		args = append(args, model.EmailSourceSourced)
	}
	query += ` ORDER BY email_id`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list unverified by domain: %w", err)
	}
	return collectVerificationRows(rows)
}

// DeleteUnprovenGenerated is the best-effort cleanup of generated addresses
// that never produced positive evidence.
func (r *VerificationRepo) DeleteUnprovenGenerated(
	ctx context.Context,
	domain string,
	olderThan time.Time,
) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM verification_results
		WHERE domain = $1
		  AND source = 'generated'
		  AND verify_status IN ('', 'pending', 'invalid', 'unknown_timeout')
		  AND test_send_status IN ('', 'not_requested', 'bounce_hard')
		  AND created_at < $2
	`, model.NormalizeDomain(domain), olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete unproven generated: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete unproven rows affected: %w", err)
	}
	return removed, nil
}

// CountVerifiedByRun aggregates verification counts across a run's domains.
func (r *VerificationRepo) CountVerifiedByRun(ctx context.Context, domains []string) (int, int, error) {
	if len(domains) == 0 {
		return 0, 0, nil
	}

	normalized := make([]string, len(domains))
	for i, d := range domains {
		normalized[i] = model.NormalizeDomain(d)
	}

	var verified, valid int
	err := r.DB.QueryRowContext(ctx, `
		SELECT
			count(*) FILTER (WHERE verify_status NOT IN ('', 'pending')) AS verified,
			count(*) FILTER (WHERE verify_status = 'valid')              AS valid
		FROM verification_results
		WHERE domain = ANY($1)
	`, normalized).Scan(&verified, &valid)
	if err != nil {
		return 0, 0, fmt.Errorf("count verified by run: %w", err)
	}
	return verified, valid, nil
}

func rowsChanged(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
