package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// CompanyRepo provides database operations for tenant-scoped company records.
type CompanyRepo struct {
	DB *sql.DB
}

// NewCompanyRepo creates a CompanyRepo with the given database handle.
func NewCompanyRepo(db *sql.DB) *CompanyRepo {
	return &CompanyRepo{DB: db}
}

const companyColumns = `id, tenant_id, domain, created_at`

func scanCompanyRow(scanner interface{ Scan(...any) error }) (*model.Company, error) {
	company := &model.Company{}
	if err := scanner.Scan(&company.ID, &company.TenantID, &company.Domain, &company.CreatedAt); err != nil {
		return nil, err
	}
	return company, nil
}

// Ensure returns the company for (tenant, domain), creating it when missing.
// A concurrent insert losing the unique race on (tenant_id, domain) falls
// back to reading the winner's row.
func (r *CompanyRepo) Ensure(ctx context.Context, tenantID, domain string) (*model.Company, error) {
	if tenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	domain = model.NormalizeDomain(domain)
	if domain == "" {
		return nil, ErrDomainRequired
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO companies (tenant_id, domain)
		VALUES ($1, $2)
		RETURNING `+companyColumns,
		tenantID, domain,
	)

	company, err := scanCompanyRow(row)
	if err == nil {
		return company, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil, fmt.Errorf("ensure company: %w", err)
	}

	row = r.DB.QueryRowContext(ctx, `
		SELECT `+companyColumns+`
		FROM companies
		WHERE tenant_id = $1 AND domain = $2
	`, tenantID, domain)

	company, err = scanCompanyRow(row)
	if err != nil {
		return nil, fmt.Errorf("ensure company after conflict: %w", err)
	}
	return company, nil
}

// GetByID retrieves a company by its ID.
func (r *CompanyRepo) GetByID(ctx context.Context, id string) (*model.Company, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+companyColumns+`
		FROM companies
		WHERE id = $1
	`, id)

	company, err := scanCompanyRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	return company, nil
}
