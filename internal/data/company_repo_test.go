package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/testutil"
)

func TestCompanyRepo_Ensure(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewCompanyRepo(db)
		ctx := context.Background()

		company, err := repo.Ensure(ctx, "tenant-1", "Acme.COM")
		require.NoError(t, err)
		assert.NotEmpty(t, company.ID)
		assert.Equal(t, "tenant-1", company.TenantID)
		assert.Equal(t, "acme.com", company.Domain)

		// Ensuring again returns the same row.
		again, err := repo.Ensure(ctx, "tenant-1", "acme.com")
		require.NoError(t, err)
		assert.Equal(t, company.ID, again.ID)

		// The same domain under another tenant is a distinct company.
		other, err := repo.Ensure(ctx, "tenant-2", "acme.com")
		require.NoError(t, err)
		assert.NotEqual(t, company.ID, other.ID)

		_, err = repo.Ensure(ctx, "", "acme.com")
		assert.ErrorContains(t, err, "tenant id is required")
		_, err = repo.Ensure(ctx, "tenant-1", "")
		assert.ErrorIs(t, err, ErrDomainRequired)
	})
}

func TestCompanyRepo_EnsureConcurrent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewCompanyRepo(db)

		// Racing ensures of the same (tenant, domain) all land on one row.
		runner := testutil.NewConcurrentTestRunner(t, db)
		ids := make(chan string, 8)
		fns := make([]func() error, 8)
		for i := range fns {
			fns[i] = func() error {
				company, err := repo.Ensure(context.Background(), "tenant-1", "acme.com")
				if err != nil {
					return err
				}
				ids <- company.ID
				return nil
			}
		}
		runner.AssertNoErrors(runner.RunConcurrent(fns...))
		close(ids)

		seen := map[string]bool{}
		for id := range ids {
			seen[id] = true
		}
		assert.Len(t, seen, 1)
	})
}

func TestCompanyRepo_GetByID(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewCompanyRepo(db)
		ctx := context.Background()

		company, err := repo.Ensure(ctx, "tenant-1", "acme.com")
		require.NoError(t, err)

		fetched, err := repo.GetByID(ctx, company.ID)
		require.NoError(t, err)
		assert.Equal(t, company.Domain, fetched.Domain)

		_, err = repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrCompanyNotFound)
	})
}

func TestPersonRepo(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewPersonRepo(db)
		ctx := context.Background()

		var brettID int64
		require.NoError(t, db.QueryRow(`
			INSERT INTO people (first_name, last_name, domain)
			VALUES ('Brett', 'Anderson', 'acme.com')
			RETURNING id
		`).Scan(&brettID))
		_, err := db.Exec(`
			INSERT INTO people (first_name, last_name, domain)
			VALUES ('Dana', 'Whitfield', 'acme.com'),
			       ('Omar', 'Castillo', 'globex.com')
		`)
		require.NoError(t, err)

		person, err := repo.GetByID(ctx, brettID)
		require.NoError(t, err)
		assert.Equal(t, "Brett", person.FirstName)
		assert.Equal(t, "Anderson", person.LastName)
		assert.Equal(t, "acme.com", person.Domain)

		_, err = repo.GetByID(ctx, 999999)
		assert.ErrorIs(t, err, ErrPersonNotFound)

		people, err := repo.ListByDomain(ctx, "acme.com")
		require.NoError(t, err)
		require.Len(t, people, 2)
		assert.Equal(t, "Brett", people[0].FirstName)
		assert.Equal(t, "Dana", people[1].FirstName)

		people, err = repo.ListByDomain(ctx, "unknown.com")
		require.NoError(t, err)
		assert.Empty(t, people)
	})
}
