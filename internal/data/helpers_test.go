package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// createTestRun inserts a minimal run and returns its id.
func createTestRun(t *testing.T, db *sql.DB) string {
	t.Helper()

	repo := NewRunRepo(db, nil)
	run, err := repo.Create(context.Background(), &model.CreateRunRequest{
		TenantID: "tenant-test",
		Domains:  []string{"acme.com"},
		Options:  model.RunOptions{Modes: []string{"full"}},
	})
	require.NoError(t, err)
	return run.ID
}
