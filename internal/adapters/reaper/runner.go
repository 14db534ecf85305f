// Package reaper provides the adapter for running the maintenance sweep.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/data"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/service"
)

// Runner wires and runs the periodic maintenance sweep.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config service.ReaperConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Jobs        core.JobRepository
	Results     core.VerificationRepository
	DeadLetters core.DeadLetterRepository
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && (opts.Jobs == nil || opts.Results == nil) {
		return nil, errors.New("either DB or both Jobs and Results must be provided")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jobs := opts.Jobs
	if jobs == nil {
		jobs = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: logger})
	}
	results := opts.Results
	if results == nil {
		results = data.NewVerificationRepo(opts.DB, logger)
	}
	deadLetters := opts.DeadLetters
	if deadLetters == nil && opts.DB != nil {
		deadLetters = data.NewDeadLetterRepo(opts.DB)
	}

	evidence, err := service.NewEvidenceService(service.EvidenceServiceOptions{
		Results: results,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire evidence service: %w", err)
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Jobs:        jobs,
		Evidence:    evidence,
		DeadLetters: deadLetters,
		Config:      opts.Config,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: logger}, nil
}

// Run starts the sweep loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
