package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// ReaperConfig tunes the periodic maintenance sweep.
type ReaperConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// JobRetention is how long terminal jobs are kept.
	JobRetention time.Duration
	// DeadLetterRetention is how long dead letters are kept.
	DeadLetterRetention time.Duration
	// CleanupDomains, when non-empty, enables best-effort deletion of
	// unproven generated addresses for the listed domains.
	CleanupDomains []string
	// GeneratedRetention is the age before an unproven generated address is
	// eligible for cleanup.
	GeneratedRetention time.Duration
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Jobs        core.JobRepository        // Required: queue maintenance
	Evidence    *EvidenceService          // Required: aging sweep
	DeadLetters core.DeadLetterRepository // Optional: dead letter pruning
	Config      ReaperConfig              // Required: sweep tuning
	Logger      *slog.Logger              // Optional: structured logger
}

// ReaperService is the periodic maintenance sweep:
// - ages test sends stuck at sent past the waiting window
// - releases test sends stuck at pending past the grace window
// - fails pending jobs permanently blocked by a failed dependency
// - prunes old terminal jobs and dead letters
// - optionally deletes unproven generated addresses.
type ReaperService struct {
	jobs        core.JobRepository
	evidence    *EvidenceService
	deadLetters core.DeadLetterRepository
	config      ReaperConfig
	logger      *slog.Logger
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Evidence == nil {
		return nil, errors.New("EvidenceService is required")
	}

	cfg := opts.Config
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = 7 * 24 * time.Hour
	}
	if cfg.DeadLetterRetention <= 0 {
		cfg.DeadLetterRetention = 30 * 24 * time.Hour
	}
	if cfg.GeneratedRetention <= 0 {
		cfg.GeneratedRetention = 14 * 24 * time.Hour
	}

	svc := &ReaperService{
		jobs:        opts.Jobs,
		evidence:    opts.Evidence,
		deadLetters: opts.DeadLetters,
		config:      cfg,
	}
	if opts.Logger != nil {
		svc.logger = opts.Logger.With("component", "reaper_service")
	}
	return svc, nil
}

// Run starts the sweep loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Jitter the first sweep so multiple instances starting together spread out.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.Sweep(ctx); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "initial sweep failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				if s.logger != nil {
					s.logger.ErrorContext(ctx, "sweep failed", "err", err)
				}
			}
		}
	}
}

func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// Sweep performs one maintenance pass. Individual step failures are joined
// rather than aborting the pass.
func (s *ReaperService) Sweep(ctx context.Context) error {
	now := time.Now()
	var errs []error

	step := func(label string, fn func(context.Context) (int64, error)) {
		count, err := fn(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
			return
		}
		if count > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "sweep step done", "step", label, "count", count)
		}
	}

	step("age pending test sends", func(ctx context.Context) (int64, error) {
		return s.evidence.AgePendingTestSends(ctx)
	})
	step("release stale pending test sends", func(ctx context.Context) (int64, error) {
		return s.evidence.ReleaseStalePendingTestSends(ctx)
	})
	step("fail blocked dependents", s.jobs.FailBlockedDependents)
	step("delete old completed jobs", func(ctx context.Context) (int64, error) {
		return s.jobs.DeleteTerminalBefore(ctx, model.JobStatusCompleted, now.Add(-s.config.JobRetention))
	})
	step("delete old failed jobs", func(ctx context.Context) (int64, error) {
		return s.jobs.DeleteTerminalBefore(ctx, model.JobStatusFailed, now.Add(-s.config.JobRetention))
	})
	if s.deadLetters != nil {
		step("prune dead letters", func(ctx context.Context) (int64, error) {
			return s.deadLetters.DeleteOlderThan(ctx, now.Add(-s.config.DeadLetterRetention))
		})
	}
	for _, domain := range s.config.CleanupDomains {
		step("cleanup unproven generated "+domain, func(ctx context.Context) (int64, error) {
			return s.evidence.CleanupUnprovenGenerated(ctx, domain, s.config.GeneratedRetention)
		})
	}

	if len(errs) > 0 {
		return fmt.Errorf("sweep failed: %w", errors.Join(errs...))
	}
	return nil
}
