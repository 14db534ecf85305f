package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// EvidenceServiceOptions groups dependencies for EvidenceService.
type EvidenceServiceOptions struct {
	Results core.VerificationRepository // Required: verification result store
	Logger  *slog.Logger                // Optional: structured logger

	// WaitingWindow is how long a dispatched test send may sit without a
	// bounce before delivery is assumed. Default 72h.
	WaitingWindow time.Duration
	// PendingGraceWindow is how long a claimed test send may sit undispatched
	// before its token is abandoned and the row released. Default 1h.
	PendingGraceWindow time.Duration
}

// EvidenceService derives per-domain delivery evidence from the full history
// of test-sent rows and applies the resulting status upgrades. Evidence is
// always recomputed from row state, never accumulated in counters, so
// replayed bounces and concurrent writers converge on the same answer.
type EvidenceService struct {
	results       core.VerificationRepository
	logger        *slog.Logger
	waitingWindow time.Duration
	pendingGrace  time.Duration
	now           func() time.Time
}

// NewEvidenceService constructs a new EvidenceService.
func NewEvidenceService(opts EvidenceServiceOptions) (*EvidenceService, error) {
	if opts.Results == nil {
		return nil, errors.New("VerificationRepository is required")
	}

	window := opts.WaitingWindow
	if window <= 0 {
		window = 72 * time.Hour
	}
	grace := opts.PendingGraceWindow
	if grace <= 0 {
		grace = time.Hour
	}

	svc := &EvidenceService{
		results:       opts.Results,
		waitingWindow: window,
		pendingGrace:  grace,
		now:           time.Now,
	}
	if opts.Logger != nil {
		svc.logger = opts.Logger.With("component", "evidence_service")
	}
	return svc, nil
}

// DomainStatus recomputes the catch-all classification for a domain from its
// complete test-send history.
func (s *EvidenceService) DomainStatus(ctx context.Context, domain string) (model.CatchAllStatus, error) {
	domain = model.NormalizeDomain(domain)
	rows, err := s.results.ListTestSentByDomain(ctx, domain)
	if err != nil {
		return model.CatchAllStatusUnknown, fmt.Errorf("load domain evidence: %w", err)
	}
	return model.BuildDomainEvidence(domain, rows).Classify(), nil
}

// ApplyUpgrades recomputes the domain's evidence and upgrades every
// risky_catch_all row that meets the upgrade preconditions. Each upgrade is
// guarded on the row still holding its prior status, so concurrent sweeps
// are harmless. Returns the number of rows upgraded.
func (s *EvidenceService) ApplyUpgrades(ctx context.Context, domain string) (int, error) {
	domain = model.NormalizeDomain(domain)
	rows, err := s.results.ListTestSentByDomain(ctx, domain)
	if err != nil {
		return 0, fmt.Errorf("load domain evidence: %w", err)
	}
	status := model.BuildDomainEvidence(domain, rows).Classify()
	if status != model.CatchAllStatusNotCatchAllProven {
		return 0, nil
	}

	upgraded := 0
	for _, row := range rows {
		if !model.ShouldUpgradeRiskyToValid(row, status) {
			continue
		}
		ok, err := s.results.UpgradeToValid(ctx, core.UpgradeToValidParams{
			EmailID:    row.EmailID,
			FromStatus: row.VerifyStatus,
			Reason:     model.VerifyReasonNoBounceAfterTestSend,
		})
		if err != nil {
			return upgraded, fmt.Errorf("upgrade email %d: %w", row.EmailID, err)
		}
		if ok {
			upgraded++
		}
	}

	if upgraded > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "upgraded risky rows",
			"domain", domain, "count", upgraded)
	}
	return upgraded, nil
}

// AgePendingTestSends assumes delivery for rows stuck at sent past the
// waiting window. Rows whose verify status was still ambiguous are
// simultaneously upgraded to valid with the no-bounce reason. Returns the
// number of rows aged.
func (s *EvidenceService) AgePendingTestSends(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.waitingWindow)
	aged, err := s.results.AgePendingTestSends(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("age pending test sends: %w", err)
	}
	if aged > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "aged pending test sends",
			"count", aged, "older_than", cutoff)
	}
	return aged, nil
}

// ReleaseStalePendingTestSends abandons tokens on rows that were claimed for a
// test send but never confirmed dispatched within the grace window. Releasing
// the row lets the person's escalation chain pick the candidate up again
// instead of waiting on a token that will never resolve. Returns the number of
// rows released.
func (s *EvidenceService) ReleaseStalePendingTestSends(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.pendingGrace)
	released, err := s.results.ReleaseStalePendingTestSends(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale pending test sends: %w", err)
	}
	if released > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "released stale pending test sends",
			"count", released, "older_than", cutoff)
	}
	return released, nil
}

// CleanupUnprovenGenerated best-effort deletes generated addresses for a
// domain that never produced positive evidence. Returns rows removed.
func (s *EvidenceService) CleanupUnprovenGenerated(ctx context.Context, domain string, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	removed, err := s.results.DeleteUnprovenGenerated(ctx, model.NormalizeDomain(domain), cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup unproven generated: %w", err)
	}
	return removed, nil
}
