package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// Gate keys. The global key caps total in-flight probes; the per-MX prefix
// caps probes against one provider so a slow MX cannot starve the rest.
const (
	gateKeyGlobal   = "smtp:global"
	gateKeyMXPrefix = "smtp:mx:"
)

// domainClassifier is the slice of the evidence service the verification
// path needs: whether a domain's acceptance signal has been proven real.
type domainClassifier interface {
	DomainStatus(ctx context.Context, domain string) (model.CatchAllStatus, error)
}

// VerificationServiceOptions groups dependencies for VerificationService.
type VerificationServiceOptions struct {
	Gate        core.ConcurrencyGate        // Required: shared concurrency/rate gate
	Resolver    core.MXResolver             // Required: MX resolution for per-MX gating
	Prober      core.Prober                 // Required: SMTP probe implementation
	Results     core.VerificationRepository // Required: verification result store
	Fallback    core.FallbackVerifier       // Optional: secondary verifier for unknowns
	DeadLetters core.DeadLetterRepository   // Optional: last-attempt failure mirror
	Classifier  domainClassifier            // Optional: catch-all domain classification
	Backoff     *BackoffPolicy              // Optional: retry schedule (default 2s..5m)
	Logger      *slog.Logger                // Optional: structured logger

	GlobalLimit int // Optional: max concurrent probes overall (default 64)
	PerMXLimit  int // Optional: max concurrent probes per MX host (default 4)
	GlobalRPS   int // Optional: probes per second overall (default 50)
	PerMXRPS    int // Optional: probes per second per MX host (default 5)
}

// VerificationService runs single mailbox verifications under shared
// concurrency and rate limits, persisting each outcome idempotently.
type VerificationService struct {
	gate        core.ConcurrencyGate
	resolver    core.MXResolver
	prober      core.Prober
	results     core.VerificationRepository
	fallback    core.FallbackVerifier
	deadLetters core.DeadLetterRepository
	classifier  domainClassifier
	backoff     *BackoffPolicy
	logger      *slog.Logger

	globalLimit int
	perMXLimit  int
	globalRPS   int
	perMXRPS    int
}

// NewVerificationService constructs a new VerificationService.
func NewVerificationService(opts VerificationServiceOptions) (*VerificationService, error) {
	if opts.Gate == nil {
		return nil, errors.New("ConcurrencyGate is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("MXResolver is required")
	}
	if opts.Prober == nil {
		return nil, errors.New("Prober is required")
	}
	if opts.Results == nil {
		return nil, errors.New("VerificationRepository is required")
	}

	backoff := opts.Backoff
	if backoff == nil {
		backoff = NewBackoffPolicy(2*time.Second, 5*time.Minute)
	}

	svc := &VerificationService{
		gate:        opts.Gate,
		resolver:    opts.Resolver,
		prober:      opts.Prober,
		results:     opts.Results,
		fallback:    opts.Fallback,
		deadLetters: opts.DeadLetters,
		classifier:  opts.Classifier,
		backoff:     backoff,
		globalLimit: opts.GlobalLimit,
		perMXLimit:  opts.PerMXLimit,
		globalRPS:   opts.GlobalRPS,
		perMXRPS:    opts.PerMXRPS,
	}
	if svc.globalLimit <= 0 {
		svc.globalLimit = 64
	}
	if svc.perMXLimit <= 0 {
		svc.perMXLimit = 4
	}
	if svc.globalRPS <= 0 {
		svc.globalRPS = 50
	}
	if svc.perMXRPS <= 0 {
		svc.perMXRPS = 5
	}

	if opts.Logger != nil {
		svc.logger = opts.Logger.With("component", "verification_service")
	}
	return svc, nil
}

// VerifyRequest describes one probe attempt taken from the queue.
type VerifyRequest struct {
	EmailID  int64
	Email    string
	Domain   string
	PersonID *int64
	Source   model.EmailSource

	// Attempt is 1-based; LastAttempt tells the service to mirror a
	// still-retryable failure into the dead-letter store instead of
	// scheduling another retry.
	Attempt     int
	LastAttempt bool
	JobID       string
}

// Verify probes one address and persists the outcome. Retryable conditions
// (gate exhaustion, rate budget exhaustion, temporary SMTP failures) surface
// as *RetryableError so the worker reschedules through the queue.
func (s *VerificationService) Verify(ctx context.Context, req VerifyRequest) (*model.VerificationResult, error) {
	if req.EmailID <= 0 || req.Email == "" {
		return nil, errors.New("email id and email are required")
	}

	domain := model.NormalizeDomain(req.Domain)
	if domain == "" {
		domain = model.NormalizeDomain(domainOf(req.Email))
	}
	if domain == "" {
		return nil, fmt.Errorf("no domain for %s", req.Email)
	}

	mxHost, err := s.resolver.ResolveMX(ctx, domain)
	if err != nil {
		return nil, s.retryOrDeadLetter(ctx, req, mxHost, fmt.Errorf("resolve mx for %s: %w", domain, err))
	}

	release, err := s.acquireGates(ctx, mxHost)
	if err != nil {
		return nil, s.retryOrDeadLetter(ctx, req, mxHost, err)
	}
	defer release()

	outcome := s.prober.Probe(ctx, req.Email, mxHost)
	if outcome.MXHost == "" {
		outcome.MXHost = mxHost
	}

	if outcome.Category == model.ProbeUnknown && s.fallback != nil {
		fb := s.fallback.Verify(ctx, req.Email)
		if fb.Category != model.ProbeUnknown {
			outcome = fb
		}
	}

	if outcome.Retryable() {
		probeErr := outcome.Err
		if probeErr == nil {
			probeErr = fmt.Errorf("smtp %d: %s", outcome.Code, outcome.Message)
		}
		return nil, s.retryOrDeadLetter(ctx, req, outcome.MXHost, probeErr)
	}

	status, reason := s.interpret(ctx, domain, outcome)
	result, err := s.results.Upsert(ctx, core.UpsertVerificationParams{
		EmailID:      req.EmailID,
		Email:        req.Email,
		Domain:       domain,
		PersonID:     req.PersonID,
		Source:       req.Source,
		VerifyStatus: status,
		VerifyReason: reason,
		MXHost:       outcome.MXHost,
	})
	if err != nil {
		return nil, fmt.Errorf("persist verification: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "email verified",
			"email_id", req.EmailID,
			"status", status,
			"reason", reason,
			"mx_host", outcome.MXHost,
			"elapsed", outcome.Elapsed,
		)
	}
	return result, nil
}

// acquireGates takes the global lease, then the per-MX lease, then spends the
// rate budgets. Releases run in reverse acquisition order. Any exhaustion is
// reported as an error without blocking.
func (s *VerificationService) acquireGates(ctx context.Context, mxHost string) (func(), error) {
	ok, err := s.gate.Acquire(ctx, gateKeyGlobal, s.globalLimit)
	if err != nil {
		return nil, fmt.Errorf("acquire global gate: %w", err)
	}
	if !ok {
		return nil, errors.New("global probe concurrency exhausted")
	}

	mxKey := gateKeyMXPrefix + mxHost
	ok, err = s.gate.Acquire(ctx, mxKey, s.perMXLimit)
	if err != nil || !ok {
		s.release(ctx, gateKeyGlobal)
		if err != nil {
			return nil, fmt.Errorf("acquire mx gate: %w", err)
		}
		return nil, fmt.Errorf("mx concurrency exhausted for %s", mxHost)
	}

	release := func() {
		s.release(ctx, mxKey)
		s.release(ctx, gateKeyGlobal)
	}

	ok, err = s.gate.ConsumeRPS(ctx, gateKeyGlobal, s.globalRPS)
	if err != nil || !ok {
		release()
		if err != nil {
			return nil, fmt.Errorf("consume global rps: %w", err)
		}
		return nil, errors.New("global probe rate exhausted")
	}
	ok, err = s.gate.ConsumeRPS(ctx, mxKey, s.perMXRPS)
	if err != nil || !ok {
		release()
		if err != nil {
			return nil, fmt.Errorf("consume mx rps: %w", err)
		}
		return nil, fmt.Errorf("mx probe rate exhausted for %s", mxHost)
	}

	return release, nil
}

func (s *VerificationService) release(ctx context.Context, key string) {
	if err := s.gate.Release(ctx, key); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "gate release failed", "key", key, "err", err)
	}
}

// interpret maps a terminal probe outcome onto a verify status. An SMTP
// accept only yields valid once the domain is proven not to accept
// everything; until then the address stays risky.
func (s *VerificationService) interpret(
	ctx context.Context,
	domain string,
	outcome model.ProbeOutcome,
) (model.VerifyStatus, string) {
	switch outcome.Category {
	case model.ProbeAccept:
		if s.classifier == nil {
			return model.VerifyStatusValid, reasonForCode(outcome.Code, "smtp_accept")
		}
		status, err := s.classifier.DomainStatus(ctx, domain)
		if err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "catch-all classification failed", "domain", domain, "err", err)
			}
			return model.VerifyStatusRiskyCatchAll, "catch_all_unclassified"
		}
		if status == model.CatchAllStatusNotCatchAllProven {
			return model.VerifyStatusValid, reasonForCode(outcome.Code, "smtp_accept")
		}
		return model.VerifyStatusRiskyCatchAll, "catch_all_unclassified"
	case model.ProbeHardFail:
		return model.VerifyStatusInvalid, reasonForCode(outcome.Code, "smtp_reject")
	default:
		return model.VerifyStatusUnknownTimeout, "probe_inconclusive"
	}
}

// retryOrDeadLetter wraps err in the retry schedule for the current attempt,
// unless this was the last attempt, in which case the failure is recorded as
// unknown_timeout and mirrored to the dead-letter store.
func (s *VerificationService) retryOrDeadLetter(
	ctx context.Context,
	req VerifyRequest,
	mxHost string,
	err error,
) error {
	if !req.LastAttempt {
		return s.backoff.Retry(req.Attempt, err)
	}

	if _, upsertErr := s.results.Upsert(ctx, core.UpsertVerificationParams{
		EmailID:      req.EmailID,
		Email:        req.Email,
		Domain:       model.NormalizeDomain(domainOf(req.Email)),
		PersonID:     req.PersonID,
		Source:       req.Source,
		VerifyStatus: model.VerifyStatusUnknownTimeout,
		VerifyReason: "retries_exhausted",
		MXHost:       mxHost,
	}); upsertErr != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to persist exhausted verification",
			"email_id", req.EmailID, "err", upsertErr)
	}

	if s.deadLetters != nil {
		letter := &model.DeadLetter{
			JobID:    req.JobID,
			Email:    req.Email,
			MXHost:   mxHost,
			Error:    err.Error(),
			Attempts: req.Attempt,
		}
		if dlErr := s.deadLetters.Record(ctx, letter); dlErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to record dead letter",
				"email_id", req.EmailID, "err", dlErr)
		}
	}

	return fmt.Errorf("verification attempts exhausted for %s: %w", req.Email, err)
}

func reasonForCode(code int, fallback string) string {
	if code > 0 {
		return fmt.Sprintf("smtp_%d", code)
	}
	return fallback
}

func domainOf(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[at+1:]
	}
	return ""
}
