package core

import (
	"context"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// This file contains repository and port interface definitions (ports in
// hexagonal architecture). Service implementations depend on these contracts,
// not on concrete implementations.

// ConcurrencyGate hands out non-blocking concurrency leases and per-second
// rate budget backed by a shared atomic counter store. Exhaustion is reported
// as a false return, never a blocking wait; backpressure is the caller's
// retry policy's problem.
type ConcurrencyGate interface {
	// Acquire returns true iff current holders of key are below limit, in
	// which case the holder count is atomically incremented under a bounded
	// lease TTL so a crashed holder self-heals.
	Acquire(ctx context.Context, key string, limit int) (bool, error)
	// Release decrements the holder count for key, flooring at zero. Always
	// safe to call, including after a failed Acquire.
	Release(ctx context.Context, key string) error
	// ConsumeRPS spends one unit of the per-current-second budget for key and
	// reports whether the caller is still under the cap.
	ConsumeRPS(ctx context.Context, key string, limit int) (bool, error)
}

// MXResolver resolves the preferred MX host for a domain. Implementations
// fall back to the bare domain when the lookup yields no MX records.
type MXResolver interface {
	ResolveMX(ctx context.Context, domain string) (string, error)
}

// Prober performs one SMTP mailbox check against mxHost and reports a tagged
// outcome. An empty mxHost makes the implementation resolve the recipient
// domain itself. Implementations never signal mailbox state through the
// error return.
type Prober interface {
	Probe(ctx context.Context, email, mxHost string) model.ProbeOutcome
}

// FallbackVerifier is an optional secondary verifier consulted when SMTP
// probing is inconclusive. Implementations must be bounded (single call) and
// must collapse their own failures to an unknown outcome rather than erroring.
type FallbackVerifier interface {
	Verify(ctx context.Context, email string) model.ProbeOutcome
}

// TestSender dispatches an actual test message with the given VERP return-path.
type TestSender interface {
	Send(ctx context.Context, recipient, returnPath string) error
}

// ReachabilityCache remembers whether TCP/25 to an MX host was recently
// reachable, with a bounded TTL.
type ReachabilityCache interface {
	Get(ctx context.Context, mxHost string) (reachable, known bool, err error)
	Set(ctx context.Context, mxHost string, reachable bool, ttl time.Duration) error
}

// UpsertVerificationParams groups parameters for the idempotent result upsert.
type UpsertVerificationParams struct {
	EmailID      int64
	Email        string
	Domain       string
	PersonID     *int64
	Source       model.EmailSource
	VerifyStatus model.VerifyStatus
	VerifyReason string
	MXHost       string
}

// MarkTestSendParams groups parameters for recording a minted test-send token.
type MarkTestSendParams struct {
	EmailID int64
	Token   string
	Status  model.TestSendStatus
}

// ApplyBounceParams groups parameters for applying a bounce to a row.
type ApplyBounceParams struct {
	EmailID int64
	Status  model.TestSendStatus
	Code    string
	Reason  string
}

// UpgradeToValidParams groups parameters for a catch-all status upgrade.
type UpgradeToValidParams struct {
	EmailID    int64
	FromStatus model.VerifyStatus
	Reason     string
}

// VerificationRepository defines the interface for verification result data.
// All mutations are idempotent: repeated or concurrent application converges
// to one row state.
type VerificationRepository interface {
	// Upsert writes a probe outcome keyed by email id; concurrent probes of
	// the same address converge to a single row.
	Upsert(ctx context.Context, params UpsertVerificationParams) (*model.VerificationResult, error)
	GetByEmailID(ctx context.Context, emailID int64) (*model.VerificationResult, error)
	// ListByPersonDomain returns every address known for one person at one
	// domain with its latest verification state.
	ListByPersonDomain(ctx context.Context, personID int64, domain string) ([]*model.VerificationResult, error)
	// ListTestSentByDomain returns the complete historical set of rows for a
	// domain that entered the test-send lifecycle. Evidence is derived from
	// this full history, never from incremental counters.
	ListTestSentByDomain(ctx context.Context, domain string) ([]*model.VerificationResult, error)
	// MarkTestSend records a minted token, enforcing at most one outstanding
	// token per row and forward-only status transitions.
	MarkTestSend(ctx context.Context, params MarkTestSendParams) (bool, error)
	MarkTestSendDispatched(ctx context.Context, emailID int64) (bool, error)
	// ApplyBounce applies a bounce outcome; forward-only, no-op on replays.
	ApplyBounce(ctx context.Context, params ApplyBounceParams) (bool, error)
	// FindLatestPendingTestSend finds the most recent row in an active
	// test-send state for a recipient address (bounce resolution fallback).
	FindLatestPendingTestSend(ctx context.Context, email string) (*model.VerificationResult, error)
	// UpgradeToValid rewrites a row to valid iff it still holds FromStatus.
	UpgradeToValid(ctx context.Context, params UpgradeToValidParams) (bool, error)
	// AgePendingTestSends marks rows stuck at sent past the waiting window as
	// delivered_assumed, upgrading ambiguous verify statuses to valid.
	// Returns the number of rows aged.
	AgePendingTestSends(ctx context.Context, olderThan time.Time) (int64, error)
	// ReleaseStalePendingTestSends abandons tokens on rows stuck at pending
	// past the cutoff so the escalation chain can retry the candidate. Returns
	// the number of rows released.
	ReleaseStalePendingTestSends(ctx context.Context, olderThan time.Time) (int64, error)
	// ListUnverifiedByDomain returns addresses of a domain awaiting probing;
	// sourcedOnly restricts the sweep to crawled addresses.
	ListUnverifiedByDomain(ctx context.Context, domain string, sourcedOnly bool) ([]*model.VerificationResult, error)
	// DeleteUnprovenGenerated best-effort deletes generated addresses that
	// never produced positive evidence. Returns rows removed.
	DeleteUnprovenGenerated(ctx context.Context, domain string, olderThan time.Time) (int64, error)
	// CountVerifiedByRun aggregates verified/valid counts for run metrics.
	CountVerifiedByRun(ctx context.Context, domains []string) (verified, valid int, err error)
}

// PersonRepository resolves extracted people (external collaborator data).
type PersonRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Person, error)
	ListByDomain(ctx context.Context, domain string) ([]*model.Person, error)
}

// JobRepository defines the interface for queue-level job data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// ReserveNext atomically reserves the next pending job of the given type
	// whose dependency (if any) has completed.
	ReserveNext(ctx context.Context, jobType model.JobType, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context, jobType model.JobType) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	// FailWithDelay schedules the retry after the given delay instead of the
	// repository's fixed default; used for exponential backoff with jitter.
	FailWithDelay(ctx context.Context, id, errMsg string, delay time.Duration) (bool, error)
	Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error)
	// CountCompletedByRun reports per-stage completion for run finalization.
	CountByRun(ctx context.Context, runID string) (map[model.JobType]*model.JobStats, error)
	// FailBlockedDependents fails pending jobs whose dependency has failed;
	// they can never become eligible. Returns the number of jobs failed.
	FailBlockedDependents(ctx context.Context) (int64, error)
	// DeleteTerminalBefore prunes completed or failed jobs older than cutoff.
	DeleteTerminalBefore(ctx context.Context, status model.JobStatus, cutoff time.Time) (int64, error)
}

// RunRepository defines the interface for pipeline run data operations.
type RunRepository interface {
	Create(ctx context.Context, req *model.CreateRunRequest) (*model.Run, error)
	GetByID(ctx context.Context, id string) (*model.Run, error)
	UpdateStatus(ctx context.Context, id string, status model.RunStatus) (bool, error)
	// UpdateMetrics persists the progress blob incrementally during fanout.
	UpdateMetrics(ctx context.Context, id string, metrics model.RunMetrics) error
	// SumRecentDomainCounts sums domain counts of this tenant's runs created
	// after the cutoff; the fallback input to the rolling 24h cap.
	SumRecentDomainCounts(ctx context.Context, tenantID string, since time.Time) (int, error)
}

// CompanyRepository defines the interface for company records.
type CompanyRepository interface {
	// Ensure returns the company for (tenant, domain), creating it when
	// missing. Concurrent creates are unique-violation tolerant.
	Ensure(ctx context.Context, tenantID, domain string) (*model.Company, error)
	GetByID(ctx context.Context, id string) (*model.Company, error)
}

// DeadLetterRepository records unrecoverable probe failures.
type DeadLetterRepository interface {
	Record(ctx context.Context, letter *model.DeadLetter) error
	ListRecent(ctx context.Context, limit int) ([]*model.DeadLetter, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ActivityRepository tracks per-tenant pipeline activity for quota math.
type ActivityRepository interface {
	RecordDomains(ctx context.Context, tenantID string, count int) error
	// CountDomainsSince computes the tenant's rolling domain usage from the
	// activity log. Implementations may fail; callers fall back to
	// RunRepository.SumRecentDomainCounts.
	CountDomainsSince(ctx context.Context, tenantID string, since time.Time) (int, error)
}

// PeopleDiscoverer is the external discovery collaborator (site crawling and
// name extraction live outside this system).
type PeopleDiscoverer interface {
	Discover(ctx context.Context, tenantID, domain string) ([]*model.Person, error)
}

// CandidateGenerator is the external pattern-generation collaborator.
type CandidateGenerator interface {
	// Generate mints candidate addresses for a person and returns their email
	// ids. EnqueuesProbes reports whether generation schedules its own probe
	// jobs, which determines the verification sweep scope.
	Generate(ctx context.Context, person *model.Person) ([]model.EmailCandidate, error)
	EnqueuesProbes() bool
}
