// Package verifyrunner executes probe and verification-sweep jobs pulled from
// the Postgres-backed queue.
package verifyrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/service"
)

// RunCompleter finalizes a run once its last job finishes.
type RunCompleter interface {
	CompleteRun(ctx context.Context, runID string) (*model.Run, error)
}

// Options configures the verification runner.
type Options struct {
	Jobs         *service.JobService          // Required: queue operations
	Verification *service.VerificationService // Required: probe execution
	Results      core.VerificationRepository  // Required: sweep listings
	Completer    RunCompleter                 // Optional: run finalization after each job
	Logger       *slog.Logger                 // Optional: structured logger

	JobType     model.JobType // Required: probe or verify_sweep
	Lease       time.Duration // Optional: per-job lease, default 60s
	Concurrency int           // Optional: worker goroutines, default 1
}

// Runner is a worker pool over one job type. Workers reserve with SKIP
// LOCKED, heartbeat while processing, and sleep on the notification channel
// when the queue is drained.
type Runner struct {
	jobs         *service.JobService
	verification *service.VerificationService
	results      core.VerificationRepository
	completer    RunCompleter
	logger       *slog.Logger

	jobType model.JobType
	lease   time.Duration
	workers int
}

// New constructs a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if opts.Verification == nil {
		return nil, errors.New("VerificationService is required")
	}
	if opts.Results == nil {
		return nil, errors.New("VerificationRepository is required")
	}
	if opts.JobType != model.JobTypeProbe && opts.JobType != model.JobTypeVerifySweep {
		return nil, fmt.Errorf("unsupported job type %q", opts.JobType)
	}

	r := &Runner{
		jobs:         opts.Jobs,
		verification: opts.Verification,
		results:      opts.Results,
		completer:    opts.Completer,
		jobType:      opts.JobType,
		lease:        opts.Lease,
		workers:      opts.Concurrency,
	}
	if r.lease <= 0 {
		r.lease = 60 * time.Second
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	r.logger = slog.Default()
	if opts.Logger != nil {
		r.logger = opts.Logger
	}
	r.logger = r.logger.With("component", "verify_runner", "job_type", r.jobType)
	return r, nil
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting verify runner", "workers", r.workers, "lease", r.lease)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub, ch := r.jobs.Subscribe(r.jobType)
	defer unsub()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, ch); err != nil {
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.jobType, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			select {
			case <-ctx.Done():
				return nil
			case <-notify:
			}
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	stopHeartbeat := r.keepLeaseAlive(ctx, job.ID)

	var err error
	switch job.Type {
	case model.JobTypeProbe:
		err = r.handleProbe(ctx, job)
	case model.JobTypeVerifySweep:
		err = r.handleSweep(ctx, job)
	default:
		err = fmt.Errorf("no handler for job type %s", job.Type)
	}
	stopHeartbeat()

	if err != nil {
		r.settleFailure(ctx, job, err)
		return
	}

	if _, err := r.jobs.Complete(ctx, job.ID); err != nil {
		r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "err", err)
		return
	}
	r.maybeCompleteRun(ctx, job)
}

// settleFailure routes a handler error back into the queue: retryable errors
// reschedule on their computed backoff, everything else takes the default
// retry path. The run completion check runs on every settle: a retryable
// failure on the job's final attempt still ends the job for good, and
// CompleteRun is a no-op while work remains.
func (r *Runner) settleFailure(ctx context.Context, job *model.Job, err error) {
	if re, ok := service.AsRetryable(err); ok {
		if _, ferr := r.jobs.FailWithDelay(ctx, job.ID, err.Error(), re.Delay); ferr != nil {
			r.logger.ErrorContext(ctx, "fail job error", "job_id", job.ID, "err", ferr)
		}
	} else if _, ferr := r.jobs.Fail(ctx, job.ID, err.Error()); ferr != nil {
		r.logger.ErrorContext(ctx, "fail job error", "job_id", job.ID, "err", ferr)
	}
	r.maybeCompleteRun(ctx, job)
}

func (r *Runner) handleProbe(ctx context.Context, job *model.Job) error {
	var payload model.ProbeJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode probe payload: %w", err)
	}

	// The queue fails a job for good once retry_count+1 reaches max_retries,
	// so the final processed attempt starts from RetryCount = MaxRetries-1.
	attempt := job.RetryCount + 1
	_, err := r.verification.Verify(ctx, service.VerifyRequest{
		EmailID:     payload.EmailID,
		Email:       payload.Email,
		Domain:      payload.Domain,
		PersonID:    payload.PersonID,
		Source:      payload.Source,
		Attempt:     attempt,
		LastAttempt: attempt >= job.MaxRetries,
		JobID:       job.ID,
	})
	return err
}

// handleSweep fans a domain's unverified addresses out into probe jobs,
// propagating the sweep's run and company so run completion accounts for
// every probe.
func (r *Runner) handleSweep(ctx context.Context, job *model.Job) error {
	var payload model.StageJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode sweep payload: %w", err)
	}
	if payload.Domain == "" {
		return errors.New("sweep payload missing domain")
	}

	rows, err := r.results.ListUnverifiedByDomain(ctx, payload.Domain, payload.SourcedOnly)
	if err != nil {
		return fmt.Errorf("list unverified for %s: %w", payload.Domain, err)
	}

	enqueued := 0
	for _, row := range rows {
		probePayload, err := json.Marshal(model.ProbeJobPayload{
			EmailID:  row.EmailID,
			Email:    row.Email,
			Domain:   row.Domain,
			PersonID: row.PersonID,
			Source:   row.Source,
		})
		if err != nil {
			return fmt.Errorf("encode probe payload: %w", err)
		}
		if _, err := r.jobs.Create(ctx, &model.CreateJobRequest{
			Type:      model.JobTypeProbe,
			Payload:   probePayload,
			TenantID:  job.TenantID,
			RunID:     job.RunID,
			CompanyID: job.CompanyID,
		}); err != nil {
			return fmt.Errorf("enqueue probe for %s: %w", row.Email, err)
		}
		enqueued++
	}

	r.logger.InfoContext(ctx, "verification sweep enqueued",
		"domain", payload.Domain,
		"sourced_only", payload.SourcedOnly,
		"probes", enqueued,
	)
	return nil
}

// keepLeaseAlive extends the job's lease at half-lease intervals until the
// returned stop function is called. A sweep or slow probe that outlives its
// lease would otherwise be requeued and processed twice.
func (r *Runner) keepLeaseAlive(ctx context.Context, jobID string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	interval := r.lease / 2
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.jobs.Heartbeat(ctx, jobID, r.lease); err != nil {
					r.logger.WarnContext(ctx, "lease heartbeat failed", "job_id", jobID, "err", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// maybeCompleteRun finalizes the job's run if this was its last outstanding
// job. CompleteRun is a no-op while work remains, so calling it after every
// job is safe.
func (r *Runner) maybeCompleteRun(ctx context.Context, job *model.Job) {
	if r.completer == nil || job.RunID == nil {
		return
	}
	if _, err := r.completer.CompleteRun(ctx, *job.RunID); err != nil {
		r.logger.WarnContext(ctx, "run completion check failed",
			"run_id", *job.RunID, "err", err)
	}
}
