// Package pipelinerunner executes the per-company stage jobs of a pipeline
// run: people discovery, candidate generation, and inbound bounce application.
package pipelinerunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/service"
)

// RunCompleter finalizes a run once its last job finishes.
type RunCompleter interface {
	CompleteRun(ctx context.Context, runID string) (*model.Run, error)
}

// NoopDiscoverer is the default discovery collaborator: it finds nobody.
type NoopDiscoverer struct{}

// Discover returns no people.
func (NoopDiscoverer) Discover(context.Context, string, string) ([]*model.Person, error) {
	return nil, nil
}

// NoopGenerator is the default generation collaborator: it mints nothing and
// never schedules probes of its own.
type NoopGenerator struct{}

// Generate returns no candidates.
func (NoopGenerator) Generate(context.Context, *model.Person) ([]model.EmailCandidate, error) {
	return nil, nil
}

// EnqueuesProbes reports false; the verification sweep covers everything.
func (NoopGenerator) EnqueuesProbes() bool { return false }

// Options configures the pipeline runner.
type Options struct {
	Jobs       *service.JobService         // Required: queue operations
	Results    core.VerificationRepository // Required: candidate persistence
	People     core.PersonRepository       // Required: extracted people
	Discoverer core.PeopleDiscoverer       // Optional: defaults to NoopDiscoverer
	Generator  core.CandidateGenerator     // Optional: defaults to NoopGenerator
	Escalator  *service.Escalator          // Optional: bounce_apply handling
	Completer  RunCompleter                // Optional: run finalization
	Logger     *slog.Logger                // Optional: structured logger

	Lease       time.Duration // Optional: per-job lease, default 5m
	Concurrency int           // Optional: workers per job type, default 1
}

// Runner processes discovery, generate, and bounce_apply jobs with one
// errgroup-managed worker pool per type.
type Runner struct {
	jobs       *service.JobService
	results    core.VerificationRepository
	people     core.PersonRepository
	discoverer core.PeopleDiscoverer
	generator  core.CandidateGenerator
	escalator  *service.Escalator
	completer  RunCompleter
	logger     *slog.Logger

	lease   time.Duration
	workers int
}

// New constructs a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if opts.Results == nil {
		return nil, errors.New("VerificationRepository is required")
	}
	if opts.People == nil {
		return nil, errors.New("PersonRepository is required")
	}

	r := &Runner{
		jobs:       opts.Jobs,
		results:    opts.Results,
		people:     opts.People,
		discoverer: opts.Discoverer,
		generator:  opts.Generator,
		escalator:  opts.Escalator,
		completer:  opts.Completer,
		lease:      opts.Lease,
		workers:    opts.Concurrency,
	}
	if r.discoverer == nil {
		r.discoverer = NoopDiscoverer{}
	}
	if r.generator == nil {
		r.generator = NoopGenerator{}
	}
	if r.lease <= 0 {
		r.lease = 5 * time.Minute
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	r.logger = slog.Default()
	if opts.Logger != nil {
		r.logger = opts.Logger
	}
	r.logger = r.logger.With("component", "pipeline_runner")
	return r, nil
}

// Run starts one worker pool per handled job type and blocks until the
// context is cancelled or a pool fails.
func (r *Runner) Run(ctx context.Context) error {
	jobTypes := []model.JobType{model.JobTypeDiscovery, model.JobTypeGenerate}
	if r.escalator != nil {
		jobTypes = append(jobTypes, model.JobTypeBounceApply)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, jobType := range jobTypes {
		jobType := jobType
		g.Go(func() error {
			return r.runPool(ctx, jobType)
		})
	}
	return g.Wait()
}

func (r *Runner) runPool(ctx context.Context, jobType model.JobType) error {
	r.logger.InfoContext(ctx, "starting pipeline workers",
		"job_type", jobType, "workers", r.workers, "lease", r.lease)

	unsub, ch := r.jobs.Subscribe(jobType)
	defer unsub()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		g.Go(func() error {
			return r.workerLoop(ctx, jobType, ch)
		})
	}
	return g.Wait()
}

func (r *Runner) workerLoop(ctx context.Context, jobType model.JobType, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, jobType, r.lease)
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
	case model.JobTypeDiscovery:
		err = r.handleDiscovery(ctx, job)
	case model.JobTypeGenerate:
		err = r.handleGenerate(ctx, job)
	case model.JobTypeBounceApply:
		err = r.handleBounce(ctx, job)
	default:
		err = fmt.Errorf("no handler for job type %s", job.Type)
	}
	stopHeartbeat()

	if err != nil {
		if _, ferr := r.jobs.Fail(ctx, job.ID, err.Error()); ferr != nil {
			r.logger.ErrorContext(ctx, "fail job error", "job_id", job.ID, "err", ferr)
		}
	} else if _, cerr := r.jobs.Complete(ctx, job.ID); cerr != nil {
		r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "err", cerr)
	}

	if r.completer != nil && job.RunID != nil {
		if _, err := r.completer.CompleteRun(ctx, *job.RunID); err != nil {
			r.logger.WarnContext(ctx, "run completion check failed",
				"run_id", *job.RunID, "err", err)
		}
	}
}

// keepLeaseAlive extends the job's lease at half-lease intervals until the
// returned stop function is called. Discovery crawls can run long; without the
// heartbeat an expired lease hands the job to a second worker mid-flight.
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

// handleDiscovery delegates to the discovery collaborator, which owns
// persistence of the people it extracts.
func (r *Runner) handleDiscovery(ctx context.Context, job *model.Job) error {
	var payload model.StageJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode discovery payload: %w", err)
	}

	tenantID := ""
	if job.TenantID != nil {
		tenantID = *job.TenantID
	}

	people, err := r.discoverer.Discover(ctx, tenantID, payload.Domain)
	if err != nil {
		return fmt.Errorf("discover %s: %w", payload.Domain, err)
	}

	r.logger.InfoContext(ctx, "discovery completed",
		"domain", payload.Domain, "people", len(people))
	return nil
}

// handleGenerate mints candidate addresses for every person at the domain and
// records them as pending generated rows awaiting verification.
func (r *Runner) handleGenerate(ctx context.Context, job *model.Job) error {
	var payload model.StageJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode generate payload: %w", err)
	}

	people, err := r.people.ListByDomain(ctx, model.NormalizeDomain(payload.Domain))
	if err != nil {
		return fmt.Errorf("list people for %s: %w", payload.Domain, err)
	}

	generated := 0
	for _, person := range people {
		if payload.PersonID != nil && person.ID != *payload.PersonID {
			continue
		}
		candidates, err := r.generator.Generate(ctx, person)
		if err != nil {
			return fmt.Errorf("generate candidates for person %d: %w", person.ID, err)
		}
		for _, c := range candidates {
			personID := person.ID
			if _, err := r.results.Upsert(ctx, core.UpsertVerificationParams{
				EmailID:      c.EmailID,
				Email:        c.Email,
				Domain:       payload.Domain,
				PersonID:     &personID,
				Source:       model.EmailSourceGenerated,
				VerifyStatus: model.VerifyStatusPending,
			}); err != nil {
				return fmt.Errorf("record candidate %s: %w", c.Email, err)
			}
			generated++
		}
	}

	r.logger.InfoContext(ctx, "generation completed",
		"domain", payload.Domain, "people", len(people), "candidates", generated)
	return nil
}

func (r *Runner) handleBounce(ctx context.Context, job *model.Job) error {
	var notification model.BounceNotification
	if err := json.Unmarshal(job.Payload, &notification); err != nil {
		return fmt.Errorf("decode bounce payload: %w", err)
	}
	return r.escalator.ApplyBounce(ctx, &notification)
}
