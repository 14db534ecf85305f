package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/observability/errclass"
)

// PipelineServiceOptions groups dependencies for PipelineService.
type PipelineServiceOptions struct {
	Runs      core.RunRepository          // Required: run store
	Jobs      core.JobRepository          // Required: job queue
	Companies core.CompanyRepository      // Required: company records
	Results   core.VerificationRepository // Required: verification results for metrics
	Activity  core.ActivityRepository     // Optional: tenant quota activity log
	Generator core.CandidateGenerator     // Optional: determines verify-sweep scope
	Logger    *slog.Logger                // Optional: structured logger

	// TenantDailyDomainCap limits how many domains one tenant may enqueue in
	// a rolling 24h window. Default 500.
	TenantDailyDomainCap int
	// DefaultCompanyLimit trims a single run's domain list when the request
	// does not set its own limit. Default 100.
	DefaultCompanyLimit int
}

// PipelineService fans a run submission out into per-company job chains and
// aggregates their outcomes once the last chain finishes.
type PipelineService struct {
	runs      core.RunRepository
	jobs      core.JobRepository
	companies core.CompanyRepository
	results   core.VerificationRepository
	activity  core.ActivityRepository
	generator core.CandidateGenerator
	logger    *slog.Logger

	tenantCap           int
	defaultCompanyLimit int
	now                 func() time.Time
}

// NewPipelineService constructs a new PipelineService.
func NewPipelineService(opts PipelineServiceOptions) (*PipelineService, error) {
	if opts.Runs == nil {
		return nil, errors.New("RunRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Companies == nil {
		return nil, errors.New("CompanyRepository is required")
	}
	if opts.Results == nil {
		return nil, errors.New("VerificationRepository is required")
	}

	svc := &PipelineService{
		runs:                opts.Runs,
		jobs:                opts.Jobs,
		companies:           opts.Companies,
		results:             opts.Results,
		activity:            opts.Activity,
		generator:           opts.Generator,
		tenantCap:           opts.TenantDailyDomainCap,
		defaultCompanyLimit: opts.DefaultCompanyLimit,
		now:                 time.Now,
	}
	if svc.tenantCap <= 0 {
		svc.tenantCap = 500
	}
	if svc.defaultCompanyLimit <= 0 {
		svc.defaultCompanyLimit = 100
	}
	if opts.Logger != nil {
		svc.logger = opts.Logger.With("component", "pipeline_service")
	}
	return svc, nil
}

// StartRun validates a submission, enforces the tenant quota, persists the
// run, and fans out one job chain per company domain. The returned run
// carries the post-trim metrics.
func (s *PipelineService) StartRun(ctx context.Context, req *model.CreateRunRequest) (*model.Run, error) {
	if req == nil {
		return nil, errors.New("create run request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	modes, err := model.NormalizeStageModes(req.Options.Modes)
	if err != nil {
		return nil, err
	}

	domains, trimmed := s.trimDomains(req)
	if err := s.checkTenantCap(ctx, req.TenantID, len(domains)); err != nil {
		return nil, err
	}

	run, err := s.runs.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	if _, err := s.runs.UpdateStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		return nil, fmt.Errorf("mark run running: %w", err)
	}

	metrics := model.RunMetrics{
		CompaniesRequested: len(req.Domains),
		CompaniesTrimmed:   trimmed,
	}

	var fanoutErr error
	for _, domain := range domains {
		if err := s.fanoutCompany(ctx, run, domain, modes, &metrics); err != nil {
			metrics.AddError(errclass.Classify(err))
			fanoutErr = err
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "company fanout failed",
					"run_id", run.ID, "domain", domain, "err", err)
			}
			continue
		}
		metrics.CompaniesEnqueued++
		// Progress is persisted after every company so a crash mid-fanout
		// leaves an inspectable partial state.
		if err := s.runs.UpdateMetrics(ctx, run.ID, metrics); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "persist run metrics failed", "run_id", run.ID, "err", err)
		}
	}

	if err := s.runs.UpdateMetrics(ctx, run.ID, metrics); err != nil {
		return nil, fmt.Errorf("persist run metrics: %w", err)
	}
	s.recordActivity(ctx, req.TenantID, metrics.CompaniesEnqueued)

	if metrics.CompaniesEnqueued == 0 && fanoutErr != nil {
		if _, err := s.runs.UpdateStatus(ctx, run.ID, model.RunStatusFailed); err != nil {
			return nil, fmt.Errorf("mark run failed: %w", err)
		}
		return nil, fmt.Errorf("run %s: no company could be enqueued: %w", run.ID, fanoutErr)
	}

	run.Metrics = metrics
	return run, nil
}

// trimDomains applies the per-run company cap and returns the domains that
// survive plus the trimmed count.
func (s *PipelineService) trimDomains(req *model.CreateRunRequest) ([]string, int) {
	limit := req.Options.CompanyLimit
	if limit <= 0 {
		limit = s.defaultCompanyLimit
	}
	if len(req.Domains) <= limit {
		return req.Domains, 0
	}
	return req.Domains[:limit], len(req.Domains) - limit
}

// checkTenantCap enforces the rolling 24h per-tenant domain quota. The
// activity log is the preferred source; when it fails the check falls back to
// summing recent runs' domain counts.
func (s *PipelineService) checkTenantCap(ctx context.Context, tenantID string, incoming int) error {
	since := s.now().Add(-24 * time.Hour)

	used := -1
	if s.activity != nil {
		if n, err := s.activity.CountDomainsSince(ctx, tenantID, since); err == nil {
			used = n
		} else if s.logger != nil {
			s.logger.WarnContext(ctx, "activity quota lookup failed, falling back to runs",
				"tenant_id", tenantID, "err", err)
		}
	}
	if used < 0 {
		n, err := s.runs.SumRecentDomainCounts(ctx, tenantID, since)
		if err != nil {
			return fmt.Errorf("compute tenant quota: %w", err)
		}
		used = n
	}

	if used+incoming > s.tenantCap {
		return fmt.Errorf("%w: %d used + %d requested > %d",
			model.ErrTenantCapExceeded, used, incoming, s.tenantCap)
	}
	return nil
}

func (s *PipelineService) recordActivity(ctx context.Context, tenantID string, count int) {
	if s.activity == nil || count <= 0 {
		return
	}
	if err := s.activity.RecordDomains(ctx, tenantID, count); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "record tenant activity failed",
			"tenant_id", tenantID, "err", err)
	}
}

// fanoutCompany ensures the company row and enqueues its stage chain:
// discovery, then generation depending on discovery, then a verification
// sweep depending on whichever stage precedes it.
func (s *PipelineService) fanoutCompany(
	ctx context.Context,
	run *model.Run,
	domain string,
	modes []model.StageMode,
	metrics *model.RunMetrics,
) error {
	company, err := s.companies.Ensure(ctx, run.TenantID, domain)
	if err != nil {
		return fmt.Errorf("ensure company %s: %w", domain, err)
	}

	var lastJobID *string
	if model.HasStage(modes, model.StageModeAutodiscovery) {
		job, err := s.enqueueStage(ctx, run, company, model.JobTypeDiscovery, domain, nil)
		if err != nil {
			return err
		}
		metrics.AddStageJob(model.JobTypeDiscovery)
		lastJobID = &job.ID
	}

	if model.HasStage(modes, model.StageModeGenerate) {
		job, err := s.enqueueStage(ctx, run, company, model.JobTypeGenerate, domain, lastJobID)
		if err != nil {
			return err
		}
		metrics.AddStageJob(model.JobTypeGenerate)
		lastJobID = &job.ID
	}

	if model.HasStage(modes, model.StageModeVerify) {
		// When generation schedules its own probes the sweep only covers
		// crawled addresses; otherwise it covers everything unverified.
		sourcedOnly := s.generator != nil && s.generator.EnqueuesProbes()
		payload, err := json.Marshal(model.StageJobPayload{
			Domain:      domain,
			SourcedOnly: sourcedOnly,
		})
		if err != nil {
			return fmt.Errorf("encode sweep payload: %w", err)
		}
		_, err = s.jobs.Create(ctx, &model.CreateJobRequest{
			Type:      model.JobTypeVerifySweep,
			Payload:   payload,
			TenantID:  &run.TenantID,
			RunID:     &run.ID,
			CompanyID: &company.ID,
			DependsOn: lastJobID,
		})
		if err != nil {
			return fmt.Errorf("enqueue verify sweep for %s: %w", domain, err)
		}
		metrics.AddStageJob(model.JobTypeVerifySweep)
	}

	return nil
}

func (s *PipelineService) enqueueStage(
	ctx context.Context,
	run *model.Run,
	company *model.Company,
	jobType model.JobType,
	domain string,
	dependsOn *string,
) (*model.Job, error) {
	payload, err := json.Marshal(model.StageJobPayload{Domain: domain})
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	job, err := s.jobs.Create(ctx, &model.CreateJobRequest{
		Type:      jobType,
		Payload:   payload,
		TenantID:  &run.TenantID,
		RunID:     &run.ID,
		CompanyID: &company.ID,
		DependsOn: dependsOn,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s for %s: %w", jobType, domain, err)
	}
	return job, nil
}

// CompleteRun aggregates per-stage job outcomes and verification counts into
// the run's terminal status. It is a no-op while any stage job is still
// pending or running.
func (s *PipelineService) CompleteRun(ctx context.Context, runID string) (*model.Run, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil
	}

	stats, err := s.jobs.CountByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("count run jobs: %w", err)
	}

	var completed, failed, outstanding int
	for _, st := range stats {
		completed += st.Completed
		failed += st.Failed
		outstanding += st.Pending + st.Running
	}
	if outstanding > 0 {
		return run, nil
	}

	metrics := run.Metrics
	verified, valid, err := s.results.CountVerifiedByRun(ctx, run.Domains)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "count verified emails failed", "run_id", runID, "err", err)
		}
	} else {
		metrics.EmailsVerified = verified
		metrics.EmailsValid = valid
	}
	if err := s.runs.UpdateMetrics(ctx, runID, metrics); err != nil {
		return nil, fmt.Errorf("persist final metrics: %w", err)
	}

	status := model.RunStatusSucceeded
	switch {
	case completed == 0 && failed > 0:
		status = model.RunStatusFailed
	case failed > 0 || len(metrics.ErrorHistogram) > 0:
		status = model.RunStatusCompletedWithErrors
	}
	if _, err := s.runs.UpdateStatus(ctx, runID, status); err != nil {
		return nil, fmt.Errorf("finalize run status: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "run completed",
			"run_id", runID,
			"status", status,
			"jobs_completed", completed,
			"jobs_failed", failed,
		)
	}

	run.Status = status
	run.Metrics = metrics
	return run, nil
}
