package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/mocks"
)

type pipelineFixture struct {
	runs      *mocks.MockRunRepository
	jobs      *mocks.MockJobRepository
	companies *mocks.MockCompanyRepository
	results   *mocks.MockVerificationRepository
	activity  *mocks.MockActivityRepository
}

func newPipelineFixture(ctrl *gomock.Controller) *pipelineFixture {
	return &pipelineFixture{
		runs:      mocks.NewMockRunRepository(ctrl),
		jobs:      mocks.NewMockJobRepository(ctrl),
		companies: mocks.NewMockCompanyRepository(ctrl),
		results:   mocks.NewMockVerificationRepository(ctrl),
		activity:  mocks.NewMockActivityRepository(ctrl),
	}
}

func (f *pipelineFixture) service(t *testing.T, opts PipelineServiceOptions) *PipelineService {
	t.Helper()
	opts.Runs = f.runs
	opts.Jobs = f.jobs
	opts.Companies = f.companies
	opts.Results = f.results
	svc, err := NewPipelineService(opts)
	require.NoError(t, err)
	return svc
}

func TestPipelineService_StartRun_FullChainPerCompany(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	f := newPipelineFixture(ctrl)
	svc := f.service(t, PipelineServiceOptions{})

	req := &model.CreateRunRequest{
		TenantID: "tenant-1",
		Domains:  []string{"acme.com"},
		Options:  model.RunOptions{Modes: []string{"full"}},
	}
	run := &model.Run{ID: "run-1", TenantID: "tenant-1", Domains: req.Domains}

	f.runs.EXPECT().SumRecentDomainCounts(ctx, "tenant-1", gomock.Any()).Return(0, nil)
	f.runs.EXPECT().Create(ctx, req).Return(run, nil)
	f.runs.EXPECT().UpdateStatus(ctx, "run-1", model.RunStatusRunning).Return(true, nil)
	f.companies.EXPECT().Ensure(ctx, "tenant-1", "acme.com").
		Return(&model.Company{ID: "co-1", TenantID: "tenant-1", Domain: "acme.com"}, nil)

	// Chain shape: discovery, generate depends on discovery, sweep depends on generate.
	var jobIDs []string
	f.jobs.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, jreq *model.CreateJobRequest) (*model.Job, error) {
			id := "job-" + string(jreq.Type)
			switch jreq.Type {
			case model.JobTypeDiscovery:
				assert.Nil(t, jreq.DependsOn)
			case model.JobTypeGenerate:
				if assert.NotNil(t, jreq.DependsOn) {
					assert.Equal(t, "job-discovery", *jreq.DependsOn)
				}
			case model.JobTypeVerifySweep:
				if assert.NotNil(t, jreq.DependsOn) {
					assert.Equal(t, "job-generate", *jreq.DependsOn)
				}
				var payload model.StageJobPayload
				require.NoError(t, json.Unmarshal(jreq.Payload, &payload))
				assert.Equal(t, "acme.com", payload.Domain)
				assert.False(t, payload.SourcedOnly)
			}
			if assert.NotNil(t, jreq.RunID) {
				assert.Equal(t, "run-1", *jreq.RunID)
			}
			jobIDs = append(jobIDs, id)
			return &model.Job{ID: id, Type: jreq.Type}, nil
		},
	).Times(3)

	f.runs.EXPECT().UpdateMetrics(ctx, "run-1", gomock.Any()).Return(nil).Times(2)

	got, err := svc.StartRun(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-discovery", "job-generate", "job-verify_sweep"}, jobIDs)
	assert.Equal(t, 1, got.Metrics.CompaniesEnqueued)
	assert.Equal(t, 1, got.Metrics.JobsByStage["verify_sweep"])
}

func TestPipelineService_StartRun_TrimsToCompanyLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	f := newPipelineFixture(ctrl)
	svc := f.service(t, PipelineServiceOptions{DefaultCompanyLimit: 2})

	req := &model.CreateRunRequest{
		TenantID: "tenant-1",
		Domains:  []string{"a.com", "b.com", "c.com", "d.com"},
		Options:  model.RunOptions{Modes: []string{"verify"}},
	}
	run := &model.Run{ID: "run-1", TenantID: "tenant-1", Domains: req.Domains}

	f.runs.EXPECT().SumRecentDomainCounts(ctx, "tenant-1", gomock.Any()).Return(0, nil)
	f.runs.EXPECT().Create(ctx, req).Return(run, nil)
	f.runs.EXPECT().UpdateStatus(ctx, "run-1", model.RunStatusRunning).Return(true, nil)

	// Only the first two domains survive the trim.
	f.companies.EXPECT().Ensure(ctx, "tenant-1", "a.com").Return(&model.Company{ID: "co-a"}, nil)
	f.companies.EXPECT().Ensure(ctx, "tenant-1", "b.com").Return(&model.Company{ID: "co-b"}, nil)
	f.jobs.EXPECT().Create(ctx, gomock.Any()).Return(&model.Job{ID: "j"}, nil).Times(2)
	f.runs.EXPECT().UpdateMetrics(ctx, "run-1", gomock.Any()).Return(nil).Times(3)

	got, err := svc.StartRun(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Metrics.CompaniesRequested)
	assert.Equal(t, 2, got.Metrics.CompaniesTrimmed)
	assert.Equal(t, 2, got.Metrics.CompaniesEnqueued)
}

func TestPipelineService_StartRun_EnforcesTenantCap(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	f := newPipelineFixture(ctrl)
	svc := f.service(t, PipelineServiceOptions{
		Activity:             f.activity,
		TenantDailyDomainCap: 10,
	})

	req := &model.CreateRunRequest{
		TenantID: "tenant-1",
		Domains:  []string{"a.com", "b.com"},
	}

	f.activity.EXPECT().CountDomainsSince(ctx, "tenant-1", gomock.Any()).Return(9, nil)

	_, err := svc.StartRun(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTenantCapExceeded)
}

func TestPipelineService_StartRun_QuotaFallsBackToRuns(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	f := newPipelineFixture(ctrl)
	svc := f.service(t, PipelineServiceOptions{
		Activity:             f.activity,
		TenantDailyDomainCap: 10,
	})

	req := &model.CreateRunRequest{
		TenantID: "tenant-1",
		Domains:  []string{"a.com"},
		Options:  model.RunOptions{Modes: []string{"verify"}},
	}
	run := &model.Run{ID: "run-1", TenantID: "tenant-1", Domains: req.Domains}

	// Activity log unavailable; the run-derived count keeps the quota working.
	f.activity.EXPECT().CountDomainsSince(ctx, "tenant-1", gomock.Any()).
		Return(0, errors.New("redis down"))
	f.runs.EXPECT().SumRecentDomainCounts(ctx, "tenant-1", gomock.Any()).Return(3, nil)

	f.runs.EXPECT().Create(ctx, req).Return(run, nil)
	f.runs.EXPECT().UpdateStatus(ctx, "run-1", model.RunStatusRunning).Return(true, nil)
	f.companies.EXPECT().Ensure(ctx, "tenant-1", "a.com").Return(&model.Company{ID: "co-a"}, nil)
	f.jobs.EXPECT().Create(ctx, gomock.Any()).Return(&model.Job{ID: "j"}, nil)
	f.runs.EXPECT().UpdateMetrics(ctx, "run-1", gomock.Any()).Return(nil).Times(2)
	f.activity.EXPECT().RecordDomains(ctx, "tenant-1", 1).Return(nil)

	_, err := svc.StartRun(ctx, req)
	require.NoError(t, err)
}

func TestPipelineService_StartRun_InvalidModeRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newPipelineFixture(ctrl)
	svc := f.service(t, PipelineServiceOptions{})

	req := &model.CreateRunRequest{
		TenantID: "tenant-1",
		Domains:  []string{"a.com"},
		Options:  model.RunOptions{Modes: []string{"telepathy"}},
	}

	_, err := svc.StartRun(context.Background(), req)
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid stage mode")
}

func TestPipelineService_StartRun_AllFanoutsFailedFailsRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	f := newPipelineFixture(ctrl)
	svc := f.service(t, PipelineServiceOptions{})

	req := &model.CreateRunRequest{
		TenantID: "tenant-1",
		Domains:  []string{"a.com"},
		Options:  model.RunOptions{Modes: []string{"verify"}},
	}
	run := &model.Run{ID: "run-1", TenantID: "tenant-1", Domains: req.Domains}

	f.runs.EXPECT().SumRecentDomainCounts(ctx, "tenant-1", gomock.Any()).Return(0, nil)
	f.runs.EXPECT().Create(ctx, req).Return(run, nil)
	f.runs.EXPECT().UpdateStatus(ctx, "run-1", model.RunStatusRunning).Return(true, nil)
	f.companies.EXPECT().Ensure(ctx, "tenant-1", "a.com").
		Return(nil, errors.New("unique violation storm"))
	f.runs.EXPECT().UpdateMetrics(ctx, "run-1", gomock.Any()).Return(nil)
	f.runs.EXPECT().UpdateStatus(ctx, "run-1", model.RunStatusFailed).Return(true, nil)

	_, err := svc.StartRun(ctx, req)
	require.Error(t, err)
	assert.ErrorContains(t, err, "no company could be enqueued")
}

func TestPipelineService_CompleteRun_WaitsForOutstandingJobs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	f := newPipelineFixture(ctrl)
	svc := f.service(t, PipelineServiceOptions{})

	run := &model.Run{ID: "run-1", Status: model.RunStatusRunning, Domains: []string{"a.com"}}
	f.runs.EXPECT().GetByID(ctx, "run-1").Return(run, nil)
	f.jobs.EXPECT().CountByRun(ctx, "run-1").Return(map[model.JobType]*model.JobStats{
		model.JobTypeProbe: {Pending: 2, Completed: 5},
	}, nil)

	got, err := svc.CompleteRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)
}

func TestPipelineService_CompleteRun_FinalizesStatus(t *testing.T) {
	tests := []struct {
		name     string
		stats    map[model.JobType]*model.JobStats
		expected model.RunStatus
	}{
		{
			name: "all jobs completed",
			stats: map[model.JobType]*model.JobStats{
				model.JobTypeProbe: {Completed: 5},
			},
			expected: model.RunStatusSucceeded,
		},
		{
			name: "some jobs failed",
			stats: map[model.JobType]*model.JobStats{
				model.JobTypeProbe: {Completed: 3, Failed: 2},
			},
			expected: model.RunStatusCompletedWithErrors,
		},
		{
			name: "every job failed",
			stats: map[model.JobType]*model.JobStats{
				model.JobTypeProbe: {Failed: 4},
			},
			expected: model.RunStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			ctx := context.Background()
			f := newPipelineFixture(ctrl)
			svc := f.service(t, PipelineServiceOptions{})

			run := &model.Run{ID: "run-1", Status: model.RunStatusRunning, Domains: []string{"a.com"}}
			f.runs.EXPECT().GetByID(ctx, "run-1").Return(run, nil)
			f.jobs.EXPECT().CountByRun(ctx, "run-1").Return(tt.stats, nil)
			f.results.EXPECT().CountVerifiedByRun(ctx, []string{"a.com"}).Return(10, 6, nil)
			f.runs.EXPECT().UpdateMetrics(ctx, "run-1", gomock.Any()).DoAndReturn(
				func(_ context.Context, _ string, metrics model.RunMetrics) error {
					assert.Equal(t, 10, metrics.EmailsVerified)
					assert.Equal(t, 6, metrics.EmailsValid)
					return nil
				},
			)
			f.runs.EXPECT().UpdateStatus(ctx, "run-1", tt.expected).Return(true, nil)

			got, err := svc.CompleteRun(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Status)
		})
	}
}

func TestPipelineService_CompleteRun_TerminalRunIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	f := newPipelineFixture(ctrl)
	svc := f.service(t, PipelineServiceOptions{})

	run := &model.Run{ID: "run-1", Status: model.RunStatusSucceeded}
	f.runs.EXPECT().GetByID(ctx, "run-1").Return(run, nil)
	// No job counting, no updates.

	got, err := svc.CompleteRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, got.Status)
}
