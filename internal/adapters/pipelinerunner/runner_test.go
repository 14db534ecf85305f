package pipelinerunner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/mocks"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/service"
)

type fixture struct {
	jobsRepo *mocks.MockJobRepository
	results  *mocks.MockVerificationRepository
	people   *mocks.MockPersonRepository
}

type fakeDiscoverer struct {
	tenantID string
	domain   string
	people   []*model.Person
	err      error
}

func (f *fakeDiscoverer) Discover(_ context.Context, tenantID, domain string) ([]*model.Person, error) {
	f.tenantID = tenantID
	f.domain = domain
	return f.people, f.err
}

type fakeGenerator struct {
	candidates map[int64][]model.EmailCandidate
}

func (f *fakeGenerator) Generate(_ context.Context, person *model.Person) ([]model.EmailCandidate, error) {
	return f.candidates[person.ID], nil
}

func (f *fakeGenerator) EnqueuesProbes() bool { return false }

type fakeCompleter struct {
	calls []string
}

func (f *fakeCompleter) CompleteRun(_ context.Context, runID string) (*model.Run, error) {
	f.calls = append(f.calls, runID)
	return &model.Run{ID: runID}, nil
}

type noopNotifier struct{}

func (noopNotifier) Subscribe(model.JobType) (func(), <-chan struct{}) {
	ch := make(chan struct{})
	return func() {}, ch
}

func (noopNotifier) StopAll() {}

func newFixture(ctrl *gomock.Controller) *fixture {
	return &fixture{
		jobsRepo: mocks.NewMockJobRepository(ctrl),
		results:  mocks.NewMockVerificationRepository(ctrl),
		people:   mocks.NewMockPersonRepository(ctrl),
	}
}

func (f *fixture) jobService(t *testing.T) *service.JobService {
	t.Helper()
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         f.jobsRepo,
		DefaultLease: time.Minute,
		Notifier:     noopNotifier{},
	})
	require.NoError(t, err)
	return jobs
}

func TestNew_RequiresDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(ctrl)
	jobs := f.jobService(t)

	_, err := New(Options{Results: f.results, People: f.people})
	assert.EqualError(t, err, "JobService is required")

	_, err = New(Options{Jobs: jobs, People: f.people})
	assert.EqualError(t, err, "VerificationRepository is required")

	_, err = New(Options{Jobs: jobs, Results: f.results})
	assert.EqualError(t, err, "PersonRepository is required")
}

func TestNew_DefaultsToNoopCollaborators(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(ctrl)

	runner, err := New(Options{
		Jobs:    f.jobService(t),
		Results: f.results,
		People:  f.people,
	})
	require.NoError(t, err)

	people, err := runner.discoverer.Discover(context.Background(), "tenant-1", "acme.com")
	require.NoError(t, err)
	assert.Empty(t, people)

	candidates, err := runner.generator.Generate(context.Background(), &model.Person{ID: 1})
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.False(t, runner.generator.EnqueuesProbes())
}

func TestProcessJob_DiscoveryPassesTenantAndDomain(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(ctrl)
	discoverer := &fakeDiscoverer{people: []*model.Person{{ID: 1}}}
	completer := &fakeCompleter{}

	runner, err := New(Options{
		Jobs:       f.jobService(t),
		Results:    f.results,
		People:     f.people,
		Discoverer: discoverer,
		Completer:  completer,
	})
	require.NoError(t, err)

	runID, tenantID := "run-1", "tenant-1"
	payload, err := json.Marshal(model.StageJobPayload{Domain: "acme.com"})
	require.NoError(t, err)
	job := &model.Job{
		ID:       "job-disc",
		Type:     model.JobTypeDiscovery,
		Payload:  payload,
		RunID:    &runID,
		TenantID: &tenantID,
	}

	f.jobsRepo.EXPECT().Complete(gomock.Any(), "job-disc").Return(true, nil)

	runner.processJob(context.Background(), job)

	assert.Equal(t, "tenant-1", discoverer.tenantID)
	assert.Equal(t, "acme.com", discoverer.domain)
	assert.Equal(t, []string{"run-1"}, completer.calls)
}

func TestProcessJob_GenerateRecordsCandidates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(ctrl)
	generator := &fakeGenerator{candidates: map[int64][]model.EmailCandidate{
		1: {
			{EmailID: 10, Email: "brett.anderson@acme.com", Pattern: model.PatternFirstDotLast},
			{EmailID: 11, Email: "banderson@acme.com", Pattern: model.PatternFLast},
		},
	}}

	runner, err := New(Options{
		Jobs:      f.jobService(t),
		Results:   f.results,
		People:    f.people,
		Generator: generator,
	})
	require.NoError(t, err)

	payload, err := json.Marshal(model.StageJobPayload{Domain: "acme.com"})
	require.NoError(t, err)
	job := &model.Job{ID: "job-gen", Type: model.JobTypeGenerate, Payload: payload}

	f.people.EXPECT().ListByDomain(gomock.Any(), "acme.com").
		Return([]*model.Person{{ID: 1, FirstName: "Brett", LastName: "Anderson"}}, nil)
	f.results.EXPECT().Upsert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p core.UpsertVerificationParams) (*model.VerificationResult, error) {
			assert.Equal(t, model.EmailSourceGenerated, p.Source)
			assert.Equal(t, model.VerifyStatusPending, p.VerifyStatus)
			require.NotNil(t, p.PersonID)
			assert.Equal(t, int64(1), *p.PersonID)
			return &model.VerificationResult{EmailID: p.EmailID}, nil
		}).Times(2)
	f.jobsRepo.EXPECT().Complete(gomock.Any(), "job-gen").Return(true, nil)

	runner.processJob(context.Background(), job)
}

func TestProcessJob_GenerateScopedToOnePerson(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(ctrl)
	generator := &fakeGenerator{candidates: map[int64][]model.EmailCandidate{
		1: {{EmailID: 10, Email: "brett.anderson@acme.com"}},
		2: {{EmailID: 20, Email: "dana.whitfield@acme.com"}},
	}}

	runner, err := New(Options{
		Jobs:      f.jobService(t),
		Results:   f.results,
		People:    f.people,
		Generator: generator,
	})
	require.NoError(t, err)

	personID := int64(2)
	payload, err := json.Marshal(model.StageJobPayload{Domain: "acme.com", PersonID: &personID})
	require.NoError(t, err)
	job := &model.Job{ID: "job-gen", Type: model.JobTypeGenerate, Payload: payload}

	f.people.EXPECT().ListByDomain(gomock.Any(), "acme.com").
		Return([]*model.Person{{ID: 1}, {ID: 2}}, nil)
	f.results.EXPECT().Upsert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p core.UpsertVerificationParams) (*model.VerificationResult, error) {
			assert.Equal(t, int64(20), p.EmailID)
			return &model.VerificationResult{EmailID: p.EmailID}, nil
		})
	f.jobsRepo.EXPECT().Complete(gomock.Any(), "job-gen").Return(true, nil)

	runner.processJob(context.Background(), job)
}

func TestProcessJob_BounceDelegatesToEscalator(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(ctrl)
	sender := mocks.NewMockTestSender(ctrl)

	escalator, err := service.NewEscalator(service.EscalatorOptions{
		Results:      f.results,
		Sender:       sender,
		BounceDomain: "verifier.example",
	})
	require.NoError(t, err)

	runner, err := New(Options{
		Jobs:      f.jobService(t),
		Results:   f.results,
		People:    f.people,
		Escalator: escalator,
	})
	require.NoError(t, err)

	payload, err := json.Marshal(model.BounceNotification{
		NotificationType: "Bounce",
		Type:             model.BounceTypeTransient,
		Recipients:       []string{"brett@acme.com"},
		Tag:              "vr42-deadbeef",
		Code:             "4.2.2",
		Reason:           "mailbox full",
	})
	require.NoError(t, err)
	job := &model.Job{ID: "job-bounce", Type: model.JobTypeBounceApply, Payload: payload}

	f.results.EXPECT().GetByEmailID(gomock.Any(), int64(42)).
		Return(&model.VerificationResult{EmailID: 42, Domain: "acme.com"}, nil)
	f.results.EXPECT().ApplyBounce(gomock.Any(), core.ApplyBounceParams{
		EmailID: 42,
		Status:  model.TestSendStatusBounceSoft,
		Code:    "4.2.2",
		Reason:  "mailbox full",
	}).Return(true, nil)
	f.jobsRepo.EXPECT().Complete(gomock.Any(), "job-bounce").Return(true, nil)

	runner.processJob(context.Background(), job)
}

type stallingDiscoverer struct {
	t       *testing.T
	release <-chan struct{}
}

func (d *stallingDiscoverer) Discover(context.Context, string, string) ([]*model.Person, error) {
	select {
	case <-d.release:
	case <-time.After(5 * time.Second):
		d.t.Error("no heartbeat while the handler was running")
	}
	return nil, nil
}

func TestProcessJob_HeartbeatsWhileHandlerRuns(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(ctrl)

	heartbeats := make(chan struct{})
	var once sync.Once
	f.jobsRepo.EXPECT().Heartbeat(gomock.Any(), "job-disc", gomock.Any()).
		DoAndReturn(func(context.Context, string, int) (bool, error) {
			once.Do(func() { close(heartbeats) })
			return true, nil
		}).MinTimes(1)
	f.jobsRepo.EXPECT().Complete(gomock.Any(), "job-disc").Return(true, nil)

	runner, err := New(Options{
		Jobs:       f.jobService(t),
		Results:    f.results,
		People:     f.people,
		Discoverer: &stallingDiscoverer{t: t, release: heartbeats},
		Lease:      50 * time.Millisecond,
	})
	require.NoError(t, err)

	payload, err := json.Marshal(model.StageJobPayload{Domain: "acme.com"})
	require.NoError(t, err)
	job := &model.Job{ID: "job-disc", Type: model.JobTypeDiscovery, Payload: payload}

	runner.processJob(context.Background(), job)
}

func TestProcessJob_HandlerErrorFailsJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(ctrl)
	discoverer := &fakeDiscoverer{err: errors.New("crawler unavailable")}
	completer := &fakeCompleter{}

	runner, err := New(Options{
		Jobs:       f.jobService(t),
		Results:    f.results,
		People:     f.people,
		Discoverer: discoverer,
		Completer:  completer,
	})
	require.NoError(t, err)

	runID := "run-1"
	payload, err := json.Marshal(model.StageJobPayload{Domain: "acme.com"})
	require.NoError(t, err)
	job := &model.Job{ID: "job-disc", Type: model.JobTypeDiscovery, Payload: payload, RunID: &runID}

	f.jobsRepo.EXPECT().Fail(gomock.Any(), "job-disc", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, msg string) (bool, error) {
			assert.Contains(t, msg, "crawler unavailable")
			return true, nil
		})

	runner.processJob(context.Background(), job)

	// Failed jobs still count toward run completion.
	assert.Equal(t, []string{"run-1"}, completer.calls)
}
