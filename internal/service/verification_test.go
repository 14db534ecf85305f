package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/mocks"
)

// fixedClassifier answers DomainStatus with a canned status or error.
type fixedClassifier struct {
	status model.CatchAllStatus
	err    error
}

func (f *fixedClassifier) DomainStatus(_ context.Context, _ string) (model.CatchAllStatus, error) {
	return f.status, f.err
}

// zeroJitterBackoff makes retry delays deterministic and maximal.
func zeroJitterBackoff() *BackoffPolicy {
	p := NewBackoffPolicy(2*time.Second, 5*time.Minute)
	p.rand = func(n int64) int64 { return n - 1 }
	return p
}

func newVerificationService(t *testing.T, opts VerificationServiceOptions) *VerificationService {
	t.Helper()
	svc, err := NewVerificationService(opts)
	require.NoError(t, err)
	return svc
}

func TestVerificationService_Verify_AcceptOnProvenDomainIsValid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	gate := mocks.NewMockConcurrencyGate(ctrl)
	resolver := mocks.NewMockMXResolver(ctrl)
	prober := mocks.NewMockProber(ctrl)
	results := mocks.NewMockVerificationRepository(ctrl)

	resolver.EXPECT().ResolveMX(ctx, "example.com").Return("mx.example.com", nil)

	// Global lease before per-MX lease, then the two rate budgets.
	gomock.InOrder(
		gate.EXPECT().Acquire(ctx, "smtp:global", 64).Return(true, nil),
		gate.EXPECT().Acquire(ctx, "smtp:mx:mx.example.com", 4).Return(true, nil),
		gate.EXPECT().ConsumeRPS(ctx, "smtp:global", 50).Return(true, nil),
		gate.EXPECT().ConsumeRPS(ctx, "smtp:mx:mx.example.com", 5).Return(true, nil),
	)
	// Releases run in reverse acquisition order.
	gomock.InOrder(
		gate.EXPECT().Release(ctx, "smtp:mx:mx.example.com").Return(nil),
		gate.EXPECT().Release(ctx, "smtp:global").Return(nil),
	)

	prober.EXPECT().Probe(ctx, "jane@example.com", "mx.example.com").Return(model.ProbeOutcome{
		Category: model.ProbeAccept,
		Code:     250,
		MXHost:   "mx.example.com",
	})

	results.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.UpsertVerificationParams) (*model.VerificationResult, error) {
			assert.Equal(t, int64(7), params.EmailID)
			assert.Equal(t, model.VerifyStatusValid, params.VerifyStatus)
			assert.Equal(t, "smtp_250", params.VerifyReason)
			assert.Equal(t, "mx.example.com", params.MXHost)
			return &model.VerificationResult{EmailID: params.EmailID, VerifyStatus: params.VerifyStatus}, nil
		},
	)

	svc := newVerificationService(t, VerificationServiceOptions{
		Gate:       gate,
		Resolver:   resolver,
		Prober:     prober,
		Results:    results,
		Classifier: &fixedClassifier{status: model.CatchAllStatusNotCatchAllProven},
	})

	got, err := svc.Verify(ctx, VerifyRequest{
		EmailID: 7,
		Email:   "jane@example.com",
		Domain:  "example.com",
		Source:  model.EmailSourceSourced,
		Attempt: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, model.VerifyStatusValid, got.VerifyStatus)
}

func TestVerificationService_Verify_AcceptOnUnclassifiedDomainIsRisky(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	gate := mocks.NewMockConcurrencyGate(ctrl)
	resolver := mocks.NewMockMXResolver(ctrl)
	prober := mocks.NewMockProber(ctrl)
	results := mocks.NewMockVerificationRepository(ctrl)

	resolver.EXPECT().ResolveMX(ctx, "example.com").Return("mx.example.com", nil)
	gate.EXPECT().Acquire(ctx, gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	gate.EXPECT().ConsumeRPS(ctx, gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	gate.EXPECT().Release(ctx, gomock.Any()).Return(nil).Times(2)

	prober.EXPECT().Probe(ctx, "jane@example.com", "mx.example.com").Return(model.ProbeOutcome{
		Category: model.ProbeAccept,
		Code:     250,
		MXHost:   "mx.example.com",
	})

	results.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.UpsertVerificationParams) (*model.VerificationResult, error) {
			assert.Equal(t, model.VerifyStatusRiskyCatchAll, params.VerifyStatus)
			assert.Equal(t, "catch_all_unclassified", params.VerifyReason)
			return &model.VerificationResult{EmailID: params.EmailID, VerifyStatus: params.VerifyStatus}, nil
		},
	)

	svc := newVerificationService(t, VerificationServiceOptions{
		Gate:       gate,
		Resolver:   resolver,
		Prober:     prober,
		Results:    results,
		Classifier: &fixedClassifier{status: model.CatchAllStatusUnknown},
	})

	got, err := svc.Verify(ctx, VerifyRequest{
		EmailID: 7,
		Email:   "jane@example.com",
		Domain:  "example.com",
		Attempt: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, model.VerifyStatusRiskyCatchAll, got.VerifyStatus)
}

func TestVerificationService_Verify_ClassifierErrorStaysRisky(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	gate := mocks.NewMockConcurrencyGate(ctrl)
	resolver := mocks.NewMockMXResolver(ctrl)
	prober := mocks.NewMockProber(ctrl)
	results := mocks.NewMockVerificationRepository(ctrl)

	resolver.EXPECT().ResolveMX(ctx, "example.com").Return("mx.example.com", nil)
	gate.EXPECT().Acquire(ctx, gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	gate.EXPECT().ConsumeRPS(ctx, gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	gate.EXPECT().Release(ctx, gomock.Any()).Return(nil).Times(2)

	prober.EXPECT().Probe(ctx, "jane@example.com", "mx.example.com").Return(model.ProbeOutcome{
		Category: model.ProbeAccept,
		Code:     250,
	})

	results.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.UpsertVerificationParams) (*model.VerificationResult, error) {
			assert.Equal(t, model.VerifyStatusRiskyCatchAll, params.VerifyStatus)
			return &model.VerificationResult{VerifyStatus: params.VerifyStatus}, nil
		},
	)

	svc := newVerificationService(t, VerificationServiceOptions{
		Gate:       gate,
		Resolver:   resolver,
		Prober:     prober,
		Results:    results,
		Classifier: &fixedClassifier{err: errors.New("evidence store down")},
	})

	_, err := svc.Verify(ctx, VerifyRequest{EmailID: 7, Email: "jane@example.com", Attempt: 1})
	require.NoError(t, err)
}

func TestVerificationService_Verify_HardFailIsInvalid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	gate := mocks.NewMockConcurrencyGate(ctrl)
	resolver := mocks.NewMockMXResolver(ctrl)
	prober := mocks.NewMockProber(ctrl)
	results := mocks.NewMockVerificationRepository(ctrl)

	resolver.EXPECT().ResolveMX(ctx, "example.com").Return("mx.example.com", nil)
	gate.EXPECT().Acquire(ctx, gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	gate.EXPECT().ConsumeRPS(ctx, gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	gate.EXPECT().Release(ctx, gomock.Any()).Return(nil).Times(2)

	prober.EXPECT().Probe(ctx, "nobody@example.com", "mx.example.com").Return(model.ProbeOutcome{
		Category: model.ProbeHardFail,
		Code:     550,
		Message:  "mailbox unavailable",
		MXHost:   "mx.example.com",
	})

	results.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.UpsertVerificationParams) (*model.VerificationResult, error) {
			assert.Equal(t, model.VerifyStatusInvalid, params.VerifyStatus)
			assert.Equal(t, "smtp_550", params.VerifyReason)
			return &model.VerificationResult{VerifyStatus: params.VerifyStatus}, nil
		},
	)

	svc := newVerificationService(t, VerificationServiceOptions{
		Gate:     gate,
		Resolver: resolver,
		Prober:   prober,
		Results:  results,
	})

	got, err := svc.Verify(ctx, VerifyRequest{EmailID: 9, Email: "nobody@example.com", Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, model.VerifyStatusInvalid, got.VerifyStatus)
}

func TestVerificationService_Verify_MXGateDeniedReleasesGlobal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	gate := mocks.NewMockConcurrencyGate(ctrl)
	resolver := mocks.NewMockMXResolver(ctrl)
	prober := mocks.NewMockProber(ctrl)
	results := mocks.NewMockVerificationRepository(ctrl)

	resolver.EXPECT().ResolveMX(ctx, "example.com").Return("mx.example.com", nil)
	gomock.InOrder(
		gate.EXPECT().Acquire(ctx, "smtp:global", 64).Return(true, nil),
		gate.EXPECT().Acquire(ctx, "smtp:mx:mx.example.com", 4).Return(false, nil),
		gate.EXPECT().Release(ctx, "smtp:global").Return(nil),
	)

	svc := newVerificationService(t, VerificationServiceOptions{
		Gate:     gate,
		Resolver: resolver,
		Prober:   prober,
		Results:  results,
		Backoff:  zeroJitterBackoff(),
	})

	_, err := svc.Verify(ctx, VerifyRequest{EmailID: 9, Email: "jane@example.com", Attempt: 1})
	require.Error(t, err)

	re, ok := AsRetryable(err)
	require.True(t, ok, "gate exhaustion must be retryable")
	assert.Greater(t, re.Delay, time.Duration(0))
	assert.LessOrEqual(t, re.Delay, 2*time.Second)
}

func TestVerificationService_Verify_RPSDeniedReleasesBothGates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	gate := mocks.NewMockConcurrencyGate(ctrl)
	resolver := mocks.NewMockMXResolver(ctrl)
	prober := mocks.NewMockProber(ctrl)
	results := mocks.NewMockVerificationRepository(ctrl)

	resolver.EXPECT().ResolveMX(ctx, "example.com").Return("mx.example.com", nil)
	gomock.InOrder(
		gate.EXPECT().Acquire(ctx, "smtp:global", 64).Return(true, nil),
		gate.EXPECT().Acquire(ctx, "smtp:mx:mx.example.com", 4).Return(true, nil),
		gate.EXPECT().ConsumeRPS(ctx, "smtp:global", 50).Return(false, nil),
		gate.EXPECT().Release(ctx, "smtp:mx:mx.example.com").Return(nil),
		gate.EXPECT().Release(ctx, "smtp:global").Return(nil),
	)

	svc := newVerificationService(t, VerificationServiceOptions{
		Gate:     gate,
		Resolver: resolver,
		Prober:   prober,
		Results:  results,
	})

	_, err := svc.Verify(ctx, VerifyRequest{EmailID: 9, Email: "jane@example.com", Attempt: 1})
	require.Error(t, err)

	_, ok := AsRetryable(err)
	assert.True(t, ok, "rate exhaustion must be retryable")
}

func TestVerificationService_Verify_TempFailSchedulesRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	gate := mocks.NewMockConcurrencyGate(ctrl)
	resolver := mocks.NewMockMXResolver(ctrl)
	prober := mocks.NewMockProber(ctrl)
	results := mocks.NewMockVerificationRepository(ctrl)

	resolver.EXPECT().ResolveMX(ctx, "example.com").Return("mx.example.com", nil)
	gate.EXPECT().Acquire(ctx, gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	gate.EXPECT().ConsumeRPS(ctx, gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	gate.EXPECT().Release(ctx, gomock.Any()).Return(nil).Times(2)

	prober.EXPECT().Probe(ctx, "jane@example.com", "mx.example.com").Return(model.ProbeOutcome{
		Category: model.ProbeTempFail,
		Code:     451,
		Message:  "greylisted",
		MXHost:   "mx.example.com",
	})

	svc := newVerificationService(t, VerificationServiceOptions{
		Gate:     gate,
		Resolver: resolver,
		Prober:   prober,
		Results:  results,
		Backoff:  zeroJitterBackoff(),
	})

	_, err := svc.Verify(ctx, VerifyRequest{EmailID: 9, Email: "jane@example.com", Attempt: 2})
	require.Error(t, err)

	re, ok := AsRetryable(err)
	require.True(t, ok)
	// Attempt 2 doubles the ceiling.
	assert.LessOrEqual(t, re.Delay, 4*time.Second)
	assert.ErrorContains(t, err, "451")
}

func TestVerificationService_Verify_LastAttemptDeadLetters(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	gate := mocks.NewMockConcurrencyGate(ctrl)
	resolver := mocks.NewMockMXResolver(ctrl)
	prober := mocks.NewMockProber(ctrl)
	results := mocks.NewMockVerificationRepository(ctrl)
	deadLetters := mocks.NewMockDeadLetterRepository(ctrl)

	resolver.EXPECT().ResolveMX(ctx, "example.com").Return("mx.example.com", nil)
	gate.EXPECT().Acquire(ctx, gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	gate.EXPECT().ConsumeRPS(ctx, gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	gate.EXPECT().Release(ctx, gomock.Any()).Return(nil).Times(2)

	prober.EXPECT().Probe(ctx, "jane@example.com", "mx.example.com").Return(model.ProbeOutcome{
		Category: model.ProbeTempFail,
		Code:     421,
		Message:  "service not available",
		MXHost:   "mx.example.com",
	})

	results.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.UpsertVerificationParams) (*model.VerificationResult, error) {
			assert.Equal(t, model.VerifyStatusUnknownTimeout, params.VerifyStatus)
			assert.Equal(t, "retries_exhausted", params.VerifyReason)
			return &model.VerificationResult{VerifyStatus: params.VerifyStatus}, nil
		},
	)
	deadLetters.EXPECT().Record(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, letter *model.DeadLetter) error {
			assert.Equal(t, "job-42", letter.JobID)
			assert.Equal(t, "jane@example.com", letter.Email)
			assert.Equal(t, "mx.example.com", letter.MXHost)
			assert.Equal(t, 5, letter.Attempts)
			return nil
		},
	)

	svc := newVerificationService(t, VerificationServiceOptions{
		Gate:        gate,
		Resolver:    resolver,
		Prober:      prober,
		Results:     results,
		DeadLetters: deadLetters,
	})

	_, err := svc.Verify(ctx, VerifyRequest{
		EmailID:     9,
		Email:       "jane@example.com",
		Attempt:     5,
		LastAttempt: true,
		JobID:       "job-42",
	})
	require.Error(t, err)

	_, ok := AsRetryable(err)
	assert.False(t, ok, "exhausted attempts must not be retryable")
	assert.ErrorContains(t, err, "attempts exhausted")
}

func TestVerificationService_Verify_FallbackResolvesUnknown(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	gate := mocks.NewMockConcurrencyGate(ctrl)
	resolver := mocks.NewMockMXResolver(ctrl)
	prober := mocks.NewMockProber(ctrl)
	results := mocks.NewMockVerificationRepository(ctrl)
	fallback := mocks.NewMockProber(ctrl)

	resolver.EXPECT().ResolveMX(ctx, "example.com").Return("mx.example.com", nil)
	gate.EXPECT().Acquire(ctx, gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	gate.EXPECT().ConsumeRPS(ctx, gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	gate.EXPECT().Release(ctx, gomock.Any()).Return(nil).Times(2)

	prober.EXPECT().Probe(ctx, "jane@example.com", "mx.example.com").Return(model.ProbeOutcome{
		Category: model.ProbeUnknown,
		MXHost:   "mx.example.com",
	})

	results.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.UpsertVerificationParams) (*model.VerificationResult, error) {
			assert.Equal(t, model.VerifyStatusInvalid, params.VerifyStatus)
			return &model.VerificationResult{VerifyStatus: params.VerifyStatus}, nil
		},
	)

	svc := newVerificationService(t, VerificationServiceOptions{
		Gate:     gate,
		Resolver: resolver,
		Prober:   prober,
		Results:  results,
		Fallback: proberAsFallback{fallback},
	})

	fallback.EXPECT().Probe(ctx, "jane@example.com", "").Return(model.ProbeOutcome{
		Category: model.ProbeHardFail,
		Code:     550,
	})

	_, err := svc.Verify(ctx, VerifyRequest{EmailID: 9, Email: "jane@example.com", Attempt: 1})
	require.NoError(t, err)
}

// proberAsFallback adapts a Prober mock to the FallbackVerifier port.
type proberAsFallback struct {
	p core.Prober
}

func (a proberAsFallback) Verify(ctx context.Context, email string) model.ProbeOutcome {
	return a.p.Probe(ctx, email, "")
}

func TestNewVerificationService_RequiresDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gate := mocks.NewMockConcurrencyGate(ctrl)
	resolver := mocks.NewMockMXResolver(ctrl)
	prober := mocks.NewMockProber(ctrl)
	results := mocks.NewMockVerificationRepository(ctrl)

	_, err := NewVerificationService(VerificationServiceOptions{Resolver: resolver, Prober: prober, Results: results})
	assert.Error(t, err)

	_, err = NewVerificationService(VerificationServiceOptions{Gate: gate, Prober: prober, Results: results})
	assert.Error(t, err)

	_, err = NewVerificationService(VerificationServiceOptions{Gate: gate, Resolver: resolver, Results: results})
	assert.Error(t, err)

	_, err = NewVerificationService(VerificationServiceOptions{Gate: gate, Resolver: resolver, Prober: prober})
	assert.Error(t, err)
}
