// Package mocks provides mock implementations for testing the verification pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockGate := mocks.NewMockConcurrencyGate(ctrl)
//	mockGate.EXPECT().Acquire(gomock.Any(), "smtp:global", 64).Return(true, nil)
package mocks

// Generate mock for ConcurrencyGate interface from internal/core package.
// This creates MockConcurrencyGate with methods: Acquire, Release, ConsumeRPS
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=concurrency_gate_mock.go github.com/Brettillian123/email-scraper-verifier-sub000/internal/core ConcurrencyGate

// Generate mock for MXResolver interface from internal/core package.
// This creates MockMXResolver with methods: ResolveMX
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=mx_resolver_mock.go github.com/Brettillian123/email-scraper-verifier-sub000/internal/core MXResolver

// Generate mock for Prober interface from internal/core package.
// This creates MockProber with methods: Probe
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=prober_mock.go github.com/Brettillian123/email-scraper-verifier-sub000/internal/core Prober

// Generate mock for TestSender interface from internal/core package.
// This creates MockTestSender with methods: Send
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=test_sender_mock.go github.com/Brettillian123/email-scraper-verifier-sub000/internal/core TestSender

// Generate mock for DeadLetterRepository interface from internal/core package.
// This creates MockDeadLetterRepository with methods: Record, ListRecent, DeleteOlderThan
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=dead_letter_repository_mock.go github.com/Brettillian123/email-scraper-verifier-sub000/internal/core DeadLetterRepository

// Generate mock for VerificationRepository interface from internal/core package.
// This creates MockVerificationRepository covering the full result-store contract.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=verification_repository_mock.go github.com/Brettillian123/email-scraper-verifier-sub000/internal/core VerificationRepository

// Generate mock for PersonRepository interface from internal/core package.
// This creates MockPersonRepository with methods: GetByID, ListByDomain
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=person_repository_mock.go github.com/Brettillian123/email-scraper-verifier-sub000/internal/core PersonRepository

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository covering the full queue contract.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/Brettillian123/email-scraper-verifier-sub000/internal/core JobRepository

// Generate mock for RunRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=run_repository_mock.go github.com/Brettillian123/email-scraper-verifier-sub000/internal/core RunRepository

// Generate mock for CompanyRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=company_repository_mock.go github.com/Brettillian123/email-scraper-verifier-sub000/internal/core CompanyRepository

// Generate mock for ActivityRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=activity_repository_mock.go github.com/Brettillian123/email-scraper-verifier-sub000/internal/core ActivityRepository
