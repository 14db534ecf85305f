// Package testutil provides testing utilities and helpers for the verification pipeline.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Type:       model.JobTypeProbe,
			Priority:   50,
			Payload:    json.RawMessage(`{"email_id": 1, "email": "jane.doe@example.com", "domain": "example.com"}`),
			MaxRetries: 3,
		},
	}
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(jobType model.JobType) *JobRequestBuilder {
	b.req.Type = jobType
	return b
}

// WithPriority sets the job priority.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithPayload sets the job payload.
func (b *JobRequestBuilder) WithPayload(payload json.RawMessage) *JobRequestBuilder {
	b.req.Payload = payload
	return b
}

// WithPayloadString sets the job payload from a string.
func (b *JobRequestBuilder) WithPayloadString(payload string) *JobRequestBuilder {
	b.req.Payload = json.RawMessage(payload)
	return b
}

// WithTenantID sets the tenant ID.
func (b *JobRequestBuilder) WithTenantID(tenantID string) *JobRequestBuilder {
	b.req.TenantID = &tenantID
	return b
}

// WithRunID sets the run ID.
func (b *JobRequestBuilder) WithRunID(runID string) *JobRequestBuilder {
	b.req.RunID = &runID
	return b
}

// WithCompanyID sets the company ID.
func (b *JobRequestBuilder) WithCompanyID(companyID string) *JobRequestBuilder {
	b.req.CompanyID = &companyID
	return b
}

// WithDependsOn gates the job on another job's completion.
func (b *JobRequestBuilder) WithDependsOn(jobID string) *JobRequestBuilder {
	b.req.DependsOn = &jobID
	return b
}

// WithScheduledAt sets the scheduled time.
func (b *JobRequestBuilder) WithScheduledAt(scheduledAt time.Time) *JobRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// WithMaxRetries sets the maximum number of retries.
func (b *JobRequestBuilder) WithMaxRetries(maxRetries int) *JobRequestBuilder {
	b.req.MaxRetries = maxRetries
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// ResultBuilder provides a fluent interface for building VerificationResult rows.
type ResultBuilder struct {
	row model.VerificationResult
}

// NewResult creates a ResultBuilder with sensible defaults.
func NewResult(emailID int64, email, domain string) *ResultBuilder {
	now := time.Now().UTC()
	return &ResultBuilder{
		row: model.VerificationResult{
			EmailID:        emailID,
			Email:          email,
			Domain:         domain,
			Source:         model.EmailSourceSourced,
			VerifyStatus:   model.VerifyStatusPending,
			TestSendStatus: model.TestSendStatusNotRequested,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
}

// WithPerson attaches the row to a person.
func (b *ResultBuilder) WithPerson(personID int64) *ResultBuilder {
	b.row.PersonID = &personID
	return b
}

// WithSource sets the email source.
func (b *ResultBuilder) WithSource(source model.EmailSource) *ResultBuilder {
	b.row.Source = source
	return b
}

// WithVerifyStatus sets the verification status and reason.
func (b *ResultBuilder) WithVerifyStatus(status model.VerifyStatus, reason string) *ResultBuilder {
	b.row.VerifyStatus = status
	b.row.VerifyReason = reason
	return b
}

// WithMXHost sets the probed MX host.
func (b *ResultBuilder) WithMXHost(mxHost string) *ResultBuilder {
	b.row.MXHost = mxHost
	return b
}

// WithTestSend sets the test-send state.
func (b *ResultBuilder) WithTestSend(status model.TestSendStatus, token string) *ResultBuilder {
	b.row.TestSendStatus = status
	if token != "" {
		b.row.TestSendToken = &token
	}
	return b
}

// WithTestSendAt sets when the test message was dispatched.
func (b *ResultBuilder) WithTestSendAt(at time.Time) *ResultBuilder {
	b.row.TestSendAt = &at
	return b
}

// WithBounce sets bounce diagnostics.
func (b *ResultBuilder) WithBounce(code, reason string) *ResultBuilder {
	b.row.BounceCode = &code
	b.row.BounceReason = &reason
	return b
}

// Build returns the constructed row.
func (b *ResultBuilder) Build() *model.VerificationResult {
	row := b.row
	return &row
}

// NewPerson creates a Person for tests.
func NewPerson(id int64, firstName, lastName, domain string) *model.Person {
	return &model.Person{
		ID:        id,
		FirstName: firstName,
		LastName:  lastName,
		Domain:    domain,
	}
}
