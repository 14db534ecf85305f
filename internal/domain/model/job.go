package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType represents the pipeline stage a queued job executes.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypeDiscovery crawls a company site for candidate people.
	JobTypeDiscovery JobType = "discovery"
	// JobTypeGenerate fans out pattern-generated addresses for extracted people.
	JobTypeGenerate JobType = "generate"
	// JobTypeVerifySweep enqueues probe jobs for unverified addresses of a company.
	JobTypeVerifySweep JobType = "verify_sweep"
	// JobTypeProbe verifies a single candidate mailbox over SMTP.
	JobTypeProbe JobType = "probe"
	// JobTypeBounceApply applies one inbound bounce notification.
	JobTypeBounceApply JobType = "bounce_apply"

	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has exhausted its retries.
	JobStatusFailed JobStatus = "failed"
)

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeDiscovery, JobTypeGenerate, JobTypeVerifySweep, JobTypeProbe, JobTypeBounceApply:
		return true
	}
	return false
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Job represents one queued unit of pipeline work.
//
// DependsOn points at another job; a job is not eligible for reservation until
// its dependency has completed. Dependency chains express the per-domain stage
// order (discovery, then generation, then the verification sweep).
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	Type           JobType         `json:"type"                       db:"type"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Priority       int             `json:"priority"                   db:"priority"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	Metadata       json.RawMessage `json:"metadata"                   db:"metadata"`
	TenantID       *string         `json:"tenant_id,omitempty"        db:"tenant_id"`
	RunID          *string         `json:"run_id,omitempty"           db:"run_id"`
	CompanyID      *string         `json:"company_id,omitempty"       db:"company_id"`
	DependsOn      *string         `json:"depends_on,omitempty"       db:"depends_on"`
	ScheduledAt    time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	RetryCount     int             `json:"retry_count"                db:"retry_count"`
	MaxRetries     int             `json:"max_retries"                db:"max_retries"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// CreateJobRequest represents a request to enqueue a new job.
type CreateJobRequest struct {
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Priority    int             `json:"priority,omitempty"`
	TenantID    *string         `json:"tenant_id,omitempty"`
	RunID       *string         `json:"run_id,omitempty"`
	CompanyID   *string         `json:"company_id,omitempty"`
	DependsOn   *string         `json:"depends_on,omitempty"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	MaxRetries  int             `json:"max_retries"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if r.Priority < 0 || r.Priority > 100 {
		return errors.New("priority must be between 0 and 100")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return nil
}

// JobStats summarizes jobs of one type by state.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// ProbeJobPayload is the payload for a single-mailbox probe job.
type ProbeJobPayload struct {
	EmailID  int64       `json:"email_id"`
	Email    string      `json:"email"`
	Domain   string      `json:"domain"`
	PersonID *int64      `json:"person_id,omitempty"`
	Source   EmailSource `json:"source,omitempty"`
}

// StageJobPayload is the payload shared by per-domain stage jobs.
type StageJobPayload struct {
	Domain      string `json:"domain"`
	SourcedOnly bool   `json:"sourced_only,omitempty"`
	PersonID    *int64 `json:"person_id,omitempty"`
}

// DeadLetter records an unrecoverable probe failure alongside the queue's own
// failure bookkeeping.
type DeadLetter struct {
	ID        string    `json:"id"         db:"id"`
	JobID     string    `json:"job_id"     db:"job_id"`
	Email     string    `json:"email"      db:"email"`
	MXHost    string    `json:"mx_host"    db:"mx_host"`
	Error     string    `json:"error"      db:"error"`
	Attempts  int       `json:"attempts"   db:"attempts"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
