package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

const (
	// RunStatusQueued indicates a run accepted but not yet fanned out.
	RunStatusQueued RunStatus = "queued"
	// RunStatusRunning indicates fanout has started.
	RunStatusRunning RunStatus = "running"
	// RunStatusSucceeded indicates every company completed cleanly.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusCompletedWithErrors indicates the run finished but some companies failed.
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	// RunStatusFailed indicates the run could not complete.
	RunStatusFailed RunStatus = "failed"
)

// Valid returns true if the RunStatus is one of the known values.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusQueued, RunStatusRunning, RunStatusSucceeded,
		RunStatusCompletedWithErrors, RunStatusFailed:
		return true
	}
	return false
}

// Terminal returns true for statuses that end the run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusCompletedWithErrors || s == RunStatusFailed
}

// StageMode names one pipeline stage a run may enable.
type StageMode string

const (
	// StageModeAutodiscovery crawls company sites for people.
	StageModeAutodiscovery StageMode = "autodiscovery"
	// StageModeGenerate mints pattern-based candidate addresses.
	StageModeGenerate StageMode = "generate"
	// StageModeVerify probes candidate mailboxes over SMTP.
	StageModeVerify StageMode = "verify"

	// stageModeFull is shorthand for all three stages.
	stageModeFull = "full"
)

// NormalizeStageModes parses the requested mode list. The shorthand "full"
// expands to all three stages; an empty list defaults to full. Unknown modes
// are rejected. The result is deduplicated and returned in pipeline order.
func NormalizeStageModes(modes []string) ([]StageMode, error) {
	enabled := map[StageMode]bool{}
	for _, raw := range modes {
		mode := strings.ToLower(strings.TrimSpace(raw))
		switch mode {
		case "":
			continue
		case stageModeFull:
			enabled[StageModeAutodiscovery] = true
			enabled[StageModeGenerate] = true
			enabled[StageModeVerify] = true
		case string(StageModeAutodiscovery), string(StageModeGenerate), string(StageModeVerify):
			enabled[StageMode(mode)] = true
		default:
			return nil, fmt.Errorf("invalid stage mode: %q", raw)
		}
	}
	if len(enabled) == 0 {
		enabled[StageModeAutodiscovery] = true
		enabled[StageModeGenerate] = true
		enabled[StageModeVerify] = true
	}

	order := []StageMode{StageModeAutodiscovery, StageModeGenerate, StageModeVerify}
	out := make([]StageMode, 0, len(enabled))
	for _, mode := range order {
		if enabled[mode] {
			out = append(out, mode)
		}
	}
	return out, nil
}

// HasStage reports whether the mode list enables the given stage.
func HasStage(modes []StageMode, stage StageMode) bool {
	for _, mode := range modes {
		if mode == stage {
			return true
		}
	}
	return false
}

// RunOptions are the caller-supplied knobs for one run.
type RunOptions struct {
	Modes        []string `json:"modes"`
	CompanyLimit int      `json:"company_limit"`
}

// RunMetrics is the incrementally persisted progress blob for a run. It is
// written after each company fanout so a crash mid-fanout leaves an
// inspectable, resumable partial state.
type RunMetrics struct {
	CompaniesRequested int            `json:"companies_requested"`
	CompaniesEnqueued  int            `json:"companies_enqueued"`
	CompaniesTrimmed   int            `json:"companies_trimmed"`
	JobsByStage        map[string]int `json:"jobs_by_stage,omitempty"`
	EmailsVerified     int            `json:"emails_verified,omitempty"`
	EmailsValid        int            `json:"emails_valid,omitempty"`
	ErrorHistogram     map[string]int `json:"error_histogram,omitempty"`
}

// AddStageJob counts one enqueued job for a stage.
func (m *RunMetrics) AddStageJob(jobType JobType) {
	if m.JobsByStage == nil {
		m.JobsByStage = map[string]int{}
	}
	m.JobsByStage[string(jobType)]++
}

// AddError counts one classified error.
func (m *RunMetrics) AddError(class string) {
	if m.ErrorHistogram == nil {
		m.ErrorHistogram = map[string]int{}
	}
	m.ErrorHistogram[class]++
}

// ErrorClasses returns the histogram keys in stable order.
func (m *RunMetrics) ErrorClasses() []string {
	classes := make([]string, 0, len(m.ErrorHistogram))
	for class := range m.ErrorHistogram {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

// Run is one tenant-scoped pipeline submission.
type Run struct {
	ID          string     `json:"id"           db:"id"`
	TenantID    string     `json:"tenant_id"    db:"tenant_id"`
	Domains     []string   `json:"domains"      db:"domains"`
	Options     RunOptions `json:"options"      db:"options"`
	Status      RunStatus  `json:"status"       db:"status"`
	Metrics     RunMetrics `json:"metrics"      db:"metrics"`
	StartedAt   *time.Time `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"   db:"updated_at"`
}

// CreateRunRequest is a run submission.
type CreateRunRequest struct {
	TenantID string     `json:"tenant_id"`
	Domains  []string   `json:"domains"`
	Options  RunOptions `json:"options"`
}

// Validate validates the CreateRunRequest fields.
func (r *CreateRunRequest) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return errors.New("tenant id is required")
	}
	if len(r.Domains) == 0 {
		return errors.New("at least one domain is required")
	}
	if r.Options.CompanyLimit < 0 {
		return errors.New("company limit must be >= 0")
	}
	return nil
}

// ErrRunNotFound is returned when a run does not exist.
var ErrRunNotFound = errors.New("run not found")

// ErrTenantCapExceeded is returned when a submission would exceed the rolling
// 24-hour per-tenant domain cap.
var ErrTenantCapExceeded = errors.New("tenant 24h domain cap exceeded")

// Company identifies one company record scoped to a tenant.
type Company struct {
	ID        string    `json:"id"         db:"id"`
	TenantID  string    `json:"tenant_id"  db:"tenant_id"`
	Domain    string    `json:"domain"     db:"domain"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
