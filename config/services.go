package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeVerifier runs the probe and sweep workers.
	ServiceModeVerifier ServiceMode = "verifier"
	// ServiceModePipeline runs the discovery/generation stage workers.
	ServiceModePipeline ServiceMode = "pipeline"
	// ServiceModeBounceImporter runs the inbound bounce importer.
	ServiceModeBounceImporter ServiceMode = "bounce-importer"
	// ServiceModeReaper runs the maintenance sweep.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeVerifier,
		ServiceModePipeline,
		ServiceModeBounceImporter,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeVerifier,
			ServiceModePipeline,
			ServiceModeBounceImporter,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: verifier, pipeline, bounce-importer, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// VerifierConfig contains probe worker configuration.
type VerifierConfig struct {
	// Concurrency is the number of probe worker goroutines.
	Concurrency int `env:"VERIFIER_CONCURRENCY" envDefault:"4"`

	// JobLease is the duration to lease a probe job.
	JobLease time.Duration `env:"VERIFIER_JOB_LEASE" envDefault:"60s"`

	// GlobalLimit caps concurrent SMTP probes across all workers.
	GlobalLimit int `env:"VERIFIER_GLOBAL_LIMIT" envDefault:"64"`

	// PerMXLimit caps concurrent SMTP probes against one MX host.
	PerMXLimit int `env:"VERIFIER_PER_MX_LIMIT" envDefault:"4"`

	// GlobalRPS caps probe starts per second across all workers.
	GlobalRPS int `env:"VERIFIER_GLOBAL_RPS" envDefault:"50"`

	// PerMXRPS caps probe starts per second against one MX host.
	PerMXRPS int `env:"VERIFIER_PER_MX_RPS" envDefault:"5"`

	// HeloDomain is announced in EHLO.
	HeloDomain string `env:"VERIFIER_HELO_DOMAIN" envDefault:"localhost"`

	// MailFrom is the envelope sender used for probes.
	MailFrom string `env:"VERIFIER_MAIL_FROM" envDefault:"postmaster@localhost"`

	// DNSTimeout bounds MX resolution.
	DNSTimeout time.Duration `env:"VERIFIER_DNS_TIMEOUT" envDefault:"5s"`

	// ConnectTimeout bounds the TCP connection to an MX host.
	ConnectTimeout time.Duration `env:"VERIFIER_CONNECT_TIMEOUT" envDefault:"10s"`

	// CommandTimeout bounds each SMTP command exchange.
	CommandTimeout time.Duration `env:"VERIFIER_COMMAND_TIMEOUT" envDefault:"10s"`

	// RetryBaseDelay seeds the exponential retry schedule.
	RetryBaseDelay time.Duration `env:"VERIFIER_RETRY_BASE_DELAY" envDefault:"2s"`

	// RetryMaxDelay caps the exponential retry schedule.
	RetryMaxDelay time.Duration `env:"VERIFIER_RETRY_MAX_DELAY" envDefault:"5m"`
}

// Sanitize applies guardrails to verifier configuration values.
func (v *VerifierConfig) Sanitize() {
	if v.Concurrency < 1 {
		v.Concurrency = 1
	}
	if v.JobLease < 5*time.Second {
		v.JobLease = 5 * time.Second
	}
	if v.GlobalLimit < 1 {
		v.GlobalLimit = 1
	}
	if v.PerMXLimit < 1 {
		v.PerMXLimit = 1
	}
	if v.PerMXLimit > v.GlobalLimit {
		v.PerMXLimit = v.GlobalLimit
	}
	if v.GlobalRPS < 1 {
		v.GlobalRPS = 1
	}
	if v.PerMXRPS < 1 {
		v.PerMXRPS = 1
	}
	if v.RetryBaseDelay < time.Second {
		v.RetryBaseDelay = time.Second
	}
	if v.RetryMaxDelay < v.RetryBaseDelay {
		v.RetryMaxDelay = v.RetryBaseDelay
	}
}

// TestSendConfig contains test-send escalation configuration.
type TestSendConfig struct {
	// BounceDomain is the domain of minted VERP return-path addresses.
	BounceDomain string `env:"TEST_SEND_BOUNCE_DOMAIN" envDefault:"bounces.localhost"`

	// WaitingWindow is how long a dispatched test send may sit without a
	// bounce before delivery is assumed.
	WaitingWindow time.Duration `env:"TEST_SEND_WAITING_WINDOW" envDefault:"72h"`

	// InboundQueue is the Redis list provider bounce notifications arrive on.
	InboundQueue string `env:"TEST_SEND_INBOUND_QUEUE" envDefault:"bounce:inbound"`

	// DeadQueue receives unparseable bounce payloads.
	DeadQueue string `env:"TEST_SEND_DEAD_QUEUE" envDefault:"bounce:dead"`
}

// Sanitize applies guardrails to test-send configuration values.
func (t *TestSendConfig) Sanitize() {
	if t.WaitingWindow < time.Hour {
		t.WaitingWindow = time.Hour
	}
	if t.InboundQueue == "" {
		t.InboundQueue = "bounce:inbound"
	}
	if t.DeadQueue == "" {
		t.DeadQueue = "bounce:dead"
	}
}

// PipelineConfig contains pipeline orchestration configuration.
type PipelineConfig struct {
	// Concurrency is the number of worker goroutines per stage job type.
	Concurrency int `env:"PIPELINE_CONCURRENCY" envDefault:"2"`

	// JobLease is the duration to lease a stage job.
	JobLease time.Duration `env:"PIPELINE_JOB_LEASE" envDefault:"5m"`

	// TenantDailyDomainCap limits domains one tenant may enqueue per rolling 24h.
	TenantDailyDomainCap int `env:"PIPELINE_TENANT_DAILY_DOMAIN_CAP" envDefault:"500"`

	// DefaultCompanyLimit trims a run's domain list when the request sets no limit.
	DefaultCompanyLimit int `env:"PIPELINE_DEFAULT_COMPANY_LIMIT" envDefault:"100"`
}

// Sanitize applies guardrails to pipeline configuration values.
func (p *PipelineConfig) Sanitize() {
	if p.Concurrency < 1 {
		p.Concurrency = 1
	}
	if p.JobLease < 5*time.Second {
		p.JobLease = 5 * time.Second
	}
	if p.TenantDailyDomainCap < 1 {
		p.TenantDailyDomainCap = 1
	}
	if p.DefaultCompanyLimit < 1 {
		p.DefaultCompanyLimit = 1
	}
}

// ReaperConfig contains maintenance sweep configuration.
type ReaperConfig struct {
	// Interval is the sweep tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"10m"`

	// JobRetention is the maximum age of terminal jobs before deletion.
	JobRetention time.Duration `env:"REAPER_JOB_RETENTION" envDefault:"168h"` // 7 days

	// DeadLetterRetention is the maximum age of dead letters before deletion.
	DeadLetterRetention time.Duration `env:"REAPER_DEAD_LETTER_RETENTION" envDefault:"720h"` // 30 days

	// CleanupDomains, when set, enables best-effort deletion of unproven
	// generated addresses for the listed domains.
	CleanupDomains []string `env:"REAPER_CLEANUP_DOMAINS" envDefault:""`

	// GeneratedRetention is the age before an unproven generated address is
	// eligible for cleanup.
	GeneratedRetention time.Duration `env:"REAPER_GENERATED_RETENTION" envDefault:"336h"` // 14 days
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.JobRetention < 1*time.Hour {
		r.JobRetention = 1 * time.Hour
	}
	if r.DeadLetterRetention < 24*time.Hour {
		r.DeadLetterRetention = 24 * time.Hour
	}
	if r.GeneratedRetention < 24*time.Hour {
		r.GeneratedRetention = 24 * time.Hour
	}
}
