package model

import "time"

// ProbeCategory is the tagged outcome of a single SMTP probe attempt.
// Probes never signal results through errors; callers branch on the tag.
type ProbeCategory string

const (
	// ProbeAccept means the server accepted RCPT TO (2xx).
	ProbeAccept ProbeCategory = "accept"
	// ProbeHardFail means the server permanently rejected the mailbox (5xx).
	ProbeHardFail ProbeCategory = "hard_fail"
	// ProbeTempFail means the server deferred (4xx) or the attempt timed out.
	ProbeTempFail ProbeCategory = "temp_fail"
	// ProbeUnknown means the attempt failed in a way that says nothing about the mailbox.
	ProbeUnknown ProbeCategory = "unknown"
)

// ProbeOutcome is the structured result of one mailbox probe.
type ProbeOutcome struct {
	Category ProbeCategory `json:"category"`
	Code     int           `json:"code,omitempty"`
	Message  string        `json:"message,omitempty"`
	MXHost   string        `json:"mx_host,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
	Err      error         `json:"-"`
}

// Retryable reports whether the outcome should be retried by the task layer.
func (o ProbeOutcome) Retryable() bool {
	return o.Category == ProbeTempFail
}

// ClassifySMTPCode maps a final SMTP reply code onto a probe category.
func ClassifySMTPCode(code int) ProbeCategory {
	switch {
	case code >= 200 && code < 300:
		return ProbeAccept
	case code >= 500 && code < 600:
		return ProbeHardFail
	case code >= 400 && code < 500:
		return ProbeTempFail
	}
	return ProbeUnknown
}
