// Package model defines the core data types and structures used throughout the verifier system.
package model

import (
	"errors"
	"strings"
	"time"
)

// VerifyStatus represents the SMTP verification status of an email address.
type VerifyStatus string

// TestSendStatus represents where an address sits in the test-send lifecycle.
type TestSendStatus string

const (
	// VerifyStatusPending indicates an address that has not been probed yet.
	VerifyStatusPending VerifyStatus = "pending"
	// VerifyStatusValid indicates a confirmed deliverable mailbox.
	VerifyStatusValid VerifyStatus = "valid"
	// VerifyStatusInvalid indicates a permanently rejected mailbox.
	VerifyStatusInvalid VerifyStatus = "invalid"
	// VerifyStatusRiskyCatchAll indicates SMTP acceptance on a domain where acceptance is inconclusive.
	VerifyStatusRiskyCatchAll VerifyStatus = "risky_catch_all"
	// VerifyStatusUnknownTimeout indicates the probe could not reach a conclusion.
	VerifyStatusUnknownTimeout VerifyStatus = "unknown_timeout"

	// TestSendStatusNotRequested indicates no test-send has been requested for the address.
	TestSendStatusNotRequested TestSendStatus = "not_requested"
	// TestSendStatusPending indicates a test-send has been requested but not dispatched.
	TestSendStatusPending TestSendStatus = "pending"
	// TestSendStatusSent indicates the test message left our infrastructure.
	TestSendStatusSent TestSendStatus = "sent"
	// TestSendStatusBounceHard indicates a permanent delivery failure was received.
	TestSendStatusBounceHard TestSendStatus = "bounce_hard"
	// TestSendStatusBounceSoft indicates a transient delivery failure was received.
	TestSendStatusBounceSoft TestSendStatus = "bounce_soft"
	// TestSendStatusDeliveredAssumed indicates the waiting window elapsed with no bounce.
	TestSendStatusDeliveredAssumed TestSendStatus = "delivered_assumed"
)

// VerifyReasonNoBounceAfterTestSend is recorded when a row is upgraded to valid
// because a test-send produced no bounce.
const VerifyReasonNoBounceAfterTestSend = "no_bounce_after_test_send"

// ErrResultNotFound is returned when a verification result does not exist.
var ErrResultNotFound = errors.New("verification result not found")

// Valid returns true if the VerifyStatus is one of the known values.
func (s VerifyStatus) Valid() bool {
	switch s {
	case VerifyStatusPending, VerifyStatusValid, VerifyStatusInvalid,
		VerifyStatusRiskyCatchAll, VerifyStatusUnknownTimeout:
		return true
	}
	return false
}

// Ambiguous returns true for statuses that leave the mailbox question open.
func (s VerifyStatus) Ambiguous() bool {
	return s == "" || s == VerifyStatusPending ||
		s == VerifyStatusRiskyCatchAll || s == VerifyStatusUnknownTimeout
}

// Valid returns true if the TestSendStatus is one of the known values.
func (s TestSendStatus) Valid() bool {
	switch s {
	case TestSendStatusNotRequested, TestSendStatusPending, TestSendStatusSent,
		TestSendStatusBounceHard, TestSendStatusBounceSoft, TestSendStatusDeliveredAssumed:
		return true
	}
	return false
}

// Terminal returns true for test-send states that end the lifecycle.
func (s TestSendStatus) Terminal() bool {
	return s == TestSendStatusBounceHard || s == TestSendStatusBounceSoft ||
		s == TestSendStatusDeliveredAssumed
}

// rank orders test-send states along the forward-only lifecycle.
func (s TestSendStatus) rank() int {
	switch s {
	case "", TestSendStatusNotRequested:
		return 0
	case TestSendStatusPending:
		return 1
	case TestSendStatusSent:
		return 2
	case TestSendStatusBounceHard, TestSendStatusBounceSoft, TestSendStatusDeliveredAssumed:
		return 3
	}
	return -1
}

// CanTransition reports whether moving from s to next respects the forward-only
// lifecycle not_requested -> pending -> sent -> {bounce_hard|bounce_soft|delivered_assumed}.
func (s TestSendStatus) CanTransition(next TestSendStatus) bool {
	from, to := s.rank(), next.rank()
	if from < 0 || to < 0 {
		return false
	}
	if s.Terminal() {
		return false
	}
	return to > from
}

// VerificationResult is the canonical per-email verification row.
// It is created on first probe and mutated only via idempotent upsert.
type VerificationResult struct {
	EmailID        int64          `json:"email_id"                  db:"email_id"`
	Email          string         `json:"email"                     db:"email"`
	Domain         string         `json:"domain"                    db:"domain"`
	PersonID       *int64         `json:"person_id,omitempty"       db:"person_id"`
	Source         EmailSource    `json:"source"                    db:"source"`
	VerifyStatus   VerifyStatus   `json:"verify_status"             db:"verify_status"`
	VerifyReason   string         `json:"verify_reason"             db:"verify_reason"`
	MXHost         string         `json:"mx_host"                   db:"mx_host"`
	TestSendStatus TestSendStatus `json:"test_send_status"          db:"test_send_status"`
	TestSendToken  *string        `json:"test_send_token,omitempty" db:"test_send_token"`
	TestSendAt     *time.Time     `json:"test_send_at,omitempty"    db:"test_send_at"`
	BounceCode     *string        `json:"bounce_code,omitempty"     db:"bounce_code"`
	BounceReason   *string        `json:"bounce_reason,omitempty"   db:"bounce_reason"`
	VerifiedAt     *time.Time     `json:"verified_at,omitempty"     db:"verified_at"`
	CreatedAt      time.Time      `json:"created_at"                db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"                db:"updated_at"`
}

// EmailSource distinguishes crawled addresses from pattern-generated ones.
type EmailSource string

const (
	// EmailSourceSourced marks addresses found on crawled pages.
	EmailSourceSourced EmailSource = "sourced"
	// EmailSourceGenerated marks addresses minted from name patterns.
	EmailSourceGenerated EmailSource = "generated"
)

// LocalPart returns the part of the email before the @.
func (r *VerificationResult) LocalPart() string {
	if i := strings.IndexByte(r.Email, '@'); i >= 0 {
		return r.Email[:i]
	}
	return r.Email
}

// HasOutstandingToken reports whether the row holds a non-terminal test-send token.
// At most one such token may exist per row.
func (r *VerificationResult) HasOutstandingToken() bool {
	return r.TestSendToken != nil && *r.TestSendToken != "" && !r.TestSendStatus.Terminal() &&
		r.TestSendStatus != TestSendStatusNotRequested && r.TestSendStatus != ""
}

// userUnknownPhrases are bounce-reason phrasings that identify a nonexistent mailbox.
var userUnknownPhrases = []string{
	"user unknown",
	"unknown user",
	"no such user",
	"recipient not found",
	"mailbox not found",
	"mailbox unavailable",
	"does not exist",
	"invalid recipient",
	"address rejected",
}

// IsUserUnknownBounce reports whether a bounce code/reason pair clearly means
// the mailbox does not exist. DSN 5.1.x covers bad destination addresses.
func IsUserUnknownBounce(code, reason string) bool {
	code = strings.TrimSpace(code)
	if strings.HasPrefix(code, "5.1.") {
		return true
	}
	lowered := strings.ToLower(reason)
	for _, phrase := range userUnknownPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// HasUserUnknownBounce reports whether this row carries a user-unknown hard bounce.
func (r *VerificationResult) HasUserUnknownBounce() bool {
	if r.TestSendStatus != TestSendStatusBounceHard {
		return false
	}
	var code, reason string
	if r.BounceCode != nil {
		code = *r.BounceCode
	}
	if r.BounceReason != nil {
		reason = *r.BounceReason
	}
	return IsUserUnknownBounce(code, reason)
}
