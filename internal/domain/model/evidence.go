package model

// CatchAllStatus is the derived catch-all classification for a domain.
type CatchAllStatus string

const (
	// CatchAllStatusUnknown means the evidence cannot prove the domain rejects bad mailboxes.
	CatchAllStatusUnknown CatchAllStatus = "unknown"
	// CatchAllStatusNotCatchAllProven means the domain demonstrably accepts real
	// mailboxes and bounces invalid ones, so SMTP acceptance there is meaningful.
	CatchAllStatusNotCatchAllProven CatchAllStatus = "not_catchall_proven"
)

// DomainEvidence aggregates test-send observations for one domain. It is fully
// derived from the complete VerificationResult history and carries no hidden
// counters; recomputing it over the same rows always yields the same value.
type DomainEvidence struct {
	Domain        string `json:"domain"`
	HasGoodReal   bool   `json:"has_good_real"`
	HasBadInvalid bool   `json:"has_bad_invalid"`
}

// Observe folds one historical test-sent row into the evidence.
func (e *DomainEvidence) Observe(row *VerificationResult) {
	var code, reason string
	if row.BounceCode != nil {
		code = *row.BounceCode
	}
	if row.BounceReason != nil {
		reason = *row.BounceReason
	}

	switch row.TestSendStatus {
	case TestSendStatusSent, TestSendStatusDeliveredAssumed:
		if !IsUserUnknownBounce(code, reason) {
			e.HasGoodReal = true
		}
	case TestSendStatusBounceHard:
		if row.HasUserUnknownBounce() {
			e.HasBadInvalid = true
		}
	}
}

// Classify derives the catch-all status from the accumulated evidence.
func (e DomainEvidence) Classify() CatchAllStatus {
	if e.HasGoodReal && e.HasBadInvalid {
		return CatchAllStatusNotCatchAllProven
	}
	return CatchAllStatusUnknown
}

// BuildDomainEvidence recomputes evidence for a domain from its full test-sent history.
func BuildDomainEvidence(domain string, rows []*VerificationResult) DomainEvidence {
	evidence := DomainEvidence{Domain: domain}
	for _, row := range rows {
		evidence.Observe(row)
	}
	return evidence
}

// ShouldUpgradeRiskyToValid reports whether a risky_catch_all row has earned a
// valid status. All four preconditions must hold: the row is currently risky,
// the domain is proven not-catch-all, the row's test-send went out (or aged to
// delivered_assumed), and the row shows no user-unknown hard bounce. The
// current-status precondition makes repeat runs a no-op once upgraded.
func ShouldUpgradeRiskyToValid(row *VerificationResult, domainStatus CatchAllStatus) bool {
	if row.VerifyStatus != VerifyStatusRiskyCatchAll {
		return false
	}
	if domainStatus != CatchAllStatusNotCatchAllProven {
		return false
	}
	if row.TestSendStatus != TestSendStatusSent && row.TestSendStatus != TestSendStatusDeliveredAssumed {
		return false
	}
	if row.HasUserUnknownBounce() {
		return false
	}
	return true
}
