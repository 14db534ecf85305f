package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Verification repository sentinels.
	ErrEmailIDRequired = errors.New("email_id is required")
	ErrDomainRequired  = errors.New("domain is required")

	// Company repository sentinels.
	ErrCompanyNotFound = errors.New("company not found")
)
