package store

import dErrors "istsi/pkg/domain-errors"

var (
	// ErrRecordNotFound keeps store-level 404s consistent across
	// implementations.
	ErrRecordNotFound = dErrors.New(dErrors.CodeNotFound, "compliance record not found")
	// ErrTierNotConfigured is returned for tiers with no limit row.
	ErrTierNotConfigured = dErrors.New(dErrors.CodeNotFound, "tier limits not configured")
)
