package models

import (
	"time"

	id "istsi/pkg/domain"
)

// Allowance grants a spender a bounded, expiring claim on an owner's
// balance. A zero Expiration never expires.
type Allowance struct {
	Amount     int64
	Expiration time.Time
}

// Remaining reports the spendable amount at now.
func (a Allowance) Remaining(now time.Time) int64 {
	if !a.Expiration.IsZero() && now.After(a.Expiration) {
		return 0
	}
	return a.Amount
}

// LinkDirection marks whether an external-ref link was created by a mint or
// a burn.
type LinkDirection string

const (
	LinkMint LinkDirection = "mint"
	LinkBurn LinkDirection = "burn"
)

// ExternalLink durably ties a mint or burn to the external reference that
// caused it (a Bitcoin tx hash for deposits, a withdrawal ref for burns).
// Links make re-invocation with the same reference detectable and are
// retained indefinitely for audit.
type ExternalLink struct {
	ExternalRef   string
	Direction     LinkDirection
	Account       id.Address
	Amount        int64
	CorrelationID string
	LedgerRef     string
	CreatedAt     time.Time
}
