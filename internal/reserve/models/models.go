package models

import (
	"time"

	id "istsi/pkg/domain"
)

// DepositRecord tracks one observed Bitcoin deposit, keyed by its
// transaction hash. Records are never deleted; Processed is the only field
// that changes after creation.
type DepositRecord struct {
	TxHash        id.TxHash
	Amount        int64
	Confirmations uint32
	BlockHeight   uint64
	User          id.Address
	Processed     bool
	RegisteredAt  time.Time
	ProcessedAt   time.Time
}

// WithdrawalStatus is the settlement lifecycle of a withdrawal request.
// Bitcoin settlement itself happens outside this system; Completed is set by
// the external settlement process acknowledging the payout.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)

// WithdrawalRecord tracks intent to pay out Bitcoin against burned tokens.
// Only Status changes after creation.
type WithdrawalRecord struct {
	ID         id.WithdrawalID
	User       id.Address
	Amount     int64
	BTCAddress string
	Status     WithdrawalStatus
	CreatedAt  time.Time
}

// ReserveState is the aggregate bookkeeping snapshot. Both totals are
// satoshis; issued token supply is recorded as its satoshi equivalent so
// the ratio is unit-consistent.
type ReserveState struct {
	TotalReserves   int64
	TotalIssued     int64
	MinimumRatioBPS int64
}

// RatioBPS computes the backing ratio in basis points. A zero issued supply
// is fully backed by definition.
func (s ReserveState) RatioBPS() int64 {
	if s.TotalIssued == 0 {
		return 10000 // nothing issued, trivially fully backed
	}
	return s.TotalReserves * 10000 / s.TotalIssued
}

// CanIssue reports whether minting amount keeps the ratio at or above the
// floor. Advisory: the mutating path re-checks under its own lock.
func (s ReserveState) CanIssue(amount int64) bool {
	if amount <= 0 {
		return false
	}
	newIssued := s.TotalIssued + amount
	return s.TotalReserves*10000/newIssued >= s.MinimumRatioBPS
}

// ProofOfReserves is the deterministic snapshot published for external
// auditors.
type ProofOfReserves struct {
	TotalReserves int64     `json:"total_reserves"`
	TotalIssued   int64     `json:"total_issued"`
	RatioBPS      int64     `json:"ratio_bps"`
	Timestamp     time.Time `json:"timestamp"`
}
