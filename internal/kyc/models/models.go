package models

import (
	"time"

	id "istsi/pkg/domain"
)

// OpCode distinguishes the operation classes the registry gates.
type OpCode string

const (
	OpDeposit  OpCode = "deposit"
	OpWithdraw OpCode = "withdraw"
	OpTransfer OpCode = "transfer"
	OpExchange OpCode = "exchange"
)

// Tier is an ordinal compliance level; higher tiers carry more permissive
// transaction limits.
type Tier int

const (
	TierBasic         Tier = 1
	TierVerified      Tier = 2
	TierInstitutional Tier = 3
)

func (t Tier) IsValid() bool {
	return t >= TierBasic && t <= TierInstitutional
}

// TierLimits bounds rolling spend per tier, in satoshis.
type TierLimits struct {
	Daily   int64
	Monthly int64
}

// DefaultTierLimits seeds the registry. Admins adjust per deployment via
// SetTierLimits.
func DefaultTierLimits() map[Tier]TierLimits {
	return map[Tier]TierLimits{
		TierBasic:         {Daily: 1_000_000_000, Monthly: 10_000_000_000},
		TierVerified:      {Daily: 10_000_000_000, Monthly: 100_000_000_000},
		TierInstitutional: {Daily: 100_000_000_000, Monthly: 1_000_000_000_000},
	}
}

// ComplianceRecord is the per-address compliance state. Spent counters roll
// over lazily: resets happen on the first check after a boundary passes, not
// on a background timer.
type ComplianceRecord struct {
	Address          id.Address
	Tier             Tier
	DailySpent       int64
	MonthlySpent     int64
	LastDailyReset   time.Time
	LastMonthlyReset time.Time
	IsActive         bool
	RegisteredAt     time.Time
}

// EffectiveSpent returns the daily and monthly spent counters as they stand
// at now, applying pending lazy resets without mutating the record.
func (r ComplianceRecord) EffectiveSpent(now time.Time) (daily, monthly int64) {
	daily, monthly = r.DailySpent, r.MonthlySpent
	if DayBoundaryCrossed(r.LastDailyReset, now) {
		daily = 0
	}
	if MonthBoundaryCrossed(r.LastMonthlyReset, now) {
		monthly = 0
	}
	return daily, monthly
}

// DayBoundaryCrossed reports whether a calendar day (UTC) has rolled over
// between the watermark and now.
func DayBoundaryCrossed(watermark, now time.Time) bool {
	w, n := watermark.UTC(), now.UTC()
	wy, wm, wd := w.Date()
	ny, nm, nd := n.Date()
	return ny != wy || nm != wm || nd != wd
}

// MonthBoundaryCrossed reports whether a calendar month (UTC) has rolled over
// between the watermark and now.
func MonthBoundaryCrossed(watermark, now time.Time) bool {
	w, n := watermark.UTC(), now.UTC()
	wy, wm, _ := w.Date()
	ny, nm, _ := n.Date()
	return ny != wy || nm != wm
}
