// Package service implements the KYC registry: per-address compliance tiers
// and rolling transaction limits. The registry owns its own state; other
// components only call its entry points.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"istsi/internal/audit"
	"istsi/internal/kyc/models"
	"istsi/internal/platform/clock"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// Store persists compliance records and tier limits.
type Store interface {
	Get(ctx context.Context, addr id.Address) (*models.ComplianceRecord, error)
	Put(ctx context.Context, rec *models.ComplianceRecord) error
	Update(ctx context.Context, addr id.Address, fn func(*models.ComplianceRecord) error) error
	Limits(ctx context.Context, tier models.Tier) (models.TierLimits, error)
	SetLimits(ctx context.Context, tier models.Tier, limits models.TierLimits) error
}

// AuditPublisher emits audit events for compliance-record mutations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the KYC registry. Admin operations are restricted to the
// configured admin identity.
type Service struct {
	store     Store
	admin     id.Address
	clock     clock.Clock
	logger    *slog.Logger
	publisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func New(store Store, admin id.Address, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("kyc store is required")
	}
	if admin.IsNil() {
		return nil, fmt.Errorf("admin address is required")
	}

	svc := &Service{
		store: store,
		admin: admin,
		clock: clock.System{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// IsApproved evaluates whether the address may perform an operation of the
// given size. It is a pure read: lazy resets are computed but never
// persisted here. Unregistered addresses get false, not an error.
func (s *Service) IsApproved(ctx context.Context, addr id.Address, op models.OpCode, amount int64) (bool, error) {
	if amount <= 0 {
		return false, nil
	}

	rec, err := s.store.Get(ctx, addr)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load compliance record")
	}
	if rec == nil || !rec.IsActive {
		return false, nil
	}

	limits, err := s.store.Limits(ctx, rec.Tier)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tier limits")
	}

	now := s.clock.Now()
	daily, monthly := rec.EffectiveSpent(now)
	if daily+amount > limits.Daily {
		return false, nil
	}
	if monthly+amount > limits.Monthly {
		return false, nil
	}

	return true, nil
}

// RecordTransaction settles an approved amount against the address's rolling
// counters. It persists any pending lazy reset, then re-checks the limits
// before adding; a violation here is a hard stop (LimitExceeded), never a
// retry, because it means a concurrent operation consumed the window first.
func (s *Service) RecordTransaction(ctx context.Context, addr id.Address, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}

	rec, err := s.store.Get(ctx, addr)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load compliance record")
	}
	if rec == nil {
		return dErrors.New(dErrors.CodeComplianceCheckFailed, "address not registered")
	}

	// Limits are read before entering the record update; a concurrent tier or
	// limit change applies from the next transaction on.
	limits, err := s.store.Limits(ctx, rec.Tier)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tier limits")
	}

	now := s.clock.Now()
	err = s.store.Update(ctx, addr, func(rec *models.ComplianceRecord) error {
		if !rec.IsActive {
			return dErrors.New(dErrors.CodeComplianceCheckFailed, "address is deactivated")
		}

		if models.DayBoundaryCrossed(rec.LastDailyReset, now) {
			rec.DailySpent = 0
			rec.LastDailyReset = now
		}
		if models.MonthBoundaryCrossed(rec.LastMonthlyReset, now) {
			rec.MonthlySpent = 0
			rec.LastMonthlyReset = now
		}

		if rec.DailySpent+amount > limits.Daily {
			return dErrors.New(dErrors.CodeLimitExceeded, "daily limit exceeded")
		}
		if rec.MonthlySpent+amount > limits.Monthly {
			return dErrors.New(dErrors.CodeLimitExceeded, "monthly limit exceeded")
		}

		rec.DailySpent += amount
		rec.MonthlySpent += amount
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.Event{
		Action:  audit.ActionLimitRecorded,
		Subject: addr.String(),
		Amount:  amount,
	})
	return nil
}

// RegisterUser creates a compliance record. Admin only.
func (s *Service) RegisterUser(ctx context.Context, caller, addr id.Address, tier models.Tier) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	if !tier.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid tier")
	}

	existing, err := s.store.Get(ctx, addr)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load compliance record")
	}
	if existing != nil {
		return dErrors.New(dErrors.CodeDuplicateOperation, "address already registered")
	}

	now := s.clock.Now()
	rec := &models.ComplianceRecord{
		Address:          addr,
		Tier:             tier,
		LastDailyReset:   now,
		LastMonthlyReset: now,
		IsActive:         true,
		RegisteredAt:     now,
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store compliance record")
	}

	s.emit(ctx, audit.Event{
		Action:  audit.ActionUserRegistered,
		Subject: addr.String(),
		Reason:  fmt.Sprintf("tier %d", tier),
	})
	return nil
}

// UpdateTier changes an address's tier. Admin only.
func (s *Service) UpdateTier(ctx context.Context, caller, addr id.Address, tier models.Tier) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	if !tier.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid tier")
	}

	err := s.store.Update(ctx, addr, func(rec *models.ComplianceRecord) error {
		rec.Tier = tier
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.Event{
		Action:  audit.ActionTierUpdated,
		Subject: addr.String(),
		Reason:  fmt.Sprintf("tier %d", tier),
	})
	return nil
}

// Deactivate flips the address inactive. The record is retained for audit;
// nothing is deleted. Admin only.
func (s *Service) Deactivate(ctx context.Context, caller, addr id.Address) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}

	err := s.store.Update(ctx, addr, func(rec *models.ComplianceRecord) error {
		rec.IsActive = false
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.Event{
		Action:  audit.ActionUserDeactivated,
		Subject: addr.String(),
	})
	return nil
}

// SetTierLimits replaces a tier's limits. Admin only.
func (s *Service) SetTierLimits(ctx context.Context, caller id.Address, tier models.Tier, limits models.TierLimits) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	if !tier.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid tier")
	}
	if limits.Daily <= 0 || limits.Monthly <= 0 || limits.Daily > limits.Monthly {
		return dErrors.New(dErrors.CodeBadRequest, "invalid tier limits")
	}

	if err := s.store.SetLimits(ctx, tier, limits); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store tier limits")
	}

	s.emit(ctx, audit.Event{
		Action: audit.ActionTierLimitsUpdated,
		Reason: fmt.Sprintf("tier %d daily %d monthly %d", tier, limits.Daily, limits.Monthly),
	})
	return nil
}

// GetRecord returns the compliance record for status queries, or NotFound.
func (s *Service) GetRecord(ctx context.Context, addr id.Address) (*models.ComplianceRecord, error) {
	rec, err := s.store.Get(ctx, addr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load compliance record")
	}
	if rec == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "address not registered")
	}
	return rec, nil
}

func (s *Service) requireAdmin(caller id.Address) error {
	if caller != s.admin {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry admin")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"action", event.Action,
		)
	}
}
