package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"istsi/internal/kyc/models"
	kycStore "istsi/internal/kyc/store"
	"istsi/internal/platform/clock"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// =============================================================================
// KYC Registry Service Test Suite
// =============================================================================
// The registry's lazy limit resets and the re-check inside RecordTransaction
// depend on precise clock control, which only unit tests can provide.

type KYCServiceSuite struct {
	suite.Suite
	store   *kycStore.InMemoryStore
	clock   *clock.Fixed
	service *Service

	admin id.Address
	user  id.Address
}

func TestKYCServiceSuite(t *testing.T) {
	suite.Run(t, new(KYCServiceSuite))
}

func (s *KYCServiceSuite) SetupTest() {
	s.store = kycStore.NewInMemory()
	s.clock = &clock.Fixed{Time: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}
	s.admin = id.Address("ad01")
	s.user = id.Address("1234")

	var err error
	s.service, err = New(s.store, s.admin, WithClock(s.clock))
	s.Require().NoError(err)
}

func (s *KYCServiceSuite) register(tier models.Tier) {
	s.Require().NoError(s.service.RegisterUser(context.Background(), s.admin, s.user, tier))
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *KYCServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, s.admin)
		s.Error(err)
	})

	s.Run("nil admin returns error", func() {
		_, err := New(s.store, id.Address(""))
		s.Error(err)
	})
}

// =============================================================================
// Registration and Admin Gating
// =============================================================================

func (s *KYCServiceSuite) TestRegisterUser() {
	ctx := context.Background()

	s.Run("admin registers a user", func() {
		s.NoError(s.service.RegisterUser(ctx, s.admin, s.user, models.TierBasic))

		rec, err := s.service.GetRecord(ctx, s.user)
		s.Require().NoError(err)
		s.Equal(models.TierBasic, rec.Tier)
		s.True(rec.IsActive)
	})

	s.Run("duplicate registration is rejected", func() {
		err := s.service.RegisterUser(ctx, s.admin, s.user, models.TierVerified)
		s.True(dErrors.Is(err, dErrors.CodeDuplicateOperation))
	})

	s.Run("non-admin caller is rejected", func() {
		err := s.service.RegisterUser(ctx, s.user, id.Address("5678"), models.TierBasic)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	s.Run("invalid tier is rejected", func() {
		err := s.service.RegisterUser(ctx, s.admin, id.Address("5678"), models.Tier(9))
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func (s *KYCServiceSuite) TestAdminMutations() {
	ctx := context.Background()
	s.register(models.TierBasic)

	s.Run("update tier", func() {
		s.NoError(s.service.UpdateTier(ctx, s.admin, s.user, models.TierInstitutional))
		rec, err := s.service.GetRecord(ctx, s.user)
		s.Require().NoError(err)
		s.Equal(models.TierInstitutional, rec.Tier)
	})

	s.Run("update tier requires admin", func() {
		err := s.service.UpdateTier(ctx, s.user, s.user, models.TierBasic)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	s.Run("deactivate retains the record", func() {
		s.NoError(s.service.Deactivate(ctx, s.admin, s.user))
		rec, err := s.service.GetRecord(ctx, s.user)
		s.Require().NoError(err)
		s.False(rec.IsActive)
	})

	s.Run("set tier limits validates bounds", func() {
		err := s.service.SetTierLimits(ctx, s.admin, models.TierBasic, models.TierLimits{Daily: 100, Monthly: 50})
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))

		s.NoError(s.service.SetTierLimits(ctx, s.admin, models.TierBasic, models.TierLimits{Daily: 50, Monthly: 100}))
	})
}

// =============================================================================
// Approval Checks
// =============================================================================

func (s *KYCServiceSuite) TestIsApproved() {
	ctx := context.Background()

	s.Run("unregistered address is not approved, not an error", func() {
		ok, err := s.service.IsApproved(ctx, s.user, models.OpDeposit, 100)
		s.NoError(err)
		s.False(ok)
	})

	s.register(models.TierBasic)

	s.Run("within limits is approved", func() {
		ok, err := s.service.IsApproved(ctx, s.user, models.OpDeposit, 500_000_000)
		s.NoError(err)
		s.True(ok)
	})

	s.Run("over daily limit is not approved", func() {
		ok, err := s.service.IsApproved(ctx, s.user, models.OpDeposit, 1_000_000_001)
		s.NoError(err)
		s.False(ok)
	})

	s.Run("non-positive amount is not approved", func() {
		ok, err := s.service.IsApproved(ctx, s.user, models.OpDeposit, 0)
		s.NoError(err)
		s.False(ok)
	})

	s.Run("deactivated address is not approved", func() {
		s.Require().NoError(s.service.Deactivate(ctx, s.admin, s.user))
		ok, err := s.service.IsApproved(ctx, s.user, models.OpDeposit, 100)
		s.NoError(err)
		s.False(ok)
	})
}

// =============================================================================
// Limit Recording and Lazy Resets
// =============================================================================

func (s *KYCServiceSuite) TestRecordTransaction() {
	ctx := context.Background()
	s.register(models.TierBasic) // daily 1_000_000_000, monthly 10_000_000_000

	s.Run("records against both windows", func() {
		s.NoError(s.service.RecordTransaction(ctx, s.user, 600_000_000))
		rec, err := s.service.GetRecord(ctx, s.user)
		s.Require().NoError(err)
		s.Equal(int64(600_000_000), rec.DailySpent)
		s.Equal(int64(600_000_000), rec.MonthlySpent)
	})

	s.Run("exceeding the daily window is a hard stop", func() {
		err := s.service.RecordTransaction(ctx, s.user, 500_000_000)
		s.True(dErrors.Is(err, dErrors.CodeLimitExceeded))

		// The failed attempt must not consume any of the window.
		rec, err2 := s.service.GetRecord(ctx, s.user)
		s.Require().NoError(err2)
		s.Equal(int64(600_000_000), rec.DailySpent)
	})

	s.Run("daily window resets at the UTC day boundary", func() {
		s.clock.Advance(24 * time.Hour)

		ok, err := s.service.IsApproved(ctx, s.user, models.OpDeposit, 1_000_000_000)
		s.NoError(err)
		s.True(ok)

		s.NoError(s.service.RecordTransaction(ctx, s.user, 1_000_000_000))
		rec, err := s.service.GetRecord(ctx, s.user)
		s.Require().NoError(err)
		s.Equal(int64(1_000_000_000), rec.DailySpent)
		s.Equal(int64(1_600_000_000), rec.MonthlySpent) // monthly carries over
	})

	s.Run("monthly window resets at the UTC month boundary", func() {
		s.clock.Time = time.Date(2026, 4, 1, 0, 0, 1, 0, time.UTC)

		s.NoError(s.service.RecordTransaction(ctx, s.user, 100))
		rec, err := s.service.GetRecord(ctx, s.user)
		s.Require().NoError(err)
		s.Equal(int64(100), rec.DailySpent)
		s.Equal(int64(100), rec.MonthlySpent)
	})

	s.Run("deactivated address cannot record", func() {
		s.Require().NoError(s.service.Deactivate(ctx, s.admin, s.user))
		err := s.service.RecordTransaction(ctx, s.user, 100)
		s.True(dErrors.Is(err, dErrors.CodeComplianceCheckFailed))
	})
}

func (s *KYCServiceSuite) TestRecordTransactionUnregistered() {
	err := s.service.RecordTransaction(context.Background(), s.user, 100)
	s.True(dErrors.Is(err, dErrors.CodeComplianceCheckFailed))
}

// The store guards records and limits with one lock; a record update that
// read limits through the store's own entry point would block on itself.
func (s *KYCServiceSuite) TestRecordTransactionReturnsPromptly() {
	s.register(models.TierBasic)

	done := make(chan error, 1)
	go func() {
		done <- s.service.RecordTransaction(context.Background(), s.user, 100)
	}()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(3 * time.Second):
		s.FailNow("RecordTransaction did not return")
	}
}
