package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	kycModels "istsi/internal/kyc/models"
	"istsi/internal/platform/clock"
	tokenStore "istsi/internal/token/store"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// =============================================================================
// Token Ledger Service Test Suite
// =============================================================================

// stubRegistry lets tests script the compliance answer and observe calls.
type stubRegistry struct {
	approved bool
	err      error
	calls    int
}

func (r *stubRegistry) IsApproved(context.Context, id.Address, kycModels.OpCode, int64) (bool, error) {
	r.calls++
	return r.approved, r.err
}

type TokenServiceSuite struct {
	suite.Suite
	store    *tokenStore.InMemoryStore
	clock    *clock.Fixed
	registry *stubRegistry
	service  *Service

	router id.Address
	admin  id.Address
	alice  id.Address
	bob    id.Address
}

func TestTokenServiceSuite(t *testing.T) {
	suite.Run(t, new(TokenServiceSuite))
}

func (s *TokenServiceSuite) SetupTest() {
	s.store = tokenStore.NewInMemory()
	s.clock = &clock.Fixed{Time: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}
	s.registry = &stubRegistry{approved: true}
	s.router = id.Address("0e01")
	s.admin = id.Address("ad01")
	s.alice = id.Address("a11c")
	s.bob = id.Address("b0b0")

	var err error
	s.service, err = New(s.store, s.router, s.admin,
		WithClock(s.clock),
		WithComplianceChecker(s.registry),
	)
	s.Require().NoError(err)
}

func (s *TokenServiceSuite) mint(to id.Address, amount int64, ref string) {
	s.Require().NoError(s.service.MintWithLink(context.Background(), s.router, to, amount, ref, "corr-"+ref))
}

// =============================================================================
// Mint and Burn Hooks
// =============================================================================

func (s *TokenServiceSuite) TestMintWithLink() {
	ctx := context.Background()

	s.Run("router mints and supply grows", func() {
		s.mint(s.alice, 1000, "ref-1")

		balance, err := s.service.BalanceOf(ctx, s.alice)
		s.Require().NoError(err)
		s.Equal(int64(1000), balance)

		supply, err := s.service.TotalSupply(ctx)
		s.Require().NoError(err)
		s.Equal(int64(1000), supply)
	})

	s.Run("duplicate external ref is rejected without minting", func() {
		err := s.service.MintWithLink(ctx, s.router, s.alice, 500, "ref-1", "corr-x")
		s.True(dErrors.Is(err, dErrors.CodeDuplicateOperation))

		supply, err2 := s.service.TotalSupply(ctx)
		s.Require().NoError(err2)
		s.Equal(int64(1000), supply)
	})

	s.Run("non-router caller cannot mint", func() {
		err := s.service.MintWithLink(ctx, s.alice, s.alice, 500, "ref-2", "corr-2")
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	s.Run("admin may mint", func() {
		s.NoError(s.service.MintWithLink(ctx, s.admin, s.alice, 1, "ref-3", "corr-3"))
	})

	s.Run("link is recorded for idempotent lookup", func() {
		link, err := s.service.LookupLink(ctx, "ref-1")
		s.Require().NoError(err)
		s.Require().NotNil(link)
		s.Equal(s.alice, link.Account)
		s.Equal(int64(1000), link.Amount)
	})
}

func (s *TokenServiceSuite) TestBurnForWithdrawal() {
	ctx := context.Background()
	s.mint(s.alice, 1000, "mint-ref")

	s.Run("burn shrinks balance and supply, returns ledger ref", func() {
		ledgerRef, err := s.service.BurnForWithdrawal(ctx, s.router, s.alice, 400, "burn-ref", "corr")
		s.Require().NoError(err)
		s.NotEmpty(ledgerRef)

		balance, err := s.service.BalanceOf(ctx, s.alice)
		s.Require().NoError(err)
		s.Equal(int64(600), balance)

		supply, err := s.service.TotalSupply(ctx)
		s.Require().NoError(err)
		s.Equal(int64(600), supply)
	})

	s.Run("duplicate burn ref is rejected", func() {
		_, err := s.service.BurnForWithdrawal(ctx, s.router, s.alice, 100, "burn-ref", "corr")
		s.True(dErrors.Is(err, dErrors.CodeDuplicateOperation))
	})

	s.Run("burn beyond balance fails without mutating", func() {
		_, err := s.service.BurnForWithdrawal(ctx, s.router, s.alice, 601, "burn-ref-2", "corr")
		s.True(dErrors.Is(err, dErrors.CodeInsufficientBalance))

		// The failed burn must not consume the reference either.
		link, err2 := s.service.LookupLink(ctx, "burn-ref-2")
		s.Require().NoError(err2)
		s.Nil(link)
	})

	s.Run("non-router caller cannot burn", func() {
		_, err := s.service.BurnForWithdrawal(ctx, s.bob, s.alice, 1, "burn-ref-3", "corr")
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})
}

// =============================================================================
// Transfers
// =============================================================================

func (s *TokenServiceSuite) TestTransfer() {
	ctx := context.Background()
	s.mint(s.alice, 1000, "mint-ref")

	s.Run("moves balance, supply unchanged", func() {
		s.NoError(s.service.Transfer(ctx, s.alice, s.bob, 300))

		aliceBal, _ := s.service.BalanceOf(ctx, s.alice)
		bobBal, _ := s.service.BalanceOf(ctx, s.bob)
		supply, _ := s.service.TotalSupply(ctx)
		s.Equal(int64(700), aliceBal)
		s.Equal(int64(300), bobBal)
		s.Equal(int64(1000), supply)
	})

	s.Run("insufficient balance fails without mutating", func() {
		err := s.service.Transfer(ctx, s.alice, s.bob, 701)
		s.True(dErrors.Is(err, dErrors.CodeInsufficientBalance))
	})

	s.Run("non-positive amount is rejected", func() {
		err := s.service.Transfer(ctx, s.alice, s.bob, 0)
		s.True(dErrors.Is(err, dErrors.CodeInvalidAmount))
	})
}

func (s *TokenServiceSuite) TestAllowances() {
	ctx := context.Background()
	s.mint(s.alice, 1000, "mint-ref")
	expiry := s.clock.Time.Add(time.Hour)

	s.Run("approve then transferFrom spends the allowance", func() {
		s.NoError(s.service.Approve(ctx, s.alice, s.bob, 500, expiry))

		remaining, err := s.service.Allowance(ctx, s.alice, s.bob)
		s.Require().NoError(err)
		s.Equal(int64(500), remaining)

		s.NoError(s.service.TransferFrom(ctx, s.bob, s.alice, s.bob, 200))

		remaining, err = s.service.Allowance(ctx, s.alice, s.bob)
		s.Require().NoError(err)
		s.Equal(int64(300), remaining)
	})

	s.Run("spending past the allowance is rejected", func() {
		err := s.service.TransferFrom(ctx, s.bob, s.alice, s.bob, 301)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	s.Run("expired allowance reads and spends as zero", func() {
		s.clock.Advance(2 * time.Hour)

		remaining, err := s.service.Allowance(ctx, s.alice, s.bob)
		s.Require().NoError(err)
		s.Zero(remaining)

		err = s.service.TransferFrom(ctx, s.bob, s.alice, s.bob, 1)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})
}

// =============================================================================
// Compliance Transfers
// =============================================================================

func (s *TokenServiceSuite) TestComplianceTransfer() {
	ctx := context.Background()
	s.mint(s.alice, 1000, "mint-ref")

	s.Run("approved sender transfers", func() {
		s.NoError(s.service.ComplianceTransfer(ctx, s.alice, s.bob, 100))
		s.Equal(1, s.registry.calls)
	})

	s.Run("rejected sender is blocked", func() {
		s.registry.approved = false
		err := s.service.ComplianceTransfer(ctx, s.alice, s.bob, 100)
		s.True(dErrors.Is(err, dErrors.CodeComplianceCheckFailed))
	})

	s.Run("registry error fails closed", func() {
		s.registry.err = dErrors.New(dErrors.CodeInternal, "registry down")
		err := s.service.ComplianceTransfer(ctx, s.alice, s.bob, 100)
		s.True(dErrors.Is(err, dErrors.CodeComplianceCheckFailed))

		// No tokens moved on the failed attempts.
		bobBal, _ := s.service.BalanceOf(ctx, s.bob)
		s.Equal(int64(100), bobBal)
	})
}
