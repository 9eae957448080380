package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"istsi/internal/platform/clock"
	"istsi/internal/reserve/models"
	reserveStore "istsi/internal/reserve/store"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// =============================================================================
// Reserve Manager Service Test Suite
// =============================================================================

type ReserveServiceSuite struct {
	suite.Suite
	store   *reserveStore.InMemoryStore
	clock   *clock.Fixed
	service *Service

	user id.Address
}

func TestReserveServiceSuite(t *testing.T) {
	suite.Run(t, new(ReserveServiceSuite))
}

func (s *ReserveServiceSuite) SetupTest() {
	s.store = reserveStore.NewInMemory(10000) // 1:1 floor
	s.clock = &clock.Fixed{Time: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}
	s.user = id.Address("1234")

	var err error
	s.service, err = New(s.store, 3, WithClock(s.clock))
	s.Require().NoError(err)
}

func (s *ReserveServiceSuite) txHash(b byte) id.TxHash {
	var h id.TxHash
	h[0] = b
	return h
}

// deposit registers and processes a confirmed deposit so reserves are funded.
func (s *ReserveServiceSuite) deposit(b byte, amount int64) {
	ctx := context.Background()
	s.Require().NoError(s.service.RegisterBitcoinDeposit(ctx, s.txHash(b), amount, 6, s.user, 800_000))
	s.Require().NoError(s.service.ProcessBitcoinDeposit(ctx, s.txHash(b)))
}

// =============================================================================
// Deposit Registration and Dedup
// =============================================================================

func (s *ReserveServiceSuite) TestRegisterBitcoinDeposit() {
	ctx := context.Background()

	s.Run("first registration succeeds", func() {
		s.NoError(s.service.RegisterBitcoinDeposit(ctx, s.txHash(1), 100_000_000, 6, s.user, 800_000))
	})

	s.Run("same tx hash is rejected as duplicate", func() {
		err := s.service.RegisterBitcoinDeposit(ctx, s.txHash(1), 100_000_000, 6, s.user, 800_000)
		s.True(dErrors.Is(err, dErrors.CodeDuplicateOperation))
	})

	s.Run("duplicate with different amount is still rejected", func() {
		err := s.service.RegisterBitcoinDeposit(ctx, s.txHash(1), 50, 6, s.user, 800_000)
		s.True(dErrors.Is(err, dErrors.CodeDuplicateOperation))
	})

	s.Run("non-positive amount is rejected", func() {
		err := s.service.RegisterBitcoinDeposit(ctx, s.txHash(2), 0, 6, s.user, 800_000)
		s.True(dErrors.Is(err, dErrors.CodeInvalidAmount))
	})
}

func (s *ReserveServiceSuite) TestProcessBitcoinDeposit() {
	ctx := context.Background()

	s.Run("unknown hash fails", func() {
		err := s.service.ProcessBitcoinDeposit(ctx, s.txHash(9))
		s.Error(err)
	})

	s.Run("under-confirmed deposit is not processed", func() {
		s.Require().NoError(s.service.RegisterBitcoinDeposit(ctx, s.txHash(1), 100_000_000, 2, s.user, 800_000))
		err := s.service.ProcessBitcoinDeposit(ctx, s.txHash(1))
		s.True(dErrors.Is(err, dErrors.CodeInvalidOperationState))

		state, err2 := s.service.State(ctx)
		s.Require().NoError(err2)
		s.Zero(state.TotalReserves)
	})

	s.Run("confirmed deposit credits reserves once", func() {
		s.Require().NoError(s.service.RegisterBitcoinDeposit(ctx, s.txHash(2), 100_000_000, 3, s.user, 800_000))
		s.NoError(s.service.ProcessBitcoinDeposit(ctx, s.txHash(2)))

		state, err := s.service.State(ctx)
		s.Require().NoError(err)
		s.Equal(int64(100_000_000), state.TotalReserves)

		// Reprocessing is an invalid state, not a double credit.
		err = s.service.ProcessBitcoinDeposit(ctx, s.txHash(2))
		s.True(dErrors.Is(err, dErrors.CodeInvalidOperationState))

		state, err = s.service.State(ctx)
		s.Require().NoError(err)
		s.Equal(int64(100_000_000), state.TotalReserves)
	})
}

// =============================================================================
// Issuance Ratio Floor
// =============================================================================

func (s *ReserveServiceSuite) TestIssuanceRatio() {
	ctx := context.Background()
	s.deposit(1, 100_000_000)

	s.Run("issuance up to the floor succeeds", func() {
		ok, err := s.service.CanIssue(ctx, 100_000_000)
		s.NoError(err)
		s.True(ok)

		s.NoError(s.service.RecordIssuance(ctx, 100_000_000))
	})

	s.Run("issuance past the floor is rejected atomically", func() {
		err := s.service.RecordIssuance(ctx, 1)
		s.True(dErrors.Is(err, dErrors.CodeReserveRatioTooLow))

		state, err2 := s.service.State(ctx)
		s.Require().NoError(err2)
		s.Equal(int64(100_000_000), state.TotalIssued)
	})

	s.Run("burn frees headroom", func() {
		s.NoError(s.service.RecordBurn(ctx, 40_000_000))
		ok, err := s.service.CanIssue(ctx, 40_000_000)
		s.NoError(err)
		s.True(ok)
	})

	s.Run("empty ledger is trivially backed", func() {
		state := models.ReserveState{TotalReserves: 0, TotalIssued: 0, MinimumRatioBPS: 10000}
		s.Equal(int64(10000), state.RatioBPS())
	})
}

// =============================================================================
// Withdrawal Requests
// =============================================================================

func (s *ReserveServiceSuite) TestWithdrawals() {
	ctx := context.Background()
	s.deposit(1, 100_000_000)

	const btcAddr = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"

	s.Run("malformed btc address is rejected", func() {
		_, err := s.service.CreateWithdrawalRequest(ctx, s.user, 1000, "not-an-address!")
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("create debits reserves and records pending intent", func() {
		wid, err := s.service.CreateWithdrawalRequest(ctx, s.user, 30_000_000, btcAddr)
		s.Require().NoError(err)

		rec, err := s.service.GetWithdrawal(ctx, wid)
		s.Require().NoError(err)
		s.Equal(models.WithdrawalPending, rec.Status)
		s.Equal(int64(30_000_000), rec.Amount)

		state, err := s.service.State(ctx)
		s.Require().NoError(err)
		s.Equal(int64(70_000_000), state.TotalReserves)
	})

	s.Run("cannot withdraw more than reserves hold", func() {
		_, err := s.service.CreateWithdrawalRequest(ctx, s.user, 100_000_000, btcAddr)
		s.Error(err)
	})

	s.Run("complete flips pending to completed exactly once", func() {
		wid, err := s.service.CreateWithdrawalRequest(ctx, s.user, 1000, btcAddr)
		s.Require().NoError(err)

		s.NoError(s.service.CompleteWithdrawal(ctx, wid))
		err = s.service.CompleteWithdrawal(ctx, wid)
		s.True(dErrors.Is(err, dErrors.CodeInvalidOperationState))
	})
}

// =============================================================================
// Proof of Reserves
// =============================================================================

func (s *ReserveServiceSuite) TestGenerateProofOfReserves() {
	ctx := context.Background()
	s.deposit(1, 100_000_000)
	s.Require().NoError(s.service.RecordIssuance(ctx, 50_000_000))

	proof, err := s.service.GenerateProofOfReserves(ctx)
	s.Require().NoError(err)
	s.Equal(int64(100_000_000), proof.TotalReserves)
	s.Equal(int64(50_000_000), proof.TotalIssued)
	s.Equal(int64(20000), proof.RatioBPS)
	s.Equal(s.clock.Time, proof.Timestamp)
}
