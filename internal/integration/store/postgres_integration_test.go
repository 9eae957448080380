//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"istsi/internal/integration/models"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
	"istsi/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
	sequence uint64
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(s.postgres.ApplyMigrations(context.Background(), "../../../migrations"))
	s.store = NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "operations"))
}

func (s *PostgresStoreSuite) newOp(ref string) *models.Operation {
	s.sequence++
	return &models.Operation{
		ID:          id.NewOperationID(),
		Kind:        models.KindBitcoinDeposit,
		Initiator:   id.Address("be01"),
		Subject:     id.Address("1234"),
		AmountSats:  100_000_000,
		ExternalRef: ref,
		State:       models.StateCreated,
		Sequence:    s.sequence,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresStoreSuite) TestPutAndGet() {
	ctx := context.Background()
	op := s.newOp("tx-1")
	s.Require().NoError(s.store.Put(ctx, op))

	got, err := s.store.Get(ctx, op.ID)
	s.Require().NoError(err)
	s.Equal(op.ID, got.ID)
	s.Equal(models.KindBitcoinDeposit, got.Kind)
	s.Equal(int64(100_000_000), got.AmountSats)
	s.Equal(models.StateCreated, got.State)
	s.False(got.KeyClaimed)

	_, err = s.store.Get(ctx, id.NewOperationID())
	s.ErrorIs(err, ErrOperationNotFound)
}

func (s *PostgresStoreSuite) TestExternalRefClaim() {
	ctx := context.Background()
	op := s.newOp("tx-1")
	s.Require().NoError(s.store.Put(ctx, op))

	s.Run("unclaimed refs do not resolve lookups", func() {
		found, err := s.store.GetByExternalRef(ctx, "tx-1")
		s.Require().NoError(err)
		s.Nil(found)
	})

	s.Run("claimed refs resolve to the owning operation", func() {
		err := s.store.Update(ctx, op.ID, func(stored *models.Operation) error {
			stored.KeyClaimed = true
			return nil
		})
		s.Require().NoError(err)

		found, err := s.store.GetByExternalRef(ctx, "tx-1")
		s.Require().NoError(err)
		s.Require().NotNil(found)
		s.Equal(op.ID, found.ID)
	})

	s.Run("the unique index rejects a second claim of the same ref", func() {
		second := s.newOp("tx-1")
		s.Require().NoError(s.store.Put(ctx, second))

		err := s.store.Update(ctx, second.ID, func(stored *models.Operation) error {
			stored.KeyClaimed = true
			return nil
		})
		s.Error(err)
	})

	s.Run("a ref that failed before claiming stays reusable", func() {
		first := s.newOp("tx-2")
		s.Require().NoError(s.store.Put(ctx, first))
		s.Require().NoError(s.store.Update(ctx, first.ID, func(stored *models.Operation) error {
			stored.State = models.StateFailed
			stored.FailureReason = dErrors.CodeComplianceCheckFailed
			stored.CompletedAt = time.Now().UTC()
			return nil
		}))

		retry := s.newOp("tx-2")
		s.Require().NoError(s.store.Put(ctx, retry))
		s.Require().NoError(s.store.Update(ctx, retry.ID, func(stored *models.Operation) error {
			stored.KeyClaimed = true
			return nil
		}))

		found, err := s.store.GetByExternalRef(ctx, "tx-2")
		s.Require().NoError(err)
		s.Equal(retry.ID, found.ID)
	})
}

func (s *PostgresStoreSuite) TestUpdateIsAtomic() {
	ctx := context.Background()
	op := s.newOp("tx-1")
	s.Require().NoError(s.store.Put(ctx, op))

	err := s.store.Update(ctx, op.ID, func(stored *models.Operation) error {
		stored.State = models.StateSettled
		return context.Canceled
	})
	s.Error(err)

	got, err := s.store.Get(ctx, op.ID)
	s.Require().NoError(err)
	s.Equal(models.StateCreated, got.State)

	err = s.store.Update(ctx, id.NewOperationID(), func(*models.Operation) error { return nil })
	s.ErrorIs(err, ErrOperationNotFound)
}

func (s *PostgresStoreSuite) TestTerminalFieldsRoundTrip() {
	ctx := context.Background()
	op := s.newOp("tx-1")
	s.Require().NoError(s.store.Put(ctx, op))

	completedAt := time.Now().UTC().Truncate(time.Microsecond)
	wdID := id.NewWithdrawalID()
	s.Require().NoError(s.store.Update(ctx, op.ID, func(stored *models.Operation) error {
		stored.State = models.StateSettled
		stored.KeyClaimed = true
		stored.TokenAmount = 100_000_000
		stored.WithdrawalID = wdID
		stored.Anomaly = true
		stored.AnomalyNote = "burn bookkeeping failed"
		stored.CompletedAt = completedAt
		return nil
	}))

	got, err := s.store.Get(ctx, op.ID)
	s.Require().NoError(err)
	s.Equal(models.StateSettled, got.State)
	s.True(got.KeyClaimed)
	s.Equal(int64(100_000_000), got.TokenAmount)
	s.Equal(wdID, got.WithdrawalID)
	s.True(got.Anomaly)
	s.Equal("burn bookkeeping failed", got.AnomalyNote)
	s.WithinDuration(completedAt, got.CompletedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestListBySubjectOrdering() {
	ctx := context.Background()
	first := s.newOp("tx-1")
	second := s.newOp("tx-2")
	other := s.newOp("tx-3")
	other.Subject = id.Address("abcd")

	s.Require().NoError(s.store.Put(ctx, first))
	s.Require().NoError(s.store.Put(ctx, second))
	s.Require().NoError(s.store.Put(ctx, other))

	ops, err := s.store.ListBySubject(ctx, id.Address("1234"))
	s.Require().NoError(err)
	s.Require().Len(ops, 2)
	s.Equal(first.ID, ops[0].ID)
	s.Equal(second.ID, ops[1].ID)
}
