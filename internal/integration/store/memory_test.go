package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"istsi/internal/integration/models"
	id "istsi/pkg/domain"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
}

func (s *MemoryStoreSuite) newOp(ref string) *models.Operation {
	return &models.Operation{
		ID:          id.NewOperationID(),
		Kind:        models.KindBitcoinDeposit,
		Initiator:   id.Address("be01"),
		Subject:     id.Address("1234"),
		ExternalRef: ref,
		State:       models.StateCreated,
	}
}

func (s *MemoryStoreSuite) TestExternalRefClaim() {
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

	s.Run("a second operation may reuse a ref that was never claimed", func() {
		first := s.newOp("tx-2")
		s.Require().NoError(s.store.Put(ctx, first))
		s.Require().NoError(s.store.Update(ctx, first.ID, func(stored *models.Operation) error {
			stored.State = models.StateFailed
			return nil
		}))

		second := s.newOp("tx-2")
		s.Require().NoError(s.store.Put(ctx, second))
		s.Require().NoError(s.store.Update(ctx, second.ID, func(stored *models.Operation) error {
			stored.KeyClaimed = true
			return nil
		}))

		found, err := s.store.GetByExternalRef(ctx, "tx-2")
		s.Require().NoError(err)
		s.Equal(second.ID, found.ID)
	})
}

func (s *MemoryStoreSuite) TestUpdateIsAtomic() {
	ctx := context.Background()
	op := s.newOp("tx-1")
	s.Require().NoError(s.store.Put(ctx, op))

	s.Run("a failing mutation leaves the record untouched", func() {
		err := s.store.Update(ctx, op.ID, func(stored *models.Operation) error {
			stored.State = models.StateSettled
			return context.Canceled
		})
		s.Error(err)

		got, err := s.store.Get(ctx, op.ID)
		s.Require().NoError(err)
		s.Equal(models.StateCreated, got.State)
	})

	s.Run("unknown operation returns not found", func() {
		err := s.store.Update(ctx, id.NewOperationID(), func(*models.Operation) error { return nil })
		s.ErrorIs(err, ErrOperationNotFound)
	})
}

func (s *MemoryStoreSuite) TestListBySubjectReturnsCopies() {
	ctx := context.Background()
	op := s.newOp("tx-1")
	s.Require().NoError(s.store.Put(ctx, op))

	ops, err := s.store.ListBySubject(ctx, op.Subject)
	s.Require().NoError(err)
	s.Require().Len(ops, 1)

	ops[0].State = models.StateSettled
	got, err := s.store.Get(ctx, op.ID)
	s.Require().NoError(err)
	s.Equal(models.StateCreated, got.State)
}
