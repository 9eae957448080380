//go:build integration

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"istsi/pkg/testutil/containers"
)

type PostgresAuditSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
}

func TestPostgresAuditSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAuditSuite))
}

func (s *PostgresAuditSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(s.postgres.ApplyMigrations(context.Background(), "../../migrations"))
	s.store = NewPostgresStore(s.postgres.Pool)
}

func (s *PostgresAuditSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
}

func (s *PostgresAuditSuite) TestAppendAndList() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	events := []Event{
		{Timestamp: base, OperationID: "op-1", CorrelationID: "op-1", Action: ActionStateTransition, Subject: "1234", Outcome: "compliance_verified"},
		{Timestamp: base.Add(time.Millisecond), OperationID: "op-1", CorrelationID: "op-1", Action: ActionStateTransition, Subject: "1234", Outcome: "settled"},
		{Timestamp: base.Add(2 * time.Millisecond), OperationID: "op-2", CorrelationID: "op-2", Action: ActionStateTransition, Subject: "abcd", Outcome: "failed", Reason: "limit_exceeded"},
	}
	for _, e := range events {
		s.Require().NoError(s.store.Append(ctx, e))
	}

	s.Run("by operation in timestamp order", func() {
		got, err := s.store.ListByOperation(ctx, "op-1")
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal("compliance_verified", got[0].Outcome)
		s.Equal("settled", got[1].Outcome)
	})

	s.Run("by subject", func() {
		got, err := s.store.ListBySubject(ctx, "abcd")
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal("limit_exceeded", got[0].Reason)
	})

	s.Run("unknown keys return empty", func() {
		got, err := s.store.ListByOperation(ctx, "op-9")
		s.Require().NoError(err)
		s.Empty(got)
	})
}
