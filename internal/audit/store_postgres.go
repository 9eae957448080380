package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists audit events in the audit_events table (see
// migrations/0002_audit_events.sql). Append-only.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (
			id, ts, operation_id, correlation_id, kind, action,
			subject, initiator, amount, dest_amount, outcome, reason, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.pool.Exec(ctx, query,
		uuid.New(), event.Timestamp, event.OperationID, event.CorrelationID, event.Kind, event.Action,
		event.Subject, event.Initiator, event.Amount, event.DestAmount, event.Outcome, event.Reason, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByOperation(ctx context.Context, operationID string) ([]Event, error) {
	return s.list(ctx, `operation_id = $1`, operationID)
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	return s.list(ctx, `subject = $1`, subject)
}

func (s *PostgresStore) list(ctx context.Context, where string, arg any) ([]Event, error) {
	query := `
		SELECT ts, operation_id, correlation_id, kind, action,
		       subject, initiator, amount, dest_amount, outcome, reason, request_id
		FROM audit_events WHERE ` + where + ` ORDER BY ts`
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.Timestamp, &e.OperationID, &e.CorrelationID, &e.Kind, &e.Action,
			&e.Subject, &e.Initiator, &e.Amount, &e.DestAmount, &e.Outcome, &e.Reason, &e.RequestID,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
