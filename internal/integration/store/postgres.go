package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"istsi/internal/integration/models"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// PostgresStore persists operations in the operations table (see
// migrations/0001_operations.sql). Rows are insert-and-update-only; nothing
// is ever deleted.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const operationColumns = `
	id, kind, initiator, subject,
	amount_sats, token_amount, source_amount, dest_amount, source_symbol, dest_symbol,
	external_ref, key_claimed, btc_tx_hash, btc_address, withdrawal_id,
	state, failure_reason, anomaly, anomaly_note,
	sequence, created_at, completed_at`

func (s *PostgresStore) Put(ctx context.Context, op *models.Operation) error {
	query := `
		INSERT INTO operations (` + operationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err := s.pool.Exec(ctx, query,
		op.ID.String(), string(op.Kind), op.Initiator.String(), op.Subject.String(),
		op.AmountSats, op.TokenAmount, op.SourceAmount, op.DestAmount, op.SourceSymbol, op.DestSymbol,
		claimedRef(op), op.KeyClaimed, nullable(op.BTCTxHash.String()), op.BTCAddress, withdrawalOrNil(op.WithdrawalID),
		string(op.State), string(op.FailureReason), op.Anomaly, op.AnomalyNote,
		op.Sequence, op.CreatedAt, nullTime(op),
	)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, opID id.OperationID) (*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = $1`
	op, err := s.scanOne(s.pool.QueryRow(ctx, query, opID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOperationNotFound
	}
	return op, err
}

func (s *PostgresStore) GetByExternalRef(ctx context.Context, ref string) (*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE external_ref = $1 AND key_claimed ORDER BY sequence LIMIT 1`
	op, err := s.scanOne(s.pool.QueryRow(ctx, query, ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return op, err
}

func (s *PostgresStore) Update(ctx context.Context, opID id.OperationID, fn func(*models.Operation) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = $1 FOR UPDATE`
	op, err := s.scanOne(tx.QueryRow(ctx, query, opID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOperationNotFound
	}
	if err != nil {
		return err
	}

	if err := fn(op); err != nil {
		return err
	}

	update := `
		UPDATE operations SET
			state = $2, failure_reason = $3, anomaly = $4, anomaly_note = $5,
			withdrawal_id = $6, token_amount = $7, dest_amount = $8, completed_at = $9,
			external_ref = $10, key_claimed = $11
		WHERE id = $1
	`
	_, err = tx.Exec(ctx, update,
		op.ID.String(), string(op.State), string(op.FailureReason), op.Anomaly, op.AnomalyNote,
		withdrawalOrNil(op.WithdrawalID), op.TokenAmount, op.DestAmount, nullTime(op),
		claimedRef(op), op.KeyClaimed,
	)
	if err != nil {
		return fmt.Errorf("update operation: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject id.Address) ([]*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE subject = $1 ORDER BY sequence`
	rows, err := s.pool.Query(ctx, query, subject.String())
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var out []*models.Operation
	for rows.Next() {
		op, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row rowScanner) (*models.Operation, error) {
	var (
		op                          models.Operation
		opID, initiator, subject    string
		kind, state, failureReason  string
		externalRef, txHash, wdID   *string
		completedAt                 *time.Time
	)
	err := row.Scan(
		&opID, &kind, &initiator, &subject,
		&op.AmountSats, &op.TokenAmount, &op.SourceAmount, &op.DestAmount, &op.SourceSymbol, &op.DestSymbol,
		&externalRef, &op.KeyClaimed, &txHash, &op.BTCAddress, &wdID,
		&state, &failureReason, &op.Anomaly, &op.AnomalyNote,
		&op.Sequence, &op.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if op.ID, err = id.ParseOperationID(opID); err != nil {
		return nil, fmt.Errorf("corrupt operation id %q: %w", opID, err)
	}
	op.Kind = models.OperationKind(kind)
	op.Initiator = id.Address(initiator)
	op.Subject = id.Address(subject)
	op.State = models.OperationState(state)
	op.FailureReason = dErrors.Code(failureReason)
	if externalRef != nil {
		op.ExternalRef = *externalRef
	}
	if txHash != nil && *txHash != "" {
		if op.BTCTxHash, err = id.ParseTxHash(*txHash); err != nil {
			return nil, fmt.Errorf("corrupt tx hash %q: %w", *txHash, err)
		}
	}
	if wdID != nil && *wdID != "" {
		if op.WithdrawalID, err = id.ParseWithdrawalID(*wdID); err != nil {
			return nil, fmt.Errorf("corrupt withdrawal id %q: %w", *wdID, err)
		}
	}
	if completedAt != nil {
		op.CompletedAt = *completedAt
	}
	return &op, nil
}

// claimedRef persists the external ref only once claimed, so the unique
// index never blocks a retry of an operation that failed pre-claim. The
// request's ref is still recoverable from btc_tx_hash or the audit trail.
func claimedRef(op *models.Operation) *string {
	if !op.KeyClaimed {
		return nil
	}
	return nullable(op.ExternalRef)
}

func nullable(s string) *string {
	if s == "" || s == zeroTxHash {
		return nil
	}
	return &s
}

func withdrawalOrNil(w id.WithdrawalID) *string {
	if w.IsNil() {
		return nil
	}
	s := w.String()
	return &s
}

func nullTime(op *models.Operation) *time.Time {
	if op.CompletedAt.IsZero() {
		return nil
	}
	t := op.CompletedAt
	return &t
}

var zeroTxHash = id.TxHash{}.String()
