package store

import (
	"context"
	"sync"

	"istsi/internal/reserve/models"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

var (
	// ErrDepositNotFound keeps store-level lookups consistent.
	ErrDepositNotFound = dErrors.New(dErrors.CodeInvalidOperationState, "deposit record not found")
	// ErrWithdrawalNotFound is returned for unknown withdrawal ids.
	ErrWithdrawalNotFound = dErrors.New(dErrors.CodeNotFound, "withdrawal record not found")
)

// InMemoryStore owns the reserve manager's state behind one mutex so every
// check-and-mutate entry point is atomic. First writer of a tx hash wins;
// that is the system's double-spend-into-mint guard.
type InMemoryStore struct {
	mu          sync.RWMutex
	state       models.ReserveState
	deposits    map[id.TxHash]*models.DepositRecord
	withdrawals map[id.WithdrawalID]*models.WithdrawalRecord
}

func NewInMemory(minimumRatioBPS int64) *InMemoryStore {
	return &InMemoryStore{
		state:       models.ReserveState{MinimumRatioBPS: minimumRatioBPS},
		deposits:    make(map[id.TxHash]*models.DepositRecord),
		withdrawals: make(map[id.WithdrawalID]*models.WithdrawalRecord),
	}
}

// State returns a copy of the aggregate snapshot.
func (s *InMemoryStore) State(_ context.Context) (models.ReserveState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

// GetDeposit returns a copy of the deposit record, or nil when absent.
func (s *InMemoryStore) GetDeposit(_ context.Context, hash id.TxHash) (*models.DepositRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.deposits[hash]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// PutDepositIfAbsent inserts the record unless its tx hash already exists.
// Returns false without mutating when the hash is taken.
func (s *InMemoryStore) PutDepositIfAbsent(_ context.Context, rec *models.DepositRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.deposits[rec.TxHash]; exists {
		return false, nil
	}
	cp := *rec
	s.deposits[rec.TxHash] = &cp
	return true, nil
}

// MarkDepositProcessed flips the processed flag and credits reserves in one
// critical section. fn validates the record before the mutation lands.
func (s *InMemoryStore) MarkDepositProcessed(_ context.Context, hash id.TxHash, fn func(*models.DepositRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.deposits[hash]
	if !ok {
		return ErrDepositNotFound
	}
	cp := *rec
	if err := fn(&cp); err != nil {
		return err
	}
	*rec = cp
	s.state.TotalReserves += rec.Amount
	return nil
}

// AdjustIssued applies delta to total issued under the lock, re-verifying
// the ratio floor for increases. The advisory CanIssue read can go stale
// between check and mutate; this is the authoritative check.
func (s *InMemoryStore) AdjustIssued(_ context.Context, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newIssued := s.state.TotalIssued + delta
	if newIssued < 0 {
		return dErrors.New(dErrors.CodeInvalidOperationState, "burn exceeds issued supply")
	}
	if delta > 0 && newIssued > 0 {
		if s.state.TotalReserves*10000/newIssued < s.state.MinimumRatioBPS {
			return dErrors.New(dErrors.CodeReserveRatioTooLow, "issuance would break the reserve ratio floor")
		}
	}
	s.state.TotalIssued = newIssued
	return nil
}

// DebitReserves reduces total reserves for a settled withdrawal.
func (s *InMemoryStore) DebitReserves(_ context.Context, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 || amount > s.state.TotalReserves {
		return dErrors.New(dErrors.CodeInvalidOperationState, "reserve debit out of range")
	}
	s.state.TotalReserves -= amount
	return nil
}

// PutWithdrawal stores a new withdrawal record.
func (s *InMemoryStore) PutWithdrawal(_ context.Context, rec *models.WithdrawalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.withdrawals[rec.ID] = &cp
	return nil
}

// GetWithdrawal returns a copy of the withdrawal record.
func (s *InMemoryStore) GetWithdrawal(_ context.Context, wid id.WithdrawalID) (*models.WithdrawalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.withdrawals[wid]
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	cp := *rec
	return &cp, nil
}

// UpdateWithdrawal applies fn to the stored record atomically.
func (s *InMemoryStore) UpdateWithdrawal(_ context.Context, wid id.WithdrawalID, fn func(*models.WithdrawalRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.withdrawals[wid]
	if !ok {
		return ErrWithdrawalNotFound
	}
	cp := *rec
	if err := fn(&cp); err != nil {
		return err
	}
	*rec = cp
	return nil
}
