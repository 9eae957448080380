package store

import (
	"context"
	"sync"

	"istsi/internal/integration/models"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// ErrOperationNotFound keeps lookups consistent across implementations.
var ErrOperationNotFound = dErrors.New(dErrors.CodeNotFound, "operation not found")

// InMemoryStore retains every operation indefinitely; operations are audit
// records and are never deleted.
type InMemoryStore struct {
	mu        sync.RWMutex
	ops       map[id.OperationID]*models.Operation
	byExtRef  map[string]id.OperationID
	bySubject map[id.Address][]id.OperationID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		ops:       make(map[id.OperationID]*models.Operation),
		byExtRef:  make(map[string]id.OperationID),
		bySubject: make(map[id.Address][]id.OperationID),
	}
}

// Put inserts a new operation. External refs are indexed on claim, not here.
func (s *InMemoryStore) Put(_ context.Context, op *models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *op
	s.ops[op.ID] = &cp
	s.bySubject[op.Subject] = append(s.bySubject[op.Subject], op.ID)
	return nil
}

// Get returns a copy of the operation.
func (s *InMemoryStore) Get(_ context.Context, opID id.OperationID) (*models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.ops[opID]
	if !ok {
		return nil, ErrOperationNotFound
	}
	cp := *op
	return &cp, nil
}

// GetByExternalRef returns the operation that claimed the reference, or nil
// when no operation got far enough to claim it. Operations that failed
// before their unique first write never block a retry.
func (s *InMemoryStore) GetByExternalRef(_ context.Context, ref string) (*models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opID, ok := s.byExtRef[ref]
	if !ok {
		return nil, nil
	}
	cp := *s.ops[opID]
	return &cp, nil
}

// Update applies fn to the stored operation atomically. Terminal operations
// are immutable; fn must enforce that through CanTransition.
func (s *InMemoryStore) Update(_ context.Context, opID id.OperationID, fn func(*models.Operation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[opID]
	if !ok {
		return ErrOperationNotFound
	}
	cp := *op
	if err := fn(&cp); err != nil {
		return err
	}
	*op = cp
	if op.KeyClaimed && op.ExternalRef != "" {
		s.byExtRef[op.ExternalRef] = op.ID
	}
	return nil
}

// ListBySubject returns all operations affecting an end-user address, in
// insertion order.
func (s *InMemoryStore) ListBySubject(_ context.Context, subject id.Address) ([]*models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySubject[subject]
	out := make([]*models.Operation, 0, len(ids))
	for _, opID := range ids {
		cp := *s.ops[opID]
		out = append(out, &cp)
	}
	return out, nil
}
