package store

import (
	"context"
	"sync"

	"istsi/internal/kyc/models"
	id "istsi/pkg/domain"
)

// InMemoryStore holds compliance records and tier limits behind a mutex.
// Records are never deleted; deactivation flips IsActive only.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.Address]*models.ComplianceRecord
	limits  map[models.Tier]models.TierLimits
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[id.Address]*models.ComplianceRecord),
		limits:  models.DefaultTierLimits(),
	}
}

// Get returns a copy of the record, or nil when the address is unregistered.
func (s *InMemoryStore) Get(_ context.Context, addr id.Address) (*models.ComplianceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[addr]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// Put inserts or replaces the record for its address.
func (s *InMemoryStore) Put(_ context.Context, rec *models.ComplianceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.records[rec.Address] = &cp
	return nil
}

// Update applies fn to the stored record under the write lock so check and
// mutate stay atomic. fn receives the live record; returning an error leaves
// it untouched only if fn did not mutate before failing, which is why the
// service copies first and writes back on success.
func (s *InMemoryStore) Update(_ context.Context, addr id.Address, fn func(*models.ComplianceRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[addr]
	if !ok {
		return ErrRecordNotFound
	}
	cp := *rec
	if err := fn(&cp); err != nil {
		return err
	}
	*rec = cp
	return nil
}

// Limits returns the limits for a tier.
func (s *InMemoryStore) Limits(_ context.Context, tier models.Tier) (models.TierLimits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limits, ok := s.limits[tier]
	if !ok {
		return models.TierLimits{}, ErrTierNotConfigured
	}
	return limits, nil
}

// SetLimits replaces the limits for a tier.
func (s *InMemoryStore) SetLimits(_ context.Context, tier models.Tier, limits models.TierLimits) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.limits[tier] = limits
	return nil
}
