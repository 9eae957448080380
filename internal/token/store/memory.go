package store

import (
	"context"
	"sync"
	"time"

	"istsi/internal/token/models"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

type allowanceKey struct {
	owner   id.Address
	spender id.Address
}

// InMemoryStore owns ledger state behind one mutex so balance checks and
// debits stay atomic. The sum of balances always equals total supply.
type InMemoryStore struct {
	mu          sync.RWMutex
	balances    map[id.Address]int64
	allowances  map[allowanceKey]models.Allowance
	links       map[string]*models.ExternalLink
	totalSupply int64
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		balances:   make(map[id.Address]int64),
		allowances: make(map[allowanceKey]models.Allowance),
		links:      make(map[string]*models.ExternalLink),
	}
}

// Balance returns the balance for an address; unknown addresses hold zero.
func (s *InMemoryStore) Balance(_ context.Context, addr id.Address) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[addr], nil
}

// TotalSupply returns the current supply.
func (s *InMemoryStore) TotalSupply(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalSupply, nil
}

// Credit mints amount to an address, growing supply.
func (s *InMemoryStore) Credit(_ context.Context, addr id.Address, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[addr] += amount
	s.totalSupply += amount
	return nil
}

// Debit burns amount from an address, shrinking supply. Fails without
// mutating when the balance is short.
func (s *InMemoryStore) Debit(_ context.Context, addr id.Address, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances[addr] < amount {
		return dErrors.New(dErrors.CodeInsufficientBalance, "balance below requested amount")
	}
	s.balances[addr] -= amount
	s.totalSupply -= amount
	return nil
}

// Move transfers amount between addresses, supply unchanged.
func (s *InMemoryStore) Move(_ context.Context, from, to id.Address, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances[from] < amount {
		return dErrors.New(dErrors.CodeInsufficientBalance, "balance below requested amount")
	}
	s.balances[from] -= amount
	s.balances[to] += amount
	return nil
}

// GetAllowance returns the allowance from owner to spender.
func (s *InMemoryStore) GetAllowance(_ context.Context, owner, spender id.Address) (models.Allowance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowances[allowanceKey{owner, spender}], nil
}

// SetAllowance replaces the allowance from owner to spender.
func (s *InMemoryStore) SetAllowance(_ context.Context, owner, spender id.Address, allowance models.Allowance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowances[allowanceKey{owner, spender}] = allowance
	return nil
}

// SpendAllowance atomically checks the remaining allowance (honoring the
// expiration watermark) and moves amount from owner to recipient.
func (s *InMemoryStore) SpendAllowance(_ context.Context, owner, spender, to id.Address, amount int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := allowanceKey{owner, spender}
	allowance := s.allowances[key]
	if allowance.Remaining(now) < amount {
		return dErrors.New(dErrors.CodeUnauthorized, "allowance exhausted or expired")
	}
	if s.balances[owner] < amount {
		return dErrors.New(dErrors.CodeInsufficientBalance, "balance below requested amount")
	}
	allowance.Amount -= amount
	s.allowances[key] = allowance
	s.balances[owner] -= amount
	s.balances[to] += amount
	return nil
}

// GetLink returns the external-ref link, or nil when absent.
func (s *InMemoryStore) GetLink(_ context.Context, externalRef string) (*models.ExternalLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[externalRef]
	if !ok {
		return nil, nil
	}
	cp := *link
	return &cp, nil
}

// CreditWithLink atomically mints and records the external-ref link. The
// second writer of a reference is rejected without mutating balances.
func (s *InMemoryStore) CreditWithLink(_ context.Context, addr id.Address, amount int64, link *models.ExternalLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[link.ExternalRef]; exists {
		return dErrors.Newf(dErrors.CodeDuplicateOperation, "external ref %s already linked", link.ExternalRef)
	}
	cp := *link
	s.links[link.ExternalRef] = &cp
	s.balances[addr] += amount
	s.totalSupply += amount
	return nil
}

// DebitWithLink atomically burns and records the external-ref link.
func (s *InMemoryStore) DebitWithLink(_ context.Context, addr id.Address, amount int64, link *models.ExternalLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[link.ExternalRef]; exists {
		return dErrors.Newf(dErrors.CodeDuplicateOperation, "external ref %s already linked", link.ExternalRef)
	}
	if s.balances[addr] < amount {
		return dErrors.New(dErrors.CodeInsufficientBalance, "balance below requested amount")
	}
	cp := *link
	s.links[link.ExternalRef] = &cp
	s.balances[addr] -= amount
	s.totalSupply -= amount
	return nil
}
