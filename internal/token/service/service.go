// Package service implements the iSTSi fungible token ledger: balances,
// expiring allowances, transfer primitives, and the integration hooks the
// router depends on for mint and burn with external-reference links.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	kycModels "istsi/internal/kyc/models"
	"istsi/internal/platform/clock"
	"istsi/internal/token/models"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"

	"github.com/google/uuid"
)

// Store persists balances, allowances, and external-ref links.
type Store interface {
	Balance(ctx context.Context, addr id.Address) (int64, error)
	TotalSupply(ctx context.Context) (int64, error)
	Credit(ctx context.Context, addr id.Address, amount int64) error
	Debit(ctx context.Context, addr id.Address, amount int64) error
	Move(ctx context.Context, from, to id.Address, amount int64) error
	GetAllowance(ctx context.Context, owner, spender id.Address) (models.Allowance, error)
	SetAllowance(ctx context.Context, owner, spender id.Address, allowance models.Allowance) error
	SpendAllowance(ctx context.Context, owner, spender, to id.Address, amount int64, now time.Time) error
	GetLink(ctx context.Context, externalRef string) (*models.ExternalLink, error)
	CreditWithLink(ctx context.Context, addr id.Address, amount int64, link *models.ExternalLink) error
	DebitWithLink(ctx context.Context, addr id.Address, amount int64, link *models.ExternalLink) error
}

// ComplianceChecker is the ledger's one outward dependency: the KYC
// registry consulted by compliance-gated transfers.
type ComplianceChecker interface {
	IsApproved(ctx context.Context, addr id.Address, op kycModels.OpCode, amount int64) (bool, error)
}

// Service is the token ledger. Mint and burn hooks are restricted to the
// router identity (or admin); standard transfers are open to any holder.
type Service struct {
	store    Store
	router   id.Address
	admin    id.Address
	registry ComplianceChecker
	clock    clock.Clock
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithComplianceChecker wires the KYC registry for ComplianceTransfer.
func WithComplianceChecker(registry ComplianceChecker) Option {
	return func(s *Service) { s.registry = registry }
}

func New(store Store, router, admin id.Address, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if router.IsNil() || admin.IsNil() {
		return nil, fmt.Errorf("router and admin addresses are required")
	}

	svc := &Service{
		store:  store,
		router: router,
		admin:  admin,
		clock:  clock.System{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// BalanceOf returns the balance for an address.
func (s *Service) BalanceOf(ctx context.Context, addr id.Address) (int64, error) {
	return s.store.Balance(ctx, addr)
}

// TotalSupply returns the current supply.
func (s *Service) TotalSupply(ctx context.Context) (int64, error) {
	return s.store.TotalSupply(ctx)
}

// Transfer moves amount between holders.
func (s *Service) Transfer(ctx context.Context, from, to id.Address, amount int64) error {
	if err := validateTransfer(from, to, amount); err != nil {
		return err
	}
	return s.store.Move(ctx, from, to, amount)
}

// Approve grants spender an expiring allowance over the caller's balance.
func (s *Service) Approve(ctx context.Context, owner, spender id.Address, amount int64, expiration time.Time) error {
	if owner.IsNil() || spender.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "owner and spender are required")
	}
	if amount < 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "allowance must not be negative")
	}
	return s.store.SetAllowance(ctx, owner, spender, models.Allowance{Amount: amount, Expiration: expiration})
}

// Allowance returns the remaining allowance from owner to spender at the
// current time.
func (s *Service) Allowance(ctx context.Context, owner, spender id.Address) (int64, error) {
	allowance, err := s.store.GetAllowance(ctx, owner, spender)
	if err != nil {
		return 0, err
	}
	return allowance.Remaining(s.clock.Now()), nil
}

// TransferFrom spends an allowance. The allowance check, balance check, and
// move are one atomic store operation.
func (s *Service) TransferFrom(ctx context.Context, spender, owner, to id.Address, amount int64) error {
	if err := validateTransfer(owner, to, amount); err != nil {
		return err
	}
	if spender.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "spender is required")
	}
	return s.store.SpendAllowance(ctx, owner, spender, to, amount, s.clock.Now())
}

// ComplianceTransfer checks the KYC registry before delegating to the
// standard transfer path. A registry error fails closed: the transfer is
// rejected, never waved through.
func (s *Service) ComplianceTransfer(ctx context.Context, from, to id.Address, amount int64) error {
	if err := validateTransfer(from, to, amount); err != nil {
		return err
	}
	if s.registry == nil {
		return dErrors.New(dErrors.CodeComplianceCheckFailed, "compliance registry not configured")
	}

	approved, err := s.registry.IsApproved(ctx, from, kycModels.OpTransfer, amount)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "compliance registry unreachable, failing closed",
				"error", err,
				"from", from.String(),
			)
		}
		return dErrors.Wrap(err, dErrors.CodeComplianceCheckFailed, "compliance registry unreachable")
	}
	if !approved {
		return dErrors.New(dErrors.CodeComplianceCheckFailed, "sender is not approved for this transfer")
	}
	return s.store.Move(ctx, from, to, amount)
}

// MintWithLink mints to recipient and durably links the external reference
// for idempotent lookup. Router or admin only.
func (s *Service) MintWithLink(ctx context.Context, caller, recipient id.Address, amount int64, externalRef, correlationID string) error {
	if err := s.requireRouter(caller); err != nil {
		return err
	}
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "mint amount must be positive")
	}
	if externalRef == "" {
		return dErrors.New(dErrors.CodeBadRequest, "external ref is required")
	}

	link := &models.ExternalLink{
		ExternalRef:   externalRef,
		Direction:     models.LinkMint,
		Account:       recipient,
		Amount:        amount,
		CorrelationID: correlationID,
		LedgerRef:     uuid.NewString(),
		CreatedAt:     s.clock.Now(),
	}
	return s.store.CreditWithLink(ctx, recipient, amount, link)
}

// BurnForWithdrawal burns from the holder and links the external reference
// symmetrically to mint. Returns the ledger-side withdrawal reference.
// Router or admin only.
func (s *Service) BurnForWithdrawal(ctx context.Context, caller, from id.Address, amount int64, externalRef, correlationID string) (string, error) {
	if err := s.requireRouter(caller); err != nil {
		return "", err
	}
	if amount <= 0 {
		return "", dErrors.New(dErrors.CodeInvalidAmount, "burn amount must be positive")
	}
	if externalRef == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "external ref is required")
	}

	link := &models.ExternalLink{
		ExternalRef:   externalRef,
		Direction:     models.LinkBurn,
		Account:       from,
		Amount:        amount,
		CorrelationID: correlationID,
		LedgerRef:     uuid.NewString(),
		CreatedAt:     s.clock.Now(),
	}
	if err := s.store.DebitWithLink(ctx, from, amount, link); err != nil {
		return "", err
	}
	return link.LedgerRef, nil
}

// LookupLink returns the link for an external reference, or nil when the
// reference was never settled. The router uses this for idempotent
// re-invocation.
func (s *Service) LookupLink(ctx context.Context, externalRef string) (*models.ExternalLink, error) {
	return s.store.GetLink(ctx, externalRef)
}

func (s *Service) requireRouter(caller id.Address) error {
	if caller != s.router && caller != s.admin {
		return dErrors.New(dErrors.CodeUnauthorized, "caller may not mint or burn")
	}
	return nil
}

func validateTransfer(from, to id.Address, amount int64) error {
	if from.IsNil() || to.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "from and to addresses are required")
	}
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}
	return nil
}
