// Package service implements the reserve manager: aggregate reserve totals,
// per-transaction deposit and withdrawal records, and the issuance ratio
// floor. All amounts are satoshis; callers convert token base units to
// their satoshi equivalent before crossing this boundary, so the ratio
// compares reserves and issuance in one unit.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"istsi/internal/audit"
	"istsi/internal/platform/clock"
	"istsi/internal/reserve/models"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// Store persists reserve state, deposit records, and withdrawal records.
type Store interface {
	State(ctx context.Context) (models.ReserveState, error)
	GetDeposit(ctx context.Context, hash id.TxHash) (*models.DepositRecord, error)
	PutDepositIfAbsent(ctx context.Context, rec *models.DepositRecord) (bool, error)
	MarkDepositProcessed(ctx context.Context, hash id.TxHash, fn func(*models.DepositRecord) error) error
	AdjustIssued(ctx context.Context, delta int64) error
	DebitReserves(ctx context.Context, amount int64) error
	PutWithdrawal(ctx context.Context, rec *models.WithdrawalRecord) error
	GetWithdrawal(ctx context.Context, wid id.WithdrawalID) (*models.WithdrawalRecord, error)
	UpdateWithdrawal(ctx context.Context, wid id.WithdrawalID, fn func(*models.WithdrawalRecord) error) error
}

// AuditPublisher emits audit events for reserve mutations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store            Store
	minConfirmations uint32
	clock            clock.Clock
	logger           *slog.Logger
	publisher        AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func New(store Store, minConfirmations uint32, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("reserve store is required")
	}

	svc := &Service{
		store:            store,
		minConfirmations: minConfirmations,
		clock:            clock.System{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RegisterBitcoinDeposit records an observed deposit. A tx hash may be
// registered at most once; the second writer gets DuplicateOperation. This
// check runs before any token minting can happen.
func (s *Service) RegisterBitcoinDeposit(ctx context.Context, hash id.TxHash, amount int64, confirmations uint32, user id.Address, blockHeight uint64) error {
	if hash.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "tx hash is required")
	}
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "deposit amount must be positive")
	}

	rec := &models.DepositRecord{
		TxHash:        hash,
		Amount:        amount,
		Confirmations: confirmations,
		BlockHeight:   blockHeight,
		User:          user,
		RegisteredAt:  s.clock.Now(),
	}
	inserted, err := s.store.PutDepositIfAbsent(ctx, rec)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store deposit record")
	}
	if !inserted {
		return dErrors.Newf(dErrors.CodeDuplicateOperation, "tx hash %s already registered", hash)
	}
	return nil
}

// ProcessBitcoinDeposit marks the record processed and credits reserves.
// Fails when the record is missing, already processed, or under-confirmed.
func (s *Service) ProcessBitcoinDeposit(ctx context.Context, hash id.TxHash) error {
	now := s.clock.Now()
	err := s.store.MarkDepositProcessed(ctx, hash, func(rec *models.DepositRecord) error {
		if rec.Processed {
			return dErrors.Newf(dErrors.CodeInvalidOperationState, "deposit %s already processed", hash)
		}
		if rec.Confirmations < s.minConfirmations {
			return dErrors.Newf(dErrors.CodeInvalidOperationState,
				"deposit %s has %d confirmations, need %d", hash, rec.Confirmations, s.minConfirmations)
		}
		rec.Processed = true
		rec.ProcessedAt = now
		return nil
	})
	return err
}

// CanIssue is a read-only projection of whether minting amount keeps the
// ratio at or above the floor. Advisory only; RecordIssuance re-checks.
func (s *Service) CanIssue(ctx context.Context, amount int64) (bool, error) {
	state, err := s.store.State(ctx)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load reserve state")
	}
	return state.CanIssue(amount), nil
}

// RecordIssuance adds to total issued, re-verifying the ratio invariant
// atomically. A prior CanIssue result is never trusted here.
func (s *Service) RecordIssuance(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "issuance amount must be positive")
	}
	return s.store.AdjustIssued(ctx, amount)
}

// RecordBurn subtracts from total issued after a confirmed burn.
func (s *Service) RecordBurn(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "burn amount must be positive")
	}
	return s.store.AdjustIssued(ctx, -amount)
}

// CreateWithdrawalRequest records intent to pay out Bitcoin. It does not
// move Bitcoin; the external settlement process completes the request. The
// caller confirms the burn before this point, so reserves and issuance
// bookkeeping are debited here.
func (s *Service) CreateWithdrawalRequest(ctx context.Context, user id.Address, amount int64, btcAddress string) (id.WithdrawalID, error) {
	if amount <= 0 {
		return id.WithdrawalID{}, dErrors.New(dErrors.CodeInvalidAmount, "withdrawal amount must be positive")
	}
	if !validBTCAddress(btcAddress) {
		return id.WithdrawalID{}, dErrors.Newf(dErrors.CodeBadRequest, "malformed btc address %q", btcAddress)
	}

	if err := s.store.DebitReserves(ctx, amount); err != nil {
		return id.WithdrawalID{}, err
	}

	rec := &models.WithdrawalRecord{
		ID:         id.NewWithdrawalID(),
		User:       user,
		Amount:     amount,
		BTCAddress: btcAddress,
		Status:     models.WithdrawalPending,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.store.PutWithdrawal(ctx, rec); err != nil {
		return id.WithdrawalID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store withdrawal record")
	}
	return rec.ID, nil
}

// CompleteWithdrawal is called by the external settlement process once the
// Bitcoin payout confirms.
func (s *Service) CompleteWithdrawal(ctx context.Context, wid id.WithdrawalID) error {
	return s.store.UpdateWithdrawal(ctx, wid, func(rec *models.WithdrawalRecord) error {
		if rec.Status != models.WithdrawalPending {
			return dErrors.Newf(dErrors.CodeInvalidOperationState, "withdrawal %s is %s", wid, rec.Status)
		}
		rec.Status = models.WithdrawalCompleted
		return nil
	})
}

// GetWithdrawal returns the withdrawal record for status queries.
func (s *Service) GetWithdrawal(ctx context.Context, wid id.WithdrawalID) (*models.WithdrawalRecord, error) {
	return s.store.GetWithdrawal(ctx, wid)
}

// GetDeposit returns the deposit record, or nil when unknown.
func (s *Service) GetDeposit(ctx context.Context, hash id.TxHash) (*models.DepositRecord, error) {
	return s.store.GetDeposit(ctx, hash)
}

// GenerateProofOfReserves snapshots the aggregate state for external
// publication. Pure read.
func (s *Service) GenerateProofOfReserves(ctx context.Context) (models.ProofOfReserves, error) {
	state, err := s.store.State(ctx)
	if err != nil {
		return models.ProofOfReserves{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load reserve state")
	}

	proof := models.ProofOfReserves{
		TotalReserves: state.TotalReserves,
		TotalIssued:   state.TotalIssued,
		RatioBPS:      state.RatioBPS(),
		Timestamp:     s.clock.Now(),
	}
	s.emit(ctx, audit.Event{
		Action: audit.ActionProofGenerated,
		Amount: proof.TotalReserves,
		Reason: fmt.Sprintf("issued %d ratio %d bps", proof.TotalIssued, proof.RatioBPS),
	})
	return proof, nil
}

// State exposes the aggregate snapshot for metrics and health reporting.
func (s *Service) State(ctx context.Context) (models.ReserveState, error) {
	return s.store.State(ctx)
}

// validBTCAddress applies a shallow shape check. Full address validation
// belongs to the external settlement process that actually pays out.
func validBTCAddress(addr string) bool {
	if len(addr) < 26 || len(addr) > 90 {
		return false
	}
	for _, r := range addr {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"action", event.Action,
		)
	}
}
