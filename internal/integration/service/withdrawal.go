package service

import (
	"context"
	"fmt"

	"istsi/internal/integration/models"
	kycModels "istsi/internal/kyc/models"
	dErrors "istsi/pkg/domain-errors"
)

// ProcessTokenWithdrawal runs the withdrawal protocol: burn tokens, then
// record the Bitcoin payout intent and release reserves. The burn is the
// point of no return; a failure to create the withdrawal request afterwards
// terminates the operation with an anomaly flag because the tokens are
// already gone.
func (s *Service) ProcessTokenWithdrawal(ctx context.Context, req WithdrawalRequest) (models.Result, error) {
	if req.TokenAmount <= 0 {
		return models.Result{}, dErrors.New(dErrors.CodeInvalidAmount, "withdrawal amount must be positive")
	}
	if req.TokenAmount%s.tokenUnitsPerSat != 0 {
		return models.Result{}, dErrors.New(dErrors.CodeInvalidAmount, "withdrawal amount must convert to whole satoshis")
	}
	if req.ClientRef == "" {
		return models.Result{}, dErrors.New(dErrors.CodeBadRequest, "client reference is required")
	}
	if req.BTCAddress == "" {
		return models.Result{}, dErrors.New(dErrors.CodeBadRequest, "btc payout address is required")
	}
	if req.Subject.IsNil() || req.Initiator.IsNil() {
		return models.Result{}, dErrors.New(dErrors.CodeBadRequest, "initiator and subject are required")
	}

	if existing, err := s.store.GetByExternalRef(ctx, req.ClientRef); err != nil {
		return models.Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check for existing operation")
	} else if existing != nil {
		return models.ResultOf(existing), nil
	}

	op, err := s.newOperation(ctx, models.KindTokenWithdrawal, req.Initiator, req.Subject, req.ClientRef)
	if err != nil {
		return models.Result{}, err
	}
	amountSats := req.TokenAmount / s.tokenUnitsPerSat
	op.TokenAmount = req.TokenAmount
	op.AmountSats = amountSats
	op.BTCAddress = req.BTCAddress

	if result, rejected := s.rejectIfPaused(ctx, op); rejected {
		return result, nil
	}

	// Compliance gates the Bitcoin-side value leaving the platform.
	approved, err := s.registry.IsApproved(ctx, req.Subject, kycModels.OpWithdraw, amountSats)
	if err != nil {
		return s.fail(ctx, op, dErrors.CodeContractUnreachable, "", false), nil
	}
	if !approved {
		return s.fail(ctx, op, dErrors.CodeComplianceCheckFailed, "", false), nil
	}
	if err := s.registry.RecordTransaction(ctx, req.Subject, amountSats); err != nil {
		return s.fail(ctx, op, dErrors.CodeOf(err), "", false), nil
	}
	if err := s.advance(ctx, op, models.StateComplianceVerified, func(stored *models.Operation) {
		stored.TokenAmount = req.TokenAmount
		stored.AmountSats = amountSats
		stored.BTCAddress = req.BTCAddress
	}); err != nil {
		return s.fail(ctx, op, dErrors.CodeOf(err), "", false), nil
	}

	// Balance pre-check: a plain insufficient balance should fail before any
	// mutation so the client can top up and retry under a fresh reference.
	ledger := s.ledgers[s.primarySymbol]
	balance, err := ledger.BalanceOf(ctx, req.Subject)
	if err != nil {
		return s.fail(ctx, op, dErrors.CodeContractUnreachable, "", false), nil
	}
	if balance < req.TokenAmount {
		return s.fail(ctx, op, dErrors.CodeInsufficientBalance, "", false), nil
	}

	// The burn consumes the client reference: from here the operation owns it
	// and any retry resolves to this record.
	ledgerRef, err := ledger.BurnForWithdrawal(ctx, s.routerAddr, req.Subject, req.TokenAmount, req.ClientRef, op.CorrelationID())
	if err != nil {
		return s.fail(ctx, op, dErrors.CodeOf(err), "", false), nil
	}
	if err := s.claimExternalRef(ctx, op); err != nil {
		note := fmt.Sprintf("tokens burned (ledger ref %s) but ref claim not recorded: %v", ledgerRef, err)
		return s.fail(ctx, op, dErrors.CodeOf(err), note, true), nil
	}
	if err := s.advance(ctx, op, models.StateReserveValidated, nil); err != nil {
		return s.fail(ctx, op, dErrors.CodeOf(err), "state update failed after burn", true), nil
	}

	withdrawalID, err := s.reserve.CreateWithdrawalRequest(ctx, req.Subject, amountSats, req.BTCAddress)
	if err != nil {
		// Tokens burned, no payout intent recorded. Manual credit or replay
		// is required; the operation cannot self-heal.
		note := fmt.Sprintf("tokens burned (ledger ref %s) but withdrawal request failed: %v", ledgerRef, err)
		return s.fail(ctx, op, dErrors.CodeOf(err), note, true), nil
	}

	var anomalyNote string
	if err := s.reserve.RecordBurn(ctx, amountSats); err != nil {
		// The payout intent exists; only the issued-supply counter is stale.
		anomalyNote = fmt.Sprintf("withdrawal %s created but burn bookkeeping failed: %v", withdrawalID, err)
	}

	result := s.settle(ctx, op, anomalyNote, func(stored *models.Operation) {
		stored.WithdrawalID = withdrawalID
	})
	s.updateReserveGauges(ctx)
	return result, nil
}
