package service

import (
	"context"
	"fmt"

	"istsi/internal/integration/models"
	kycModels "istsi/internal/kyc/models"
	dErrors "istsi/pkg/domain-errors"
)

// ProcessBitcoinDeposit runs the deposit protocol:
//
//	Created -> ComplianceVerified -> ReserveValidated -> Settled
//
// Compliance always comes first; the reserve registration is the dedup
// guard; minting and issuance bookkeeping close the operation. After the
// reserve has been credited there is no rollback, only anomaly flags.
func (s *Service) ProcessBitcoinDeposit(ctx context.Context, req DepositRequest) (models.Result, error) {
	if req.AmountSats <= 0 {
		return models.Result{}, dErrors.New(dErrors.CodeInvalidAmount, "deposit amount must be positive")
	}
	if req.TxHash.IsNil() {
		return models.Result{}, dErrors.New(dErrors.CodeBadRequest, "btc tx hash is required")
	}
	if req.Subject.IsNil() || req.Initiator.IsNil() {
		return models.Result{}, dErrors.New(dErrors.CodeBadRequest, "initiator and subject are required")
	}

	// Idempotent re-invocation: if a prior operation consumed this tx hash,
	// return its result instead of re-executing anything.
	ref := req.TxHash.String()
	if existing, err := s.store.GetByExternalRef(ctx, ref); err != nil {
		return models.Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check for existing operation")
	} else if existing != nil {
		return models.ResultOf(existing), nil
	}

	op, err := s.newOperation(ctx, models.KindBitcoinDeposit, req.Initiator, req.Subject, ref)
	if err != nil {
		return models.Result{}, err
	}
	op.AmountSats = req.AmountSats
	op.BTCTxHash = req.TxHash

	if result, rejected := s.rejectIfPaused(ctx, op); rejected {
		return result, nil
	}

	// Compliance first: approval and the limit-recording side effect happen
	// in the same step so a concurrent operation for the same user cannot
	// double-spend the limit window.
	approved, err := s.registry.IsApproved(ctx, req.Subject, kycModels.OpDeposit, req.AmountSats)
	if err != nil {
		return s.fail(ctx, op, dErrors.CodeContractUnreachable, "", false), nil
	}
	if !approved {
		return s.fail(ctx, op, dErrors.CodeComplianceCheckFailed, "", false), nil
	}
	if err := s.registry.RecordTransaction(ctx, req.Subject, req.AmountSats); err != nil {
		// A limit race is a hard stop, not a retry.
		return s.fail(ctx, op, dErrors.CodeOf(err), "", false), nil
	}
	if err := s.advance(ctx, op, models.StateComplianceVerified, func(stored *models.Operation) {
		stored.AmountSats = req.AmountSats
		stored.BTCTxHash = req.TxHash
	}); err != nil {
		return s.fail(ctx, op, dErrors.CodeOf(err), "", false), nil
	}

	// Reserve registration is the double-spend-into-mint guard and must
	// precede any token minting. It is also the write that consumes the tx
	// hash, so the operation claims the ref immediately: whatever fails from
	// here, a re-submission gets this record back instead of burning another
	// slice of the subject's compliance window.
	err = s.reserve.RegisterBitcoinDeposit(ctx, req.TxHash, req.AmountSats, req.Confirmations, req.Subject, req.BlockHeight)
	if err != nil {
		return s.fail(ctx, op, dErrors.CodeOf(err), "", false), nil
	}
	if err := s.claimExternalRef(ctx, op); err != nil {
		note := fmt.Sprintf("deposit registered but ref claim not recorded: %v", err)
		return s.fail(ctx, op, dErrors.CodeOf(err), note, true), nil
	}
	if err := s.reserve.ProcessBitcoinDeposit(ctx, req.TxHash); err != nil {
		// The registration already landed. This needs operator attention
		// rather than a blind client retry.
		note := fmt.Sprintf("deposit registered but not processed: %v", err)
		return s.fail(ctx, op, dErrors.CodeOf(err), note, true), nil
	}
	if err := s.advance(ctx, op, models.StateReserveValidated, nil); err != nil {
		return s.fail(ctx, op, dErrors.CodeOf(err), "state update failed after reserve credit", true), nil
	}

	// Settlement: mint, then issuance bookkeeping. Minting assumes the
	// deposit was already marked processed; the order is fixed.
	tokenAmount := req.AmountSats * s.tokenUnitsPerSat
	ledger := s.ledgers[s.primarySymbol]
	if err := ledger.MintWithLink(ctx, s.routerAddr, req.Subject, tokenAmount, ref, op.CorrelationID()); err != nil {
		note := fmt.Sprintf("reserve credited but mint failed: %v", err)
		return s.fail(ctx, op, dErrors.CodeOf(err), note, true), nil
	}

	// Issuance bookkeeping counts satoshi-equivalents so the reserve ratio
	// compares like with like whatever the token granularity is.
	var anomalyNote string
	if err := s.reserve.RecordIssuance(ctx, req.AmountSats); err != nil {
		// Tokens are already minted and cannot be un-minted here; settle
		// with the anomaly recorded for out-of-band reconciliation.
		anomalyNote = fmt.Sprintf("minted but issuance bookkeeping failed: %v", err)
	}

	result := s.settle(ctx, op, anomalyNote, func(stored *models.Operation) {
		stored.TokenAmount = tokenAmount
	})
	s.updateReserveGauges(ctx)
	return result, nil
}

// updateReserveGauges refreshes the reserve metrics after mutations.
func (s *Service) updateReserveGauges(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	state, err := s.reserve.State(ctx)
	if err != nil {
		return
	}
	s.metrics.TotalReserves.Set(float64(state.TotalReserves))
	s.metrics.TotalIssued.Set(float64(state.TotalIssued))
	s.metrics.ReserveRatioBPS.Set(float64(state.RatioBPS()))
}
