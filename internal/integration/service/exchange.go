package service

import (
	"context"
	"fmt"

	"istsi/internal/integration/models"
	"istsi/internal/integration/rates"
	kycModels "istsi/internal/kyc/models"
	dErrors "istsi/pkg/domain-errors"
)

// ProcessCrossTokenExchange runs the exchange protocol: burn on the source
// ledger, mint on the destination ledger at the router's rate. The reserve
// manager is not involved; both tokens stay inside the platform. The source
// burn is the point of no return.
func (s *Service) ProcessCrossTokenExchange(ctx context.Context, req ExchangeRequest) (models.Result, error) {
	if req.SourceAmount <= 0 {
		return models.Result{}, dErrors.New(dErrors.CodeInvalidAmount, "exchange amount must be positive")
	}
	if req.ClientRef == "" {
		return models.Result{}, dErrors.New(dErrors.CodeBadRequest, "client reference is required")
	}
	if req.Subject.IsNil() || req.Initiator.IsNil() {
		return models.Result{}, dErrors.New(dErrors.CodeBadRequest, "initiator and subject are required")
	}
	if req.SourceSymbol == req.DestSymbol {
		return models.Result{}, dErrors.New(dErrors.CodeBadRequest, "source and destination tokens must differ")
	}
	source, ok := s.ledgers[req.SourceSymbol]
	if !ok {
		return models.Result{}, dErrors.Newf(dErrors.CodeBadRequest, "unknown token %s", req.SourceSymbol)
	}
	dest, ok := s.ledgers[req.DestSymbol]
	if !ok {
		return models.Result{}, dErrors.Newf(dErrors.CodeBadRequest, "unknown token %s", req.DestSymbol)
	}
	if s.rates == nil {
		return models.Result{}, dErrors.New(dErrors.CodeInternal, "no rate provider configured")
	}

	if existing, err := s.store.GetByExternalRef(ctx, req.ClientRef); err != nil {
		return models.Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check for existing operation")
	} else if existing != nil {
		return models.ResultOf(existing), nil
	}

	// The rate is resolved once, up front, and used for the whole run.
	rate, err := s.rates.Rate(ctx, req.SourceSymbol, req.DestSymbol)
	if err != nil {
		return models.Result{}, err
	}
	destAmount := rates.Convert(req.SourceAmount, rate)
	if destAmount <= 0 {
		return models.Result{}, dErrors.New(dErrors.CodeInvalidAmount, "exchange amount too small to convert")
	}

	op, err := s.newOperation(ctx, models.KindCrossTokenExchange, req.Initiator, req.Subject, req.ClientRef)
	if err != nil {
		return models.Result{}, err
	}
	op.SourceAmount = req.SourceAmount
	op.DestAmount = destAmount
	op.SourceSymbol = req.SourceSymbol
	op.DestSymbol = req.DestSymbol

	if result, rejected := s.rejectIfPaused(ctx, op); rejected {
		return result, nil
	}

	// Both legs count against the subject's window: the source burn and the
	// destination mint each move value.
	for _, amount := range []int64{req.SourceAmount, destAmount} {
		approved, err := s.registry.IsApproved(ctx, req.Subject, kycModels.OpExchange, amount)
		if err != nil {
			return s.fail(ctx, op, dErrors.CodeContractUnreachable, "", false), nil
		}
		if !approved {
			return s.fail(ctx, op, dErrors.CodeComplianceCheckFailed, "", false), nil
		}
	}
	for _, amount := range []int64{req.SourceAmount, destAmount} {
		if err := s.registry.RecordTransaction(ctx, req.Subject, amount); err != nil {
			return s.fail(ctx, op, dErrors.CodeOf(err), "", false), nil
		}
	}
	if err := s.advance(ctx, op, models.StateComplianceVerified, func(stored *models.Operation) {
		stored.SourceAmount = req.SourceAmount
		stored.DestAmount = destAmount
		stored.SourceSymbol = req.SourceSymbol
		stored.DestSymbol = req.DestSymbol
	}); err != nil {
		return s.fail(ctx, op, dErrors.CodeOf(err), "", false), nil
	}

	balance, err := source.BalanceOf(ctx, req.Subject)
	if err != nil {
		return s.fail(ctx, op, dErrors.CodeContractUnreachable, "", false), nil
	}
	if balance < req.SourceAmount {
		return s.fail(ctx, op, dErrors.CodeInsufficientBalance, "", false), nil
	}

	// The source burn consumes the client reference.
	if _, err := source.BurnForWithdrawal(ctx, s.routerAddr, req.Subject, req.SourceAmount, req.ClientRef, op.CorrelationID()); err != nil {
		return s.fail(ctx, op, dErrors.CodeOf(err), "", false), nil
	}
	if err := s.claimExternalRef(ctx, op); err != nil {
		note := fmt.Sprintf("%s burned but ref claim not recorded: %v", req.SourceSymbol, err)
		return s.fail(ctx, op, dErrors.CodeOf(err), note, true), nil
	}
	if err := s.advance(ctx, op, models.StateReserveValidated, nil); err != nil {
		return s.fail(ctx, op, dErrors.CodeOf(err), "state update failed after source burn", true), nil
	}

	if err := dest.MintWithLink(ctx, s.routerAddr, req.Subject, destAmount, req.ClientRef, op.CorrelationID()); err != nil {
		// Source tokens burned, destination never minted. The subject is
		// short the source amount until a compensating mint.
		note := fmt.Sprintf("%s burned but %s mint failed: %v", req.SourceSymbol, req.DestSymbol, err)
		return s.fail(ctx, op, dErrors.CodeOf(err), note, true), nil
	}

	return s.settle(ctx, op, "", nil), nil
}
