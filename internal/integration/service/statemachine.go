package service

import (
	"context"

	"istsi/internal/audit"
	"istsi/internal/integration/models"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// newOperation allocates an operation record in Created and persists it.
// Every composite entry point starts here; the record survives whatever
// happens next, as the audit trail requires.
func (s *Service) newOperation(ctx context.Context, kind models.OperationKind, initiator, subject id.Address, externalRef string) (*models.Operation, error) {
	op := &models.Operation{
		ID:          id.NewOperationID(),
		Kind:        kind,
		Initiator:   initiator,
		Subject:     subject,
		ExternalRef: externalRef,
		State:       models.StateCreated,
		Sequence:    s.nextSequence(),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.Put(ctx, op); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record operation")
	}
	if s.metrics != nil {
		s.metrics.OperationsStarted.WithLabelValues(string(kind)).Inc()
	}
	s.emitTransition(ctx, op, models.StateCreated, "")
	return op, nil
}

// advance moves the operation forward one protocol stage. fn mutates
// operation fields gathered during the stage (amounts, withdrawal id, claim
// flags) inside the same store update.
func (s *Service) advance(ctx context.Context, op *models.Operation, next models.OperationState, fn func(*models.Operation)) error {
	err := s.store.Update(ctx, op.ID, func(stored *models.Operation) error {
		if !stored.State.CanTransition(next) {
			return dErrors.Newf(dErrors.CodeInvalidOperationState,
				"operation %s cannot move %s -> %s", stored.ID, stored.State, next)
		}
		if fn != nil {
			fn(stored)
		}
		stored.State = next
		if next.IsTerminal() {
			stored.CompletedAt = s.clock.Now()
		}
		*op = *stored
		return nil
	})
	if err != nil {
		return err
	}
	s.emitTransition(ctx, op, next, "")
	return nil
}

// fail terminates the operation. anomaly marks failures discovered after a
// downstream mutation committed; those are never retried automatically and
// wait for out-of-band reconciliation.
func (s *Service) fail(ctx context.Context, op *models.Operation, reason dErrors.Code, note string, anomaly bool) models.Result {
	err := s.store.Update(ctx, op.ID, func(stored *models.Operation) error {
		if !stored.State.CanTransition(models.StateFailed) {
			return dErrors.Newf(dErrors.CodeInvalidOperationState,
				"operation %s already terminal in %s", stored.ID, stored.State)
		}
		stored.State = models.StateFailed
		stored.FailureReason = reason
		stored.Anomaly = anomaly
		stored.AnomalyNote = note
		stored.CompletedAt = s.clock.Now()
		*op = *stored
		return nil
	})
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to persist terminal failure",
			"error", err,
			"operation_id", op.ID.String(),
		)
	}

	s.emitTransition(ctx, op, models.StateFailed, reason.String())
	if anomaly {
		s.emitAnomaly(ctx, op, note)
	}
	if s.metrics != nil {
		s.metrics.OperationsFailed.WithLabelValues(string(op.Kind), reason.String()).Inc()
		if reason == dErrors.CodeComplianceCheckFailed || reason == dErrors.CodeLimitExceeded {
			s.metrics.ComplianceRejections.Inc()
		}
		if anomaly {
			s.metrics.AnomaliesDetected.WithLabelValues(string(op.Kind)).Inc()
		}
	}
	s.cacheResult(ctx, op)
	return models.ResultOf(op)
}

// settle terminates the operation successfully. A post-mutation bookkeeping
// failure still settles, flagged as an anomaly: minted tokens cannot be
// un-minted without a separate compensating transaction.
func (s *Service) settle(ctx context.Context, op *models.Operation, anomalyNote string, fn func(*models.Operation)) models.Result {
	anomaly := anomalyNote != ""
	err := s.store.Update(ctx, op.ID, func(stored *models.Operation) error {
		if !stored.State.CanTransition(models.StateSettled) {
			return dErrors.Newf(dErrors.CodeInvalidOperationState,
				"operation %s already terminal in %s", stored.ID, stored.State)
		}
		if fn != nil {
			fn(stored)
		}
		stored.State = models.StateSettled
		stored.Anomaly = anomaly
		stored.AnomalyNote = anomalyNote
		stored.CompletedAt = s.clock.Now()
		*op = *stored
		return nil
	})
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to persist settlement",
			"error", err,
			"operation_id", op.ID.String(),
		)
	}

	s.emitTransition(ctx, op, models.StateSettled, "")
	if anomaly {
		s.emitAnomaly(ctx, op, anomalyNote)
	}
	if s.metrics != nil {
		s.metrics.OperationsSettled.WithLabelValues(string(op.Kind)).Inc()
		if anomaly {
			s.metrics.AnomaliesDetected.WithLabelValues(string(op.Kind)).Inc()
		}
	}
	s.cacheResult(ctx, op)
	return models.ResultOf(op)
}

func (s *Service) emitAnomaly(ctx context.Context, op *models.Operation, note string) {
	s.emit(ctx, audit.Event{
		Action:        audit.ActionAnomalyDetected,
		OperationID:   op.ID.String(),
		CorrelationID: op.CorrelationID(),
		Kind:          string(op.Kind),
		Subject:       op.Subject.String(),
		Amount:        operationAmount(op),
		Reason:        note,
	})
}

func (s *Service) cacheResult(ctx context.Context, op *models.Operation) {
	if s.statusCache != nil {
		s.statusCache.Put(ctx, models.ResultOf(op))
	}
}

// rejectIfPaused fails a freshly created operation when the pause flag is
// set. The flag is read here, at the top of the protocol, and nowhere else;
// operations already past Created run to a terminal state.
func (s *Service) rejectIfPaused(ctx context.Context, op *models.Operation) (models.Result, bool) {
	if !s.Paused() {
		return models.Result{}, false
	}
	return s.fail(ctx, op, dErrors.CodeSystemPaused, "", false), true
}

// claimExternalRef marks the operation as the unique owner of its external
// ref. Called the moment the downstream write that consumed the key lands,
// before any further step can fail: from here every re-submission of the
// same ref must resolve to this record, whatever its terminal state.
func (s *Service) claimExternalRef(ctx context.Context, op *models.Operation) error {
	return s.store.Update(ctx, op.ID, func(stored *models.Operation) error {
		stored.KeyClaimed = true
		*op = *stored
		return nil
	})
}
