package handler

import (
	"time"

	"istsi/internal/integration/models"
)

// operationResult is the client-visible outcome of a composite operation.
type operationResult struct {
	OperationID   string `json:"operation_id"`
	WithdrawalID  string `json:"withdrawal_id,omitempty"`
	State         string `json:"state"`
	FailureReason string `json:"failure_reason,omitempty"`
	Anomaly       bool   `json:"anomaly,omitempty"`
}

func resultResponse(result models.Result) operationResult {
	resp := operationResult{
		OperationID:   result.OperationID.String(),
		State:         string(result.State),
		FailureReason: result.FailureReason.String(),
		Anomaly:       result.Anomaly,
	}
	if !result.WithdrawalID.IsNil() {
		resp.WithdrawalID = result.WithdrawalID.String()
	}
	return resp
}

// operationDetail is the full audit view of one operation record.
type operationDetail struct {
	OperationID   string     `json:"operation_id"`
	Kind          string     `json:"kind"`
	Initiator     string     `json:"initiator"`
	Subject       string     `json:"subject"`
	AmountSats    int64      `json:"amount_sats,omitempty"`
	TokenAmount   int64      `json:"token_amount,omitempty"`
	SourceAmount  int64      `json:"source_amount,omitempty"`
	DestAmount    int64      `json:"dest_amount,omitempty"`
	SourceSymbol  string     `json:"source_symbol,omitempty"`
	DestSymbol    string     `json:"dest_symbol,omitempty"`
	BTCTxHash     string     `json:"btc_tx_hash,omitempty"`
	BTCAddress    string     `json:"btc_address,omitempty"`
	WithdrawalID  string     `json:"withdrawal_id,omitempty"`
	State         string     `json:"state"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Anomaly       bool       `json:"anomaly,omitempty"`
	AnomalyNote   string     `json:"anomaly_note,omitempty"`
	Sequence      uint64     `json:"sequence"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func detailResponse(op *models.Operation) operationDetail {
	resp := operationDetail{
		OperationID:   op.ID.String(),
		Kind:          string(op.Kind),
		Initiator:     op.Initiator.String(),
		Subject:       op.Subject.String(),
		AmountSats:    op.AmountSats,
		TokenAmount:   op.TokenAmount,
		SourceAmount:  op.SourceAmount,
		DestAmount:    op.DestAmount,
		SourceSymbol:  op.SourceSymbol,
		DestSymbol:    op.DestSymbol,
		BTCAddress:    op.BTCAddress,
		State:         string(op.State),
		FailureReason: op.FailureReason.String(),
		Anomaly:       op.Anomaly,
		AnomalyNote:   op.AnomalyNote,
		Sequence:      op.Sequence,
		CreatedAt:     op.CreatedAt,
	}
	if !op.BTCTxHash.IsNil() {
		resp.BTCTxHash = op.BTCTxHash.String()
	}
	if !op.WithdrawalID.IsNil() {
		resp.WithdrawalID = op.WithdrawalID.String()
	}
	if !op.CompletedAt.IsZero() {
		completed := op.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}
