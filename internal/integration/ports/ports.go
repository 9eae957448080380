// Package ports defines the router's view of the other components. The
// router owns cross-component sequencing only; each downstream component
// owns its state and is reached exclusively through these interfaces, which
// keeps a misbehaving orchestrator unable to touch foreign storage.
package ports

import (
	"context"

	kycModels "istsi/internal/kyc/models"
	reserveModels "istsi/internal/reserve/models"
	tokenModels "istsi/internal/token/models"
	id "istsi/pkg/domain"
)

// ComplianceRegistry is the KYC registry surface the router sequences.
type ComplianceRegistry interface {
	IsApproved(ctx context.Context, addr id.Address, op kycModels.OpCode, amount int64) (bool, error)
	RecordTransaction(ctx context.Context, addr id.Address, amount int64) error
}

// ReserveManager is the reserve bookkeeping surface the router sequences.
type ReserveManager interface {
	RegisterBitcoinDeposit(ctx context.Context, hash id.TxHash, amount int64, confirmations uint32, user id.Address, blockHeight uint64) error
	ProcessBitcoinDeposit(ctx context.Context, hash id.TxHash) error
	CanIssue(ctx context.Context, amount int64) (bool, error)
	RecordIssuance(ctx context.Context, amount int64) error
	RecordBurn(ctx context.Context, amount int64) error
	CreateWithdrawalRequest(ctx context.Context, user id.Address, amount int64, btcAddress string) (id.WithdrawalID, error)
	State(ctx context.Context) (reserveModels.ReserveState, error)
}

// TokenLedger is the mint/burn surface the router sequences. Exchange legs
// run against one ledger per token symbol.
type TokenLedger interface {
	BalanceOf(ctx context.Context, addr id.Address) (int64, error)
	MintWithLink(ctx context.Context, caller, recipient id.Address, amount int64, externalRef, correlationID string) error
	BurnForWithdrawal(ctx context.Context, caller, from id.Address, amount int64, externalRef, correlationID string) (string, error)
	LookupLink(ctx context.Context, externalRef string) (*tokenModels.ExternalLink, error)
}
