package models

import (
	"time"

	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// OperationKind identifies the composite protocol an operation runs.
type OperationKind string

const (
	KindBitcoinDeposit     OperationKind = "bitcoin_deposit"
	KindTokenWithdrawal    OperationKind = "token_withdrawal"
	KindCrossTokenExchange OperationKind = "cross_token_exchange"
)

// OperationState is a position in the protocol state machine. Transitions
// are strictly forward; Settled and Failed are terminal and never revisited.
type OperationState string

const (
	StateCreated            OperationState = "created"
	StateComplianceVerified OperationState = "compliance_verified"
	StateReserveValidated   OperationState = "reserve_validated"
	StateSettled            OperationState = "settled"
	StateFailed             OperationState = "failed"
)

// IsTerminal reports whether no further transition can occur.
func (s OperationState) IsTerminal() bool {
	return s == StateSettled || s == StateFailed
}

// stateOrder gives each forward state a rank so illegal transitions are
// detectable with one comparison.
var stateOrder = map[OperationState]int{
	StateCreated:            0,
	StateComplianceVerified: 1,
	StateReserveValidated:   2,
	StateSettled:            3,
}

// CanTransition reports whether moving from s to next is legal: strictly
// forward through the order, or terminally into Failed from any non-terminal
// state.
func (s OperationState) CanTransition(next OperationState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	from, ok := stateOrder[s]
	if !ok {
		return false
	}
	to, ok := stateOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// Operation is one client-initiated composite action. Created at router
// entry, mutated only by the router as the protocol advances, immutable once
// terminal. Retained indefinitely as an audit record.
type Operation struct {
	ID        id.OperationID
	Kind      OperationKind
	Initiator id.Address
	Subject   id.Address

	// AmountSats is the Bitcoin-side amount; TokenAmount the ledger-side
	// amount in base units. For exchanges SourceAmount/DestAmount carry the
	// two legs instead.
	AmountSats   int64
	TokenAmount  int64
	SourceAmount int64
	DestAmount   int64
	SourceSymbol string
	DestSymbol   string

	// ExternalRef is the idempotency key: the Bitcoin tx hash for deposits,
	// the client-supplied request reference for withdrawals and exchanges.
	// KeyClaimed flips once the key's unique first write lands downstream
	// (deposit registered, burn linked); only claimed refs resolve lookups.
	ExternalRef string
	KeyClaimed  bool
	BTCTxHash   id.TxHash
	BTCAddress  string

	WithdrawalID id.WithdrawalID

	State         OperationState
	FailureReason dErrors.Code

	// Anomaly marks a terminal operation whose failure was discovered after
	// a downstream mutation had already committed. Resolution is a manual
	// compensating action outside the router's control flow.
	Anomaly     bool
	AnomalyNote string

	// Sequence is the router's monotonic logical timestamp.
	Sequence    uint64
	CreatedAt   time.Time
	CompletedAt time.Time
}

// CorrelationID links this operation's events across components.
func (o *Operation) CorrelationID() string { return o.ID.CorrelationID() }

// Result is what the router returns to the backend service: identifiers and
// the resulting state, nothing downstream-internal.
type Result struct {
	OperationID   id.OperationID
	WithdrawalID  id.WithdrawalID
	State         OperationState
	FailureReason dErrors.Code
	Anomaly       bool
}

// ResultOf projects an operation into its client-visible result.
func ResultOf(op *Operation) Result {
	return Result{
		OperationID:   op.ID,
		WithdrawalID:  op.WithdrawalID,
		State:         op.State,
		FailureReason: op.FailureReason,
		Anomaly:       op.Anomaly,
	}
}

// ComponentHealth is one component's reachability in the health report.
type ComponentHealth struct {
	Name      string `json:"name"`
	Reachable bool   `json:"reachable"`
	Detail    string `json:"detail,omitempty"`
}

// HealthReport is the deployment health snapshot.
type HealthReport struct {
	Paused     bool              `json:"paused"`
	Components []ComponentHealth `json:"components"`
}
