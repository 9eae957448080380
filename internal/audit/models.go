package audit

import "time"

// Event is emitted from domain logic to capture key actions and state
// transitions. Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp     time.Time
	OperationID   string
	CorrelationID string
	Kind          string
	Action        string
	Subject       string
	Initiator     string
	Amount        int64
	DestAmount    int64
	Outcome       string
	Reason        string
	RequestID     string
}

// Actions emitted by the components. State transitions use the transition
// action with Outcome carrying the new state.
const (
	ActionStateTransition   = "state_transition"
	ActionAnomalyDetected   = "anomaly_detected"
	ActionUserRegistered    = "user_registered"
	ActionTierUpdated       = "tier_updated"
	ActionUserDeactivated   = "user_deactivated"
	ActionTierLimitsUpdated = "tier_limits_updated"
	ActionLimitRecorded     = "limit_recorded"
	ActionSystemPaused      = "system_paused"
	ActionSystemResumed     = "system_resumed"
	ActionProofGenerated    = "proof_of_reserves"
)
