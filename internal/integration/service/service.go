// Package service implements the integration router: the orchestration
// state machine that sequences the KYC registry, reserve manager, and token
// ledgers for composite operations.
//
// The execution environment offers no cross-contract atomic rollback, so
// every protocol is forward-only with an explicit point of no return.
// Failures before any downstream mutation are cheap and retryable by the
// client; failures after a mutation committed terminate the operation with
// an anomaly flag and leave reconciliation to an out-of-band process.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"istsi/internal/audit"
	"istsi/internal/integration/cache"
	"istsi/internal/integration/models"
	"istsi/internal/integration/ports"
	"istsi/internal/integration/rates"
	kycModels "istsi/internal/kyc/models"
	"istsi/internal/platform/clock"
	"istsi/internal/platform/metrics"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// OperationStore retains operation records. Operations are audit records;
// implementations never delete them.
type OperationStore interface {
	Put(ctx context.Context, op *models.Operation) error
	Get(ctx context.Context, opID id.OperationID) (*models.Operation, error)
	GetByExternalRef(ctx context.Context, ref string) (*models.Operation, error)
	Update(ctx context.Context, opID id.OperationID, fn func(*models.Operation) error) error
	ListBySubject(ctx context.Context, subject id.Address) ([]*models.Operation, error)
}

// AuditPublisher emits a tagged event per state transition, synchronously
// within the protocol step, so monitors can reconstruct sequences without
// polling.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// DepositRequest carries the Bitcoin observer facts for one deposit. The
// router trusts confirmations and block height as given; it does not watch
// the Bitcoin network.
type DepositRequest struct {
	Initiator     id.Address
	Subject       id.Address
	AmountSats    int64
	TxHash        id.TxHash
	Confirmations uint32
	BlockHeight   uint64
}

// WithdrawalRequest asks to burn tokens and record Bitcoin payout intent.
// ClientRef is the caller's idempotency key for the request.
type WithdrawalRequest struct {
	Initiator   id.Address
	Subject     id.Address
	TokenAmount int64
	BTCAddress  string
	ClientRef   string
}

// ExchangeRequest converts between two router-managed token ledgers at a
// router-computed rate.
type ExchangeRequest struct {
	Initiator    id.Address
	Subject      id.Address
	SourceSymbol string
	DestSymbol   string
	SourceAmount int64
	ClientRef    string
}

// Service is the integration router. It holds no balance state of its own:
// only operation records and the pause flag.
type Service struct {
	store    OperationStore
	registry ports.ComplianceRegistry
	reserve  ports.ReserveManager
	ledgers  map[string]ports.TokenLedger
	rates    rates.Provider

	routerAddr id.Address
	adminAddr  id.Address

	// tokenUnitsPerSat converts satoshis to base units for the primary token.
	tokenUnitsPerSat int64
	primarySymbol    string

	// paused gates new operations at Created only; in-flight operations run
	// to a terminal state. Read explicitly at the top of every entry point.
	pausedMu sync.RWMutex
	paused   bool

	// sequence is the router's monotonic logical timestamp.
	sequence atomic.Uint64

	clock       clock.Clock
	logger      *slog.Logger
	publisher   AuditPublisher
	metrics     *metrics.Metrics
	statusCache *cache.StatusCache
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithStatusCache(c *cache.StatusCache) Option {
	return func(s *Service) { s.statusCache = c }
}

// WithRateProvider wires exchange rates; required for exchanges only.
func WithRateProvider(p rates.Provider) Option {
	return func(s *Service) { s.rates = p }
}

// Config fixes the router's identities and conversion for the primary token.
type Config struct {
	RouterAddress        id.Address
	AdminAddress         id.Address
	PrimarySymbol        string
	TokenUnitsPerSatoshi int64
}

func New(
	store OperationStore,
	registry ports.ComplianceRegistry,
	reserve ports.ReserveManager,
	primaryLedger ports.TokenLedger,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if store == nil || registry == nil || reserve == nil || primaryLedger == nil {
		return nil, fmt.Errorf("store, registry, reserve, and ledger are required")
	}
	if cfg.RouterAddress.IsNil() || cfg.AdminAddress.IsNil() {
		return nil, fmt.Errorf("router and admin addresses are required")
	}
	if cfg.TokenUnitsPerSatoshi <= 0 {
		return nil, fmt.Errorf("token units per satoshi must be positive")
	}
	if cfg.PrimarySymbol == "" {
		cfg.PrimarySymbol = "iSTSi"
	}

	svc := &Service{
		store:            store,
		registry:         registry,
		reserve:          reserve,
		ledgers:          map[string]ports.TokenLedger{cfg.PrimarySymbol: primaryLedger},
		routerAddr:       cfg.RouterAddress,
		adminAddr:        cfg.AdminAddress,
		tokenUnitsPerSat: cfg.TokenUnitsPerSatoshi,
		primarySymbol:    cfg.PrimarySymbol,
		clock:            clock.System{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RegisterLedger adds a token ledger for cross-token exchanges.
func (s *Service) RegisterLedger(symbol string, ledger ports.TokenLedger) error {
	if symbol == "" || ledger == nil {
		return fmt.Errorf("symbol and ledger are required")
	}
	if _, exists := s.ledgers[symbol]; exists {
		return fmt.Errorf("ledger %s already registered", symbol)
	}
	s.ledgers[symbol] = ledger
	return nil
}

// EmergencyPause stops new operations. Admin only. In-flight operations
// past Created complete to a terminal state.
func (s *Service) EmergencyPause(ctx context.Context, caller id.Address) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.pausedMu.Lock()
	s.paused = true
	s.pausedMu.Unlock()

	s.emit(ctx, audit.Event{Action: audit.ActionSystemPaused, Initiator: caller.String()})
	return nil
}

// ResumeOperations lifts the pause. Admin only.
func (s *Service) ResumeOperations(ctx context.Context, caller id.Address) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.pausedMu.Lock()
	s.paused = false
	s.pausedMu.Unlock()

	s.emit(ctx, audit.Event{Action: audit.ActionSystemResumed, Initiator: caller.String()})
	return nil
}

// Paused reports the pause flag.
func (s *Service) Paused() bool {
	s.pausedMu.RLock()
	defer s.pausedMu.RUnlock()
	return s.paused
}

// GetOperationStatus returns the client-visible result for an operation.
func (s *Service) GetOperationStatus(ctx context.Context, opID id.OperationID) (models.Result, error) {
	if s.statusCache != nil {
		if cached := s.statusCache.Get(ctx, opID); cached != nil {
			return *cached, nil
		}
	}

	op, err := s.store.Get(ctx, opID)
	if err != nil {
		return models.Result{}, err
	}
	result := models.ResultOf(op)
	if s.statusCache != nil {
		s.statusCache.Put(ctx, result)
	}
	return result, nil
}

// ListOperations returns all operations affecting a subject, oldest first.
func (s *Service) ListOperations(ctx context.Context, subject id.Address) ([]*models.Operation, error) {
	return s.store.ListBySubject(ctx, subject)
}

// DeploymentHealthCheck reports the pause flag and per-component
// reachability, probing components concurrently.
func (s *Service) DeploymentHealthCheck(ctx context.Context) models.HealthReport {
	report := models.HealthReport{Paused: s.Paused()}

	type probe struct {
		name  string
		check func(context.Context) error
	}
	probes := []probe{
		{"kyc_registry", func(ctx context.Context) error {
			_, err := s.registry.IsApproved(ctx, s.adminAddr, kycModels.OpTransfer, 1)
			return err
		}},
		{"reserve_manager", func(ctx context.Context) error {
			_, err := s.reserve.State(ctx)
			return err
		}},
		{"token_ledger", func(ctx context.Context) error {
			_, err := s.ledgers[s.primarySymbol].BalanceOf(ctx, s.routerAddr)
			return err
		}},
	}

	results := make([]models.ComponentHealth, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range probes {
		g.Go(func() error {
			health := models.ComponentHealth{Name: p.name, Reachable: true}
			if err := p.check(gctx); err != nil {
				health.Reachable = false
				health.Detail = dErrors.CodeOf(err).String()
			}
			results[i] = health
			return nil
		})
	}
	_ = g.Wait() // probes record their own failures
	report.Components = results
	return report
}

func (s *Service) requireAdmin(caller id.Address) error {
	if caller != s.adminAddr {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the platform admin")
	}
	return nil
}

func (s *Service) nextSequence() uint64 {
	return s.sequence.Add(1)
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"action", event.Action,
			"operation_id", event.OperationID,
		)
	}
}

// emitTransition records one state-machine step for external monitors.
func (s *Service) emitTransition(ctx context.Context, op *models.Operation, outcome models.OperationState, reason string) {
	s.emit(ctx, audit.Event{
		Action:        audit.ActionStateTransition,
		OperationID:   op.ID.String(),
		CorrelationID: op.CorrelationID(),
		Kind:          string(op.Kind),
		Subject:       op.Subject.String(),
		Initiator:     op.Initiator.String(),
		Amount:        operationAmount(op),
		DestAmount:    op.DestAmount,
		Outcome:       string(outcome),
		Reason:        reason,
	})
}

func operationAmount(op *models.Operation) int64 {
	if op.Kind == models.KindCrossTokenExchange {
		return op.SourceAmount
	}
	if op.AmountSats != 0 {
		return op.AmountSats
	}
	return op.TokenAmount
}
