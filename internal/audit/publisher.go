package audit

import (
	"context"
	"log/slog"
	"time"
)

// Store persists audit events. Append-only; nothing is ever hard-deleted.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByOperation(ctx context.Context, operationID string) ([]Event, error)
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}

// Sink receives events for external consumers (monitoring, SIEM). Sinks are
// fed from the worker, not inline, so a slow consumer cannot stall a
// protocol step.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher records events durably and fans them out to sinks. The store
// append happens synchronously as part of the emitting step; sink delivery
// goes through a buffered inbox drained by a Worker.
type Publisher struct {
	store  Store
	inbox  chan Event
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithInboxSize overrides the sink buffer depth.
func WithInboxSize(n int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan Event, n)
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
		inbox: make(chan Event, 1024),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit persists the event and queues it for sink delivery. A full inbox
// drops the sink copy rather than blocking the protocol; the durable store
// copy is never dropped.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit sink inbox full, dropping sink copy",
				"action", event.Action,
				"operation_id", event.OperationID,
			)
		}
	}
	return nil
}

// Inbox exposes the sink feed for the worker.
func (p *Publisher) Inbox() <-chan Event { return p.inbox }

// ListByOperation returns the retained events for one operation.
func (p *Publisher) ListByOperation(ctx context.Context, operationID string) ([]Event, error) {
	return p.store.ListByOperation(ctx, operationID)
}
