package audit

import (
	"context"
	"log/slog"
)

// Worker drains the publisher inbox into sinks. It keeps background
// processing testable without wiring queue implementations into services.
type Worker struct {
	inbox  <-chan Event
	sinks  []Sink
	logger *slog.Logger
}

func NewWorker(inbox <-chan Event, logger *slog.Logger, sinks ...Sink) *Worker {
	return &Worker{inbox: inbox, sinks: sinks, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			for _, sink := range w.sinks {
				if err := sink.Publish(ctx, event); err != nil {
					// Sink failure must not lose the durable copy already in
					// the store; log and keep draining.
					w.logger.ErrorContext(ctx, "audit sink publish failed",
						"error", err,
						"action", event.Action,
						"operation_id", event.OperationID,
					)
				}
			}
		}
	}
}
