package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit events from the service inbox, persists them and
// forwards them to the sink. Sink failures are logged and do not block
// persistence; the store is the local source of truth.
type Worker struct {
	store  Store
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	if sink == nil {
		sink = NoopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "persist audit event",
					"action", event.Action,
					"error", err,
				)
			}
			if err := w.sink.Publish(ctx, event); err != nil {
				w.logger.WarnContext(ctx, "publish audit event",
					"action", event.Action,
					"error", err,
				)
			}
		}
	}
}
