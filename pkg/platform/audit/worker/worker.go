package worker

import (
	"context"
	"log/slog"

	audit "facegate/pkg/platform/audit"
)

// Sink publishes a committed event downstream.
type Sink interface {
	Publish(ctx context.Context, e audit.Event) error
}

// Queue is a bounded, non-blocking hand-off between the append path and the
// Worker. When full, events are dropped from the replica (never from the
// chain) and counted.
type Queue struct {
	ch      chan audit.Event
	logger  *slog.Logger
	dropped func()
}

func NewQueue(size int, logger *slog.Logger, onDrop func()) *Queue {
	if onDrop == nil {
		onDrop = func() {}
	}
	return &Queue{ch: make(chan audit.Event, size), logger: logger, dropped: onDrop}
}

func (q *Queue) Forward(ctx context.Context, e audit.Event) {
	select {
	case q.ch <- e:
	default:
		q.dropped()
		q.logger.WarnContext(ctx, "audit replica queue full, event not forwarded",
			"event_id", e.ID,
			"sequence", e.Sequence,
		)
	}
}

func (q *Queue) Events() <-chan audit.Event { return q.ch }

// Worker drains forwarded audit events into a sink. Publish failures are
// logged and skipped; the chain in the store stays authoritative.
type Worker struct {
	sink   Sink
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Publish(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to publish audit event",
					"event_id", event.ID,
					"sequence", event.Sequence,
					"error", err,
				)
			}
		}
	}
}
