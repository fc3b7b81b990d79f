package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
)

// DispatchArgs is the durable job carrying one message.
type DispatchArgs struct {
	Message Message `json:"message"`
}

func (DispatchArgs) Kind() string { return "notify_dispatch" }

func (DispatchArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5}
}

// DispatchWorker performs delivery; returning an error lets the queue retry.
type DispatchWorker struct {
	river.WorkerDefaults[DispatchArgs]
	dispatcher Dispatcher
}

func NewDispatchWorker(d Dispatcher) *DispatchWorker {
	return &DispatchWorker{dispatcher: d}
}

func (w *DispatchWorker) Work(ctx context.Context, job *river.Job[DispatchArgs]) error {
	if err := w.dispatcher.Dispatch(ctx, job.Args.Message); err != nil {
		return fmt.Errorf("dispatch %s (attempt %d): %w", job.Args.Message.Kind, job.Attempt, err)
	}
	return nil
}

// InsertFunc enqueues a job. It is set once the queue client exists.
type InsertFunc func(ctx context.Context, args DispatchArgs) error

// Queue notifies by enqueueing a DispatchArgs job.
type Queue struct {
	insert InsertFunc
	logger *slog.Logger
}

func NewQueue(insert InsertFunc, logger *slog.Logger) *Queue {
	return &Queue{insert: insert, logger: logger}
}

func (q *Queue) Notify(ctx context.Context, msg Message) {
	if err := q.insert(context.WithoutCancel(ctx), DispatchArgs{Message: msg}); err != nil {
		q.logger.Warn("notification enqueue failed", "kind", msg.Kind, "error", err)
	}
}
