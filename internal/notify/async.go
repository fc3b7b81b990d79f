package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Async dispatches each message on its own goroutine with a bounded timeout.
// Failures are logged and dropped.
type Async struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	timeout    time.Duration
	wg         sync.WaitGroup
}

func NewAsync(d Dispatcher, logger *slog.Logger) *Async {
	return &Async{dispatcher: d, logger: logger, timeout: 15 * time.Second}
}

func (a *Async) Notify(ctx context.Context, msg Message) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		// detached from the request so delivery outlives the response
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.dispatcher.Dispatch(ctx, msg); err != nil {
			a.logger.Warn("notification dispatch failed", "kind", msg.Kind, "subject", msg.Subject, "error", err)
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (a *Async) Wait() {
	a.wg.Wait()
}
