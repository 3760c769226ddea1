package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Async hands messages to next on a separate goroutine and returns at once.
// Delivery errors are logged and reported through onResult, never to the
// caller.
type Async struct {
	next     Notifier
	timeout  time.Duration
	logger   *zap.Logger
	onResult func(error)
	wg       sync.WaitGroup
}

func NewAsync(next Notifier, timeout time.Duration, logger *zap.Logger, onResult func(error)) *Async {
	if onResult == nil {
		onResult = func(error) {}
	}
	return &Async{next: next, timeout: timeout, logger: logger, onResult: onResult}
}

func (a *Async) Notify(ctx context.Context, msg Message) error {
	// detached from the request so a finished response does not cancel delivery
	base := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		sendCtx, cancel := context.WithTimeout(base, a.timeout)
		defer cancel()

		err := a.next.Notify(sendCtx, msg)
		a.onResult(err)
		if err != nil {
			a.logger.Warn("notification failed",
				zap.String("recipient", msg.Recipient),
				zap.String("template", msg.Template),
				zap.Error(err),
			)
		}
	}()

	return nil
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
