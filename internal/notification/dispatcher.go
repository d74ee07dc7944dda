package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"momo-payments/internal/domain"
)

const defaultSendTimeout = 15 * time.Second

// Dispatcher delivers notifications in the background. Delivery errors are
// logged and never returned to the caller.
type Dispatcher struct {
	notifier domain.Notifier
	timeout  time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(notifier domain.Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		timeout:  defaultSendTimeout,
		logger:   logger,
	}
}

func (d *Dispatcher) Confirmation(ctx context.Context, phone string, amount decimal.Decimal, reference string) {
	d.dispatch(ctx, "confirmation", reference, func(ctx context.Context) error {
		return d.notifier.SendConfirmation(ctx, phone, amount, reference)
	})
}

func (d *Dispatcher) Failure(ctx context.Context, phone string, amount decimal.Decimal, reference, reason string) {
	d.dispatch(ctx, "failure", reference, func(ctx context.Context) error {
		return d.notifier.SendFailure(ctx, phone, amount, reference, reason)
	})
}

// Wait blocks until every dispatched notification has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, kind, reference string, send func(context.Context) error) {
	// The request context ends with the response; delivery must outlive it.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("Notification panicked", "kind", kind, "reference", reference, "panic", p)
			}
		}()

		if err := send(sendCtx); err != nil {
			d.logger.Error("Failed to send notification", "kind", kind, "reference", reference, "error", err)
			return
		}
		d.logger.Debug("Notification sent", "kind", kind, "reference", reference)
	}()
}
