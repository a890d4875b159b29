package integration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lastdino/matex-sub001/internal/inventory"
)

// SyncRecorder counts delivery outcomes.
type SyncRecorder interface {
	StockSynced(outcome string)
}

// AsyncNotifier implements inventory.Notifier by sending each batch from its own
// goroutine. Failures are logged and counted, never returned.
type AsyncNotifier struct {
	sender  Sender
	timeout time.Duration
	logger  *slog.Logger
	metrics SyncRecorder
	wg      sync.WaitGroup
}

// NewAsyncNotifier constructs AsyncNotifier. metrics may be nil.
func NewAsyncNotifier(sender Sender, timeout time.Duration, logger *slog.Logger, metrics SyncRecorder) *AsyncNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncNotifier{sender: sender, timeout: timeout, logger: logger, metrics: metrics}
}

// Publish implements inventory.Notifier.
func (n *AsyncNotifier) Publish(ctx context.Context, changes ...inventory.StockChange) {
	if n == nil || n.sender == nil || len(changes) == 0 {
		return
	}
	batch := append([]inventory.StockChange(nil), changes...)
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		Deliver(ctx, n.sender, batch, n.logger, n.metrics)
	}()
}

// Wait blocks until in-flight deliveries finish. Used on shutdown and in tests.
func (n *AsyncNotifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}

// Deliver sends one batch, logging and counting the outcome.
func Deliver(ctx context.Context, sender Sender, changes []inventory.StockChange, logger *slog.Logger, metrics SyncRecorder) {
	if len(changes) == 0 {
		return
	}
	err := sender.Send(ctx, changes)
	outcome := "sent"
	switch {
	case errors.Is(err, ErrSyncDisabled):
		outcome = "skipped"
	case err != nil:
		outcome = "failed"
		logger.Warn("stock sync failed",
			slog.Int("changes", len(changes)),
			slog.Int64("first_movement_id", changes[0].MovementID),
			slog.Any("error", err))
	}
	if metrics != nil {
		metrics.StockSynced(outcome)
	}
}
