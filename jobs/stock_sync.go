package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lastdino/matex-sub001/internal/integration"
	"github.com/lastdino/matex-sub001/internal/inventory"
	jobmetrics "github.com/lastdino/matex-sub001/internal/jobs"
)

// Enqueuer submits prepared tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error)
}

// StockSyncPublisher implements inventory.Notifier by enqueueing stock:sync tasks.
// When enqueueing fails the batch goes to Fallback, if set.
type StockSyncPublisher struct {
	Queue    Enqueuer
	Fallback inventory.Notifier
	Logger   *slog.Logger
}

// Publish implements inventory.Notifier.
func (p *StockSyncPublisher) Publish(ctx context.Context, changes ...inventory.StockChange) {
	if p == nil || len(changes) == 0 {
		return
	}
	task, err := NewStockSyncTask(changes)
	if err == nil {
		_, err = p.Queue.Enqueue(ctx, task)
	}
	if err == nil {
		return
	}
	p.log().Warn("enqueue stock sync", slog.Int("changes", len(changes)), slog.Any("error", err))
	if p.Fallback != nil {
		p.Fallback.Publish(ctx, changes...)
	}
}

func (p *StockSyncPublisher) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// StockSyncJob delivers stock:sync tasks. Failed deliveries are logged and dropped.
type StockSyncJob struct {
	Sender   integration.Sender
	Recorder integration.SyncRecorder
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewStockSyncJob constructs the job handler.
func NewStockSyncJob(sender integration.Sender, recorder integration.SyncRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockSyncJob {
	return &StockSyncJob{Sender: sender, Recorder: recorder, Logger: logger, Metrics: metrics}
}

// Handle executes one delivery.
func (j *StockSyncJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("stock sync: sender not configured")
	}
	var payload StockSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if len(payload.Changes) == 0 {
		return nil
	}

	tracker := j.metrics().Track(TaskStockSync)
	err := j.Sender.Send(ctx, payload.Changes)
	switch {
	case errors.Is(err, integration.ErrSyncDisabled):
		j.record("skipped")
		return tracker.End(nil)
	case err != nil:
		j.record("failed")
		j.log().Warn("stock sync failed",
			slog.Int("changes", len(payload.Changes)),
			slog.Int64("first_movement_id", payload.Changes[0].MovementID),
			slog.Any("error", err))
		_ = tracker.End(err)
		return fmt.Errorf("stock sync: %v: %w", err, asynq.SkipRetry)
	}
	j.record("sent")
	j.metrics().AddProcessed(TaskStockSync, len(payload.Changes))
	return tracker.End(nil)
}

func (j *StockSyncJob) record(outcome string) {
	if j.Recorder != nil {
		j.Recorder.StockSynced(outcome)
	}
}

func (j *StockSyncJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *StockSyncJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockSync))
	}
	return slog.Default().With(slog.String("job", TaskStockSync))
}
