package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/lastdino/matex-sub001/internal/jobs"
)

// CascadeService completes shipping lines.
type CascadeService interface {
	Run(ctx context.Context, orderID int64) (int, error)
	Reconcile(ctx context.Context, limit int) (int, error)
}

// CascadeJob handles receiving:cascade and receiving:reconcile tasks.
type CascadeJob struct {
	Cascade CascadeService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCascadeJob constructs the job handler.
func NewCascadeJob(cascade CascadeService, logger *slog.Logger, metrics *jobmetrics.Metrics) *CascadeJob {
	return &CascadeJob{Cascade: cascade, Logger: logger, Metrics: metrics}
}

// HandleCascade completes eligible shipping lines of one order.
func (j *CascadeJob) HandleCascade(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Cascade == nil {
		return errors.New("receiving cascade: dependencies not configured")
	}
	var payload CascadePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.OrderID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskReceivingCascade)
	created, err := j.Cascade.Run(ctx, payload.OrderID)
	if err != nil {
		j.log(TaskReceivingCascade).Error("cascade", slog.Int64("order_id", payload.OrderID), slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddProcessed(TaskReceivingCascade, created)
	if created > 0 {
		j.log(TaskReceivingCascade).Info("shipping lines completed", slog.Int64("order_id", payload.OrderID), slog.Int("created", created))
	}
	return tracker.End(nil)
}

// HandleReconcile sweeps orders whose cascade did not run after commit.
func (j *CascadeJob) HandleReconcile(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Cascade == nil {
		return errors.New("receiving reconcile: dependencies not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 100
	}
	tracker := j.metrics().Track(TaskReceivingReconcile)
	start := time.Now()
	created, err := j.Cascade.Reconcile(ctx, payload.Limit)
	if err != nil {
		j.log(TaskReceivingReconcile).Error("reconcile", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddProcessed(TaskReceivingReconcile, created)
	j.log(TaskReceivingReconcile).Info("reconcile finished", slog.Int("created", created), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *CascadeJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CascadeJob) log(task string) *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}
