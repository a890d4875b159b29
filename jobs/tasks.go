package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lastdino/matex-sub001/internal/inventory"
	jobmetrics "github.com/lastdino/matex-sub001/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockSync pushes committed stock changes to the external inventory system.
	TaskStockSync = "stock:sync"
	// TaskReceivingCascade completes shipping lines of one order.
	TaskReceivingCascade = "receiving:cascade"
	// TaskReceivingReconcile sweeps orders with unreceived linked shipping lines.
	TaskReceivingReconcile = "receiving:reconcile"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StockSyncPayload carries one batch of stock changes.
type StockSyncPayload struct {
	Changes []inventory.StockChange `json:"changes"`
}

// NewStockSyncTask builds a stock sync task. Delivery is advisory, so the task is
// never retried.
func NewStockSyncTask(changes []inventory.StockChange) (*asynq.Task, error) {
	body, err := json.Marshal(StockSyncPayload{Changes: changes})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockSync, body, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}

// CascadePayload names the order whose shipping lines should be completed.
type CascadePayload struct {
	OrderID int64 `json:"order_id"`
}

// NewCascadeTask builds a cascade task for one order.
func NewCascadeTask(orderID int64) (*asynq.Task, error) {
	body, err := json.Marshal(CascadePayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReceivingCascade, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// ReconcilePayload bounds one reconcile sweep.
type ReconcilePayload struct {
	Limit int `json:"limit"`
}

// NewReconcileTask builds the reconcile sweep task.
func NewReconcileTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcilePayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReceivingReconcile, body, asynq.Queue(QueueDefault)), nil
}

// CleanupPayload sets the idempotency key retention.
type CleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
