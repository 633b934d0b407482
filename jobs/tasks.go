package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maelza/maelza-erp/internal/inventory"
	jobmetrics "github.com/maelza/maelza-erp/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockAlert carries products that fell to or below minimum stock.
	TaskLowStockAlert = "inventory:low_stock"
	// TaskStockReconcile compares product stock with the movement journal.
	TaskStockReconcile = "inventory:reconcile"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LowStockPayload lists the products reported by one committed document.
type LowStockPayload struct {
	Alerts []inventory.LowStockAlert `json:"alerts"`
}

// NewLowStockTask constructs an Asynq task for a batch of low-stock alerts.
func NewLowStockTask(alerts []inventory.LowStockAlert) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockPayload{Alerts: alerts})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// StockReconcilePayload carries scheduling metadata.
type StockReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockReconcileTask constructs the nightly reconciliation task.
func NewStockReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockReconcilePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReconcile, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload configures how old a key must be to be purged.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
