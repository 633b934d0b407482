package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/maelza/maelza-erp/internal/jobs"
)

// LowStockJob reports products that reached their minimum stock.
type LowStockJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockJob initialises the low-stock handler.
func NewLowStockJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockJob {
	return &LowStockJob{Logger: logger, Metrics: metrics}
}

// Handle logs every alert in the payload and counts them by severity.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("low stock: handler not configured")
	}
	var payload LowStockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskLowStockAlert)
	defer func() { err = tracker.End(err) }()

	logger := j.logger()
	var out, low int
	for _, a := range payload.Alerts {
		severity := "low"
		if a.Stock <= 0 {
			severity = "out"
			out++
		} else {
			low++
		}
		logger.Warn("product at or below minimum stock",
			slog.String("product_id", a.ProductID.String()),
			slog.String("code", a.Code),
			slog.String("name", a.Name),
			slog.Int("stock", a.Stock),
			slog.Int("min_stock", a.MinStock),
			slog.String("reference", a.Reference),
			slog.String("severity", severity),
		)
	}
	j.metrics().AddLowStock(out, low)
	return nil
}

func (j *LowStockJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockAlert))
	}
	return slog.Default().With(slog.String("job", TaskLowStockAlert))
}

func (j *LowStockJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
