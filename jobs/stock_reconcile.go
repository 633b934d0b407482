package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maelza/maelza-erp/internal/inventory"
	jobmetrics "github.com/maelza/maelza-erp/internal/jobs"
)

// DriftSource reports products whose stock disagrees with the journal.
type DriftSource interface {
	StockDrift(ctx context.Context) ([]inventory.Drift, error)
}

// StockReconcileJob flags products whose stock column and journal diverged.
type StockReconcileJob struct {
	Source  DriftSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockReconcileJob constructs the reconciliation handler.
func NewStockReconcileJob(source DriftSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockReconcileJob {
	return &StockReconcileJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle logs each drifting product. Drift is reported, never corrected.
func (j *StockReconcileJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("stock reconcile: handler not configured")
	}
	var payload StockReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskStockReconcile)
	defer func() { err = tracker.End(err) }()

	logger := j.logger()
	start := time.Now()
	drift, err := j.Source.StockDrift(ctx)
	if err != nil {
		logger.Error("reconcile failed", slog.Any("error", err))
		return err
	}
	for _, d := range drift {
		logger.Warn("stock drift detected",
			slog.String("product_id", d.ProductID.String()),
			slog.String("code", d.Code),
			slog.Int("stock", d.Stock),
			slog.Int("journal_balance", d.JournalBalance),
		)
	}
	logger.Info("completed stock reconcile",
		slog.Int("drifting", len(drift)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *StockReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockReconcile))
	}
	return slog.Default().With(slog.String("job", TaskStockReconcile))
}

func (j *StockReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
