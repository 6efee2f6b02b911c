package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ovenly/ovenly/internal/inventory"
	jobmetrics "github.com/ovenly/ovenly/internal/jobs"
)

// LowStockSource lists items at or below their minimum level.
type LowStockSource interface {
	LowStockItems(ctx context.Context) ([]inventory.LowStockItem, error)
}

// LowStockGauge records the size of the latest scan.
type LowStockGauge interface {
	SetLowStock(n int)
}

// LowStockScanJob logs one warning per low item.
type LowStockScanJob struct {
	Source  LowStockSource
	Gauge   LowStockGauge
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	printer *message.Printer
}

// NewLowStockScanJob wires dependencies for the scan handler.
func NewLowStockScanJob(source LowStockSource, gauge LowStockGauge, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		Source:  source,
		Gauge:   gauge,
		Logger:  logger,
		Metrics: metrics,
		printer: message.NewPrinter(language.English),
	}
}

// Handle processes low-stock scan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() { err = tracker.End(err) }()

	items, err := j.Source.LowStockItems(ctx)
	if err != nil {
		logger(j.Logger).Error("load low stock items", slog.Any("error", err))
		return err
	}
	if j.Gauge != nil {
		j.Gauge.SetLowStock(len(items))
	}
	for _, it := range items {
		logger(j.Logger).Warn(j.Describe(it), slog.Int64("item_id", it.ID), slog.String("supplier", it.Supplier))
	}
	logger(j.Logger).Info("low stock scan finished", slog.Int("items", len(items)))
	return nil
}

// Describe renders the warning line for one item.
func (j *LowStockScanJob) Describe(it inventory.LowStockItem) string {
	p := j.printer
	if p == nil {
		p = message.NewPrinter(language.English)
	}
	return p.Sprintf("low stock: %s has %.2f %s on hand, minimum %.2f, short %.2f",
		it.Name, it.CurrentStock, it.Unit, it.MinLevel, it.ShortageAmount)
}
