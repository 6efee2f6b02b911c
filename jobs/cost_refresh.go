package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ovenly/ovenly/internal/jobs"
)

// CostRefresher recomputes product costs in bulk.
type CostRefresher interface {
	RefreshAllProductCosts(ctx context.Context) (int, error)
}

// CostRefreshJob keeps product cost and margin in step with ingredient prices.
type CostRefreshJob struct {
	Costing CostRefresher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewCostRefreshJob wires dependencies for the refresh handler.
func NewCostRefreshJob(costing CostRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *CostRefreshJob {
	return &CostRefreshJob{Costing: costing, Logger: logger, Metrics: metrics, Timeout: 5 * time.Minute}
}

// Handle processes cost refresh tasks.
func (j *CostRefreshJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Costing == nil {
		return errors.New("cost refresh: handler not configured")
	}
	tracker := j.Metrics.Track(TaskRefreshProductCosts)
	defer func() { err = tracker.End(err) }()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	start := time.Now()
	updated, err := j.Costing.RefreshAllProductCosts(ctx)
	if err != nil {
		logger(j.Logger).Error("refresh product costs", slog.Int("updated", updated), slog.Any("error", err))
		return err
	}
	logger(j.Logger).Info("refreshed product costs", slog.Int("updated", updated), slog.Duration("duration", time.Since(start)))
	return nil
}
