package proxy

import (
	"context"

	"go.uber.org/zap"

	"github.com/llmlab/llmlab/internal/pool"
)

// BudgetChecker and AnomalyChecker are the two post-hooks the pipeline
// schedules after every metered request. Each is responsible for its
// own error handling — a post-hook failure is logged and swallowed,
// never surfaced to the request that triggered it.
type BudgetChecker interface {
	Check(ctx context.Context, tenantID string)
}

type AnomalyChecker interface {
	Check(ctx context.Context, tenantID string)
}

// PostHookDispatcher fans background Budget Watcher / Anomaly Detector
// runs out through a bounded worker pool, so a burst of proxy traffic
// can't spawn unbounded goroutines. A full pool drops the post-hook with
// a warning log rather than blocking the response.
type PostHookDispatcher struct {
	pool    *pool.GoroutinePool
	budget  BudgetChecker
	anomaly AnomalyChecker
	logger  *zap.Logger
}

// NewPostHookDispatcher builds a dispatcher backed by a worker pool sized
// for background metering work, not request-path throughput.
func NewPostHookDispatcher(budget BudgetChecker, anomaly AnomalyChecker, logger *zap.Logger) *PostHookDispatcher {
	cfg := pool.DefaultGoroutinePoolConfig()
	cfg.MaxWorkers = 16
	cfg.QueueSize = 256
	cfg.PanicHandler = func(r any) {
		logger.Error("post-hook panicked", zap.Any("recovered", r))
	}

	return &PostHookDispatcher{
		pool:    pool.NewGoroutinePool(cfg),
		budget:  budget,
		anomaly: anomaly,
		logger:  logger.With(zap.String("component", "post_hook_dispatcher")),
	}
}

// Dispatch enqueues a Budget Watcher and Anomaly Detector run for
// tenantID. Never blocks the caller; a saturated pool is logged and
// dropped.
func (d *PostHookDispatcher) Dispatch(tenantID string) {
	d.submit("budget_watcher", tenantID, d.budget.Check)
	d.submit("anomaly_detector", tenantID, d.anomaly.Check)
}

func (d *PostHookDispatcher) submit(name, tenantID string, run func(ctx context.Context, tenantID string)) {
	err := d.pool.Submit(context.Background(), func(ctx context.Context) error {
		run(ctx, tenantID)
		return nil
	})
	if err != nil {
		d.logger.Warn("post-hook dropped, pool saturated",
			zap.String("hook", name),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}
}

// Stats reports the worker pool's current load, for a status/health endpoint.
func (d *PostHookDispatcher) Stats() pool.GoroutinePoolStats {
	return d.pool.Stats()
}

// Close stops accepting new post-hooks and waits for in-flight ones to finish.
func (d *PostHookDispatcher) Close() {
	stats := d.pool.Stats()
	d.pool.Close()
	d.logger.Info("post-hook dispatcher stopped",
		zap.Int64("submitted", stats.Submitted),
		zap.Int64("completed", stats.Completed),
		zap.Int64("rejected", stats.Rejected),
	)
}
