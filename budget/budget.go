// Package budget implements budget CRUD (one active budget per tenant,
// upsert semantics) and the Budget Watcher post-hook: a fire-and-forget
// check that compares trailing 30-day spend against the tenant's
// threshold and dispatches a webhook at most once per process lifetime.
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/metrics"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/types"
	"github.com/llmlab/llmlab/webhook"
)

// rollingWindow is the trailing period current spend is summed over.
const rollingWindow = 30 * 24 * time.Hour

// Store persists the tenant's single active budget. POST is an upsert:
// it replaces the existing row rather than erroring on a second create.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore builds a Store.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.With(zap.String("component", "budget_store"))}
}

// Upsert creates or replaces tenantID's active budget.
func (s *Store) Upsert(ctx context.Context, tenantID string, amountUSD float64, period string, alertThresholdPct float64) (*models.Budget, error) {
	if amountUSD <= 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "amount_usd must be positive")
	}
	if period == "" {
		period = "monthly"
	}
	if alertThresholdPct <= 0 {
		alertThresholdPct = 80
	}

	// The check-then-write below races under concurrent Upserts for the same
	// tenant (two requests can both see ErrRecordNotFound and both Create).
	// Run it inside a transaction so the row lock taken by the first write
	// blocks the second until it can see the row the first one created.
	var result models.Budget
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Budget
		err := tx.Where("tenant_id = ?", tenantID).First(&existing).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			result = models.Budget{
				ID:                uuid.NewString(),
				TenantID:          tenantID,
				AmountUSD:         amountUSD,
				Period:            period,
				AlertThresholdPct: alertThresholdPct,
			}
			return tx.Create(&result).Error
		case err != nil:
			return err
		}

		existing.AmountUSD = amountUSD
		existing.Period = period
		existing.AlertThresholdPct = alertThresholdPct
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to store budget").WithCause(err)
	}
	return &result, nil
}

// Get returns tenantID's active budget, if any.
func (s *Store) Get(ctx context.Context, tenantID string) (*models.Budget, error) {
	var b models.Budget
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&b).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.NewError(types.ErrNotFound, "no budget configured")
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to load budget").WithCause(err)
	}
	return &b, nil
}

// Delete removes tenantID's active budget.
func (s *Store) Delete(ctx context.Context, tenantID string) error {
	result := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Delete(&models.Budget{})
	if result.Error != nil {
		return types.NewError(types.ErrInternalError, "failed to delete budget").WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "no budget configured")
	}
	return nil
}

// CurrentSpend returns the tenant's spend over the trailing rolling window,
// the same figure the budget watcher checks against.
func (s *Store) CurrentSpend(ctx context.Context, tenantID string) (float64, error) {
	return s.currentSpend(ctx, tenantID)
}

// currentSpend sums cost_usd for tenantID over the trailing rolling window.
func (s *Store) currentSpend(ctx context.Context, tenantID string) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).Model(&models.UsageLog{}).
		Where("tenant_id = ? AND created_at >= ?", tenantID, time.Now().Add(-rollingWindow)).
		Select("COALESCE(SUM(cost_usd), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// status classifies a spend percentage against the tenant's budget.
type status string

const (
	statusNone     status = ""
	statusWarning  status = "budget_warning"
	statusExceeded status = "budget_exceeded"
)

func classify(pct, thresholdPct float64) status {
	switch {
	case pct >= 100:
		return statusExceeded
	case pct >= thresholdPct:
		return statusWarning
	default:
		return statusNone
	}
}

// Watcher is the Budget Watcher post-hook: a fire-and-forget check
// dispatched after every metered request. It dedups by
// (tenant_id, budget_id, status) for the lifetime of the process.
type Watcher struct {
	store    *Store
	webhooks *webhook.Store
	metrics  *metrics.Collector
	logger   *zap.Logger

	mu    sync.Mutex
	fired map[string]struct{}
}

// NewWatcher builds a Watcher.
func NewWatcher(store *Store, webhooks *webhook.Store, collector *metrics.Collector, logger *zap.Logger) *Watcher {
	return &Watcher{
		store:    store,
		webhooks: webhooks,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "budget_watcher")),
		fired:    make(map[string]struct{}),
	}
}

// Check implements proxy.BudgetChecker. Errors (no budget configured,
// DB unavailable) are logged and swallowed — this runs fire-and-forget
// off the post-hook dispatcher, never on the request path.
func (w *Watcher) Check(ctx context.Context, tenantID string) {
	b, err := w.store.Get(ctx, tenantID)
	if err != nil {
		return
	}

	spend, err := w.store.currentSpend(ctx, tenantID)
	if err != nil {
		w.logger.Warn("failed to compute current spend", zap.Error(err), zap.String("tenant_id", tenantID))
		return
	}

	pct := spend / b.AmountUSD * 100
	st := classify(pct, b.AlertThresholdPct)
	if st == statusNone {
		return
	}

	dedupKey := tenantID + "|" + b.ID + "|" + string(st)
	if w.alreadyFired(dedupKey) {
		return
	}

	payload := map[string]any{
		"event":             string(st),
		"budget_id":         b.ID,
		"budget_amount_usd": b.AmountUSD,
		"current_spend_usd": spend,
		"percentage_used":   pct,
		"alert_threshold":   b.AlertThresholdPct,
		"timestamp":         time.Now().UTC(),
	}

	var eventType models.WebhookEvent
	if st == statusExceeded {
		eventType = models.WebhookEventBudgetExceeded
	} else {
		eventType = models.WebhookEventBudgetWarning
	}

	if delivered := w.webhooks.Dispatch(ctx, tenantID, eventType, payload); delivered > 0 {
		w.metrics.RecordBudgetWebhookDispatch(string(st))
		w.markFired(dedupKey)
	}
}

func (w *Watcher) alreadyFired(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.fired[key]
	return ok
}

func (w *Watcher) markFired(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fired[key] = struct{}{}
}
