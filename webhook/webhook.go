// Package webhook stores tenant alert-delivery targets and dispatches
// budget/anomaly event payloads to them.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/types"
)

// dispatchTimeout bounds a single webhook POST.
const dispatchTimeout = 10 * time.Second

// Store persists webhook registrations and dispatches event payloads
// to every active webhook of a tenant subscribed to the firing event.
type Store struct {
	db     *gorm.DB
	client *http.Client
	logger *zap.Logger
}

// NewStore builds a Store. One client with dispatchTimeout is built here
// and shared by every POST.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		client: &http.Client{Timeout: dispatchTimeout},
		logger: logger.With(zap.String("component", "webhook_store")),
	}
}

// Create registers a new webhook for tenantID against a single event type.
func (s *Store) Create(ctx context.Context, tenantID, url string, eventType models.WebhookEvent) (*models.Webhook, error) {
	if strings.TrimSpace(url) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "url is required")
	}
	switch eventType {
	case models.WebhookEventBudgetWarning, models.WebhookEventBudgetExceeded, models.WebhookEventAnomaly:
	default:
		return nil, types.NewError(types.ErrInvalidRequest, "unknown event type")
	}

	hook := &models.Webhook{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		URL:       url,
		EventType: eventType,
		Active:    true,
	}
	if err := s.db.WithContext(ctx).Create(hook).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to store webhook").WithCause(err)
	}
	return hook, nil
}

// List returns every webhook registered by tenantID.
func (s *Store) List(ctx context.Context, tenantID string) ([]models.Webhook, error) {
	var hooks []models.Webhook
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&hooks).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to list webhooks").WithCause(err)
	}
	return hooks, nil
}

// Delete removes a webhook owned by tenantID.
func (s *Store) Delete(ctx context.Context, tenantID, webhookID string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", webhookID, tenantID).Delete(&models.Webhook{})
	if result.Error != nil {
		return types.NewError(types.ErrInternalError, "failed to delete webhook").WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "webhook not found")
	}
	return nil
}

// activeByEvent loads every active webhook of tenantID subscribed to eventType.
func (s *Store) activeByEvent(ctx context.Context, tenantID string, eventType models.WebhookEvent) ([]models.Webhook, error) {
	var hooks []models.Webhook
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND event_type = ? AND active = ?", tenantID, eventType, true).
		Find(&hooks).Error
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

// Dispatch POSTs payload (already event-shaped JSON) to every active
// webhook of tenantID subscribed to eventType. Failures are logged and
// swallowed — a failing webhook must never surface back to the caller.
// Returns the count of webhooks successfully delivered to, so callers
// can decide whether to record a fired-alert dedup entry.
func (s *Store) Dispatch(ctx context.Context, tenantID string, eventType models.WebhookEvent, payload any) int {
	hooks, err := s.activeByEvent(ctx, tenantID, eventType)
	if err != nil {
		s.logger.Warn("failed to load webhooks for dispatch", zap.Error(err), zap.String("tenant_id", tenantID))
		return 0
	}
	if len(hooks) == 0 {
		return 0
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal webhook payload", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, hook := range hooks {
		if s.post(ctx, hook, body) {
			delivered++
		}
	}
	return delivered
}

func (s *Store) post(ctx context.Context, hook models.Webhook, body []byte) bool {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("failed to build webhook request", zap.Error(err), zap.String("webhook_id", hook.ID))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook delivery failed", zap.Error(err), zap.String("webhook_id", hook.ID))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Warn("webhook rejected delivery", zap.Int("status", resp.StatusCode), zap.String("webhook_id", hook.ID))
		return false
	}
	return true
}
