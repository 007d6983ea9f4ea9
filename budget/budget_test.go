package budget

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/metrics"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/webhook"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Budget{}, &models.UsageLog{}, &models.Webhook{}))
	return db
}

var testCollectorSeq uint64

func newTestCollector() *metrics.Collector {
	seq := atomic.AddUint64(&testCollectorSeq, 1)
	return metrics.NewCollector(fmt.Sprintf("budget_test_%d", seq), zap.NewNop())
}

func TestUpsert_CreatesThenReplaces(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zap.NewNop())

	first, err := s.Upsert(t.Context(), "tenant-1", 100, "monthly", 80)
	require.NoError(t, err)

	second, err := s.Upsert(t.Context(), "tenant-1", 250, "monthly", 90)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 250.0, second.AmountUSD)
	assert.Equal(t, 90.0, second.AlertThresholdPct)

	var count int64
	db.Model(&models.Budget{}).Where("tenant_id = ?", "tenant-1").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUpsert_RejectsNonPositiveAmount(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zap.NewNop())
	_, err := s.Upsert(t.Context(), "tenant-1", 0, "monthly", 80)
	assert.Error(t, err)
}

func TestGet_NotFound(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zap.NewNop())
	_, err := s.Get(t.Context(), "tenant-1")
	assert.Error(t, err)
}

func TestDelete_NotFound(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db, zap.NewNop())
	err := s.Delete(t.Context(), "tenant-1")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, statusNone, classify(50, 80))
	assert.Equal(t, statusWarning, classify(85, 80))
	assert.Equal(t, statusExceeded, classify(100, 80))
	assert.Equal(t, statusExceeded, classify(150, 80))
}

func seedUsageLog(t *testing.T, db *gorm.DB, tenantID string, costUSD float64, age time.Duration) {
	t.Helper()
	require.NoError(t, db.Create(&models.UsageLog{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		CredentialID: uuid.NewString(),
		Provider:     "openai",
		Model:        "gpt-4o",
		CostUSD:      costUSD,
		StatusCode:   200,
		CreatedAt:    time.Now().Add(-age),
	}).Error)
}

func TestWatcher_Check_FiresWarningOnceThenDedups(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zap.NewNop())
	whStore := webhook.NewStore(db, zap.NewNop())

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "budget_warning", body["event"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := store.Upsert(t.Context(), "tenant-1", 100, "monthly", 80)
	require.NoError(t, err)
	_, err = whStore.Create(t.Context(), "tenant-1", srv.URL, models.WebhookEventBudgetWarning)
	require.NoError(t, err)
	seedUsageLog(t, db, "tenant-1", 85, time.Hour)

	watcher := NewWatcher(store, whStore, newTestCollector(), zap.NewNop())
	watcher.Check(t.Context(), "tenant-1")
	watcher.Check(t.Context(), "tenant-1")

	assert.Equal(t, 1, hits)
}

func TestWatcher_Check_NoBudgetIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zap.NewNop())
	whStore := webhook.NewStore(db, zap.NewNop())
	watcher := NewWatcher(store, whStore, newTestCollector(), zap.NewNop())
	watcher.Check(t.Context(), "tenant-1")
}

func TestWatcher_Check_BelowThresholdSkips(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zap.NewNop())
	whStore := webhook.NewStore(db, zap.NewNop())

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := store.Upsert(t.Context(), "tenant-1", 100, "monthly", 80)
	require.NoError(t, err)
	_, err = whStore.Create(t.Context(), "tenant-1", srv.URL, models.WebhookEventBudgetWarning)
	require.NoError(t, err)
	seedUsageLog(t, db, "tenant-1", 10, time.Hour)

	watcher := NewWatcher(store, whStore, newTestCollector(), zap.NewNop())
	watcher.Check(t.Context(), "tenant-1")
	assert.Equal(t, 0, hits)
}

func TestWatcher_Check_IgnoresSpendOutsideRollingWindow(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zap.NewNop())
	whStore := webhook.NewStore(db, zap.NewNop())

	_, err := store.Upsert(t.Context(), "tenant-1", 100, "monthly", 80)
	require.NoError(t, err)
	seedUsageLog(t, db, "tenant-1", 500, 40*24*time.Hour)

	spend, err := store.currentSpend(t.Context(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, spend)
}
