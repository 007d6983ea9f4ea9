package aggregate

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UsageLog{}, &models.Tag{}))
	return db
}

func seedLog(t *testing.T, db *gorm.DB, tenantID, provider, model string, inputTokens, outputTokens int, cost float64, cacheHit bool, age time.Duration, tags ...*models.Tag) {
	t.Helper()
	log := &models.UsageLog{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		CredentialID: uuid.NewString(),
		Provider:     provider,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		StatusCode:   200,
		LatencyMS:    100,
		CacheHit:     cacheHit,
		CreatedAt:    time.Now().UTC().Add(-age),
	}
	require.NoError(t, db.Create(log).Error)
	for _, tag := range tags {
		require.NoError(t, db.Model(log).Association("Tags").Append(tag))
	}
}

func TestSummary_TotalsMatchSeededLogs(t *testing.T) {
	db := setupTestDB(t)
	a := NewAggregator(db)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 1000, 500, 0.0075, false, time.Minute)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 100, 50, 0.001, true, time.Minute)

	summary, err := a.Summary(t.Context(), "tenant-1", PeriodAll, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.RequestCount)
	assert.InDelta(t, 0.0085, summary.CostUSD, 1e-9)
	assert.Equal(t, int64(1), summary.CacheHits)
}

func TestSummary_MonotonicWindowOrdering(t *testing.T) {
	db := setupTestDB(t)
	a := NewAggregator(db)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 1000, 500, 1.0, false, time.Hour)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 1000, 500, 2.0, false, 40*24*time.Hour)

	summary, err := a.Summary(t.Context(), "tenant-1", PeriodAll, "")
	require.NoError(t, err)
	assert.LessOrEqual(t, summary.TodayUSD, summary.MonthUSD)
	assert.LessOrEqual(t, summary.MonthUSD, summary.AllTimeUSD)
}

func TestSummary_TagFilter(t *testing.T) {
	db := setupTestDB(t)
	a := NewAggregator(db)
	tag := &models.Tag{ID: uuid.NewString(), TenantID: "tenant-1", Name: "prod", Color: "#fff"}
	require.NoError(t, db.Create(tag).Error)

	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 1000, 500, 1.0, false, time.Minute, tag)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 1000, 500, 2.0, false, time.Minute)

	summary, err := a.Summary(t.Context(), "tenant-1", PeriodAll, "prod")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.RequestCount)
	assert.InDelta(t, 1.0, summary.CostUSD, 1e-9)
}

func TestByModel_OrderedByCostDesc(t *testing.T) {
	db := setupTestDB(t)
	a := NewAggregator(db)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o-mini", 1000, 500, 0.5, false, time.Minute)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 1000, 500, 5.0, false, time.Minute)

	rows, err := a.ByModel(t.Context(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "gpt-4o", rows[0].Model)
}

func TestByDay_AscendingDates(t *testing.T) {
	db := setupTestDB(t)
	a := NewAggregator(db)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 100, 50, 1.0, false, 48*time.Hour)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 100, 50, 1.0, false, time.Hour)

	rows, err := a.ByDay(t.Context(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Less(t, rows[0].Date, rows[1].Date)
}

func TestComparison_KeepsFiveCheapestSortedAscending(t *testing.T) {
	db := setupTestDB(t)
	a := NewAggregator(db)
	seedLog(t, db, "tenant-1", "openai", "gpt-4-turbo", 1_000_000, 1_000_000, 40.0, false, time.Minute)

	rows, grandTotal, err := a.Comparison(t.Context(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.LessOrEqual(t, len(rows[0].Cheapest), 5)
	for i := 1; i < len(rows[0].Cheapest); i++ {
		assert.LessOrEqual(t, rows[0].Cheapest[i-1].CostUSD, rows[0].Cheapest[i].CostUSD)
	}
	assert.Greater(t, grandTotal, 0.0)
}

func TestCacheSavings_PricesCacheHitRowsAgainstCurrentTables(t *testing.T) {
	db := setupTestDB(t)
	a := NewAggregator(db)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 1000, 500, 0, true, time.Minute)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 1000, 500, 0.0075, false, time.Minute)

	savings, err := a.CacheSavings(t.Context(), "tenant-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.0075, savings, 1e-9)
}

func TestLogs_WhitelistsSortField(t *testing.T) {
	db := setupTestDB(t)
	a := NewAggregator(db)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 100, 50, 1.0, false, time.Minute)

	logs, total, err := a.Logs(t.Context(), "tenant-1", LogQuery{SortField: "'; DROP TABLE llmlab_usage_logs; --", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
}

func TestLogs_Pagination(t *testing.T) {
	db := setupTestDB(t)
	a := NewAggregator(db)
	for i := 0; i < 5; i++ {
		seedLog(t, db, "tenant-1", "openai", "gpt-4o", 100, 50, 1.0, false, time.Duration(i)*time.Minute)
	}

	logs, total, err := a.Logs(t.Context(), "tenant-1", LogQuery{Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, logs, 2)
}

func TestGetLog_NotFoundForOtherTenant(t *testing.T) {
	db := setupTestDB(t)
	a := NewAggregator(db)
	seedLog(t, db, "tenant-1", "openai", "gpt-4o", 100, 50, 1.0, false, time.Minute)

	var log models.UsageLog
	require.NoError(t, db.First(&log).Error)

	_, err := a.GetLog(t.Context(), "tenant-2", log.ID)
	assert.Error(t, err)
}

func TestExportLogs_IgnoresPaginationFields(t *testing.T) {
	db := setupTestDB(t)
	a := NewAggregator(db)
	for i := 0; i < 5; i++ {
		seedLog(t, db, "tenant-1", "openai", "gpt-4o", 100, 50, 1.0, false, time.Duration(i)*time.Minute)
	}

	logs, err := a.ExportLogs(t.Context(), "tenant-1", LogQuery{Limit: 1, Offset: 0})
	require.NoError(t, err)
	assert.Len(t, logs, 5)
}

func TestParseDateFilter_RejectsMalformed(t *testing.T) {
	_, err := ParseDateFilter("not-a-date")
	assert.Error(t, err)
}

func TestParseDateFilter_AcceptsStrictFormat(t *testing.T) {
	d, err := ParseDateFilter("2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, 2026, d.Year())
}
