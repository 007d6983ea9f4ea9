package forecast

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
	require.NoError(t, db.AutoMigrate(&models.UsageLog{}))
	return db
}

func seedDay(t *testing.T, db *gorm.DB, tenantID string, daysAgo int, costUSD float64) {
	t.Helper()
	require.NoError(t, db.Create(&models.UsageLog{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		CredentialID: uuid.NewString(),
		Provider:     "openai",
		Model:        "gpt-4o",
		CostUSD:      costUSD,
		StatusCode:   200,
		CreatedAt:    time.Now().UTC().AddDate(0, 0, -daysAgo),
	}).Error)
}

func TestOLSFit_PerfectLine(t *testing.T) {
	slope, intercept := olsFit([]float64{1, 2, 3, 4, 5})
	assert.InDelta(t, 1.0, slope, 1e-9)
	assert.InDelta(t, 1.0, intercept, 1e-9)
}

func TestOLSFit_FlatSeries(t *testing.T) {
	slope, intercept := olsFit([]float64{5, 5, 5, 5})
	assert.InDelta(t, 0.0, slope, 1e-9)
	assert.InDelta(t, 5.0, intercept, 1e-9)
}

func TestOLSFit_EmptySeries(t *testing.T) {
	slope, intercept := olsFit(nil)
	assert.Equal(t, 0.0, slope)
	assert.Equal(t, 0.0, intercept)
}

func TestClassifyTrend_Increasing(t *testing.T) {
	daily := make([]float64, 30)
	for i := range daily {
		if i < 15 {
			daily[i] = 1
		} else {
			daily[i] = 2
		}
	}
	assert.Equal(t, TrendIncreasing, classifyTrend(daily))
}

func TestClassifyTrend_Stable(t *testing.T) {
	daily := make([]float64, 30)
	for i := range daily {
		daily[i] = 1
	}
	assert.Equal(t, TrendStable, classifyTrend(daily))
}

func TestClassifyTrend_Decreasing(t *testing.T) {
	daily := make([]float64, 30)
	for i := range daily {
		if i < 15 {
			daily[i] = 2
		} else {
			daily[i] = 1
		}
	}
	assert.Equal(t, TrendDecreasing, classifyTrend(daily))
}

func TestClassifyConfidence_Tiers(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, classifyConfidence(onesAndZeros(25, 0)))
	assert.Equal(t, ConfidenceMedium, classifyConfidence(onesAndZeros(12, 18)))
	assert.Equal(t, ConfidenceLow, classifyConfidence(onesAndZeros(3, 27)))
}

func onesAndZeros(nonZero, zero int) []float64 {
	out := make([]float64, 0, nonZero+zero)
	for i := 0; i < nonZero; i++ {
		out = append(out, 1)
	}
	for i := 0; i < zero; i++ {
		out = append(out, 0)
	}
	return out
}

func TestForecast_ProjectsNonNegativeDailyValues(t *testing.T) {
	db := setupTestDB(t)
	f := NewForecaster(db)
	for i := 0; i < 30; i++ {
		seedDay(t, db, "tenant-1", i, 1.0)
	}

	result, err := f.Forecast(t.Context(), "tenant-1")
	require.NoError(t, err)
	for _, v := range result.DailyProjection {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.Greater(t, result.PredictedNextMonthUSD, 0.0)
}

func TestForecast_NoHistoryYieldsZeroPrediction(t *testing.T) {
	db := setupTestDB(t)
	f := NewForecaster(db)
	result, err := f.Forecast(t.Context(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.PredictedNextMonthUSD)
	assert.Equal(t, ConfidenceLow, result.Confidence)
}
