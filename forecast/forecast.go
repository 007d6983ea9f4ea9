// Package forecast projects a tenant's spend forward using an ordinary
// least squares fit over the trailing 30 days of daily cost.
package forecast

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/database"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/types"
)

// windowDays is the trailing history the OLS fit is computed over.
const windowDays = 30

// Trend classifies the direction of a tenant's spend over the window.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Confidence tiers the forecast by how many of the trailing days had
// any spend at all — a sparse history makes the OLS fit less reliable.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Forecast is the projected next-30-days spend plus its trend and confidence.
type Forecast struct {
	PredictedNextMonthUSD float64    `json:"predicted_next_month_usd"`
	Trend                 Trend      `json:"trend"`
	Confidence            Confidence `json:"confidence"`
	DailyProjection       []float64  `json:"daily_projection"`
}

// Forecaster computes spend forecasts for a tenant.
type Forecaster struct {
	db *gorm.DB
}

// NewForecaster builds a Forecaster.
func NewForecaster(db *gorm.DB) *Forecaster {
	return &Forecaster{db: db}
}

// dailySpend loads the trailing windowDays of daily cost totals for
// tenantID, zero-filling any day with no usage logs.
func (f *Forecaster) dailySpend(ctx context.Context, tenantID string) ([]float64, error) {
	since := time.Now().UTC().AddDate(0, 0, -(windowDays - 1)).Truncate(24 * time.Hour)

	type row struct {
		Day     string
		CostUSD float64
	}
	dayExpr := database.DayExpr(f.db)
	var rows []row
	err := f.db.WithContext(ctx).Model(&models.UsageLog{}).
		Select(dayExpr + " AS day", "COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Group(dayExpr).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]float64, len(rows))
	for _, r := range rows {
		byDay[r.Day] = r.CostUSD
	}

	series := make([]float64, windowDays)
	for i := 0; i < windowDays; i++ {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		series[i] = byDay[day]
	}
	return series, nil
}

// olsFit returns the slope and intercept of the best-fit line through
// (0, y[0]), (1, y[1]), ..., (n-1, y[n-1]).
func olsFit(y []float64) (slope, intercept float64) {
	n := float64(len(y))
	if n == 0 {
		return 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

func classifyTrend(daily []float64) Trend {
	half := len(daily) / 2
	if half == 0 {
		return TrendStable
	}
	firstMean := mean(daily[:half])
	secondMean := mean(daily[len(daily)-half:])

	if firstMean == 0 {
		if secondMean > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}

	change := (secondMean - firstMean) / firstMean
	switch {
	case change > 0.10:
		return TrendIncreasing
	case change < -0.10:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func classifyConfidence(daily []float64) Confidence {
	nonZero := 0
	for _, v := range daily {
		if v > 0 {
			nonZero++
		}
	}
	switch {
	case nonZero >= 20:
		return ConfidenceHigh
	case nonZero >= 10:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Forecast computes tenantID's spend projection for the next 30 days.
func (f *Forecaster) Forecast(ctx context.Context, tenantID string) (*Forecast, error) {
	daily, err := f.dailySpend(ctx, tenantID)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to load daily spend").WithCause(err)
	}

	slope, intercept := olsFit(daily)

	projection := make([]float64, windowDays)
	var predictedTotal float64
	for i := 0; i < windowDays; i++ {
		v := slope*float64(windowDays+i) + intercept
		if v < 0 {
			v = 0
		}
		projection[i] = v
		predictedTotal += v
	}

	return &Forecast{
		PredictedNextMonthUSD: predictedTotal,
		Trend:                 classifyTrend(daily),
		Confidence:            classifyConfidence(daily),
		DailyProjection:       projection,
	}, nil
}
