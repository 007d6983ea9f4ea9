// Package anomaly implements the Anomaly Detector: a Z-score comparison
// of today's spend and token usage against the trailing 13-day history,
// surfaced both as a read endpoint and as a fire-and-forget post-hook
// that dispatches a webhook at most once per tenant per UTC day.
package anomaly

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/database"
	"github.com/llmlab/llmlab/internal/metrics"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/webhook"
)

// historyDays is the trailing window used to establish a baseline
// (13 days of history plus the current day makes 14).
const historyDays = 14

// Severity classifies how far an anomaly deviates from its baseline.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Type identifies which signal an anomaly was raised on.
type Type string

const (
	TypeSpendSpike Type = "spend_spike"
	TypeTokenSurge Type = "token_surge"
)

// Anomaly is one detected deviation from the tenant's recent baseline.
type Anomaly struct {
	Type            Type     `json:"type"`
	Message         string   `json:"message"`
	Severity        Severity `json:"severity"`
	CurrentValue    float64  `json:"current_value"`
	ExpectedValue   float64  `json:"expected_value"`
	DeviationFactor float64  `json:"deviation_factor"`
}

// Detector computes and dispatches anomalies for a tenant.
type Detector struct {
	db       *gorm.DB
	webhooks *webhook.Store
	metrics  *metrics.Collector
	logger   *zap.Logger

	mu    sync.Mutex
	fired map[string]struct{}
}

// NewDetector builds a Detector.
func NewDetector(db *gorm.DB, webhooks *webhook.Store, collector *metrics.Collector, logger *zap.Logger) *Detector {
	return &Detector{
		db:       db,
		webhooks: webhooks,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "anomaly_detector")),
		fired:    make(map[string]struct{}),
	}
}

type dailyRow struct {
	Day     string
	CostUSD float64
	Tokens  int64
}

// dailySeries loads the trailing historyDays of daily cost/token totals
// for tenantID, zero-filling any day with no usage logs.
func (d *Detector) dailySeries(ctx context.Context, tenantID string) ([]dailyRow, error) {
	since := time.Now().UTC().AddDate(0, 0, -(historyDays - 1)).Truncate(24 * time.Hour)

	dayExpr := database.DayExpr(d.db)
	var rows []dailyRow
	err := d.db.WithContext(ctx).Model(&models.UsageLog{}).
		Select(dayExpr + " AS day, COALESCE(SUM(cost_usd), 0) AS cost_usd, COALESCE(SUM(input_tokens + output_tokens), 0) AS tokens").
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Group(dayExpr).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]dailyRow, len(rows))
	for _, r := range rows {
		byDay[r.Day] = r
	}

	series := make([]dailyRow, historyDays)
	for i := 0; i < historyDays; i++ {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		if r, ok := byDay[day]; ok {
			series[i] = r
		} else {
			series[i] = dailyRow{Day: day}
		}
	}
	return series, nil
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// Detect computes the current set of anomalies for tenantID without any
// dedup/dispatch side effects — used by the read-side stats endpoint.
func (d *Detector) Detect(ctx context.Context, tenantID string) ([]Anomaly, error) {
	series, err := d.dailySeries(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(series) < historyDays {
		return nil, nil
	}

	hist := series[:historyDays-1]
	today := series[historyDays-1]

	var anomalies []Anomaly

	costHist := make([]float64, len(hist))
	for i, r := range hist {
		costHist[i] = r.CostUSD
	}
	if a, ok := spendAnomaly(costHist, today.CostUSD); ok {
		anomalies = append(anomalies, a)
	}

	tokenHist := make([]float64, len(hist))
	for i, r := range hist {
		tokenHist[i] = float64(r.Tokens)
	}
	if a, ok := tokenAnomaly(tokenHist, float64(today.Tokens)); ok {
		anomalies = append(anomalies, a)
	}

	return anomalies, nil
}

func spendAnomaly(hist []float64, today float64) (Anomaly, bool) {
	mean, std := meanStd(hist)

	if std > 0 && today > 0 {
		z := (today - mean) / std
		if z >= 2.0 {
			severity := SeverityWarning
			if z >= 3.0 {
				severity = SeverityCritical
			}
			return Anomaly{
				Type:            TypeSpendSpike,
				Message:         fmt.Sprintf("today's spend $%.2f is %.1f standard deviations above the 13-day mean", today, z),
				Severity:        severity,
				CurrentValue:    today,
				ExpectedValue:   mean,
				DeviationFactor: z,
			}, true
		}
		return Anomaly{}, false
	}

	if std == 0 && mean > 0 && today > 2*mean {
		factor := today / mean
		return Anomaly{
			Type:            TypeSpendSpike,
			Message:         fmt.Sprintf("today's spend $%.2f is %.1fx the flat 13-day baseline of $%.2f", today, factor, mean),
			Severity:        SeverityWarning,
			CurrentValue:    today,
			ExpectedValue:   mean,
			DeviationFactor: factor,
		}, true
	}
	return Anomaly{}, false
}

func tokenAnomaly(hist []float64, today float64) (Anomaly, bool) {
	mean, _ := meanStd(hist)
	if mean <= 0 {
		return Anomaly{}, false
	}
	ratio := today / mean
	if ratio >= 3.0 {
		return Anomaly{
			Type:            TypeTokenSurge,
			Message:         fmt.Sprintf("today's token volume is %.1fx the 13-day mean", ratio),
			Severity:        SeverityInfo,
			CurrentValue:    today,
			ExpectedValue:   mean,
			DeviationFactor: ratio,
		}, true
	}
	return Anomaly{}, false
}

// Check implements proxy.AnomalyChecker. Runs Detect, and for any
// warning/critical anomaly dispatches a webhook, deduped per
// (tenant_id, YYYY-MM-DD) — at most one anomaly webhook burst per day.
func (d *Detector) Check(ctx context.Context, tenantID string) {
	anomalies, err := d.Detect(ctx, tenantID)
	if err != nil {
		d.logger.Warn("failed to compute anomalies", zap.Error(err), zap.String("tenant_id", tenantID))
		return
	}

	actionable := false
	for _, a := range anomalies {
		if a.Severity == SeverityWarning || a.Severity == SeverityCritical {
			actionable = true
			break
		}
	}
	if !actionable {
		d.metrics.RecordAnomalyDetectionRun(string(TypeSpendSpike), false)
		d.metrics.RecordAnomalyDetectionRun(string(TypeTokenSurge), false)
		return
	}

	day := time.Now().UTC().Format("2006-01-02")
	dedupKey := tenantID + "|" + day
	if d.alreadyFired(dedupKey) {
		return
	}

	fired := make(map[Type]bool, 2)
	delivered := 0
	for _, a := range anomalies {
		if a.Severity != SeverityWarning && a.Severity != SeverityCritical {
			continue
		}
		payload := map[string]any{
			"event":            "anomaly",
			"type":             string(a.Type),
			"message":          a.Message,
			"severity":         string(a.Severity),
			"current_value":    a.CurrentValue,
			"expected_value":   a.ExpectedValue,
			"deviation_factor": a.DeviationFactor,
			"timestamp":        time.Now().UTC(),
		}
		if n := d.webhooks.Dispatch(ctx, tenantID, models.WebhookEventAnomaly, payload); n > 0 {
			fired[a.Type] = true
			delivered += n
		}
	}
	d.metrics.RecordAnomalyDetectionRun(string(TypeSpendSpike), fired[TypeSpendSpike])
	d.metrics.RecordAnomalyDetectionRun(string(TypeTokenSurge), fired[TypeTokenSurge])
	if delivered > 0 {
		d.markFired(dedupKey)
	}
}

func (d *Detector) alreadyFired(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.fired[key]
	return ok
}

func (d *Detector) markFired(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fired[key] = struct{}{}
}
