// Package aggregate implements every read-side rollup over usage logs:
// spend summaries, per-model/per-day breakdowns, an hourly heatmap, a
// cheaper-alternative provider comparison, and cache-savings — all
// pushed into SQL rather than materialized over unbounded log sets.
package aggregate

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/database"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/pricing"
	"github.com/llmlab/llmlab/types"
)

// SortFields whitelists the columns the logs-listing endpoint may sort
// by; any other requested field falls back to created_at desc.
var SortFields = map[string]bool{
	"created_at":    true,
	"cost_usd":      true,
	"input_tokens":  true,
	"output_tokens": true,
	"latency_ms":    true,
	"provider":      true,
	"model":         true,
}

// Aggregator runs rollup queries scoped to one tenant.
type Aggregator struct {
	db *gorm.DB
}

// NewAggregator builds an Aggregator.
func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

// Period names the window a Summary is computed over.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

func periodSince(p Period) (time.Time, bool) {
	now := time.Now().UTC()
	switch p {
	case PeriodToday:
		return now.Truncate(24 * time.Hour), true
	case PeriodWeek:
		return now.AddDate(0, 0, -7), true
	case PeriodMonth:
		return now.AddDate(0, 0, -30), true
	default:
		return time.Time{}, false
	}
}

// Summary aggregates cost, tokens, and latency for a tenant over a
// period, plus independent today/30-day/all-time totals for the
// headline card (today_usd <= month_usd <= all_time_usd always holds).
type Summary struct {
	RequestCount int64   `json:"request_count"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	CacheHits    int64   `json:"cache_hits"`

	TodayUSD   float64 `json:"today_usd"`
	MonthUSD   float64 `json:"month_usd"`
	AllTimeUSD float64 `json:"all_time_usd"`
}

type summaryRow struct {
	RequestCount int64
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	AvgLatencyMS float64
	CacheHits    int64
}

// Summary computes the rollup for tenantID over period, optionally
// restricted to usage logs carrying tagName.
func (a *Aggregator) Summary(ctx context.Context, tenantID string, period Period, tagName string) (*Summary, error) {
	q := a.scopedQuery(tenantID, tagName)
	if since, bounded := periodSince(period); bounded {
		q = q.Where("llmlab_usage_logs.created_at >= ?", since)
	}

	var row summaryRow
	err := q.Select(
		"COUNT(*) AS request_count",
		"COALESCE(SUM(input_tokens), 0) AS input_tokens",
		"COALESCE(SUM(output_tokens), 0) AS output_tokens",
		"COALESCE(SUM(cost_usd), 0) AS cost_usd",
		"COALESCE(AVG(latency_ms), 0) AS avg_latency_ms",
		"COALESCE(SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END), 0) AS cache_hits",
	).Scan(&row).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to compute summary").WithCause(err)
	}

	todayUSD, err := a.sumCostSince(ctx, tenantID, tagName, time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, err
	}
	monthUSD, err := a.sumCostSince(ctx, tenantID, tagName, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}
	allTimeUSD, err := a.sumCostSince(ctx, tenantID, tagName, time.Time{})
	if err != nil {
		return nil, err
	}

	return &Summary{
		RequestCount: row.RequestCount,
		InputTokens:  row.InputTokens,
		OutputTokens: row.OutputTokens,
		CostUSD:      row.CostUSD,
		AvgLatencyMS: row.AvgLatencyMS,
		CacheHits:    row.CacheHits,
		TodayUSD:     todayUSD,
		MonthUSD:     monthUSD,
		AllTimeUSD:   allTimeUSD,
	}, nil
}

func (a *Aggregator) sumCostSince(ctx context.Context, tenantID, tagName string, since time.Time) (float64, error) {
	q := a.scopedQuery(tenantID, tagName).WithContext(ctx)
	if !since.IsZero() {
		q = q.Where("llmlab_usage_logs.created_at >= ?", since)
	}
	var total float64
	if err := q.Select("COALESCE(SUM(cost_usd), 0)").Scan(&total).Error; err != nil {
		return 0, types.NewError(types.ErrInternalError, "failed to sum cost").WithCause(err)
	}
	return total, nil
}

// scopedQuery returns a base query over llmlab_usage_logs for tenantID,
// joined against the tag junction table when tagName is non-empty.
func (a *Aggregator) scopedQuery(tenantID, tagName string) *gorm.DB {
	q := a.db.Model(&models.UsageLog{}).Where("llmlab_usage_logs.tenant_id = ?", tenantID)
	if tagName != "" {
		q = q.Joins("JOIN llmlab_usage_log_tags ON llmlab_usage_log_tags.usage_log_id = llmlab_usage_logs.id").
			Joins("JOIN llmlab_tags ON llmlab_tags.id = llmlab_usage_log_tags.tag_id").
			Where("llmlab_tags.name = ?", tagName)
	}
	return q
}

// ModelBreakdown is one row of the by-model rollup.
type ModelBreakdown struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	RequestCount int64   `json:"request_count"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// ByModel groups tenantID's usage by (model, provider), ordered by cost desc.
func (a *Aggregator) ByModel(ctx context.Context, tenantID string) ([]ModelBreakdown, error) {
	var rows []ModelBreakdown
	err := a.db.WithContext(ctx).Model(&models.UsageLog{}).
		Select(
			"provider",
			"model",
			"COUNT(*) AS request_count",
			"COALESCE(SUM(input_tokens), 0) AS input_tokens",
			"COALESCE(SUM(output_tokens), 0) AS output_tokens",
			"COALESCE(SUM(cost_usd), 0) AS cost_usd",
			"COALESCE(AVG(latency_ms), 0) AS avg_latency_ms",
		).
		Where("tenant_id = ?", tenantID).
		Group("model, provider").
		Order("cost_usd DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to compute by-model breakdown").WithCause(err)
	}
	return rows, nil
}

// DailyPoint is one row of the by-day rollup.
type DailyPoint struct {
	Date         string  `json:"date"`
	RequestCount int64   `json:"request_count"`
	CostUSD      float64 `json:"cost_usd"`
}

// ByDay groups tenantID's usage by calendar day, ordered ascending.
func (a *Aggregator) ByDay(ctx context.Context, tenantID string) ([]DailyPoint, error) {
	dayExpr := database.DayExpr(a.db)
	var rows []DailyPoint
	err := a.db.WithContext(ctx).Model(&models.UsageLog{}).
		Select(dayExpr + " AS date", "COUNT(*) AS request_count", "COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Where("tenant_id = ?", tenantID).
		Group(dayExpr).
		Order("date ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to compute by-day breakdown").WithCause(err)
	}
	return rows, nil
}

// HeatmapCell is one (weekday, hour) bucket of the trailing-30-day heatmap.
type HeatmapCell struct {
	Weekday      int     `json:"weekday"`
	Hour         int     `json:"hour"`
	RequestCount int64   `json:"request_count"`
	CostUSD      float64 `json:"cost_usd"`
}

// Heatmap groups tenantID's trailing-30-day usage by (weekday, hour),
// sorted by (day, hour).
func (a *Aggregator) Heatmap(ctx context.Context, tenantID string) ([]HeatmapCell, error) {
	var rows []HeatmapCell
	since := time.Now().UTC().AddDate(0, 0, -30)
	weekdayExpr, hourExpr := database.WeekdayHourExpr(a.db)
	err := a.db.WithContext(ctx).Model(&models.UsageLog{}).
		Select(
			weekdayExpr + " AS weekday",
			hourExpr + " AS hour",
			"COUNT(*) AS request_count",
			"COALESCE(SUM(cost_usd), 0) AS cost_usd",
		).
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Group("weekday, hour").
		Scan(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to compute heatmap").WithCause(err)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Weekday != rows[j].Weekday {
			return rows[i].Weekday < rows[j].Weekday
		}
		return rows[i].Hour < rows[j].Hour
	})
	return rows, nil
}

// Alternative is one (provider, model) the aggregator priced as a
// cheaper substitute for an actual (provider, model) pairing.
type Alternative struct {
	Provider string  `json:"provider"`
	Model    string  `json:"model"`
	CostUSD  float64 `json:"cost_usd"`
}

// ComparisonRow is one actual (model, provider) pairing plus its five
// cheapest alternatives, recomputed at the same token volumes.
type ComparisonRow struct {
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	ActualUSD    float64       `json:"actual_usd"`
	Cheapest     []Alternative `json:"cheapest"`
}

// Comparison groups tenantID's trailing-30-day usage by (model,
// provider); for each, enumerates every other (provider, model) in the
// price tables and recomputes what the same token volume would have
// cost, keeping the five cheapest. Also returns the grand total had
// every call gone to its cheapest alternative.
func (a *Aggregator) Comparison(ctx context.Context, tenantID string) ([]ComparisonRow, float64, error) {
	type actualRow struct {
		Provider     string
		Model        string
		InputTokens  int64
		OutputTokens int64
		CostUSD      float64
	}
	var actuals []actualRow
	since := time.Now().UTC().AddDate(0, 0, -30)
	err := a.db.WithContext(ctx).Model(&models.UsageLog{}).
		Select(
			"provider",
			"model",
			"COALESCE(SUM(input_tokens), 0) AS input_tokens",
			"COALESCE(SUM(output_tokens), 0) AS output_tokens",
			"COALESCE(SUM(cost_usd), 0) AS cost_usd",
		).
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Group("model, provider").
		Scan(&actuals).Error
	if err != nil {
		return nil, 0, types.NewError(types.ErrInternalError, "failed to compute provider comparison").WithCause(err)
	}

	var rows []ComparisonRow
	var cheapestGrandTotal float64
	for _, actual := range actuals {
		alternatives := pricing.AllRates()
		cheapest := make([]Alternative, 0, len(alternatives))
		for _, alt := range alternatives {
			if alt.Provider == actual.Provider && alt.Model == actual.Model {
				continue
			}
			cost := pricing.Price(alt.Provider, alt.Model, int(actual.InputTokens), int(actual.OutputTokens))
			cheapest = append(cheapest, Alternative{Provider: alt.Provider, Model: alt.Model, CostUSD: cost})
		}
		sort.Slice(cheapest, func(i, j int) bool { return cheapest[i].CostUSD < cheapest[j].CostUSD })
		if len(cheapest) > 5 {
			cheapest = cheapest[:5]
		}

		cheapestForThisRow := actual.CostUSD
		if len(cheapest) > 0 {
			cheapestForThisRow = cheapest[0].CostUSD
		}
		cheapestGrandTotal += cheapestForThisRow

		rows = append(rows, ComparisonRow{
			Provider:     actual.Provider,
			Model:        actual.Model,
			InputTokens:  actual.InputTokens,
			OutputTokens: actual.OutputTokens,
			ActualUSD:    actual.CostUSD,
			Cheapest:     cheapest,
		})
	}

	return rows, cheapestGrandTotal, nil
}

// CacheSavings sums, for every cache-hit row, what the call would have
// cost had it gone upstream instead.
func (a *Aggregator) CacheSavings(ctx context.Context, tenantID string) (float64, error) {
	type hitRow struct {
		Provider     string
		Model        string
		InputTokens  int
		OutputTokens int
	}
	var hits []hitRow
	err := a.db.WithContext(ctx).Model(&models.UsageLog{}).
		Select("provider", "model", "input_tokens", "output_tokens").
		Where("tenant_id = ? AND cache_hit = ?", tenantID, true).
		Scan(&hits).Error
	if err != nil {
		return 0, types.NewError(types.ErrInternalError, "failed to compute cache savings").WithCause(err)
	}

	var total float64
	for _, h := range hits {
		total += pricing.Price(h.Provider, h.Model, h.InputTokens, h.OutputTokens)
	}
	return total, nil
}

// LogQuery filters and sorts the paginated logs-listing endpoint.
type LogQuery struct {
	Provider  string
	Model     string
	Tag       string
	From      time.Time
	To        time.Time
	SortField string
	SortDesc  bool
	Limit     int
	Offset    int
}

// Logs returns a filtered, sorted page of usage logs plus the total
// matching row count (for pagination).
func (a *Aggregator) Logs(ctx context.Context, tenantID string, q LogQuery) ([]models.UsageLog, int64, error) {
	query := a.scopedQuery(tenantID, q.Tag).WithContext(ctx)
	if q.Provider != "" {
		query = query.Where("llmlab_usage_logs.provider = ?", q.Provider)
	}
	if q.Model != "" {
		query = query.Where("llmlab_usage_logs.model = ?", q.Model)
	}
	if !q.From.IsZero() {
		query = query.Where("llmlab_usage_logs.created_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		query = query.Where("llmlab_usage_logs.created_at <= ?", q.To)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, types.NewError(types.ErrInternalError, "failed to count logs").WithCause(err)
	}

	sortField := q.SortField
	sortDesc := q.SortDesc
	if !SortFields[sortField] {
		sortField = "created_at"
		sortDesc = true
	}
	direction := "DESC"
	if !sortDesc {
		direction = "ASC"
	}

	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var logs []models.UsageLog
	err := query.Select("llmlab_usage_logs.*").
		Order("llmlab_usage_logs." + sortField + " " + direction).
		Limit(limit).
		Offset(q.Offset).
		Find(&logs).Error
	if err != nil {
		return nil, 0, types.NewError(types.ErrInternalError, "failed to list logs").WithCause(err)
	}
	return logs, total, nil
}

// GetLog returns a single usage log owned by tenantID.
func (a *Aggregator) GetLog(ctx context.Context, tenantID, logID string) (*models.UsageLog, error) {
	var log models.UsageLog
	err := a.db.WithContext(ctx).Preload("Tags").
		Where("id = ? AND tenant_id = ?", logID, tenantID).
		First(&log).Error
	if err != nil {
		return nil, types.NewError(types.ErrNotFound, "usage log not found").WithCause(err)
	}
	return &log, nil
}

// exportLimit caps the rows a single export request may return, so a
// tenant with years of history can't force an unbounded query.
const exportLimit = 50000

// ExportLogs returns every usage log matching q's filters (ignoring its
// pagination fields), ordered oldest-first, up to exportLimit rows.
func (a *Aggregator) ExportLogs(ctx context.Context, tenantID string, q LogQuery) ([]models.UsageLog, error) {
	query := a.scopedQuery(tenantID, q.Tag).WithContext(ctx)
	if q.Provider != "" {
		query = query.Where("llmlab_usage_logs.provider = ?", q.Provider)
	}
	if q.Model != "" {
		query = query.Where("llmlab_usage_logs.model = ?", q.Model)
	}
	if !q.From.IsZero() {
		query = query.Where("llmlab_usage_logs.created_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		query = query.Where("llmlab_usage_logs.created_at <= ?", q.To)
	}

	var logs []models.UsageLog
	err := query.Select("llmlab_usage_logs.*").
		Order("llmlab_usage_logs.created_at ASC").
		Limit(exportLimit).
		Find(&logs).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to export logs").WithCause(err)
	}
	return logs, nil
}

// ParseDateFilter strictly parses a YYYY-MM-DD date filter string.
func ParseDateFilter(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, types.NewError(types.ErrInvalidRequest, "date must be in YYYY-MM-DD format")
	}
	return t, nil
}
