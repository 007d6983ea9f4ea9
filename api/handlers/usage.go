package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/llmlab/llmlab/aggregate"
	"github.com/llmlab/llmlab/anomaly"
	"github.com/llmlab/llmlab/api"
	"github.com/llmlab/llmlab/forecast"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/types"
)

// UsageHandler serves every read-side stats, logs, and export endpoint.
type UsageHandler struct {
	aggregator *aggregate.Aggregator
	forecaster *forecast.Forecaster
	detector   *anomaly.Detector
	logger     *zap.Logger
}

// NewUsageHandler builds a UsageHandler.
func NewUsageHandler(aggregator *aggregate.Aggregator, forecaster *forecast.Forecaster, detector *anomaly.Detector, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{aggregator: aggregator, forecaster: forecaster, detector: detector, logger: logger}
}

func toUsageLogDTO(log *models.UsageLog) api.UsageLog {
	tags := make([]string, 0, len(log.Tags))
	for _, t := range log.Tags {
		tags = append(tags, t.Name)
	}
	return api.UsageLog{
		ID:           log.ID,
		TenantID:     log.TenantID,
		CredentialID: log.CredentialID,
		Provider:     log.Provider,
		Model:        log.Model,
		InputTokens:  log.InputTokens,
		OutputTokens: log.OutputTokens,
		CostUSD:      log.CostUSD,
		StatusCode:   log.StatusCode,
		LatencyMS:    log.LatencyMS,
		CacheHit:     log.CacheHit,
		Tags:         tags,
		CreatedAt:    log.CreatedAt,
	}
}

func requireTenant(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", logger)
		return "", false
	}
	return tenantID, true
}

// HandleStats GET /api/v1/stats?period=&tag=
func (h *UsageHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := requireTenant(w, r, h.logger)
	if !ok {
		return
	}

	period := aggregate.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = aggregate.PeriodAll
	}
	tag := r.URL.Query().Get("tag")

	summary, err := h.aggregator.Summary(r.Context(), tenantID, period, tag)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, summary)
}

// HandleByModel GET /api/v1/stats/by-model
func (h *UsageHandler) HandleByModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := requireTenant(w, r, h.logger)
	if !ok {
		return
	}

	rows, err := h.aggregator.ByModel(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"models": rows})
}

// HandleByDay GET /api/v1/stats/by-day
func (h *UsageHandler) HandleByDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := requireTenant(w, r, h.logger)
	if !ok {
		return
	}

	rows, err := h.aggregator.ByDay(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"days": rows})
}

// HandleHeatmap GET /api/v1/stats/heatmap
func (h *UsageHandler) HandleHeatmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := requireTenant(w, r, h.logger)
	if !ok {
		return
	}

	cells, err := h.aggregator.Heatmap(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"cells": cells})
}

// HandleComparison GET /api/v1/stats/comparison
func (h *UsageHandler) HandleComparison(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := requireTenant(w, r, h.logger)
	if !ok {
		return
	}

	rows, cheapestGrandTotal, err := h.aggregator.Comparison(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	var savingsAvailableUSD float64
	for _, row := range rows {
		savingsAvailableUSD += row.ActualUSD
	}
	savingsAvailableUSD -= cheapestGrandTotal

	cacheSavings, err := h.aggregator.CacheSavings(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]any{
		"models":                rows,
		"cheapest_grand_total":  cheapestGrandTotal,
		"savings_available_usd": savingsAvailableUSD,
		"cache_savings_usd":     cacheSavings,
	})
}

// HandleForecast GET /api/v1/stats/forecast
func (h *UsageHandler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := requireTenant(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.forecaster.Forecast(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, result)
}

// HandleAnomalies GET /api/v1/stats/anomalies
func (h *UsageHandler) HandleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := requireTenant(w, r, h.logger)
	if !ok {
		return
	}

	anomalies, err := h.detector.Detect(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"anomalies": anomalies})
}

// buildLogQuery parses the shared provider/model/tag/from/to/sort/limit/offset
// query params used by both the logs listing and export endpoints.
func buildLogQuery(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (aggregate.LogQuery, bool) {
	q := r.URL.Query()
	query := aggregate.LogQuery{
		Provider: q.Get("provider"),
		Model:    q.Get("model"),
		Tag:      q.Get("tag"),
	}

	if from := q.Get("from"); from != "" {
		t, err := aggregate.ParseDateFilter(from)
		if err != nil {
			writeStoreError(w, err, logger)
			return aggregate.LogQuery{}, false
		}
		query.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := aggregate.ParseDateFilter(to)
		if err != nil {
			writeStoreError(w, err, logger)
			return aggregate.LogQuery{}, false
		}
		query.To = t
	}

	query.SortField = q.Get("sort")
	query.SortDesc = q.Get("order") != "asc"

	if limit := q.Get("limit"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			query.Limit = v
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if v, err := strconv.Atoi(offset); err == nil {
			query.Offset = v
		}
	}
	return query, true
}

// HandleLogs GET /api/v1/logs
func (h *UsageHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := requireTenant(w, r, h.logger)
	if !ok {
		return
	}

	query, ok := buildLogQuery(w, r, h.logger)
	if !ok {
		return
	}

	logs, total, err := h.aggregator.Logs(r.Context(), tenantID, query)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	resp := api.UsageLogListResponse{Logs: make([]api.UsageLog, 0, len(logs))}
	for i := range logs {
		resp.Logs = append(resp.Logs, toUsageLogDTO(&logs[i]))
	}
	nextOffset := query.Offset + len(logs)
	if int64(nextOffset) < total {
		resp.NextOffset = nextOffset
	}
	WriteSuccess(w, resp)
}

// HandleLogByID GET /api/v1/logs/{id}
func (h *UsageHandler) HandleLogByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := requireTenant(w, r, h.logger)
	if !ok {
		return
	}

	id := extractIDFromPath(r, "logs")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid log id", h.logger)
		return
	}

	log, err := h.aggregator.GetLog(r.Context(), tenantID, id)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, toUsageLogDTO(log))
}

// HandleExportJSON GET /api/v1/export/json
func (h *UsageHandler) HandleExportJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := requireTenant(w, r, h.logger)
	if !ok {
		return
	}

	query, ok := buildLogQuery(w, r, h.logger)
	if !ok {
		return
	}

	logs, err := h.aggregator.ExportLogs(r.Context(), tenantID, query)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	dtos := make([]api.UsageLog, 0, len(logs))
	for i := range logs {
		dtos = append(dtos, toUsageLogDTO(&logs[i]))
	}

	w.Header().Set("Content-Disposition", `attachment; filename="usage-export.json"`)
	WriteSuccess(w, map[string]any{"logs": dtos})
}

// HandleExportCSV GET /api/v1/export/csv
func (h *UsageHandler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := requireTenant(w, r, h.logger)
	if !ok {
		return
	}

	query, ok := buildLogQuery(w, r, h.logger)
	if !ok {
		return
	}

	logs, err := h.aggregator.ExportLogs(r.Context(), tenantID, query)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="usage-export.csv"`)
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	defer writer.Flush()

	_ = writer.Write([]string{
		"id", "provider", "model", "input_tokens", "output_tokens",
		"cost_usd", "status_code", "latency_ms", "cache_hit", "tags", "created_at",
	})
	for _, log := range logs {
		tagNames := make([]string, 0, len(log.Tags))
		for _, t := range log.Tags {
			tagNames = append(tagNames, t.Name)
		}
		_ = writer.Write([]string{
			log.ID,
			log.Provider,
			log.Model,
			strconv.Itoa(log.InputTokens),
			strconv.Itoa(log.OutputTokens),
			fmt.Sprintf("%f", log.CostUSD),
			strconv.Itoa(log.StatusCode),
			strconv.FormatInt(log.LatencyMS, 10),
			strconv.FormatBool(log.CacheHit),
			strings.Join(tagNames, ";"),
			log.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
}
