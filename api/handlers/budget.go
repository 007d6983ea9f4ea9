package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/llmlab/llmlab/api"
	"github.com/llmlab/llmlab/budget"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/types"
)

// BudgetHandler serves budget CRUD. A tenant has at most one active budget.
type BudgetHandler struct {
	store  *budget.Store
	logger *zap.Logger
}

// NewBudgetHandler builds a BudgetHandler.
func NewBudgetHandler(store *budget.Store, logger *zap.Logger) *BudgetHandler {
	return &BudgetHandler{store: store, logger: logger}
}

func toBudgetDTO(b *models.Budget, spentUSD float64) api.Budget {
	return api.Budget{
		ID:                b.ID,
		TenantID:          b.TenantID,
		AmountUSD:         b.AmountUSD,
		Period:            b.Period,
		AlertThresholdPct: b.AlertThresholdPct,
		SpentUSD:          spentUSD,
		Enabled:           true,
		CreatedAt:         b.CreatedAt,
	}
}

// HandleGet GET /api/v1/budgets
func (h *BudgetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	b, err := h.store.Get(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	spent, err := h.store.CurrentSpend(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	resp := api.BudgetListResponse{Budgets: []api.Budget{toBudgetDTO(b, spent)}}
	WriteSuccess(w, resp)
}

// HandleUpsert POST /api/v1/budgets
func (h *BudgetHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	var req api.CreateBudgetRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	b, err := h.store.Upsert(r.Context(), tenantID, req.AmountUSD, req.Period, req.AlertThresholdPct)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	spent, err := h.store.CurrentSpend(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: toBudgetDTO(b, spent)})
}

// HandleDelete DELETE /api/v1/budgets
func (h *BudgetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), tenantID); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"message": "budget deleted"})
}
