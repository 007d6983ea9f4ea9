package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/api"
	"github.com/llmlab/llmlab/budget"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/types"
)

func setupBudgetHandler(t *testing.T) (*BudgetHandler, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Budget{}, &models.UsageLog{}))
	return NewBudgetHandler(budget.NewStore(db, zap.NewNop()), zap.NewNop()), db
}

func TestBudgetHandleUpsert_CreatesWithRealSpend(t *testing.T) {
	h, db := setupBudgetHandler(t)
	tenantID := "tenant-1"
	require.NoError(t, db.Create(&models.UsageLog{
		ID: uuid.NewString(), TenantID: tenantID, CredentialID: "cred-1",
		Provider: "openai", Model: "gpt-4o", CostUSD: 12.5, CreatedAt: time.Now(),
	}).Error)

	body, _ := json.Marshal(api.CreateBudgetRequest{AmountUSD: 100, Period: "monthly", AlertThresholdPct: 80})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/budgets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(types.WithTenantID(context.Background(), tenantID))
	w := httptest.NewRecorder()

	h.HandleUpsert(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp api.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	data, _ := json.Marshal(resp.Data)
	var created api.Budget
	require.NoError(t, json.Unmarshal(data, &created))
	assert.Equal(t, 12.5, created.SpentUSD)
}

func TestBudgetHandleGet_RequiresTenantContext(t *testing.T) {
	h, _ := setupBudgetHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/budgets", nil)
	w := httptest.NewRecorder()

	h.HandleGet(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBudgetHandleGet_NotFoundWithoutBudget(t *testing.T) {
	h, _ := setupBudgetHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/budgets", nil)
	req = req.WithContext(types.WithTenantID(context.Background(), "tenant-2"))
	w := httptest.NewRecorder()

	h.HandleGet(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBudgetHandleDelete_RemovesBudget(t *testing.T) {
	h, db := setupBudgetHandler(t)
	tenantID := "tenant-3"
	require.NoError(t, db.Create(&models.Budget{ID: uuid.NewString(), TenantID: tenantID, AmountUSD: 50, Period: "monthly", AlertThresholdPct: 80}).Error)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/budgets", nil)
	req = req.WithContext(types.WithTenantID(context.Background(), tenantID))
	w := httptest.NewRecorder()

	h.HandleDelete(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
