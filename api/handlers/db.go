package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/llmlab/llmlab/internal/database"
	"github.com/llmlab/llmlab/types"
)

// DBStatsProvider is the subset of internal/database.PoolManager this
// handler needs — kept as an interface so tests can supply a fake without
// standing up a real connection pool.
type DBStatsProvider interface {
	GetStats() database.PoolStats
}

// DBHandler exposes the connection pool's live statistics for operators.
type DBHandler struct {
	pool   DBStatsProvider
	logger *zap.Logger
}

// NewDBHandler builds a DBHandler.
func NewDBHandler(pool DBStatsProvider, logger *zap.Logger) *DBHandler {
	return &DBHandler{pool: pool, logger: logger}
}

// HandleStats GET /api/v1/admin/db-stats
func (h *DBHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	if _, ok := requireTenant(w, r, h.logger); !ok {
		return
	}
	WriteSuccess(w, h.pool.GetStats())
}
