package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/llmlab/llmlab/cache"
	"github.com/llmlab/llmlab/types"
)

// CacheHandler exposes response-cache stats and manual invalidation.
type CacheHandler struct {
	cache  cache.Cache
	logger *zap.Logger
}

// NewCacheHandler builds a CacheHandler.
func NewCacheHandler(c cache.Cache, logger *zap.Logger) *CacheHandler {
	return &CacheHandler{cache: c, logger: logger}
}

// HandleStats GET /api/v1/cache/stats
func (h *CacheHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	if _, ok := requireTenant(w, r, h.logger); !ok {
		return
	}
	WriteSuccess(w, h.cache.Stats(r.Context()))
}

// HandleClear GET/DELETE /api/v1/cache
func (h *CacheHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r, h.logger)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		_ = tenantID
		WriteSuccess(w, h.cache.Stats(r.Context()))
	case http.MethodDelete:
		if err := h.cache.Clear(r.Context()); err != nil {
			writeStoreError(w, err, h.logger)
			return
		}
		WriteSuccess(w, map[string]string{"message": "cache cleared"})
	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}
