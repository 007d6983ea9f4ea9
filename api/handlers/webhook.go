package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/llmlab/llmlab/api"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/types"
	"github.com/llmlab/llmlab/webhook"
)

// WebhookHandler serves alert-webhook CRUD.
type WebhookHandler struct {
	store  *webhook.Store
	logger *zap.Logger
}

// NewWebhookHandler builds a WebhookHandler.
func NewWebhookHandler(store *webhook.Store, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{store: store, logger: logger}
}

func toWebhookDTO(h *models.Webhook) api.Webhook {
	return api.Webhook{
		ID:        h.ID,
		TenantID:  h.TenantID,
		URL:       h.URL,
		EventType: string(h.EventType),
		Enabled:   h.Active,
		CreatedAt: h.CreatedAt,
	}
}

// HandleList GET /api/v1/webhooks
func (h *WebhookHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	hooks, err := h.store.List(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	resp := api.WebhookListResponse{Webhooks: make([]api.Webhook, 0, len(hooks))}
	for i := range hooks {
		resp.Webhooks = append(resp.Webhooks, toWebhookDTO(&hooks[i]))
	}
	WriteSuccess(w, resp)
}

// HandleCreate POST /api/v1/webhooks
func (h *WebhookHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	var req api.CreateWebhookRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if !ValidateURL(req.URL) {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "url must be a well-formed http(s) URL", h.logger)
		return
	}

	hook, err := h.store.Create(r.Context(), tenantID, req.URL, models.WebhookEvent(req.EventType))
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: toWebhookDTO(hook)})
}

// HandleDelete DELETE /api/v1/webhooks/{id}
func (h *WebhookHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	id := extractIDFromPath(r, "webhooks")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid webhook id", h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), tenantID, id); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"message": "webhook deleted"})
}
