package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/llmlab/llmlab/api"
	"github.com/llmlab/llmlab/credential"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/types"
)

// CredentialHandler serves provider credential and proxy-key CRUD.
type CredentialHandler struct {
	store  *credential.Store
	logger *zap.Logger
}

// NewCredentialHandler builds a CredentialHandler.
func NewCredentialHandler(store *credential.Store, logger *zap.Logger) *CredentialHandler {
	return &CredentialHandler{store: store, logger: logger}
}

func toCredentialDTO(c *models.Credential) api.Credential {
	return api.Credential{
		ID:        c.ID,
		TenantID:  c.TenantID,
		Provider:  c.Provider,
		Label:     c.Label,
		Enabled:   c.Enabled,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		// the masked secret requires decryption, done separately where needed
	}
}

var allowedProviders = []string{"openai", "anthropic", "google"}

// HandleList GET /api/v1/credentials
func (h *CredentialHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	creds, err := h.store.ListCredentials(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	resp := api.CredentialListResponse{Credentials: make([]api.Credential, 0, len(creds))}
	for i := range creds {
		resp.Credentials = append(resp.Credentials, toCredentialDTO(&creds[i]))
	}
	WriteSuccess(w, resp)
}

// HandleCreate POST /api/v1/credentials
func (h *CredentialHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	var req api.CreateCredentialRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if !ValidateEnum(req.Provider, allowedProviders) {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "unsupported provider", h.logger)
		return
	}

	cred, err := h.store.CreateCredential(r.Context(), tenantID, req.Provider, req.Label, req.Secret)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: toCredentialDTO(cred)})
}

// HandleUpdate PUT /api/v1/credentials/{id}
func (h *CredentialHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	id := extractIDFromPath(r, "credentials")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid credential id", h.logger)
		return
	}

	var req api.UpdateCredentialRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	cred, err := h.store.UpdateCredential(r.Context(), tenantID, id, req.Label, req.Secret, req.Enabled)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	WriteSuccess(w, toCredentialDTO(cred))
}

// HandleDelete DELETE /api/v1/credentials/{id}
func (h *CredentialHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	id := extractIDFromPath(r, "credentials")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid credential id", h.logger)
		return
	}

	if err := h.store.DeleteCredential(r.Context(), tenantID, id); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"message": "credential deleted"})
}

// HandleMintProxyKey POST /api/v1/credentials/{id}/proxy-keys
func (h *CredentialHandler) HandleMintProxyKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	id := extractIDFromPath(r, "credentials")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid credential id", h.logger)
		return
	}

	plaintext, key, err := h.store.MintProxyKey(r.Context(), tenantID, id)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: api.ProxyKey{
		ID:           key.ID,
		CredentialID: key.CredentialID,
		Secret:       plaintext,
		MaskedSecret: key.MaskedSecret,
		Enabled:      key.Enabled,
		CreatedAt:    key.CreatedAt,
	}})
}

// extractIDFromPath pulls the path segment immediately following
// resource in r.URL.Path, preferring Go 1.22+ PathValue("id").
func extractIDFromPath(r *http.Request, resource string) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for i, p := range parts {
		if p == resource && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func writeStoreError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if apiErr, ok := err.(*types.Error); ok {
		WriteError(w, apiErr, logger)
		return
	}
	WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "internal error", logger)
}
