package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/llmlab/llmlab/api"
	"github.com/llmlab/llmlab/auth"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/types"
)

// AuthHandler implements the GitHub OAuth login exchange and the
// current-tenant profile lookup.
type AuthHandler struct {
	exchanger auth.IdentityExchanger
	tenants   *auth.TenantStore
	issuer    *auth.TokenIssuer
	logger    *zap.Logger
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(exchanger auth.IdentityExchanger, tenants *auth.TenantStore, issuer *auth.TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{exchanger: exchanger, tenants: tenants, issuer: issuer, logger: logger}
}

func toTenantDTO(t *models.Tenant) api.Tenant {
	return api.Tenant{
		ID:          t.ID,
		Email:       t.Email,
		DisplayName: t.DisplayName,
		AvatarURL:   t.AvatarURL,
		CreatedAt:   t.CreatedAt,
	}
}

// HandleGitHubLogin POST /auth/github
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	var req api.GitHubLoginRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Code == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "code is required", h.logger)
		return
	}

	ctx := r.Context()
	identity, err := h.exchanger.Exchange(ctx, req.Code)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	tenant, err := h.tenants.FindOrCreateByGitHub(ctx, identity)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	token, expiresIn, err := h.issuer.Mint(tenant)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	WriteSuccess(w, api.Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
		Tenant:      toTenantDTO(tenant),
	})
}

// HandleMe GET /api/v1/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	tenant, err := h.tenants.Get(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	WriteSuccess(w, toTenantDTO(tenant))
}
