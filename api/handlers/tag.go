package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/llmlab/llmlab/api"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/tag"
	"github.com/llmlab/llmlab/types"
)

// TagHandler serves tag CRUD.
type TagHandler struct {
	registry *tag.Registry
	logger   *zap.Logger
}

// NewTagHandler builds a TagHandler.
func NewTagHandler(registry *tag.Registry, logger *zap.Logger) *TagHandler {
	return &TagHandler{registry: registry, logger: logger}
}

func toTagDTO(t *models.Tag) api.Tag {
	return api.Tag{
		ID:        t.ID,
		TenantID:  t.TenantID,
		Name:      t.Name,
		Color:     t.Color,
		CreatedAt: t.CreatedAt,
	}
}

// HandleList GET /api/v1/tags
func (h *TagHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	tags, err := h.registry.ListTags(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	resp := api.TagListResponse{Tags: make([]api.Tag, 0, len(tags))}
	for i := range tags {
		resp.Tags = append(resp.Tags, toTagDTO(&tags[i]))
	}
	WriteSuccess(w, resp)
}

// HandleCreate POST /api/v1/tags
func (h *TagHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	var req api.CreateTagRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	t, err := h.registry.CreateTag(r.Context(), tenantID, req.Name, req.Color)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: toTagDTO(t)})
}

// HandleDelete DELETE /api/v1/tags/{id}
func (h *TagHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	id := extractIDFromPath(r, "tags")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid tag id", h.logger)
		return
	}

	if err := h.registry.DeleteTag(r.Context(), tenantID, id); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"message": "tag deleted"})
}

// logTagPathIDs splits /api/v1/logs/{logID}/tags[/{tagID}] into its two
// path segments; tagID is empty when the request names no specific tag.
func logTagPathIDs(r *http.Request) (logID, tagID string) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for i, p := range parts {
		if p == "logs" && i+2 < len(parts) && parts[i+2] == "tags" {
			logID = parts[i+1]
			if i+3 < len(parts) {
				tagID = parts[i+3]
			}
			return
		}
	}
	return
}

// HandleAttach POST /api/v1/logs/{id}/tags — body {"tag_id": "..."}
func (h *TagHandler) HandleAttach(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	logID, _ := logTagPathIDs(r)
	if logID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid usage log id", h.logger)
		return
	}

	var req struct {
		TagID string `json:"tag_id"`
	}
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.TagID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "tag_id is required", h.logger)
		return
	}

	if err := h.registry.AttachToLog(r.Context(), tenantID, logID, req.TagID); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"message": "tag attached"})
}

// HandleDetach DELETE /api/v1/logs/{id}/tags/{tag_id}
func (h *TagHandler) HandleDetach(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing tenant context", h.logger)
		return
	}

	logID, tagID := logTagPathIDs(r)
	if logID == "" || tagID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid usage log or tag id", h.logger)
		return
	}

	if err := h.registry.DetachFromLog(r.Context(), tenantID, logID, tagID); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"message": "tag detached"})
}
