// Package tag implements the Tag Registry: resolving or auto-creating
// the cost-attribution labels a tenant can attach to usage logs via the
// X-LLMLab-Tags request header.
package tag

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/types"
)

// HeaderName is the request header the Proxy Pipeline reads tag names from.
const HeaderName = "X-LLMLab-Tags"

// Registry resolves and auto-creates tags for a tenant.
type Registry struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRegistry builds a Registry.
func NewRegistry(db *gorm.DB, logger *zap.Logger) *Registry {
	return &Registry{db: db, logger: logger.With(zap.String("component", "tag_registry"))}
}

// ParseHeader splits a comma-separated X-LLMLab-Tags value into trimmed,
// non-empty names.
func ParseHeader(value string) []string {
	var names []string
	for _, part := range strings.Split(value, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// AutoAttach resolves or creates every tag named in headerValue for
// tenantID, then links each to usageLogID via the junction table.
// Links are deduplicated: a tag is never attached to the same log twice.
func (r *Registry) AutoAttach(ctx context.Context, tenantID, usageLogID, headerValue string) error {
	names := ParseHeader(headerValue)
	if len(names) == 0 {
		return nil
	}

	tags := make([]*models.Tag, 0, len(names))
	for _, name := range names {
		t, err := r.resolveOrCreate(ctx, tenantID, name)
		if err != nil {
			return err
		}
		tags = append(tags, t)
	}

	var log models.UsageLog
	log.ID = usageLogID
	if err := r.db.WithContext(ctx).Model(&log).Association("Tags").Append(tags); err != nil {
		return types.NewError(types.ErrInternalError, "failed to link tags to usage log").WithCause(err)
	}
	return nil
}

// resolveOrCreate looks up an existing (tenant, name) tag, or creates
// one with the default color. A duplicate-key race from a concurrent
// creator is recovered by re-reading, rather than surfaced as an error.
func (r *Registry) resolveOrCreate(ctx context.Context, tenantID, name string) (*models.Tag, error) {
	var existing models.Tag
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND name = ?", tenantID, name).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrInternalError, "failed to look up tag").WithCause(err)
	}

	created := &models.Tag{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
		Color:    models.DefaultTagColor,
	}
	if err := r.db.WithContext(ctx).Create(created).Error; err != nil {
		// Lost the race to a concurrent creator of the same (tenant, name)
		// pair; the unique index rejected our insert, so re-read theirs.
		r.logger.Debug("tag create lost race, re-reading", zap.String("tenant_id", tenantID), zap.String("name", name))
		var winner models.Tag
		if readErr := r.db.WithContext(ctx).
			Where("tenant_id = ? AND name = ?", tenantID, name).
			First(&winner).Error; readErr != nil {
			return nil, types.NewError(types.ErrInternalError, "failed to create or re-read tag").WithCause(err)
		}
		return &winner, nil
	}
	return created, nil
}

// ListTags returns every tag owned by tenantID.
func (r *Registry) ListTags(ctx context.Context, tenantID string) ([]models.Tag, error) {
	var tags []models.Tag
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("name").Find(&tags).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to list tags").WithCause(err)
	}
	return tags, nil
}

// CreateTag explicitly creates a tag with a caller-supplied color.
// Returns ErrConflict if (tenant, name) already exists.
func (r *Registry) CreateTag(ctx context.Context, tenantID, name, color string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "tag name is required")
	}
	if color == "" {
		color = models.DefaultTagColor
	}

	var existing int64
	if err := r.db.WithContext(ctx).Model(&models.Tag{}).
		Where("tenant_id = ? AND name = ?", tenantID, name).
		Count(&existing).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to check existing tags").WithCause(err)
	}
	if existing > 0 {
		return nil, types.NewError(types.ErrConflict, "a tag with this name already exists")
	}

	created := &models.Tag{ID: uuid.NewString(), TenantID: tenantID, Name: name, Color: color}
	if err := r.db.WithContext(ctx).Create(created).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to create tag").WithCause(err)
	}
	return created, nil
}

// AttachToLog links an existing tag to a usage log, both scoped to
// tenantID. Returns ErrNotFound if either row doesn't belong to the tenant.
func (r *Registry) AttachToLog(ctx context.Context, tenantID, usageLogID, tagID string) error {
	tagRow, err := r.ownedTag(ctx, tenantID, tagID)
	if err != nil {
		return err
	}
	log, err := r.ownedLog(ctx, tenantID, usageLogID)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Model(log).Association("Tags").Append(tagRow); err != nil {
		return types.NewError(types.ErrInternalError, "failed to attach tag").WithCause(err)
	}
	return nil
}

// DetachFromLog removes a tag's link to a usage log, both scoped to tenantID.
func (r *Registry) DetachFromLog(ctx context.Context, tenantID, usageLogID, tagID string) error {
	tagRow, err := r.ownedTag(ctx, tenantID, tagID)
	if err != nil {
		return err
	}
	log, err := r.ownedLog(ctx, tenantID, usageLogID)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Model(log).Association("Tags").Delete(tagRow); err != nil {
		return types.NewError(types.ErrInternalError, "failed to detach tag").WithCause(err)
	}
	return nil
}

func (r *Registry) ownedTag(ctx context.Context, tenantID, tagID string) (*models.Tag, error) {
	var t models.Tag
	if err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", tagID, tenantID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound, "tag not found")
		}
		return nil, types.NewError(types.ErrInternalError, "failed to look up tag").WithCause(err)
	}
	return &t, nil
}

func (r *Registry) ownedLog(ctx context.Context, tenantID, usageLogID string) (*models.UsageLog, error) {
	var log models.UsageLog
	if err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", usageLogID, tenantID).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound, "usage log not found")
		}
		return nil, types.NewError(types.ErrInternalError, "failed to look up usage log").WithCause(err)
	}
	return &log, nil
}

// DeleteTag removes a tag and its junction rows.
func (r *Registry) DeleteTag(ctx context.Context, tenantID, tagID string) error {
	if err := r.db.WithContext(ctx).Exec(
		"DELETE FROM llmlab_usage_log_tags WHERE tag_id IN (SELECT id FROM llmlab_tags WHERE id = ? AND tenant_id = ?)",
		tagID, tenantID).Error; err != nil {
		return types.NewError(types.ErrInternalError, "failed to delete tag links").WithCause(err)
	}
	result :=r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", tagID, tenantID).Delete(&models.Tag{})
	if result.Error != nil {
		return types.NewError(types.ErrInternalError, "failed to delete tag").WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "tag not found")
	}
	return nil
}
