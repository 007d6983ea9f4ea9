package tag

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/models"
)

func setupTestRegistry(t *testing.T) (*gorm.DB, *Registry) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Tag{}, &models.UsageLog{}))
	return db, NewRegistry(db, zap.NewNop())
}

func TestParseHeader_TrimsAndDiscardsEmpty(t *testing.T) {
	names := ParseHeader("backend, ,prod")
	assert.Equal(t, []string{"backend", "prod"}, names)
}

func TestParseHeader_EmptyValue(t *testing.T) {
	assert.Empty(t, ParseHeader(""))
	assert.Empty(t, ParseHeader("   "))
}

func TestAutoAttach_CreatesTagsAndLinksLog(t *testing.T) {
	db, reg := setupTestRegistry(t)
	ctx := context.Background()
	tenantID := uuid.NewString()

	log := &models.UsageLog{ID: uuid.NewString(), TenantID: tenantID, Provider: "openai", Model: "gpt-4o"}
	require.NoError(t, db.Create(log).Error)

	require.NoError(t, reg.AutoAttach(ctx, tenantID, log.ID, "backend, ,prod"))

	tags, err := reg.ListTags(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	var reloaded models.UsageLog
	require.NoError(t, db.Preload("Tags").First(&reloaded, "id = ?", log.ID).Error)
	assert.Len(t, reloaded.Tags, 2)
}

func TestAutoAttach_ReusesExistingTag(t *testing.T) {
	db, reg := setupTestRegistry(t)
	ctx := context.Background()
	tenantID := uuid.NewString()

	log1 := &models.UsageLog{ID: uuid.NewString(), TenantID: tenantID, Provider: "openai", Model: "gpt-4o"}
	log2 := &models.UsageLog{ID: uuid.NewString(), TenantID: tenantID, Provider: "openai", Model: "gpt-4o"}
	require.NoError(t, db.Create(log1).Error)
	require.NoError(t, db.Create(log2).Error)

	require.NoError(t, reg.AutoAttach(ctx, tenantID, log1.ID, "prod"))
	require.NoError(t, reg.AutoAttach(ctx, tenantID, log2.ID, "prod"))

	tags, err := reg.ListTags(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, tags, 1, "the same tenant+name tag should be reused, not duplicated")
}

func TestAutoAttach_EmptyHeaderIsNoOp(t *testing.T) {
	db, reg := setupTestRegistry(t)
	ctx := context.Background()
	tenantID := uuid.NewString()

	log := &models.UsageLog{ID: uuid.NewString(), TenantID: tenantID, Provider: "openai", Model: "gpt-4o"}
	require.NoError(t, db.Create(log).Error)

	require.NoError(t, reg.AutoAttach(ctx, tenantID, log.ID, ""))

	tags, err := reg.ListTags(ctx, tenantID)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestCreateTag_RejectsDuplicateName(t *testing.T) {
	_, reg := setupTestRegistry(t)
	ctx := context.Background()
	tenantID := uuid.NewString()

	_, err := reg.CreateTag(ctx, tenantID, "prod", "#ff0000")
	require.NoError(t, err)

	_, err = reg.CreateTag(ctx, tenantID, "prod", "#00ff00")
	assert.Error(t, err)
}

func TestCreateTag_DefaultsColor(t *testing.T) {
	_, reg := setupTestRegistry(t)
	created, err := reg.CreateTag(context.Background(), uuid.NewString(), "prod", "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTagColor, created.Color)
}

func TestDeleteTag_NotFound(t *testing.T) {
	_, reg := setupTestRegistry(t)
	err := reg.DeleteTag(context.Background(), uuid.NewString(), uuid.NewString())
	assert.Error(t, err)
}

func TestAttachToLog_LinksExistingTag(t *testing.T) {
	db, reg := setupTestRegistry(t)
	ctx := context.Background()
	tenantID := uuid.NewString()

	log := &models.UsageLog{ID: uuid.NewString(), TenantID: tenantID, Provider: "openai", Model: "gpt-4o"}
	require.NoError(t, db.Create(log).Error)

	created, err := reg.CreateTag(ctx, tenantID, "prod", "")
	require.NoError(t, err)

	require.NoError(t, reg.AttachToLog(ctx, tenantID, log.ID, created.ID))

	var reloaded models.UsageLog
	require.NoError(t, db.Preload("Tags").First(&reloaded, "id = ?", log.ID).Error)
	require.Len(t, reloaded.Tags, 1)
	assert.Equal(t, created.ID, reloaded.Tags[0].ID)
}

func TestAttachToLog_RejectsTagFromOtherTenant(t *testing.T) {
	db, reg := setupTestRegistry(t)
	ctx := context.Background()

	log := &models.UsageLog{ID: uuid.NewString(), TenantID: "tenant-1", Provider: "openai", Model: "gpt-4o"}
	require.NoError(t, db.Create(log).Error)

	created, err := reg.CreateTag(ctx, "tenant-2", "prod", "")
	require.NoError(t, err)

	err = reg.AttachToLog(ctx, "tenant-1", log.ID, created.ID)
	assert.Error(t, err)
}

func TestDetachFromLog_RemovesLink(t *testing.T) {
	db, reg := setupTestRegistry(t)
	ctx := context.Background()
	tenantID := uuid.NewString()

	log := &models.UsageLog{ID: uuid.NewString(), TenantID: tenantID, Provider: "openai", Model: "gpt-4o"}
	require.NoError(t, db.Create(log).Error)
	created, err := reg.CreateTag(ctx, tenantID, "prod", "")
	require.NoError(t, err)
	require.NoError(t, reg.AttachToLog(ctx, tenantID, log.ID, created.ID))

	require.NoError(t, reg.DetachFromLog(ctx, tenantID, log.ID, created.ID))

	var reloaded models.UsageLog
	require.NoError(t, db.Preload("Tags").First(&reloaded, "id = ?", log.ID).Error)
	assert.Empty(t, reloaded.Tags)
}
