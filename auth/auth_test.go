package auth

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/config"
	"github.com/llmlab/llmlab/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Tenant{}))
	return db
}

func TestFindOrCreateByGitHub_CreatesOnFirstLogin(t *testing.T) {
	db := setupTestDB(t)
	store := NewTenantStore(db, zap.NewNop())

	tenant, err := store.FindOrCreateByGitHub(t.Context(), &Identity{
		GitHubID: 42, Email: "dev@example.com", Username: "dev", AvatarURL: "https://example.com/a.png",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, tenant.ID)
	assert.Equal(t, int64(42), tenant.GitHubID)
	assert.Equal(t, "dev@example.com", tenant.Email)
}

func TestFindOrCreateByGitHub_ReusesExistingRowAndRefreshesProfile(t *testing.T) {
	db := setupTestDB(t)
	store := NewTenantStore(db, zap.NewNop())

	first, err := store.FindOrCreateByGitHub(t.Context(), &Identity{
		GitHubID: 42, Email: "old@example.com", Username: "olduser",
	})
	require.NoError(t, err)

	second, err := store.FindOrCreateByGitHub(t.Context(), &Identity{
		GitHubID: 42, Email: "new@example.com", Username: "newuser",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "new@example.com", second.Email)
	assert.Equal(t, "newuser", second.DisplayName)
}

func TestGet_NotFound(t *testing.T) {
	db := setupTestDB(t)
	store := NewTenantStore(db, zap.NewNop())

	_, err := store.Get(t.Context(), "missing-tenant")
	assert.Error(t, err)
}

func TestTokenIssuer_MintProducesVerifiableToken(t *testing.T) {
	cfg := config.JWTConfig{
		Algorithm: "HS256",
		Secret:    "test-secret",
		Issuer:    "llmlab",
		Audience:  "llmlab-api",
		TokenTTL:  time.Hour,
	}
	issuer := NewTokenIssuer(cfg)
	tenant := &models.Tenant{ID: "tenant-1"}

	token, expiresIn, err := issuer.Mint(tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), expiresIn)

	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	assert.True(t, parsed.Valid)

	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "tenant-1", claims["tenant_id"])
}

func TestTokenIssuer_MintFallsBackToDefaultTTL(t *testing.T) {
	issuer := NewTokenIssuer(config.JWTConfig{Secret: "s"})
	_, expiresIn, err := issuer.Mint(&models.Tenant{ID: "tenant-1"})
	require.NoError(t, err)
	assert.Equal(t, int64((24 * time.Hour).Seconds()), expiresIn)
}
