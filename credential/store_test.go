package credential

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/models"
)

const testKeyBase64 = "MDEyMzQ1Njc4OTAxMjM0NTY3ODkwMTIzNDU2Nzg5MDE=" // 32 bytes base64

func setupTestStore(t *testing.T) (*gorm.DB, *Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Credential{}, &models.ProxyKey{}))

	enc, err := NewEncryptor(testKeyBase64)
	require.NoError(t, err)

	return db, NewStore(db, enc, zap.NewNop())
}

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor(testKeyBase64)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("sk-super-secret")
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "sk-super-secret")

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "sk-super-secret", plaintext)
}

func TestEncryptor_RejectsBadKeyLength(t *testing.T) {
	_, err := NewEncryptor("dG9vc2hvcnQ=")
	assert.Error(t, err)
}

func TestMintProxyKey_PrefixAndHash(t *testing.T) {
	plaintext, hashed, masked, err := MintProxyKey()
	require.NoError(t, err)
	assert.Contains(t, plaintext, proxyKeyPrefix)
	assert.Equal(t, hashed, HashProxyKey(plaintext))
	assert.Contains(t, masked, proxyKeyPrefix)
	assert.NotEqual(t, plaintext, masked)
}

func TestStore_CreateAndResolveProxyKey(t *testing.T) {
	ctx := context.Background()
	_, store := setupTestStore(t)

	cred, err := store.CreateCredential(ctx, "tenant-1", "openai", "primary", "sk-upstream")
	require.NoError(t, err)

	plaintext, key, err := store.MintProxyKey(ctx, "tenant-1", cred.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, plaintext)

	resolvedKey, resolvedCred, err := store.ResolveProxyKey(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, key.ID, resolvedKey.ID)
	assert.Equal(t, cred.ID, resolvedCred.ID)

	secret, err := store.DecryptSecret(resolvedCred)
	require.NoError(t, err)
	assert.Equal(t, "sk-upstream", secret)
}

func TestStore_ResolveProxyKey_Disabled(t *testing.T) {
	ctx := context.Background()
	db, store := setupTestStore(t)

	cred, err := store.CreateCredential(ctx, "tenant-1", "openai", "primary", "sk-upstream")
	require.NoError(t, err)

	plaintext, key, err := store.MintProxyKey(ctx, "tenant-1", cred.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.ProxyKey{}).Where("id = ?", key.ID).Update("enabled", false).Error)

	_, _, err = store.ResolveProxyKey(ctx, plaintext)
	assert.Error(t, err)
}

func TestStore_DeleteCredential_CascadesProxyKeys(t *testing.T) {
	ctx := context.Background()
	db, store := setupTestStore(t)

	cred, err := store.CreateCredential(ctx, "tenant-1", "openai", "primary", "sk-upstream")
	require.NoError(t, err)
	_, _, err = store.MintProxyKey(ctx, "tenant-1", cred.ID)
	require.NoError(t, err)

	require.NoError(t, store.DeleteCredential(ctx, "tenant-1", cred.ID))

	var count int64
	db.Model(&models.ProxyKey{}).Where("credential_id = ?", cred.ID).Count(&count)
	assert.Zero(t, count)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "sk-...ab12", MaskSecret("sk-1234567890ab12"))
}
