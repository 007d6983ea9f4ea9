package credential

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/types"
)

// Store persists tenant credentials and the proxy keys minted against
// them. Upstream secrets are encrypted at rest; proxy keys are never
// stored in plaintext, only as a SHA-256 digest.
type Store struct {
	db        *gorm.DB
	encryptor *Encryptor
	logger    *zap.Logger
}

// NewStore builds a Store.
func NewStore(db *gorm.DB, encryptor *Encryptor, logger *zap.Logger) *Store {
	return &Store{db: db, encryptor: encryptor, logger: logger.With(zap.String("component", "credential_store"))}
}

// CreateCredential encrypts and persists a new upstream provider credential.
// At most one active credential per (tenant, provider) is allowed; a
// second active credential for the same pair is rejected as a conflict.
func (s *Store) CreateCredential(ctx context.Context, tenantID, provider, label, secret string) (*models.Credential, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "secret is required")
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.Credential{}).
		Where("tenant_id = ? AND provider = ? AND enabled = ?", tenantID, provider, true).
		Count(&existing).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to check existing credentials").WithCause(err)
	}
	if existing > 0 {
		return nil, types.NewError(types.ErrConflict, "an active credential already exists for this provider")
	}

	encrypted, err := s.encryptor.Encrypt(secret)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to encrypt credential").WithCause(err)
	}

	cred := &models.Credential{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		Provider:        provider,
		Label:           label,
		EncryptedSecret: encrypted,
		Enabled:         true,
	}

	if err := s.db.WithContext(ctx).Create(cred).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to store credential").WithCause(err)
	}

	return cred, nil
}

// GetCredential fetches a single credential owned by tenantID.
func (s *Store) GetCredential(ctx context.Context, tenantID, credentialID string) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", credentialID, tenantID).
		First(&cred).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.NewError(types.ErrNotFound, "credential not found")
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to load credential").WithCause(err)
	}
	return &cred, nil
}

// ListCredentials returns every credential owned by tenantID.
func (s *Store) ListCredentials(ctx context.Context, tenantID string) ([]models.Credential, error) {
	var creds []models.Credential
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&creds).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to list credentials").WithCause(err)
	}
	return creds, nil
}

// UpdateCredential applies a partial update; a non-nil secret is re-encrypted.
func (s *Store) UpdateCredential(ctx context.Context, tenantID, credentialID string, label, secret *string, enabled *bool) (*models.Credential, error) {
	cred, err := s.GetCredential(ctx, tenantID, credentialID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if label != nil {
		updates["label"] = *label
	}
	if secret != nil {
		if strings.TrimSpace(*secret) == "" {
			return nil, types.NewError(types.ErrInvalidRequest, "secret cannot be empty")
		}
		encrypted, err := s.encryptor.Encrypt(*secret)
		if err != nil {
			return nil, types.NewError(types.ErrInternalError, "failed to encrypt credential").WithCause(err)
		}
		updates["encrypted_secret"] = encrypted
	}
	if enabled != nil {
		updates["enabled"] = *enabled
	}

	if len(updates) == 0 {
		return cred, nil
	}

	if err := s.db.WithContext(ctx).Model(cred).Updates(updates).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to update credential").WithCause(err)
	}
	return s.GetCredential(ctx, tenantID, credentialID)
}

// DeleteCredential removes a credential and every proxy key minted against it.
func (s *Store) DeleteCredential(ctx context.Context, tenantID, credentialID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND tenant_id = ?", credentialID, tenantID).Delete(&models.Credential{})
		if result.Error != nil {
			return types.NewError(types.ErrInternalError, "failed to delete credential").WithCause(result.Error)
		}
		if result.RowsAffected == 0 {
			return types.NewError(types.ErrNotFound, "credential not found")
		}
		if err := tx.Where("credential_id = ?", credentialID).Delete(&models.ProxyKey{}).Error; err != nil {
			return types.NewError(types.ErrInternalError, "failed to delete proxy keys").WithCause(err)
		}
		return nil
	})
}

// DecryptSecret returns the plaintext upstream secret for a credential.
// Used only by the proxy pipeline to build the outbound request.
func (s *Store) DecryptSecret(cred *models.Credential) (string, error) {
	secret, err := s.encryptor.Decrypt(cred.EncryptedSecret)
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "failed to decrypt credential").WithCause(err)
	}
	return secret, nil
}

// MintProxyKey generates and persists a new proxy key bound to credentialID.
// The plaintext secret is returned once and never stored.
func (s *Store) MintProxyKey(ctx context.Context, tenantID, credentialID string) (plaintext string, key *models.ProxyKey, err error) {
	if _, err := s.GetCredential(ctx, tenantID, credentialID); err != nil {
		return "", nil, err
	}

	plaintext, hashed, masked, err := MintProxyKey()
	if err != nil {
		return "", nil, types.NewError(types.ErrInternalError, "failed to mint proxy key").WithCause(err)
	}

	key = &models.ProxyKey{
		ID:           uuid.NewString(),
		CredentialID: credentialID,
		TenantID:     tenantID,
		HashedSecret: hashed,
		MaskedSecret: masked,
		Enabled:      true,
		CreatedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return "", nil, types.NewError(types.ErrInternalError, "failed to store proxy key").WithCause(err)
	}
	return plaintext, key, nil
}

// ResolveProxyKey looks up the credential bound to a plaintext proxy key.
// Returns ErrCredentialInvalid if the key or its bound credential is
// unknown, and ErrCredentialDisabled if either one is disabled.
func (s *Store) ResolveProxyKey(ctx context.Context, plaintext string) (*models.ProxyKey, *models.Credential, error) {
	hashed := HashProxyKey(plaintext)

	var key models.ProxyKey
	if err := s.db.WithContext(ctx).Where("hashed_secret = ?", hashed).First(&key).Error; err != nil {
		return nil, nil, types.NewError(types.ErrCredentialInvalid, "unknown proxy key")
	}
	if !key.Enabled {
		return nil, nil, types.NewError(types.ErrCredentialDisabled, "proxy key disabled")
	}

	var cred models.Credential
	if err := s.db.WithContext(ctx).First(&cred, "id = ?", key.CredentialID).Error; err != nil {
		return nil, nil, types.NewError(types.ErrCredentialInvalid, "credential not found").WithCause(err)
	}
	if !cred.Enabled {
		return nil, nil, types.NewError(types.ErrCredentialDisabled, "credential disabled")
	}

	return &key, &cred, nil
}

// ResolveProxyKeyForProvider resolves a proxy key and additionally
// verifies its bound credential matches expectedProvider, so an OpenAI
// proxy key can never authenticate an Anthropic (or Google) route.
func (s *Store) ResolveProxyKeyForProvider(ctx context.Context, plaintext, expectedProvider string) (*models.ProxyKey, *models.Credential, error) {
	key, cred, err := s.ResolveProxyKey(ctx, plaintext)
	if err != nil {
		return nil, nil, err
	}
	if cred.Provider != expectedProvider {
		return nil, nil, types.NewError(types.ErrCredentialInvalid, "proxy key does not match route provider")
	}
	return key, cred, nil
}

// TouchLastUsed stamps a credential's last-used-at to now. Called by the
// proxy pipeline after a successful upstream forward.
func (s *Store) TouchLastUsed(ctx context.Context, credentialID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.Credential{}).
		Where("id = ?", credentialID).
		Update("last_used_at", &now).Error
}

// MaskSecret returns a display-safe fragment of an upstream secret,
// e.g. "sk-...ab12".
func MaskSecret(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return fmt.Sprintf("%s...%s", secret[:min(3, len(secret))], secret[len(secret)-4:])
}
