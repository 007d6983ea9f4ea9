package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const proxyKeyPrefix = "llmlab_pk_"

// MintProxyKey generates a new client-facing secret and returns the
// plaintext (shown to the caller exactly once), its SHA-256 hex digest
// (the only form persisted), and a masked display form.
func MintProxyKey() (plaintext, hashed, masked string, err error) {
	buf := make([]byte, 16)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generate proxy key: %w", err)
	}

	plaintext = proxyKeyPrefix + hex.EncodeToString(buf)
	hashed = HashProxyKey(plaintext)
	masked = maskProxyKey(plaintext)
	return plaintext, hashed, masked, nil
}

// HashProxyKey returns the SHA-256 hex digest of a proxy key's plaintext.
// ProxyKeyAuth looks up rows by this digest rather than storing secrets.
func HashProxyKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func maskProxyKey(plaintext string) string {
	if len(plaintext) <= 4 {
		return proxyKeyPrefix + "..."
	}
	return proxyKeyPrefix + "..." + plaintext[len(plaintext)-4:]
}
