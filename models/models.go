// Package models defines the GORM-persisted entities LLMLab owns:
// tenants, stored provider credentials, minted proxy keys, usage logs,
// tags, budgets, and alert webhooks.
package models

import "time"

// Tenant is an organization using LLMLab to meter its LLM spend.
// The GitHub OAuth fields are filled on login by the GitHub OAuth
// exchange in the auth package.
type Tenant struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	GitHubID    int64  `gorm:"uniqueIndex" json:"github_id"`
	Email       string `gorm:"size:255;not null" json:"email"`
	DisplayName string `gorm:"size:200" json:"display_name"`
	AvatarURL   string `gorm:"size:500" json:"avatar_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Tenant) TableName() string { return "llmlab_tenants" }

// Credential is a tenant's stored, encrypted upstream provider API key.
// At most one credential per (tenant, provider) may be Enabled; that
// invariant is enforced at the application layer since it's a partial
// uniqueness constraint, not a plain unique index.
type Credential struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	TenantID string `gorm:"size:36;not null;index:idx_cred_tenant_provider" json:"tenant_id"`
	Provider string `gorm:"size:32;not null;index:idx_cred_tenant_provider" json:"provider"`
	Label    string `gorm:"size:200" json:"label,omitempty"`

	// EncryptedSecret is the AES-256-GCM ciphertext (nonce prepended),
	// base64-encoded. The plaintext secret is never stored or logged.
	EncryptedSecret string `gorm:"type:text;not null" json:"-"`

	Enabled    bool       `gorm:"default:true;index" json:"enabled"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Credential) TableName() string { return "llmlab_credentials" }

// ProxyKey is a client-facing secret minted against a Credential. All
// proxy traffic authenticates with a ProxyKey; LLMLab resolves it to
// the bound Credential to pick the upstream secret and tenant.
type ProxyKey struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	CredentialID string `gorm:"size:36;not null;index" json:"credential_id"`
	TenantID     string `gorm:"size:36;not null;index" json:"tenant_id"`

	// HashedSecret is the SHA-256 hex digest of the full proxy key.
	// The plaintext is returned to the caller only at mint time.
	HashedSecret string `gorm:"size:64;not null;uniqueIndex" json:"-"`
	// MaskedSecret is a display-safe fragment, e.g. "llmlab_pk_...c3d4".
	MaskedSecret string `gorm:"size:64;not null" json:"masked_secret"`

	Enabled bool `gorm:"default:true;index" json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProxyKey) TableName() string { return "llmlab_proxy_keys" }

// Tag is a cost-attribution label a tenant can attach to usage logs,
// either explicitly or auto-created by the Tag Registry from the
// X-LLMLab-Tags request header. (tenant_id, name) is unique.
type Tag struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	TenantID string `gorm:"size:36;not null;uniqueIndex:idx_tag_tenant_name" json:"tenant_id"`
	Name     string `gorm:"size:100;not null;uniqueIndex:idx_tag_tenant_name" json:"name"`
	Color    string `gorm:"size:16;not null" json:"color"`

	CreatedAt time.Time `json:"created_at"`
}

func (Tag) TableName() string { return "llmlab_tags" }

// DefaultTagColor is assigned to tags the Tag Registry auto-creates.
const DefaultTagColor = "#6b7280"

// UsageLog records one metered proxy request: the cost computed from
// the upstream response body plus the routing and latency facts needed
// for aggregation, budgets, and anomaly detection. Append-only, never
// mutated after insert.
type UsageLog struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	TenantID     string `gorm:"size:36;not null;index:idx_usage_tenant_time" json:"tenant_id"`
	CredentialID string `gorm:"size:36;not null;index" json:"credential_id"`

	Provider string `gorm:"size:32;not null;index:idx_usage_tenant_provider_time" json:"provider"`
	Model    string `gorm:"size:100;not null;index" json:"model"`

	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `gorm:"type:decimal(14,6);not null" json:"cost_usd"`

	StatusCode int   `json:"status_code"`
	LatencyMS  int64 `json:"latency_ms"`
	CacheHit   bool  `gorm:"index" json:"cache_hit"`

	CreatedAt time.Time `gorm:"index:idx_usage_tenant_time;index:idx_usage_tenant_provider_time" json:"created_at"`

	Tags []Tag `gorm:"many2many:llmlab_usage_log_tags;" json:"tags,omitempty"`
}

func (UsageLog) TableName() string { return "llmlab_usage_logs" }

// Budget is a tenant's spend ceiling over a rolling period. Upsert
// semantics: one active budget per tenant, enforced at the application
// layer (POST replaces the existing row rather than erroring).
type Budget struct {
	ID                string  `gorm:"primaryKey;size:36" json:"id"`
	TenantID          string  `gorm:"size:36;not null;uniqueIndex" json:"tenant_id"`
	AmountUSD         float64 `gorm:"type:decimal(14,2);not null" json:"amount_usd"`
	Period            string  `gorm:"size:16;not null;default:monthly" json:"period"`
	AlertThresholdPct float64 `gorm:"type:decimal(5,2);not null;default:80" json:"alert_threshold_pct"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Budget) TableName() string { return "llmlab_budgets" }

// WebhookEvent enumerates the alert conditions a Webhook can subscribe to.
type WebhookEvent string

const (
	WebhookEventBudgetWarning  WebhookEvent = "budget_warning"
	WebhookEventBudgetExceeded WebhookEvent = "budget_exceeded"
	WebhookEventAnomaly        WebhookEvent = "anomaly"
)

// Webhook is a tenant-registered HTTP delivery target for one event type.
// Multiple webhooks per tenant are allowed, filtered by event type at
// dispatch time.
type Webhook struct {
	ID        string       `gorm:"primaryKey;size:36" json:"id"`
	TenantID  string       `gorm:"size:36;not null;index" json:"tenant_id"`
	URL       string       `gorm:"size:500;not null" json:"url"`
	EventType WebhookEvent `gorm:"size:32;not null;index" json:"event_type"`
	Active    bool         `gorm:"default:true;index" json:"active"`

	CreatedAt time.Time `json:"created_at"`
}

func (Webhook) TableName() string { return "llmlab_webhooks" }

// AllModels lists every entity for GORM AutoMigrate.
func AllModels() []any {
	return []any{
		&Tenant{},
		&Credential{},
		&ProxyKey{},
		&Tag{},
		&UsageLog{},
		&Budget{},
		&Webhook{},
	}
}
