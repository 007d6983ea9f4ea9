// Package api provides API types and documentation for LLMLab.
package api

import (
	"time"
)

// =============================================================================
// Response Envelope
// =============================================================================

// Response is the unified JSON response envelope returned by every handler.
// @Description Unified API response envelope
type Response struct {
	// Whether the request succeeded
	Success bool `json:"success" example:"true"`
	// Response payload (present when Success is true)
	Data any `json:"data,omitempty"`
	// Error details (present when Success is false)
	Error *ErrorInfo `json:"error,omitempty"`
	// Server timestamp
	Timestamp time.Time `json:"timestamp"`
	// Correlates the response with server-side logs
	RequestID string `json:"request_id,omitempty" example:"req-123"`
}

// ErrorInfo carries structured error details in a Response envelope.
// @Description Structured error information
type ErrorInfo struct {
	// Machine-readable error code (e.g. CREDENTIAL_INVALID)
	Code string `json:"code" example:"INVALID_REQUEST"`
	// Human-readable error message
	Message string `json:"message" example:"Invalid request parameters"`
	// Whether the client may safely retry the request
	Retryable bool `json:"retryable,omitempty" example:"false"`
	// HTTP status code assigned to this error
	HTTPStatus int `json:"http_status,omitempty" example:"400"`
}

// =============================================================================
// Credential Types
// =============================================================================

// Credential represents a tenant's stored upstream provider API key.
// @Description Provider credential structure
type Credential struct {
	// Credential ID
	ID string `json:"id" example:"cred_01h8x"`
	// Owning tenant ID
	TenantID string `json:"tenant_id" example:"tenant-1"`
	// Upstream provider (openai, anthropic, google)
	Provider string `json:"provider" example:"openai"`
	// Display label
	Label string `json:"label,omitempty" example:"production key"`
	// Masked secret, e.g. sk-...ab12
	MaskedSecret string `json:"masked_secret" example:"sk-...ab12"`
	// Whether the credential currently accepts proxy traffic
	Enabled bool `json:"enabled" example:"true"`
	// Creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// Last update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateCredentialRequest creates a new stored provider credential.
// @Description Create credential request
type CreateCredentialRequest struct {
	// Upstream provider (openai, anthropic, google)
	Provider string `json:"provider" example:"openai" binding:"required"`
	// Display label
	Label string `json:"label,omitempty" example:"production key"`
	// Plaintext upstream API key (encrypted at rest, never echoed back)
	Secret string `json:"secret" binding:"required"`
}

// UpdateCredentialRequest updates an existing credential's mutable fields.
// @Description Update credential request
type UpdateCredentialRequest struct {
	// New display label
	Label *string `json:"label,omitempty"`
	// New plaintext upstream API key, if rotating
	Secret *string `json:"secret,omitempty"`
	// Enable or disable the credential
	Enabled *bool `json:"enabled,omitempty"`
}

// ProxyKey represents a minted client-facing key bound to a credential.
// @Description Minted proxy key structure
type ProxyKey struct {
	// Proxy key ID
	ID string `json:"id" example:"pk_01h8x"`
	// Bound credential ID
	CredentialID string `json:"credential_id" example:"cred_01h8x"`
	// Full secret value — returned ONLY at mint time
	Secret string `json:"secret,omitempty" example:"llmlab_pk_a1b2c3..."`
	// Masked secret for display after mint time
	MaskedSecret string `json:"masked_secret" example:"llmlab_pk_...c3d4"`
	// Whether the key is active
	Enabled bool `json:"enabled" example:"true"`
	// Creation timestamp
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// Tag Types
// =============================================================================

// Tag represents a cost-attribution label a tenant can attach to usage.
// @Description Tag structure
type Tag struct {
	// Tag ID
	ID string `json:"id" example:"tag_01h8x"`
	// Owning tenant ID
	TenantID string `json:"tenant_id" example:"tenant-1"`
	// Tag name
	Name string `json:"name" example:"team-growth"`
	// Display color, e.g. a hex code
	Color string `json:"color,omitempty" example:"#4287f5"`
	// Creation timestamp
	CreatedAt time.Time `json:"created_at"`
}

// CreateTagRequest creates a new tag.
// @Description Create tag request
type CreateTagRequest struct {
	// Tag name
	Name string `json:"name" example:"team-growth" binding:"required"`
	// Display color, e.g. a hex code
	Color string `json:"color,omitempty" example:"#4287f5"`
}

// =============================================================================
// Usage Types
// =============================================================================

// UsageLog represents one metered proxy request.
// @Description Usage log entry
type UsageLog struct {
	// Log entry ID
	ID string `json:"id" example:"log_01h8x"`
	// Owning tenant ID
	TenantID string `json:"tenant_id" example:"tenant-1"`
	// Credential used for the upstream call
	CredentialID string `json:"credential_id" example:"cred_01h8x"`
	// Upstream provider
	Provider string `json:"provider" example:"openai"`
	// Model requested
	Model string `json:"model" example:"gpt-4o"`
	// Input tokens consumed
	InputTokens int `json:"input_tokens" example:"120"`
	// Output tokens consumed
	OutputTokens int `json:"output_tokens" example:"340"`
	// Computed cost in USD
	CostUSD float64 `json:"cost_usd" example:"0.0134"`
	// Upstream HTTP status code
	StatusCode int `json:"status_code" example:"200"`
	// Request latency in milliseconds
	LatencyMS int64 `json:"latency_ms" example:"842"`
	// Whether this request was served from the response cache
	CacheHit bool `json:"cache_hit" example:"false"`
	// Tag names attached to this request
	Tags []string `json:"tags,omitempty"`
	// Request timestamp
	CreatedAt time.Time `json:"created_at"`
}

// UsageQuery filters usage log listing and aggregation.
// @Description Usage query parameters
type UsageQuery struct {
	// Restrict to this provider
	Provider string `json:"provider,omitempty" example:"openai"`
	// Restrict to this model
	Model string `json:"model,omitempty" example:"gpt-4o"`
	// Restrict to requests tagged with this key=value
	Tag string `json:"tag,omitempty" example:"team=growth"`
	// Inclusive start of the time range
	From time.Time `json:"from,omitempty"`
	// Exclusive end of the time range
	To time.Time `json:"to,omitempty"`
	// Page size
	Limit int `json:"limit,omitempty" example:"50"`
	// Pagination cursor
	Offset int `json:"offset,omitempty" example:"0"`
}

// SpendSummary aggregates cost and token usage over a time bucket.
// @Description Aggregated spend summary
type SpendSummary struct {
	// Bucket start timestamp
	Bucket time.Time `json:"bucket"`
	// Total requests in the bucket
	RequestCount int64 `json:"request_count" example:"412"`
	// Total input tokens in the bucket
	InputTokens int64 `json:"input_tokens" example:"54200"`
	// Total output tokens in the bucket
	OutputTokens int64 `json:"output_tokens" example:"98100"`
	// Total cost in USD
	CostUSD float64 `json:"cost_usd" example:"12.48"`
	// Requests served from the response cache
	CacheHits int64 `json:"cache_hits" example:"58"`
}

// =============================================================================
// Budget Types
// =============================================================================

// Budget represents a spend threshold a tenant wants alerted on.
// @Description Budget threshold structure
type Budget struct {
	// Budget ID
	ID string `json:"id" example:"budget_01h8x"`
	// Owning tenant ID
	TenantID string `json:"tenant_id" example:"tenant-1"`
	// Budget ceiling in USD over Period
	AmountUSD float64 `json:"amount_usd" example:"500.00"`
	// Rolling window the budget is evaluated over (e.g. "monthly")
	Period string `json:"period" example:"monthly"`
	// Percentage of AmountUSD that triggers an alert (0-100)
	AlertThresholdPct float64 `json:"alert_threshold_pct" example:"80"`
	// Current spend against the budget's window
	SpentUSD float64 `json:"spent_usd" example:"312.40"`
	// Whether the budget is active
	Enabled bool `json:"enabled" example:"true"`
	// Creation timestamp
	CreatedAt time.Time `json:"created_at"`
}

// CreateBudgetRequest creates or replaces a tenant's active budget.
// @Description Create budget request
type CreateBudgetRequest struct {
	// Budget ceiling in USD over Period
	AmountUSD float64 `json:"amount_usd" example:"500.00" binding:"required"`
	// Rolling window the budget is evaluated over (e.g. "monthly")
	Period string `json:"period" example:"monthly" binding:"required"`
	// Percentage of AmountUSD that triggers an alert (0-100)
	AlertThresholdPct float64 `json:"alert_threshold_pct" example:"80"`
}

// =============================================================================
// Webhook Types
// =============================================================================

// Webhook represents an alert delivery target for budget and anomaly events.
// @Description Alert webhook structure
type Webhook struct {
	// Webhook ID
	ID string `json:"id" example:"webhook_01h8x"`
	// Owning tenant ID
	TenantID string `json:"tenant_id" example:"tenant-1"`
	// Delivery URL
	URL string `json:"url" example:"https://hooks.example.com/llmlab"`
	// The single event type this webhook row fires on
	EventType string `json:"event_type" example:"budget.exceeded"`
	// Whether the webhook is active
	Enabled bool `json:"enabled" example:"true"`
	// Creation timestamp
	CreatedAt time.Time `json:"created_at"`
}

// CreateWebhookRequest registers a new alert webhook for one event type.
// Subscribing to multiple event types means creating multiple webhooks.
// @Description Create webhook request
type CreateWebhookRequest struct {
	// Delivery URL
	URL string `json:"url" example:"https://hooks.example.com/llmlab" binding:"required"`
	// Event type to subscribe to
	EventType string `json:"event_type" example:"budget.exceeded" binding:"required"`
}

// =============================================================================
// List Response Types
// =============================================================================

// CredentialListResponse represents a list of credentials.
// @Description Credential list response
type CredentialListResponse struct {
	Credentials []Credential `json:"credentials"`
}

// TagListResponse represents a list of tags.
// @Description Tag list response
type TagListResponse struct {
	Tags []Tag `json:"tags"`
}

// UsageLogListResponse represents a page of usage log entries.
// @Description Usage log list response
type UsageLogListResponse struct {
	Logs []UsageLog `json:"logs"`
	// Offset to request the next page, if any remain
	NextOffset int `json:"next_offset,omitempty"`
}

// BudgetListResponse represents a list of budgets.
// @Description Budget list response
type BudgetListResponse struct {
	Budgets []Budget `json:"budgets"`
}

// WebhookListResponse represents a list of webhooks.
// @Description Webhook list response
type WebhookListResponse struct {
	Webhooks []Webhook `json:"webhooks"`
}

// =============================================================================
// Auth Types
// =============================================================================

// GitHubLoginRequest exchanges a GitHub OAuth authorization code for a session.
// @Description GitHub OAuth login request
type GitHubLoginRequest struct {
	// Authorization code returned by GitHub's OAuth redirect
	Code string `json:"code" example:"a1b2c3d4" binding:"required"`
}

// Session is the bearer token issued after a successful GitHub login.
// @Description Session token response
type Session struct {
	// Signed bearer token to send as Authorization: Bearer <token>
	AccessToken string `json:"access_token"`
	// Token type, always "bearer"
	TokenType string `json:"token_type" example:"bearer"`
	// Seconds until AccessToken expires
	ExpiresIn int64 `json:"expires_in" example:"86400"`
	// The tenant the token authenticates as
	Tenant Tenant `json:"tenant"`
}

// Tenant represents the authenticated caller's profile.
// @Description Tenant profile
type Tenant struct {
	ID          string    `json:"id" example:"tenant-1"`
	Email       string    `json:"email" example:"dev@example.com"`
	DisplayName string    `json:"display_name" example:"devuser"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
