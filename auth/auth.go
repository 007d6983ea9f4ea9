// Package auth implements the GitHub OAuth identity exchange and the
// session JWTs minted from it: POST /auth/github trades a GitHub
// authorization code for a signed bearer token, upserting a Tenant row
// keyed on the caller's GitHub numeric ID.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/config"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/types"
)

// exchangeTimeout bounds the GitHub OAuth round trip.
const exchangeTimeout = 15 * time.Second

// Identity is the caller's GitHub profile, resolved from an OAuth code.
type Identity struct {
	GitHubID  int64
	Email     string
	Username  string
	AvatarURL string
}

// IdentityExchanger trades a GitHub OAuth authorization code for the
// caller's identity. A fake implementation makes the handler testable
// without reaching the real GitHub API.
type IdentityExchanger interface {
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// GitHubExchanger is the real IdentityExchanger, talking to GitHub's
// OAuth token endpoint and REST API over plain net/http.
type GitHubExchanger struct {
	clientID     string
	clientSecret string
	client       *http.Client
}

// NewGitHubExchanger builds a GitHubExchanger from OAuth app credentials.
func NewGitHubExchanger(cfg config.GitHubConfig) *GitHubExchanger {
	return &GitHubExchanger{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       &http.Client{Timeout: exchangeTimeout},
	}
}

type githubTokenResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type githubUserResponse struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmailEntry struct {
	Email   string `json:"email"`
	Primary bool   `json:"primary"`
}

// Exchange trades code for an access token, then fetches the user's
// profile and (if their email is private) their primary email, else the
// first listed one, else a synthesized login@github.local address.
func (g *GitHubExchanger) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := g.exchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	user, err := g.fetchUser(ctx, token)
	if err != nil {
		return nil, err
	}

	email := user.Email
	if email == "" {
		email, err = g.fetchPrimaryEmail(ctx, token)
		if err != nil || email == "" {
			email = fmt.Sprintf("%s@github.local", user.Login)
		}
	}

	return &Identity{
		GitHubID:  user.ID,
		Email:     email,
		Username:  user.Login,
		AvatarURL: user.AvatarURL,
	}, nil
}

func (g *GitHubExchanger) exchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"code":          {code},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://github.com/login/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "failed to build token exchange request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrUpstreamError, "failed to reach GitHub").WithCause(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", types.NewError(types.ErrInvalidRequest, "GitHub rejected the authorization code")
	}

	var tokenResp githubTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", types.NewError(types.ErrUpstreamError, "malformed response from GitHub").WithCause(err)
	}
	if tokenResp.AccessToken == "" {
		msg := tokenResp.ErrorDescription
		if msg == "" {
			msg = "unknown GitHub OAuth error"
		}
		return "", types.NewError(types.ErrInvalidRequest, msg)
	}
	return tokenResp.AccessToken, nil
}

func (g *GitHubExchanger) fetchUser(ctx context.Context, accessToken string) (*githubUserResponse, error) {
	var user githubUserResponse
	if err := g.getJSON(ctx, "https://api.github.com/user", accessToken, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (g *GitHubExchanger) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []githubEmailEntry
	if err := g.getJSON(ctx, "https://api.github.com/user/emails", accessToken, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, nil
	}
	return "", nil
}

func (g *GitHubExchanger) getJSON(ctx context.Context, rawURL, accessToken string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return types.NewError(types.ErrInternalError, "failed to build GitHub API request").WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := g.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrUpstreamError, "failed to reach GitHub").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewError(types.ErrUpstreamError, "GitHub API request failed")
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return types.NewError(types.ErrUpstreamError, "malformed response from GitHub").WithCause(err)
	}
	return nil
}

// TenantStore resolves a GitHub identity to a persisted Tenant row,
// creating one on first login.
type TenantStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTenantStore builds a TenantStore.
func NewTenantStore(db *gorm.DB, logger *zap.Logger) *TenantStore {
	return &TenantStore{db: db, logger: logger.With(zap.String("component", "tenant_store"))}
}

// FindOrCreateByGitHub looks up a Tenant by GitHub ID, creating one if
// this is the caller's first login, and refreshing the display fields
// GitHub may have changed since.
func (s *TenantStore) FindOrCreateByGitHub(ctx context.Context, identity *Identity) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.WithContext(ctx).Where("git_hub_id = ?", identity.GitHubID).First(&tenant).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		tenant = models.Tenant{
			ID:          uuid.NewString(),
			GitHubID:    identity.GitHubID,
			Email:       identity.Email,
			DisplayName: identity.Username,
			AvatarURL:   identity.AvatarURL,
		}
		if err := s.db.WithContext(ctx).Create(&tenant).Error; err != nil {
			return nil, types.NewError(types.ErrInternalError, "failed to create tenant").WithCause(err)
		}
		return &tenant, nil
	case err != nil:
		return nil, types.NewError(types.ErrInternalError, "failed to look up tenant").WithCause(err)
	}

	tenant.Email = identity.Email
	tenant.DisplayName = identity.Username
	tenant.AvatarURL = identity.AvatarURL
	if err := s.db.WithContext(ctx).Save(&tenant).Error; err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to refresh tenant").WithCause(err)
	}
	return &tenant, nil
}

// Get returns a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := s.db.WithContext(ctx).Where("id = ?", tenantID).First(&tenant).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, types.NewError(types.ErrNotFound, "tenant not found")
		}
		return nil, types.NewError(types.ErrInternalError, "failed to load tenant").WithCause(err)
	}
	return &tenant, nil
}

// TokenIssuer mints the session JWTs JWTAuth later verifies.
type TokenIssuer struct {
	cfg config.JWTConfig
}

// NewTokenIssuer builds a TokenIssuer.
func NewTokenIssuer(cfg config.JWTConfig) *TokenIssuer {
	return &TokenIssuer{cfg: cfg}
}

// Mint issues a signed HS256 bearer token carrying tenant_id for tenant,
// returning the token and its lifetime in seconds.
func (t *TokenIssuer) Mint(tenant *models.Tenant) (string, int64, error) {
	ttl := t.cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now().UTC()

	claims := jwt.MapClaims{
		"tenant_id": tenant.ID,
		"user_id":   tenant.ID,
		"iss":       t.cfg.Issuer,
		"aud":       t.cfg.Audience,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(t.cfg.Secret))
	if err != nil {
		return "", 0, types.NewError(types.ErrInternalError, "failed to sign session token").WithCause(err)
	}
	return signed, int64(ttl.Seconds()), nil
}
