// Package proxy implements the metered reverse-proxy pipeline: it
// authenticates a proxy key, forwards the request to the right upstream
// LLM provider (via the Response Cache when the call is an exact-match
// unary repeat), meters the usage, attaches tags, and schedules the
// Budget Watcher / Anomaly Detector as fire-and-forget post-hooks.
package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/api"
	"github.com/llmlab/llmlab/cache"
	"github.com/llmlab/llmlab/credential"
	"github.com/llmlab/llmlab/internal/metrics"
	"github.com/llmlab/llmlab/models"
	"github.com/llmlab/llmlab/provider"
	"github.com/llmlab/llmlab/tag"
	"github.com/llmlab/llmlab/types"
)

// RoutePrefix is the base path every proxy route is mounted under;
// everything after /{provider} is passed through to the upstream API
// unchanged.
const RoutePrefix = "/api/v1/proxy/"

// maxBodyBytes caps the inbound request body the pipeline will buffer
// for cache-key computation and provisional JSON parsing.
const maxBodyBytes = 25 << 20

// Pipeline wires together everything one proxied request touches.
type Pipeline struct {
	credentials *credential.Store
	cache       cache.Cache
	cacheTTL    time.Duration
	tags        *tag.Registry
	postHooks   *PostHookDispatcher
	db          *gorm.DB
	client      *http.Client
	metrics     *metrics.Collector
	logger      *zap.Logger
}

// NewPipeline builds a Pipeline.
func NewPipeline(credentials *credential.Store, c cache.Cache, cacheTTL time.Duration, tags *tag.Registry, postHooks *PostHookDispatcher, db *gorm.DB, client *http.Client, collector *metrics.Collector, logger *zap.Logger) *Pipeline {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &Pipeline{
		credentials: credentials,
		cache:       c,
		cacheTTL:    cacheTTL,
		tags:        tags,
		postHooks:   postHooks,
		db:          db,
		client:      client,
		metrics:     collector,
		logger:      logger.With(zap.String("component", "proxy_pipeline")),
	}
}

// UpstreamPath strips the /api/v1/proxy/{providerName} prefix from the
// inbound request path, preserving the query string, so the remainder
// can be appended directly to the provider's base URL.
func UpstreamPath(r *http.Request, providerName string) string {
	rest := strings.TrimPrefix(r.URL.Path, RoutePrefix+providerName)
	if rest == "" {
		rest = "/"
	}
	if r.URL.RawQuery != "" {
		rest += "?" + r.URL.RawQuery
	}
	return rest
}

type inboundPreview struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// Serve runs the full proxy pipeline for one inbound request, bound to
// providerName (already validated by the caller's route dispatch).
func (p *Pipeline) Serve(w http.ResponseWriter, r *http.Request, providerName string) {
	ctx := r.Context()

	adapter, ok := provider.For(providerName)
	if !ok {
		writeProxyError(w, http.StatusNotFound, types.ErrProviderUnknown, "unknown provider")
		return
	}

	plaintext, ok := extractProxyKey(r)
	if !ok {
		writeProxyError(w, http.StatusUnauthorized, types.ErrAuthentication, "missing proxy key")
		return
	}

	_, cred, err := p.credentials.ResolveProxyKeyForProvider(ctx, plaintext, providerName)
	if err != nil {
		writeProxyError(w, http.StatusUnauthorized, types.ErrCredentialInvalid, "invalid proxy key")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeProxyError(w, http.StatusBadRequest, types.ErrInvalidRequest, "failed to read request body")
		return
	}

	var preview inboundPreview
	_ = json.Unmarshal(body, &preview)

	secret, err := p.credentials.DecryptSecret(cred)
	if err != nil {
		writeProxyError(w, http.StatusInternalServerError, types.ErrInternalError, "failed to decrypt credential")
		return
	}

	upstreamPath := UpstreamPath(r, providerName)

	if preview.Stream {
		p.serveStreaming(ctx, w, r, adapter, cred, secret, upstreamPath, body)
		return
	}
	p.serveUnary(ctx, w, r, adapter, cred, secret, upstreamPath, body, preview.Model)
}

func (p *Pipeline) serveStreaming(ctx context.Context, w http.ResponseWriter, r *http.Request, adapter provider.Adapter, cred *models.Credential, secret, upstreamPath string, body []byte) {
	upstreamReq, err := adapter.BuildRequest(ctx, secret, r.Method, upstreamPath, r.Header, body)
	if err != nil {
		writeProxyError(w, http.StatusInternalServerError, types.ErrInternalError, "failed to build upstream request")
		return
	}

	start := time.Now()
	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		writeProxyError(w, http.StatusBadGateway, types.ErrUpstreamError, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(w, resp.Body)
		return
	}

	flusher, _ := w.(http.Flusher)
	t := newTap(adapter.NewStreamAccumulator())
	if err := t.Copy(w, flusher, resp.Body); err != nil {
		p.logger.Warn("streaming tap terminated early", zap.Error(err), zap.String("provider", adapter.Name()))
	}
	latency := time.Since(start)

	inputTokens, outputTokens, model, ok := t.Usage()
	if !ok || (inputTokens == 0 && outputTokens == 0) {
		return
	}
	if model == "" {
		model = adapter.DefaultModel()
	}

	cost := adapter.Price(model, inputTokens, outputTokens)
	p.metrics.RecordLLMRequest(adapter.Name(), model, statusOutcome(resp.StatusCode), latency, inputTokens, outputTokens, cost)
	p.finalize(ctx, cred, adapter.Name(), model, inputTokens, outputTokens, cost, resp.StatusCode, latency.Milliseconds(), false, r)
}

func (p *Pipeline) serveUnary(ctx context.Context, w http.ResponseWriter, r *http.Request, adapter provider.Adapter, cred *models.Credential, secret, upstreamPath string, body []byte, previewModel string) {
	key := cache.Key(adapter.Name(), body)

	if entry, hit := p.cache.Get(ctx, key); hit {
		p.metrics.RecordCacheHit("response")
		p.metrics.RecordCacheHitRate("response", p.cache.Stats(ctx).HitRate)

		w.Header().Set("Content-Type", entry.Metadata.ContentType)
		w.WriteHeader(entry.Metadata.StatusCode)
		_, _ = w.Write(entry.Body)

		p.finalize(ctx, cred, adapter.Name(), entry.Metadata.Model, entry.Metadata.InputTokens, entry.Metadata.OutputTokens, 0, entry.Metadata.StatusCode, 0, true, r)
		return
	}
	p.metrics.RecordCacheMiss("response")

	upstreamReq, err := adapter.BuildRequest(ctx, secret, r.Method, upstreamPath, r.Header, body)
	if err != nil {
		writeProxyError(w, http.StatusInternalServerError, types.ErrInternalError, "failed to build upstream request")
		return
	}

	start := time.Now()
	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		writeProxyError(w, http.StatusBadGateway, types.ErrUpstreamError, "upstream request failed")
		return
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		writeProxyError(w, http.StatusBadGateway, types.ErrUpstreamError, "failed to read upstream response")
		return
	}

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)

	if resp.StatusCode != http.StatusOK {
		return
	}

	inputTokens, outputTokens, model, ok := adapter.ExtractUsage(respBody)
	if !ok || (inputTokens == 0 && outputTokens == 0) {
		return
	}
	if model == "" {
		if previewModel != "" {
			model = previewModel
		} else {
			model = adapter.DefaultModel()
		}
	}

	cost := adapter.Price(model, inputTokens, outputTokens)

	entry := &cache.Entry{
		Body: respBody,
		Metadata: cache.Metadata{
			Provider:     adapter.Name(),
			Model:        model,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			ContentType:  resp.Header.Get("Content-Type"),
			StatusCode:   resp.StatusCode,
		},
	}
	if err := p.cache.Set(ctx, key, entry, p.cacheTTL); err != nil {
		p.logger.Warn("failed to populate response cache", zap.Error(err))
	}
	p.metrics.RecordCacheHitRate("response", p.cache.Stats(ctx).HitRate)

	p.metrics.RecordLLMRequest(adapter.Name(), model, statusOutcome(resp.StatusCode), latency, inputTokens, outputTokens, cost)
	p.finalize(ctx, cred, adapter.Name(), model, inputTokens, outputTokens, cost, resp.StatusCode, latency.Milliseconds(), false, r)
}

// finalize persists the usage log, attaches tags, touches the
// credential's last-used-at (for real upstream forwards only), and
// schedules the post-hooks. Called once per request that produced a
// usable usage reading, whether served from cache or forwarded live.
func (p *Pipeline) finalize(ctx context.Context, cred *models.Credential, providerName, model string, inputTokens, outputTokens int, costUSD float64, statusCode int, latencyMS int64, cacheHit bool, r *http.Request) {
	log := &models.UsageLog{
		ID:           uuid.NewString(),
		TenantID:     cred.TenantID,
		CredentialID: cred.ID,
		Provider:     providerName,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      costUSD,
		StatusCode:   statusCode,
		LatencyMS:    latencyMS,
		CacheHit:     cacheHit,
	}
	if err := p.db.WithContext(ctx).Create(log).Error; err != nil {
		p.logger.Error("failed to persist usage log", zap.Error(err))
		return
	}

	if !cacheHit {
		if err := p.credentials.TouchLastUsed(ctx, cred.ID); err != nil {
			p.logger.Warn("failed to update credential last-used-at", zap.Error(err))
		}
	}

	if header := r.Header.Get(tag.HeaderName); header != "" {
		if err := p.tags.AutoAttach(ctx, cred.TenantID, log.ID, header); err != nil {
			p.logger.Warn("failed to auto-attach tags", zap.Error(err))
		}
	}

	p.postHooks.Dispatch(cred.TenantID)
}

// statusOutcome buckets an upstream HTTP status code into the coarse
// "success"/"error" label RecordLLMRequest expects.
func statusOutcome(code int) string {
	if code >= 200 && code < 300 {
		return "success"
	}
	return "error"
}

func extractProxyKey(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer "), true
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return key, true
	}
	return "", false
}

func copyResponseHeaders(dst, src http.Header) {
	for k, v := range src {
		if isHopHeader(k, provider.ResponseHopHeaders) {
			continue
		}
		dst[k] = append([]string(nil), v...)
	}
}

func isHopHeader(name string, set []string) bool {
	for _, h := range set {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

func writeProxyError(w http.ResponseWriter, status int, code types.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Response{
		Success:   false,
		Error:     &api.ErrorInfo{Code: string(code), Message: message, HTTPStatus: status},
		Timestamp: time.Now(),
	})
}
