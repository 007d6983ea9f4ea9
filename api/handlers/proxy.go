package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/llmlab/llmlab/proxy"
)

// ProxyHandler dispatches /api/v1/proxy/{provider}/... requests into the
// proxy pipeline, which performs its own proxy-key authentication —
// these routes are intentionally NOT wrapped in JWTAuth/ProxyKeyAuth.
type ProxyHandler struct {
	pipeline *proxy.Pipeline
	logger   *zap.Logger
}

// NewProxyHandler builds a ProxyHandler.
func NewProxyHandler(pipeline *proxy.Pipeline, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{pipeline: pipeline, logger: logger}
}

// Handle routes one proxied request, extracting {provider} from the
// path immediately following proxy.RoutePrefix.
func (h *ProxyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, proxy.RoutePrefix)
	providerName, _, _ := strings.Cut(rest, "/")
	if providerName == "" {
		http.NotFound(w, r)
		return
	}
	h.pipeline.Serve(w, r, providerName)
}
