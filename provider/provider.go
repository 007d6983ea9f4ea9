// Package provider adapts the three upstream LLM APIs (OpenAI, Anthropic,
// Google Gemini) to one shape the Proxy Pipeline can drive uniformly:
// build the outbound request with the right auth scheme, then extract
// usage/model from either a unary JSON body or an accumulated SSE stream.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Names of the supported providers, used as both the proxy route
// segment and the pricing-table key.
const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Google    = "google"
)

// HopHeaders are stripped from the inbound request before it is
// forwarded upstream: the adapter injects its own auth, and Content-Length
// must be recomputed once the body is re-materialized.
var HopHeaders = []string{"Host", "Authorization", "x-api-key", "Content-Length"}

// ResponseHopHeaders are stripped from the upstream response before it
// is forwarded to the caller, for the same reason in reverse.
var ResponseHopHeaders = []string{"Content-Encoding", "Transfer-Encoding", "Content-Length"}

// StreamAccumulator consumes an upstream SSE stream line by line,
// independent of and in parallel with the bytes being relayed to the
// client, and yields usage once the stream has closed.
type StreamAccumulator interface {
	// Feed is called once per raw SSE line (without the trailing newline).
	Feed(line []byte)
	// Usage returns whatever input/output tokens and model name were
	// observed. ok is false if the stream never yielded a usable usage event.
	Usage() (inputTokens, outputTokens int, model string, ok bool)
}

// Adapter is the per-provider contract the Proxy Pipeline drives.
type Adapter interface {
	// Name is the provider identifier (OpenAI, Anthropic, or Google).
	Name() string

	// BuildRequest constructs the outbound *http.Request for one proxied
	// call: it rewrites the path onto the provider's base URL, copies
	// non-hop headers, and injects the provider's auth scheme.
	BuildRequest(ctx context.Context, secret, method, path string, headers http.Header, body []byte) (*http.Request, error)

	// ExtractUsage parses a unary (non-streaming) JSON response body.
	ExtractUsage(body []byte) (inputTokens, outputTokens int, model string, ok bool)

	// NewStreamAccumulator builds a fresh per-request SSE usage accumulator.
	NewStreamAccumulator() StreamAccumulator

	// Price computes the USD cost for a given model and token counts.
	Price(model string, inputTokens, outputTokens int) float64

	// DefaultModel is the provisional model name used before a response
	// has been observed, when the inbound request body doesn't name one.
	DefaultModel() string
}

// For returns the adapter registered for name, or (nil, false) if name
// isn't one of the supported providers.
func For(name string) (Adapter, bool) {
	switch name {
	case OpenAI:
		return openAIAdapter{}, true
	case Anthropic:
		return anthropicAdapter{}, true
	case Google:
		return googleAdapter{}, true
	default:
		return nil, false
	}
}

// copyForwardHeaders copies src into a new http.Header, dropping HopHeaders.
func copyForwardHeaders(src http.Header) http.Header {
	out := make(http.Header, len(src))
	for k, v := range src {
		if isHopHeader(k, HopHeaders) {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

func isHopHeader(name string, set []string) bool {
	for _, h := range set {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

func newUpstreamRequest(ctx context.Context, method, base, path string, headers http.Header, body []byte) (*http.Request, error) {
	url := strings.TrimRight(base, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = copyForwardHeaders(headers)
	return req, nil
}

func jsonGetFloat(m map[string]any, path ...string) (float64, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return 0, false
		}
		cur, ok = obj[key]
		if !ok {
			return 0, false
		}
	}
	f, ok := cur.(float64)
	return f, ok
}

func jsonGetString(m map[string]any, path ...string) (string, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = obj[key]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}
