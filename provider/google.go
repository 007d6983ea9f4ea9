package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/llmlab/llmlab/pricing"
)

const googleBaseURL = "https://generativelanguage.googleapis.com"

type googleAdapter struct{}

func (googleAdapter) Name() string { return Google }

// BuildRequest appends the secret as the `key` query parameter, Gemini's
// auth scheme — unlike OpenAI/Anthropic there is no auth header to inject.
func (googleAdapter) BuildRequest(ctx context.Context, secret, method, path string, headers http.Header, body []byte) (*http.Request, error) {
	req, err := newUpstreamRequest(ctx, method, googleBaseURL, path, headers, body)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("key", secret)
	req.URL.RawQuery = q.Encode()
	return req, nil
}

func (googleAdapter) ExtractUsage(body []byte) (int, int, string, bool) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, 0, "", false
	}
	in, inOK := jsonGetFloat(parsed, "usageMetadata", "promptTokenCount")
	out, outOK := jsonGetFloat(parsed, "usageMetadata", "candidatesTokenCount")
	if !inOK && !outOK {
		return 0, 0, "", false
	}
	model, _ := jsonGetString(parsed, "modelVersion")
	return int(in), int(out), model, true
}

func (googleAdapter) NewStreamAccumulator() StreamAccumulator { return &googleStreamAccumulator{} }

func (googleAdapter) Price(model string, inputTokens, outputTokens int) float64 {
	return pricing.Price(Google, model, inputTokens, outputTokens)
}

func (googleAdapter) DefaultModel() string { return "gemini-1.5-flash" }

// googleStreamAccumulator keeps the latest usageMetadata seen across the
// stream; Gemini repeats cumulative usage on every chunk, so the last
// one observed is authoritative.
type googleStreamAccumulator struct {
	inputTokens  int
	outputTokens int
	model        string
	seen         bool
}

func (a *googleStreamAccumulator) Feed(line []byte) {
	data, ok := sseData(bytes.TrimSpace(line))
	if !ok || len(data) == 0 {
		return
	}

	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return
	}
	in, inOK := jsonGetFloat(event, "usageMetadata", "promptTokenCount")
	out, outOK := jsonGetFloat(event, "usageMetadata", "candidatesTokenCount")
	if inOK || outOK {
		a.inputTokens, a.outputTokens = int(in), int(out)
		a.seen = true
	}
	if model, ok := jsonGetString(event, "modelVersion"); ok && model != "" {
		a.model = model
	}
}

func (a *googleStreamAccumulator) Usage() (int, int, string, bool) {
	return a.inputTokens, a.outputTokens, a.model, a.seen
}
