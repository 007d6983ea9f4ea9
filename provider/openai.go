package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/llmlab/llmlab/pricing"
)

const openAIBaseURL = "https://api.openai.com"

type openAIAdapter struct{}

func (openAIAdapter) Name() string { return OpenAI }

func (openAIAdapter) BuildRequest(ctx context.Context, secret, method, path string, headers http.Header, body []byte) (*http.Request, error) {
	req, err := newUpstreamRequest(ctx, method, openAIBaseURL, path, headers, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	return req, nil
}

func (openAIAdapter) ExtractUsage(body []byte) (int, int, string, bool) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, 0, "", false
	}
	in, inOK := jsonGetFloat(parsed, "usage", "prompt_tokens")
	out, outOK := jsonGetFloat(parsed, "usage", "completion_tokens")
	if !inOK && !outOK {
		return 0, 0, "", false
	}
	model, _ := jsonGetString(parsed, "model")
	return int(in), int(out), model, true
}

func (openAIAdapter) NewStreamAccumulator() StreamAccumulator { return &openAIStreamAccumulator{} }

func (openAIAdapter) Price(model string, inputTokens, outputTokens int) float64 {
	return pricing.Price(OpenAI, model, inputTokens, outputTokens)
}

func (openAIAdapter) DefaultModel() string { return "gpt-4o-mini" }

// openAIStreamAccumulator tracks only the last SSE event that carries a
// usage object — OpenAI's streaming responses emit `usage` solely on the
// terminal chunk (with stream_options.include_usage enabled).
type openAIStreamAccumulator struct {
	inputTokens  int
	outputTokens int
	model        string
	seen         bool
}

func (a *openAIStreamAccumulator) Feed(line []byte) {
	line = bytes.TrimSpace(line)
	data, ok := sseData(line)
	if !ok || string(data) == "[DONE]" {
		return
	}

	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return
	}
	if model, ok := jsonGetString(event, "model"); ok && model != "" {
		a.model = model
	}
	in, inOK := jsonGetFloat(event, "usage", "prompt_tokens")
	out, outOK := jsonGetFloat(event, "usage", "completion_tokens")
	if inOK || outOK {
		a.inputTokens, a.outputTokens = int(in), int(out)
		a.seen = true
	}
}

func (a *openAIStreamAccumulator) Usage() (int, int, string, bool) {
	return a.inputTokens, a.outputTokens, a.model, a.seen
}

// sseData extracts the payload of a "data: ..." SSE line. Lines that
// aren't data frames (blank, "event:", comments) return ok=false.
func sseData(line []byte) ([]byte, bool) {
	s := string(line)
	if !strings.HasPrefix(s, "data:") {
		return nil, false
	}
	return bytes.TrimSpace([]byte(strings.TrimPrefix(s, "data:"))), true
}
