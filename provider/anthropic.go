package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/llmlab/llmlab/pricing"
)

const (
	anthropicBaseURL        = "https://api.anthropic.com"
	anthropicDefaultVersion = "2023-06-01"
)

type anthropicAdapter struct{}

func (anthropicAdapter) Name() string { return Anthropic }

func (anthropicAdapter) BuildRequest(ctx context.Context, secret, method, path string, headers http.Header, body []byte) (*http.Request, error) {
	req, err := newUpstreamRequest(ctx, method, anthropicBaseURL, path, headers, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", secret)
	if req.Header.Get("anthropic-version") == "" {
		req.Header.Set("anthropic-version", anthropicDefaultVersion)
	}
	return req, nil
}

func (anthropicAdapter) ExtractUsage(body []byte) (int, int, string, bool) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, 0, "", false
	}
	in, inOK := jsonGetFloat(parsed, "usage", "input_tokens")
	out, outOK := jsonGetFloat(parsed, "usage", "output_tokens")
	if !inOK && !outOK {
		return 0, 0, "", false
	}
	model, _ := jsonGetString(parsed, "model")
	return int(in), int(out), model, true
}

func (anthropicAdapter) NewStreamAccumulator() StreamAccumulator {
	return &anthropicStreamAccumulator{}
}

func (anthropicAdapter) Price(model string, inputTokens, outputTokens int) float64 {
	return pricing.Price(Anthropic, model, inputTokens, outputTokens)
}

func (anthropicAdapter) DefaultModel() string { return "claude-3-5-haiku-20241022" }

// anthropicStreamAccumulator combines two events: message_start carries
// input_tokens (and the model name), message_delta carries the final
// output_tokens once generation completes.
type anthropicStreamAccumulator struct {
	inputTokens  int
	outputTokens int
	model        string
	sawInput     bool
	sawOutput    bool
}

func (a *anthropicStreamAccumulator) Feed(line []byte) {
	data, ok := sseData(bytes.TrimSpace(line))
	if !ok || len(data) == 0 {
		return
	}

	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return
	}

	eventType, _ := jsonGetString(event, "type")
	switch eventType {
	case "message_start":
		if in, ok := jsonGetFloat(event, "message", "usage", "input_tokens"); ok {
			a.inputTokens = int(in)
			a.sawInput = true
		}
		if model, ok := jsonGetString(event, "message", "model"); ok {
			a.model = model
		}
	case "message_delta":
		if out, ok := jsonGetFloat(event, "usage", "output_tokens"); ok {
			a.outputTokens = int(out)
			a.sawOutput = true
		}
	}
}

func (a *anthropicStreamAccumulator) Usage() (int, int, string, bool) {
	return a.inputTokens, a.outputTokens, a.model, a.sawInput || a.sawOutput
}
