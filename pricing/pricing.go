// Package pricing holds the compile-time per-(provider, model) rate
// tables LLMLab prices every metered request against. Rates are USD per
// million tokens; pricing updates ship as code changes, never as data
// migrations.
package pricing

import "math"

// Rates is a model's input/output price, expressed in USD per 1,000,000
// tokens.
type Rates struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// defaultModel is the key every provider table falls back to when a
// model isn't listed. An unknown model never prices at zero — it always
// uses the provider default, so metering survives newly released models
// that haven't been added to the table yet.
const defaultModel = "DEFAULT"

// tables holds the published per-million-token rate for each supported
// model, falling back to defaultModel for anything unlisted.
var tables = map[string]map[string]Rates{
	"openai": {
		"gpt-4o":        {InputPerMillion: 2.50, OutputPerMillion: 10.00},
		"gpt-4o-mini":   {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"gpt-4-turbo":   {InputPerMillion: 10.00, OutputPerMillion: 30.00},
		"gpt-3.5-turbo": {InputPerMillion: 0.50, OutputPerMillion: 1.50},
		"o1":            {InputPerMillion: 15.00, OutputPerMillion: 60.00},
		"o1-mini":       {InputPerMillion: 3.00, OutputPerMillion: 12.00},
		defaultModel:    {InputPerMillion: 5.00, OutputPerMillion: 15.00},
	},
	"anthropic": {
		"claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
		"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
		"claude-3-opus-20240229":     {InputPerMillion: 15.00, OutputPerMillion: 75.00},
		"claude-3-haiku-20240307":    {InputPerMillion: 0.25, OutputPerMillion: 1.25},
		defaultModel:                 {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	},
	"google": {
		"gemini-1.5-pro":   {InputPerMillion: 1.25, OutputPerMillion: 5.00},
		"gemini-1.5-flash": {InputPerMillion: 0.075, OutputPerMillion: 0.30},
		"gemini-2.0-flash": {InputPerMillion: 0.10, OutputPerMillion: 0.40},
		defaultModel:       {InputPerMillion: 1.25, OutputPerMillion: 5.00},
	},
}

// RatesFor returns the configured rates for (provider, model), falling
// back to the provider's DEFAULT entry when the model is unlisted. The
// bool reports whether the provider itself is known.
func RatesFor(provider, model string) (Rates, bool) {
	table, ok := tables[provider]
	if !ok {
		return Rates{}, false
	}
	if r, ok := table[model]; ok {
		return r, true
	}
	return table[defaultModel], true
}

// NamedRate is one concrete (provider, model) entry from the rate
// tables, excluding the synthetic DEFAULT fallback entries.
type NamedRate struct {
	Provider string
	Model    string
	Rates
}

// AllRates enumerates every named (provider, model) entry across every
// table, skipping the DEFAULT sentinel each provider falls back to for
// unlisted models. Used by the aggregator's provider-comparison rollup
// to price a tenant's actual usage against every real alternative.
func AllRates() []NamedRate {
	var out []NamedRate
	for provider, table := range tables {
		for model, rates := range table {
			if model == defaultModel {
				continue
			}
			out = append(out, NamedRate{Provider: provider, Model: model, Rates: rates})
		}
	}
	return out
}

// Price computes the USD cost of a call, rounded to six decimal places
// on return (the precision usage logs persist at).
//
//	cost = inputTokens * inputRate / 1e6 + outputTokens * outputRate / 1e6
func Price(provider, model string, inputTokens, outputTokens int) float64 {
	rates, _ := RatesFor(provider, model)
	cost := float64(inputTokens)*rates.InputPerMillion/1_000_000 +
		float64(outputTokens)*rates.OutputPerMillion/1_000_000
	return round6(cost)
}

func round6(v float64) float64 {
	return math.Round(v*1_000_000) / 1_000_000
}
