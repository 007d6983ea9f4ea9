package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatesFor_KnownModel(t *testing.T) {
	rates, ok := RatesFor("openai", "gpt-4o")
	require.True(t, ok)
	assert.Equal(t, 2.50, rates.InputPerMillion)
	assert.Equal(t, 10.00, rates.OutputPerMillion)
}

func TestRatesFor_UnknownModelFallsBackToProviderDefault(t *testing.T) {
	rates, ok := RatesFor("anthropic", "claude-4-hypothetical")
	require.True(t, ok)
	assert.Equal(t, tables["anthropic"][defaultModel], rates)
}

func TestRatesFor_UnknownProvider(t *testing.T) {
	_, ok := RatesFor("cohere", "command-r")
	assert.False(t, ok)
}

func TestPrice_ComputesPerMillionFormula(t *testing.T) {
	got := Price("openai", "gpt-4o", 1_000_000, 1_000_000)
	assert.Equal(t, 12.50, got)
}

func TestPrice_NeverZeroForUnknownModel(t *testing.T) {
	got := Price("google", "gemini-3.0-unreleased", 1_000, 1_000)
	assert.Greater(t, got, 0.0)
}

func TestPrice_RoundsToSixDecimals(t *testing.T) {
	got := Price("google", "gemini-1.5-flash", 123, 456)
	assert.Equal(t, round6(got), got)

	input := 123.0 * 0.075 / 1_000_000
	output := 456.0 * 0.30 / 1_000_000
	assert.InDelta(t, input+output, got, 1e-9)
}

func TestPrice_ZeroTokensIsZeroCost(t *testing.T) {
	assert.Equal(t, 0.0, Price("openai", "gpt-4o", 0, 0))
}

func TestAllRates_ExcludesDefaultSentinel(t *testing.T) {
	all := AllRates()
	require.NotEmpty(t, all)
	for _, r := range all {
		assert.NotEqual(t, defaultModel, r.Model)
	}
}

func TestAllRates_CoversEveryProvider(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range AllRates() {
		seen[r.Provider] = true
	}
	assert.True(t, seen["openai"])
	assert.True(t, seen["anthropic"])
	assert.True(t, seen["google"])
}
