package sessioncache

import "strings"

// modelRate holds per-million-token USD pricing for one model tier.
type modelRate struct {
	input      float64
	output     float64
	cacheWrite float64
	cacheRead  float64
}

// ratesPerMillion is a published rate table for cost reconstruction when a
// transcript's result record carries no total_cost_usd. Matched by prefix
// since model identifiers carry date suffixes (e.g. "claude-sonnet-4-20250514").
var ratesPerMillion = []struct {
	prefix string
	rate   modelRate
}{
	{"claude-opus-4", modelRate{input: 15, output: 75, cacheWrite: 18.75, cacheRead: 1.5}},
	{"claude-sonnet-4", modelRate{input: 3, output: 15, cacheWrite: 3.75, cacheRead: 0.3}},
	{"claude-haiku-4", modelRate{input: 0.8, output: 4, cacheWrite: 1, cacheRead: 0.08}},
	{"claude-3-5-sonnet", modelRate{input: 3, output: 15, cacheWrite: 3.75, cacheRead: 0.3}},
	{"claude-3-5-haiku", modelRate{input: 0.8, output: 4, cacheWrite: 1, cacheRead: 0.08}},
	{"claude-3-opus", modelRate{input: 15, output: 75, cacheWrite: 18.75, cacheRead: 1.5}},
}

// defaultRate is used when no prefix matches a known model family.
var defaultRate = modelRate{input: 3, output: 15, cacheWrite: 3.75, cacheRead: 0.3}

func rateFor(model string) modelRate {
	for _, r := range ratesPerMillion {
		if strings.HasPrefix(model, r.prefix) {
			return r.rate
		}
	}
	return defaultRate
}

// estimateCostUSD recomputes cost from accumulated token counts using the
// rate table. Callers prefer a result record's reported total_cost_usd when
// present; this is the fallback for transcripts that never emit one.
func estimateCostUSD(model string, usage TokenUsage) float64 {
	r := rateFor(model)
	cost := float64(usage.InputTokens)/1_000_000*r.input +
		float64(usage.OutputTokens)/1_000_000*r.output +
		float64(usage.CacheCreationInputTokens)/1_000_000*r.cacheWrite +
		float64(usage.CacheReadInputTokens)/1_000_000*r.cacheRead
	return cost
}
