package usage

// Rate holds the per-1K-token prices for a model, in US dollars.
type Rate struct {
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
}

// Zero reports whether the rate is free (local/self-hosted models).
func (r Rate) Zero() bool {
	return r.InputPer1K == 0 && r.OutputPer1K == 0
}

// Cost computes the dollar cost of one exchange at this rate.
func (r Rate) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*r.InputPer1K + float64(outputTokens)/1000*r.OutputPer1K
}

// modelRates is the static per-model rate table. Models served by local
// providers are free by definition and are simply absent here.
var modelRates = map[string]Rate{
	// OpenAI
	"gpt-5":       {InputPer1K: 0.00125, OutputPer1K: 0.01},
	"gpt-5-mini":  {InputPer1K: 0.00025, OutputPer1K: 0.002},
	"gpt-5-nano":  {InputPer1K: 0.00005, OutputPer1K: 0.0004},
	"gpt-4o":      {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini": {InputPer1K: 0.00015, OutputPer1K: 0.0006},

	// Anthropic
	"claude-opus-4-1-20250805":   {InputPer1K: 0.015, OutputPer1K: 0.075},
	"claude-sonnet-4-20250514":   {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-3-5-haiku-20241022":  {InputPer1K: 0.0008, OutputPer1K: 0.004},
	"claude-3-5-sonnet-20241022": {InputPer1K: 0.003, OutputPer1K: 0.015},
}

// RateFor returns the rate for a model. Unknown models (including every
// local model) are free; cost is never estimated.
func RateFor(model string) Rate {
	return modelRates[model]
}
