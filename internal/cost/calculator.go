// Package cost estimates the vendor spend of completions from published
// per-token pricing. Estimates feed the per-user spend monitor and the
// usage records; they are advisory and never gate a request by themselves.
package cost

import (
	"github.com/resumeforge/resume-ai/internal/domain"
)

type ModelPricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// defaultPricing holds USD rates per 1K tokens for the models in the
// registry, keyed by the vendor model name reported in response metadata.
var defaultPricing = map[string]ModelPricing{
	"gemini-2.0-flash-001": {InputPer1K: 0.0001, OutputPer1K: 0.0004},
	"deepseek-r1":          {InputPer1K: 0.00055, OutputPer1K: 0.00219},
	"o3-mini":              {InputPer1K: 0.0011, OutputPer1K: 0.0044},
}

type Calculator struct {
	pricing map[string]ModelPricing
}

func NewCalculator() *Calculator {
	return &Calculator{
		pricing: defaultPricing,
	}
}

// Calculate returns the estimated USD cost of one completion. Unknown
// models cost zero.
func (c *Calculator) Calculate(model string, usage domain.TokenUsage) float64 {
	pricing, ok := c.pricing[model]
	if !ok {
		return 0
	}

	inputCost := float64(usage.PromptTokens) / 1000 * pricing.InputPer1K
	outputCost := float64(usage.CompletionTokens) / 1000 * pricing.OutputPer1K

	return inputCost + outputCost
}

func (c *Calculator) SetPricing(model string, pricing ModelPricing) {
	c.pricing[model] = pricing
}
