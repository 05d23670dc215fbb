package observability

import (
	"strconv"

	"github.com/Conceptual-Machines/daytale-api/internal/llm"
)

// Pricing constants
const (
	tokensPerKilo       = 1000.0
	costFormatPrecision = 6

	// GPT-3.5-turbo pricing on OpenRouter
	gpt35TurboInputPrice  = 0.0005
	gpt35TurboOutputPrice = 0.0015

	// GPT-4o-mini pricing on OpenRouter
	gpt4oMiniInputPrice  = 0.00015
	gpt4oMiniOutputPrice = 0.0006
)

// ModelPricing contains pricing information per 1K tokens
type ModelPricing struct {
	InputPricePer1K  float64 // Price per 1K input tokens in USD
	OutputPricePer1K float64 // Price per 1K output tokens in USD
}

// PricingTable contains pricing keyed by OpenRouter model id
var PricingTable = map[string]ModelPricing{
	llm.Model: {
		InputPricePer1K:  gpt35TurboInputPrice,
		OutputPricePer1K: gpt35TurboOutputPrice,
	},
	"openai/gpt-4o-mini": {
		InputPricePer1K:  gpt4oMiniInputPrice,
		OutputPricePer1K: gpt4oMiniOutputPrice,
	},
}

// CalculateCost calculates the cost in USD for one completion.
// Unknown models are priced as the default model.
func CalculateCost(model string, usage llm.Usage) float64 {
	pricing, exists := PricingTable[model]
	if !exists {
		pricing = PricingTable[llm.Model]
	}

	inputCost := (float64(usage.PromptTokens) / tokensPerKilo) * pricing.InputPricePer1K
	outputCost := (float64(usage.CompletionTokens) / tokensPerKilo) * pricing.OutputPricePer1K
	return inputCost + outputCost
}

// FormatCost formats a cost value as a USD string
func FormatCost(cost float64) string {
	return "$" + strconv.FormatFloat(cost, 'f', costFormatPrecision, 64)
}
