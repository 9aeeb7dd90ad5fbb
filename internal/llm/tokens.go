package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter returns the token count of text.
type TokenCounter func(text string) int

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens counts tokens with the cl100k_base encoding. When the encoding
// cannot be loaded it falls back to EstimateTokens.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return EstimateTokens(text)
	}
	return len(encoding.Encode(text, nil, nil))
}

// EstimateTokens approximates tokens as one per four bytes, at least one for
// non-empty text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	if n := len(text) / 4; n > 0 {
		return n
	}
	return 1
}

// Price is the cost of a model in USD per million tokens.
type Price struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Pricing maps model IDs to prices.
type Pricing map[string]Price

// Cost returns the USD cost of a call. ok is false for models without a price.
func (p Pricing) Cost(model string, usage TokenUsage) (cost float64, ok bool) {
	price, ok := p[model]
	if !ok {
		return 0, false
	}
	return float64(usage.Input)*price.InputPerMillion/1e6 +
		float64(usage.Output)*price.OutputPerMillion/1e6, true
}
