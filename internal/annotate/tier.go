package annotate

import "unicode/utf8"

const charsPerToken = 4

// Tier is a model and its per-million-token prices.
type Tier struct {
	Name     string  `json:"name"`
	Model    string  `json:"model"`
	PriceIn  float64 `json:"price_in"`
	PriceOut float64 `json:"price_out"`
}

// Cost in USD for the given usage. Prices are per million tokens.
func (t Tier) Cost(tokensIn, tokensOut int) float64 {
	return float64(tokensIn)*t.PriceIn/1e6 + float64(tokensOut)*t.PriceOut/1e6
}

// TierSelector picks the cheap tier for short inputs and the capable tier at or
// above ThresholdTokens.
type TierSelector struct {
	Cheap           Tier
	Capable         Tier
	ThresholdTokens int
}

func (s TierSelector) Select(content string) Tier {
	if EstimateTokens(content) >= s.ThresholdTokens {
		return s.Capable
	}
	return s.Cheap
}

// EstimateTokens approximates the token count at four characters per token.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}
