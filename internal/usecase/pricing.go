package usecase

import (
	"docqa/config"
	"docqa/internal/domain"
)

// Pricing converts token and duration usage into USD.
type Pricing struct {
	ChatInPer1K      float64
	ChatOutPer1K     float64
	EmbedPer1M       float64
	TranscribePerMin float64
}

// PricingFromConfig builds a Pricing from the pricing section of cfg.
func PricingFromConfig(cfg config.PricingConfig) Pricing {
	return Pricing{
		ChatInPer1K:      cfg.ChatInPer1K,
		ChatOutPer1K:     cfg.ChatOutPer1K,
		EmbedPer1M:       cfg.EmbedPer1M,
		TranscribePerMin: cfg.TranscribePerMin,
	}
}

func (p Pricing) EmbeddingCost(tokens int) float64 {
	return domain.RoundUSD(float64(tokens) / 1e6 * p.EmbedPer1M)
}

func (p Pricing) ChatCost(promptTokens, completionTokens int) float64 {
	return domain.RoundUSD(float64(promptTokens)/1000*p.ChatInPer1K +
		float64(completionTokens)/1000*p.ChatOutPer1K)
}

// TranscribeCost prices seconds of transcribed media.
func (p Pricing) TranscribeCost(seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return domain.RoundUSD(seconds / 60 * p.TranscribePerMin)
}
