package risk

import (
	"math"

	"main/internal/schema"
)

// SizerConfig defines the sizing fractions.
type SizerConfig struct {
	MinCashRatio     float64 `json:"minCashRatio"`
	MaxPositionRatio float64 `json:"maxPositionRatio"`
	MaxLossPerTrade  float64 `json:"maxLossPerTrade"`
}

// Sizer computes buy quantities from four independent caps.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer creates a sizer with static fractions.
func NewSizer(cfg SizerConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size returns the share quantity for a buy: the minimum of the
// cash-reserve cap, the concentration cap, the risk cap, and the raw cash
// cap, scaled by a confidence multiplier in [0.5, 1.0], floored at one
// share when the scaled result is positive, and re-clamped to the cash cap.
// riskBudget, when positive, tightens the risk cap below the configured
// max-loss fraction; the drawdown shield feeds it. Returns 0 when price or
// equity is non-positive or any cap evaluates to zero.
func (s *Sizer) Size(cash, equity float64, price, stop schema.Price, confidence, riskBudget float64) schema.Quantity {
	if price <= 0 || equity <= 0 {
		return 0
	}
	p := float64(price)

	caps := []float64{
		math.Floor((cash - s.cfg.MinCashRatio*equity) / p),
		math.Floor(s.cfg.MaxPositionRatio * equity / p),
		math.Floor(cash / p),
	}
	if stop > 0 && stop < price {
		budget := s.cfg.MaxLossPerTrade * equity
		if riskBudget > 0 && riskBudget < budget {
			budget = riskBudget
		}
		caps = append(caps, math.Floor(budget/float64(price-stop)))
	}

	minCap := caps[0]
	for _, c := range caps[1:] {
		if c < minCap {
			minCap = c
		}
	}
	if minCap <= 0 {
		return 0
	}

	scaled := minCap * confidenceFactor(confidence)
	qty := math.Floor(scaled)
	if qty < 1 && scaled > 0 {
		qty = 1
	}

	cashCap := math.Floor(cash / p)
	if qty > cashCap {
		qty = cashCap
	}
	if qty <= 0 {
		return 0
	}
	return schema.Quantity(qty)
}

// confidenceFactor maps confidence in [0,1] linearly onto [0.5,1.0], so a
// low-confidence signal never trades below half the capped size.
func confidenceFactor(confidence float64) float64 {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return 0.5 + 0.5*confidence
}
