package risk

import "sync"

// DrawdownShield adapts per-trade risk to the equity curve: every two
// consecutive losses since the last equity peak step the allowed risk
// amount down one tier, and a new peak restores the top tier. It is
// independent of the daily guard; the shield throttles, the guard halts.
type DrawdownShield struct {
	mu sync.Mutex

	tiers           []float64
	peak            float64
	equity          float64
	lossesSincePeak int
	trades          int
	wins            int
	losses          int
}

// ShieldSnapshot is a point-in-time copy of the shield's state.
type ShieldSnapshot struct {
	RiskAmount      float64
	Peak            float64
	Equity          float64
	LossesSincePeak int
	Trades          int
	Wins            int
	Losses          int
}

// NewDrawdownShield creates a shield over the given decreasing risk tiers,
// seeded with the starting equity as the first peak. Empty tiers disable
// the shield: RiskAmount reports 0, which the sizer reads as unconstrained.
func NewDrawdownShield(tiers []float64, initialEquity float64) *DrawdownShield {
	s := &DrawdownShield{
		tiers:  append([]float64(nil), tiers...),
		peak:   initialEquity,
		equity: initialEquity,
	}
	return s
}

// Update books one completed trade's realized P&L and returns the risk
// amount allowed for the next trade.
func (s *DrawdownShield) Update(pnl float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.equity += pnl
	s.trades++
	switch {
	case pnl < 0:
		s.losses++
		s.lossesSincePeak++
	case pnl > 0:
		s.wins++
	}
	if s.equity > s.peak {
		s.peak = s.equity
		s.lossesSincePeak = 0
	}
	return s.riskAmount()
}

// RiskAmount reads the current tier without mutating anything.
func (s *DrawdownShield) RiskAmount() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.riskAmount()
}

// Snapshot returns a copy of the current shield state.
func (s *DrawdownShield) Snapshot() ShieldSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ShieldSnapshot{
		RiskAmount:      s.riskAmount(),
		Peak:            s.peak,
		Equity:          s.equity,
		LossesSincePeak: s.lossesSincePeak,
		Trades:          s.trades,
		Wins:            s.wins,
		Losses:          s.losses,
	}
}

// riskAmount picks the tier for the current loss streak. Callers hold s.mu.
func (s *DrawdownShield) riskAmount() float64 {
	if len(s.tiers) == 0 {
		return 0
	}
	idx := s.lossesSincePeak / 2
	if idx >= len(s.tiers) {
		idx = len(s.tiers) - 1
	}
	return s.tiers[idx]
}
