package strategy

import (
	"fmt"

	"main/internal/schema"
)

// MomentumName is the provenance tag of the SMA momentum strategy.
const MomentumName = "sma_momentum"

const (
	defaultFastWindow    = 5
	defaultSlowWindow    = 20
	defaultCrossDeadband = 0.001
	momentumConfidence   = 0.6
)

// MomentumConfig tunes the SMA cross strategy.
type MomentumConfig struct {
	FastWindow int
	SlowWindow int

	// Deadband is the minimum relative gap between the averages before a
	// cross counts, filtering flat-market noise.
	Deadband float64
}

// SMAMomentum signals when the fast simple moving average crosses the slow
// one by more than the deadband. It is stateless: each evaluation derives
// the prior relation from history, so replays are reproducible.
type SMAMomentum struct {
	cfg MomentumConfig
}

// NewSMAMomentum builds the strategy with defaults filled in.
func NewSMAMomentum(cfg MomentumConfig) *SMAMomentum {
	if cfg.FastWindow <= 0 {
		cfg.FastWindow = defaultFastWindow
	}
	if cfg.SlowWindow <= cfg.FastWindow {
		cfg.SlowWindow = defaultSlowWindow
		if cfg.SlowWindow <= cfg.FastWindow {
			cfg.SlowWindow = cfg.FastWindow * 4
		}
	}
	if cfg.Deadband <= 0 {
		cfg.Deadband = defaultCrossDeadband
	}
	return &SMAMomentum{cfg: cfg}
}

// Name implements Strategy.
func (s *SMAMomentum) Name() string { return MomentumName }

// RequiredHistory implements Strategy. One extra bar is needed to see the
// averages before the cross.
func (s *SMAMomentum) RequiredHistory() int { return s.cfg.SlowWindow + 1 }

// Reset implements Strategy. No per-instrument state.
func (s *SMAMomentum) Reset(schema.InstrumentID) {}

// ResetAll implements Strategy.
func (s *SMAMomentum) ResetAll() {}

// Evaluate implements Strategy.
func (s *SMAMomentum) Evaluate(ctx Context) (schema.Signal, bool) {
	history := ctx.History
	if len(history) < s.cfg.SlowWindow+1 {
		return schema.Signal{}, false
	}

	fast := sma(history, s.cfg.FastWindow)
	slow := sma(history, s.cfg.SlowWindow)
	prevFast := sma(history[:len(history)-1], s.cfg.FastWindow)
	prevSlow := sma(history[:len(history)-1], s.cfg.SlowWindow)
	if slow == 0 || prevSlow == 0 {
		return schema.Signal{}, false
	}

	gap := (fast - slow) / slow
	prevGap := (prevFast - prevSlow) / prevSlow

	var kind schema.SignalKind
	switch {
	case prevGap <= 0 && gap > s.cfg.Deadband:
		kind = schema.SignalBuy
	case prevGap >= 0 && gap < -s.cfg.Deadband:
		kind = schema.SignalSell
	default:
		return schema.Signal{}, false
	}

	return schema.Signal{
		Kind:         kind,
		InstrumentID: ctx.Instrument,
		Confidence:   momentumConfidence,
		Ts:           ctx.Bar.PeriodStart,
		Strategy:     MomentumName,
		Reason:       fmt.Sprintf("sma %d/%d cross, gap %.4f", s.cfg.FastWindow, s.cfg.SlowWindow, gap),
	}, true
}

// sma averages the closes of the last n bars of history.
func sma(history []schema.Bar, n int) float64 {
	if n <= 0 || len(history) < n {
		return 0
	}
	var sum float64
	for _, bar := range history[len(history)-n:] {
		sum += float64(bar.Close)
	}
	return sum / float64(n)
}
