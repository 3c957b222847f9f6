package strategy

import (
	"fmt"

	"main/internal/schema"
)

// BreakoutName is the provenance tag of the breakout-retest strategy.
const BreakoutName = "breakout_retest"

const (
	defaultRewardRatio  = 2.0
	defaultRetestCutoff = 12
	breakoutConfidence  = 0.85
)

// BreakoutConfig tunes the breakout-retest state machine.
type BreakoutConfig struct {
	// RewardRatio positions the target at stop + ratio*(entry-stop).
	RewardRatio float64

	// RetestCutoffBars retires an armed setup after this many bars without
	// a confirmed retest.
	RetestCutoffBars int
}

type breakoutPhase uint8

const (
	phaseAwaitReference breakoutPhase = iota
	phaseAwaitBreakout
	phaseAwaitRetest
	phaseDone
)

type breakoutState struct {
	phase        breakoutPhase
	refHigh      schema.Price
	refLow       schema.Price
	refMid       schema.Price
	direction    schema.SignalKind
	barsSinceArm int
}

// BreakoutRetest is the reference strategy: record a reference bar, wait for
// a bar whose body fully clears the reference range, then demand a retest
// that re-enters the range and closes back outside on the entry side.
// One signal per instrument per session at most.
type BreakoutRetest struct {
	cfg    BreakoutConfig
	states map[schema.InstrumentID]*breakoutState
}

// NewBreakoutRetest allocates state for every given instrument.
func NewBreakoutRetest(cfg BreakoutConfig, instruments []schema.InstrumentID) *BreakoutRetest {
	if cfg.RewardRatio <= 0 {
		cfg.RewardRatio = defaultRewardRatio
	}
	if cfg.RetestCutoffBars <= 0 {
		cfg.RetestCutoffBars = defaultRetestCutoff
	}
	states := make(map[schema.InstrumentID]*breakoutState, len(instruments))
	for _, id := range instruments {
		states[id] = &breakoutState{}
	}
	return &BreakoutRetest{cfg: cfg, states: states}
}

// Name implements Strategy.
func (b *BreakoutRetest) Name() string { return BreakoutName }

// RequiredHistory implements Strategy. The machine consumes bars one at a
// time; one closed bar is enough to start.
func (b *BreakoutRetest) RequiredHistory() int { return 1 }

// Reset implements Strategy.
func (b *BreakoutRetest) Reset(id schema.InstrumentID) {
	if state, ok := b.states[id]; ok {
		*state = breakoutState{}
	}
}

// ResetAll implements Strategy.
func (b *BreakoutRetest) ResetAll() {
	for _, state := range b.states {
		*state = breakoutState{}
	}
}

// Phase reports the machine's phase for an instrument. Diagnostics only.
func (b *BreakoutRetest) Phase(id schema.InstrumentID) (string, bool) {
	state, ok := b.states[id]
	if !ok {
		return "", false
	}
	switch state.phase {
	case phaseAwaitBreakout:
		return "awaiting_breakout", true
	case phaseAwaitRetest:
		return "awaiting_retest", true
	case phaseDone:
		return "done", true
	default:
		return "awaiting_reference", true
	}
}

// Evaluate implements Strategy.
func (b *BreakoutRetest) Evaluate(ctx Context) (schema.Signal, bool) {
	state, ok := b.states[ctx.Instrument]
	if !ok {
		return schema.Signal{}, false
	}
	bar := ctx.Bar

	switch state.phase {
	case phaseAwaitReference:
		state.refHigh = bar.High
		state.refLow = bar.Low
		state.refMid = (bar.High + bar.Low) / 2
		state.phase = phaseAwaitBreakout
		return schema.Signal{}, false

	case phaseAwaitBreakout:
		bodyLow := min(bar.Open, bar.Close)
		bodyHigh := max(bar.Open, bar.Close)
		switch {
		case bodyLow > state.refHigh:
			state.direction = schema.SignalBuy
		case bodyHigh < state.refLow:
			state.direction = schema.SignalSell
		default:
			return schema.Signal{}, false
		}
		// The breakout bar itself never counts as its own retest; touch
		// detection starts with the next bar.
		state.phase = phaseAwaitRetest
		state.barsSinceArm = 0
		return schema.Signal{}, false

	case phaseAwaitRetest:
		state.barsSinceArm++
		if sig, ok := b.confirmRetest(state, bar); ok {
			state.phase = phaseDone
			return sig, true
		}
		if state.barsSinceArm >= b.cfg.RetestCutoffBars {
			state.phase = phaseDone
		}
		return schema.Signal{}, false

	default:
		return schema.Signal{}, false
	}
}

// confirmRetest checks one bar for a completed retest: the bar must re-enter
// the reference range and close back outside it on the entry side. A close
// that stays inside the range voids that attempt and the machine keeps
// waiting.
func (b *BreakoutRetest) confirmRetest(state *breakoutState, bar schema.Bar) (schema.Signal, bool) {
	var entry, stop, target schema.Price

	switch state.direction {
	case schema.SignalBuy:
		if bar.Low > state.refHigh || bar.Close <= state.refHigh {
			return schema.Signal{}, false
		}
		entry = bar.Close
		stop = state.refMid
		target = stop + schema.Price(b.cfg.RewardRatio)*(entry-stop)
	case schema.SignalSell:
		if bar.High < state.refLow || bar.Close >= state.refLow {
			return schema.Signal{}, false
		}
		entry = bar.Close
		stop = state.refMid
		target = stop - schema.Price(b.cfg.RewardRatio)*(stop-entry)
	default:
		return schema.Signal{}, false
	}

	side := "above"
	level := state.refHigh
	if state.direction == schema.SignalSell {
		side = "below"
		level = state.refLow
	}
	return schema.Signal{
		Kind:         state.direction,
		InstrumentID: bar.InstrumentID,
		Confidence:   breakoutConfidence,
		Stop:         stop,
		Target:       target,
		Ts:           bar.PeriodStart,
		Strategy:     BreakoutName,
		Reason:       fmt.Sprintf("retest confirmed: close %.2f back %s reference %.2f", float64(entry), side, float64(level)),
	}, true
}
