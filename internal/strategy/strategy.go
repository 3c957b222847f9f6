// Package strategy evaluates closed bars into trade signals and aggregates
// the verdicts of several strategies into one decision per instrument.
//
// Strategies follow the shape of the breakout-retest reference
// implementation: a small per-instrument state machine with one-directional
// transitions and explicit invalidation rules. State maps are allocated for
// the full instrument set up front, so lanes for different instruments may
// evaluate concurrently; Reset and ResetAll run at session rollover with the
// lanes quiet.
package strategy

import (
	"main/internal/schema"
)

// Context carries everything a strategy may inspect for one evaluation.
// History is oldest first and ends with Bar, the bar that just closed.
// LastTick and VWAP are zero values when unavailable.
type Context struct {
	Instrument schema.InstrumentID
	Bar        schema.Bar
	History    []schema.Bar
	LastTick   schema.Tick
	VWAP       schema.Price
}

// Strategy turns closed bars into signals.
type Strategy interface {
	// Name identifies the strategy in weights, logs, and signal provenance.
	Name() string

	// RequiredHistory is the minimum number of closed bars Evaluate needs.
	RequiredHistory() int

	// Evaluate inspects the context and reports a signal, when it has one.
	Evaluate(ctx Context) (schema.Signal, bool)

	// Reset clears per-instrument state for a new trading session.
	Reset(id schema.InstrumentID)

	// ResetAll clears state for every instrument.
	ResetAll()
}
