// Package bars turns raw trade ticks into per-instrument OHLCV bars.
//
// Each instrument owns one in-progress bar keyed by the tick timestamp
// floored to the bar interval. A tick in a newer period closes the current
// bar and opens the next one; closed bars are immutable. Each instrument
// also keeps a small ring of recent ticks serving last-price and VWAP
// queries.
//
// The aggregator is not internally synchronized. Instrument state maps are
// populated once at construction, so lanes for different instruments may
// call Apply concurrently; Reset and ForceCloseAll require the lanes to be
// quiet.
package bars

import (
	"sort"
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const (
	defaultHistory  = 512
	defaultRingSize = 256
)

// Config sizes the aggregator.
type Config struct {
	Interval time.Duration
	History  int
	RingSize int
}

type instState struct {
	open    schema.Bar
	hasOpen bool
	closed  []schema.Bar
	ring    *tickRing
}

// Aggregator builds OHLCV bars from ticks for a fixed instrument set.
type Aggregator struct {
	interval  int64
	history   int
	states    map[schema.InstrumentID]*instState
	discarded uint64
}

// NewAggregator allocates bar state for every given instrument.
func NewAggregator(cfg Config, instruments []schema.InstrumentID) *Aggregator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.History <= 0 {
		cfg.History = defaultHistory
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = defaultRingSize
	}

	states := make(map[schema.InstrumentID]*instState, len(instruments))
	for _, id := range instruments {
		states[id] = &instState{
			closed: make([]schema.Bar, 0, cfg.History),
			ring:   newTickRing(cfg.RingSize),
		}
	}
	return &Aggregator{
		interval: cfg.Interval.Nanoseconds(),
		history:  cfg.History,
		states:   states,
	}
}

// FloorTs floors a timestamp to the start of its bar period.
func FloorTs(ts, interval int64) int64 {
	return ts - ts%interval
}

// Apply folds one tick into its instrument's bar. It returns the closed bar
// when the tick opened a newer period. Ticks with non-positive prices,
// unknown instruments, or periods older than the open bar are discarded.
func (a *Aggregator) Apply(tick schema.Tick) (schema.Bar, bool) {
	state, ok := a.states[tick.InstrumentID]
	if !ok || tick.Price <= 0 {
		atomic.AddUint64(&a.discarded, 1)
		return schema.Bar{}, false
	}

	state.ring.push(tick)
	period := FloorTs(tick.Ts, a.interval)

	if !state.hasOpen {
		state.open = newBar(tick, period)
		state.hasOpen = true
		return schema.Bar{}, false
	}

	switch {
	case period == state.open.PeriodStart:
		absorb(&state.open, tick)
		return schema.Bar{}, false
	case period > state.open.PeriodStart:
		closed := state.open
		a.retain(state, closed)
		state.open = newBar(tick, period)
		return closed, true
	default:
		// Late tick from a period already closed.
		atomic.AddUint64(&a.discarded, 1)
		return schema.Bar{}, false
	}
}

// ForceClose closes the in-progress bar for one instrument, if any.
func (a *Aggregator) ForceClose(id schema.InstrumentID) (schema.Bar, bool) {
	state, ok := a.states[id]
	if !ok || !state.hasOpen {
		return schema.Bar{}, false
	}
	closed := state.open
	a.retain(state, closed)
	state.hasOpen = false
	return closed, true
}

// ForceCloseAll closes every in-progress bar, ordered by instrument ID.
// Used at session end so partial bars still reach the strategies.
func (a *Aggregator) ForceCloseAll() []schema.Bar {
	ids := make([]schema.InstrumentID, 0, len(a.states))
	for id := range a.states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []schema.Bar
	for _, id := range ids {
		if bar, ok := a.ForceClose(id); ok {
			out = append(out, bar)
		}
	}
	return out
}

// History returns the closed bars for an instrument, oldest first. The
// returned slice is owned by the aggregator and must not be mutated.
func (a *Aggregator) History(id schema.InstrumentID) []schema.Bar {
	state, ok := a.states[id]
	if !ok {
		return nil
	}
	return state.closed
}

// LastPrice returns the most recent valid trade price for an instrument.
func (a *Aggregator) LastPrice(id schema.InstrumentID) (schema.Price, bool) {
	state, ok := a.states[id]
	if !ok {
		return 0, false
	}
	tick, ok := state.ring.last()
	if !ok {
		return 0, false
	}
	return tick.Price, true
}

// VWAP returns the volume-weighted average price over the most recent n
// ticks for an instrument.
func (a *Aggregator) VWAP(id schema.InstrumentID, n int) (schema.Price, bool) {
	state, ok := a.states[id]
	if !ok {
		return 0, false
	}
	return state.ring.vwap(n)
}

// Discards returns the number of ticks rejected so far.
func (a *Aggregator) Discards() uint64 {
	return atomic.LoadUint64(&a.discarded)
}

// Reset drops all open bars, histories, and rings. Callers must quiesce the
// tick lanes first; used at session rollover.
func (a *Aggregator) Reset() {
	for _, state := range a.states {
		state.hasOpen = false
		state.closed = state.closed[:0]
		state.ring = newTickRing(len(state.ring.buf))
	}
	atomic.StoreUint64(&a.discarded, 0)
}

func (a *Aggregator) retain(state *instState, bar schema.Bar) {
	state.closed = append(state.closed, bar)
	if len(state.closed) > a.history {
		state.closed = state.closed[len(state.closed)-a.history:]
	}
}

func newBar(tick schema.Tick, period int64) schema.Bar {
	return schema.Bar{
		InstrumentID: tick.InstrumentID,
		PeriodStart:  period,
		Open:         tick.Price,
		High:         tick.Price,
		Low:          tick.Price,
		Close:        tick.Price,
		Volume:       tick.Volume,
	}
}

func absorb(bar *schema.Bar, tick schema.Tick) {
	if tick.Price > bar.High {
		bar.High = tick.Price
	}
	if tick.Price < bar.Low {
		bar.Low = tick.Price
	}
	bar.Close = tick.Price
	bar.Volume += tick.Volume
}
