// Package chaos perturbs journaled event streams with drops, duplicates,
// reordering, and receive-time delay, producing the degraded input that
// replay and ledger reconciliation are expected to survive.
package chaos

import (
	"fmt"
	"math/rand"
	"time"

	"main/internal/bus"
	"main/internal/schema"
)

// Config controls chaos injection.
type Config struct {
	// Seed drives the rng. Zero draws from the clock, so runs meant to
	// be replayable should pass one explicitly.
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	// ReorderWindow shuffles targeted events within a sliding window of
	// this size. 1 keeps the input order.
	ReorderWindow int
	// MaxDelay bumps TsRecv by a random amount up to this bound.
	MaxDelay time.Duration
	// Kinds restricts injection to the listed event types. Empty targets
	// every event. Untargeted events pass through untouched, keeping
	// their relative order.
	Kinds []schema.EventType
}

// Stats counts what the engine did to the stream.
type Stats struct {
	In         uint64
	Out        uint64
	Dropped    uint64
	Duplicated uint64
	Delayed    uint64
}

// Engine applies the configured faults to a stream of bus events.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	kinds   map[schema.EventType]bool
	pending []bus.Event
	stats   Stats
}

// NewEngine validates cfg and seeds the rng.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	var kinds map[schema.EventType]bool
	if len(cfg.Kinds) > 0 {
		kinds = make(map[schema.EventType]bool, len(cfg.Kinds))
		for _, k := range cfg.Kinds {
			kinds[k] = true
		}
	}
	return &Engine{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		kinds: kinds,
	}, nil
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return fmt.Errorf("duplicateRate must be between 0 and 1")
	}
	if c.ReorderWindow <= 0 {
		return fmt.Errorf("reorderWindow must be >= 1")
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("maxDelay must be >= 0")
	}
	for _, k := range c.Kinds {
		if k.String() == "unknown" {
			return fmt.Errorf("unknown event kind: %d", k)
		}
	}
	return nil
}

// Process feeds one event through the engine and returns whatever is
// ready to emit, which may be nothing while the reorder window fills.
func (e *Engine) Process(ev bus.Event) []bus.Event {
	if e == nil {
		return []bus.Event{ev}
	}
	e.stats.In++
	if e.kinds != nil && !e.kinds[ev.Header.Type] {
		e.stats.Out++
		return []bus.Event{ev}
	}
	if e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate {
		e.stats.Dropped++
		return nil
	}
	ev = e.applyDelay(ev)
	if e.cfg.ReorderWindow <= 1 {
		return e.emit(ev)
	}
	e.pending = append(e.pending, ev)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.emit(e.takePending())
}

// Flush drains the reorder window after the input is exhausted.
func (e *Engine) Flush() []bus.Event {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]bus.Event, 0, len(e.pending))
	for len(e.pending) > 0 {
		out = append(out, e.emit(e.takePending())...)
	}
	return out
}

// Stats reports injection counts so far.
func (e *Engine) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	return e.stats
}

func (e *Engine) takePending() bus.Event {
	idx := e.rng.Intn(len(e.pending))
	ev := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return ev
}

func (e *Engine) emit(ev bus.Event) []bus.Event {
	out := []bus.Event{ev}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		e.stats.Duplicated++
		out = append(out, ev)
	}
	e.stats.Out += uint64(len(out))
	return out
}

func (e *Engine) applyDelay(ev bus.Event) bus.Event {
	if e.cfg.MaxDelay <= 0 {
		return ev
	}
	delay := time.Duration(e.rng.Int63n(e.cfg.MaxDelay.Nanoseconds() + 1))
	if delay == 0 {
		return ev
	}
	e.stats.Delayed++
	if ev.Header.TsRecv > 0 {
		ev.Header.TsRecv += int64(delay)
		return ev
	}
	if ev.Header.TsEvent > 0 {
		ev.Header.TsRecv = ev.Header.TsEvent + int64(delay)
	}
	return ev
}
