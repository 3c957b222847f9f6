package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"main/internal/schema"
)

var (
	ErrLaneUnknown = errors.New("lane unknown instrument")
	ErrLaneFull    = errors.New("lane full")
	ErrLaneClosed  = errors.New("lane closed")
)

// Lanes fans ticks out to one bounded channel per instrument, each drained
// by a single goroutine. Ticks for one instrument are strictly ordered;
// instruments progress independently. Publishing never blocks: a full lane
// drops the tick and counts it.
type Lanes struct {
	// mu orders Publish against Close: lanes close only under the write
	// lock, so a send under the read lock can never hit a closed channel.
	mu     sync.RWMutex
	lanes  map[schema.InstrumentID]chan schema.Tick
	depth  int
	closed bool
	drops  uint64
	wg     sync.WaitGroup
}

// NewLanes allocates one lane of the given depth per instrument ID.
func NewLanes(instruments []schema.InstrumentID, depth int) *Lanes {
	if depth <= 0 {
		depth = 1
	}
	lanes := make(map[schema.InstrumentID]chan schema.Tick, len(instruments))
	for _, id := range instruments {
		lanes[id] = make(chan schema.Tick, depth)
	}
	return &Lanes{lanes: lanes, depth: depth}
}

// Publish routes a tick to its instrument's lane without blocking. Safe to
// call concurrently with Close.
func (l *Lanes) Publish(tick schema.Tick) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ErrLaneClosed
	}
	ch, ok := l.lanes[tick.InstrumentID]
	if !ok {
		return ErrLaneUnknown
	}
	select {
	case ch <- tick:
		return nil
	default:
		atomic.AddUint64(&l.drops, 1)
		return ErrLaneFull
	}
}

// Run starts one consumer goroutine per lane and blocks until all lanes
// drain after Close or the context is done.
func (l *Lanes) Run(ctx context.Context, handler func(schema.Tick)) {
	for _, ch := range l.lanes {
		l.wg.Add(1)
		go func(ch chan schema.Tick) {
			defer l.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case tick, ok := <-ch:
					if !ok {
						return
					}
					handler(tick)
				}
			}
		}(ch)
	}
	l.wg.Wait()
}

// Close stops all lanes from accepting new ticks.
func (l *Lanes) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	for _, ch := range l.lanes {
		close(ch)
	}
}

// Drops returns the number of ticks dropped on full lanes.
func (l *Lanes) Drops() uint64 {
	return atomic.LoadUint64(&l.drops)
}
