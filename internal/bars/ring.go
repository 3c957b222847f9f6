package bars

import "main/internal/schema"

// tickRing is a fixed-capacity ring of the most recent valid ticks for one
// instrument. It backs last-price and VWAP queries.
type tickRing struct {
	buf  []schema.Tick
	next int
	full bool
}

func newTickRing(capacity int) *tickRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &tickRing{buf: make([]schema.Tick, capacity)}
}

func (r *tickRing) push(tick schema.Tick) {
	r.buf[r.next] = tick
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *tickRing) size() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// last returns the most recent tick.
func (r *tickRing) last() (schema.Tick, bool) {
	if r.size() == 0 {
		return schema.Tick{}, false
	}
	idx := r.next - 1
	if idx < 0 {
		idx = len(r.buf) - 1
	}
	return r.buf[idx], true
}

// vwap returns the volume-weighted average price over the most recent n
// ticks. It reports false when no ticks with volume are available.
func (r *tickRing) vwap(n int) (schema.Price, bool) {
	size := r.size()
	if n <= 0 || size == 0 {
		return 0, false
	}
	if n > size {
		n = size
	}

	var notional float64
	var volume int64
	idx := r.next - 1
	for i := 0; i < n; i++ {
		if idx < 0 {
			idx = len(r.buf) - 1
		}
		tick := r.buf[idx]
		notional += float64(tick.Price) * float64(tick.Volume)
		volume += int64(tick.Volume)
		idx--
	}
	if volume <= 0 {
		return 0, false
	}
	return schema.Price(notional / float64(volume)), true
}
