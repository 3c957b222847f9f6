// Package obs collects lightweight pipeline counters and latency stats:
// journaled events by type, gate denials by reason, queue and lane drops,
// and min/max/avg timings for the decision step, fill application, and bar
// closes. Everything is atomic; there is no exporter, callers log the
// snapshot.
package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const (
	maxEventType  = int(schema.EventNotice)
	maxDenyReason = int(schema.RiskReasonTakeProfit)
)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	eventCounts [maxEventType + 1]uint64
	denyCounts  [maxDenyReason + 1]uint64
	queueDrops  uint64
	queueClosed uint64
	laneDrops   uint64

	eventLatency     LatencyStats
	decisionLatency  LatencyStats
	fillApplyLatency LatencyStats
	barCloseLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts      map[schema.EventType]uint64
	DenyCounts       map[schema.RiskReason]uint64
	QueueDrops       uint64
	QueueClosed      uint64
	LaneDrops        uint64
	EventLatency     LatencySnapshot
	DecisionLatency  LatencySnapshot
	FillApplyLatency LatencySnapshot
	BarCloseLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent increments counters and tracks event latency when timestamps are present.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	idx := int(header.Type)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	if header.TsEvent > 0 && header.TsRecv > 0 {
		delta := header.TsRecv - header.TsEvent
		if delta >= 0 {
			m.eventLatency.Observe(time.Duration(delta))
		}
	}
}

// IncDenial increments the gate denial counter for a reason.
func (m *Metrics) IncDenial(reason schema.RiskReason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.denyCounts) {
		atomic.AddUint64(&m.denyCounts[idx], 1)
	}
}

// IncQueueDrop records a journal queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// SetLaneDrops stores the cumulative tick lane drop count.
func (m *Metrics) SetLaneDrops(n uint64) {
	if m == nil {
		return
	}
	atomic.StoreUint64(&m.laneDrops, n)
}

// ObserveDecision measures one pass through the atomic decision step.
func (m *Metrics) ObserveDecision(d time.Duration) {
	if m == nil {
		return
	}
	m.decisionLatency.Observe(d)
}

// ObserveFillApply measures one fill application.
func (m *Metrics) ObserveFillApply(d time.Duration) {
	if m == nil {
		return
	}
	m.fillApplyLatency.Observe(d)
}

// ObserveBarClose measures one bar close including strategy evaluation.
func (m *Metrics) ObserveBarClose(d time.Duration) {
	if m == nil {
		return
	}
	m.barCloseLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	denyCounts := make(map[schema.RiskReason]uint64)
	for i := range m.denyCounts {
		if v := atomic.LoadUint64(&m.denyCounts[i]); v > 0 {
			denyCounts[schema.RiskReason(i)] = v
		}
	}
	return Snapshot{
		EventCounts:      eventCounts,
		DenyCounts:       denyCounts,
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		QueueClosed:      atomic.LoadUint64(&m.queueClosed),
		LaneDrops:        atomic.LoadUint64(&m.laneDrops),
		EventLatency:     m.eventLatency.Snapshot(),
		DecisionLatency:  m.decisionLatency.Snapshot(),
		FillApplyLatency: m.fillApplyLatency.Snapshot(),
		BarCloseLatency:  m.barCloseLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
