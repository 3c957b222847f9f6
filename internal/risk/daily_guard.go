package risk

import (
	"fmt"
	"sync"
	"time"
)

// DailyGuard is the hard daily-loss circuit breaker: a one-way latch that
// locks new buys for the rest of the session once realized plus unrealized
// P&L reaches the configured loss limit. The latch clears itself when the
// session date changes. Sells are never blocked by the guard.
type DailyGuard struct {
	mu sync.Mutex

	limit       float64
	loc         *time.Location
	realized    float64
	unrealized  float64
	locked      bool
	lockReason  string
	tradeCount  int
	sessionDate int
}

// GuardSnapshot is a point-in-time copy of the guard's state.
type GuardSnapshot struct {
	Realized   float64
	Unrealized float64
	Locked     bool
	LockReason string
	TradeCount int
}

// NewDailyGuard creates a guard with the given daily loss limit, expressed
// as a positive amount. Dates roll over in loc; nil means UTC.
func NewDailyGuard(limit float64, loc *time.Location) *DailyGuard {
	if loc == nil {
		loc = time.UTC
	}
	return &DailyGuard{limit: limit, loc: loc}
}

// RecordTrade books the realized P&L of a completed trade.
func (g *DailyGuard) RecordTrade(pnl float64, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollover(now)
	g.realized += pnl
	g.tradeCount++
	g.latch()
}

// UpdateUnrealized replaces the marked-to-market open P&L.
func (g *DailyGuard) UpdateUnrealized(pnl float64, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollover(now)
	g.unrealized = pnl
	g.latch()
}

// TradingAllowed reports whether new buys are admitted. It also detects the
// session-date rollover and resets the guard for the new day.
func (g *DailyGuard) TradingAllowed(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollover(now)
	return !g.locked
}

// LockReason returns the message recorded when the latch closed.
func (g *DailyGuard) LockReason() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lockReason
}

// Snapshot returns a copy of the current guard state.
func (g *DailyGuard) Snapshot() GuardSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GuardSnapshot{
		Realized:   g.realized,
		Unrealized: g.unrealized,
		Locked:     g.locked,
		LockReason: g.lockReason,
		TradeCount: g.tradeCount,
	}
}

// latch closes the one-way lock when total P&L reaches the loss limit.
// Callers hold g.mu.
func (g *DailyGuard) latch() {
	if g.locked || g.limit <= 0 {
		return
	}
	total := g.realized + g.unrealized
	if total <= -g.limit {
		g.locked = true
		g.lockReason = fmt.Sprintf("daily loss %.2f reached limit %.2f", total, g.limit)
	}
}

// rollover resets all session state when the calendar date changes.
// Callers hold g.mu.
func (g *DailyGuard) rollover(now time.Time) {
	date := dateKey(now.In(g.loc))
	if date == g.sessionDate {
		return
	}
	g.sessionDate = date
	g.realized = 0
	g.unrealized = 0
	g.locked = false
	g.lockReason = ""
	g.tradeCount = 0
}

func dateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
