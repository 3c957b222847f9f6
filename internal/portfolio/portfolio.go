// Package portfolio is the cash and position book. It mutates only through
// settled executions and scheduled resets; the risk gate reads it through
// a view interface and never writes.
//
// Conservation invariant: cash + Σ(avgPrice×qty) − realized stays equal to
// the initial cash. A fill that would break it (buy beyond cash, sell beyond
// held quantity) panics, because the gate reserves funds before submission
// and a violation means the book and the gate disagree.
package portfolio

import (
	"fmt"
	"sort"
	"sync"

	"main/internal/schema"
)

// Position is one open holding.
type Position struct {
	InstrumentID schema.InstrumentID
	Qty          schema.Quantity
	AvgPrice     schema.Price
	LastPrice    schema.Price
	Stop         schema.Price
	Target       schema.Price
	OpenTs       int64
}

// Portfolio tracks cash, open positions, and realized profit.
type Portfolio struct {
	mu          sync.RWMutex
	initialCash float64
	cash        float64
	realized    float64
	positions   map[schema.InstrumentID]*Position
}

// NewPortfolio creates a book holding only cash.
func NewPortfolio(initialCash float64) *Portfolio {
	return &Portfolio{
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[schema.InstrumentID]*Position),
	}
}

// ApplyFill books one settled execution and returns the realized profit
// delta (zero for buys). Stop and target ride along from the originating
// intent; zero values leave the existing marks untouched.
func (p *Portfolio) ApplyFill(fill schema.Fill, stop, target schema.Price) float64 {
	if fill.Qty <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch fill.Side {
	case schema.OrderSideBuy:
		p.applyBuy(fill, stop, target)
		return 0
	case schema.OrderSideSell:
		return p.applySell(fill)
	default:
		return 0
	}
}

// applyBuy opens or extends a position. Callers hold p.mu.
func (p *Portfolio) applyBuy(fill schema.Fill, stop, target schema.Price) {
	cost := float64(fill.Price) * float64(fill.Qty)
	// The 1e-6 slack absorbs float rounding between the sizer's cash cap
	// and this debit.
	if cost-p.cash > 1e-6 {
		panic(fmt.Sprintf("portfolio: buy cost %.2f exceeds cash %.2f (instrument %d)", cost, p.cash, fill.InstrumentID))
	}
	p.cash -= cost

	pos, ok := p.positions[fill.InstrumentID]
	if !ok {
		pos = &Position{InstrumentID: fill.InstrumentID, OpenTs: fill.Ts}
		p.positions[fill.InstrumentID] = pos
	}
	total := pos.Qty + fill.Qty
	pos.AvgPrice = schema.Price(
		(float64(pos.AvgPrice)*float64(pos.Qty) + float64(fill.Price)*float64(fill.Qty)) / float64(total))
	pos.Qty = total
	pos.LastPrice = fill.Price
	if stop > 0 {
		pos.Stop = stop
	}
	if target > 0 {
		pos.Target = target
	}
}

// applySell reduces or closes a position and books realized profit.
// Callers hold p.mu.
func (p *Portfolio) applySell(fill schema.Fill) float64 {
	pos, ok := p.positions[fill.InstrumentID]
	if !ok || fill.Qty > pos.Qty {
		held := schema.Quantity(0)
		if ok {
			held = pos.Qty
		}
		panic(fmt.Sprintf("portfolio: sell of %d exceeds held %d (instrument %d)", fill.Qty, held, fill.InstrumentID))
	}

	proceeds := float64(fill.Price) * float64(fill.Qty)
	realized := (float64(fill.Price) - float64(pos.AvgPrice)) * float64(fill.Qty)
	p.cash += proceeds
	p.realized += realized

	pos.Qty -= fill.Qty
	pos.LastPrice = fill.Price
	if pos.Qty == 0 {
		delete(p.positions, fill.InstrumentID)
	}
	return realized
}

// UpdatePrice marks a held position to the latest trade price. Instruments
// without a position are ignored.
func (p *Portfolio) UpdatePrice(id schema.InstrumentID, price schema.Price) {
	if price <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos, ok := p.positions[id]; ok {
		pos.LastPrice = price
	}
}

// Cash returns the free cash balance.
func (p *Portfolio) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// RealizedPnL returns the accumulated realized profit.
func (p *Portfolio) RealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realized
}

// UnrealizedPnL returns the open profit across positions at current marks.
func (p *Portfolio) UnrealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var pnl float64
	for _, pos := range p.positions {
		pnl += (float64(pos.LastPrice) - float64(pos.AvgPrice)) * float64(pos.Qty)
	}
	return pnl
}

// TotalEquity returns cash plus positions at current marks.
func (p *Portfolio) TotalEquity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equityLocked()
}

// CashRatio returns the free-cash share of total equity.
func (p *Portfolio) CashRatio() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	equity := p.equityLocked()
	if equity <= 0 {
		return 0
	}
	return p.cash / equity
}

// equityLocked computes equity. Callers hold p.mu.
func (p *Portfolio) equityLocked() float64 {
	equity := p.cash
	for _, pos := range p.positions {
		equity += float64(pos.LastPrice) * float64(pos.Qty)
	}
	return equity
}

// PositionCount returns the number of open positions.
func (p *Portfolio) PositionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.positions)
}

// PositionQty returns the held quantity, zero when flat.
func (p *Portfolio) PositionQty(id schema.InstrumentID) schema.Quantity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if pos, ok := p.positions[id]; ok {
		return pos.Qty
	}
	return 0
}

// PositionValue returns the position's worth at its current mark.
func (p *Portfolio) PositionValue(id schema.InstrumentID) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if pos, ok := p.positions[id]; ok {
		return float64(pos.LastPrice) * float64(pos.Qty)
	}
	return 0
}

// PositionStops returns the protective marks riding on a position.
func (p *Portfolio) PositionStops(id schema.InstrumentID) (stop, target schema.Price) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if pos, ok := p.positions[id]; ok {
		return pos.Stop, pos.Target
	}
	return 0, 0
}

// Position returns a copy of one holding.
func (p *Portfolio) Position(id schema.InstrumentID) (Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if pos, ok := p.positions[id]; ok {
		return *pos, true
	}
	return Position{}, false
}

// Positions returns copies of all holdings ordered by instrument.
func (p *Portfolio) Positions() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}

// InitialCash returns the cash the book started with.
func (p *Portfolio) InitialCash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initialCash
}
