// Package risk is the authorization layer between signals and orders: the
// gate runs ordered checks against a read-only portfolio view, the sizer
// turns approved buys into share quantities, the daily guard latches the
// session shut on a hard loss limit, and the drawdown shield throttles
// per-trade risk after loss streaks.
//
// The gate owns no portfolio state. Approval and mutation are separate
// phases: state changes only through confirmed fills applied elsewhere.
package risk

import (
	"fmt"
	"time"

	"main/internal/schema"
)

// PortfolioView is the read surface the gate prices its checks against.
type PortfolioView interface {
	Cash() float64
	TotalEquity() float64
	PositionCount() int
	PositionQty(id schema.InstrumentID) schema.Quantity
	PositionValue(id schema.InstrumentID) float64
	PositionStops(id schema.InstrumentID) (stop, target schema.Price)
}

// GateConfig defines the gate's order-admission limits.
type GateConfig struct {
	Version          uint16  `json:"version"`
	MaxPositions     int     `json:"maxPositions"`
	MinCashRatio     float64 `json:"minCashRatio"`
	MaxPositionRatio float64 `json:"maxPositionRatio"`

	// DefaultStopPct places the stop at price*(1-pct) when a buy signal
	// carries none, so the risk cap always has a footing.
	DefaultStopPct float64 `json:"defaultStopPct"`
}

// Gate authorizes every order before submission.
type Gate struct {
	cfg    GateConfig
	view   PortfolioView
	guard  *DailyGuard
	shield *DrawdownShield
	sizer  *Sizer
}

// NewGate wires the gate to its collaborators.
func NewGate(cfg GateConfig, view PortfolioView, guard *DailyGuard, shield *DrawdownShield, sizer *Sizer) *Gate {
	return &Gate{cfg: cfg, view: view, guard: guard, shield: shield, sizer: sizer}
}

// Evaluate authorizes a signal at the given price. Hold signals deny.
func (g *Gate) Evaluate(sig schema.Signal, price schema.Price, now int64) schema.RiskDecision {
	switch sig.Kind {
	case schema.SignalBuy:
		return g.EvaluateBuy(sig, price, now)
	case schema.SignalSell:
		return g.EvaluateSell(sig, price, now)
	default:
		return schema.RiskDecision{
			InstrumentID: sig.InstrumentID,
			Action:       schema.RiskActionDeny,
			Reason:       schema.RiskReasonNone,
			Price:        price,
			Ts:           resolveNow(now),
			Detail:       "hold signals are not orders",
		}
	}
}

// EvaluateBuy runs the ordered buy checks: guard lock, concurrent position
// count, cash reserve, per-instrument concentration, then sizing.
func (g *Gate) EvaluateBuy(sig schema.Signal, price schema.Price, now int64) schema.RiskDecision {
	ts := resolveNow(now)
	decision := schema.RiskDecision{
		InstrumentID: sig.InstrumentID,
		Side:         schema.OrderSideBuy,
		Action:       schema.RiskActionAllow,
		Reason:       schema.RiskReasonNone,
		Price:        price,
		Ts:           ts,
	}

	if !g.guard.TradingAllowed(time.Unix(0, ts)) {
		decision.Action = schema.RiskActionDeny
		decision.Reason = schema.RiskReasonGuardLocked
		decision.Detail = g.guard.LockReason()
		return decision
	}

	held := g.view.PositionQty(sig.InstrumentID)
	if held == 0 && g.cfg.MaxPositions > 0 && g.view.PositionCount() >= g.cfg.MaxPositions {
		decision.Action = schema.RiskActionDeny
		decision.Reason = schema.RiskReasonMaxPositions
		decision.Detail = fmt.Sprintf("already holding %d positions, limit %d", g.view.PositionCount(), g.cfg.MaxPositions)
		return decision
	}

	cash := g.view.Cash()
	equity := g.view.TotalEquity()
	usable := cash - g.cfg.MinCashRatio*equity
	if price <= 0 || usable < float64(price) {
		decision.Action = schema.RiskActionDeny
		decision.Reason = schema.RiskReasonCashReserve
		decision.Detail = fmt.Sprintf("usable cash %.2f cannot buy one share at %.2f keeping cash ratio above %.2f", usable, float64(price), g.cfg.MinCashRatio)
		return decision
	}

	if g.cfg.MaxPositionRatio > 0 && equity > 0 {
		value := g.view.PositionValue(sig.InstrumentID)
		if value >= g.cfg.MaxPositionRatio*equity {
			decision.Action = schema.RiskActionDeny
			decision.Reason = schema.RiskReasonConcentration
			decision.Detail = fmt.Sprintf("position value %.2f already at concentration limit %.2f of equity", value, g.cfg.MaxPositionRatio)
			return decision
		}
	}

	stop := sig.Stop
	if stop <= 0 || stop >= price {
		stop = price * schema.Price(1-g.cfg.DefaultStopPct)
	}
	qty := g.sizer.Size(cash, equity, price, stop, sig.Confidence, g.shield.RiskAmount())
	if qty <= 0 {
		decision.Action = schema.RiskActionDeny
		decision.Reason = schema.RiskReasonSizingZero
		decision.Detail = "sizing produced zero"
		return decision
	}

	decision.Qty = qty
	decision.Stop = stop
	decision.Target = sig.Target
	decision.Detail = fmt.Sprintf("sized %d shares at %.2f, stop %.2f", int64(qty), float64(price), float64(stop))
	return decision
}

// EvaluateSell approves iff a position exists, always for the full held
// quantity. Sells bypass the daily guard: a locked session may still be
// flattened.
func (g *Gate) EvaluateSell(sig schema.Signal, price schema.Price, now int64) schema.RiskDecision {
	decision := schema.RiskDecision{
		InstrumentID: sig.InstrumentID,
		Side:         schema.OrderSideSell,
		Action:       schema.RiskActionAllow,
		Reason:       schema.RiskReasonNone,
		Price:        price,
		Ts:           resolveNow(now),
	}

	held := g.view.PositionQty(sig.InstrumentID)
	if held <= 0 {
		decision.Action = schema.RiskActionDeny
		decision.Reason = schema.RiskReasonNoPosition
		decision.Detail = "no position to sell"
		return decision
	}

	decision.Qty = held
	decision.Detail = fmt.Sprintf("closing full position of %d shares", int64(held))
	return decision
}

// CheckStopLoss synthesizes a full-confidence sell when the price has
// crossed the position's recorded stop. Pure read; polled on price updates.
func (g *Gate) CheckStopLoss(id schema.InstrumentID, price schema.Price, now int64) (schema.Signal, bool) {
	if g.view.PositionQty(id) <= 0 {
		return schema.Signal{}, false
	}
	stop, _ := g.view.PositionStops(id)
	if stop <= 0 || price > stop {
		return schema.Signal{}, false
	}
	return schema.Signal{
		Kind:         schema.SignalSell,
		InstrumentID: id,
		Confidence:   1.0,
		Ts:           resolveNow(now),
		Strategy:     "risk_gate",
		Reason:       fmt.Sprintf("stop loss %.2f crossed at %.2f", float64(stop), float64(price)),
	}, true
}

// CheckTakeProfit synthesizes a full-confidence sell when the price has
// crossed the position's recorded target.
func (g *Gate) CheckTakeProfit(id schema.InstrumentID, price schema.Price, now int64) (schema.Signal, bool) {
	if g.view.PositionQty(id) <= 0 {
		return schema.Signal{}, false
	}
	_, target := g.view.PositionStops(id)
	if target <= 0 || price < target {
		return schema.Signal{}, false
	}
	return schema.Signal{
		Kind:         schema.SignalSell,
		InstrumentID: id,
		Confidence:   1.0,
		Ts:           resolveNow(now),
		Strategy:     "risk_gate",
		Reason:       fmt.Sprintf("take profit %.2f crossed at %.2f", float64(target), float64(price)),
	}, true
}

func resolveNow(now int64) int64 {
	if now != 0 {
		return now
	}
	return time.Now().UTC().UnixNano()
}
