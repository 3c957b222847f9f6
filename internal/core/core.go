/*
Core wires the trading pipeline end to end.

# Flow
  - ticks: per-instrument lossy lanes → bar aggregation → strategy
    aggregate → risk gate → ledger → broker
  - fills: bounded queue, single consumer → ledger → portfolio → guards
  - every price update additionally marks the book and polls the recorded
    stop and target levels

# Invariants
  - gate evaluation, sizing, ledger submit, and broker enqueue of one
    decision run under a single mutex, and fills apply under the same
    mutex, so sizing never reads mid-application state
  - cash spoken for by in-flight buys stays reserved until the order
    settles, and an instrument with an in-flight exit reads as flat, so
    one stop cannot fire twice
  - fill events are journaled only when the ledger accepts them, so a
    replayed journal rebuilds the identical book
*/
package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"main/internal/bars"
	"main/internal/broker"
	"main/internal/bus"
	"main/internal/codec"
	"main/internal/journal"
	"main/internal/ledger"
	"main/internal/notify"
	"main/internal/obs"
	"main/internal/portfolio"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
	"main/pkg/exception"
)

// SessionSummary is the end-of-day rollup handed to the audit sink.
type SessionSummary struct {
	Ts         int64
	Trades     int
	Realized   float64
	Equity     float64
	Locked     bool
	RiskAmount float64
}

// Audit receives order-flow records for external persistence. Calls happen
// on the decision path, so implementations must not block; queue and write
// elsewhere.
type Audit interface {
	OrderSubmitted(intent schema.OrderIntent)
	TradeExecuted(order ledger.Order, realized float64)
	SessionSummary(summary SessionSummary)
}

// Config carries the pipeline's own knobs; component configs stay with
// their components.
type Config struct {
	Gate  risk.GateConfig
	Sizer risk.SizerConfig

	// Location decides session-day boundaries. nil means UTC.
	Location *time.Location

	// VWAPTicks is the tick window handed to strategies. Zero disables
	// the VWAP context field.
	VWAPTicks int
}

// Deps are the pipeline's collaborators. Journal, Metrics, Audit, and
// Sinks are optional.
type Deps struct {
	Registry *schema.Registry
	Book     *portfolio.Portfolio
	Bars     *bars.Aggregator
	Engine   *strategy.Engine
	Guard    *risk.DailyGuard
	Shield   *risk.DrawdownShield
	Broker   *broker.Broker
	Fills    *bus.FillQueue
	Lanes    *bus.Lanes
	Flows    *obs.FlowIDs
	Journal  *journal.Journal
	Metrics  *obs.Metrics
	Audit    Audit
	Sinks    []notify.Sink
}

type inflightOrder struct {
	instrument schema.InstrumentID
	side       schema.OrderSide
	reserved   float64
}

type laneClock struct {
	day int
}

// Pipeline owns the session: it consumes ticks and fills, drives every
// component, and is the only writer of orders and portfolio state.
type Pipeline struct {
	cfg      Config
	reg      *schema.Registry
	book     *portfolio.Portfolio
	bars     *bars.Aggregator
	engine   *strategy.Engine
	guard    *risk.DailyGuard
	shield   *risk.DrawdownShield
	broker   *broker.Broker
	fills    *bus.FillQueue
	lanes    *bus.Lanes
	flows    *obs.FlowIDs
	journal  *journal.Journal
	metrics  *obs.Metrics
	audit    Audit
	ledger   *ledger.Ledger
	notifier *notify.Notifier

	// laneDays is allocated for the full instrument set up front; each
	// entry is touched only by its instrument's lane goroutine.
	laneDays map[schema.InstrumentID]*laneClock

	running     atomic.Bool
	lastEventTs atomic.Int64

	// mu is the decision mutex. Everything below it is guarded.
	mu            sync.Mutex
	gate          *risk.Gate
	sizer         *risk.Sizer
	gateVersion   uint16
	reserved      float64
	inflight      map[uint64]inflightOrder
	exiting       map[schema.InstrumentID]bool
	dayKey        int
	guardNotified bool
}

// NewPipeline wires the components together. The pipeline builds its own
// ledger, gate, and notifier because it owns their callbacks and views.
func NewPipeline(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Registry == nil || deps.Book == nil || deps.Bars == nil || deps.Engine == nil ||
		deps.Guard == nil || deps.Shield == nil || deps.Broker == nil ||
		deps.Fills == nil || deps.Lanes == nil {
		return nil, exception.ErrNilInstance
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if deps.Flows == nil {
		deps.Flows = obs.NewFlowIDs(0)
	}

	p := &Pipeline{
		cfg:      cfg,
		reg:      deps.Registry,
		book:     deps.Book,
		bars:     deps.Bars,
		engine:   deps.Engine,
		guard:    deps.Guard,
		shield:   deps.Shield,
		broker:   deps.Broker,
		fills:    deps.Fills,
		lanes:    deps.Lanes,
		flows:    deps.Flows,
		journal:  deps.Journal,
		metrics:  deps.Metrics,
		audit:    deps.Audit,
		inflight: make(map[uint64]inflightOrder),
		exiting:  make(map[schema.InstrumentID]bool),
	}
	p.laneDays = make(map[schema.InstrumentID]*laneClock, deps.Registry.InstrumentCount())
	for i := range deps.Registry.InstrumentCount() {
		inst, _ := deps.Registry.InstrumentAt(i)
		p.laneDays[inst.ID] = &laneClock{}
	}

	p.ledger = ledger.NewLedger(p.applyExecuted)
	p.sizer = risk.NewSizer(cfg.Sizer)
	p.gate = risk.NewGate(cfg.Gate, reservedView{p}, deps.Guard, deps.Shield, p.sizer)
	p.gateVersion = cfg.Gate.Version
	p.notifier = notify.NewNotifier(p.recordNotice, deps.Sinks...)
	return p, nil
}

// Ledger exposes the order book for pending-order sweeps and audits.
func (p *Pipeline) Ledger() *ledger.Ledger {
	return p.ledger
}

// LastEventTs returns the event timestamp of the latest journaled event.
func (p *Pipeline) LastEventTs() int64 {
	return p.lastEventTs.Load()
}

// MetricsSnapshot folds the lane drop counter in and returns the counters.
func (p *Pipeline) MetricsSnapshot() obs.Snapshot {
	p.metrics.SetLaneDrops(p.lanes.Drops())
	return p.metrics.Snapshot()
}

// UpdateRiskLimits swaps the gate and sizer when the config version moved.
// Hot-reload entry; the swap waits for the current decision to finish.
func (p *Pipeline) UpdateRiskLimits(gateCfg risk.GateConfig, sizerCfg risk.SizerConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gateCfg.Version == p.gateVersion {
		return
	}
	p.sizer = risk.NewSizer(sizerCfg)
	p.gate = risk.NewGate(gateCfg, reservedView{p}, p.guard, p.shield, p.sizer)
	p.gateVersion = gateCfg.Version
	logs.Infof("risk limits updated to version %d", gateCfg.Version)
}

// PublishTick routes one normalized tick into its lane. Full lanes drop
// the tick by contract; unknown instruments are logged and skipped.
func (p *Pipeline) PublishTick(tick schema.Tick) error {
	err := p.lanes.Publish(tick)
	switch {
	case err == nil, errors.Is(err, bus.ErrLaneFull):
		return nil
	case errors.Is(err, bus.ErrLaneUnknown):
		logs.Warnf("dropping tick for unknown instrument %d", tick.InstrumentID)
		return nil
	default:
		return err
	}
}

// Run starts the broker workers and the fill consumer, then consumes the
// tick lanes until they close or the context ends. On a clean lane
// shutdown the broker queue and the fill stream drain before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.running.Swap(true) {
		return nil
	}

	p.broker.Run(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.fills.Run(ctx, p.onFill)
	}()

	p.lanes.Run(ctx, p.onTick)

	// Lanes drained, so no new orders can be created. Flush what is
	// already in flight.
	p.broker.Close()
	p.broker.Wait()
	p.fills.Close()
	<-done
	return nil
}

// Close force-closes open bars and emits the final session summary. Call
// after Run has returned.
func (p *Pipeline) Close() {
	for _, bar := range p.bars.ForceCloseAll() {
		p.recordBar(bar)
	}
	p.mu.Lock()
	p.emitSummaryLocked(time.Now().UTC().UnixNano())
	p.mu.Unlock()
	p.metrics.SetLaneDrops(p.lanes.Drops())
}

// onTick runs on the instrument's lane goroutine: ticks for one instrument
// arrive here strictly in order.
func (p *Pipeline) onTick(tick schema.Tick) {
	p.recordTick(tick)

	clock := p.laneDays[tick.InstrumentID]
	day := sessionDay(time.Unix(0, tick.Ts).In(p.cfg.Location))
	if clock.day != day {
		if clock.day != 0 {
			p.engine.Reset(tick.InstrumentID)
			if bar, ok := p.bars.ForceClose(tick.InstrumentID); ok {
				p.recordBar(bar)
			}
		}
		clock.day = day
		p.rolloverDay(day, tick.Ts)
	}

	p.onPrice(tick.InstrumentID, tick.Price, tick.Ts)

	if bar, closed := p.bars.Apply(tick); closed {
		p.onBarClose(bar, tick)
	}
}

// onPrice marks the book, refreshes the guard's unrealized figure, and
// polls the recorded stop and target levels.
func (p *Pipeline) onPrice(id schema.InstrumentID, price schema.Price, ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.book.UpdatePrice(id, price)
	p.guard.UpdateUnrealized(p.book.UnrealizedPnL(), time.Unix(0, ts).In(p.cfg.Location))
	p.checkGuardLocked()

	if sig, ok := p.gate.CheckStopLoss(id, price, ts); ok {
		p.decideLocked(sig, price, schema.RiskReasonStopLoss)
		return
	}
	if sig, ok := p.gate.CheckTakeProfit(id, price, ts); ok {
		p.decideLocked(sig, price, schema.RiskReasonTakeProfit)
	}
}

// onBarClose evaluates the strategies on the closed bar and routes an
// actionable verdict through the decision step.
func (p *Pipeline) onBarClose(bar schema.Bar, tick schema.Tick) {
	start := time.Now()
	p.recordBar(bar)

	var vwap schema.Price
	if p.cfg.VWAPTicks > 0 {
		vwap, _ = p.bars.VWAP(bar.InstrumentID, p.cfg.VWAPTicks)
	}
	sig, ok := p.engine.Aggregate(strategy.Context{
		Instrument: bar.InstrumentID,
		Bar:        bar,
		History:    p.bars.History(bar.InstrumentID),
		LastTick:   tick,
		VWAP:       vwap,
	})
	if ok {
		p.recordSignal(sig)
		p.mu.Lock()
		p.decideLocked(sig, tick.Price, schema.RiskReasonNone)
		p.mu.Unlock()
	}

	p.metrics.ObserveBarClose(time.Since(start))
}

// decideLocked is the atomic decision step: gate evaluation, sizing,
// ledger registration, and broker enqueue, all under p.mu. origin names
// the rule that synthesized a gate-initiated exit.
func (p *Pipeline) decideLocked(sig schema.Signal, price schema.Price, origin schema.RiskReason) {
	start := time.Now()
	defer func() {
		p.metrics.ObserveDecision(time.Since(start))
	}()

	decision := p.gate.Evaluate(sig, price, sig.Ts)
	if decision.Action != schema.RiskActionAllow {
		p.metrics.IncDenial(decision.Reason)
		p.recordDecision(decision)
		logs.Debugf("deny %s %s: %s", decision.Side, p.reg.SymbolName(decision.InstrumentID), decision.Detail)
		return
	}

	if origin != schema.RiskReasonNone {
		decision.Reason = origin
	}
	decision.OrderID = p.flows.Next()
	p.recordDecision(decision)

	intent := schema.OrderIntent{
		OrderID:      decision.OrderID,
		InstrumentID: decision.InstrumentID,
		Side:         decision.Side,
		Qty:          decision.Qty,
		Price:        price,
		Stop:         decision.Stop,
		Target:       decision.Target,
		Ts:           decision.Ts,
		ClientID:     uuid.NewString(),
	}
	if err := p.ledger.Submit(intent); err != nil {
		logs.Errorf("register order %d, err: %+v", intent.OrderID, err)
		return
	}
	p.recordIntent(intent)
	if p.audit != nil {
		p.audit.OrderSubmitted(intent)
	}

	if err := p.broker.Submit(intent); err != nil {
		logs.Errorf("enqueue order %d, err: %+v", intent.OrderID, err)
		reject := schema.Fill{
			OrderID:      intent.OrderID,
			InstrumentID: intent.InstrumentID,
			Side:         intent.Side,
			Status:       schema.FillStatusRejected,
			Remaining:    intent.Qty,
			Ts:           decision.Ts,
		}
		if applied, _ := p.ledger.OnFill(reject); applied {
			p.recordFill(reject)
		}
		return
	}

	if intent.Side == schema.OrderSideBuy {
		amount := float64(intent.Qty) * float64(price)
		p.reserved += amount
		p.inflight[intent.OrderID] = inflightOrder{instrument: intent.InstrumentID, side: intent.Side, reserved: amount}
	} else {
		p.exiting[intent.InstrumentID] = true
		p.inflight[intent.OrderID] = inflightOrder{instrument: intent.InstrumentID, side: intent.Side}
	}
	logs.Infof("submit %s %d %s at %.2f (order %d)",
		intent.Side, int64(intent.Qty), p.reg.SymbolName(intent.InstrumentID), float64(price), intent.OrderID)
}

// onFill is the single fill consumer. Application and journaling happen
// under the decision mutex, so replay order equals application order.
func (p *Pipeline) onFill(fill schema.Fill) {
	start := time.Now()

	p.mu.Lock()
	applied, err := p.ledger.OnFill(fill)
	if err != nil {
		logs.Errorf("apply fill for order %d, err: %+v", fill.OrderID, err)
	}
	if applied {
		p.recordFill(fill)
	}
	if o, ok := p.ledger.Order(fill.OrderID); ok && o.Status.Terminal() {
		p.releaseLocked(o.ID)
	}
	p.checkGuardLocked()
	p.mu.Unlock()

	p.metrics.ObserveFillApply(time.Since(start))
}

// applyExecuted books a settled order. The ledger invokes it exactly once
// per order, inside OnFill, so p.mu is already held by the fill consumer.
func (p *Pipeline) applyExecuted(o ledger.Order) {
	settled := schema.Fill{
		OrderID:      o.ID,
		InstrumentID: o.InstrumentID,
		Side:         o.Side,
		Status:       schema.FillStatusFilled,
		Qty:          o.FilledQty,
		Price:        o.FilledPrice,
		Ts:           o.FillTs,
	}
	realized := p.book.ApplyFill(settled, o.Stop, o.Target)

	if o.Side == schema.OrderSideSell {
		now := time.Unix(0, o.FillTs).In(p.cfg.Location)
		p.guard.RecordTrade(realized, now)
		p.guard.UpdateUnrealized(p.book.UnrealizedPnL(), now)
		p.shield.Update(realized)
	}

	p.notifier.TradeExecuted(o.InstrumentID, p.reg.SymbolName(o.InstrumentID), o.Side, o.FilledQty, o.FilledPrice, realized)
	if p.audit != nil {
		p.audit.TradeExecuted(o, realized)
	}
}

// releaseLocked returns an order's reservation once it is terminal.
// Callers hold p.mu.
func (p *Pipeline) releaseLocked(orderID uint64) {
	o, ok := p.inflight[orderID]
	if !ok {
		return
	}
	delete(p.inflight, orderID)
	if o.side == schema.OrderSideBuy {
		p.reserved -= o.reserved
		if p.reserved < 0 {
			p.reserved = 0
		}
		return
	}
	delete(p.exiting, o.instrument)
}

// checkGuardLocked raises the lock notice once per latch. Callers hold p.mu.
func (p *Pipeline) checkGuardLocked() {
	if p.guardNotified {
		return
	}
	g := p.guard.Snapshot()
	if !g.Locked {
		return
	}
	p.guardNotified = true
	p.notifier.GuardLocked(g.LockReason, g.Realized+g.Unrealized)
}

// rolloverDay emits the previous session's summary and rearms the guard
// notice. Strategy and bar state reset per lane; the guard rolls itself.
func (p *Pipeline) rolloverDay(day int, ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if day == p.dayKey {
		return
	}
	prev := p.dayKey
	p.dayKey = day
	if prev == 0 {
		return
	}
	p.emitSummaryLocked(ts)
	p.guardNotified = false
}

// emitSummaryLocked reports the session totals. Callers hold p.mu.
func (p *Pipeline) emitSummaryLocked(ts int64) {
	g := p.guard.Snapshot()
	s := p.shield.Snapshot()
	realized := p.book.RealizedPnL()
	equity := p.book.TotalEquity()

	p.notifier.DailySummary(uint64(g.TradeCount), realized, equity, g.Locked)
	if p.audit != nil {
		p.audit.SessionSummary(SessionSummary{
			Ts:         ts,
			Trades:     g.TradeCount,
			Realized:   realized,
			Equity:     equity,
			Locked:     g.Locked,
			RiskAmount: s.RiskAmount,
		})
	}
}

func (p *Pipeline) recordTick(t schema.Tick) {
	p.record(schema.EventTick, t.InstrumentID, 0, t.Ts, codec.EncodeTick(nil, t))
}

func (p *Pipeline) recordBar(b schema.Bar) {
	p.record(schema.EventBar, b.InstrumentID, 0, b.PeriodStart, codec.EncodeBar(nil, b))
}

func (p *Pipeline) recordSignal(s schema.Signal) {
	p.record(schema.EventSignal, s.InstrumentID, 0, s.Ts, codec.EncodeSignal(nil, s))
}

func (p *Pipeline) recordDecision(d schema.RiskDecision) {
	p.record(schema.EventRiskDecision, d.InstrumentID, d.OrderID, d.Ts, codec.EncodeRiskDecision(nil, d))
}

func (p *Pipeline) recordIntent(i schema.OrderIntent) {
	p.record(schema.EventOrderIntent, i.InstrumentID, i.OrderID, i.Ts, codec.EncodeOrderIntent(nil, i))
}

func (p *Pipeline) recordFill(f schema.Fill) {
	p.record(schema.EventFill, f.InstrumentID, f.OrderID, f.Ts, codec.EncodeFill(nil, f))
}

func (p *Pipeline) recordNotice(n schema.Notice) {
	p.record(schema.EventNotice, n.InstrumentID, 0, n.Ts, codec.EncodeNotice(nil, n))
}

func (p *Pipeline) record(eventType schema.EventType, id schema.InstrumentID, trace uint64, ts int64, payload []byte) {
	if p.journal == nil {
		return
	}
	header, err := p.journal.Record(eventType, id, trace, ts, payload)
	if err != nil {
		switch {
		case errors.Is(err, journal.ErrQueueFull):
			p.metrics.IncQueueDrop()
		case errors.Is(err, journal.ErrClosed):
			p.metrics.IncQueueClosed()
		default:
			logs.Errorf("journal %s event, err: %+v", eventType, err)
		}
		return
	}
	p.lastEventTs.Store(ts)
	p.metrics.ObserveEvent(header)
}

// reservedView overlays in-flight reservations on the book: cash spoken
// for by unfilled buys is unavailable, and an instrument with an in-flight
// exit reads as flat. Read only with p.mu held.
type reservedView struct {
	p *Pipeline
}

func (v reservedView) Cash() float64 {
	return v.p.book.Cash() - v.p.reserved
}

func (v reservedView) TotalEquity() float64 {
	return v.p.book.TotalEquity()
}

func (v reservedView) PositionCount() int {
	return v.p.book.PositionCount()
}

func (v reservedView) PositionQty(id schema.InstrumentID) schema.Quantity {
	if v.p.exiting[id] {
		return 0
	}
	return v.p.book.PositionQty(id)
}

func (v reservedView) PositionValue(id schema.InstrumentID) float64 {
	return v.p.book.PositionValue(id)
}

func (v reservedView) PositionStops(id schema.InstrumentID) (stop, target schema.Price) {
	return v.p.book.PositionStops(id)
}

func sessionDay(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}
