package strategy

import (
	"bytes"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/DataDog/gostackparse"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// AggregateName is the provenance tag on aggregated signals.
const AggregateName = "aggregate"

// EngineConfig tunes signal aggregation.
type EngineConfig struct {
	// MinConfidence is the weighted score an aggregated signal must reach.
	MinConfidence float64

	// Weights maps strategy name to its static weight. Strategies missing
	// from the map weigh 1. Weights are normalized to sum 1 across the
	// engine's strategies.
	Weights map[string]float64
}

// Engine runs every registered strategy on each closed bar and merges their
// signals into at most one decision per instrument. A strategy that panics
// is logged and skipped for the cycle; the others still score.
type Engine struct {
	strategies []Strategy
	weights    map[string]float64
	minConf    float64
}

// NewEngine normalizes weights over the given strategies.
func NewEngine(cfg EngineConfig, strategies ...Strategy) *Engine {
	weights := make(map[string]float64, len(strategies))
	total := 0.0
	for _, s := range strategies {
		w, ok := cfg.Weights[s.Name()]
		if !ok || w < 0 {
			w = 1
		}
		weights[s.Name()] = w
		total += w
	}
	if total <= 0 {
		for name := range weights {
			weights[name] = 1 / float64(len(weights))
		}
	} else {
		for name, w := range weights {
			weights[name] = w / total
		}
	}
	return &Engine{
		strategies: strategies,
		weights:    weights,
		minConf:    cfg.MinConfidence,
	}
}

// Weight reports a strategy's normalized weight.
func (e *Engine) Weight(name string) float64 { return e.weights[name] }

// Reset clears per-instrument strategy state.
func (e *Engine) Reset(id schema.InstrumentID) {
	for _, s := range e.strategies {
		s.Reset(id)
	}
}

// ResetAll clears all strategy state for a new trading session.
func (e *Engine) ResetAll() {
	for _, s := range e.strategies {
		s.ResetAll()
	}
}

// Aggregate evaluates every strategy with sufficient history and merges the
// verdicts: buy and sell scores are confidence-weighted sums, and a side is
// forwarded only when its score reaches MinConfidence and beats the other
// side. The reported bool is false when the verdict is hold.
func (e *Engine) Aggregate(ctx Context) (schema.Signal, bool) {
	var buys, sells []schema.Signal
	var buyScore, sellScore float64

	for _, s := range e.strategies {
		sig, ok := e.evaluateOne(s, ctx)
		if !ok {
			continue
		}
		switch sig.Kind {
		case schema.SignalBuy:
			buys = append(buys, sig)
			buyScore += sig.Confidence * e.weights[s.Name()]
		case schema.SignalSell:
			sells = append(sells, sig)
			sellScore += sig.Confidence * e.weights[s.Name()]
		}
	}

	switch {
	case buyScore >= e.minConf && buyScore > sellScore:
		return e.merge(schema.SignalBuy, ctx, buys, buyScore), true
	case sellScore >= e.minConf && sellScore > buyScore:
		return e.merge(schema.SignalSell, ctx, sells, sellScore), true
	default:
		return schema.Signal{}, false
	}
}

func (e *Engine) evaluateOne(s Strategy, ctx Context) (sig schema.Signal, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			logs.Errorf("strategy %s panicked on instrument %d: %v\n%s",
				s.Name(), ctx.Instrument, r, cleanStack(debug.Stack()))
		}
	}()

	if len(ctx.History) < s.RequiredHistory() {
		return schema.Signal{}, false
	}
	return s.Evaluate(ctx)
}

// merge builds the aggregated signal: confidence capped at 1, the
// loss-limiting stop among contributors (highest for buys, lowest for
// sells), the nearest target, and the concatenated reasons.
func (e *Engine) merge(kind schema.SignalKind, ctx Context, contributors []schema.Signal, score float64) schema.Signal {
	confidence := score
	if confidence > 1 {
		confidence = 1
	}

	var stop, target schema.Price
	reasons := make([]string, 0, len(contributors))
	for _, sig := range contributors {
		reasons = append(reasons, fmt.Sprintf("%s: %s", sig.Strategy, sig.Reason))
		if sig.Stop > 0 {
			if stop == 0 ||
				(kind == schema.SignalBuy && sig.Stop > stop) ||
				(kind == schema.SignalSell && sig.Stop < stop) {
				stop = sig.Stop
			}
		}
		if sig.Target > 0 {
			if target == 0 ||
				(kind == schema.SignalBuy && sig.Target < target) ||
				(kind == schema.SignalSell && sig.Target > target) {
				target = sig.Target
			}
		}
	}

	return schema.Signal{
		Kind:         kind,
		InstrumentID: ctx.Instrument,
		Confidence:   confidence,
		Stop:         stop,
		Target:       target,
		Ts:           ctx.Bar.PeriodStart,
		Strategy:     AggregateName,
		Reason:       strings.Join(reasons, "; "),
	}
}

// cleanStack trims a panic stack to the interesting frames.
func cleanStack(stack []byte) string {
	goros, _ := gostackparse.Parse(bytes.NewReader(stack))
	if len(goros) == 0 {
		return string(stack)
	}
	g := goros[0]
	frames := g.Stack
	if len(frames) > 4 {
		frames = frames[4:]
	}
	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "goroutine %d [%s]\n", g.ID, g.State)
	for _, frame := range frames {
		fmt.Fprintf(buf, "%s\n\t%s:%d\n", frame.Func, frame.File, frame.Line)
	}
	return buf.String()
}
