package feed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"main/internal/schema"
)

// Prices below this are clamped so a long losing walk cannot cross zero.
const minWalkPrice = 0.01

// WalkConfig controls the simulated tick source.
type WalkConfig struct {
	BasePrice float64       `json:"basePrice"`
	StepPct   float64       `json:"stepPct"`
	MaxVolume int64         `json:"maxVolume"`
	Interval  time.Duration `json:"interval"`
	Seed      int64         `json:"seed"`
}

func (c WalkConfig) withDefaults() WalkConfig {
	if c.BasePrice <= 0 {
		c.BasePrice = 100.0
	}
	if c.StepPct <= 0 {
		c.StepPct = 0.002
	}
	if c.MaxVolume <= 0 {
		c.MaxVolume = 100
	}
	if c.Interval <= 0 {
		c.Interval = 50 * time.Millisecond
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UTC().UnixNano()
	}
	return c
}

// Walk emits a seeded random-walk price stream across every registered
// instrument in round-robin order. The same seed replays the same stream.
type Walk struct {
	cfg         WalkConfig
	instruments []schema.InstrumentID
	prices      []float64
	rng         *rand.Rand
	index       int
}

// NewWalk creates a walk source over the instruments in reg.
func NewWalk(cfg WalkConfig, reg *schema.Registry) (*Walk, error) {
	count := reg.InstrumentCount()
	if count == 0 {
		return nil, fmt.Errorf("registry has no instruments")
	}

	cfg = cfg.withDefaults()
	instruments := make([]schema.InstrumentID, count)
	prices := make([]float64, count)
	for i := range count {
		inst, _ := reg.InstrumentAt(i)
		instruments[i] = inst.ID
		prices[i] = cfg.BasePrice
	}

	return &Walk{
		cfg:         cfg,
		instruments: instruments,
		prices:      prices,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Next advances the walk one step and returns the resulting tick.
func (w *Walk) Next(now time.Time) schema.Tick {
	i := w.index
	w.index = (w.index + 1) % len(w.instruments)

	step := (w.rng.Float64()*2 - 1) * w.cfg.StepPct
	price := w.prices[i] * (1 + step)
	if price < minWalkPrice {
		price = minWalkPrice
	}
	w.prices[i] = price

	return schema.Tick{
		InstrumentID: w.instruments[i],
		Price:        schema.Price(price),
		Volume:       schema.Quantity(1 + w.rng.Int63n(w.cfg.MaxVolume)),
		Ts:           now.UnixNano(),
	}
}

// Run emits ticks at the configured interval until ctx is done.
func (w *Walk) Run(ctx context.Context, emit func(schema.Tick) error) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := emit(w.Next(now)); err != nil {
				return err
			}
		}
	}
}
