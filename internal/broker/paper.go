package broker

import (
	"context"
	"time"

	"main/internal/schema"
	"main/pkg/exception"
)

// PaperConfig controls the simulated venue.
type PaperConfig struct {
	// TwoPartFills splits executions of two or more shares into a partial
	// and a completing fill, exercising cumulative reconciliation.
	TwoPartFills bool
	// Latency delays each submission, honoring the request context.
	Latency time.Duration
}

// PaperDelegator fills every order at its requested price without touching
// a venue. It backs paper trading sessions and the replay tooling.
type PaperDelegator struct {
	cfg PaperConfig
}

// NewPaperDelegator creates a simulated venue delegator.
func NewPaperDelegator(cfg PaperConfig) *PaperDelegator {
	return &PaperDelegator{cfg: cfg}
}

// Send acknowledges the intent with immediate fills at the requested price.
func (d *PaperDelegator) Send(ctx context.Context, intent schema.OrderIntent) ([]schema.Fill, error) {
	if intent.OrderID == 0 || intent.Qty <= 0 || intent.Price <= 0 {
		return nil, exception.ErrOrderInvalidRequest
	}
	if d.cfg.Latency > 0 {
		t := time.NewTimer(d.cfg.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	ts := time.Now().UTC().UnixNano()
	if d.cfg.TwoPartFills && intent.Qty >= 2 {
		first := intent.Qty / 2
		rest := intent.Qty - first
		return []schema.Fill{
			{
				OrderID:      intent.OrderID,
				InstrumentID: intent.InstrumentID,
				Side:         intent.Side,
				Status:       schema.FillStatusPartial,
				Qty:          first,
				Price:        intent.Price,
				Remaining:    rest,
				Ts:           ts,
			},
			{
				OrderID:      intent.OrderID,
				InstrumentID: intent.InstrumentID,
				Side:         intent.Side,
				Status:       schema.FillStatusFilled,
				Qty:          rest,
				Price:        intent.Price,
				Ts:           ts,
			},
		}, nil
	}

	return []schema.Fill{{
		OrderID:      intent.OrderID,
		InstrumentID: intent.InstrumentID,
		Side:         intent.Side,
		Status:       schema.FillStatusFilled,
		Qty:          intent.Qty,
		Price:        intent.Price,
		Ts:           ts,
	}}, nil
}
