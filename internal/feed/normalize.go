package feed

import (
	"time"

	"main/internal/schema"
	"main/pkg/exception"
)

// RawTick is one trade observation before instrument resolution.
type RawTick struct {
	Symbol  string
	Price   float64
	Size    int64
	Source  uint16
	TsEvent int64
	TsRecv  int64
}

// Normalizer resolves raw ticks against the instrument registry.
type Normalizer struct {
	reg *schema.Registry
}

// NewNormalizer creates a normalizer for a registry.
func NewNormalizer(reg *schema.Registry) *Normalizer {
	return &Normalizer{reg: reg}
}

// Normalize converts a raw tick into a schema tick. Unknown symbols and
// non-positive prices or sizes are rejected before they reach the lanes.
func (n *Normalizer) Normalize(raw RawTick) (schema.Tick, error) {
	if n.reg == nil {
		return schema.Tick{}, exception.ErrNilInstance
	}
	id, ok := n.reg.InstrumentIDBySymbol(raw.Symbol)
	if !ok {
		return schema.Tick{}, exception.ErrFeedUnknownInstrument
	}
	if raw.Price <= 0 || raw.Size <= 0 {
		return schema.Tick{}, exception.ErrFeedInvalidTick
	}
	if raw.TsRecv == 0 {
		raw.TsRecv = time.Now().UTC().UnixNano()
	}
	if raw.TsEvent == 0 {
		raw.TsEvent = raw.TsRecv
	}
	return schema.Tick{
		InstrumentID: id,
		Price:        schema.Price(raw.Price),
		Volume:       schema.Quantity(raw.Size),
		Ts:           raw.TsEvent,
	}, nil
}
