package codec

import (
	"encoding/binary"
	"math"

	"main/internal/schema"
)

const TickPayloadSize = 28

// EncodeTick serializes a tick into a fixed-size payload.
func EncodeTick(dst []byte, tick schema.Tick) []byte {
	if cap(dst) < TickPayloadSize {
		dst = make([]byte, TickPayloadSize)
	} else {
		dst = dst[:TickPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(tick.InstrumentID))
	binary.LittleEndian.PutUint64(dst[4:12], math.Float64bits(float64(tick.Price)))
	binary.LittleEndian.PutUint64(dst[12:20], uint64(tick.Volume))
	binary.LittleEndian.PutUint64(dst[20:28], uint64(tick.Ts))

	return dst
}

// DecodeTick parses a fixed-size tick payload.
func DecodeTick(src []byte) (schema.Tick, bool) {
	if len(src) < TickPayloadSize {
		return schema.Tick{}, false
	}
	return schema.Tick{
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[0:4])),
		Price:        schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[4:12]))),
		Volume:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[12:20]))),
		Ts:           int64(binary.LittleEndian.Uint64(src[20:28])),
	}, true
}
