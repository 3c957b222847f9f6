package codec

import (
	"encoding/binary"
	"math"

	"main/internal/schema"
)

const BarPayloadSize = 52

// EncodeBar serializes a closed bar into a fixed-size payload.
func EncodeBar(dst []byte, bar schema.Bar) []byte {
	if cap(dst) < BarPayloadSize {
		dst = make([]byte, BarPayloadSize)
	} else {
		dst = dst[:BarPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(bar.InstrumentID))
	binary.LittleEndian.PutUint64(dst[4:12], uint64(bar.PeriodStart))
	binary.LittleEndian.PutUint64(dst[12:20], math.Float64bits(float64(bar.Open)))
	binary.LittleEndian.PutUint64(dst[20:28], math.Float64bits(float64(bar.High)))
	binary.LittleEndian.PutUint64(dst[28:36], math.Float64bits(float64(bar.Low)))
	binary.LittleEndian.PutUint64(dst[36:44], math.Float64bits(float64(bar.Close)))
	binary.LittleEndian.PutUint64(dst[44:52], uint64(bar.Volume))

	return dst
}

// DecodeBar parses a fixed-size bar payload.
func DecodeBar(src []byte) (schema.Bar, bool) {
	if len(src) < BarPayloadSize {
		return schema.Bar{}, false
	}
	return schema.Bar{
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[0:4])),
		PeriodStart:  int64(binary.LittleEndian.Uint64(src[4:12])),
		Open:         schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[12:20]))),
		High:         schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[20:28]))),
		Low:          schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[28:36]))),
		Close:        schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[36:44]))),
		Volume:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[44:52]))),
	}, true
}
