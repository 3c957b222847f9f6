package codec

import (
	"encoding/binary"
	"math"

	"main/internal/schema"
)

// SignalFixedSize is the size of the fixed portion of a signal payload.
// Strategy and Reason follow as length-prefixed strings.
const SignalFixedSize = 38

// EncodeSignal serializes a signal payload.
func EncodeSignal(dst []byte, sig schema.Signal) []byte {
	if cap(dst) < SignalFixedSize {
		dst = make([]byte, SignalFixedSize)
	} else {
		dst = dst[:SignalFixedSize]
	}

	binary.LittleEndian.PutUint16(dst[0:2], uint16(sig.Kind))
	binary.LittleEndian.PutUint32(dst[2:6], uint32(sig.InstrumentID))
	binary.LittleEndian.PutUint64(dst[6:14], math.Float64bits(sig.Confidence))
	binary.LittleEndian.PutUint64(dst[14:22], math.Float64bits(float64(sig.Stop)))
	binary.LittleEndian.PutUint64(dst[22:30], math.Float64bits(float64(sig.Target)))
	binary.LittleEndian.PutUint64(dst[30:38], uint64(sig.Ts))

	dst = appendString(dst, sig.Strategy)
	dst = appendString(dst, sig.Reason)

	return dst
}

// DecodeSignal parses a signal payload.
func DecodeSignal(src []byte) (schema.Signal, bool) {
	if len(src) < SignalFixedSize {
		return schema.Signal{}, false
	}
	sig := schema.Signal{
		Kind:         schema.SignalKind(binary.LittleEndian.Uint16(src[0:2])),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[2:6])),
		Confidence:   math.Float64frombits(binary.LittleEndian.Uint64(src[6:14])),
		Stop:         schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[14:22]))),
		Target:       schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[22:30]))),
		Ts:           int64(binary.LittleEndian.Uint64(src[30:38])),
	}

	strategy, next, ok := readString(src, SignalFixedSize)
	if !ok {
		return schema.Signal{}, false
	}
	reason, _, ok := readString(src, next)
	if !ok {
		return schema.Signal{}, false
	}
	sig.Strategy = strategy
	sig.Reason = reason
	return sig, true
}
