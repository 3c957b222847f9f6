package codec

import (
	"encoding/binary"
	"math"

	"main/internal/schema"
)

// RiskDecisionFixedSize is the size of the fixed portion of a risk decision
// payload. Detail follows as a length-prefixed string.
const RiskDecisionFixedSize = 58

// EncodeRiskDecision serializes a risk decision payload.
func EncodeRiskDecision(dst []byte, decision schema.RiskDecision) []byte {
	if cap(dst) < RiskDecisionFixedSize {
		dst = make([]byte, RiskDecisionFixedSize)
	} else {
		dst = dst[:RiskDecisionFixedSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], decision.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(decision.InstrumentID))
	binary.LittleEndian.PutUint16(dst[12:14], uint16(decision.Side))
	binary.LittleEndian.PutUint16(dst[14:16], uint16(decision.Action))
	binary.LittleEndian.PutUint16(dst[16:18], uint16(decision.Reason))
	binary.LittleEndian.PutUint64(dst[18:26], uint64(decision.Qty))
	binary.LittleEndian.PutUint64(dst[26:34], math.Float64bits(float64(decision.Price)))
	binary.LittleEndian.PutUint64(dst[34:42], math.Float64bits(float64(decision.Stop)))
	binary.LittleEndian.PutUint64(dst[42:50], math.Float64bits(float64(decision.Target)))
	binary.LittleEndian.PutUint64(dst[50:58], uint64(decision.Ts))

	return appendString(dst, decision.Detail)
}

// DecodeRiskDecision parses a risk decision payload.
func DecodeRiskDecision(src []byte) (schema.RiskDecision, bool) {
	if len(src) < RiskDecisionFixedSize {
		return schema.RiskDecision{}, false
	}
	decision := schema.RiskDecision{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[8:12])),
		Side:         schema.OrderSide(binary.LittleEndian.Uint16(src[12:14])),
		Action:       schema.RiskAction(binary.LittleEndian.Uint16(src[14:16])),
		Reason:       schema.RiskReason(binary.LittleEndian.Uint16(src[16:18])),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[18:26]))),
		Price:        schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[26:34]))),
		Stop:         schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[34:42]))),
		Target:       schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[42:50]))),
		Ts:           int64(binary.LittleEndian.Uint64(src[50:58])),
	}

	detail, _, ok := readString(src, RiskDecisionFixedSize)
	if !ok {
		return schema.RiskDecision{}, false
	}
	decision.Detail = detail
	return decision, true
}
