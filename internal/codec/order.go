package codec

import (
	"encoding/binary"
	"math"

	"main/internal/schema"
)

// OrderIntentFixedSize is the size of the fixed portion of an order intent
// payload. ClientID follows as a length-prefixed string.
const OrderIntentFixedSize = 54

// EncodeOrderIntent serializes an order intent payload.
func EncodeOrderIntent(dst []byte, order schema.OrderIntent) []byte {
	if cap(dst) < OrderIntentFixedSize {
		dst = make([]byte, OrderIntentFixedSize)
	} else {
		dst = dst[:OrderIntentFixedSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], order.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(order.InstrumentID))
	binary.LittleEndian.PutUint16(dst[12:14], uint16(order.Side))
	binary.LittleEndian.PutUint64(dst[14:22], uint64(order.Qty))
	binary.LittleEndian.PutUint64(dst[22:30], math.Float64bits(float64(order.Price)))
	binary.LittleEndian.PutUint64(dst[30:38], math.Float64bits(float64(order.Stop)))
	binary.LittleEndian.PutUint64(dst[38:46], math.Float64bits(float64(order.Target)))
	binary.LittleEndian.PutUint64(dst[46:54], uint64(order.Ts))

	return appendString(dst, order.ClientID)
}

// DecodeOrderIntent parses an order intent payload.
func DecodeOrderIntent(src []byte) (schema.OrderIntent, bool) {
	if len(src) < OrderIntentFixedSize {
		return schema.OrderIntent{}, false
	}
	order := schema.OrderIntent{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[8:12])),
		Side:         schema.OrderSide(binary.LittleEndian.Uint16(src[12:14])),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[14:22]))),
		Price:        schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[22:30]))),
		Stop:         schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[30:38]))),
		Target:       schema.Price(math.Float64frombits(binary.LittleEndian.Uint64(src[38:46]))),
		Ts:           int64(binary.LittleEndian.Uint64(src[46:54])),
	}

	clientID, _, ok := readString(src, OrderIntentFixedSize)
	if !ok {
		return schema.OrderIntent{}, false
	}
	order.ClientID = clientID
	return order, true
}
