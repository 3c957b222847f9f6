package codec

import (
	"encoding/binary"
	"math"

	"main/internal/schema"
)

// NoticeFixedSize is the size of the fixed portion of a notice payload.
// Text follows as a length-prefixed string.
const NoticeFixedSize = 22

// EncodeNotice serializes a notice payload.
func EncodeNotice(dst []byte, notice schema.Notice) []byte {
	if cap(dst) < NoticeFixedSize {
		dst = make([]byte, NoticeFixedSize)
	} else {
		dst = dst[:NoticeFixedSize]
	}

	binary.LittleEndian.PutUint16(dst[0:2], uint16(notice.Kind))
	binary.LittleEndian.PutUint32(dst[2:6], uint32(notice.InstrumentID))
	binary.LittleEndian.PutUint64(dst[6:14], math.Float64bits(notice.Amount))
	binary.LittleEndian.PutUint64(dst[14:22], uint64(notice.Ts))

	return appendString(dst, notice.Text)
}

// DecodeNotice parses a notice payload.
func DecodeNotice(src []byte) (schema.Notice, bool) {
	if len(src) < NoticeFixedSize {
		return schema.Notice{}, false
	}
	notice := schema.Notice{
		Kind:         schema.NoticeKind(binary.LittleEndian.Uint16(src[0:2])),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[2:6])),
		Amount:       math.Float64frombits(binary.LittleEndian.Uint64(src[6:14])),
		Ts:           int64(binary.LittleEndian.Uint64(src[14:22])),
	}

	text, _, ok := readString(src, NoticeFixedSize)
	if !ok {
		return schema.Notice{}, false
	}
	notice.Text = text
	return notice, true
}
