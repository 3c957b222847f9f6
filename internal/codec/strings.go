package codec

import (
	"encoding/binary"
	"math"
)

// appendString appends a 2-byte length prefix and the string bytes.
// Strings longer than 65535 bytes are truncated.
func appendString(dst []byte, s string) []byte {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	var l [2]byte
	binary.LittleEndian.PutUint16(l[:], uint16(len(s)))
	dst = append(dst, l[:]...)
	return append(dst, s...)
}

// readString reads a length-prefixed string at offset and returns the
// string with the offset past it. ok is false when src is too short.
func readString(src []byte, offset int) (s string, next int, ok bool) {
	if offset+2 > len(src) {
		return "", 0, false
	}
	n := int(binary.LittleEndian.Uint16(src[offset : offset+2]))
	offset += 2
	if offset+n > len(src) {
		return "", 0, false
	}
	return string(src[offset : offset+n]), offset + n, true
}
