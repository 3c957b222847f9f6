package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"

	"main/internal/schema"
)

// Frame layout: 56-byte header, payload, CRC32-C over header+payload.
const (
	frameVersion      uint16 = 1
	frameHeaderSize          = 56
	frameChecksumSize        = 4
)

var (
	frameMagic = [4]byte{'W', 'A', 'L', '1'}
	crcTable   = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrBadMagic         = errors.New("journal bad magic")
	ErrFrameVersion     = errors.New("journal unsupported frame version")
	ErrShortFrameHeader = errors.New("journal invalid frame header size")
)

func encodeFrameHeader(dst []byte, header schema.EventHeader, payloadLen int) {
	_ = dst[frameHeaderSize-1]
	copy(dst[0:4], frameMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], frameVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(frameHeaderSize))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(header.Type))
	binary.LittleEndian.PutUint16(dst[10:12], header.Version)
	binary.LittleEndian.PutUint16(dst[12:14], header.Source)
	binary.LittleEndian.PutUint16(dst[14:16], header.Flags)
	binary.LittleEndian.PutUint32(dst[16:20], uint32(payloadLen))
	binary.LittleEndian.PutUint64(dst[20:28], header.Seq)
	binary.LittleEndian.PutUint64(dst[28:36], uint64(header.TsEvent))
	binary.LittleEndian.PutUint64(dst[36:44], uint64(header.TsRecv))
	binary.LittleEndian.PutUint64(dst[44:52], header.TraceID)
	binary.LittleEndian.PutUint32(dst[52:56], uint32(header.InstrumentID))
}

func frameChecksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

func decodeFrameHeader(src []byte) (schema.EventHeader, uint32, error) {
	if len(src) < frameHeaderSize {
		return schema.EventHeader{}, 0, ErrShortFrameHeader
	}
	if !bytes.Equal(src[0:4], frameMagic[:]) {
		return schema.EventHeader{}, 0, ErrBadMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != frameVersion {
		return schema.EventHeader{}, 0, ErrFrameVersion
	}
	if headerSize := binary.LittleEndian.Uint16(src[6:8]); headerSize != frameHeaderSize {
		return schema.EventHeader{}, 0, ErrShortFrameHeader
	}
	payloadLen := binary.LittleEndian.Uint32(src[16:20])
	h := schema.EventHeader{
		Type:         schema.EventType(binary.LittleEndian.Uint16(src[8:10])),
		Version:      binary.LittleEndian.Uint16(src[10:12]),
		Source:       binary.LittleEndian.Uint16(src[12:14]),
		Flags:        binary.LittleEndian.Uint16(src[14:16]),
		Seq:          binary.LittleEndian.Uint64(src[20:28]),
		TsEvent:      int64(binary.LittleEndian.Uint64(src[28:36])),
		TsRecv:       int64(binary.LittleEndian.Uint64(src[36:44])),
		TraceID:      binary.LittleEndian.Uint64(src[44:52]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[52:56])),
	}
	return h, payloadLen, nil
}
