package hnrstore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/eunmann/osm-addr-index/pkg/housenumber"
)

// Range list value format:
//
// Header (16 bytes):
//   Magic:   4 bytes (0x31524E48 = "HNR1")
//   Version: 2 bytes (1)
//   Flags:   2 bytes (bit 0: body is zstd compressed)
//   Count:   4 bytes (number of ranges)
//   BodyLen: 4 bytes (uncompressed body size)
//
// Body, per range in stored order:
//   Start:        uvarint
//   End - Start:  uvarint

const (
	valueMagic      = 0x31524E48 // "HNR1"
	valueVersion    = 1
	valueHeaderSize = 16

	flagCompressed = 1 << 0

	// Bodies shorter than this are stored raw; zstd framing would outweigh the savings.
	compressMinBody = 64

	// maxBodyLen caps the decoded body to keep corrupt headers from driving huge allocations.
	maxBodyLen = 64 << 20
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxBodyLen))
)

// EncodeRanges serializes ranges in order.
func EncodeRanges(ranges []housenumber.Range) []byte {
	body := make([]byte, 0, len(ranges)*4)
	for _, r := range ranges {
		body = binary.AppendUvarint(body, uint64(r.Start))
		body = binary.AppendUvarint(body, uint64(r.End-r.Start))
	}

	var flags uint16
	payload := body
	if len(body) >= compressMinBody {
		payload = encoder.EncodeAll(body, make([]byte, 0, len(body)/2))
		flags |= flagCompressed
	}

	out := make([]byte, valueHeaderSize, valueHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], valueMagic)
	binary.LittleEndian.PutUint16(out[4:6], valueVersion)
	binary.LittleEndian.PutUint16(out[6:8], flags)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(ranges)))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(body)))
	return append(out, payload...)
}

// DecodeRanges parses a value written by EncodeRanges.
func DecodeRanges(data []byte) ([]housenumber.Range, error) {
	if len(data) < valueHeaderSize {
		return nil, fmt.Errorf("%w: value too short (%d bytes)", ErrCorrupt, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != valueMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrCorrupt, magic)
	}
	if version := binary.LittleEndian.Uint16(data[4:6]); version != valueVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	flags := binary.LittleEndian.Uint16(data[6:8])
	count := binary.LittleEndian.Uint32(data[8:12])
	bodyLen := binary.LittleEndian.Uint32(data[12:16])
	if bodyLen > maxBodyLen {
		return nil, fmt.Errorf("%w: body length %d exceeds limit", ErrCorrupt, bodyLen)
	}
	// Each range takes at least two bytes.
	if uint64(count)*2 > uint64(bodyLen) {
		return nil, fmt.Errorf("%w: count %d does not fit body length %d", ErrCorrupt, count, bodyLen)
	}

	body := data[valueHeaderSize:]
	if flags&flagCompressed != 0 {
		var err error
		body, err = decoder.DecodeAll(body, make([]byte, 0, bodyLen))
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
		}
	}
	if uint32(len(body)) != bodyLen {
		return nil, fmt.Errorf("%w: body length %d, header says %d", ErrCorrupt, len(body), bodyLen)
	}

	ranges := make([]housenumber.Range, 0, count)
	for i := uint32(0); i < count; i++ {
		start, n := binary.Uvarint(body)
		if n <= 0 {
			return nil, fmt.Errorf("%w: range %d start", ErrCorrupt, i)
		}
		body = body[n:]
		span, n := binary.Uvarint(body)
		if n <= 0 {
			return nil, fmt.Errorf("%w: range %d span", ErrCorrupt, i)
		}
		body = body[n:]
		if start > math.MaxUint32 || start+span > math.MaxUint32 {
			return nil, fmt.Errorf("%w: range %d out of bounds", ErrCorrupt, i)
		}
		ranges = append(ranges, housenumber.Range{Start: uint32(start), End: uint32(start + span)})
	}
	if len(body) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(body))
	}
	return ranges, nil
}
