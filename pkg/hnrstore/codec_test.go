package hnrstore

import (
	"encoding/binary"
	"errors"
	"slices"
	"testing"

	"github.com/eunmann/osm-addr-index/pkg/housenumber"
)

func TestEncodeDecode(t *testing.T) {
	many := make([]housenumber.Range, 0, 500)
	for i := uint32(0); i < 500; i++ {
		many = append(many, housenumber.Range{Start: i * 10, End: i*10 + 8})
	}

	tests := []struct {
		name           string
		ranges         []housenumber.Range
		wantCompressed bool
	}{
		{"empty", nil, false},
		{"single", []housenumber.Range{{Start: 100, End: 110}}, false},
		{"max bounds", []housenumber.Range{{Start: 0, End: 4294967295}, {Start: 4294967295, End: 4294967295}}, false},
		{"many", many, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := EncodeRanges(tt.ranges)
			flags := binary.LittleEndian.Uint16(data[6:8])
			if got := flags&flagCompressed != 0; got != tt.wantCompressed {
				t.Errorf("compressed = %v, want %v", got, tt.wantCompressed)
			}

			got, err := DecodeRanges(data)
			if err != nil {
				t.Fatalf("DecodeRanges: %v", err)
			}
			if !slices.Equal(got, tt.ranges) && !(len(got) == 0 && len(tt.ranges) == 0) {
				t.Errorf("round trip mismatch: got %d ranges, want %d", len(got), len(tt.ranges))
			}
		})
	}
}

func TestEncode_CompressesRepetitiveLists(t *testing.T) {
	ranges := make([]housenumber.Range, 2000)
	for i := range ranges {
		ranges[i] = housenumber.Range{Start: 100, End: 110}
	}
	data := EncodeRanges(ranges)
	// 2000 ranges at 2 bytes each would be 4000 raw body bytes.
	if len(data) >= 4000 {
		t.Errorf("expected compressed value smaller than raw body, got %d bytes", len(data))
	}
}

func TestDecode_Corrupt(t *testing.T) {
	valid := EncodeRanges([]housenumber.Range{{Start: 1, End: 2}, {Start: 3, End: 4}})

	mutate := func(f func([]byte) []byte) []byte {
		c := slices.Clone(valid)
		return f(c)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"too short", valid[:8]},
		{"bad magic", mutate(func(b []byte) []byte { b[0] ^= 0xFF; return b })},
		{"bad version", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint16(b[4:6], 9); return b })},
		{"count too large", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint32(b[8:12], 1000); return b })},
		{"truncated body", valid[:len(valid)-1]},
		{"trailing bytes", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[8:12], 1)
			return b
		})},
		{"bad zstd", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[6:8], flagCompressed)
			return b
		})},
		{"huge body length", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[12:16], maxBodyLen+1)
			return b
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeRanges(tt.data); !errors.Is(err, ErrCorrupt) {
				t.Errorf("DecodeRanges error = %v, want ErrCorrupt", err)
			}
		})
	}
}
