// Package housenumber parses addr:housenumber values into numeric ranges.
package housenumber

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/osm"
)

// TagKey is the OSM key holding the house number.
const TagKey = "addr:housenumber"

// ErrMalformed indicates a house-number value that is present but not a
// number or an ascending "A-B" pair.
var ErrMalformed = errors.New("malformed house number")

// Range is an inclusive span of house numbers on one street.
// Start <= End always holds for ranges returned by Parse.
type Range struct {
	Start uint32
	End   uint32
}

// Single returns the range covering exactly n.
func Single(n uint32) Range {
	return Range{Start: n, End: n}
}

// Contains reports whether n falls inside r.
func (r Range) Contains(n uint32) bool {
	return n >= r.Start && n <= r.End
}

// String formats r as "N" or "A-B".
func (r Range) String() string {
	if r.Start == r.End {
		return strconv.FormatUint(uint64(r.Start), 10)
	}
	return strconv.FormatUint(uint64(r.Start), 10) + "-" + strconv.FormatUint(uint64(r.End), 10)
}

// Parse converts a tag value into a Range.
//
// An empty or whitespace-only value yields ok == false and no error. "N"
// yields {N, N}; "A-B" with A <= B yields {A, B}. Anything else returns an
// error wrapping ErrMalformed.
func Parse(value string) (rng Range, ok bool, err error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return Range{}, false, nil
	}

	parts := strings.Split(v, "-")
	switch len(parts) {
	case 1:
		n, err := parseNumber(parts[0])
		if err != nil {
			return Range{}, false, fmt.Errorf("%w %q: %v", ErrMalformed, value, err)
		}
		return Single(n), true, nil
	case 2:
		start, err := parseNumber(parts[0])
		if err != nil {
			return Range{}, false, fmt.Errorf("%w %q: start: %v", ErrMalformed, value, err)
		}
		end, err := parseNumber(parts[1])
		if err != nil {
			return Range{}, false, fmt.Errorf("%w %q: end: %v", ErrMalformed, value, err)
		}
		if start > end {
			return Range{}, false, fmt.Errorf("%w %q: start %d exceeds end %d", ErrMalformed, value, start, end)
		}
		return Range{Start: start, End: end}, true, nil
	default:
		return Range{}, false, fmt.Errorf("%w %q: too many hyphens", ErrMalformed, value)
	}
}

func parseNumber(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty number")
	}
	// ParseUint accepts neither signs nor spaces, so "+5" and "1 2" fail here.
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// FromTags parses the addr:housenumber tag. A missing tag is reported the
// same way as an empty value.
func FromTags(tags osm.Tags) (Range, bool, error) {
	return Parse(tags.Find(TagKey))
}

// Dedup returns ranges with exact duplicates removed, keeping the first
// occurrence of each. Overlapping but unequal ranges are preserved.
func Dedup(ranges []Range) []Range {
	if len(ranges) == 0 {
		return ranges
	}
	seen := make(map[Range]struct{}, len(ranges))
	out := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
