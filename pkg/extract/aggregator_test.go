package extract

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/paulmach/osm"

	"github.com/eunmann/osm-addr-index/pkg/address"
	"github.com/eunmann/osm-addr-index/pkg/hnrstore"
	"github.com/eunmann/osm-addr-index/pkg/housenumber"
	"github.com/eunmann/osm-addr-index/pkg/region"
)

const testRegion region.WorldRegion = "us-california"

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(testRegion, nil)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return agg
}

func fullTags(street, housenumber string) osm.Tags {
	tags := osm.Tags{
		{Key: "addr:city", Value: "Sunnyvale"},
		{Key: "addr:street", Value: street},
		{Key: "addr:postcode", Value: "94085"},
	}
	if housenumber != "" {
		tags = append(tags, osm.Tag{Key: "addr:housenumber", Value: housenumber})
	}
	return tags
}

// collector records emitted addresses; refuse simulates a departed consumer.
type collector struct {
	got    []address.WorldAddress
	refuse bool
}

func (c *collector) emit(a address.WorldAddress) bool {
	if c.refuse {
		return false
	}
	c.got = append(c.got, a)
	return true
}

func TestNewAggregator_UnknownRegion(t *testing.T) {
	if _, err := NewAggregator("atlantis", nil); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("NewAggregator error = %v, want ErrUnknownRegion", err)
	}
}

func TestProcessTags(t *testing.T) {
	mathilda := address.MustStreetName("Mathilda Ave")

	tests := []struct {
		name       string
		tags       osm.Tags
		refuse     bool
		want       Outcome
		wantEmits  int
		wantRanges []housenumber.Range
		wantBad    int64
	}{
		{
			name: "no addr tags",
			tags: osm.Tags{{Key: "amenity", Value: "cafe"}, {Key: "name", Value: "Mathilda Ave"}},
			want: OutcomeSkipped,
		},
		{
			name: "house number without street",
			tags: osm.Tags{{Key: "addr:housenumber", Value: "12"}},
			want: OutcomeSkipped,
		},
		{
			name:      "complete address without house number",
			tags:      fullTags("Mathilda Ave", ""),
			want:      OutcomeAddress,
			wantEmits: 1,
		},
		{
			name:       "complete address with range",
			tags:       fullTags("Mathilda Ave", "100-110"),
			want:       OutcomeAddressWithRange,
			wantEmits:  1,
			wantRanges: []housenumber.Range{{Start: 100, End: 110}},
		},
		{
			name: "street and house number only",
			tags: osm.Tags{
				{Key: "addr:street", Value: "Mathilda Ave"},
				{Key: "addr:housenumber", Value: "7"},
			},
			want:       OutcomePartialRange,
			wantRanges: []housenumber.Range{{Start: 7, End: 7}},
		},
		{
			name: "street, city and house number but invalid postcode",
			tags: osm.Tags{
				{Key: "addr:street", Value: "Mathilda Ave"},
				{Key: "addr:city", Value: "Sunnyvale"},
				{Key: "addr:postcode", Value: "ABCDE"},
				{Key: "addr:housenumber", Value: "9"},
			},
			want:       OutcomePartialRange,
			wantRanges: []housenumber.Range{{Start: 9, End: 9}},
		},
		{
			name:      "malformed house number still emits address",
			tags:      fullTags("Mathilda Ave", "110-100"),
			want:      OutcomeAddress,
			wantEmits: 1,
			wantBad:   1,
		},
		{
			name: "malformed house number on partial record",
			tags: osm.Tags{
				{Key: "addr:street", Value: "Mathilda Ave"},
				{Key: "addr:housenumber", Value: "12a"},
			},
			want:    OutcomeSkipped,
			wantBad: 1,
		},
		{
			name:       "undelivered address keeps its range",
			tags:       fullTags("Mathilda Ave", "5"),
			refuse:     true,
			want:       OutcomeUndelivered,
			wantRanges: []housenumber.Range{{Start: 5, End: 5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newTestAggregator(t)
			c := &collector{refuse: tt.refuse}

			if got := agg.ProcessTags(tt.tags, c.emit); got != tt.want {
				t.Errorf("outcome = %v, want %v", got, tt.want)
			}
			if len(c.got) != tt.wantEmits {
				t.Errorf("emitted %d addresses, want %d", len(c.got), tt.wantEmits)
			}
			if got := agg.Ranges(mathilda); !slices.Equal(got, tt.wantRanges) {
				t.Errorf("ranges = %v, want %v", got, tt.wantRanges)
			}
			if tt.wantRanges == nil && agg.StreetCount() != 0 {
				t.Errorf("aggregator gained %d streets", agg.StreetCount())
			}
			if agg.MalformedTags() != tt.wantBad {
				t.Errorf("malformed = %d, want %d", agg.MalformedTags(), tt.wantBad)
			}
		})
	}
}

func TestProcessTags_EmittedAddress(t *testing.T) {
	agg := newTestAggregator(t)
	c := &collector{}
	agg.ProcessTags(fullTags("  Mathilda   AVE ", ""), c.emit)

	if len(c.got) != 1 {
		t.Fatalf("emitted %d addresses", len(c.got))
	}
	a := c.got[0]
	if a.Region != testRegion || a.City.String() != "sunnyvale" || a.Street.String() != "mathilda ave" || a.PostalCode.String() != "94085" {
		t.Errorf("unexpected address %+v", a)
	}
}

func TestAggregator_Accumulates(t *testing.T) {
	agg := newTestAggregator(t)
	homestead := address.MustStreetName("Homestead Rd")
	castro := address.MustStreetName("Castro St")

	agg.AddSubrangeForStreet(homestead, housenumber.Range{Start: 120, End: 130})
	agg.AddSubrangeForStreet(castro, housenumber.Single(1))
	agg.AddSubrangeForStreet(homestead, housenumber.Range{Start: 100, End: 110})
	agg.AddSubrangeForStreet(homestead, housenumber.Range{Start: 100, End: 110})

	if got, want := agg.Ranges(homestead), []housenumber.Range{{Start: 120, End: 130}, {Start: 100, End: 110}, {Start: 100, End: 110}}; !slices.Equal(got, want) {
		t.Errorf("ranges = %v, want insertion order with duplicates %v", got, want)
	}
	if agg.StreetCount() != 2 || agg.RangeCount() != 4 {
		t.Errorf("counts = %d streets, %d ranges", agg.StreetCount(), agg.RangeCount())
	}
	streets := agg.Streets()
	if len(streets) != 2 || streets[0] != castro || streets[1] != homestead {
		t.Errorf("Streets() = %v, want sorted", streets)
	}
	want := int64(2*streetEntryOverhead + len("homestead rd") + len("castro st") + 4*rangeSize)
	if got := agg.EstimatedMemoryUsage(); got != want {
		t.Errorf("EstimatedMemoryUsage = %d, want %d", got, want)
	}
}

// failingStore rejects writes for one street.
type failingStore struct {
	*hnrstore.MemoryStore
	bad address.StreetName
}

func (s failingStore) StoreHouseNumberRanges(ctx context.Context, r region.WorldRegion, street address.StreetName, ranges []housenumber.Range) error {
	if street == s.bad {
		return errors.New("disk full")
	}
	return s.MemoryStore.StoreHouseNumberRanges(ctx, r, street, ranges)
}

func TestStoreResults_ContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	agg := newTestAggregator(t)
	bad := address.MustStreetName("Bad St")
	agg.AddSubrangeForStreet(address.MustStreetName("Alpha Rd"), housenumber.Single(1))
	agg.AddSubrangeForStreet(bad, housenumber.Single(2))
	agg.AddSubrangeForStreet(address.MustStreetName("Zulu Way"), housenumber.Single(3))

	mem := hnrstore.NewMemoryStore(nil)
	report, err := agg.StoreResults(ctx, failingStore{MemoryStore: mem, bad: bad})
	if err == nil {
		t.Fatal("expected joined storage error")
	}
	if report.Streets != 3 || report.Stored != 2 || report.Failed != 1 || report.Ranges != 3 {
		t.Errorf("report = %+v", report)
	}
	if mem.Len() != 2 {
		t.Errorf("stored %d keys, want 2", mem.Len())
	}
}

func TestStoreResults_MergesWithExisting(t *testing.T) {
	ctx := context.Background()
	mem := hnrstore.NewMemoryStore(nil)
	street := address.MustStreetName("Mathilda Ave")

	for range 2 {
		agg := newTestAggregator(t)
		agg.AddSubrangeForStreet(street, housenumber.Range{Start: 100, End: 110})
		if _, err := agg.StoreResults(ctx, mem); err != nil {
			t.Fatal(err)
		}
	}
	got, _, err := mem.LoadExistingStreetRanges(ctx, testRegion, street)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []housenumber.Range{{Start: 100, End: 110}}) {
		t.Errorf("ranges after two runs = %v", got)
	}
}
