package extract

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/paulmach/osm"
	"github.com/rs/zerolog"

	"github.com/eunmann/osm-addr-index/internal/logctx"
	"github.com/eunmann/osm-addr-index/pkg/address"
	"github.com/eunmann/osm-addr-index/pkg/hnrstore"
	"github.com/eunmann/osm-addr-index/pkg/housenumber"
	"github.com/eunmann/osm-addr-index/pkg/logging"
	"github.com/eunmann/osm-addr-index/pkg/region"
)

// Per-entry size estimates for EstimatedMemoryUsage.
const (
	streetEntryOverhead = 96 // map bucket slot, string header, slice header
	rangeSize           = 8
)

// Outcome describes what ProcessTags did with one element.
type Outcome int

const (
	// OutcomeSkipped means the element contributed nothing.
	OutcomeSkipped Outcome = iota
	// OutcomeAddress means an address was delivered and no range recorded.
	OutcomeAddress
	// OutcomeAddressWithRange means an address was delivered and its house
	// number range recorded under the street.
	OutcomeAddressWithRange
	// OutcomePartialRange means no address was complete, but a street and a
	// house number were present and the range was recorded.
	OutcomePartialRange
	// OutcomeUndelivered means a complete address could not be delivered
	// because the consumer is gone. Its range, if any, was still recorded.
	OutcomeUndelivered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeAddress:
		return "address"
	case OutcomeAddressWithRange:
		return "address_with_range"
	case OutcomePartialRange:
		return "partial_range"
	case OutcomeUndelivered:
		return "undelivered"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Emitter delivers an address to the consumer. It returns false if the
// consumer is gone.
type Emitter func(address.WorldAddress) bool

// Aggregator accumulates house number ranges per street for one region.
// It is not safe for concurrent use; the pipeline's producer goroutine owns it.
type Aggregator struct {
	region  region.WorldRegion
	country region.Country
	abbrev  string
	log     zerolog.Logger

	streets   map[address.StreetName][]housenumber.Range
	nameBytes int
	ranges    int
	malformed int64
}

// NewAggregator resolves the region's country and abbreviation. A nil
// resolver uses region.Default().
func NewAggregator(r region.WorldRegion, res region.Resolver) (*Aggregator, error) {
	if res == nil {
		res = region.Default()
	}
	country, err := res.Country(r)
	if err != nil {
		return nil, err
	}
	abbrev, err := res.Abbreviation(r)
	if err != nil {
		return nil, err
	}
	return &Aggregator{
		region:  r,
		country: country,
		abbrev:  abbrev,
		log:     *logging.L(),
		streets: make(map[address.StreetName][]housenumber.Range),
	}, nil
}

// Region returns the region being aggregated.
func (a *Aggregator) Region() region.WorldRegion { return a.region }

// Country returns the country resolved for the region.
func (a *Aggregator) Country() region.Country { return a.country }

// AddSubrangeForStreet appends rng to the street's list. Ranges are neither
// sorted nor deduplicated here.
func (a *Aggregator) AddSubrangeForStreet(street address.StreetName, rng housenumber.Range) {
	list, ok := a.streets[street]
	if !ok {
		a.nameBytes += len(street.String())
	}
	a.streets[street] = append(list, rng)
	a.ranges++
}

// ProcessTags applies the per-element rules to one element's tags:
//
//   - a complete city/street/postcode record becomes a WorldAddress passed to
//     emit, and a parsable house number is recorded under its street;
//   - otherwise a parsable house number is recorded if a street is present;
//   - a malformed house number is logged and counted, and the element then
//     contributes only its address, if any.
func (a *Aggregator) ProcessTags(tags osm.Tags, emit Emitter) Outcome {
	rec := address.ExtractRecord(tags, a.country)
	if rec.IsEmpty() {
		return OutcomeSkipped
	}

	rng, hasRange, err := housenumber.FromTags(tags)
	if err != nil {
		a.malformed++
		a.log.Debug().Err(err).Msg("skipping malformed house number")
		hasRange = false
	}

	if addr, ok := address.BuildWorldAddress(a.region, rec); ok {
		if hasRange {
			a.AddSubrangeForStreet(addr.Street, rng)
		}
		if !emit(addr) {
			return OutcomeUndelivered
		}
		if hasRange {
			return OutcomeAddressWithRange
		}
		return OutcomeAddress
	}

	if hasRange && rec.Street != nil {
		a.AddSubrangeForStreet(*rec.Street, rng)
		return OutcomePartialRange
	}
	return OutcomeSkipped
}

// Streets returns the aggregated street names in sorted order.
func (a *Aggregator) Streets() []address.StreetName {
	names := make([]address.StreetName, 0, len(a.streets))
	for s := range a.streets {
		names = append(names, s)
	}
	slices.SortFunc(names, func(x, y address.StreetName) int {
		return strings.Compare(x.String(), y.String())
	})
	return names
}

// Ranges returns the ranges recorded for street in insertion order.
func (a *Aggregator) Ranges(street address.StreetName) []housenumber.Range {
	return a.streets[street]
}

// StreetCount returns the number of distinct streets.
func (a *Aggregator) StreetCount() int { return len(a.streets) }

// RangeCount returns the total number of recorded ranges.
func (a *Aggregator) RangeCount() int { return a.ranges }

// MalformedTags returns how many house number values failed to parse.
func (a *Aggregator) MalformedTags() int64 { return a.malformed }

// EstimatedMemoryUsage approximates the heap held by the aggregator in bytes.
func (a *Aggregator) EstimatedMemoryUsage() int64 {
	return int64(len(a.streets))*streetEntryOverhead + int64(a.nameBytes) + int64(a.ranges)*rangeSize
}

// StoreReport summarizes a StoreResults call.
type StoreReport struct {
	Streets int // streets attempted
	Stored  int
	Failed  int
	Ranges  int // ranges submitted
}

// StoreResults merges every street's ranges into store in sorted street
// order. A failing street is logged and does not stop the others; all
// failures are returned joined.
func (a *Aggregator) StoreResults(ctx context.Context, store hnrstore.Store) (StoreReport, error) {
	log := logctx.FromContext(ctx)
	start := time.Now()

	var report StoreReport
	var errs []error
	for _, street := range a.Streets() {
		ranges := a.streets[street]
		report.Streets++
		report.Ranges += len(ranges)

		if err := hnrstore.Integrate(ctx, store, a.region, street, ranges); err != nil {
			report.Failed++
			log.Error().
				Err(err).
				Str("street", street.String()).
				Int("ranges", len(ranges)).
				Msg("failed to store house number ranges")
			errs = append(errs, fmt.Errorf("store %s: %w", hnrstore.Key(a.abbrev, street), err))
			continue
		}
		report.Stored++
	}

	ev := logging.PhaseComplete(log, "store", time.Since(start)).
		Int("streets", report.Streets).
		Int("streets_failed", report.Failed).
		Count("ranges", int64(report.Ranges))
	if report.Failed > 0 {
		ev.LogWarn("house number ranges stored with failures")
	} else {
		ev.Log("house number ranges stored")
	}

	return report, errors.Join(errs...)
}
