// Package hnrstore persists per-street house-number ranges and merges newly
// extracted ranges into what is already stored.
//
// Values live under keys of the form "HNR:<region-abbreviation>:<street>".
// Merging concatenates stored and new ranges and drops exact duplicates;
// overlapping ranges are never coalesced, since overlaps from independent
// contributors can describe distinct numbering.
package hnrstore

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/eunmann/osm-addr-index/pkg/address"
	"github.com/eunmann/osm-addr-index/pkg/housenumber"
	"github.com/eunmann/osm-addr-index/pkg/region"
)

// KeyPrefix starts every persisted range key.
const KeyPrefix = "HNR:"

var (
	// ErrCorrupt indicates a stored value that cannot be decoded.
	ErrCorrupt = errors.New("corrupt range value")
	// ErrClosed indicates use of a closed store.
	ErrClosed = errors.New("store closed")
)

// RangeLoader reads the ranges stored for a street. found is false when
// nothing has been stored yet.
type RangeLoader interface {
	LoadExistingStreetRanges(ctx context.Context, r region.WorldRegion, street address.StreetName) (ranges []housenumber.Range, found bool, err error)
}

// RangeStorer replaces the ranges stored for a street.
type RangeStorer interface {
	StoreHouseNumberRanges(ctx context.Context, r region.WorldRegion, street address.StreetName, ranges []housenumber.Range) error
}

// Store combines both capabilities.
type Store interface {
	RangeLoader
	RangeStorer
}

// StreetLocker is implemented by stores that can serialize a load+store
// sequence on one key. Integrate uses it when available.
type StreetLocker interface {
	LockStreet(r region.WorldRegion, street address.StreetName) (unlock func())
}

// Key builds the persisted key for a street.
func Key(abbrev string, street address.StreetName) string {
	return KeyPrefix + abbrev + ":" + street.String()
}

// RegionPrefix returns the key prefix shared by all streets of a region.
func RegionPrefix(abbrev string) string {
	return KeyPrefix + abbrev + ":"
}

// Integrate merges newRanges into the ranges stored for street: existing
// ranges first, then new ones, with exact duplicates removed.
func Integrate(ctx context.Context, store Store, r region.WorldRegion, street address.StreetName, newRanges []housenumber.Range) error {
	if locker, ok := store.(StreetLocker); ok {
		unlock := locker.LockStreet(r, street)
		defer unlock()
	}

	existing, _, err := store.LoadExistingStreetRanges(ctx, r, street)
	if err != nil {
		return fmt.Errorf("load ranges for %q: %w", street.String(), err)
	}

	merged := make([]housenumber.Range, 0, len(existing)+len(newRanges))
	merged = append(merged, existing...)
	merged = append(merged, newRanges...)
	merged = housenumber.Dedup(merged)

	if err := store.StoreHouseNumberRanges(ctx, r, street, merged); err != nil {
		return fmt.Errorf("store ranges for %q: %w", street.String(), err)
	}
	return nil
}

const lockStripes = 64

// keyLocks serializes work per key using a fixed set of striped mutexes.
type keyLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *keyLocks) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

func resolverOrDefault(res region.Resolver) region.Resolver {
	if res == nil {
		return region.Default()
	}
	return res
}
