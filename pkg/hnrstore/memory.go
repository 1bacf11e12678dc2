package hnrstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/eunmann/osm-addr-index/pkg/address"
	"github.com/eunmann/osm-addr-index/pkg/housenumber"
	"github.com/eunmann/osm-addr-index/pkg/region"
)

// MemoryStore keeps encoded values in a map. It is safe for concurrent use
// and is mainly meant for tests and dry runs.
type MemoryStore struct {
	resolver region.Resolver
	locks    keyLocks

	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore creates an empty store. A nil resolver uses region.Default().
func NewMemoryStore(res region.Resolver) *MemoryStore {
	return &MemoryStore{
		resolver: resolverOrDefault(res),
		values:   make(map[string][]byte),
	}
}

func (s *MemoryStore) key(r region.WorldRegion, street address.StreetName) (string, error) {
	abbr, err := s.resolver.Abbreviation(r)
	if err != nil {
		return "", err
	}
	return Key(abbr, street), nil
}

// LoadExistingStreetRanges implements RangeLoader.
func (s *MemoryStore) LoadExistingStreetRanges(_ context.Context, r region.WorldRegion, street address.StreetName) ([]housenumber.Range, bool, error) {
	key, err := s.key(r, street)
	if err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	data, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	ranges, err := DecodeRanges(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode %q: %w", key, err)
	}
	return ranges, true, nil
}

// StoreHouseNumberRanges implements RangeStorer.
func (s *MemoryStore) StoreHouseNumberRanges(_ context.Context, r region.WorldRegion, street address.StreetName, ranges []housenumber.Range) error {
	key, err := s.key(r, street)
	if err != nil {
		return err
	}
	data := EncodeRanges(ranges)
	s.mu.Lock()
	s.values[key] = data
	s.mu.Unlock()
	return nil
}

// LockStreet implements StreetLocker.
func (s *MemoryStore) LockStreet(r region.WorldRegion, street address.StreetName) func() {
	key, err := s.key(r, street)
	if err != nil {
		// Unknown regions fail in Load/Store; nothing to serialize.
		return func() {}
	}
	return s.locks.lock(key)
}

// Keys returns the stored keys with the given prefix in sorted order.
func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Snapshot decodes every stored value. Values that fail to decode are skipped.
func (s *MemoryStore) Snapshot() map[string][]housenumber.Range {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]housenumber.Range, len(s.values))
	for k, v := range s.values {
		if ranges, err := DecodeRanges(v); err == nil {
			out[k] = ranges
		}
	}
	return out
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
