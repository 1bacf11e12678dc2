// Package address turns raw OSM address tags into normalized, validated
// address values.
//
// Fragments read from a single element are collected into a Record whose
// fields are independently optional. A Record is promoted to a WorldAddress
// only once city, street and postal code are all present.
package address

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxNameBytes bounds the normalized length of any name.
const MaxNameBytes = 256

var (
	// ErrEmpty indicates a value that is empty after normalization.
	ErrEmpty = errors.New("empty value")
	// ErrTooLong indicates a value longer than MaxNameBytes.
	ErrTooLong = errors.New("value too long")
	// ErrControlChar indicates a value containing control characters.
	ErrControlChar = errors.New("value contains control characters")
	// ErrPostalShape indicates a postal code that does not match its country's format.
	ErrPostalShape = errors.New("postal code does not match country format")
)

// StreetName is a normalized street name.
type StreetName struct{ s string }

// CityName is a normalized city name.
type CityName struct{ s string }

// NewStreetName normalizes raw into a StreetName.
func NewStreetName(raw string) (StreetName, error) {
	s, err := normalize(raw)
	if err != nil {
		return StreetName{}, fmt.Errorf("street name: %w", err)
	}
	return StreetName{s: s}, nil
}

// MustStreetName is like NewStreetName but panics on invalid input.
// Intended for tests and static tables.
func MustStreetName(raw string) StreetName {
	n, err := NewStreetName(raw)
	if err != nil {
		panic(err)
	}
	return n
}

// String returns the normalized name.
func (n StreetName) String() string { return n.s }

// IsZero reports whether n was never constructed.
func (n StreetName) IsZero() bool { return n.s == "" }

// NewCityName normalizes raw into a CityName.
func NewCityName(raw string) (CityName, error) {
	s, err := normalize(raw)
	if err != nil {
		return CityName{}, fmt.Errorf("city name: %w", err)
	}
	return CityName{s: s}, nil
}

// String returns the normalized name.
func (n CityName) String() string { return n.s }

// normalize applies NFC, collapses whitespace runs to a single space and
// lower-cases the result.
func normalize(raw string) (string, error) {
	s := strings.Join(strings.Fields(norm.NFC.String(raw)), " ")
	if s == "" {
		return "", ErrEmpty
	}
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return "", ErrControlChar
	}
	// Casers carry state and must not be shared across goroutines.
	s = cases.Lower(language.Und).String(s)
	if len(s) > MaxNameBytes {
		return "", ErrTooLong
	}
	return s, nil
}
