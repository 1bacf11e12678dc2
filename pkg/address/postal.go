package address

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/biter777/countries"

	"github.com/eunmann/osm-addr-index/pkg/region"
)

// PostalCode is a normalized postal code validated against its country.
type PostalCode struct{ s string }

// postalShapes match the upper-cased, whitespace-collapsed code.
var postalShapes = map[region.Country]*regexp.Regexp{
	countries.US: regexp.MustCompile(`^\d{5}(-\d{4})?$`),
	countries.CA: regexp.MustCompile(`^[A-Z]\d[A-Z] ?\d[A-Z]\d$`),
	countries.DE: regexp.MustCompile(`^\d{5}$`),
	countries.FR: regexp.MustCompile(`^\d{5}$`),
	countries.ES: regexp.MustCompile(`^\d{5}$`),
	countries.IT: regexp.MustCompile(`^\d{5}$`),
	countries.MX: regexp.MustCompile(`^\d{5}$`),
	countries.NL: regexp.MustCompile(`^\d{4} ?[A-Z]{2}$`),
	countries.GB: regexp.MustCompile(`^[A-Z]{1,2}\d[A-Z\d]? ?\d[A-Z]{2}$`),
	countries.AU: regexp.MustCompile(`^\d{4}$`),
	countries.CH: regexp.MustCompile(`^\d{4}$`),
	countries.AT: regexp.MustCompile(`^\d{4}$`),
	countries.BE: regexp.MustCompile(`^\d{4}$`),
	countries.DK: regexp.MustCompile(`^\d{4}$`),
	countries.NO: regexp.MustCompile(`^\d{4}$`),
	countries.SE: regexp.MustCompile(`^\d{3} ?\d{2}$`),
	countries.PL: regexp.MustCompile(`^\d{2}-\d{3}$`),
	countries.BR: regexp.MustCompile(`^\d{5}-?\d{3}$`),
	countries.JP: regexp.MustCompile(`^\d{3}-?\d{4}$`),
	countries.IN: regexp.MustCompile(`^\d{6}$`),
}

// genericPostalShape is used for countries without a specific entry.
var genericPostalShape = regexp.MustCompile(`^[A-Z0-9][A-Z0-9 -]{1,9}$`)

// NewPostalCode normalizes raw and validates it against country's format.
func NewPostalCode(raw string, country region.Country) (PostalCode, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if s == "" {
		return PostalCode{}, fmt.Errorf("postal code: %w", ErrEmpty)
	}
	shape, ok := postalShapes[country]
	if !ok {
		shape = genericPostalShape
	}
	if !shape.MatchString(s) {
		return PostalCode{}, fmt.Errorf("postal code %q for %s: %w", raw, country.Alpha2(), ErrPostalShape)
	}
	return PostalCode{s: strings.ToLower(s)}, nil
}

// String returns the normalized postal code.
func (p PostalCode) String() string { return p.s }
