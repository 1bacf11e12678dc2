// Package region defines the world regions an extract can be ingested for and
// resolves each one to its country and key abbreviation.
package region

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/biter777/countries"
)

// ErrUnknownRegion is returned when a region has no entry in the resolver table.
var ErrUnknownRegion = errors.New("unknown world region")

// WorldRegion identifies an extract area using Geofabrik-style slugs
// (e.g. "us-california", "germany").
type WorldRegion string

// String returns the region slug.
func (r WorldRegion) String() string {
	return string(r)
}

// Country is an ISO 3166-1 country.
type Country = countries.CountryCode

// Resolver maps regions to their country and abbreviation.
type Resolver interface {
	Country(r WorldRegion) (Country, error)
	Abbreviation(r WorldRegion) (string, error)
}

// Info describes a supported region.
type Info struct {
	Region  WorldRegion
	Country Country
	// Abbrev is used in persisted keys: ISO 3166-2 for subdivisions,
	// ISO 3166-1 alpha-2 for whole countries.
	Abbrev string
	Name   string
}

// usStates lists US states and DC as abbreviation -> name.
var usStates = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho",
	"IL": "Illinois", "IN": "Indiana", "IA": "Iowa", "KS": "Kansas",
	"KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi",
	"MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma",
	"OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah",
	"VT": "Vermont", "VA": "Virginia", "WA": "Washington", "WV": "West Virginia",
	"WI": "Wisconsin", "WY": "Wyoming", "DC": "District of Columbia",
}

var canadaProvinces = map[string]string{
	"AB": "Alberta", "BC": "British Columbia", "MB": "Manitoba",
	"NB": "New Brunswick", "NL": "Newfoundland and Labrador", "NS": "Nova Scotia",
	"NT": "Northwest Territories", "NU": "Nunavut", "ON": "Ontario",
	"PE": "Prince Edward Island", "QC": "Quebec", "SK": "Saskatchewan", "YT": "Yukon",
}

var wholeCountries = []struct {
	slug    string
	country Country
}{
	{"germany", countries.DE},
	{"france", countries.FR},
	{"netherlands", countries.NL},
	{"united-kingdom", countries.GB},
	{"australia", countries.AU},
	{"japan", countries.JP},
	{"spain", countries.ES},
	{"italy", countries.IT},
	{"switzerland", countries.CH},
	{"austria", countries.AT},
	{"belgium", countries.BE},
	{"denmark", countries.DK},
	{"sweden", countries.SE},
	{"norway", countries.NO},
	{"poland", countries.PL},
	{"brazil", countries.BR},
	{"mexico", countries.MX},
	{"india", countries.IN},
}

// Table is a Resolver backed by a static region table.
type Table struct {
	regions  []Info
	byRegion map[WorldRegion]int
	byAbbrev map[string]int
}

var defaultTable = NewTable(builtinRegions())

// Default returns the built-in resolver.
func Default() *Table {
	return defaultTable
}

func builtinRegions() []Info {
	infos := make([]Info, 0, len(usStates)+len(canadaProvinces)+len(wholeCountries))
	for abbr, name := range usStates {
		infos = append(infos, Info{
			Region:  WorldRegion("us-" + slugify(name)),
			Country: countries.US,
			Abbrev:  "US-" + abbr,
			Name:    name,
		})
	}
	for abbr, name := range canadaProvinces {
		infos = append(infos, Info{
			Region:  WorldRegion("canada-" + slugify(name)),
			Country: countries.CA,
			Abbrev:  "CA-" + abbr,
			Name:    name,
		})
	}
	for _, c := range wholeCountries {
		infos = append(infos, Info{
			Region:  WorldRegion(c.slug),
			Country: c.country,
			Abbrev:  c.country.Alpha2(),
			Name:    c.country.String(),
		})
	}
	return infos
}

func slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}

// NewTable builds a resolver from the given region list. Later entries win
// on duplicate slugs or abbreviations.
func NewTable(infos []Info) *Table {
	t := &Table{
		regions:  make([]Info, len(infos)),
		byRegion: make(map[WorldRegion]int, len(infos)),
		byAbbrev: make(map[string]int, len(infos)),
	}
	copy(t.regions, infos)
	slices.SortFunc(t.regions, func(a, b Info) int {
		return strings.Compare(string(a.Region), string(b.Region))
	})
	for i, info := range t.regions {
		t.byRegion[info.Region] = i
		t.byAbbrev[strings.ToUpper(info.Abbrev)] = i
	}
	return t
}

// Lookup returns the table entry for r.
func (t *Table) Lookup(r WorldRegion) (Info, error) {
	i, ok := t.byRegion[r]
	if !ok {
		return Info{}, fmt.Errorf("%w: %q", ErrUnknownRegion, string(r))
	}
	return t.regions[i], nil
}

// Country implements Resolver.
func (t *Table) Country(r WorldRegion) (Country, error) {
	info, err := t.Lookup(r)
	if err != nil {
		return countries.Unknown, err
	}
	return info.Country, nil
}

// Abbreviation implements Resolver.
func (t *Table) Abbreviation(r WorldRegion) (string, error) {
	info, err := t.Lookup(r)
	if err != nil {
		return "", err
	}
	return info.Abbrev, nil
}

// Parse accepts a region slug or its abbreviation, case-insensitively.
func (t *Table) Parse(s string) (WorldRegion, error) {
	s = strings.TrimSpace(s)
	if i, ok := t.byRegion[WorldRegion(strings.ToLower(s))]; ok {
		return t.regions[i].Region, nil
	}
	if i, ok := t.byAbbrev[strings.ToUpper(s)]; ok {
		return t.regions[i].Region, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRegion, s)
}

// All returns every region sorted by slug.
func (t *Table) All() []Info {
	out := make([]Info, len(t.regions))
	copy(out, t.regions)
	return out
}

// Parse resolves s against the built-in table.
func Parse(s string) (WorldRegion, error) {
	return defaultTable.Parse(s)
}
