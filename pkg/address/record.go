package address

import (
	"github.com/paulmach/osm"

	"github.com/eunmann/osm-addr-index/pkg/region"
)

// OSM tag keys read by the extractor.
const (
	TagCity        = "addr:city"
	TagStreet      = "addr:street"
	TagPostcode    = "addr:postcode"
	TagHouseNumber = "addr:housenumber"
)

// Record holds the address fragments found on one element. Any field may be
// nil; a fragment that fails validation is treated as absent.
type Record struct {
	City     *CityName
	Street   *StreetName
	Postcode *PostalCode
}

// IsEmpty reports whether no fragment was found.
func (r Record) IsEmpty() bool {
	return r.City == nil && r.Street == nil && r.Postcode == nil
}

// IsComplete reports whether all fragments are present.
func (r Record) IsComplete() bool {
	return r.City != nil && r.Street != nil && r.Postcode != nil
}

// ExtractRecord reads addr:city, addr:street and addr:postcode from tags.
// country selects the postal code format. It never fails.
func ExtractRecord(tags osm.Tags, country region.Country) Record {
	var rec Record
	for _, tag := range tags {
		switch tag.Key {
		case TagCity:
			if c, err := NewCityName(tag.Value); err == nil {
				rec.City = &c
			}
		case TagStreet:
			if s, err := NewStreetName(tag.Value); err == nil {
				rec.Street = &s
			}
		case TagPostcode:
			if p, err := NewPostalCode(tag.Value, country); err == nil {
				rec.Postcode = &p
			}
		}
	}
	return rec
}

// WorldAddress is a complete, validated address within a region.
type WorldAddress struct {
	Region     region.WorldRegion
	City       CityName
	Street     StreetName
	PostalCode PostalCode
}

// BuildWorldAddress promotes rec to a WorldAddress. ok is false unless city,
// street and postal code are all present.
func BuildWorldAddress(r region.WorldRegion, rec Record) (addr WorldAddress, ok bool) {
	if !rec.IsComplete() {
		return WorldAddress{}, false
	}
	return WorldAddress{
		Region:     r,
		City:       *rec.City,
		Street:     *rec.Street,
		PostalCode: *rec.Postcode,
	}, true
}

// String formats the address on one line.
func (a WorldAddress) String() string {
	return a.Street.String() + ", " + a.City.String() + " " + a.PostalCode.String() + " (" + a.Region.String() + ")"
}
