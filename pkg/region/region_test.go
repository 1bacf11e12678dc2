package region

import (
	"errors"
	"testing"

	"github.com/biter777/countries"
)

func TestDefault_Lookup(t *testing.T) {
	tests := []struct {
		region      WorldRegion
		wantCountry Country
		wantAbbrev  string
	}{
		{"us-california", countries.US, "US-CA"},
		{"us-new-york", countries.US, "US-NY"},
		{"us-district-of-columbia", countries.US, "US-DC"},
		{"canada-british-columbia", countries.CA, "CA-BC"},
		{"germany", countries.DE, "DE"},
		{"united-kingdom", countries.GB, "GB"},
	}

	res := Default()
	for _, tt := range tests {
		t.Run(string(tt.region), func(t *testing.T) {
			c, err := res.Country(tt.region)
			if err != nil {
				t.Fatalf("Country(%q): %v", tt.region, err)
			}
			if c != tt.wantCountry {
				t.Errorf("Country(%q) = %v, want %v", tt.region, c, tt.wantCountry)
			}
			abbr, err := res.Abbreviation(tt.region)
			if err != nil {
				t.Fatalf("Abbreviation(%q): %v", tt.region, err)
			}
			if abbr != tt.wantAbbrev {
				t.Errorf("Abbreviation(%q) = %q, want %q", tt.region, abbr, tt.wantAbbrev)
			}
		})
	}
}

func TestDefault_Unknown(t *testing.T) {
	res := Default()
	if _, err := res.Country("atlantis"); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("Country(atlantis) error = %v, want ErrUnknownRegion", err)
	}
	if _, err := res.Abbreviation(""); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("Abbreviation(\"\") error = %v, want ErrUnknownRegion", err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want WorldRegion
	}{
		{"us-california", "us-california"},
		{"US-California", "us-california"},
		{"US-CA", "us-california"},
		{"us-ca", "us-california"},
		{" germany ", "germany"},
		{"DE", "germany"},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := Parse("nowhere"); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("Parse(nowhere) error = %v, want ErrUnknownRegion", err)
	}
}

func TestAll_SortedAndUnique(t *testing.T) {
	all := Default().All()
	if len(all) != 51+13+18 {
		t.Fatalf("expected %d regions, got %d", 51+13+18, len(all))
	}
	seen := make(map[string]bool)
	for i, info := range all {
		if i > 0 && all[i-1].Region >= info.Region {
			t.Errorf("regions not sorted at %d: %q >= %q", i, all[i-1].Region, info.Region)
		}
		if seen[info.Abbrev] {
			t.Errorf("duplicate abbreviation %q", info.Abbrev)
		}
		seen[info.Abbrev] = true
	}
}

func TestNewTable_Custom(t *testing.T) {
	tbl := NewTable([]Info{{Region: "test-land", Country: countries.NZ, Abbrev: "TL"}})
	c, err := tbl.Country("test-land")
	if err != nil {
		t.Fatal(err)
	}
	if c != countries.NZ {
		t.Errorf("got %v, want NZ", c)
	}
	if _, err := tbl.Country("us-california"); err == nil {
		t.Error("custom table should not know built-in regions")
	}
}
