package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/osm"
	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/osm-addr-index/internal/pbftest"
	"github.com/eunmann/osm-addr-index/pkg/addrexport"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// fieldsLine returns the whitespace-split fields of the first output line
// starting with first.
func fieldsLine(out, first string) []string {
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) > 0 && f[0] == first {
			return f
		}
	}
	return nil
}

func writeFixture(t *testing.T) string {
	t.Helper()
	tags := func(street, number string, extra ...osm.Tag) osm.Tags {
		ts := osm.Tags{{Key: "addr:street", Value: street}, {Key: "addr:housenumber", Value: number}}
		return append(ts, extra...)
	}
	city := osm.Tag{Key: "addr:city", Value: "Sunnyvale"}
	zip := osm.Tag{Key: "addr:postcode", Value: "94085"}

	nodes := []pbftest.Node{
		{ID: 1, Lat: 37.38, Lon: -122.03, Tags: tags("Mathilda Ave", "100-110", city, zip)},
		{ID: 2, Lat: 37.39, Lon: -122.03, Tags: osm.Tags{{Key: "amenity", Value: "cafe"}}},
		{ID: 3, Lat: 37.40, Lon: -122.03, Tags: tags("Castro St", "7")},
		{ID: 4, Lat: 37.41, Lon: -122.03, Tags: tags("Mathilda Ave", "5", city, zip)},
	}
	path := filepath.Join(t.TempDir(), "ca.osm.pbf")
	if err := pbftest.WriteFile(path, nodes, pbftest.Options{NodesPerBlock: 2}); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestRunNoArgs(t *testing.T) {
	t.Chdir(t.TempDir())
	err := Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error with no args")
	}
	if !strings.Contains(err.Error(), "usage") {
		t.Errorf("expected usage message, got: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	err := Run(context.Background(), []string{"unknown"})
	if err == nil {
		t.Fatal("expected error with unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' error, got: %v", err)
	}
}

func TestExtractMissingRegion(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "extract", "ca.osm.pbf")
	if err == nil || !strings.Contains(err.Error(), "region") {
		t.Errorf("expected missing --region error, got: %v", err)
	}
}

func TestExtractUnknownRegion(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "extract", "ca.osm.pbf", "--region", "atlantis")
	if err == nil || !strings.Contains(err.Error(), "unknown world region") {
		t.Errorf("expected unknown region error, got: %v", err)
	}
}

func TestExtractMissingInput(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	_, err := execute(t, "extract", filepath.Join(dir, "missing.osm.pbf"), "--region", "us-california")
	if err == nil || !strings.Contains(err.Error(), "missing.osm.pbf") {
		t.Errorf("expected open error naming the file, got: %v", err)
	}
}

func TestRegions(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "regions")
	if err != nil {
		t.Fatal(err)
	}
	f := fieldsLine(out, "us-california")
	if len(f) < 3 || f[1] != "US-CA" || f[2] != "US" {
		t.Errorf("us-california row = %v\n%s", f, out)
	}
}

func TestExtractAndStats(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	pbf := writeFixture(t)
	db := filepath.Join(dir, "hnr.sqlite")
	parquetPath := filepath.Join(dir, "out", "addresses.parquet")

	out, err := execute(t, "extract", pbf, "--region", "US-CA", "--db", db, "--out", parquetPath, "--print")
	if err != nil {
		t.Fatalf("extract: %v\n%s", err, out)
	}
	if !strings.Contains(out, "mathilda ave, sunnyvale 94085 (us-california)") {
		t.Errorf("printed addresses missing:\n%s", out)
	}
	if !strings.Contains(out, "2 addresses, 3 ranges over 2 streets stored") {
		t.Errorf("summary line missing:\n%s", out)
	}

	rows, err := parquet.ReadFile[addrexport.Row](parquetPath)
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(rows) != 2 || rows[0].Street != "mathilda ave" || rows[0].Region != "us-california" {
		t.Errorf("rows = %+v", rows)
	}

	out, err = execute(t, "stats", "--db", db)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if f := fieldsLine(out, "US-CA"); len(f) != 2 || f[1] != "2" {
		t.Errorf("US-CA row = %v\n%s", f, out)
	}
	if f := fieldsLine(out, "TOTAL"); len(f) != 2 || f[1] != "2" {
		t.Errorf("TOTAL row = %v\n%s", f, out)
	}

	out, err = execute(t, "stats", "--db", db, "--region", "us-texas")
	if err != nil {
		t.Fatalf("stats --region: %v", err)
	}
	if f := fieldsLine(out, "TOTAL"); len(f) != 2 || f[1] != "0" {
		t.Errorf("TOTAL row for us-texas = %v\n%s", f, out)
	}
}

func TestExtractLimit(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	pbf := writeFixture(t)
	parquetPath := filepath.Join(dir, "one.parquet")

	out, err := execute(t, "extract", pbf, "--region", "us-california", "--db", filepath.Join(dir, "hnr.sqlite"), "--out", parquetPath, "--limit", "1")
	if err != nil {
		t.Fatalf("extract: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 addresses") {
		t.Errorf("summary line = %q", out)
	}
	rows, err := parquet.ReadFile[addrexport.Row](parquetPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows, want 1", len(rows))
	}
}

func TestExtractNegativeLimit(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "extract", "x.pbf", "--region", "us-california", "--limit", "-1")
	if err == nil || !strings.Contains(err.Error(), "--limit") {
		t.Errorf("expected --limit error, got: %v", err)
	}
}
