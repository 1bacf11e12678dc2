package pbftest

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
)

func TestWrite_DecodesWithOsmpbf(t *testing.T) {
	nodes := []Node{
		{ID: 10, Lat: 37.3861, Lon: -122.0839, Tags: osm.Tags{
			{Key: "addr:street", Value: "Castro St"},
			{Key: "addr:housenumber", Value: "100-110"},
		}},
		{ID: 12, Lat: 37.3870, Lon: -122.0830},
		{ID: 15, Lat: -33.8688, Lon: 151.2093, Tags: osm.Tags{{Key: "addr:city", Value: "Sydney"}}},
	}

	for _, opts := range []Options{{}, {Raw: true}, {NodesPerBlock: 1}} {
		var buf bytes.Buffer
		if err := Write(&buf, nodes, opts); err != nil {
			t.Fatalf("Write(%+v): %v", opts, err)
		}

		scanner := osmpbf.New(context.Background(), bytes.NewReader(buf.Bytes()), 1)
		var got []*osm.Node
		for scanner.Scan() {
			if n, ok := scanner.Object().(*osm.Node); ok {
				got = append(got, n)
			}
		}
		if err := scanner.Err(); err != nil {
			t.Fatalf("scan (%+v): %v", opts, err)
		}
		scanner.Close()

		if len(got) != len(nodes) {
			t.Fatalf("decoded %d nodes, want %d", len(got), len(nodes))
		}
		for i, n := range got {
			want := nodes[i]
			if int64(n.ID) != want.ID {
				t.Errorf("node %d: id %d, want %d", i, n.ID, want.ID)
			}
			if math.Abs(n.Lat-want.Lat) > 1e-6 || math.Abs(n.Lon-want.Lon) > 1e-6 {
				t.Errorf("node %d: position %v,%v, want %v,%v", i, n.Lat, n.Lon, want.Lat, want.Lon)
			}
			if len(n.Tags) != len(want.Tags) {
				t.Errorf("node %d: tags %v, want %v", i, n.Tags, want.Tags)
				continue
			}
			for j := range want.Tags {
				if n.Tags[j] != want.Tags[j] {
					t.Errorf("node %d tag %d: %v, want %v", i, j, n.Tags[j], want.Tags[j])
				}
			}
		}
	}
}
