// Package pbftest writes small OSM PBF files for tests. Only dense nodes are
// supported, which is all the address pipeline reads.
package pbftest

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/osm"
	"google.golang.org/protobuf/encoding/protowire"
)

// Options controls file layout.
type Options struct {
	// NodesPerBlock caps the nodes per OSMData blob. Zero means all nodes
	// go into one blob.
	NodesPerBlock int
	// Raw stores blobs uncompressed instead of zlib.
	Raw bool
}

// Node is a tagged point to encode. Tags are written in the given order.
type Node struct {
	ID   int64
	Lat  float64
	Lon  float64
	Tags osm.Tags
}

// WriteFile encodes nodes into a PBF file at path.
func WriteFile(path string, nodes []Node, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(f, nodes, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write encodes nodes as an OSMHeader blob followed by OSMData blobs.
func Write(w io.Writer, nodes []Node, opts Options) error {
	if err := writeBlob(w, "OSMHeader", headerBlock(), opts.Raw); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	per := opts.NodesPerBlock
	if per <= 0 {
		per = len(nodes)
	}
	for start := 0; start < len(nodes); start += per {
		end := min(start+per, len(nodes))
		if err := writeBlob(w, "OSMData", primitiveBlock(nodes[start:end]), opts.Raw); err != nil {
			return fmt.Errorf("write data block %d: %w", start/per, err)
		}
	}
	return nil
}

func headerBlock() []byte {
	var b []byte
	for _, feature := range []string{"OsmSchema-V0.6", "DenseNodes"} {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, feature)
	}
	b = protowire.AppendTag(b, 16, protowire.BytesType)
	b = protowire.AppendString(b, "osmaddr-pbftest")
	return b
}

type stringTable struct {
	index   map[string]int32
	entries []string
}

func newStringTable() *stringTable {
	// Index 0 is reserved as the tag terminator.
	return &stringTable{index: map[string]int32{"": 0}, entries: []string{""}}
}

func (st *stringTable) id(s string) int32 {
	if i, ok := st.index[s]; ok {
		return i
	}
	i := int32(len(st.entries))
	st.index[s] = i
	st.entries = append(st.entries, s)
	return i
}

func primitiveBlock(nodes []Node) []byte {
	st := newStringTable()
	userSID := st.id("pbftest")

	var ids, lats, lons, timestamps, changesets []uint64
	var versions, uids, sids, visible, keysVals []uint64
	var lastID, lastLat, lastLon int64
	var lastUserSID int32

	for i, n := range nodes {
		lat := int64(n.Lat * 1e7)
		lon := int64(n.Lon * 1e7)
		ids = append(ids, protowire.EncodeZigZag(n.ID-lastID))
		lats = append(lats, protowire.EncodeZigZag(lat-lastLat))
		lons = append(lons, protowire.EncodeZigZag(lon-lastLon))
		lastID, lastLat, lastLon = n.ID, lat, lon

		for _, t := range n.Tags {
			keysVals = append(keysVals, uint64(st.id(t.Key)), uint64(st.id(t.Value)))
		}
		keysVals = append(keysVals, 0)

		versions = append(versions, 1)
		ts, cs := int64(0), int64(0)
		if i == 0 {
			ts, cs = 1700000000, 1
		}
		timestamps = append(timestamps, protowire.EncodeZigZag(ts))
		changesets = append(changesets, protowire.EncodeZigZag(cs))
		uids = append(uids, protowire.EncodeZigZag(0))
		sids = append(sids, protowire.EncodeZigZag(int64(userSID-lastUserSID)))
		lastUserSID = userSID
		visible = append(visible, 1)
	}

	var info []byte
	info = appendPacked(info, 1, versions)
	info = appendPacked(info, 2, timestamps)
	info = appendPacked(info, 3, changesets)
	info = appendPacked(info, 4, uids)
	info = appendPacked(info, 5, sids)
	info = appendPacked(info, 6, visible)

	var dense []byte
	dense = appendPacked(dense, 1, ids)
	dense = protowire.AppendTag(dense, 5, protowire.BytesType)
	dense = protowire.AppendBytes(dense, info)
	dense = appendPacked(dense, 8, lats)
	dense = appendPacked(dense, 9, lons)
	dense = appendPacked(dense, 10, keysVals)

	var group []byte
	group = protowire.AppendTag(group, 2, protowire.BytesType)
	group = protowire.AppendBytes(group, dense)

	var table []byte
	for _, s := range st.entries {
		table = protowire.AppendTag(table, 1, protowire.BytesType)
		table = protowire.AppendString(table, s)
	}

	var block []byte
	block = protowire.AppendTag(block, 1, protowire.BytesType)
	block = protowire.AppendBytes(block, table)
	block = protowire.AppendTag(block, 2, protowire.BytesType)
	block = protowire.AppendBytes(block, group)
	block = protowire.AppendTag(block, 17, protowire.VarintType)
	block = protowire.AppendVarint(block, 100)
	block = protowire.AppendTag(block, 18, protowire.VarintType)
	block = protowire.AppendVarint(block, 1000)
	return block
}

func appendPacked(b []byte, num protowire.Number, vals []uint64) []byte {
	if len(vals) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, v)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func writeBlob(w io.Writer, kind string, data []byte, raw bool) error {
	var blob []byte
	if raw {
		blob = protowire.AppendTag(blob, 1, protowire.BytesType)
		blob = protowire.AppendBytes(blob, data)
	}
	blob = protowire.AppendTag(blob, 2, protowire.VarintType)
	blob = protowire.AppendVarint(blob, uint64(len(data)))
	if !raw {
		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		if _, err := zw.Write(data); err != nil {
			return fmt.Errorf("compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("close zlib writer: %w", err)
		}
		blob = protowire.AppendTag(blob, 3, protowire.BytesType)
		blob = protowire.AppendBytes(blob, z.Bytes())
	}

	var header []byte
	header = protowire.AppendTag(header, 1, protowire.BytesType)
	header = protowire.AppendString(header, kind)
	header = protowire.AppendTag(header, 3, protowire.VarintType)
	header = protowire.AppendVarint(header, uint64(len(blob)))

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(header)))
	for _, part := range [][]byte{size[:], header, blob} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}
