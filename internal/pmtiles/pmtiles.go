// Package pmtiles writes single-directory PMTiles v3 archives of gzipped
// vector tiles.
//
// Only what the tile export needs is here: a clustered root directory,
// gzip internal compression and JSON metadata. Leaf directories are not
// written, so archives are meant for city-scale road networks.
//
// Format: https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
package pmtiles

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

// Compression is the compression applied to directories, metadata or tiles.
type Compression uint8

const (
	UnknownCompression Compression = 0
	NoCompression      Compression = 1
	Gzip               Compression = 2
)

// TileType is the format of tile contents.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
)

// HeaderLen is the fixed size of the binary header.
const HeaderLen = 127

var (
	ErrEmpty        = errors.New("pmtiles: no tiles")
	ErrNotAnArchive = errors.New("pmtiles: magic number not detected")
)

// Header is the PMTiles v3 header.
type Header struct {
	SpecVersion         uint8
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

// Entry is one run of tiles in a directory.
type Entry struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// Tile is one encoded tile to archive. Data is already gzip compressed.
type Tile struct {
	Z    uint8
	X, Y uint32
	Data []byte
}

// Metadata is the JSON metadata block. Bounds are west, south, east, north.
type Metadata struct {
	Name        string
	Description string
	Layer       string
	View        string
	MinZoom     uint8
	MaxZoom     uint8
	Bounds      [4]float64
}

type vectorLayer struct {
	ID      string `json:"id"`
	MinZoom uint8  `json:"minzoom"`
	MaxZoom uint8  `json:"maxzoom"`
}

// ZxyToID converts tile coordinates to a Hilbert tile id.
func ZxyToID(z uint8, x uint32, y uint32) uint64 {
	var acc uint64 = (1<<(z*2) - 1) / 3
	n := uint32(z - 1)
	for s := uint32(1 << n); s > 0; s >>= 1 {
		rx := s & x
		ry := s & y
		acc += uint64((3*rx)^ry) << n
		x, y = rotate(s, x, y, rx, ry)
		n--
	}
	return acc
}

func rotate(n, x, y, rx, ry uint32) (uint32, uint32) {
	if ry == 0 {
		if rx != 0 {
			x = n - 1 - x
			y = n - 1 - y
		}
		return y, x
	}
	return x, y
}

// Write lays out header, root directory, metadata and tile data in that
// order. Tiles are sorted by id; identical contents are stored once.
func Write(w io.Writer, tiles []Tile, meta Metadata) error {
	if len(tiles) == 0 {
		return ErrEmpty
	}

	sorted := make([]Tile, len(tiles))
	copy(sorted, tiles)
	sort.Slice(sorted, func(i, j int) bool {
		return ZxyToID(sorted[i].Z, sorted[i].X, sorted[i].Y) < ZxyToID(sorted[j].Z, sorted[j].X, sorted[j].Y)
	})

	var (
		data    bytes.Buffer
		entries = make([]Entry, 0, len(sorted))
		seen    = make(map[[sha256.Size]byte]Entry)
	)
	for _, t := range sorted {
		id := ZxyToID(t.Z, t.X, t.Y)
		sum := sha256.Sum256(t.Data)
		if prev, ok := seen[sum]; ok {
			// adjacent duplicates extend the previous run
			last := &entries[len(entries)-1]
			if last.Offset == prev.Offset && last.TileID+uint64(last.RunLength) == id {
				last.RunLength++
				continue
			}
			entries = append(entries, Entry{TileID: id, Offset: prev.Offset, Length: prev.Length, RunLength: 1})
			continue
		}
		e := Entry{TileID: id, Offset: uint64(data.Len()), Length: uint32(len(t.Data)), RunLength: 1}
		seen[sum] = e
		entries = append(entries, e)
		data.Write(t.Data)
	}

	root, err := serializeEntries(entries)
	if err != nil {
		return fmt.Errorf("serializing directory: %w", err)
	}
	metaBytes, err := serializeMetadata(meta)
	if err != nil {
		return fmt.Errorf("serializing metadata: %w", err)
	}

	h := Header{
		SpecVersion:         3,
		RootOffset:          HeaderLen,
		RootLength:          uint64(len(root)),
		MetadataOffset:      HeaderLen + uint64(len(root)),
		MetadataLength:      uint64(len(metaBytes)),
		AddressedTilesCount: uint64(len(sorted)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(seen)),
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     Gzip,
		TileType:            Mvt,
		MinZoom:             meta.MinZoom,
		MaxZoom:             meta.MaxZoom,
		MinLonE7:            e7(meta.Bounds[0]),
		MinLatE7:            e7(meta.Bounds[1]),
		MaxLonE7:            e7(meta.Bounds[2]),
		MaxLatE7:            e7(meta.Bounds[3]),
		CenterZoom:          meta.MinZoom,
		CenterLonE7:         e7((meta.Bounds[0] + meta.Bounds[2]) / 2),
		CenterLatE7:         e7((meta.Bounds[1] + meta.Bounds[3]) / 2),
	}
	h.TileDataOffset = h.MetadataOffset + h.MetadataLength
	h.TileDataLength = uint64(data.Len())

	for _, part := range [][]byte{SerializeHeader(h), root, metaBytes, data.Bytes()} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}

func e7(deg float64) int32 {
	return int32(math.Round(deg * 1e7))
}

// SerializeHeader encodes h into HeaderLen bytes.
func SerializeHeader(h Header) []byte {
	b := make([]byte, HeaderLen)
	copy(b[0:7], "PMTiles")
	b[7] = 3
	le := binary.LittleEndian
	for i, v := range []uint64{
		h.RootOffset, h.RootLength, h.MetadataOffset, h.MetadataLength,
		h.LeafDirectoryOffset, h.LeafDirectoryLength, h.TileDataOffset, h.TileDataLength,
		h.AddressedTilesCount, h.TileEntriesCount, h.TileContentsCount,
	} {
		le.PutUint64(b[8+i*8:], v)
	}
	if h.Clustered {
		b[96] = 1
	}
	b[97] = uint8(h.InternalCompression)
	b[98] = uint8(h.TileCompression)
	b[99] = uint8(h.TileType)
	b[100] = h.MinZoom
	b[101] = h.MaxZoom
	le.PutUint32(b[102:], uint32(h.MinLonE7))
	le.PutUint32(b[106:], uint32(h.MinLatE7))
	le.PutUint32(b[110:], uint32(h.MaxLonE7))
	le.PutUint32(b[114:], uint32(h.MaxLatE7))
	b[118] = h.CenterZoom
	le.PutUint32(b[119:], uint32(h.CenterLonE7))
	le.PutUint32(b[123:], uint32(h.CenterLatE7))
	return b
}

// DeserializeHeader decodes the first HeaderLen bytes of an archive.
func DeserializeHeader(d []byte) (Header, error) {
	var h Header
	if len(d) < HeaderLen {
		return h, fmt.Errorf("pmtiles: header needs %d bytes, got %d", HeaderLen, len(d))
	}
	if string(d[0:7]) != "PMTiles" {
		return h, ErrNotAnArchive
	}
	le := binary.LittleEndian
	u64 := func(i int) uint64 { return le.Uint64(d[8+i*8:]) }
	i32 := func(off int) int32 { return int32(le.Uint32(d[off:])) }

	h.SpecVersion = d[7]
	h.RootOffset, h.RootLength = u64(0), u64(1)
	h.MetadataOffset, h.MetadataLength = u64(2), u64(3)
	h.LeafDirectoryOffset, h.LeafDirectoryLength = u64(4), u64(5)
	h.TileDataOffset, h.TileDataLength = u64(6), u64(7)
	h.AddressedTilesCount, h.TileEntriesCount, h.TileContentsCount = u64(8), u64(9), u64(10)
	h.Clustered = d[96] == 1
	h.InternalCompression = Compression(d[97])
	h.TileCompression = Compression(d[98])
	h.TileType = TileType(d[99])
	h.MinZoom, h.MaxZoom = d[100], d[101]
	h.MinLonE7, h.MinLatE7 = i32(102), i32(106)
	h.MaxLonE7, h.MaxLatE7 = i32(110), i32(114)
	h.CenterZoom = d[118]
	h.CenterLonE7, h.CenterLatE7 = i32(119), i32(123)
	return h, nil
}

// serializeEntries encodes a gzipped directory: count, delta tile ids,
// run lengths, lengths, then offsets (0 when contiguous with the previous).
func serializeEntries(entries []Entry) ([]byte, error) {
	var raw []byte
	raw = binary.AppendUvarint(raw, uint64(len(entries)))

	last := uint64(0)
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, e.TileID-last)
		last = e.TileID
	}
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, uint64(e.RunLength))
	}
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, uint64(e.Length))
	}
	for i, e := range entries {
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			raw = binary.AppendUvarint(raw, 0)
		} else {
			raw = binary.AppendUvarint(raw, e.Offset+1)
		}
	}
	return gzipBytes(raw)
}

// DeserializeEntries decodes a gzipped directory.
func DeserializeEntries(d []byte) ([]Entry, error) {
	zr, err := gzip.NewReader(bytes.NewReader(d))
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(raw)

	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, n)
	last := uint64(0)
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		last += v
		entries[i].TileID = last
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		entries[i].RunLength = uint32(v)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		entries[i].Length = uint32(v)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		if v == 0 && i > 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = v - 1
		}
	}
	return entries, nil
}

func serializeMetadata(meta Metadata) ([]byte, error) {
	doc := map[string]any{
		"name":        meta.Name,
		"format":      "pbf",
		"compression": "gzip",
		"minzoom":     meta.MinZoom,
		"maxzoom":     meta.MaxZoom,
	}
	if meta.Description != "" {
		doc["description"] = meta.Description
	}
	if meta.View != "" {
		doc["view"] = meta.View
	}
	if meta.Layer != "" {
		doc["vector_layers"] = []vectorLayer{{ID: meta.Layer, MinZoom: meta.MinZoom, MaxZoom: meta.MaxZoom}}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return gzipBytes(raw)
}

func gzipBytes(raw []byte) ([]byte, error) {
	var b bytes.Buffer
	zw, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
