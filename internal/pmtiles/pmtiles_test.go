package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZxyToID(t *testing.T) {
	tests := []struct {
		z    uint8
		x, y uint32
		want uint64
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{1, 0, 1, 2},
		{1, 1, 1, 3},
		{1, 1, 0, 4},
		{2, 0, 0, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ZxyToID(tt.z, tt.x, tt.y), "%d/%d/%d", tt.z, tt.x, tt.y)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		SpecVersion: 3, RootOffset: 127, RootLength: 20, MetadataOffset: 147, MetadataLength: 30,
		TileDataOffset: 177, TileDataLength: 400, AddressedTilesCount: 5, TileEntriesCount: 4, TileContentsCount: 3,
		Clustered: true, InternalCompression: Gzip, TileCompression: Gzip, TileType: Mvt,
		MinZoom: 10, MaxZoom: 16, MinLonE7: 1139000000, MinLatE7: 222000000, MaxLonE7: 1144000000, MaxLatE7: 225000000,
		CenterZoom: 10, CenterLonE7: 1141650000, CenterLatE7: 223500000,
	}
	got, err := DeserializeHeader(SerializeHeader(h))
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDeserializeHeaderErrors(t *testing.T) {
	_, err := DeserializeHeader([]byte("PMTiles"))
	assert.Error(t, err)

	_, err = DeserializeHeader(make([]byte, HeaderLen))
	assert.ErrorIs(t, err, ErrNotAnArchive)
}

func TestWrite(t *testing.T) {
	tiles := []Tile{
		{Z: 1, X: 1, Y: 0, Data: []byte("east")},
		{Z: 0, X: 0, Y: 0, Data: []byte("world")},
		{Z: 1, X: 0, Y: 0, Data: []byte("sea")},
		{Z: 1, X: 0, Y: 1, Data: []byte("sea")},
	}
	var buf bytes.Buffer
	err := Write(&buf, tiles, Metadata{Name: "risk", Layer: "segments", View: "risk", MinZoom: 0, MaxZoom: 1, Bounds: [4]float64{113.9, 22.2, 114.4, 22.5}})
	require.NoError(t, err)
	archive := buf.Bytes()

	h, err := DeserializeHeader(archive)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), h.AddressedTilesCount)
	assert.Equal(t, uint64(3), h.TileEntriesCount)
	assert.Equal(t, uint64(3), h.TileContentsCount)
	assert.Equal(t, uint64(len("world")+len("sea")+len("east")), h.TileDataLength)
	assert.Equal(t, uint64(len(archive)), h.TileDataOffset+h.TileDataLength)
	assert.Equal(t, int32(1141500000), h.CenterLonE7)

	entries, err := DeserializeEntries(archive[h.RootOffset : h.RootOffset+h.RootLength])
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, Entry{TileID: 0, Offset: 0, Length: 5, RunLength: 1}, entries[0])
	assert.Equal(t, Entry{TileID: 1, Offset: 5, Length: 3, RunLength: 2}, entries[1])
	assert.Equal(t, Entry{TileID: 4, Offset: 8, Length: 4, RunLength: 1}, entries[2])

	data := archive[h.TileDataOffset:]
	assert.Equal(t, "world", string(data[0:5]))

	zr, err := gzip.NewReader(bytes.NewReader(archive[h.MetadataOffset : h.MetadataOffset+h.MetadataLength]))
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "risk", meta["name"])
	assert.Equal(t, "risk", meta["view"])
	assert.Equal(t, "pbf", meta["format"])
	assert.Len(t, meta["vector_layers"], 1)
}

func TestWriteEmpty(t *testing.T) {
	assert.ErrorIs(t, Write(io.Discard, nil, Metadata{}), ErrEmpty)
}
