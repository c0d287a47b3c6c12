package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const segment = `{"type":"FeatureCollection","features":[{"type":"Feature","id":"s1","properties":{"risk_class":3},"geometry":{"type":"LineString","coordinates":[[114.1,22.3],[114.2,22.3]]}}]}`

func TestListSources(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sources")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "roads.geojson"), []byte(segment), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "roads.parquet"), make([]byte, 2048), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("x"), 0644))

	files, err := NewSourceService(dir, nil, nil).List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []SourceFile{
		{Name: "roads.geojson", Size: formatSize(int64(len(segment))), FileType: "GeoJSON"},
		{Name: "roads.parquet", Size: "2.0 KB", FileType: "GeoParquet"},
	}, files)
}

func TestListMissingDir(t *testing.T) {
	files, err := NewSourceService(t.TempDir(), nil, nil).List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLoadGeoJSON(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sources")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "roads.geojson"), []byte(segment), 0644))

	svc := NewSourceService(dir, nil, nil)
	fc, err := svc.Load(context.Background(), "roads.geojson")
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "s1", fc.Features[0].ID)
	assert.Equal(t, 3.0, fc.Features[0].Properties["risk_class"])

	// absolute paths bypass the sources dir
	fc, err = svc.Load(context.Background(), filepath.Join(src, "roads.geojson"))
	require.NoError(t, err)
	assert.Len(t, fc.Features, 1)
}

func TestLoadSample(t *testing.T) {
	fc, err := NewSourceService(t.TempDir(), nil, nil).Load(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, fc.Features, 6)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	svc := NewSourceService(dir, nil, nil)

	_, err := svc.Load(context.Background(), "missing.geojson")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	src := filepath.Join(dir, "sources")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "roads.parquet"), []byte("x"), 0644))
	_, err = svc.Load(context.Background(), "roads.parquet")
	assert.ErrorContains(t, err, "database not available")

	require.NoError(t, os.WriteFile(filepath.Join(src, "bad.geojson"), []byte("{"), 0644))
	_, err = svc.Load(context.Background(), "bad.geojson")
	assert.Error(t, err)
}

func TestResolveNameStaysInSourcesDir(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "private.parquet")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0644))

	dir := t.TempDir()
	src := filepath.Join(dir, "sources")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "roads.parquet"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.parquet"), []byte("x"), 0644))
	svc := NewSourceService(dir, nil, nil)

	for _, name := range []string{outside, "../x.parquet", "..", "sub/roads.parquet", `..\x.parquet`, ""} {
		_, err := svc.ResolveName(name)
		assert.ErrorIs(t, err, ErrInvalidSourceName, name)

		_, err = svc.Describe(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidSourceName, name)
	}

	p, err := svc.ResolveName("roads.parquet")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(src, "roads.parquet"), p)

	_, err = svc.ResolveName("missing.parquet")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	// the CLI form still accepts paths
	p, err = svc.Resolve(outside)
	require.NoError(t, err)
	assert.Equal(t, outside, p)
}

func TestListArchives(t *testing.T) {
	dir := t.TempDir()
	svc := NewTileService(dir)
	files, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, os.MkdirAll(svc.TilesDir(), 0755))
	require.NoError(t, os.WriteFile(svc.PathFor("rain"), make([]byte, 10), 0644))
	require.NoError(t, os.WriteFile(svc.PathFor("risk"), make([]byte, 3*1024), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(svc.TilesDir(), "risk.mbtiles"), nil, 0644))

	files, err = svc.List()
	require.NoError(t, err)
	assert.Equal(t, []TileFile{
		{Name: "rain.pmtiles", View: "rain", Size: "10 B", URL: "/tiles/rain.pmtiles"},
		{Name: "risk.pmtiles", View: "risk", Size: "3.0 KB", URL: "/tiles/risk.pmtiles"},
	}, files)
	assert.Equal(t, filepath.Join(dir, "tiles", "risk.pmtiles"), svc.PathFor("risk"))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "3.0 MB", formatSize(3*1024*1024))
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	a, b := bus.Subscribe(), bus.Subscribe()
	assert.Equal(t, 2, bus.Subscribers())

	bus.Publish(Event{Resource: "view", Action: "switched", ID: "rain"})
	assert.Equal(t, "rain", (<-a).ID)
	assert.Equal(t, "rain", (<-b).ID)

	bus.Unsubscribe(a)
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, bus.Subscribers())
	bus.Unsubscribe(b)
}

func TestEventBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	for i := 0; i < cap(ch)+10; i++ {
		bus.Publish(Event{Resource: "popup"})
	}
	assert.Len(t, ch, cap(ch))
}
