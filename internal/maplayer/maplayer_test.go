package maplayer

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-roadrisk/internal/style"
	"github.com/joeblew999/plat-roadrisk/internal/views"
)

type fitRecorder struct {
	calls  int
	bounds []orb.Bound
}

func (f *fitRecorder) FitBounds(b orb.Bound) {
	f.calls++
	f.bounds = append(f.bounds, b)
}

func resolver(t *testing.T) *style.Resolver {
	t.Helper()
	reg, err := views.Default()
	require.NoError(t, err)
	return style.NewResolver(reg)
}

func collection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	a := geojson.NewFeature(orb.LineString{{114.10, 22.30}, {114.12, 22.31}})
	a.Properties["OBJECTID"] = 101
	a.Properties["risk_class"] = 4
	a.Properties["sev_norm"] = 0.5
	fc.Append(a)

	b := geojson.NewFeature(orb.LineString{{114.20, 22.25}, {114.22, 22.40}})
	b.Properties["OBJECTID"] = 102
	b.Properties["risk_class"] = 1
	b.Properties["crossing_density"] = 0
	fc.Append(b)

	c := geojson.NewFeature(orb.LineString{{114.15, 22.20}, {114.16, 22.21}})
	c.ID = "seg-c"
	fc.Append(c)

	return fc
}

func TestBuildLayers(t *testing.T) {
	host := &fitRecorder{}
	p, err := Build(collection(), resolver(t), "risk", host, Options{
		Popup: func(f *geojson.Feature) string { return "popup" },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, p.Len())
	assert.Equal(t, []string{"101", "102", "seg-c"}, p.IDs())
	assert.False(t, p.visible.Interactive)
	assert.True(t, p.hit.Interactive)
	assert.Equal(t, p.visible.Len(), p.hit.Len())

	for i := range p.visible.paths {
		assert.Same(t, p.visible.paths[i].Feature, p.hit.paths[i].Feature)
		assert.Empty(t, p.visible.paths[i].Popup)
		assert.Equal(t, "popup", p.hit.paths[i].Popup)
	}

	s, ok := p.Style("101")
	require.True(t, ok)
	assert.Equal(t, "#ff9800", s.Color)

	hs := p.HitStyle()
	assert.Equal(t, 0.0, hs.Opacity)
	assert.Equal(t, 10*s.Weight, hs.Weight)
}

func TestBuildFitsBoundsOnce(t *testing.T) {
	host := &fitRecorder{}
	p, err := Build(collection(), resolver(t), "risk", host, Options{})
	require.NoError(t, err)

	require.Equal(t, 1, host.calls)
	want := orb.Bound{Min: orb.Point{114.10, 22.20}, Max: orb.Point{114.22, 22.40}}
	assert.Equal(t, want, host.bounds[0])

	p.Restyle("severity")
	p.Restyle("risk")
	assert.Equal(t, 1, host.calls)
}

func TestBuildEmptyCollectionSkipsFit(t *testing.T) {
	host := &fitRecorder{}
	p, err := Build(geojson.NewFeatureCollection(), resolver(t), "risk", host, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, host.calls)
	_, ok := p.Bound()
	assert.False(t, ok)
}

func TestBuildSkipsNilFeatures(t *testing.T) {
	fc := collection()
	fc.Features = append(fc.Features, nil)
	fc.Features = append(fc.Features, &geojson.Feature{Properties: geojson.Properties{}})

	p, err := Build(fc, resolver(t), "risk", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, p.Len())
	assert.Len(t, p.VisibleGeoJSON().Features, 3)
}

func TestBuildDuplicateIDs(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	for i := 0; i < 2; i++ {
		f := geojson.NewFeature(orb.Point{114, 22})
		f.Properties["OBJECTID"] = 7
		fc.Append(f)
	}
	p, err := Build(fc, resolver(t), "risk", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "7-1"}, p.IDs())
}

func TestBuildDuplicateIDsNeverCollide(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	for i, id := range []string{"a-2", "a", "a"} {
		f := geojson.NewFeature(orb.LineString{{114.1, 22.3}, {114.2, 22.3 + float64(i)/100}})
		f.ID = id
		f.Properties["risk_class"] = i + 3
		fc.Append(f)
	}
	p, err := Build(fc, resolver(t), "risk", nil, Options{})
	require.NoError(t, err)

	ids := p.IDs()
	assert.Equal(t, []string{"a-2", "a", "a-2-2"}, ids)
	assert.Len(t, p.Styles(), 3)

	first, ok := p.Feature("a-2")
	require.True(t, ok)
	assert.Equal(t, 3, first.Properties["risk_class"])
	for _, id := range ids {
		assert.True(t, p.Has(id), id)
	}
}

func TestBuildRejectsNilInputs(t *testing.T) {
	_, err := Build(nil, resolver(t), "risk", nil, Options{})
	assert.Error(t, err)
	_, err = Build(collection(), nil, "risk", nil, Options{})
	assert.Error(t, err)
}

func TestRestyleIsIdempotent(t *testing.T) {
	r := resolver(t)
	p, err := Build(collection(), r, "risk", nil, Options{})
	require.NoError(t, err)

	before := p.Styles()
	paths := append([]*Path(nil), p.visible.paths...)
	hitBefore := make([]style.Style, len(p.hit.paths))
	for i, hp := range p.hit.paths {
		hitBefore[i] = hp.Style
	}

	p.Restyle("severity")
	assert.Equal(t, "severity", p.View())
	s, _ := p.Style("101")
	assert.Equal(t, "#fe9929", s.Color)

	p.Restyle("risk")
	assert.Equal(t, before, p.Styles())

	for id, s := range p.Styles() {
		f, _ := p.Feature(id)
		assert.Equal(t, r.StyleFor("risk", f), s)
	}
	for i := range paths {
		assert.Same(t, paths[i], p.visible.paths[i])
		assert.Equal(t, hitBefore[i], p.hit.paths[i].Style)
	}
}

func TestRestyleUnknownViewUsesNeutral(t *testing.T) {
	p, err := Build(collection(), resolver(t), "risk", nil, Options{})
	require.NoError(t, err)

	p.Restyle("bogus")
	for _, s := range p.Styles() {
		assert.Equal(t, style.Neutral, s)
	}
}

func TestGeoJSONExport(t *testing.T) {
	fc := collection()
	p, err := Build(fc, resolver(t), "risk", nil, Options{})
	require.NoError(t, err)

	vis := p.VisibleGeoJSON()
	require.Len(t, vis.Features, 3)
	assert.Equal(t, "#ff9800", vis.Features[0].Properties["stroke"])
	assert.Equal(t, false, vis.Features[0].Properties["interactive"])
	assert.Equal(t, "101", vis.Features[0].ID)

	hit := p.HitGeoJSON()
	assert.Equal(t, true, hit.Features[0].Properties["interactive"])
	assert.Equal(t, 0.0, hit.Features[0].Properties["stroke-opacity"])

	_, leaked := fc.Features[0].Properties["stroke"]
	assert.False(t, leaked)

	_, err = vis.MarshalJSON()
	assert.NoError(t, err)
}

func TestViewGeoJSONDoesNotRestyle(t *testing.T) {
	p, err := Build(collection(), resolver(t), "risk", nil, Options{})
	require.NoError(t, err)

	sev := p.ViewGeoJSON("severity")
	require.Len(t, sev.Features, 3)
	assert.Equal(t, "#fe9929", sev.Features[0].Properties["stroke"])

	assert.Equal(t, "risk", p.View())
	assert.Equal(t, "#ff9800", p.VisibleGeoJSON().Features[0].Properties["stroke"])
}

func TestLookupMisses(t *testing.T) {
	p, err := Build(collection(), resolver(t), "risk", nil, Options{})
	require.NoError(t, err)

	assert.False(t, p.Has("nope"))
	_, ok := p.Feature("nope")
	assert.False(t, ok)
	_, ok = p.Style("nope")
	assert.False(t, ok)
	_, ok = p.Popup("nope")
	assert.False(t, ok)
}
