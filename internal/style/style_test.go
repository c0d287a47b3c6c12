package style

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-roadrisk/internal/classify"
	"github.com/joeblew999/plat-roadrisk/internal/views"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	reg, err := views.Default()
	require.NoError(t, err)
	return NewResolver(reg)
}

func segment(props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(orb.LineString{{114.15, 22.28}, {114.16, 22.29}})
	f.Properties = props
	return f
}

func TestStyleForViews(t *testing.T) {
	r := newResolver(t)
	f := segment(geojson.Properties{
		"risk_class":               4,
		"sev_norm":                 0.5,
		"crossing_density":         7,
		"vis_wea_refined_pct_rain": nil,
	})

	assert.Equal(t, "#ff9800", r.StyleFor("risk", f).Color)
	assert.Equal(t, "#fe9929", r.StyleFor("severity", f).Color)
	assert.Equal(t, "#c7eae5", r.StyleFor("crossing", f).Color)
	assert.Equal(t, classify.FallbackColor, r.StyleFor("rain", f).Color)
}

func TestStyleUniformLineParameters(t *testing.T) {
	r := newResolver(t)
	f := segment(geojson.Properties{"risk_class": 2})

	for _, id := range append(r.Registry().IDs(), "unknown") {
		s := r.StyleFor(id, f)
		assert.Equal(t, Weight, s.Weight, id)
		assert.Equal(t, Opacity, s.Opacity, id)
		assert.Equal(t, LineCap, s.LineCap, id)
		assert.Equal(t, LineJoin, s.LineJoin, id)
		assert.NotEmpty(t, s.Color, id)
	}
}

func TestStyleForUnknownView(t *testing.T) {
	r := newResolver(t)

	assert.Equal(t, Neutral, r.StyleFor("", segment(nil)))
	assert.Equal(t, Neutral, r.StyleFor("does-not-exist", nil))

	var nilResolver *Resolver
	assert.Equal(t, Neutral, nilResolver.StyleFor("risk", segment(nil)))
}

func TestStyleForNilFeature(t *testing.T) {
	r := newResolver(t)
	assert.NotPanics(t, func() {
		assert.Equal(t, classify.FallbackColor, r.StyleFor("severity", nil).Color)
		assert.Equal(t, "#734e2e", r.StyleFor("crossing", nil).Color)
	})
}
