package views

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-roadrisk/internal/classify"
)

func feature(props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(orb.LineString{{114.1, 22.3}, {114.2, 22.3}})
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func TestDefaultTable(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "risk", r.Default())
	assert.Equal(t, []string{"risk", "severity", "rain", "dark", "lighting", "crossing", "slope"}, r.IDs())
	assert.True(t, r.Has("crossing"))
	assert.False(t, r.Has("nope"))

	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}

func TestDefaultViewColors(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	tests := []struct {
		view  string
		props map[string]any
		want  string
	}{
		{"risk", map[string]any{"risk_class": 4.0}, "#ff9800"},
		{"risk", map[string]any{"risk_class": 0.0}, "#969696"},
		{"risk", map[string]any{"risk_class": 9.0}, "#000000"},
		{"risk", map[string]any{}, "#000000"},
		{"severity", map[string]any{"sev_norm": 0.5}, "#fe9929"},
		{"severity", map[string]any{"sev_norm": 0.27}, "#fe9929"},
		{"crossing", map[string]any{"crossing_density": 0.0}, "#734e2e"},
		{"crossing", map[string]any{"crossing_density": 7.0}, "#c7eae5"},
		{"crossing", map[string]any{"crossing_density": nil}, "#734e2e"},
		{"rain", map[string]any{"vis_wea_refined_pct_rain": nil}, classify.FallbackColor},
		{"rain", map[string]any{"vis_wea_refined_pct_rain": 1.0}, "#08519c"},
		{"lighting", map[string]any{"Lighting Level_roads_lit_summary_lit_ratio": 0.1}, "#253494"},
		{"slope", map[string]any{"Road Slope_slp_mean_clean": "6.5"}, "#fd8d3c"},
		{"dark", map[string]any{"vis_wea_refined_pct_dark_or_twilight": "n/a"}, classify.FallbackColor},
	}
	for _, tt := range tests {
		t.Run(tt.view, func(t *testing.T) {
			v, ok := r.Lookup(tt.view)
			require.True(t, ok)
			assert.Equal(t, tt.want, v.Color(feature(tt.props)))
		})
	}
}

func TestRiskBandLabel(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	v, _ := r.Lookup("risk")

	b := v.Band(feature(map[string]any{"risk_class": 5}))
	assert.Equal(t, classify.Band{Color: "#e53935", Label: "Very High Risk"}, b)
	assert.Equal(t, "Unknown", v.Band(feature(nil)).Label)
}

func TestNumber(t *testing.T) {
	props := geojson.Properties{
		"f":    1.5,
		"i":    3,
		"i64":  int64(4),
		"s":    " 2.25 ",
		"bad":  "abc",
		"nil":  nil,
		"num":  json.Number("7"),
		"bool": true,
	}
	assert.Equal(t, 1.5, Number(props, "f"))
	assert.Equal(t, 3.0, Number(props, "i"))
	assert.Equal(t, 4.0, Number(props, "i64"))
	assert.Equal(t, 2.25, Number(props, "s"))
	assert.Equal(t, 7.0, Number(props, "num"))
	assert.True(t, math.IsNaN(Number(props, "bad")))
	assert.True(t, math.IsNaN(Number(props, "nil")))
	assert.True(t, math.IsNaN(Number(props, "bool")))
	assert.True(t, math.IsNaN(Number(props, "absent")))
	assert.True(t, math.IsNaN(Number(nil, "f")))
	assert.True(t, math.IsNaN(Attribute("f")(nil)))
}

func TestParseRejectsMalformedTables(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no views", "default: a\nviews: []\n"},
		{"unknown default", `
default: b
views:
  - {id: a, title: A, attribute: x, breaks: [0, 1], colors: ["#000000"]}
`},
		{"descending breaks", `
default: a
views:
  - {id: a, title: A, attribute: x, breaks: [1, 0], colors: ["#000000"]}
`},
		{"color count", `
default: a
views:
  - {id: a, title: A, attribute: x, breaks: [0, 1, 2], colors: ["#000000"]}
`},
		{"bad color", `
default: a
views:
  - {id: a, title: A, attribute: x, breaks: [0, 1], colors: ["red"]}
`},
		{"rules without catch-all", `
default: a
views:
  - id: a
    title: A
    attribute: x
    rules: [{equals: 0, color: "#000000"}]
`},
		{"rule bad color", `
default: a
views:
  - id: a
    title: A
    attribute: x
    rules: [{equals: 0, color: "oops"}]
    catchAll: {color: "#000000"}
`},
		{"no classifier", `
default: a
views:
  - {id: a, title: A, attribute: x}
`},
		{"duplicate id", `
default: a
views:
  - {id: a, title: A, attribute: x, breaks: [0, 1], colors: ["#000000"]}
  - {id: a, title: A, attribute: x, breaks: [0, 1], colors: ["#000000"]}
`},
		{"not yaml", "::: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "views.yaml")
	src := `
default: speed
views:
  - id: speed
    title: Speed Limit
    attribute: speed_kmh
    breaks: [0, 50, 80]
    colors: ["#00ff00", "#ff0000"]
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	r, err := Load(path)
	require.NoError(t, err)
	v, ok := r.Lookup("speed")
	require.True(t, ok)
	assert.Equal(t, "#ff0000", v.Color(feature(map[string]any{"speed_kmh": 60})))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTableRoundTrip(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	out, err := yaml.Marshal(r.Table())
	require.NoError(t, err)

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, r.IDs(), again.IDs())

	for _, id := range r.IDs() {
		a, _ := r.Lookup(id)
		b, _ := again.Lookup(id)
		assert.Equal(t, a.Legend(), b.Legend(), id)
	}
}
