// Package popup builds the per-segment popup content shown on hover.
//
// Content depends only on the feature's static properties, never on the
// active view, and is formatted once per feature when the layers are built.
package popup

import (
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-roadrisk/internal/templates"
	"github.com/joeblew999/plat-roadrisk/internal/views"
)

// Property keys read by the popup.
const (
	KeySegmentID       = "OBJECTID"
	KeyStreetEn        = "STREET_ENAME"
	KeyStreetZh        = "STREET_CNAME"
	KeyLength          = "length_m"
	KeyCrashDensity    = "crash_density"
	KeyCrashCount      = "Crash Density_crash_crash_count"
	KeySeverity        = "sev_norm"
	KeyRain            = "vis_wea_refined_pct_rain"
	KeyDark            = "vis_wea_refined_pct_dark_or_twilight"
	KeyLighting        = "Lighting Level_roads_lit_summary_lit_ratio"
	KeyCrossingDensity = "crossing_density"
	KeySlope           = "Road Slope_slp_mean_clean"
)

// RiskView is the view whose band supplies the popup's risk label and colour.
const RiskView = "risk"

// Data is the template data for one popup.
type Data struct {
	SegmentID       string
	StreetEn        string
	StreetZh        string
	LengthM         string
	RiskLabel       string
	RiskColor       string
	CrashDensity    string
	CrashCount      string
	SeverityIndex   string
	RainPct         string
	DarkPct         string
	LightingPct     string
	CrossingDensity string
	SlopeMean       string
}

// Formatter renders popup content.
type Formatter struct {
	renderer *templates.Renderer
	registry *views.Registry
	log      *slog.Logger
}

// NewFormatter creates a popup formatter.
func NewFormatter(renderer *templates.Renderer, registry *views.Registry, logger *slog.Logger) *Formatter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Formatter{renderer: renderer, registry: registry, log: logger}
}

// Data extracts popup data from f.
func (p *Formatter) Data(f *geojson.Feature) Data {
	var props geojson.Properties
	if f != nil {
		props = f.Properties
	}

	d := Data{
		SegmentID:       text(props, KeySegmentID, ""),
		StreetEn:        text(props, KeyStreetEn, "N/A"),
		StreetZh:        text(props, KeyStreetZh, ""),
		LengthM:         Fixed(views.Number(props, KeyLength), 1),
		CrashDensity:    Fixed(views.Number(props, KeyCrashDensity), 2),
		CrashCount:      text(props, KeyCrashCount, "N/A"),
		SeverityIndex:   Fixed(views.Number(props, KeySeverity), 2),
		RainPct:         Fixed(orZero(views.Number(props, KeyRain))*100, 1),
		DarkPct:         Fixed(orZero(views.Number(props, KeyDark))*100, 1),
		LightingPct:     Fixed(orZero(views.Number(props, KeyLighting))*100, 1),
		CrossingDensity: Fixed(views.Number(props, KeyCrossingDensity), 2),
		SlopeMean:       Fixed(views.Number(props, KeySlope), 2),
		RiskLabel:       "Unknown",
		RiskColor:       "#000000",
	}
	if v, ok := p.registry.Lookup(RiskView); ok && f != nil {
		b := v.Band(f)
		d.RiskLabel, d.RiskColor = b.Label, b.Color
	}
	return d
}

// Format renders the popup HTML for f. Rendering errors are logged and
// produce an empty popup rather than stopping the layer build.
func (p *Formatter) Format(f *geojson.Feature) string {
	d := p.Data(f)
	html, err := p.renderer.Render("popup", d)
	if err != nil {
		p.log.Error("rendering popup", "segment", d.SegmentID, "error", err)
		return ""
	}
	return html
}

// Fixed formats v with the given decimals, or "N/A" when v is missing.
func Fixed(v float64, decimals int) string {
	if v != v { // NaN
		return "N/A"
	}
	return fmt.Sprintf("%.*f", decimals, v)
}

func orZero(v float64) float64 {
	if v != v {
		return 0
	}
	return v
}

// text renders a property as text: strings as-is, numbers without a
// trailing ".0", absent or null as def.
func text(props geojson.Properties, key, def string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	if n := views.Number(props, key); n == n {
		return fmt.Sprintf("%g", n)
	}
	return fmt.Sprint(v)
}
