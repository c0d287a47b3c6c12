// Package style resolves the visual line style of a feature under a view.
package style

import (
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-roadrisk/internal/views"
)

// Line parameters shared by every view; only the colour varies.
const (
	Weight   = 2.0
	Opacity  = 0.9
	LineCap  = "round"
	LineJoin = "round"

	// NeutralColor is used when the view id is not recognised.
	NeutralColor = "#ffffff"
)

// Style is the visual style of one rendered path.
type Style struct {
	Color    string  `json:"color" doc:"Stroke color (CSS)" example:"#ff9800"`
	Weight   float64 `json:"weight" doc:"Stroke width in pixels" example:"2"`
	Opacity  float64 `json:"opacity" minimum:"0" maximum:"1" doc:"Stroke opacity (0-1)" example:"0.9"`
	LineCap  string  `json:"lineCap" doc:"Line cap" example:"round"`
	LineJoin string  `json:"lineJoin" doc:"Line join" example:"round"`
}

// Neutral is the style for unknown views.
var Neutral = Style{Color: NeutralColor, Weight: Weight, Opacity: Opacity, LineCap: LineCap, LineJoin: LineJoin}

// Resolver maps (view id, feature) to a Style.
type Resolver struct {
	registry *views.Registry
}

// NewResolver creates a resolver over a view registry.
func NewResolver(registry *views.Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Registry returns the underlying view registry.
func (r *Resolver) Registry() *views.Registry {
	return r.registry
}

// StyleFor returns the style of f under viewID. It never panics: an unknown
// view gets the neutral style and missing data gets the view's fallback colour.
func (r *Resolver) StyleFor(viewID string, f *geojson.Feature) Style {
	if r == nil || r.registry == nil {
		return Neutral
	}
	v, ok := r.registry.Lookup(viewID)
	if !ok {
		return Neutral
	}
	s := Neutral
	s.Color = v.Color(f)
	return s
}
