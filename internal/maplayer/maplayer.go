// Package maplayer renders a feature collection twice: a visible layer styled
// by the active view and an invisible, wide hit layer that owns pointer
// interaction and popups.
//
// Both layers hold the same *geojson.Feature pointers and are built together;
// only the visible layer is ever restyled. Features are treated as read-only.
package maplayer

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-roadrisk/internal/style"
)

// DefaultHitWeight is ten times the visible stroke.
const DefaultHitWeight = 10 * style.Weight

// Fitter is the part of the map host that frames the viewport.
type Fitter interface {
	FitBounds(b orb.Bound)
}

// PopupFunc formats popup content for a feature. It is called once per
// feature while the pair is built.
type PopupFunc func(*geojson.Feature) string

// Options configures Build.
type Options struct {
	HitWeight float64
	Popup     PopupFunc
}

// Path is one rendered feature in a layer.
type Path struct {
	ID      string
	Feature *geojson.Feature
	Style   style.Style
	Popup   string
}

// Layer is an ordered set of paths.
type Layer struct {
	Interactive bool
	paths       []*Path
}

// Len returns the number of paths.
func (l *Layer) Len() int {
	return len(l.paths)
}

// HitStyle returns the fixed, fully transparent hit-layer style.
func HitStyle(weight float64) style.Style {
	return style.Style{
		Color:    "#000000",
		Weight:   weight,
		Opacity:  0,
		LineCap:  style.LineCap,
		LineJoin: style.LineJoin,
	}
}

// Pair is the visible/hit layer pair over one feature collection.
type Pair struct {
	mu       sync.RWMutex
	resolver *style.Resolver
	visible  *Layer
	hit      *Layer
	index    map[string]int
	bound    orb.Bound
	hasBound bool
	view     string
}

// Build creates both layers for fc, styles the visible layer for viewID and
// asks the host to fit the union bounds once. Nil features are skipped so a
// bad record cannot stop the rest from rendering.
func Build(fc *geojson.FeatureCollection, resolver *style.Resolver, viewID string, host Fitter, opts Options) (*Pair, error) {
	if fc == nil {
		return nil, fmt.Errorf("maplayer: nil feature collection")
	}
	if resolver == nil {
		return nil, fmt.Errorf("maplayer: nil style resolver")
	}
	if opts.HitWeight <= 0 {
		opts.HitWeight = DefaultHitWeight
	}

	p := &Pair{
		resolver: resolver,
		visible:  &Layer{Interactive: false, paths: make([]*Path, 0, len(fc.Features))},
		hit:      &Layer{Interactive: true, paths: make([]*Path, 0, len(fc.Features))},
		index:    make(map[string]int, len(fc.Features)),
		view:     viewID,
	}
	hitStyle := HitStyle(opts.HitWeight)

	for i, f := range fc.Features {
		if f == nil {
			continue
		}
		id := p.uniqueID(featureID(f, i), i)
		p.index[id] = len(p.visible.paths)

		p.visible.paths = append(p.visible.paths, &Path{
			ID:      id,
			Feature: f,
			Style:   resolver.StyleFor(viewID, f),
		})
		hp := &Path{ID: id, Feature: f, Style: hitStyle}
		if opts.Popup != nil {
			hp.Popup = opts.Popup(f)
		}
		p.hit.paths = append(p.hit.paths, hp)

		if f.Geometry != nil {
			b := f.Geometry.Bound()
			if !p.hasBound {
				p.bound, p.hasBound = b, true
			} else {
				p.bound = p.bound.Union(b)
			}
		}
	}

	if host != nil && p.hasBound {
		host.FitBounds(p.bound)
	}
	return p, nil
}

// featureID prefers the GeoJSON id, then OBJECTID, then the collection index.
// uniqueID returns id, or id suffixed with the feature index (and a counter
// after that) when an earlier feature already holds it.
func (p *Pair) uniqueID(id string, i int) string {
	if _, dup := p.index[id]; !dup {
		return id
	}
	candidate := fmt.Sprintf("%s-%d", id, i)
	for n := 2; ; n++ {
		if _, dup := p.index[candidate]; !dup {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d-%d", id, i, n)
	}
}

func featureID(f *geojson.Feature, i int) string {
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	if v, ok := f.Properties["OBJECTID"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return strconv.Itoa(i)
}

// Restyle re-applies the style of viewID to every visible path in place.
// The hit layer is never touched.
func (p *Pair) Restyle(viewID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, path := range p.visible.paths {
		path.Style = p.resolver.StyleFor(viewID, path.Feature)
	}
	p.view = viewID
}

// View returns the view the visible layer is currently styled for.
func (p *Pair) View() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view
}

// Len returns the number of features in each layer.
func (p *Pair) Len() int {
	return p.visible.Len()
}

// Bound returns the union bounds and whether any geometry contributed.
func (p *Pair) Bound() (orb.Bound, bool) {
	return p.bound, p.hasBound
}

// IDs returns feature ids in collection order.
func (p *Pair) IDs() []string {
	ids := make([]string, len(p.visible.paths))
	for i, path := range p.visible.paths {
		ids[i] = path.ID
	}
	return ids
}

// Has reports whether id is a rendered feature.
func (p *Pair) Has(id string) bool {
	_, ok := p.index[id]
	return ok
}

// Feature returns the feature for id.
func (p *Pair) Feature(id string) (*geojson.Feature, bool) {
	i, ok := p.index[id]
	if !ok {
		return nil, false
	}
	return p.visible.paths[i].Feature, true
}

// Style returns the current visible style for id.
func (p *Pair) Style(id string) (style.Style, bool) {
	i, ok := p.index[id]
	if !ok {
		return style.Style{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.visible.paths[i].Style, true
}

// Styles returns a snapshot of visible styles keyed by feature id.
func (p *Pair) Styles() map[string]style.Style {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]style.Style, len(p.visible.paths))
	for _, path := range p.visible.paths {
		out[path.ID] = path.Style
	}
	return out
}

// Popup returns the popup content prepared for id at build time.
func (p *Pair) Popup(id string) (string, bool) {
	i, ok := p.index[id]
	if !ok {
		return "", false
	}
	return p.hit.paths[i].Popup, true
}

// HitStyle returns the hit layer style (identical for every path).
func (p *Pair) HitStyle() style.Style {
	if len(p.hit.paths) == 0 {
		return HitStyle(DefaultHitWeight)
	}
	return p.hit.paths[0].Style
}

// VisibleGeoJSON exports the visible layer with stroke properties. The
// exported features share geometry with the source but not properties.
func (p *Pair) VisibleGeoJSON() *geojson.FeatureCollection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return export(p.visible)
}

// ViewGeoJSON exports the visible layer as viewID would style it, leaving
// the layer's current styling alone.
func (p *Pair) ViewGeoJSON(viewID string) *geojson.FeatureCollection {
	l := &Layer{paths: make([]*Path, len(p.visible.paths))}
	for i, path := range p.visible.paths {
		l.paths[i] = &Path{ID: path.ID, Feature: path.Feature, Style: p.resolver.StyleFor(viewID, path.Feature)}
	}
	return export(l)
}

// HitGeoJSON exports the hit layer.
func (p *Pair) HitGeoJSON() *geojson.FeatureCollection {
	return export(p.hit)
}

func export(l *Layer) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, path := range l.paths {
		if path.Feature.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(path.Feature.Geometry)
		f.ID = path.ID
		f.Properties["id"] = path.ID
		f.Properties["interactive"] = l.Interactive
		f.Properties["stroke"] = path.Style.Color
		f.Properties["stroke-width"] = path.Style.Weight
		f.Properties["stroke-opacity"] = path.Style.Opacity
		f.Properties["stroke-linecap"] = path.Style.LineCap
		f.Properties["stroke-linejoin"] = path.Style.LineJoin
		fc.Append(f)
	}
	return fc
}
