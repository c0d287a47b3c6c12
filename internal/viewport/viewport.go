// Package viewport is the server-side map host: a web-mercator viewport that
// converts between geographic and container pixel coordinates and frames
// bounds. Projection math is delegated to orb/project.
package viewport

import (
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	tileSize    = 256.0
	earthRadius = 6378137.0
)

// Config is the initial viewport state.
type Config struct {
	Center  orb.Point // lon, lat
	Zoom    float64
	MinZoom float64
	MaxZoom float64
	Width   float64
	Height  float64
	// FitPadding is the pixel margin kept around fitted bounds.
	FitPadding float64
}

// DefaultConfig frames Hong Kong at city zoom.
func DefaultConfig() Config {
	return Config{
		Center:     orb.Point{114.17, 22.32},
		Zoom:       12,
		MinZoom:    10,
		MaxZoom:    18,
		Width:      1024,
		Height:     768,
		FitPadding: 20,
	}
}

// State is a snapshot of the viewport.
type State struct {
	Lon    float64 `json:"lon" doc:"Center longitude" example:"114.17"`
	Lat    float64 `json:"lat" doc:"Center latitude" example:"22.32"`
	Zoom   float64 `json:"zoom" doc:"Zoom level" example:"12"`
	Width  float64 `json:"width" doc:"Container width in pixels" example:"1024"`
	Height float64 `json:"height" doc:"Container height in pixels" example:"768"`
}

// Viewport is safe for concurrent use.
type Viewport struct {
	mu  sync.RWMutex
	cfg Config
}

// New creates a viewport.
func New(cfg Config) *Viewport {
	if cfg.MaxZoom <= 0 {
		cfg.MaxZoom = 18
	}
	if cfg.MinZoom > cfg.MaxZoom {
		cfg.MinZoom = cfg.MaxZoom
	}
	cfg.Zoom = clampZoom(cfg.Zoom, cfg)
	return &Viewport{cfg: cfg}
}

// State returns the current viewport.
func (v *Viewport) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return State{Lon: v.cfg.Center[0], Lat: v.cfg.Center[1], Zoom: v.cfg.Zoom, Width: v.cfg.Width, Height: v.cfg.Height}
}

// Set moves the viewport. Zero width/height keep the current size.
func (v *Viewport) Set(s State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg.Center = orb.Point{s.Lon, s.Lat}
	v.cfg.Zoom = clampZoom(s.Zoom, v.cfg)
	if s.Width > 0 {
		v.cfg.Width = s.Width
	}
	if s.Height > 0 {
		v.cfg.Height = s.Height
	}
}

// ContainerSize returns the map container size in pixels.
func (v *Viewport) ContainerSize() (w, h float64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cfg.Width, v.cfg.Height
}

// GeoToScreen converts lon/lat to container pixels (origin top-left).
func (v *Viewport) GeoToScreen(p orb.Point) orb.Point {
	v.mu.RLock()
	defer v.mu.RUnlock()

	scale := pixelsPerMeter(v.cfg.Zoom)
	m := project.WGS84.ToMercator(p)
	c := project.WGS84.ToMercator(v.cfg.Center)
	return orb.Point{
		(m[0]-c[0])*scale + v.cfg.Width/2,
		(c[1]-m[1])*scale + v.cfg.Height/2,
	}
}

// ScreenToGeo converts container pixels to lon/lat.
func (v *Viewport) ScreenToGeo(p orb.Point) orb.Point {
	v.mu.RLock()
	defer v.mu.RUnlock()

	scale := pixelsPerMeter(v.cfg.Zoom)
	c := project.WGS84.ToMercator(v.cfg.Center)
	m := orb.Point{
		c[0] + (p[0]-v.cfg.Width/2)/scale,
		c[1] - (p[1]-v.cfg.Height/2)/scale,
	}
	return project.Mercator.ToWGS84(m)
}

// FitBounds centres the viewport on b and picks the largest zoom that shows
// all of it, within the zoom limits.
func (v *Viewport) FitBounds(b orb.Bound) {
	v.mu.Lock()
	defer v.mu.Unlock()

	lo := project.WGS84.ToMercator(b.Min)
	hi := project.WGS84.ToMercator(b.Max)
	center := project.Mercator.ToWGS84(orb.Point{(lo[0] + hi[0]) / 2, (lo[1] + hi[1]) / 2})

	zoom := v.cfg.MaxZoom
	w := v.cfg.Width - 2*v.cfg.FitPadding
	h := v.cfg.Height - 2*v.cfg.FitPadding
	dx, dy := hi[0]-lo[0], hi[1]-lo[1]
	if w > 0 && h > 0 && (dx > 0 || dy > 0) {
		// pixels needed at zoom 0, then halve the scale until it fits
		zx, zy := math.Inf(1), math.Inf(1)
		if dx > 0 {
			zx = math.Log2(w / (dx * pixelsPerMeter(0)))
		}
		if dy > 0 {
			zy = math.Log2(h / (dy * pixelsPerMeter(0)))
		}
		zoom = math.Floor(math.Min(zx, zy))
	}

	v.cfg.Center = center
	v.cfg.Zoom = clampZoom(zoom, v.cfg)
}

func pixelsPerMeter(zoom float64) float64 {
	return tileSize * math.Exp2(zoom) / (2 * math.Pi * earthRadius)
}

func clampZoom(z float64, cfg Config) float64 {
	return math.Max(cfg.MinZoom, math.Min(cfg.MaxZoom, z))
}
