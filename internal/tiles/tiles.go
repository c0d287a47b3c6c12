// Package tiles cuts the styled visible layer into Mapbox vector tiles.
//
// Every tile carries one layer of road segments whose properties are the
// stroke style of the view the layer was exported for, so a client can draw
// the risk map from tiles without resolving styles itself.
package tiles

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/simplify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/joeblew999/plat-roadrisk/internal/pmtiles"
)

// Zoom defaults. Road segments are meaningless below city scale.
const (
	DefaultLayer   = "segments"
	DefaultMinZoom = 10
	DefaultMaxZoom = 16
	MaxZoom        = 20
)

// ContentType is the media type of an encoded tile.
const ContentType = "application/vnd.mapbox-vector-tile"

var tilesCut = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "roadrisk_tiles_cut_total",
	Help: "Vector tiles encoded, by outcome",
}, []string{"outcome"})

// Cutter encodes feature collections as gzipped MVT.
type Cutter struct {
	layer string
	log   *slog.Logger
}

// NewCutter creates a cutter writing features into the named tile layer.
func NewCutter(layer string, logger *slog.Logger) *Cutter {
	if layer == "" {
		layer = DefaultLayer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cutter{layer: layer, log: logger}
}

// Layer returns the tile layer name.
func (c *Cutter) Layer() string {
	return c.layer
}

// Tile encodes the features of fc that cross t. It returns nil when nothing
// survives clipping. fc is not modified.
func (c *Cutter) Tile(fc *geojson.FeatureCollection, t maptile.Tile) ([]byte, error) {
	if fc == nil {
		return nil, nil
	}
	return c.encode(t, fc.Features)
}

// Pyramid cuts every non-empty tile between minZoom and maxZoom inclusive.
func (c *Cutter) Pyramid(ctx context.Context, fc *geojson.FeatureCollection, minZoom, maxZoom maptile.Zoom) ([]pmtiles.Tile, error) {
	if maxZoom > MaxZoom {
		return nil, fmt.Errorf("tiles: max zoom %d above %d", maxZoom, MaxZoom)
	}
	if minZoom > maxZoom {
		return nil, fmt.Errorf("tiles: min zoom %d above max zoom %d", minZoom, maxZoom)
	}
	if fc == nil {
		return nil, nil
	}

	var out []pmtiles.Tile
	for z := minZoom; z <= maxZoom; z++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		byTile := make(map[maptile.Tile][]*geojson.Feature)
		for _, f := range fc.Features {
			if f == nil || f.Geometry == nil {
				continue
			}
			for _, t := range Covering(f.Geometry.Bound(), z) {
				byTile[t] = append(byTile[t], f)
			}
		}
		before := len(out)
		for t, features := range byTile {
			data, err := c.encode(t, features)
			if err != nil {
				return nil, fmt.Errorf("tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
			}
			if data != nil {
				out = append(out, pmtiles.Tile{Z: uint8(t.Z), X: t.X, Y: t.Y, Data: data})
			}
		}
		c.log.Debug("zoom level cut", "zoom", z, "tiles", len(out)-before)
	}
	return out, nil
}

func (c *Cutter) encode(t maptile.Tile, features []*geojson.Feature) ([]byte, error) {
	bound := t.Bound()
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		if f == nil || f.Geometry == nil || !Crosses(f.Geometry, bound) {
			continue
		}
		// Clip and ProjectToTile rewrite coordinates in place
		clone := geojson.NewFeature(orb.Clone(f.Geometry))
		for k, v := range f.Properties {
			clone.Properties[k] = v
		}
		fc.Append(clone)
	}
	if len(fc.Features) == 0 {
		tilesCut.WithLabelValues("empty").Inc()
		return nil, nil
	}

	layer := mvt.NewLayer(c.layer, fc)
	if eps := Tolerance(t.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}
	layer.Clip(bound)
	layer.ProjectToTile(t)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		tilesCut.WithLabelValues("empty").Inc()
		return nil, nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		tilesCut.WithLabelValues("error").Inc()
		return nil, err
	}
	tilesCut.WithLabelValues("encoded").Inc()
	return data, nil
}

// Covering returns the tiles at zoom z that b touches.
func Covering(b orb.Bound, z maptile.Zoom) []maptile.Tile {
	lo := maptile.At(b.Min, z)
	hi := maptile.At(b.Max, z)

	minX, maxX := lo.X, hi.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := lo.Y, hi.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	out := make([]maptile.Tile, 0, (maxX-minX+1)*(maxY-minY+1))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			out = append(out, maptile.New(x, y, z))
		}
	}
	return out
}

// Crosses reports whether g plausibly reaches into b. Lines are tested per
// segment so a long diagonal road does not land in every tile of its bound.
func Crosses(g orb.Geometry, b orb.Bound) bool {
	if !g.Bound().Intersects(b) {
		return false
	}
	switch g := g.(type) {
	case orb.Point:
		return b.Contains(g)
	case orb.MultiPoint:
		for _, p := range g {
			if b.Contains(p) {
				return true
			}
		}
		return false
	case orb.LineString:
		for i := 1; i < len(g); i++ {
			seg := orb.Bound{Min: g[i-1], Max: g[i-1]}.Extend(g[i])
			if seg.Intersects(b) {
				return true
			}
		}
		return len(g) == 1 && b.Contains(g[0])
	case orb.MultiLineString:
		for _, ls := range g {
			if Crosses(ls, b) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// Tolerance is the Douglas-Peucker epsilon in degrees for zoom z, roughly a
// quarter pixel at that zoom. No simplification from zoom 15.
func Tolerance(z maptile.Zoom) float64 {
	switch {
	case z >= 15:
		return 0
	case z >= 12:
		return 0.00001
	case z >= 8:
		return 0.0001
	default:
		return 0.001
	}
}
