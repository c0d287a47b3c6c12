package tiles

import (
	"context"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-roadrisk/internal/pmtiles"
)

// ExportOptions configures Export.
type ExportOptions struct {
	Name    string
	View    string
	MinZoom maptile.Zoom
	MaxZoom maptile.Zoom
}

// Export cuts fc into a tile pyramid and writes it to w as a PMTiles archive.
// It returns the number of tiles written.
func (c *Cutter) Export(ctx context.Context, w io.Writer, fc *geojson.FeatureCollection, opts ExportOptions) (int, error) {
	if opts.MaxZoom == 0 {
		opts.MaxZoom = DefaultMaxZoom
	}
	tiles, err := c.Pyramid(ctx, fc, opts.MinZoom, opts.MaxZoom)
	if err != nil {
		return 0, err
	}

	meta := pmtiles.Metadata{
		Name:        opts.Name,
		Description: "Road segments styled for the " + opts.View + " view",
		Layer:       c.layer,
		View:        opts.View,
		MinZoom:     uint8(opts.MinZoom),
		MaxZoom:     uint8(opts.MaxZoom),
	}
	if b, ok := bounds(fc); ok {
		meta.Bounds = [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}

	if err := pmtiles.Write(w, tiles, meta); err != nil {
		return 0, err
	}
	c.log.Info("tiles exported", "view", opts.View, "tiles", len(tiles), "minzoom", opts.MinZoom, "maxzoom", opts.MaxZoom)
	return len(tiles), nil
}

func bounds(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var (
		b  orb.Bound
		ok bool
	)
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if !ok {
			b, ok = f.Geometry.Bound(), true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, ok
}
