// Package riskmap assembles one map session: the dual layer over the loaded
// segments, the hover controller on its hit layer and the view switch that
// restyles it.
package riskmap

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-roadrisk/internal/hover"
	"github.com/joeblew999/plat-roadrisk/internal/maplayer"
	"github.com/joeblew999/plat-roadrisk/internal/style"
	"github.com/joeblew999/plat-roadrisk/internal/views"
	"github.com/joeblew999/plat-roadrisk/internal/viewswitch"
)

// ErrUnknownFeature is returned for pointer events on ids not in the layer.
var ErrUnknownFeature = errors.New("unknown feature")

// Host is everything the session needs from the map page.
type Host interface {
	hover.Host
	maplayer.Fitter
	viewswitch.Legend
	viewswitch.Indicator
	Restyled(viewID string, styles map[string]style.Style)
}

// Options configures a Map.
type Options struct {
	// DefaultView overrides the registry default when set.
	DefaultView  string
	HoverDelay   time.Duration
	PopupPadding float64
	HitWeight    float64
	Popup        maplayer.PopupFunc
	Clock        hover.Clock
	Logger       *slog.Logger
}

// Map is a running map session.
type Map struct {
	registry *views.Registry
	resolver *style.Resolver
	pair     *maplayer.Pair
	hover    *hover.Controller
	views    *viewswitch.Controller
	log      *slog.Logger
}

// restyler notifies the host after the visible layer changes.
type restyler struct {
	pair *maplayer.Pair
	host Host
}

func (r restyler) Restyle(viewID string) {
	r.pair.Restyle(viewID)
	r.host.Restyled(viewID, r.pair.Styles())
}

// New builds both layers over fc, fits the viewport to them and activates
// the initial view.
func New(fc *geojson.FeatureCollection, registry *views.Registry, host Host, opts Options) (*Map, error) {
	if registry == nil {
		return nil, fmt.Errorf("riskmap: nil view registry")
	}
	if host == nil {
		return nil, fmt.Errorf("riskmap: nil host")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	initial := opts.DefaultView
	if initial == "" {
		initial = registry.Default()
	}
	if !registry.Has(initial) {
		return nil, fmt.Errorf("%w: initial view %q", views.ErrUnknownView, initial)
	}

	resolver := style.NewResolver(registry)
	pair, err := maplayer.Build(fc, resolver, initial, host, maplayer.Options{
		HitWeight: opts.HitWeight,
		Popup:     opts.Popup,
	})
	if err != nil {
		return nil, fmt.Errorf("building layers: %w", err)
	}

	m := &Map{
		registry: registry,
		resolver: resolver,
		pair:     pair,
		log:      opts.Logger,
	}
	m.hover = hover.New(host, pair.Popup, hover.Config{
		Delay:   opts.HoverDelay,
		Padding: opts.PopupPadding,
		Clock:   opts.Clock,
		Logger:  opts.Logger,
	})
	m.views = viewswitch.New(registry, restyler{pair: pair, host: host}, host, host, opts.Logger)
	if err := m.views.Init(initial); err != nil {
		return nil, err
	}

	opts.Logger.Info("map ready", "segments", pair.Len(), "view", initial)
	return m, nil
}

// SetView switches the active view; unknown ids leave the map unchanged.
func (m *Map) SetView(viewID string) bool {
	return m.views.SetView(viewID)
}

// CurrentView returns the active view id.
func (m *Map) CurrentView() string {
	return m.views.Current()
}

// PointerEnter forwards a hit-layer enter.
func (m *Map) PointerEnter(featureID string, at orb.Point) error {
	if !m.pair.Has(featureID) {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, featureID)
	}
	m.hover.PointerEnter(featureID, at)
	return nil
}

// PointerMove forwards a hit-layer move.
func (m *Map) PointerMove(featureID string, at orb.Point) error {
	if !m.pair.Has(featureID) {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, featureID)
	}
	m.hover.PointerMove(featureID, at)
	return nil
}

// PointerLeave forwards a hit-layer leave.
func (m *Map) PointerLeave(featureID string) error {
	if !m.pair.Has(featureID) {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, featureID)
	}
	m.hover.PointerLeave(featureID)
	return nil
}

// HoverState returns the hover state of a feature.
func (m *Map) HoverState(featureID string) hover.State {
	return m.hover.State(featureID)
}

// Layers returns the visible/hit layer pair.
func (m *Map) Layers() *maplayer.Pair {
	return m.pair
}

// Registry returns the view registry.
func (m *Map) Registry() *views.Registry {
	return m.registry
}

// StyleFor resolves the style of a feature under viewID, or the active view
// when viewID is empty.
func (m *Map) StyleFor(featureID, viewID string) (style.Style, error) {
	f, ok := m.pair.Feature(featureID)
	if !ok {
		return style.Style{}, fmt.Errorf("%w: %q", ErrUnknownFeature, featureID)
	}
	if viewID == "" {
		viewID = m.CurrentView()
	}
	return m.resolver.StyleFor(viewID, f), nil
}
