// Package viewswitch owns the active view state and fans a switch out to the
// visible layer, the legend and the view-button indicator.
package viewswitch

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/joeblew999/plat-roadrisk/internal/classify"
	"github.com/joeblew999/plat-roadrisk/internal/views"
)

var (
	switches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roadrisk_view_switches_total",
		Help: "Accepted view switches by view id",
	}, []string{"view"})
	rejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roadrisk_view_switches_rejected_total",
		Help: "View switches rejected because the id is unknown",
	})
)

// Restyler re-applies a view's styles to the visible layer.
type Restyler interface {
	Restyle(viewID string)
}

// Legend renders the legend for a view.
type Legend interface {
	ShowLegend(title, subtitle string, items []classify.Band)
}

// Indicator marks the active view in the UI.
type Indicator interface {
	SetActive(viewID string)
}

// Controller holds the single active view id.
type Controller struct {
	mu        sync.RWMutex
	current   string
	registry  *views.Registry
	layer     Restyler
	legend    Legend
	indicator Indicator
	log       *slog.Logger
}

// New creates a controller. legend and indicator may be nil.
func New(registry *views.Registry, layer Restyler, legend Legend, indicator Indicator, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		registry:  registry,
		layer:     layer,
		legend:    legend,
		indicator: indicator,
		log:       logger,
	}
}

// Init selects the startup view. Unlike SetView an unknown id is an error:
// it is a configuration mistake, not a user action.
func (c *Controller) Init(viewID string) error {
	if !c.registry.Has(viewID) {
		return fmt.Errorf("%w: initial view %q (known: %v)", views.ErrUnknownView, viewID, c.registry.Sorted())
	}
	c.SetView(viewID)
	return nil
}

// SetView switches the active view. Unknown ids are logged and ignored; the
// return value reports whether the switch happened.
func (c *Controller) SetView(viewID string) bool {
	v, ok := c.registry.Lookup(viewID)
	if !ok {
		rejected.Inc()
		c.log.Warn("rejected unknown view", "view", viewID, "current", c.Current())
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = viewID
	if c.layer != nil {
		c.layer.Restyle(viewID)
	}
	if c.legend != nil {
		c.legend.ShowLegend(v.Title, v.Subtitle, v.Legend())
	}
	if c.indicator != nil {
		c.indicator.SetActive(viewID)
	}
	switches.WithLabelValues(viewID).Inc()
	c.log.Info("view switched", "view", viewID)
	return true
}

// Current returns the active view id ("" before Init).
func (c *Controller) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}
