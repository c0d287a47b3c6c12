// Package live is the browser-facing map host. It owns the server-side
// viewport and turns controller callbacks (popups, legend, view indicator,
// restyles) into events on the session bus, which the SSE endpoint relays
// to every connected page.
package live

import (
	"log/slog"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-roadrisk/internal/classify"
	"github.com/joeblew999/plat-roadrisk/internal/service"
	"github.com/joeblew999/plat-roadrisk/internal/style"
	"github.com/joeblew999/plat-roadrisk/internal/templates"
	"github.com/joeblew999/plat-roadrisk/internal/viewport"
	"github.com/joeblew999/plat-roadrisk/internal/views"
)

// Event resources published on the bus.
const (
	ResourcePopup    = "popup"
	ResourceLegend   = "legend"
	ResourceView     = "view"
	ResourceStyles   = "styles"
	ResourceViewport = "viewport"
)

// Popup is the payload of popup events. HTML is empty on close.
type Popup struct {
	FeatureID string  `json:"featureId"`
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
	HTML      string  `json:"html,omitempty"`
}

// Fragment is an HTML fragment for a page element.
type Fragment struct {
	Selector string
	HTML     string
}

// Restyle is the payload of a styles event.
type Restyle struct {
	View   string                 `json:"view"`
	Styles map[string]style.Style `json:"styles"`
}

// Host is safe for concurrent use.
type Host struct {
	viewport *viewport.Viewport
	renderer *templates.Renderer
	registry *views.Registry
	bus      *service.EventBus
	log      *slog.Logger

	mu     sync.RWMutex
	open   map[string]Popup
	legend string
	active string
}

// New creates a host over vp publishing to bus.
func New(vp *viewport.Viewport, renderer *templates.Renderer, registry *views.Registry, bus *service.EventBus, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		viewport: vp,
		renderer: renderer,
		registry: registry,
		bus:      bus,
		log:      logger,
		open:     make(map[string]Popup),
	}
}

// Viewport returns the host viewport.
func (h *Host) Viewport() *viewport.Viewport {
	return h.viewport
}

func (h *Host) ContainerSize() (float64, float64) { return h.viewport.ContainerSize() }
func (h *Host) GeoToScreen(p orb.Point) orb.Point { return h.viewport.GeoToScreen(p) }
func (h *Host) ScreenToGeo(p orb.Point) orb.Point { return h.viewport.ScreenToGeo(p) }

// FitBounds frames b and publishes the new viewport.
func (h *Host) FitBounds(b orb.Bound) {
	h.viewport.FitBounds(b)
	s := h.viewport.State()
	h.log.Info("fitted bounds", "lon", s.Lon, "lat", s.Lat, "zoom", s.Zoom)
	h.publish(service.Event{Resource: ResourceViewport, Action: "fitted", Payload: s})
}

// SetViewport moves the viewport on behalf of the page.
func (h *Host) SetViewport(s viewport.State) viewport.State {
	h.viewport.Set(s)
	s = h.viewport.State()
	h.publish(service.Event{Resource: ResourceViewport, Action: "updated", Payload: s})
	return s
}

// OpenPopup records and publishes an open popup.
func (h *Host) OpenPopup(featureID string, anchor orb.Point, content string) {
	p := Popup{FeatureID: featureID, Lon: anchor[0], Lat: anchor[1], HTML: content}
	h.mu.Lock()
	h.open[featureID] = p
	h.mu.Unlock()
	h.publish(service.Event{Resource: ResourcePopup, Action: "opened", ID: featureID, Payload: p})
}

// ClosePopup removes a popup.
func (h *Host) ClosePopup(featureID string) {
	h.mu.Lock()
	p, ok := h.open[featureID]
	delete(h.open, featureID)
	h.mu.Unlock()
	if !ok {
		p = Popup{FeatureID: featureID}
	}
	p.HTML = ""
	h.publish(service.Event{Resource: ResourcePopup, Action: "closed", ID: featureID, Payload: p})
}

// Popups returns the open popups.
func (h *Host) Popups() []Popup {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Popup, 0, len(h.open))
	for _, p := range h.open {
		out = append(out, p)
	}
	return out
}

// ShowLegend renders and publishes the legend.
func (h *Host) ShowLegend(title, subtitle string, items []classify.Band) {
	html, err := h.renderer.Render("legend", map[string]any{
		"Title":    title,
		"Subtitle": subtitle,
		"Items":    items,
	})
	if err != nil {
		h.log.Error("rendering legend", "title", title, "error", err)
		return
	}
	h.mu.Lock()
	h.legend = html
	h.mu.Unlock()
	h.publish(service.Event{Resource: ResourceLegend, Action: "updated", Payload: Fragment{Selector: "#legend", HTML: html}})
}

// SetActive renders the view buttons with viewID highlighted.
func (h *Host) SetActive(viewID string) {
	h.mu.Lock()
	h.active = viewID
	h.mu.Unlock()
	h.publish(service.Event{Resource: ResourceView, Action: "switched", ID: viewID, Payload: Fragment{Selector: "#view-buttons", HTML: h.ViewButtons()}})
}

// Restyled publishes the visible layer's new styles.
func (h *Host) Restyled(viewID string, styles map[string]style.Style) {
	h.publish(service.Event{Resource: ResourceStyles, Action: "updated", ID: viewID, Payload: Restyle{View: viewID, Styles: styles}})
}

// Legend returns the last rendered legend.
func (h *Host) Legend() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.legend
}

// Active returns the highlighted view id.
func (h *Host) Active() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

type button struct {
	ID    string
	Title string
}

// ViewButtons renders the view-button bar for the current active view.
func (h *Host) ViewButtons() string {
	vs := h.registry.Views()
	buttons := make([]button, 0, len(vs))
	for _, v := range vs {
		buttons = append(buttons, button{ID: v.ID, Title: v.Title})
	}
	html, err := h.renderer.Render("view-buttons", map[string]any{
		"Active": h.Active(),
		"Views":  buttons,
	})
	if err != nil {
		h.log.Error("rendering view buttons", "error", err)
		return ""
	}
	return html
}

func (h *Host) publish(e service.Event) {
	if h.bus != nil {
		h.bus.Publish(e)
	}
}
