package api

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-roadrisk/internal/humastar"
	"github.com/joeblew999/plat-roadrisk/internal/live"
	"github.com/joeblew999/plat-roadrisk/internal/service"
	"github.com/joeblew999/plat-roadrisk/internal/viewport"
)

// LiveTag marks the streaming operations, which carry no links.
const LiveTag = "live"

// LiveHandler streams map session events to the page via Datastar SSE.
type LiveHandler struct {
	humastar.Handler
	svc *Services
	log *slog.Logger
}

// NewLiveHandler creates a new live handler.
func NewLiveHandler(svc *Services, logger *slog.Logger) *LiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveHandler{svc: svc, log: logger}
}

func (h *LiveHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/live", h.Live,
		huma.OperationTags(LiveTag),
	)
}

// Live sends the current legend, view bar and viewport, then relays bus
// events until the page disconnects.
func (h *LiveHandler) Live(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		ch := h.svc.Bus.Subscribe()
		defer h.svc.Bus.Unsubscribe(ch)

		sse.Patch(h.svc.Host.Legend(), "#legend")
		sse.Patch(h.svc.Host.ViewButtons(), "#view-buttons")
		state := h.svc.Host.Viewport().State()
		sse.Signals(viewportSignals(state, h.svc.Map.CurrentView()))
		sse.Dispatch("fit", state)
		for _, p := range h.svc.Host.Popups() {
			sse.Dispatch("popup-opened", p)
		}

		done := sse.Context().Done()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := h.relay(sse, ev); err != nil {
					h.log.Debug("live client gone", "error", err)
					return
				}
			}
		}
	}), nil
}

func (h *LiveHandler) relay(sse humastar.SSE, ev service.Event) error {
	switch p := ev.Payload.(type) {
	case live.Fragment:
		if err := sse.Patch(p.HTML, p.Selector); err != nil {
			return err
		}
		if ev.Resource == live.ResourceView {
			return sse.Signals(map[string]any{"view": ev.ID})
		}
		return nil
	case live.Popup:
		return sse.Dispatch("popup-"+ev.Action, p)
	case live.Restyle:
		return sse.Dispatch("restyle", p)
	case viewport.State:
		if ev.Action == "fitted" {
			if err := sse.Dispatch("fit", p); err != nil {
				return err
			}
		}
		return sse.Signals(viewportSignals(p, ""))
	}
	return nil
}

func viewportSignals(s viewport.State, view string) map[string]any {
	signals := map[string]any{"lon": s.Lon, "lat": s.Lat, "zoom": s.Zoom}
	if view != "" {
		signals["view"] = view
	}
	return signals
}
