// Package api defines the Huma API routes and handlers for the risk map.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-roadrisk/internal/classify"
	"github.com/joeblew999/plat-roadrisk/internal/humastar"
	"github.com/joeblew999/plat-roadrisk/internal/live"
	"github.com/joeblew999/plat-roadrisk/internal/riskmap"
	"github.com/joeblew999/plat-roadrisk/internal/service"
	"github.com/joeblew999/plat-roadrisk/internal/style"
	"github.com/joeblew999/plat-roadrisk/internal/tiles"
	"github.com/joeblew999/plat-roadrisk/internal/viewport"
	"github.com/joeblew999/plat-roadrisk/internal/views"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Services holds the dependencies for API handlers.
type Services struct {
	Map     *riskmap.Map
	Host    *live.Host
	Sources *service.SourceService
	Bus     *service.EventBus
	Tiles   *tiles.Cutter
	// Archives lists exported PMTiles files; nil disables the listing.
	Archives *service.TileService
	// Source is the name of the loaded segment source.
	Source string
	DB     bool
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Segment ID" example:"1001"`
}

type ViewQuery struct {
	View string `query:"view" doc:"View ID (defaults to the active view)" example:"rain"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

// ViewBody describes one analytical view.
type ViewBody struct {
	ID        string          `json:"id" doc:"View ID" example:"risk"`
	Title     string          `json:"title" doc:"Legend title" example:"Crash Risk Level"`
	Subtitle  string          `json:"subtitle,omitempty" doc:"Legend subtitle"`
	Attribute string          `json:"attribute" doc:"Feature attribute the view classifies" example:"risk_class"`
	Active    bool            `json:"active" doc:"Whether this is the active view"`
	Legend    []classify.Band `json:"legend" doc:"Legend entries in display order"`
}

// Actions offers activation for inactive views.
func (v ViewBody) Actions() []humastar.Action {
	if v.Active {
		return nil
	}
	return []humastar.Action{{Rel: "activate", Href: "/api/v1/view", Method: "PUT", Title: "Show " + v.Title}}
}

type ActiveViewBody struct {
	ID string `json:"id" doc:"Active view ID" example:"risk"`
}

// SegmentBody is one segment as styled by a view.
type SegmentBody struct {
	ID     string      `json:"id" doc:"Segment ID" example:"1001"`
	Street string      `json:"street,omitempty" doc:"English street name" example:"NATHAN ROAD"`
	View   string      `json:"view" doc:"View the style was resolved for" example:"risk"`
	Label  string      `json:"label" doc:"Legend label of the segment's band" example:"High Risk"`
	Style  style.Style `json:"style" doc:"Visible path style"`
}

type SegmentsInput struct {
	ViewQuery
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Page offset"`
	Limit  int `query:"limit" minimum:"1" maximum:"1000" default:"100" doc:"Page size"`
}

type PopupBody struct {
	ID   string `json:"id" doc:"Segment ID"`
	HTML string `json:"html" doc:"Popup content"`
}

type PointerBody struct {
	Lon float64 `json:"lon" minimum:"-180" maximum:"180" doc:"Pointer longitude" example:"114.17"`
	Lat float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Pointer latitude" example:"22.30"`
}

type HoverBody struct {
	ID    string `json:"id" doc:"Segment ID"`
	State string `json:"state" enum:"idle,pending,shown" doc:"Hover state after the event"`
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type TileInput struct {
	Z int `path:"z" minimum:"0" maximum:"20" doc:"Zoom level" example:"14"`
	X int `path:"x" minimum:"0" doc:"Tile column" example:"13387"`
	Y int `path:"y" minimum:"0" doc:"Tile row" example:"7147"`
	ViewQuery
}

// TileOutput is a gzipped Mapbox vector tile, or 204 when the tile is empty.
type TileOutput struct {
	Status          int
	ContentType     string `header:"Content-Type"`
	ContentEncoding string `header:"Content-Encoding"`
	Body            []byte
}

// APIHandler holds the REST handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterViews registers view catalogue and switching routes.
func (h *APIHandler) RegisterViews(api huma.API) {
	huma.Get(api, "/api/v1/views", h.GetViews, huma.OperationTags("views"))
	huma.Get(api, "/api/v1/views/{id}", h.GetView, huma.OperationTags("views"))
	huma.Get(api, "/api/v1/view", h.GetActiveView, huma.OperationTags("views"))
	huma.Put(api, "/api/v1/view", h.PutActiveView, huma.OperationTags("views"))
}

// RegisterSegments registers per-segment routes.
func (h *APIHandler) RegisterSegments(api huma.API) {
	huma.Get(api, "/api/v1/segments", h.GetSegments, huma.OperationTags("segments"))
	huma.Get(api, "/api/v1/segments/{id}", h.GetSegment, huma.OperationTags("segments"))
	huma.Get(api, "/api/v1/segments/{id}/popup", h.GetPopup, huma.OperationTags("segments"))
}

// RegisterLayers registers the GeoJSON layer exports.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers/visible", h.GetVisibleLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/hit", h.GetHitLayer, huma.OperationTags("layers"))
}

// RegisterTiles registers the vector tile endpoint.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetArchives, huma.OperationTags("tiles"))
	huma.Get(api, "/api/v1/tiles/{z}/{x}/{y}", h.GetTile, huma.OperationTags("tiles"))
}

// RegisterHover registers the hit-layer pointer events.
func (h *APIHandler) RegisterHover(api huma.API) {
	huma.Post(api, "/api/v1/segments/{id}/hover/enter", h.PointerEnter, huma.OperationTags("hover"))
	huma.Post(api, "/api/v1/segments/{id}/hover/move", h.PointerMove, huma.OperationTags("hover"))
	huma.Post(api, "/api/v1/segments/{id}/hover/leave", h.PointerLeave, huma.OperationTags("hover"))
}

// RegisterViewport registers viewport routes.
func (h *APIHandler) RegisterViewport(api huma.API) {
	huma.Get(api, "/api/v1/viewport", h.GetViewport, huma.OperationTags("viewport"))
	huma.Put(api, "/api/v1/viewport", h.PutViewport, huma.OperationTags("viewport"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
	huma.Get(api, "/api/v1/sources/{name}/columns", h.GetColumns, huma.OperationTags("sources"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) viewBody(v *views.View) ViewBody {
	return ViewBody{
		ID:        v.ID,
		Title:     v.Title,
		Subtitle:  v.Subtitle,
		Attribute: v.Attribute,
		Active:    v.ID == h.svc.Map.CurrentView(),
		Legend:    v.Legend(),
	}
}

func (h *APIHandler) GetViews(ctx context.Context, input *struct{}) (*struct{ Body []ViewBody }, error) {
	vs := h.svc.Map.Registry().Views()
	out := make([]ViewBody, 0, len(vs))
	for _, v := range vs {
		out = append(out, h.viewBody(v))
	}
	return &struct{ Body []ViewBody }{Body: out}, nil
}

func (h *APIHandler) GetView(ctx context.Context, input *struct {
	ID string `path:"id" doc:"View ID" example:"rain"`
}) (*struct{ Body ViewBody }, error) {
	v, ok := h.svc.Map.Registry().Lookup(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("view not found: " + input.ID)
	}
	return &struct{ Body ViewBody }{Body: h.viewBody(v)}, nil
}

func (h *APIHandler) GetActiveView(ctx context.Context, input *struct{}) (*struct{ Body ActiveViewBody }, error) {
	return &struct{ Body ActiveViewBody }{Body: ActiveViewBody{ID: h.svc.Map.CurrentView()}}, nil
}

// PutActiveView switches the active view. The body is either {"id": ...}
// from API clients or the page's Datastar signals carrying "view".
func (h *APIHandler) PutActiveView(ctx context.Context, input *humastar.SignalsInput) (*struct{ Body ActiveViewBody }, error) {
	signals, err := input.Parse()
	if err != nil {
		return nil, err
	}
	id := signals.String("id")
	if id == "" {
		id = signals.String("view")
	}
	if id == "" {
		return nil, huma.Error400BadRequest("view id is required")
	}
	if !h.svc.Map.SetView(id) {
		return nil, huma.Error404NotFound("view not found: " + id)
	}
	return &struct{ Body ActiveViewBody }{Body: ActiveViewBody{ID: h.svc.Map.CurrentView()}}, nil
}

func (h *APIHandler) resolveView(id string) (*views.View, error) {
	if id == "" {
		id = h.svc.Map.CurrentView()
	}
	v, ok := h.svc.Map.Registry().Lookup(id)
	if !ok {
		return nil, huma.Error404NotFound("view not found: " + id)
	}
	return v, nil
}

func (h *APIHandler) segment(id string, v *views.View) (SegmentBody, error) {
	f, ok := h.svc.Map.Layers().Feature(id)
	if !ok {
		return SegmentBody{}, huma.Error404NotFound("segment not found: " + id)
	}
	s, err := h.svc.Map.StyleFor(id, v.ID)
	if err != nil {
		return SegmentBody{}, huma.Error404NotFound(err.Error())
	}
	return SegmentBody{
		ID:     id,
		Street: views.String(f.Properties, "STREET_ENAME", ""),
		View:   v.ID,
		Label:  v.Band(f).Label,
		Style:  s,
	}, nil
}

func (h *APIHandler) GetSegments(ctx context.Context, input *SegmentsInput) (*struct {
	Body humastar.PageBody[SegmentBody]
}, error) {
	v, err := h.resolveView(input.View)
	if err != nil {
		return nil, err
	}
	ids := h.svc.Map.Layers().IDs()
	page := humastar.Page(ids, input.Offset, input.Limit)

	out := humastar.PageBody[SegmentBody]{Total: page.Total, Offset: page.Offset, Limit: page.Limit, Data: make([]SegmentBody, 0, len(page.Data))}
	for _, id := range page.Data {
		seg, err := h.segment(id, v)
		if err != nil {
			return nil, err
		}
		out.Data = append(out.Data, seg)
	}
	return &struct {
		Body humastar.PageBody[SegmentBody]
	}{Body: out}, nil
}

func (h *APIHandler) GetSegment(ctx context.Context, input *struct {
	IDInput
	ViewQuery
}) (*struct{ Body SegmentBody }, error) {
	v, err := h.resolveView(input.View)
	if err != nil {
		return nil, err
	}
	seg, err := h.segment(input.ID, v)
	if err != nil {
		return nil, err
	}
	return &struct{ Body SegmentBody }{Body: seg}, nil
}

func (h *APIHandler) GetPopup(ctx context.Context, input *IDInput) (*struct{ Body PopupBody }, error) {
	html, ok := h.svc.Map.Layers().Popup(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("segment not found: " + input.ID)
	}
	return &struct{ Body PopupBody }{Body: PopupBody{ID: input.ID, HTML: html}}, nil
}

func geoJSON(fc *geojson.FeatureCollection) (*GeoJSONOutput, error) {
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding layer", err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: data}, nil
}

func (h *APIHandler) GetVisibleLayer(ctx context.Context, input *struct{}) (*GeoJSONOutput, error) {
	return geoJSON(h.svc.Map.Layers().VisibleGeoJSON())
}

func (h *APIHandler) GetHitLayer(ctx context.Context, input *struct{}) (*GeoJSONOutput, error) {
	return geoJSON(h.svc.Map.Layers().HitGeoJSON())
}

func (h *APIHandler) GetArchives(ctx context.Context, input *struct{}) (*struct{ Body []service.TileFile }, error) {
	if h.svc.Archives == nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	files, err := h.svc.Archives.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("listing tile archives", err)
	}
	return &struct{ Body []service.TileFile }{Body: files}, nil
}

// GetTile cuts one tile of the visible layer styled for the requested view.
func (h *APIHandler) GetTile(ctx context.Context, input *TileInput) (*TileOutput, error) {
	if h.svc.Tiles == nil {
		return nil, huma.Error503ServiceUnavailable("tiles not available")
	}
	if n := 1 << input.Z; input.X >= n || input.Y >= n {
		return nil, huma.Error400BadRequest("tile outside zoom level")
	}
	v, err := h.resolveView(input.View)
	if err != nil {
		return nil, err
	}
	t := maptile.New(uint32(input.X), uint32(input.Y), maptile.Zoom(input.Z))
	data, err := h.svc.Tiles.Tile(h.svc.Map.Layers().ViewGeoJSON(v.ID), t)
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding tile", err)
	}
	if data == nil {
		return &TileOutput{Status: 204}, nil
	}
	return &TileOutput{Status: 200, ContentType: tiles.ContentType, ContentEncoding: "gzip", Body: data}, nil
}

func (h *APIHandler) hoverResult(id string, err error) (*struct{ Body HoverBody }, error) {
	if errors.Is(err, riskmap.ErrUnknownFeature) {
		return nil, huma.Error404NotFound("segment not found: " + id)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("hover failed", err)
	}
	return &struct{ Body HoverBody }{Body: HoverBody{ID: id, State: h.svc.Map.HoverState(id).String()}}, nil
}

func (h *APIHandler) PointerEnter(ctx context.Context, input *struct {
	IDInput
	Body PointerBody
}) (*struct{ Body HoverBody }, error) {
	return h.hoverResult(input.ID, h.svc.Map.PointerEnter(input.ID, orb.Point{input.Body.Lon, input.Body.Lat}))
}

func (h *APIHandler) PointerMove(ctx context.Context, input *struct {
	IDInput
	Body PointerBody
}) (*struct{ Body HoverBody }, error) {
	return h.hoverResult(input.ID, h.svc.Map.PointerMove(input.ID, orb.Point{input.Body.Lon, input.Body.Lat}))
}

func (h *APIHandler) PointerLeave(ctx context.Context, input *IDInput) (*struct{ Body HoverBody }, error) {
	return h.hoverResult(input.ID, h.svc.Map.PointerLeave(input.ID))
}

func (h *APIHandler) GetViewport(ctx context.Context, input *struct{}) (*struct{ Body viewport.State }, error) {
	return &struct{ Body viewport.State }{Body: h.svc.Host.Viewport().State()}, nil
}

func (h *APIHandler) PutViewport(ctx context.Context, input *struct{ Body viewport.State }) (*struct{ Body viewport.State }, error) {
	return &struct{ Body viewport.State }{Body: h.svc.Host.SetViewport(input.Body)}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc.Sources == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Sources.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("listing sources", err)
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

func (h *APIHandler) GetColumns(ctx context.Context, input *struct {
	Name string `path:"name" doc:"Source file name" example:"segments.parquet"`
}) (*struct{ Body []service.Column }, error) {
	if h.svc.Sources == nil {
		return nil, huma.Error503ServiceUnavailable("sources not available")
	}
	cols, err := h.svc.Sources.Describe(ctx, input.Name)
	if errors.Is(err, service.ErrSourceNotFound) {
		return nil, huma.Error404NotFound(err.Error())
	}
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body []service.Column }{Body: cols}, nil
}
