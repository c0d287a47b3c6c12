package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	svc     *Services
	dataDir string
}

func NewInfoHandler(svc *Services, dataDir string) *InfoHandler {
	return &InfoHandler{svc: svc, dataDir: dataDir}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	Source   string   `json:"source" doc:"Loaded segment source"`
	Segments int      `json:"segments" doc:"Number of rendered segments"`
	Views    []string `json:"views" doc:"Available view IDs in display order"`
	View     string   `json:"view" doc:"Active view ID"`
	DB       bool     `json:"db" doc:"Whether DuckDB is available for GeoParquet sources"`
	Clients  int      `json:"clients" doc:"Connected live pages"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:     "plat-roadrisk",
		Version:  Version,
		DataDir:  h.dataDir,
		Source:   h.svc.Source,
		Segments: h.svc.Map.Layers().Len(),
		Views:    h.svc.Map.Registry().IDs(),
		View:     h.svc.Map.CurrentView(),
		DB:       h.svc.DB,
	}
	if h.svc.Bus != nil {
		body.Clients = h.svc.Bus.Subscribers()
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
