// Package server wires the risk map session behind a Huma API, a Datastar
// live stream and the map page.
package server

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joeblew999/plat-roadrisk/internal/api"
	"github.com/joeblew999/plat-roadrisk/internal/db"
	"github.com/joeblew999/plat-roadrisk/internal/hover"
	"github.com/joeblew999/plat-roadrisk/internal/humastar"
	"github.com/joeblew999/plat-roadrisk/internal/live"
	"github.com/joeblew999/plat-roadrisk/internal/popup"
	"github.com/joeblew999/plat-roadrisk/internal/riskmap"
	"github.com/joeblew999/plat-roadrisk/internal/service"
	"github.com/joeblew999/plat-roadrisk/internal/templates"
	"github.com/joeblew999/plat-roadrisk/internal/tiles"
	"github.com/joeblew999/plat-roadrisk/internal/viewport"
	"github.com/joeblew999/plat-roadrisk/internal/views"
)

//go:embed web
var web embed.FS

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // optional override for the embedded page, static files and fragments

	Source       string // segment source; empty loads the built-in sample
	ViewsFile    string // optional view table; empty uses the built-in table
	DefaultView  string // overrides the table default when set
	HoverDelay   time.Duration
	PopupPadding float64
	NoDB         bool

	Logger *slog.Logger
	Clock  hover.Clock
}

// Server is the risk map HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	log      *slog.Logger
	http     *http.Server
}

// New loads the views and segments and builds the map session. Any
// configuration error (bad view table, missing source, unknown default
// view) fails here rather than at first request.
func New(ctx context.Context, cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	registry, err := views.Load(cfg.ViewsFile)
	if err != nil {
		return nil, fmt.Errorf("loading views: %w", err)
	}

	renderer, err := newRenderer(cfg.WebDir, log)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		log:    log,
	}

	if !cfg.NoDB {
		conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "roadrisk"})
		if err != nil {
			log.Warn("duckdb unavailable, GeoParquet sources disabled", "error", err)
		} else {
			s.db = conn
		}
	}

	sources := service.NewSourceService(cfg.DataDir, s.db, log)
	fc, err := sources.Load(ctx, cfg.Source)
	if err != nil {
		s.Close()
		return nil, err
	}

	bus := service.NewEventBus()
	host := live.New(viewport.New(viewport.DefaultConfig()), renderer, registry, bus, log)
	popups := popup.NewFormatter(renderer, registry, log)

	m, err := riskmap.New(fc, registry, host, riskmap.Options{
		DefaultView:  cfg.DefaultView,
		HoverDelay:   cfg.HoverDelay,
		PopupPadding: cfg.PopupPadding,
		Popup:        popups.Format,
		Clock:        cfg.Clock,
		Logger:       log,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	source := cfg.Source
	if source == "" {
		source = service.SampleName
	}
	s.services = &api.Services{
		Map:     m,
		Host:    host,
		Sources: sources,
		Bus:     bus,
		Tiles:   tiles.NewCutter(tiles.DefaultLayer, log),
		Source:  source,
		DB:      s.db != nil,
	}
	s.services.Archives = service.NewTileService(cfg.DataDir)

	linker := humastar.NewLinker("/health")
	humaConfig := huma.DefaultConfig("plat-roadrisk API", api.Version)
	humaConfig.Info.Description = "Road-segment risk map: analytical views, segment styles, hover popups and a live Datastar stream."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, linker.Transformer())
	s.humaAPI = humago.New(s.mux, humaConfig)

	s.routes()
	linker.Build(s.humaAPI, api.LiveTag)
	return s, nil
}

// newRenderer prefers WebDir/templates/fragments when present.
func newRenderer(webDir string, log *slog.Logger) (*templates.Renderer, error) {
	if webDir != "" {
		dir := filepath.Join(webDir, "templates", "fragments")
		if _, err := os.Stat(dir); err == nil {
			log.Info("loaded fragment templates", "dir", dir)
			return templates.New(dir)
		}
	}
	return templates.Default()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Map returns the map session.
func (s *Server) Map() *riskmap.Map {
	return s.services.Map
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and closes the database.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	return errors.Join(err, s.Close())
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return db.Close()
}

func (s *Server) routes() {
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.services, s.config.DataDir).RegisterRoutes(s.humaAPI)

	api.NewLiveHandler(s.services, s.log).RegisterRoutes(s.humaAPI)

	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.staticFS()))))
	// PMTiles clients read archives with range requests, which FileServer honours
	s.mux.Handle("/tiles/", http.StripPrefix("/tiles/", http.FileServer(http.Dir(s.services.Archives.TilesDir()))))
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) staticFS() fs.FS {
	if s.config.WebDir != "" {
		dir := filepath.Join(s.config.WebDir, "static")
		if _, err := os.Stat(dir); err == nil {
			return os.DirFS(dir)
		}
	}
	sub, _ := fs.Sub(web, "web/static")
	return sub
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/viewer", http.StatusFound)
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	if s.config.WebDir != "" {
		p := filepath.Join(s.config.WebDir, "templates", "viewer.html")
		if _, err := os.Stat(p); err == nil {
			http.ServeFile(w, r, p)
			return
		}
	}
	page, err := web.ReadFile("web/viewer.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}
