package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-roadrisk/internal/server"
	"github.com/joeblew999/plat-roadrisk/internal/service"
	"github.com/joeblew999/plat-roadrisk/internal/tiles"
	"github.com/joeblew999/plat-roadrisk/internal/views"
)

// Options defines all CLI flags and env vars for the risk map server.
// Flags: --host, --port, --data-dir, --web-dir, --source, --views, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_SOURCE, ...
type Options struct {
	Host         string  `doc:"Host to bind to" default:"0.0.0.0"`
	Port         int     `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir      string  `doc:"Directory for sources and the DuckDB file" default:".data"`
	WebDir       string  `doc:"Optional web/ directory overriding the built-in page" default:""`
	Source       string  `doc:"Segment source (GeoJSON or GeoParquet under data-dir/sources, or a path); empty loads the sample" default:""`
	Views        string  `doc:"Optional YAML view table replacing the built-in one" default:""`
	DefaultView  string  `doc:"View shown at startup (defaults to the table's default)" default:""`
	HoverDelay   int     `doc:"Hover debounce in milliseconds" default:"50"`
	PopupPadding float64 `doc:"Popup inset from the map edge in pixels" default:"40"`
	NoDB         bool    `doc:"Do not open DuckDB (GeoParquet sources unavailable)" default:"false"`
	LogLevel     string  `doc:"Log level: debug, info, warn, error" default:"info"`
	LogFormat    string  `doc:"Log format: text or json" default:"text"`
}

func newLogger(opts *Options) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(opts.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	return slog.New(handler)
}

func newServer(opts *Options, logger *slog.Logger) (*server.Server, error) {
	return server.New(context.Background(), server.Config{
		Host:         opts.Host,
		Port:         strconv.Itoa(opts.Port),
		DataDir:      opts.DataDir,
		WebDir:       opts.WebDir,
		Source:       opts.Source,
		ViewsFile:    opts.Views,
		DefaultView:  opts.DefaultView,
		HoverDelay:   time.Duration(opts.HoverDelay) * time.Millisecond,
		PopupPadding: opts.PopupPadding,
		NoDB:         opts.NoDB,
		Logger:       logger,
	})
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		logger := newLogger(opts)
		slog.SetDefault(logger)

		var srv *server.Server

		hooks.OnStart(func() {
			var err error
			srv, err = newServer(opts, logger)
			if err != nil {
				fatal(logger, "startup failed", err)
			}

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-roadrisk server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Printf("  View:    %s (%d segments)\n", srv.Map().CurrentView(), srv.Map().Layers().Len())
			fmt.Println()
			fmt.Printf("  Map:     %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			if err := srv.ListenAndServe(); err != nil {
				fatal(logger, "server error", err)
			}
		})

		hooks.OnStop(func() {
			if srv == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("shutdown", "error", err)
			}
		})
	})

	cli.Root().Use = "roadrisk"
	cli.Root().Short = "Road-segment risk map server"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.NoDB = true
			logger := newLogger(opts)
			srv, err := newServer(opts, logger)
			if err != nil {
				fatal(logger, "building server", err)
			}
			defer srv.Close()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(srv.OpenAPI())
			} else {
				output, err = json.MarshalIndent(srv.OpenAPI(), "", "  ")
			}
			if err != nil {
				fatal(logger, "marshaling spec", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// views subcommand: print the effective view table
	cli.Root().AddCommand(&cobra.Command{
		Use:   "views",
		Short: "Print the effective view table as YAML",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := newLogger(opts)
			reg, err := views.Load(opts.Views)
			if err != nil {
				fatal(logger, "loading views", err)
			}
			out, err := yaml.Marshal(reg.Table())
			if err != nil {
				fatal(logger, "marshaling views", err)
			}
			fmt.Print(string(out))
		}),
	})

	// classify subcommand: colour one attribute value under a view
	cli.Root().AddCommand(&cobra.Command{
		Use:   "classify <view> <value>",
		Short: "Classify one attribute value under a view",
		Args:  cobra.ExactArgs(2),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := newLogger(opts)
			reg, err := views.Load(opts.Views)
			if err != nil {
				fatal(logger, "loading views", err)
			}
			v, ok := reg.Lookup(args[0])
			if !ok {
				fatal(logger, "classify", fmt.Errorf("%w: %q (known: %s)", views.ErrUnknownView, args[0], strings.Join(reg.IDs(), ", ")))
			}
			f := geojson.NewFeature(nil)
			f.Properties[v.Attribute] = args[1]
			band := v.Band(f)
			fmt.Printf("%s\t%s\t%s\n", v.ID, band.Color, band.Label)
		}),
	})

	// tiles subcommand: export a view's styled segments as a PMTiles archive
	tilesCmd := &cobra.Command{
		Use:   "tiles",
		Short: "Export the styled segments of a view as a PMTiles archive",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := newLogger(opts)
			srv, err := newServer(opts, logger)
			if err != nil {
				fatal(logger, "building server", err)
			}
			defer srv.Close()

			view, _ := cmd.Flags().GetString("view")
			if view == "" {
				view = srv.Map().CurrentView()
			}
			if _, ok := srv.Map().Registry().Lookup(view); !ok {
				fatal(logger, "tiles", fmt.Errorf("%w: %q", views.ErrUnknownView, view))
			}
			minZoom, _ := cmd.Flags().GetUint32("min-zoom")
			maxZoom, _ := cmd.Flags().GetUint32("max-zoom")
			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				out = service.NewTileService(opts.DataDir).PathFor(view)
			}
			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				fatal(logger, "creating tiles directory", err)
			}

			f, err := os.Create(out)
			if err != nil {
				fatal(logger, "creating archive", err)
			}
			n, err := tiles.NewCutter(tiles.DefaultLayer, logger).Export(context.Background(), f, srv.Map().Layers().ViewGeoJSON(view), tiles.ExportOptions{
				Name:    "roadrisk-" + view,
				View:    view,
				MinZoom: maptile.Zoom(minZoom),
				MaxZoom: maptile.Zoom(maxZoom),
			})
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(out)
				fatal(logger, "exporting tiles", err)
			}
			fmt.Printf("%s\t%d tiles\n", out, n)
		}),
	}
	tilesCmd.Flags().String("view", "", "View to style the tiles with (defaults to the startup view)")
	tilesCmd.Flags().Uint32("min-zoom", tiles.DefaultMinZoom, "Minimum zoom level")
	tilesCmd.Flags().Uint32("max-zoom", tiles.DefaultMaxZoom, "Maximum zoom level")
	tilesCmd.Flags().StringP("output", "o", "", "Output file (defaults to data-dir/tiles/<view>.pmtiles)")
	cli.Root().AddCommand(tilesCmd)

	cli.Run()
}
