package service

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-roadrisk/internal/db"
)

// SampleName selects the built-in sample segments.
const SampleName = "sample"

// DefaultGeometryColumn is the GeoParquet geometry column read by Load.
const DefaultGeometryColumn = "geometry"

//go:embed sample/segments.geojson
var sample []byte

// ErrSourceNotFound is returned when a named source does not exist.
var ErrSourceNotFound = errors.New("source not found")

// ErrInvalidSourceName is returned when a source name is not a plain file name.
var ErrInvalidSourceName = errors.New("invalid source name")

// Supported source file extensions and their types.
var extToType = map[string]string{
	".geojson":    "GeoJSON",
	".json":       "GeoJSON",
	".parquet":    "GeoParquet",
	".geoparquet": "GeoParquet",
}

// SourceService lists and loads road-segment sources.
type SourceService struct {
	sourcesDir string
	db         *sql.DB
	log        *slog.Logger
}

// NewSourceService creates a new source service. conn may be nil, in which
// case GeoParquet sources cannot be loaded.
func NewSourceService(dataDir string, conn *sql.DB, logger *slog.Logger) *SourceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceService{
		sourcesDir: filepath.Join(dataDir, "sources"),
		db:         conn,
		log:        logger,
	}
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}

// List returns all available source files.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileType, ok := extToType[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, SourceFile{
			Name:     entry.Name(),
			Size:     formatSize(info.Size()),
			FileType: fileType,
		})
	}
	return files, nil
}

// Resolve maps a source name to a path: absolute or relative paths that
// exist are used as-is, otherwise the name is looked up in the sources dir.
func (s *SourceService) Resolve(name string) (string, error) {
	if name == "" || name == SampleName {
		return SampleName, nil
	}
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	p := filepath.Join(s.sourcesDir, filepath.Base(name))
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	return p, nil
}

// ResolveName maps a bare file name to its path in the sources dir. Unlike
// Resolve it never reads outside that dir.
func (s *SourceService) ResolveName(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.IsAbs(name) ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSourceName, name)
	}
	p := filepath.Join(s.sourcesDir, name)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	return p, nil
}

// Load reads a source into a feature collection.
func (s *SourceService) Load(ctx context.Context, name string) (*geojson.FeatureCollection, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	if path == SampleName {
		return geojson.UnmarshalFeatureCollection(sample)
	}

	var fc *geojson.FeatureCollection
	switch extToType[strings.ToLower(filepath.Ext(path))] {
	case "GeoJSON":
		fc, err = s.loadGeoJSON(path)
	case "GeoParquet":
		fc, err = s.loadParquet(ctx, path, DefaultGeometryColumn)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", filepath.Base(path), err)
	}
	s.log.Info("loaded source", "path", path, "features", len(fc.Features))
	return fc, nil
}

func (s *SourceService) loadGeoJSON(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geojson.UnmarshalFeatureCollection(data)
}

// loadParquet reads a GeoParquet file through DuckDB. The geometry column is
// converted to WKB and every other column becomes a feature property.
func (s *SourceService) loadParquet(ctx context.Context, path, geomCol string) (*geojson.FeatureCollection, error) {
	if s.db == nil {
		return nil, errors.New("database not available")
	}
	const wkbCol = "__wkb"
	query := fmt.Sprintf("SELECT ST_AsWKB(%s) AS %s, * EXCLUDE (%s) FROM read_parquet(%s)",
		db.QuoteIdent(geomCol), wkbCol, db.QuoteIdent(geomCol), db.Quote(path))

	columns, rows, err := db.Query(ctx, s.db, query)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for i, row := range rows {
		f := &geojson.Feature{Type: "Feature", Properties: geojson.Properties{}}
		if raw, ok := row[wkbCol].([]byte); ok && raw != nil {
			g, err := wkb.Unmarshal(raw)
			if err != nil {
				s.log.Warn("skipping bad geometry", "row", i, "error", err)
				continue
			}
			f.Geometry = g
		}
		for _, col := range columns {
			if col != wkbCol {
				f.Properties[col] = row[col]
			}
		}
		fc.Append(f)
	}
	return fc, nil
}

// Describe returns the attribute columns of a GeoParquet source.
func (s *SourceService) Describe(ctx context.Context, name string) ([]Column, error) {
	path, err := s.ResolveName(name)
	if err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, errors.New("database not available")
	}
	if extToType[strings.ToLower(filepath.Ext(path))] != "GeoParquet" {
		return nil, errors.New("describe is only supported for GeoParquet sources")
	}

	_, rows, err := db.Query(ctx, s.db, "DESCRIBE SELECT * FROM read_parquet("+db.Quote(path)+")")
	if err != nil {
		return nil, err
	}
	cols := make([]Column, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, Column{Name: fmt.Sprint(row["column_name"]), Type: fmt.Sprint(row["column_type"])})
	}
	return cols, nil
}
