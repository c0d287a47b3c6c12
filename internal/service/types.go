// Package service loads road-segment sources and carries the session event bus.
package service

// SourceFile represents a source data file (GeoJSON, GeoParquet).
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"segments.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type: GeoJSON or GeoParquet" example:"GeoJSON"`
}

// Column is one attribute column of a source.
type Column struct {
	Name string `json:"name" doc:"Column name" example:"risk_class"`
	Type string `json:"type" doc:"Column type" example:"DOUBLE"`
}

// TileFile is an exported PMTiles archive.
type TileFile struct {
	Name string `json:"name" doc:"File name" example:"risk.pmtiles"`
	View string `json:"view" doc:"View the tiles are styled for" example:"risk"`
	Size string `json:"size" doc:"Human-readable file size" example:"340.2 KB"`
	URL  string `json:"url" doc:"Archive URL (supports range requests)" example:"/tiles/risk.pmtiles"`
}
