package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ArchiveExt is the extension of exported tile archives.
const ArchiveExt = ".pmtiles"

// TileService manages exported PMTiles archives under data-dir/tiles.
type TileService struct {
	tilesDir string
}

// NewTileService creates a new tile service.
func NewTileService(dataDir string) *TileService {
	return &TileService{
		tilesDir: filepath.Join(dataDir, "tiles"),
	}
}

// TilesDir returns the path to the tiles directory.
func (s *TileService) TilesDir() string {
	return s.tilesDir
}

// PathFor is the default archive path of a view.
func (s *TileService) PathFor(view string) string {
	return filepath.Join(s.tilesDir, view+ArchiveExt)
}

// List returns the exported archives sorted by name.
func (s *TileService) List() ([]TileFile, error) {
	entries, err := os.ReadDir(s.tilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TileFile{}, nil
		}
		return nil, err
	}

	files := []TileFile{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ArchiveExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, TileFile{
			Name: entry.Name(),
			View: strings.TrimSuffix(entry.Name(), ArchiveExt),
			Size: formatSize(info.Size()),
			URL:  "/tiles/" + entry.Name(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
