package aoi

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// convertible lists the extensions ConvertTree turns into GeoJSON.
var convertible = map[string]bool{
	".kml": true,
	".shp": true,
}

// ConvertTree converts every KML and shapefile found in base and in its
// immediate sub-directories into a flattened <name>.geojson next to the
// source. It returns the written paths.
func ConvertTree(base string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dirs := []string{base}
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", base, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(base, e.Name()))
		}
	}

	var written []string
	for _, dir := range dirs {
		files, err := os.ReadDir(dir)
		if err != nil {
			return written, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		for _, f := range files {
			ext := strings.ToLower(filepath.Ext(f.Name()))
			if f.IsDir() || !convertible[ext] {
				continue
			}

			src := filepath.Join(dir, f.Name())
			dst := filepath.Join(dir, BaseName(src)+".geojson")

			polygons, err := Read(src)
			if err != nil {
				return written, err
			}
			if err := WriteGeoJSON(polygons, dst); err != nil {
				return written, err
			}

			logger.Info("converted polygon source",
				slog.String("source", src),
				slog.String("output", dst),
				slog.Int("polygons", len(polygons)),
			)
			written = append(written, dst)
		}
	}

	return written, nil
}
