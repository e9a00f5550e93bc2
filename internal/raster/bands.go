// Package raster derives vegetation indices from Sentinel-2 Level-2A bands
// and clips rasters to polygons.
package raster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrGranuleNotFound is returned when a product has no granule folder.
	ErrGranuleNotFound = errors.New("granule not found")

	// ErrBandNotFound is returned when a required band file is missing.
	ErrBandNotFound = errors.New("band not found")

	// ErrOutsideRaster is returned when a clip polygon misses the raster.
	ErrOutsideRaster = errors.New("polygon does not intersect raster")
)

// Resolution folders inside IMG_DATA.
const (
	R10m = "R10m"
	R20m = "R20m"
	R60m = "R60m"
)

// Band keys as they appear in Level-2A file names.
const (
	BandRed     = "B04"
	BandRedEdge = "B05"
	BandNIR     = "B08"
	BandTCI     = "TCI"
)

// ImgDataPath returns <db>/<folder>/GRANULE/<granule>/IMG_DATA, using the
// first granule in name order.
func ImgDataPath(db, folder string) (string, error) {
	granuleDir := filepath.Join(db, folder, "GRANULE")
	entries, err := os.ReadDir(granuleDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrGranuleNotFound, granuleDir)
		}
		return "", fmt.Errorf("failed to read %s: %w", granuleDir, err)
	}

	var granules []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			granules = append(granules, e.Name())
		}
	}
	if len(granules) == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrGranuleNotFound, granuleDir)
	}
	sort.Strings(granules)

	return filepath.Join(granuleDir, granules[0], "IMG_DATA"), nil
}

// BandFiles lists the .jp2 files of dir keyed by band, the third
// underscore-separated token of the name: T33UUP_20230105T101411_B04_10m.jp2
// is "B04".
func BandFiles(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrBandNotFound, dir)
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	bands := make(map[string]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".jp2") {
			continue
		}
		parts := strings.Split(strings.TrimSuffix(name, filepath.Ext(name)), "_")
		if len(parts) < 3 {
			continue
		}
		bands[parts[2]] = filepath.Join(dir, name)
	}
	return bands, nil
}

// BandFile returns the file of band in the resolution folder of imgPath.
func BandFile(imgPath, resolution, band string) (string, error) {
	dir := filepath.Join(imgPath, resolution)
	bands, err := BandFiles(dir)
	if err != nil {
		return "", err
	}
	path, ok := bands[band]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrBandNotFound, band, dir)
	}
	return path, nil
}
