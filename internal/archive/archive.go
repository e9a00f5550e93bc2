// Package archive fetches Sentinel-2 products into the local product
// database, either from the CDSE download service or from its S3 endpoint.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rkm/s2-parcels/internal/product"
)

var (
	// ErrNoObjects is returned when a product prefix holds no objects.
	ErrNoObjects = errors.New("no objects found for product")

	// ErrUnsafePath is returned for archive entries or object keys that
	// would be written outside the destination directory.
	ErrUnsafePath = errors.New("path escapes destination")
)

// Progress reports download progress of one product. total is -1 when unknown.
type Progress func(p product.Product, written, total int64)

// Fetcher downloads a product into databaseDir and returns the path of the
// unpacked <filename>.SAFE directory.
type Fetcher interface {
	Fetch(ctx context.Context, p product.Product, databaseDir string) (string, error)
	Name() string
}

// ProductDir is where a product is unpacked inside the database.
func ProductDir(databaseDir string, p product.Product) string {
	return filepath.Join(databaseDir, p.Filename)
}

// Exists reports whether the product is already present in the database.
func Exists(databaseDir string, p product.Product) (bool, error) {
	info, err := os.Stat(ProductDir(databaseDir, p))
	if err == nil {
		return info.IsDir(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat product %s: %w", p.Filename, err)
}

// safeJoin joins name below dir, rejecting absolute names and names that
// climb out of dir.
func safeJoin(dir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}
