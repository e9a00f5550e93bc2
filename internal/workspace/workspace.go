// Package workspace manages the per-polygon output tree:
//
//	<root>/<polygon>/NDVI/<dd-mm-YYYY>_ndvi.tiff
//	<root>/<polygon>/NDRE/<dd-mm-YYYY>_ndre.tiff
//	<root>/<polygon>/TCI/<dd-mm-YYYY>_tci.tiff
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rkm/s2-parcels/internal/translate"
)

// Kind is an output category.
type Kind string

const (
	NDVI Kind = "ndvi"
	NDRE Kind = "ndre"
	TCI  Kind = "tci"
)

// Kinds lists every output category in directory order.
var Kinds = []Kind{NDVI, NDRE, TCI}

// ParseKind parses a case-insensitive kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown output kind %q", s)
}

// Dir is the directory name holding outputs of this kind.
func (k Kind) Dir() string {
	return strings.ToUpper(string(k))
}

const outputExt = ".tiff"

// ErrInvalidName is returned for polygon names that cannot be used as a
// directory name.
var ErrInvalidName = errors.New("invalid polygon name")

// Workspace is an output tree rooted at a directory.
type Workspace struct {
	root      string
	overwrite bool
}

// New returns a workspace rooted at root. When overwrite is false existing
// outputs are never replaced.
func New(root string, overwrite bool) *Workspace {
	return &Workspace{root: root, overwrite: overwrite}
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// ValidateName checks that name is usable as a single path element.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// PolygonDir returns <root>/<polygon>.
func (w *Workspace) PolygonDir(polygon string) string {
	return filepath.Join(w.root, polygon)
}

// Ensure creates the output directories of a polygon.
func (w *Workspace) Ensure(polygon string) error {
	if err := ValidateName(polygon); err != nil {
		return err
	}
	for _, k := range Kinds {
		dir := filepath.Join(w.PolygonDir(polygon), k.Dir())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// FileName returns the output file name for a date and kind.
func FileName(kind Kind, day time.Time) string {
	return translate.FormatFileDay(day) + "_" + string(kind) + outputExt
}

// OutputPath returns the path of the output of kind for polygon on day.
func (w *Workspace) OutputPath(polygon string, kind Kind, day time.Time) string {
	return filepath.Join(w.PolygonDir(polygon), kind.Dir(), FileName(kind, day))
}

// ShouldWrite reports whether path may be written: it does not exist yet or
// the workspace overwrites existing outputs.
func (w *Workspace) ShouldWrite(path string) (bool, error) {
	if w.overwrite {
		return true, nil
	}
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}

// Output is one dated file in the tree.
type Output struct {
	Polygon string
	Kind    Kind
	Date    time.Time
	Path    string
}

// Polygon summarises the outputs of one polygon.
type Polygon struct {
	Name    string
	Outputs []Output
}

// Dates returns the distinct output dates in ascending order.
func (p Polygon) Dates() []time.Time {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, o := range p.Outputs {
		if !seen[o.Date] {
			seen[o.Date] = true
			dates = append(dates, o.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// OnDate returns the outputs produced on day, keyed by kind.
func (p Polygon) OnDate(day time.Time) map[Kind]Output {
	out := make(map[Kind]Output)
	for _, o := range p.Outputs {
		if o.Date.Equal(day) {
			out[o.Kind] = o
		}
	}
	return out
}

// Scan lists every polygon directory under the root with its outputs, sorted
// by polygon name. A missing root yields no polygons.
func (w *Workspace) Scan() ([]Polygon, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read workspace: %w", err)
	}

	var polygons []Polygon
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p, err := w.scanPolygon(e.Name())
		if err != nil {
			return nil, err
		}
		polygons = append(polygons, p)
	}

	sort.Slice(polygons, func(i, j int) bool { return polygons[i].Name < polygons[j].Name })
	return polygons, nil
}

// Lookup scans a single polygon. It reports fs.ErrNotExist when the polygon
// has no directory.
func (w *Workspace) Lookup(name string) (Polygon, error) {
	if err := ValidateName(name); err != nil {
		return Polygon{}, err
	}
	info, err := os.Stat(w.PolygonDir(name))
	if err != nil {
		return Polygon{}, err
	}
	if !info.IsDir() {
		return Polygon{}, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	return w.scanPolygon(name)
}

func (w *Workspace) scanPolygon(name string) (Polygon, error) {
	p := Polygon{Name: name}
	for _, k := range Kinds {
		dir := filepath.Join(w.PolygonDir(name), k.Dir())
		files, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return p, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		for _, f := range files {
			day, ok := parseFileName(f.Name(), k)
			if !ok || f.IsDir() {
				continue
			}
			p.Outputs = append(p.Outputs, Output{
				Polygon: name,
				Kind:    k,
				Date:    day,
				Path:    filepath.Join(dir, f.Name()),
			})
		}
	}

	sort.SliceStable(p.Outputs, func(i, j int) bool {
		return p.Outputs[i].Date.Before(p.Outputs[j].Date)
	})
	return p, nil
}

func parseFileName(name string, kind Kind) (time.Time, bool) {
	suffix := "_" + string(kind) + outputExt
	if !strings.HasSuffix(name, suffix) {
		return time.Time{}, false
	}
	day, err := translate.ParseFileDay(strings.TrimSuffix(name, suffix))
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
