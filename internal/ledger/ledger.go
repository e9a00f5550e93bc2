// Package ledger keeps the CSV record of downloaded Sentinel-2 products.
//
// The ledger is append-only. Each row describes one product; the footprint is
// stored as WKT in EPSG:4326 and dates as RFC 3339.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rkm/s2-parcels/internal/product"
	"github.com/rkm/s2-parcels/pkg/geojson"
)

// Header is the column layout of the ledger file.
var Header = []string{
	"id",
	"title",
	"filename",
	"ingestiondate",
	"sensingdate",
	"cloudcoverpercentage",
	"geometry",
	"s3path",
}

// csvColumnMap maps column names to their index in Header.
var csvColumnMap = func() map[string]int {
	m := make(map[string]int, len(Header))
	for i, h := range Header {
		m[h] = i
	}
	return m
}()

// Store serialises access to a ledger file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store backed by the CSV file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the ledger file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads every record of the ledger.
func (s *Store) Load() ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Load(s.path)
}

// Append adds records that are not yet in the ledger and returns how many
// rows were written.
func (s *Store) Append(records []product.Product) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Append(s.path, records)
}

// Load reads the ledger at path. A missing file is an empty ledger.
func Load(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read parses ledger rows from r. The first row must be the header; columns
// are matched by name so older files with a different order still load.
func Read(r io.Reader) ([]product.Product, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[h] = i
	}
	for _, required := range []string{"id", "filename", "ingestiondate"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("ledger is missing column %q", required)
		}
	}

	var records []product.Product
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger line %d: %w", line, err)
		}

		p, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", line, err)
		}
		records = append(records, p)
	}

	return records, nil
}

func parseRow(row []string, cols map[string]int) (product.Product, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	p := product.Product{
		ID:       get("id"),
		Title:    get("title"),
		Filename: get("filename"),
		S3Path:   get("s3path"),
	}
	if p.ID == "" {
		return p, fmt.Errorf("empty id")
	}
	if p.Title == "" {
		p.Title = product.New(p.ID, p.Filename).Title
	}

	var err error
	if p.IngestionDate, err = time.Parse(time.RFC3339, get("ingestiondate")); err != nil {
		return p, fmt.Errorf("invalid ingestiondate: %w", err)
	}
	if s := get("sensingdate"); s != "" {
		if p.SensingDate, err = time.Parse(time.RFC3339, s); err != nil {
			return p, fmt.Errorf("invalid sensingdate: %w", err)
		}
	}
	if s := get("cloudcoverpercentage"); s != "" {
		if p.CloudCover, err = strconv.ParseFloat(s, 64); err != nil {
			return p, fmt.Errorf("invalid cloudcoverpercentage: %w", err)
		}
	}
	if s := get("geometry"); s != "" {
		if p.Footprint, err = geojson.ParseWKT(s); err != nil {
			return p, fmt.Errorf("invalid geometry: %w", err)
		}
	}

	return p, nil
}

func formatRow(p product.Product) []string {
	row := make([]string, len(Header))
	row[csvColumnMap["id"]] = p.ID
	row[csvColumnMap["title"]] = p.Title
	row[csvColumnMap["filename"]] = p.Filename
	row[csvColumnMap["ingestiondate"]] = p.IngestionDate.UTC().Format(time.RFC3339)
	if !p.SensingDate.IsZero() {
		row[csvColumnMap["sensingdate"]] = p.SensingDate.UTC().Format(time.RFC3339)
	}
	row[csvColumnMap["cloudcoverpercentage"]] = strconv.FormatFloat(p.CloudCover, 'f', -1, 64)
	row[csvColumnMap["geometry"]] = geojson.ToWKT(p.Footprint)
	row[csvColumnMap["s3path"]] = p.S3Path
	return row
}

// Append writes records to the ledger at path, creating it with a header when
// it does not exist. Records whose id is already present, in the file or
// earlier in records, are skipped.
func Append(path string, records []product.Product) (int, error) {
	existing, err := Load(path)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.ID] = true
	}

	var rows [][]string
	for _, p := range records {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		rows = append(rows, formatRow(p))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open ledger for append: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat ledger: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return 0, fmt.Errorf("failed to write ledger header: %w", err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return 0, fmt.Errorf("failed to write ledger rows: %w", err)
	}

	return len(rows), f.Close()
}

// Range bounds ledger records by acquisition date. A zero From or To leaves that
// side open. From is exclusive; To includes the whole day it falls on.
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && !t.After(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(endOfDay(r.To)) {
		return false
	}
	return true
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

// Filter returns the records acquired inside r, ordered by acquisition date.
func Filter(records []product.Product, r Range) []product.Product {
	var out []product.Product
	for _, p := range records {
		if r.Contains(p.AcquisitionDate()) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AcquisitionDate().Before(out[j].AcquisitionDate())
	})
	return out
}

// IDs returns the set of product ids in records.
func IDs(records []product.Product) map[string]bool {
	ids := make(map[string]bool, len(records))
	for _, p := range records {
		ids[p.ID] = true
	}
	return ids
}
