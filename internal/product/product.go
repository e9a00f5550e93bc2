// Package product defines the Sentinel-2 product record shared by the
// catalogue backends, the download stage and the product ledger.
package product

import (
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// SafeSuffix is the extension of an extracted Sentinel-2 product folder.
const SafeSuffix = ".SAFE"

// Product is a single Sentinel-2 archive product.
type Product struct {
	// ID is the catalogue identifier (a UUID on Copernicus Data Space).
	ID string
	// Title is the product name without the .SAFE suffix.
	Title string
	// Filename is the name of the extracted product folder (Title + ".SAFE").
	Filename      string
	IngestionDate time.Time
	SensingDate   time.Time
	CloudCover    float64
	// Footprint is the product footprint in EPSG:4326.
	Footprint orb.Geometry
	// S3Path is the object storage prefix, e.g. /eodata/Sentinel-2/MSI/L2A/....SAFE
	S3Path string
	Online bool
	Size   int64
}

// New builds a product from a catalogue name, filling Title and Filename
// consistently whether or not name carries the .SAFE suffix.
func New(id, name string) Product {
	title := strings.TrimSuffix(name, SafeSuffix)
	return Product{
		ID:       id,
		Title:    title,
		Filename: title + SafeSuffix,
	}
}

// Tile returns the MGRS tile of the product (e.g. "T33UUP") parsed from its
// title, or "" when the title does not follow the Sentinel-2 naming scheme.
func (p Product) Tile() string {
	for _, part := range strings.Split(p.Title, "_") {
		if len(part) == 6 && part[0] == 'T' {
			return part
		}
	}
	return ""
}

// AcquisitionDate returns the day the scene was taken: the sensing date, or
// the ingestion date for records that carry none.
func (p Product) AcquisitionDate() time.Time {
	if p.SensingDate.IsZero() {
		return p.IngestionDate
	}
	return p.SensingDate
}

// Mission returns the platform prefix of the title ("S2A", "S2B", ...).
func (p Product) Mission() string {
	if i := strings.IndexByte(p.Title, '_'); i > 0 {
		return p.Title[:i]
	}
	return ""
}
