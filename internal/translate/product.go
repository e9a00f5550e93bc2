package translate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/rkm/s2-parcels/internal/odata"
	"github.com/rkm/s2-parcels/internal/product"
	"github.com/rkm/s2-parcels/internal/stacapi"
	"github.com/rkm/s2-parcels/pkg/geojson"
)

// ODataProductToProduct converts an OData catalogue entry to a product.
// PublicationDate is the ingestion date; ContentDate/Start the sensing date.
func ODataProductToProduct(p *odata.Product) (product.Product, error) {
	if p == nil {
		return product.Product{}, fmt.Errorf("product is nil")
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		return product.Product{}, fmt.Errorf("product %q has invalid id %q: %w", p.Name, p.ID, err)
	}

	out := product.New(p.ID, p.Name)
	out.S3Path = p.S3Path
	out.Online = p.Online
	out.Size = p.ContentLength

	var err error
	if out.IngestionDate, err = ParseCatalogueTime(p.PublicationDate); err != nil {
		return out, fmt.Errorf("product %s: publication date: %w", p.Name, err)
	}
	if p.ContentDate.Start != "" {
		if out.SensingDate, err = ParseCatalogueTime(p.ContentDate.Start); err != nil {
			return out, fmt.Errorf("product %s: sensing date: %w", p.Name, err)
		}
	}
	if cc, ok := p.DoubleAttribute("cloudCover"); ok {
		out.CloudCover = cc
	}

	switch {
	case len(p.GeoFootprint) > 0 && string(p.GeoFootprint) != "null":
		out.Footprint, err = geojson.Unmarshal(p.GeoFootprint)
	case p.Footprint != "":
		out.Footprint, err = geojson.ParseWKT(p.Footprint)
	default:
		err = fmt.Errorf("no footprint")
	}
	if err != nil {
		return out, fmt.Errorf("product %s: %w: %v", p.Name, ErrInvalidGeometry, err)
	}

	return out, nil
}

var productUUID = regexp.MustCompile(`Products\(([0-9a-fA-F-]{36})\)`)

// STACFeatureToProduct converts a STAC search result to a product. The
// catalogue UUID is taken from the download asset when present, otherwise the
// item id is used.
func STACFeatureToProduct(f *stacapi.Feature) (product.Product, error) {
	if f == nil {
		return product.Product{}, fmt.Errorf("feature is nil")
	}
	if f.ID == "" {
		return product.Product{}, fmt.Errorf("feature has no id")
	}

	id := f.ID
	var s3Path string
	for _, a := range f.Assets {
		if m := productUUID.FindStringSubmatch(a.Href); m != nil {
			if _, err := uuid.Parse(m[1]); err == nil {
				id = m[1]
			}
		}
		if s3Path == "" {
			s3Path = safePrefix(a.Href)
		}
	}

	out := product.New(id, f.ID)
	out.S3Path = s3Path
	out.Online = true

	var err error
	if dt := f.String("datetime"); dt != "" {
		if out.SensingDate, err = ParseCatalogueTime(dt); err != nil {
			return out, fmt.Errorf("item %s: datetime: %w", f.ID, err)
		}
	}
	out.IngestionDate = out.SensingDate
	for _, key := range []string{"published", "created"} {
		if s := f.String(key); s != "" {
			if t, err := ParseCatalogueTime(s); err == nil {
				out.IngestionDate = t
				break
			}
		}
	}
	if out.IngestionDate.IsZero() {
		return out, fmt.Errorf("item %s: %w: no datetime", f.ID, ErrInvalidDateTime)
	}

	if cc, ok := f.Number(stacapi.CloudCoverProperty); ok {
		out.CloudCover = cc
	}

	if len(f.Geometry) == 0 {
		return out, fmt.Errorf("item %s: %w: no geometry", f.ID, ErrInvalidGeometry)
	}
	if out.Footprint, err = geojson.Unmarshal(f.Geometry); err != nil {
		return out, fmt.Errorf("item %s: %w: %v", f.ID, ErrInvalidGeometry, err)
	}

	return out, nil
}

// safePrefix turns an asset href inside a product (s3://eodata/.../X.SAFE/...)
// into the product's object storage path (/eodata/.../X.SAFE).
func safePrefix(href string) string {
	if !strings.HasPrefix(href, "s3://") {
		return ""
	}
	i := strings.Index(href, product.SafeSuffix)
	if i < 0 {
		return ""
	}
	return "/" + strings.TrimPrefix(href[:i+len(product.SafeSuffix)], "s3://")
}
