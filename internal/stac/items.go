package stac

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"
	gostac "github.com/planetlabs/go-stac"

	"github.com/rkm/s2-parcels/internal/product"
	"github.com/rkm/s2-parcels/internal/translate"
	"github.com/rkm/s2-parcels/internal/workspace"
	"github.com/rkm/s2-parcels/pkg/geojson"
)

// ProductsCollection is the collection id given to ledger records.
const ProductsCollection = "products"

// Links builds the absolute URLs of API resources.
type Links struct {
	BaseURL string
}

// Collection returns the URL of a collection.
func (l Links) Collection(name string) string {
	return fmt.Sprintf("%s/collections/%s", l.BaseURL, url.PathEscape(name))
}

// Items returns the URL of a collection's items.
func (l Links) Items(name string) string {
	return l.Collection(name) + "/items"
}

// Item returns the URL of one dated item.
func (l Links) Item(name string, day time.Time) string {
	return l.Items(name) + "/" + translate.FormatFileDay(day)
}

// File returns the download URL of a path relative to the output root.
func (l Links) File(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return l.BaseURL + "/files/" + strings.Join(parts, "/")
}

// ProductItem converts a ledger record to a STAC item.
func ProductItem(p product.Product, links Links) (*Item, error) {
	item := NewItem(p.Title, ProductsCollection)

	if p.Footprint != nil {
		geom, err := geojson.Marshal(p.Footprint)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", p.ID, err)
		}
		item.Geometry = geom
		if bbox, err := geojson.BBox(p.Footprint); err == nil {
			item.Bbox = bbox
		}
	}

	item.Properties["datetime"] = translate.FormatSTACTime(p.AcquisitionDate())
	item.Properties["published"] = translate.FormatSTACTime(p.IngestionDate)
	item.Properties["eo:cloud_cover"] = p.CloudCover
	item.Properties["s2:product_uri"] = p.Filename
	item.Properties["cdse:id"] = p.ID
	if tile := p.Tile(); tile != "" {
		item.Properties["grid:code"] = "MGRS-" + strings.TrimPrefix(tile, "T")
	}
	if mission := p.Mission(); mission != "" {
		item.Properties["platform"] = "sentinel-2" + strings.ToLower(strings.TrimPrefix(mission, "S2"))
		item.Properties["constellation"] = "sentinel-2"
	}
	if p.S3Path != "" {
		item.Assets["product"] = &gostac.Asset{
			Href:  "s3:/" + p.S3Path,
			Title: "SAFE product",
			Roles: []string{"data"},
		}
	}

	item.Links = append(item.Links,
		&gostac.Link{Rel: "collection", Href: links.BaseURL + "/products", Type: MediaTypeGeoJSON},
		&gostac.Link{Rel: "root", Href: links.BaseURL, Type: MediaTypeJSON},
	)

	return item, nil
}

// OutputItem builds the item of one polygon on one date, with an asset per
// output kind present. footprint may be empty when the polygon geometry is
// unknown.
func OutputItem(polygon workspace.Polygon, day time.Time, footprint orb.Polygon, root string, links Links) (*Item, error) {
	outputs := polygon.OnDate(day)
	if len(outputs) == 0 {
		return nil, fmt.Errorf("polygon %s has no outputs on %s", polygon.Name, translate.FormatFileDay(day))
	}

	item := NewItem(translate.FormatFileDay(day), polygon.Name)
	item.Properties["datetime"] = translate.FormatSTACTime(day)

	if len(footprint) > 0 {
		geom, err := geojson.Marshal(footprint)
		if err != nil {
			return nil, fmt.Errorf("polygon %s: %w", polygon.Name, err)
		}
		item.Geometry = geom
		if bbox, err := geojson.BBox(footprint); err == nil {
			item.Bbox = bbox
		}
	}

	for _, kind := range workspace.Kinds {
		out, ok := outputs[kind]
		if !ok {
			continue
		}
		rel, err := relPath(root, out.Path)
		if err != nil {
			return nil, err
		}
		role := "data"
		if kind == workspace.TCI {
			role = "visual"
		}
		item.Assets[string(kind)] = &gostac.Asset{
			Href:  links.File(rel),
			Title: strings.ToUpper(string(kind)),
			Type:  MediaTypeGeoTIFF,
			Roles: []string{role},
		}
	}

	item.Links = append(item.Links,
		&gostac.Link{Rel: "self", Href: links.Item(polygon.Name, day), Type: MediaTypeGeoJSON},
		&gostac.Link{Rel: "parent", Href: links.Collection(polygon.Name), Type: MediaTypeJSON},
		&gostac.Link{Rel: "collection", Href: links.Collection(polygon.Name), Type: MediaTypeJSON},
		&gostac.Link{Rel: "root", Href: links.BaseURL, Type: MediaTypeJSON},
	)

	return item, nil
}

// PolygonCollection builds the collection describing one polygon's outputs.
func PolygonCollection(polygon workspace.Polygon, footprint orb.Polygon, links Links) *Collection {
	c := NewCollection(polygon.Name,
		polygon.Name,
		fmt.Sprintf("Sentinel-2 derived imagery clipped to parcel %s", polygon.Name))
	c.Providers = []*gostac.Provider{
		{
			Name:  "Copernicus Data Space Ecosystem",
			Roles: []string{"producer", "licensor"},
			Url:   "https://dataspace.copernicus.eu",
		},
		{
			Name:  "s2-parcels",
			Roles: []string{"processor", "host"},
		},
	}

	bbox := []float64{-180, -90, 180, 90}
	if len(footprint) > 0 {
		if b, err := geojson.BBox(footprint); err == nil {
			bbox = b
		}
	}
	var interval []any
	if dates := polygon.Dates(); len(dates) > 0 {
		interval = []any{translate.FormatSTACTime(dates[0]), translate.FormatSTACTime(dates[len(dates)-1])}
	} else {
		interval = []any{nil, nil}
	}
	c.Extent = &gostac.Extent{
		Spatial:  &gostac.SpatialExtent{Bbox: [][]float64{bbox}},
		Temporal: &gostac.TemporalExtent{Interval: [][]any{interval}},
	}

	kinds := make([]string, 0, len(workspace.Kinds))
	for _, k := range workspace.Kinds {
		kinds = append(kinds, string(k))
	}
	c.Summaries["outputs"] = kinds

	c.Links = append(c.Links,
		&gostac.Link{Rel: "self", Href: links.Collection(polygon.Name), Type: MediaTypeJSON},
		&gostac.Link{Rel: "items", Href: links.Items(polygon.Name), Type: MediaTypeGeoJSON},
		&gostac.Link{Rel: "parent", Href: links.BaseURL, Type: MediaTypeJSON},
		&gostac.Link{Rel: "root", Href: links.BaseURL, Type: MediaTypeJSON},
	)

	return c
}

func relPath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("output %s is outside %s", path, root)
	}
	return filepath.ToSlash(rel), nil
}
