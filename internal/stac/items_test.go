package stac

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/rkm/s2-parcels/internal/product"
	"github.com/rkm/s2-parcels/internal/workspace"
)

var testLinks = Links{BaseURL: "http://example.com"}

func testPolygon() workspace.Polygon {
	day1 := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2023, 2, 9, 0, 0, 0, 0, time.UTC)
	return workspace.Polygon{
		Name: "field a",
		Outputs: []workspace.Output{
			{Polygon: "field a", Kind: workspace.NDVI, Date: day1, Path: "/out/field a/NDVI/05-01-2023_ndvi.tiff"},
			{Polygon: "field a", Kind: workspace.TCI, Date: day1, Path: "/out/field a/TCI/05-01-2023_tci.tiff"},
			{Polygon: "field a", Kind: workspace.NDRE, Date: day2, Path: "/out/field a/NDRE/09-02-2023_ndre.tiff"},
		},
	}
}

func TestOutputItem(t *testing.T) {
	footprint := orb.Polygon{{{10, 45}, {11, 45}, {11, 46}, {10, 45}}}
	day := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)

	item, err := OutputItem(testPolygon(), day, footprint, "/out", testLinks)
	if err != nil {
		t.Fatalf("OutputItem() error: %v", err)
	}
	if item.Id != "05-01-2023" || item.Collection != "field a" {
		t.Errorf("unexpected id/collection %s/%s", item.Id, item.Collection)
	}
	if len(item.Assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(item.Assets))
	}
	ndvi := item.Assets["ndvi"]
	if ndvi == nil || ndvi.Href != "http://example.com/files/field%20a/NDVI/05-01-2023_ndvi.tiff" {
		t.Errorf("ndvi asset = %+v", ndvi)
	}
	if tci := item.Assets["tci"]; tci == nil || tci.Roles[0] != "visual" {
		t.Errorf("tci asset = %+v", tci)
	}
	if item.Properties["datetime"] != "2023-01-05T00:00:00Z" {
		t.Errorf("datetime = %v", item.Properties["datetime"])
	}
	if len(item.Bbox) != 4 || item.Bbox[0] != 10 || item.Bbox[3] != 46 {
		t.Errorf("bbox = %v", item.Bbox)
	}

	if _, err := json.Marshal(item); err != nil {
		t.Errorf("item does not marshal: %v", err)
	}
}

func TestOutputItem_NoOutputs(t *testing.T) {
	if _, err := OutputItem(testPolygon(), time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), nil, "/out", testLinks); err == nil {
		t.Error("expected error for a date without outputs")
	}
}

func TestOutputItem_OutsideRoot(t *testing.T) {
	p := workspace.Polygon{Name: "x", Outputs: []workspace.Output{
		{Kind: workspace.NDVI, Date: time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC), Path: "/elsewhere/x.tiff"},
	}}
	if _, err := OutputItem(p, p.Outputs[0].Date, nil, "/out", testLinks); err == nil {
		t.Error("expected error for output outside the root")
	}
}

func TestPolygonCollection(t *testing.T) {
	c := PolygonCollection(testPolygon(), nil, testLinks)
	if c.Id != "field a" {
		t.Errorf("Id = %s", c.Id)
	}
	interval := c.Extent.Temporal.Interval[0]
	if interval[0] != "2023-01-05T00:00:00Z" || interval[1] != "2023-02-09T00:00:00Z" {
		t.Errorf("interval = %v", interval)
	}
	if bbox := c.Extent.Spatial.Bbox[0]; bbox[0] != -180 {
		t.Errorf("bbox without footprint = %v", bbox)
	}

	var items string
	for _, l := range c.Links {
		if l.Rel == "items" {
			items = l.Href
		}
	}
	if items != "http://example.com/collections/field%20a/items" {
		t.Errorf("items link = %s", items)
	}
}

func TestProductItem(t *testing.T) {
	p := product.New("a1b2c3d4-e5f6-4711-8899-aabbccddeeff", "S2B_MSIL2A_20230105T101411_N0509_R022_T33UUP_20230105T134427.SAFE")
	p.IngestionDate = time.Date(2023, 1, 5, 14, 0, 0, 0, time.UTC)
	p.CloudCover = 3
	p.Footprint = orb.Polygon{{{10, 45}, {11, 45}, {11, 46}, {10, 45}}}
	p.S3Path = "/eodata/Sentinel-2/X.SAFE"

	item, err := ProductItem(p, testLinks)
	if err != nil {
		t.Fatalf("ProductItem() error: %v", err)
	}
	if item.Id != p.Title || item.Collection != ProductsCollection {
		t.Errorf("unexpected id/collection %s/%s", item.Id, item.Collection)
	}
	if item.Properties["datetime"] != "2023-01-05T14:00:00Z" {
		t.Errorf("datetime should fall back to ingestion date, got %v", item.Properties["datetime"])
	}
	if item.Properties["grid:code"] != "MGRS-33UUP" {
		t.Errorf("grid:code = %v", item.Properties["grid:code"])
	}
	if item.Properties["platform"] != "sentinel-2b" {
		t.Errorf("platform = %v", item.Properties["platform"])
	}
	if a := item.Assets["product"]; a == nil || !strings.HasPrefix(a.Href, "s3://eodata/") {
		t.Errorf("product asset = %+v", a)
	}
}
