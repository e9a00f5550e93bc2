package geojson

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/paulmach/orb"
)

func floatSlicesEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseWKT(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
		wantErr  bool
	}{
		{name: "polygon", input: "POLYGON((0 0,1 0,1 1,0 1,0 0))", wantType: "Polygon"},
		{name: "ewkt prefix", input: "SRID=4326;POLYGON((0 0,1 0,1 1,0 1,0 0))", wantType: "Polygon"},
		{name: "odata geography", input: "geography'SRID=4326;POLYGON((0 0,1 0,1 1,0 1,0 0))'", wantType: "Polygon"},
		{name: "multipolygon", input: "MULTIPOLYGON(((0 0,1 0,1 1,0 0)),((5 5,6 5,6 6,5 5)))", wantType: "MultiPolygon"},
		{name: "empty", input: "  ", wantErr: true},
		{name: "garbage", input: "NOT WKT", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ParseWKT(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseWKT(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWKT(%q) error: %v", tt.input, err)
			}
			if g.GeoJSONType() != tt.wantType {
				t.Errorf("type = %s, want %s", g.GeoJSONType(), tt.wantType)
			}
		})
	}
}

func TestToWKTRoundTrip(t *testing.T) {
	p := orb.Polygon{{{10, 45}, {11, 45}, {11, 46}, {10, 46}, {10, 45}}}

	s := ToWKT(p)
	if !strings.HasPrefix(s, "POLYGON") {
		t.Fatalf("ToWKT() = %q, want POLYGON prefix", s)
	}

	g, err := ParseWKT(s)
	if err != nil {
		t.Fatalf("ParseWKT() error: %v", err)
	}
	if !orb.Equal(g, p) {
		t.Errorf("round trip = %v, want %v", g, p)
	}

	if ToWKT(nil) != "" {
		t.Errorf("ToWKT(nil) should be empty")
	}
}

func TestMarshalGeometry(t *testing.T) {
	p := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}

	data, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["type"] != "Polygon" {
		t.Errorf("type = %v, want Polygon", decoded["type"])
	}

	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !orb.Equal(back, p) {
		t.Errorf("Unmarshal() = %v, want %v", back, p)
	}

	if _, err := Marshal(nil); err == nil {
		t.Error("Marshal(nil) expected error")
	}
}

func TestBBox(t *testing.T) {
	mp := orb.MultiPolygon{
		{{{-122.5, 37.8}, {-122.4, 37.8}, {-122.4, 37.9}, {-122.5, 37.9}, {-122.5, 37.8}}},
		{{{-123.5, 38.8}, {-123.4, 38.8}, {-123.4, 38.9}, {-123.5, 38.9}, {-123.5, 38.8}}},
	}

	bbox, err := BBox(mp)
	if err != nil {
		t.Fatalf("BBox() error: %v", err)
	}

	// Should span both polygons
	expected := []float64{-123.5, 37.8, -122.4, 38.9}
	if !floatSlicesEqual(bbox, expected) {
		t.Errorf("BBox() = %v, want %v", bbox, expected)
	}

	if _, err := BBox(nil); err == nil {
		t.Error("BBox(nil) expected error")
	}
}

func TestNewPolygonFromBBox(t *testing.T) {
	p, err := NewPolygonFromBBox([]float64{-122.5, 37.8, -122.4, 37.9})
	if err != nil {
		t.Fatalf("NewPolygonFromBBox() error: %v", err)
	}
	if len(p) != 1 || len(p[0]) != 5 {
		t.Fatalf("unexpected ring layout: %v", p)
	}
	if p[0][0] != p[0][4] {
		t.Error("ring is not closed")
	}

	if _, err := NewPolygonFromBBox([]float64{1, 2, 3}); err == nil {
		t.Error("expected error for short bbox")
	}
	if _, err := NewPolygonFromBBox([]float64{5, 0, 1, 1}); err == nil {
		t.Error("expected error for inverted bbox")
	}
}

func TestPolygons(t *testing.T) {
	a := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	b := orb.Polygon{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}}

	tests := []struct {
		name string
		in   orb.Geometry
		want int
	}{
		{"polygon", a, 1},
		{"multipolygon", orb.MultiPolygon{a, b}, 2},
		{"collection", orb.Collection{a, orb.Point{1, 1}, orb.MultiPolygon{a, b}}, 3},
		{"point", orb.Point{1, 2}, 0},
		{"line", orb.LineString{{0, 0}, {1, 1}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Polygons(tt.in); len(got) != tt.want {
				t.Errorf("Polygons() returned %d parts, want %d", len(got), tt.want)
			}
		})
	}
}
