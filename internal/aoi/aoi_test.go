package aoi

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	godal.RegisterAll()
	os.Exit(m.Run())
}

var (
	square  = orb.Polygon{{{10, 45}, {10.1, 45}, {10.1, 45.1}, {10, 45.1}, {10, 45}}}
	square2 = orb.Polygon{{{11, 45}, {11.1, 45}, {11.1, 45.1}, {11, 45.1}, {11, 45}}}
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFlattenNaming(t *testing.T) {
	tests := []struct {
		name     string
		features []feature
		want     []string
	}{
		{
			name:     "single polygon keeps base",
			features: []feature{{geometry: square}},
			want:     []string{"farm"},
		},
		{
			name:     "several features are indexed",
			features: []feature{{geometry: square}, {geometry: square2}},
			want:     []string{"farm_0", "farm_1"},
		},
		{
			name:     "multipolygon parts are indexed",
			features: []feature{{geometry: orb.MultiPolygon{square, square2}}},
			want:     []string{"farm_0", "farm_1"},
		},
		{
			name:     "single part multipolygon keeps name",
			features: []feature{{geometry: orb.MultiPolygon{square}}},
			want:     []string{"farm"},
		},
		{
			name:     "feature index then part index",
			features: []feature{{geometry: square}, {geometry: orb.MultiPolygon{square, square2}}},
			want:     []string{"farm_0", "farm_1_0", "farm_1_1"},
		},
		{
			name:     "own names are kept",
			features: []feature{{name: "north", geometry: square}, {geometry: square2}},
			want:     []string{"north", "farm_1"},
		},
		{
			name:     "non polygons dropped",
			features: []feature{{geometry: orb.Point{1, 2}}, {geometry: square}},
			want:     []string{"farm_1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			polygons := flatten("farm", tt.features)
			names := make([]string, 0, len(polygons))
			for _, p := range polygons {
				names = append(names, p.Name)
				assert.Equal(t, WGS84, p.EPSG)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestReadGeoJSONFeatureCollection(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "parcels.geojson"), `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "vineyard"},
     "geometry": {"type": "Polygon", "coordinates": [[[10,45],[10.1,45],[10.1,45.1],[10,45.1],[10,45]]]}},
    {"type": "Feature", "properties": {"id": 7},
     "geometry": {"type": "MultiPolygon", "coordinates": [
       [[[11,45],[11.1,45],[11.1,45.1],[11,45.1],[11,45]]],
       [[[12,45],[12.1,45],[12.1,45.1],[12,45.1],[12,45]]]
     ]}},
    {"type": "Feature", "properties": {"name": 3},
     "geometry": {"type": "Point", "coordinates": [1, 2]}}
  ]
}`)

	polygons, err := Read(path)
	require.NoError(t, err)
	require.Len(t, polygons, 3)
	assert.Equal(t, "vineyard", polygons[0].Name)
	assert.Equal(t, "parcels_1_0", polygons[1].Name)
	assert.Equal(t, "parcels_1_1", polygons[2].Name)
	assert.True(t, orb.Equal(square, polygons[0].Geometry))
}

func TestReadGeoJSONBareGeometry(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "field.json"),
		`{"type": "Polygon", "coordinates": [[[10,45],[10.1,45],[10.1,45.1],[10,45.1],[10,45]]]}`)

	polygons, err := Read(path)
	require.NoError(t, err)
	require.Len(t, polygons, 1)
	assert.Equal(t, "field", polygons[0].Name)
}

func TestReadNoPolygon(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "points.geojson"),
		`{"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [1, 2]}}`)

	_, err := Read(path)
	assert.True(t, errors.Is(err, ErrNoPolygon), "got %v", err)
}

func TestReadAllRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	geom := `{"type": "Polygon", "coordinates": [[[10,45],[10.1,45],[10.1,45.1],[10,45.1],[10,45]]]}`
	a := writeFile(t, filepath.Join(dir, "a", "field.geojson"), geom)
	b := writeFile(t, filepath.Join(dir, "b", "field.geojson"), geom)
	c := writeFile(t, filepath.Join(dir, "b", "other.geojson"), geom)

	polygons, err := ReadAll([]string{a, c})
	require.NoError(t, err)
	assert.Len(t, polygons, 2)

	_, err = ReadAll([]string{a, b})
	assert.Error(t, err)
}

func TestWriteGeoJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "farm.geojson")
	in := []Polygon{
		{Name: "farm_0", Geometry: square, EPSG: WGS84},
		{Name: "farm_1", Geometry: square2, EPSG: WGS84},
	}

	require.NoError(t, WriteGeoJSON(in, path))

	out, err := Read(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for i := range in {
		assert.Equal(t, in[i].Name, out[i].Name)
		assert.True(t, orb.Equal(in[i].Geometry, out[i].Geometry))
	}
}

func TestPolygonBBox(t *testing.T) {
	tri := Polygon{Name: "tri", Geometry: orb.Polygon{{{0, 0}, {2, 0}, {1, 3}, {0, 0}}}}
	bbox := tri.BBox()
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 3}}, bbox.Bound())
	assert.Contains(t, tri.WKT(), "POLYGON")
}

const testKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <name>plot</name>
      <Polygon><outerBoundaryIs><LinearRing><coordinates>
        10,45,0 10.1,45,0 10.1,45.1,0 10,45.1,0 10,45,0
      </coordinates></LinearRing></outerBoundaryIs></Polygon>
    </Placemark>
  </Document>
</kml>`

func TestConvertTree(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "farm.kml"), testKML)
	writeFile(t, filepath.Join(base, "sub", "orchard.kml"), testKML)
	writeFile(t, filepath.Join(base, "sub", "deeper", "ignored.kml"), testKML)
	writeFile(t, filepath.Join(base, "notes.txt"), "x")

	written, err := ConvertTree(base, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(base, "farm.geojson"),
		filepath.Join(base, "sub", "orchard.geojson"),
	}, written)

	polygons, err := Read(filepath.Join(base, "sub", "orchard.geojson"))
	require.NoError(t, err)
	require.Len(t, polygons, 1)
	assert.Equal(t, "orchard", polygons[0].Name)
	assert.InDelta(t, 10.1, polygons[0].Geometry.Bound().Max.Lon(), 1e-9)
}
