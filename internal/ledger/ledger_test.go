package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/s2-parcels/internal/product"
)

func testProduct(id string, ingested time.Time) product.Product {
	p := product.New(id, "S2A_MSIL2A_20230105T101411_N0509_R022_T33UUP_"+id+".SAFE")
	p.IngestionDate = ingested
	p.SensingDate = ingested.Add(-2 * time.Hour)
	p.CloudCover = 3.25
	p.Footprint = orb.Polygon{{{10, 45}, {11, 45}, {11, 46}, {10, 46}, {10, 45}}}
	p.S3Path = "/eodata/Sentinel-2/MSI/L2A/2023/01/05/" + p.Filename
	return p
}

func TestLoadMissingFile(t *testing.T) {
	records, err := Load(filepath.Join(t.TempDir(), "missing.csv"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAppendCreatesAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "products.csv")
	day := time.Date(2023, 1, 5, 13, 44, 27, 0, time.UTC)

	n, err := Append(path, []product.Product{testProduct("a", day), testProduct("b", day.Add(24*time.Hour))})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), strings.Join(Header, ",")+"\n"))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	got := records[0]
	want := testProduct("a", day)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Filename, got.Filename)
	assert.True(t, want.IngestionDate.Equal(got.IngestionDate))
	assert.True(t, want.SensingDate.Equal(got.SensingDate))
	assert.Equal(t, want.CloudCover, got.CloudCover)
	assert.Equal(t, want.S3Path, got.S3Path)
	assert.True(t, orb.Equal(want.Footprint, got.Footprint))
}

func TestAppendIsIdempotentPerID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.csv")
	day := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)

	n, err := Append(path, []product.Product{testProduct("a", day)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = Append(path, []product.Product{testProduct("a", day), testProduct("b", day), testProduct("b", day)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = Append(path, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	records, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "id,title"))
}

func TestStoreAppend(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "products.csv"))
	day := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)

	_, err := s.Append([]product.Product{testProduct("a", day)})
	require.NoError(t, err)

	records, err := s.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ID)
}

func TestReadColumnOrderAndErrors(t *testing.T) {
	in := "filename,ingestiondate,id\nX.SAFE,2023-01-05T00:00:00Z,abc\n"
	records, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "abc", records[0].ID)
	assert.Equal(t, "X", records[0].Title)

	_, err = Read(strings.NewReader("id,filename\nabc,X.SAFE\n"))
	assert.Error(t, err, "missing ingestiondate column")

	_, err = Read(strings.NewReader("id,filename,ingestiondate\nabc,X.SAFE,yesterday\n"))
	assert.Error(t, err)

	records, err = Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFilter(t *testing.T) {
	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)

	// Republished years later: only the sensing date counts.
	sensed := func(id string, at time.Time) product.Product {
		p := testProduct(id, at.AddDate(3, 0, 0))
		p.SensingDate = at
		return p
	}
	unsensed := testProduct("ingested-inside", time.Date(2023, 1, 20, 10, 0, 0, 0, time.UTC))
	unsensed.SensingDate = time.Time{}

	records := []product.Product{
		sensed("late-on-to-day", time.Date(2023, 1, 31, 23, 59, 59, 0, time.UTC)),
		sensed("at-from", from),
		sensed("after-to", time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)),
		sensed("inside", time.Date(2023, 1, 15, 10, 0, 0, 0, time.UTC)),
		sensed("before", time.Date(2022, 12, 31, 10, 0, 0, 0, time.UTC)),
		unsensed,
	}

	got := Filter(records, Range{From: from, To: to})
	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"inside", "ingested-inside", "late-on-to-day"}, ids)

	assert.Len(t, Filter(records, Range{}), len(records))
	assert.Len(t, Filter(records, Range{From: from}), 4)
	assert.Len(t, Filter(records, Range{To: to}), 5)
}
