package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/s2-parcels/internal/product"
)

func TestPrintLedger(t *testing.T) {
	sensed := product.New("a1", "S2A_MSIL2A_20230105T101411_N0509_R022_T33UUP_20230105T134427")
	sensed.IngestionDate = time.Date(2023, 1, 5, 14, 0, 0, 0, time.UTC)
	sensed.SensingDate = time.Date(2023, 1, 5, 10, 14, 11, 0, time.UTC)
	sensed.CloudCover = 3.25

	unsensed := product.New("b2", "S2B_MSIL2A_20230110T101329_N0509_R022_T33UUP_20230110T114805")
	unsensed.IngestionDate = time.Date(2023, 1, 10, 14, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, printLedger(&buf, []product.Product{sensed, unsensed}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "INGESTED"))
	assert.Contains(t, lines[1], "05-01-2023")
	assert.Contains(t, lines[1], "3.25")
	assert.NotContains(t, buf.String(), "01-01-0001")

	fields := strings.Fields(lines[2])
	require.Len(t, fields, 5, "empty sensing cell: %q", lines[2])
	assert.Equal(t, "2023-01-10", fields[0])
	assert.Equal(t, "0.00", fields[2])
	assert.Equal(t, "b2", fields[4])
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()

	const key = "S2PARCELS_LOADENV_TEST"
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() { os.Unsetenv(key) })

	local := filepath.Join(dir, ".env.local")
	shared := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(local, []byte(key+"=local\n"), 0o644))
	require.NoError(t, os.WriteFile(shared, []byte(key+"=shared\n"), 0o644))

	t.Run("earlier file wins and missing files are skipped", func(t *testing.T) {
		require.NoError(t, loadEnv(filepath.Join(dir, "missing.env"), local, shared))
		assert.Equal(t, "local", os.Getenv(key))
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.env")
		require.NoError(t, os.WriteFile(bad, []byte("NOT-A-KEY=1\n"), 0o644))

		err := loadEnv(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), bad)
	})
}
