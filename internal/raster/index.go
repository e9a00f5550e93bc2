package raster

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
)

// Index output file names, written next to the R10m bands.
const (
	NDVIFile = "NDVI.tiff"
	NDREFile = "NDRE.tiff"
)

// stripRows is the number of rows processed at a time.
const stripRows = 512

// NormalizedDifference computes (nir-x)/(nir+x) per pixel. NaN inputs and
// zero sums produce NaN.
func NormalizedDifference(nir, x []float32) ([]float32, error) {
	if len(nir) != len(x) {
		return nil, fmt.Errorf("band length mismatch: %d != %d", len(nir), len(x))
	}
	out := make([]float32, len(nir))
	normalizedDifference(out, nir, x)
	return out, nil
}

func normalizedDifference(out, nir, x []float32) {
	nan := float32(math.NaN())
	for i := range out {
		sum := nir[i] + x[i]
		if sum == 0 || sum != sum {
			out[i] = nan
			continue
		}
		out[i] = (nir[i] - x[i]) / sum
	}
}

// NDVIPath returns the NDVI file of a product's IMG_DATA folder.
func NDVIPath(imgPath string) string {
	return filepath.Join(imgPath, R10m, NDVIFile)
}

// NDREPath returns the NDRE file of a product's IMG_DATA folder.
func NDREPath(imgPath string) string {
	return filepath.Join(imgPath, R10m, NDREFile)
}

// GenerateNDVI writes R10m/NDVI.tiff from the 10 m B08 and B04 bands. An
// existing file is kept unless overwrite is set. It returns the output path.
func GenerateNDVI(imgPath string, overwrite bool) (string, error) {
	out := NDVIPath(imgPath)
	if !overwrite && exists(out) {
		return out, nil
	}

	nirPath, err := BandFile(imgPath, R10m, BandNIR)
	if err != nil {
		return "", err
	}
	redPath, err := BandFile(imgPath, R10m, BandRed)
	if err != nil {
		return "", err
	}

	nir, err := godal.Open(nirPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", nirPath, err)
	}
	defer nir.Close()

	red, err := godal.Open(redPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", redPath, err)
	}
	defer red.Close()

	if err := writeIndex(out, nir, red); err != nil {
		return "", fmt.Errorf("ndvi: %w", err)
	}
	return out, nil
}

// GenerateNDRE writes R10m/NDRE.tiff from the 20 m B05 band and the 10 m
// B08 band resampled bilinearly onto the B05 grid. The output carries the
// B05 georeferencing. An existing file is kept unless overwrite is set.
func GenerateNDRE(imgPath string, overwrite bool) (string, error) {
	out := NDREPath(imgPath)
	if !overwrite && exists(out) {
		return out, nil
	}

	nirPath, err := BandFile(imgPath, R10m, BandNIR)
	if err != nil {
		return "", err
	}
	edgePath, err := BandFile(imgPath, R20m, BandRedEdge)
	if err != nil {
		return "", err
	}

	edge, err := godal.Open(edgePath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", edgePath, err)
	}
	defer edge.Close()

	nir, err := godal.Open(nirPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", nirPath, err)
	}
	defer nir.Close()

	st := edge.Structure()
	resampled, err := nir.Translate("", []string{
		"-of", "MEM",
		"-outsize", fmt.Sprint(st.SizeX), fmt.Sprint(st.SizeY),
		"-r", "bilinear",
	})
	if err != nil {
		return "", fmt.Errorf("failed to resample %s: %w", nirPath, err)
	}
	defer resampled.Close()

	if err := writeIndex(out, resampled, edge); err != nil {
		return "", fmt.Errorf("ndre: %w", err)
	}
	return out, nil
}

// writeIndex computes the normalized difference of the first bands of nir and
// x strip by strip and writes it as a float32 GeoTIFF with x's
// georeferencing.
func writeIndex(out string, nir, x *godal.Dataset) error {
	xs, ns := x.Structure(), nir.Structure()
	if xs.SizeX != ns.SizeX || xs.SizeY != ns.SizeY {
		return fmt.Errorf("band size mismatch: %dx%d != %dx%d", ns.SizeX, ns.SizeY, xs.SizeX, xs.SizeY)
	}
	width, height := xs.SizeX, xs.SizeY

	tmp := out + ".part"
	dst, err := createLike(tmp, x, 1, godal.Float32, width, height)
	if err != nil {
		return err
	}
	dstBand := dst.Bands()[0]
	if err := dstBand.SetNoData(math.NaN()); err != nil {
		dst.Close()
		return fmt.Errorf("failed to set nodata: %w", err)
	}

	nirBand, xBand := nir.Bands()[0], x.Bands()[0]
	nirBuf := make([]float32, width*stripRows)
	xBuf := make([]float32, width*stripRows)
	outBuf := make([]float32, width*stripRows)

	for row := 0; row < height; row += stripRows {
		rows := min(stripRows, height-row)
		n := width * rows
		if err := readMasked(nirBand, row, nirBuf[:n], width, rows); err != nil {
			dst.Close()
			return err
		}
		if err := readMasked(xBand, row, xBuf[:n], width, rows); err != nil {
			dst.Close()
			return err
		}
		normalizedDifference(outBuf[:n], nirBuf[:n], xBuf[:n])
		if err := dstBand.Write(0, row, outBuf[:n], width, rows); err != nil {
			dst.Close()
			return fmt.Errorf("failed to write rows %d-%d: %w", row, row+rows, err)
		}
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, out); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", out, err)
	}
	return nil
}

// readMasked reads rows of a band as float32, replacing nodata with NaN.
func readMasked(band godal.Band, row int, buf []float32, width, rows int) error {
	if err := band.Read(0, row, buf, width, rows); err != nil {
		return fmt.Errorf("failed to read rows %d-%d: %w", row, row+rows, err)
	}
	nd, ok := band.NoData()
	if !ok || math.IsNaN(nd) {
		return nil
	}
	nodata := float32(nd)
	nan := float32(math.NaN())
	for i, v := range buf {
		if v == nodata {
			buf[i] = nan
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
