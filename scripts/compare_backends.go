// Script to compare the OData and STAC catalogues for Sentinel-2 L2A products
// over one polygon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/airbusgeo/godal"

	"github.com/rkm/s2-parcels/internal/aoi"
	"github.com/rkm/s2-parcels/internal/backend"
	"github.com/rkm/s2-parcels/internal/odata"
	"github.com/rkm/s2-parcels/internal/stacapi"
)

func main() {
	aoiPath := flag.String("aoi", "", "polygon file (KML, shapefile or GeoJSON)")
	days := flag.Int("days", 30, "number of days back from today")
	cloudMax := flag.Float64("cloud-max", 10, "maximum cloud cover percentage")
	flag.Parse()

	if *aoiPath == "" {
		fmt.Fprintln(os.Stderr, "usage: compare_backends -aoi <file> [-days 30] [-cloud-max 10]")
		os.Exit(2)
	}

	godal.RegisterAll()
	polygons, err := aoi.Read(*aoiPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read polygons: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	end := time.Now().UTC()
	params := &backend.SearchParams{
		AOI:           polygons[0].Geometry,
		Start:         end.AddDate(0, 0, -*days),
		End:           end,
		CloudCoverMax: *cloudMax,
	}

	catalogues := []backend.Catalogue{
		backend.NewODataBackend(odata.NewClient(odata.DefaultBaseURL, time.Minute).WithLogger(logger), logger),
		backend.NewSTACBackend(stacapi.NewClient(stacapi.DefaultBaseURL, time.Minute).WithLogger(logger), "", logger),
	}

	fmt.Printf("=== Catalogue comparison: %s (last %d days) ===\n\n", polygons[0].Name, *days)

	titles := make([]map[string]bool, len(catalogues))
	for i, c := range catalogues {
		result, err := c.Search(context.Background(), params)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s search failed: %v\n", c.Name(), err)
			os.Exit(1)
		}
		titles[i] = make(map[string]bool, len(result.Products))
		for _, p := range result.Products {
			titles[i][p.Title] = true
		}
		fmt.Printf("%-6s %d products (%d skipped)\n", c.Name()+":", len(result.Products), result.Skipped)
	}

	onlyIn := func(a, b map[string]bool) []string {
		var out []string
		for t := range a {
			if !b[t] {
				out = append(out, t)
			}
		}
		sort.Strings(out)
		return out
	}

	fmt.Println()
	for _, t := range onlyIn(titles[0], titles[1]) {
		fmt.Printf("only in %s: %s\n", catalogues[0].Name(), t)
	}
	for _, t := range onlyIn(titles[1], titles[0]) {
		fmt.Printf("only in %s: %s\n", catalogues[1].Name(), t)
	}
}
