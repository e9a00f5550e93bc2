package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rkm/s2-parcels/internal/archive"
	"github.com/rkm/s2-parcels/internal/backend"
	"github.com/rkm/s2-parcels/internal/ledger"
	"github.com/rkm/s2-parcels/internal/product"
	"github.com/rkm/s2-parcels/internal/selection"
)

// Downloader searches the catalogue, fetches selected products and records
// them in the ledger.
type Downloader struct {
	catalogue   backend.Catalogue
	fetcher     archive.Fetcher
	ledger      *ledger.Store
	databaseDir string
	concurrency int
	progress    ProgressFunc
	logger      *slog.Logger
}

// NewDownloader creates a downloader writing products below databaseDir.
func NewDownloader(catalogue backend.Catalogue, fetcher archive.Fetcher, store *ledger.Store, databaseDir string, logger *slog.Logger) *Downloader {
	return &Downloader{
		catalogue:   catalogue,
		fetcher:     fetcher,
		ledger:      store,
		databaseDir: databaseDir,
		concurrency: 2,
		logger:      logger,
	}
}

// WithConcurrency sets the number of products fetched in parallel.
func (d *Downloader) WithConcurrency(n int) *Downloader {
	if n > 0 {
		d.concurrency = n
	}
	return d
}

// WithProgress sets a callback invoked after each fetched product.
func (d *Downloader) WithProgress(progress ProgressFunc) *Downloader {
	d.progress = progress
	return d
}

// DownloadReport summarises a download run.
type DownloadReport struct {
	// Found is the number of distinct products returned by the catalogue.
	Found int
	// Selected are the products meeting the coverage threshold.
	Selected []product.Product
	// Downloaded are the products fetched (or already present) in this run.
	Downloaded []product.Product
	// Recorded is the number of new ledger records.
	Recorded int
}

// Run executes a download request. Products that fail to download are
// reported together in the returned error; the others are still recorded.
func (d *Downloader) Run(ctx context.Context, req DownloadRequest) (*DownloadReport, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	report := &DownloadReport{}
	selected, err := d.selectProducts(ctx, req, report)
	if err != nil {
		return report, err
	}
	report.Selected = selected

	d.logger.InfoContext(ctx, "products selected",
		slog.String("catalogue", d.catalogue.Name()),
		slog.Int("found", report.Found),
		slog.Int("selected", len(selected)),
	)

	var (
		mu       sync.Mutex
		failures []error
		done     int
	)
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)
	for _, p := range selected {
		g.Go(func() error {
			_, err := d.fetcher.Fetch(ctx, p, d.databaseDir)

			mu.Lock()
			defer mu.Unlock()
			done++
			if d.progress != nil {
				d.progress(done, len(selected))
			}
			if err != nil {
				d.logger.ErrorContext(ctx, "download failed",
					slog.String("product", p.Title),
					slog.String("error", err.Error()),
				)
				failures = append(failures, fmt.Errorf("%s: %w", p.Title, err))
				return nil
			}
			report.Downloaded = append(report.Downloaded, p)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Downloaded, func(i, j int) bool {
		return report.Downloaded[i].AcquisitionDate().Before(report.Downloaded[j].AcquisitionDate())
	})

	if len(report.Downloaded) > 0 {
		n, err := d.ledger.Append(report.Downloaded)
		if err != nil {
			failures = append(failures, fmt.Errorf("failed to update ledger: %w", err))
		}
		report.Recorded = n
	}

	return report, errors.Join(failures...)
}

// selectProducts searches the catalogue once per polygon and keeps the
// products covering it, each product once.
func (d *Downloader) selectProducts(ctx context.Context, req DownloadRequest, report *DownloadReport) ([]product.Product, error) {
	seen := make(map[string]bool)
	found := make(map[string]bool)
	var selected []product.Product

	for _, polygon := range req.AOI {
		result, err := d.catalogue.Search(ctx, &backend.SearchParams{
			AOI:           polygon.Geometry,
			Start:         req.Start,
			End:           req.End,
			CloudCoverMin: req.CloudCoverMin,
			CloudCoverMax: req.CloudCoverMax,
			ProductType:   req.ProductType,
			Limit:         req.Limit,
		})
		if err != nil {
			return nil, fmt.Errorf("search for %s failed: %w", polygon.Name, err)
		}
		for _, p := range result.Products {
			found[p.ID] = true
		}

		candidates, err := selection.Select(result.Products, polygon.Geometry, req.Threshold, req.Regional)
		if err != nil {
			return nil, fmt.Errorf("selection for %s failed: %w", polygon.Name, err)
		}
		d.logger.DebugContext(ctx, "polygon searched",
			slog.String("polygon", polygon.Name),
			slog.Int("products", len(result.Products)),
			slog.Int("covering", len(candidates)),
		)

		for _, c := range candidates {
			if seen[c.Product.ID] {
				continue
			}
			seen[c.Product.ID] = true
			selected = append(selected, c.Product)
		}
	}

	report.Found = len(found)
	return selected, nil
}
