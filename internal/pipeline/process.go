package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rkm/s2-parcels/internal/aoi"
	"github.com/rkm/s2-parcels/internal/ledger"
	"github.com/rkm/s2-parcels/internal/product"
	"github.com/rkm/s2-parcels/internal/selection"
	"github.com/rkm/s2-parcels/internal/translate"
	"github.com/rkm/s2-parcels/internal/workspace"
)

// Processor turns ledger products into clipped per-polygon outputs.
type Processor struct {
	ledger      *ledger.Store
	workspace   *workspace.Workspace
	rasters     Rasters
	databaseDir string
	concurrency int
	progress    ProgressFunc
	logger      *slog.Logger
}

// NewProcessor creates a processor reading products from databaseDir and
// writing into ws.
func NewProcessor(store *ledger.Store, ws *workspace.Workspace, rasters Rasters, databaseDir string, logger *slog.Logger) *Processor {
	return &Processor{
		ledger:      store,
		workspace:   ws,
		rasters:     rasters,
		databaseDir: databaseDir,
		concurrency: 1,
		logger:      logger,
	}
}

// WithConcurrency sets the number of products processed in parallel.
func (p *Processor) WithConcurrency(n int) *Processor {
	if n > 0 {
		p.concurrency = n
	}
	return p
}

// WithProgress sets a callback invoked after each processed task.
func (p *Processor) WithProgress(progress ProgressFunc) *Processor {
	p.progress = progress
	return p
}

// ProcessReport summarises a processing run.
type ProcessReport struct {
	// Tasks is the number of (polygon, date) pairs considered.
	Tasks int
	// Written lists the output files written.
	Written []string
	// Skipped counts outputs that already existed.
	Skipped int
}

type task struct {
	polygon aoi.Polygon
	product product.Product
}

// Run executes a processing request. Failures of individual products are
// collected and returned together; other products keep processing.
func (p *Processor) Run(ctx context.Context, req ProcessRequest) (*ProcessReport, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	kinds := req.Indices
	if len(kinds) == 0 {
		kinds = workspace.Kinds
	}

	records, err := p.ledger.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	records = ledger.Filter(records, req.Range)

	tasks, err := p.plan(ctx, req, records)
	if err != nil {
		return nil, err
	}
	report := &ProcessReport{Tasks: len(tasks)}

	for _, polygon := range req.Polygons {
		if err := p.workspace.Ensure(polygon.Name); err != nil {
			return report, err
		}
	}

	var (
		mu       sync.Mutex
		failures []error
		done     int
		images   = newImageCache(p.rasters, p.databaseDir)
	)
	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for _, t := range tasks {
		g.Go(func() error {
			written, skipped, err := p.runTask(ctx, t, kinds, images)

			mu.Lock()
			defer mu.Unlock()
			done++
			if p.progress != nil {
				p.progress(done, len(tasks))
			}
			report.Written = append(report.Written, written...)
			report.Skipped += skipped
			if err != nil {
				p.logger.ErrorContext(ctx, "processing failed",
					slog.String("polygon", t.polygon.Name),
					slog.String("product", t.product.Title),
					slog.String("error", err.Error()),
				)
				failures = append(failures, fmt.Errorf("%s/%s: %w", t.polygon.Name, t.product.Title, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return report, errors.Join(failures...)
}

// plan selects, per polygon, the products covering it and keeps the best
// covering product of each acquisition day.
func (p *Processor) plan(ctx context.Context, req ProcessRequest, records []product.Product) ([]task, error) {
	var tasks []task
	for _, polygon := range req.Polygons {
		candidates, err := selection.Select(records, polygon.Geometry, req.Threshold, req.Regional)
		if err != nil {
			return nil, fmt.Errorf("selection for %s failed: %w", polygon.Name, err)
		}

		days := make(map[string]bool)
		for _, c := range candidates {
			day := translate.FormatFileDay(c.Product.AcquisitionDate())
			if days[day] {
				continue
			}
			days[day] = true
			tasks = append(tasks, task{polygon: polygon, product: c.Product})
		}

		p.logger.DebugContext(ctx, "polygon planned",
			slog.String("polygon", polygon.Name),
			slog.Int("products", len(candidates)),
			slog.Int("dates", len(days)),
		)
	}
	return tasks, nil
}

func (p *Processor) runTask(ctx context.Context, t task, kinds []workspace.Kind, images *imageCache) ([]string, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var (
		written []string
		skipped int
	)
	for _, kind := range kinds {
		dst := p.workspace.OutputPath(t.polygon.Name, kind, t.product.AcquisitionDate())
		ok, err := p.workspace.ShouldWrite(dst)
		if err != nil {
			return written, skipped, err
		}
		if !ok {
			skipped++
			continue
		}

		src, err := images.source(t.product, kind)
		if err != nil {
			return written, skipped, err
		}
		if err := p.rasters.Clip(src, t.polygon.Geometry, t.polygon.EPSG, dst); err != nil {
			return written, skipped, fmt.Errorf("clip %s: %w", kind, err)
		}
		written = append(written, dst)
	}
	return written, skipped, nil
}

// imageCache derives each product's sources once, however many polygons
// use the product.
type imageCache struct {
	rasters     Rasters
	databaseDir string

	mu      sync.Mutex
	entries map[string]*imageEntry
}

type imageEntry struct {
	once sync.Once
	path string
	err  error
}

func newImageCache(rasters Rasters, databaseDir string) *imageCache {
	return &imageCache{
		rasters:     rasters,
		databaseDir: databaseDir,
		entries:     make(map[string]*imageEntry),
	}
}

func (c *imageCache) do(key string, fn func() (string, error)) (string, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &imageEntry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() { e.path, e.err = fn() })
	return e.path, e.err
}

func (c *imageCache) source(pr product.Product, kind workspace.Kind) (string, error) {
	img, err := c.do(pr.ID, func() (string, error) {
		return c.rasters.ImgDataPath(c.databaseDir, pr.Filename)
	})
	if err != nil {
		return "", err
	}
	return c.do(pr.ID+"/"+string(kind), func() (string, error) {
		return c.rasters.Source(img, kind)
	})
}
