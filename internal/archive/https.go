package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rkm/s2-parcels/internal/odata"
	"github.com/rkm/s2-parcels/internal/product"
)

// HTTPSFetcher downloads zipped products from the CDSE download service and
// unpacks them.
type HTTPSFetcher struct {
	client      *odata.Client
	keepArchive bool
	progress    Progress
	logger      *slog.Logger
}

// NewHTTPSFetcher creates a fetcher using client, which must carry a token
// source.
func NewHTTPSFetcher(client *odata.Client, logger *slog.Logger) *HTTPSFetcher {
	return &HTTPSFetcher{
		client: client,
		logger: logger,
	}
}

// WithKeepArchive keeps the downloaded zip next to the unpacked product.
func (f *HTTPSFetcher) WithKeepArchive(keep bool) *HTTPSFetcher {
	f.keepArchive = keep
	return f
}

// WithProgress sets the progress callback.
func (f *HTTPSFetcher) WithProgress(progress Progress) *HTTPSFetcher {
	f.progress = progress
	return f
}

// Name returns the fetcher name.
func (f *HTTPSFetcher) Name() string {
	return "https"
}

// Fetch downloads <title>.zip into databaseDir and unpacks it. Products that
// are already unpacked are not downloaded again.
func (f *HTTPSFetcher) Fetch(ctx context.Context, p product.Product, databaseDir string) (string, error) {
	dir := ProductDir(databaseDir, p)
	exists, err := Exists(databaseDir, p)
	if err != nil {
		return "", err
	}
	if exists {
		f.logger.DebugContext(ctx, "product already downloaded", slog.String("product", p.Filename))
		return dir, nil
	}

	if err := os.MkdirAll(databaseDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}

	archivePath := filepath.Join(databaseDir, p.Title+".zip")
	if err := f.download(ctx, p, archivePath); err != nil {
		return "", err
	}

	n, err := extractProduct(archivePath, databaseDir, p)
	if err != nil {
		os.Remove(archivePath)
		return "", err
	}

	if !f.keepArchive {
		if err := os.Remove(archivePath); err != nil {
			f.logger.WarnContext(ctx, "failed to remove archive",
				slog.String("archive", archivePath),
				slog.String("error", err.Error()),
			)
		}
	}

	f.logger.InfoContext(ctx, "product downloaded",
		slog.String("product", p.Filename),
		slog.Int("files", n),
	)
	return dir, nil
}

// extractProduct unpacks the archive into a staging directory. Only a fully
// extracted product folder is moved into databaseDir.
func extractProduct(archivePath, databaseDir string, p product.Product) (int, error) {
	staging := filepath.Join(databaseDir, p.Title+".extract.part")
	if err := os.RemoveAll(staging); err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", staging, err)
	}
	defer os.RemoveAll(staging)

	n, err := Extract(archivePath, staging)
	if err != nil {
		return 0, fmt.Errorf("failed to extract %s: %w", p.Title, err)
	}

	unpacked := filepath.Join(staging, p.Filename)
	if info, err := os.Stat(unpacked); err != nil || !info.IsDir() {
		return 0, fmt.Errorf("archive %s does not contain %s", archivePath, p.Filename)
	}
	if err := os.Rename(unpacked, ProductDir(databaseDir, p)); err != nil {
		return 0, fmt.Errorf("failed to move %s into place: %w", p.Filename, err)
	}
	return n, nil
}

// download writes the archive to a .part file renamed on success.
func (f *HTTPSFetcher) download(ctx context.Context, p product.Product, archivePath string) (err error) {
	tmp := archivePath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	var progress odata.ProgressFunc
	if f.progress != nil {
		progress = func(written, total int64) { f.progress(p, written, total) }
	}

	if _, err = f.client.Download(ctx, p.ID, out, progress); err != nil {
		return fmt.Errorf("failed to download %s: %w", p.Title, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, archivePath); err != nil {
		return errors.Join(fmt.Errorf("failed to move %s into place", tmp), err)
	}
	return nil
}
