package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/rkm/s2-parcels/internal/archive"
	"github.com/rkm/s2-parcels/internal/backend"
	"github.com/rkm/s2-parcels/internal/ledger"
	"github.com/rkm/s2-parcels/internal/odata"
	"github.com/rkm/s2-parcels/internal/pipeline"
	"github.com/rkm/s2-parcels/internal/stacapi"
	"github.com/rkm/s2-parcels/pkg/server"
)

func (a *app) newODataClient() *odata.Client {
	return odata.NewClient(a.cfg.OData.BaseURL, a.cfg.OData.Timeout).
		WithLogger(a.logger).
		WithDownloadURL(a.cfg.OData.DownloadURL).
		WithRateLimit(a.cfg.OData.RateLimit, a.cfg.OData.RateBurst)
}

func (a *app) newCatalogue() backend.Catalogue {
	switch a.cfg.Catalogue.Type {
	case "stac":
		client := stacapi.NewClient(a.cfg.STACAPI.BaseURL, a.cfg.STACAPI.Timeout).WithLogger(a.logger)
		a.logger.Info("using STAC catalogue",
			slog.String("base_url", a.cfg.STACAPI.BaseURL),
			slog.String("collection", a.cfg.STACAPI.Collection),
		)
		return backend.NewSTACBackend(client, a.cfg.STACAPI.Collection, a.logger)
	default:
		a.logger.Info("using OData catalogue", slog.String("base_url", a.cfg.OData.BaseURL))
		return backend.NewODataBackend(a.newODataClient(), a.logger)
	}
}

func (a *app) newFetcher(ctx context.Context) (archive.Fetcher, error) {
	switch a.cfg.Download.Source {
	case "s3":
		fetcher, err := archive.NewS3Fetcher(ctx, archive.S3Options{
			Endpoint:  a.cfg.S3.Endpoint,
			Region:    a.cfg.S3.Region,
			Bucket:    a.cfg.S3.Bucket,
			AccessKey: a.cfg.S3.AccessKey,
			SecretKey: a.cfg.S3.SecretKey,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		return fetcher, nil
	default:
		tokens := odata.NewTokenSource(a.cfg.Auth.TokenURL, a.cfg.Auth.ClientID, a.cfg.Auth.Username, a.cfg.Auth.Password).
			WithLogger(a.logger)
		client := a.newODataClient().WithTokenSource(tokens)
		return archive.NewHTTPSFetcher(client, a.logger).WithKeepArchive(a.cfg.Download.KeepArchive), nil
	}
}

func (a *app) newDownloader(ctx context.Context) (*pipeline.Downloader, error) {
	if err := a.cfg.ValidateDownload(); err != nil {
		return nil, fmt.Errorf("invalid download configuration: %w", err)
	}
	fetcher, err := a.newFetcher(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.NewDownloader(
		a.newCatalogue(),
		fetcher,
		ledger.NewStore(a.cfg.Ledger.Path),
		a.cfg.Download.Database,
		a.logger,
	).WithConcurrency(a.cfg.Download.Concurrency), nil
}

// progressBar returns a progress callback drawing a bar sized on the first
// report.
func progressBar(description string) pipeline.ProgressFunc {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total), description)
		}
		_ = bar.Set(done)
	}
}

func (a *app) serve(ctx context.Context, aoiFiles []string) error {
	srv, err := server.New(server.Options{
		OutputRoot: a.cfg.Output.Root,
		LedgerPath: a.cfg.Ledger.Path,
		BaseURL:    a.cfg.Server.BaseURL,
		AOIFiles:   aoiFiles,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         a.cfg.Server.Address(),
		Handler:      srv.Router(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("server listening",
			slog.String("addr", httpServer.Addr),
			slog.String("output_root", a.cfg.Output.Root),
			slog.String("ledger", a.cfg.Ledger.Path),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down server", slog.Duration("timeout", a.cfg.Server.ShutdownTimeout))
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}
