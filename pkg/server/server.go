// Package server provides a public API for embedding the s2-parcels
// catalogue in another application.
package server

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rkm/s2-parcels/internal/aoi"
	"github.com/rkm/s2-parcels/internal/api"
	"github.com/rkm/s2-parcels/internal/ledger"
	"github.com/rkm/s2-parcels/internal/workspace"
)

// Options configures the catalogue server.
type Options struct {
	// OutputRoot is the directory holding the per-polygon output tree (required).
	OutputRoot string

	// LedgerPath is the product ledger CSV (required). A missing file serves
	// an empty product list.
	LedgerPath string

	// BaseURL is the public-facing URL for self-referential links (required).
	// Example: "https://parcels.example.com" or "http://localhost:8080"
	BaseURL string

	// AOIFiles are KML, shapefile or GeoJSON files whose polygons give
	// collections and items their geometry. Optional.
	AOIFiles []string

	// Title is the landing page title.
	// Default: "s2-parcels"
	Title string

	// Description is the landing page description.
	Description string

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a read-only catalogue that can be embedded in another application.
type Server struct {
	router chi.Router
}

// New creates a catalogue server with the given options.
func New(opts Options) (*Server, error) {
	if opts.OutputRoot == "" {
		return nil, errors.New("output root is required")
	}
	if opts.LedgerPath == "" {
		return nil, errors.New("ledger path is required")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	handlers := api.NewHandlers(
		workspace.New(opts.OutputRoot, false),
		ledger.NewStore(opts.LedgerPath),
		strings.TrimSuffix(opts.BaseURL, "/"),
		opts.Logger,
	).WithTitle(opts.Title, opts.Description)

	if len(opts.AOIFiles) > 0 {
		polygons, err := aoi.ReadAll(opts.AOIFiles)
		if err != nil {
			return nil, err
		}
		handlers.WithPolygons(polygons)
		opts.Logger.Info("loaded polygon geometries", slog.Int("count", len(polygons)))
	}

	return &Server{
		router: api.NewRouter(handlers, opts.Logger),
	}, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}
