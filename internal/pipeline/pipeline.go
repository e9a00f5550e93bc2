// Package pipeline orchestrates the download and processing runs: catalogue
// search, footprint selection, product fetch, ledger bookkeeping, index
// derivation and clipping into the output tree.
package pipeline

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rkm/s2-parcels/internal/aoi"
	"github.com/rkm/s2-parcels/internal/ledger"
	"github.com/rkm/s2-parcels/internal/workspace"
)

var validate = validator.New()

// DownloadRequest describes one download run.
type DownloadRequest struct {
	AOI   []aoi.Polygon `validate:"required,min=1"`
	Start time.Time     `validate:"required"`
	End   time.Time     `validate:"required,gtfield=Start"`

	// Threshold is the minimum coverage a product needs to be fetched.
	Threshold float64 `validate:"gte=0,lte=1"`
	Regional  bool

	CloudCoverMin float64 `validate:"gte=0,lte=100"`
	CloudCoverMax float64 `validate:"gte=0,lte=100,gtefield=CloudCoverMin"`

	ProductType string
	// Limit caps the products returned per polygon search (0 means no limit).
	Limit int `validate:"gte=0"`
}

// ProcessRequest describes one processing run over the ledger.
type ProcessRequest struct {
	Polygons []aoi.Polygon `validate:"required,min=1"`
	Range    ledger.Range

	// Threshold is the minimum coverage a product needs to be processed.
	Threshold float64 `validate:"gte=0,lte=1"`
	Regional  bool

	// Indices selects the outputs to write; empty means all.
	Indices []workspace.Kind `validate:"omitempty,dive,oneof=ndvi ndre tci"`
}

func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// ProgressFunc is called after each unit of work with the number of units
// done and the total.
type ProgressFunc func(done, total int)
