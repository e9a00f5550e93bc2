package api

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb"

	"github.com/rkm/s2-parcels/internal/product"
	intstac "github.com/rkm/s2-parcels/internal/stac"
)

var validate = validator.New()

// listQuery holds the parameters shared by item listings.
type listQuery struct {
	Limit  int       `validate:"gte=1,lte=1000"`
	BBox   []float64 `validate:"omitempty,len=4"`
	Time   intstac.TimeFilter
	Cursor *intstac.Cursor
}

func parseListQuery(r *http.Request) (listQuery, error) {
	values := r.URL.Query()
	var q listQuery
	var err error

	if q.Limit, err = intstac.ParseLimit(values.Get("limit")); err != nil {
		return q, err
	}
	if s := values.Get("bbox"); s != "" {
		if q.BBox, err = intstac.ParseBBox(s); err != nil {
			return q, err
		}
	}
	if q.Time, err = intstac.ParseTimeFilter(values.Get("datetime")); err != nil {
		return q, fmt.Errorf("invalid datetime: %w", err)
	}
	if q.Cursor, err = intstac.DecodeCursor(values.Get("cursor")); err != nil {
		return q, err
	}

	if err := validate.Struct(q); err != nil {
		return q, fmt.Errorf("invalid query: %w", err)
	}
	return q, nil
}

// matches reports whether a ledger record passes the bbox and datetime
// filters. Records without a footprint never match a bbox.
func (q listQuery) matches(p product.Product) bool {
	if !q.Time.Contains(p.AcquisitionDate()) {
		return false
	}
	if len(q.BBox) == 4 {
		if p.Footprint == nil {
			return false
		}
		box := orb.Bound{
			Min: orb.Point{q.BBox[0], q.BBox[1]},
			Max: orb.Point{q.BBox[2], q.BBox[3]},
		}
		if !box.Intersects(p.Footprint.Bound()) {
			return false
		}
	}
	return true
}
