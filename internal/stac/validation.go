package stac

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rkm/s2-parcels/internal/translate"
)

// ParseBBox parses a comma separated bbox query parameter and validates it.
func ParseBBox(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	bbox := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox value %q: %w", p, err)
		}
		bbox = append(bbox, v)
	}
	if err := ValidateBBox(bbox); err != nil {
		return nil, err
	}
	if len(bbox) == 6 {
		bbox = []float64{bbox[0], bbox[1], bbox[3], bbox[4]}
	}
	return bbox, nil
}

// ValidateBBox validates a bounding box
func ValidateBBox(bbox []float64) error {
	var west, south, east, north float64
	switch len(bbox) {
	case 4:
		west, south, east, north = bbox[0], bbox[1], bbox[2], bbox[3]
	case 6:
		// [west, south, min_elev, east, north, max_elev]
		west, south, east, north = bbox[0], bbox[1], bbox[3], bbox[4]
		if bbox[2] > bbox[5] {
			return fmt.Errorf("minimum elevation (%f) must be less than or equal to maximum elevation (%f)", bbox[2], bbox[5])
		}
	default:
		return fmt.Errorf("bbox must have 4 or 6 coordinates, got %d", len(bbox))
	}

	if west < -180 || west > 180 {
		return fmt.Errorf("west longitude must be between -180 and 180, got %f", west)
	}
	if east < -180 || east > 180 {
		return fmt.Errorf("east longitude must be between -180 and 180, got %f", east)
	}
	if south < -90 || south > 90 {
		return fmt.Errorf("south latitude must be between -90 and 90, got %f", south)
	}
	if north < -90 || north > 90 {
		return fmt.Errorf("north latitude must be between -90 and 90, got %f", north)
	}
	if west > east {
		return fmt.Errorf("west longitude (%f) must be less than or equal to east longitude (%f)", west, east)
	}
	if south > north {
		return fmt.Errorf("south latitude (%f) must be less than or equal to north latitude (%f)", south, north)
	}

	return nil
}

// TimeFilter is an inclusive datetime range; nil bounds are open.
type TimeFilter struct {
	Start *time.Time
	End   *time.Time
}

// ParseTimeFilter parses the datetime query parameter: a single RFC 3339
// instant or a start/end interval with ".." for open bounds.
func ParseTimeFilter(datetime string) (TimeFilter, error) {
	if datetime == ".." {
		return TimeFilter{}, nil
	}
	start, end, err := translate.ParseDateTimeInterval(datetime)
	if err != nil {
		return TimeFilter{}, err
	}
	return TimeFilter{Start: start, End: end}, nil
}

// Contains reports whether t lies within the filter.
func (f TimeFilter) Contains(t time.Time) bool {
	if f.Start != nil && t.Before(*f.Start) {
		return false
	}
	if f.End != nil && t.After(*f.End) {
		return false
	}
	return true
}
