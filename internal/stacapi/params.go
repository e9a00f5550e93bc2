package stacapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/planetlabs/go-ogc/filter"
)

// CloudCoverProperty is the eo extension cloud cover property.
const CloudCoverProperty = "eo:cloud_cover"

// SearchParams represents parameters for a STAC item search.
type SearchParams struct {
	Collections []string
	// Intersects is a GeoJSON geometry object.
	Intersects json.RawMessage
	Start      *time.Time
	End        *time.Time

	// Cloud cover bounds in percent (inclusive)
	CloudCoverMin *float64
	CloudCoverMax *float64

	Limit int
}

// searchBody is the JSON body of POST /search.
type searchBody struct {
	Collections []string        `json:"collections,omitempty"`
	Intersects  json.RawMessage `json:"intersects,omitempty"`
	Datetime    string          `json:"datetime,omitempty"`
	Limit       int             `json:"limit,omitempty"`
	Filter      *filter.Filter  `json:"filter,omitempty"`
	FilterLang  string          `json:"filter-lang,omitempty"`
	SortBy      []sortField     `json:"sortby,omitempty"`
}

type sortField struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Datetime formats the temporal bounds as a STAC interval.
func (p *SearchParams) Datetime() string {
	if p.Start == nil && p.End == nil {
		return ""
	}
	bound := func(t *time.Time) string {
		if t == nil {
			return ".."
		}
		return t.UTC().Format(time.RFC3339)
	}
	return bound(p.Start) + "/" + bound(p.End)
}

// Filter builds the CQL2 filter for the cloud cover bounds, or nil when no
// bound is set.
func (p *SearchParams) Filter() *filter.Filter {
	var args []filter.BooleanExpression
	if p.CloudCoverMin != nil {
		args = append(args, &filter.Comparison{
			Name:  filter.GreaterThanOrEquals,
			Left:  &filter.Property{Name: CloudCoverProperty},
			Right: &filter.Number{Value: *p.CloudCoverMin},
		})
	}
	if p.CloudCoverMax != nil {
		args = append(args, &filter.Comparison{
			Name:  filter.LessThanOrEquals,
			Left:  &filter.Property{Name: CloudCoverProperty},
			Right: &filter.Number{Value: *p.CloudCoverMax},
		})
	}

	switch len(args) {
	case 0:
		return nil
	case 1:
		return &filter.Filter{Expression: args[0]}
	}
	return &filter.Filter{Expression: &filter.And{Args: args}}
}

// Body encodes the POST /search request body.
func (p *SearchParams) Body() ([]byte, error) {
	body := searchBody{
		Collections: p.Collections,
		Intersects:  p.Intersects,
		Datetime:    p.Datetime(),
		Limit:       p.Limit,
		SortBy:      []sortField{{Field: "properties.datetime", Direction: "asc"}},
	}
	if f := p.Filter(); f != nil {
		body.Filter = f
		body.FilterLang = "cql2-json"
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search body: %w", err)
	}
	return data, nil
}

// Validate checks the parameters before a request is made.
func (p *SearchParams) Validate() error {
	if len(p.Collections) == 0 {
		return fmt.Errorf("at least one collection is required")
	}
	for _, c := range p.Collections {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("empty collection name")
		}
	}
	if p.Start != nil && p.End != nil && p.End.Before(*p.Start) {
		return fmt.Errorf("end is before start")
	}
	return nil
}
