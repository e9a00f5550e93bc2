package odata

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Well-known filter values.
const (
	CollectionSentinel2 = "SENTINEL-2"
	ProductTypeL2A      = "S2MSI2A"
	ProductTypeL1C      = "S2MSI1C"
)

// SearchParams represents parameters for an OData product query.
type SearchParams struct {
	Collection  string // collection name, e.g. "SENTINEL-2"
	ProductType string // productType attribute, e.g. "S2MSI2A"

	// Spatial filter
	Intersects string // WKT geometry in EPSG:4326

	// Sensing start bounds (exclusive)
	Start *time.Time
	End   *time.Time

	// Cloud cover bounds in percent (inclusive)
	CloudCoverMin *float64
	CloudCoverMax *float64

	// Name filter, exact product name
	Name string

	OrderBy string // e.g. "ContentDate/Start asc"
	Top     int
	Skip    int

	// ExpandAttributes adds $expand=Attributes
	ExpandAttributes bool
}

// Filter builds the $filter expression.
func (p *SearchParams) Filter() string {
	var clauses []string

	if p.Collection != "" {
		clauses = append(clauses, fmt.Sprintf("Collection/Name eq '%s'", quote(p.Collection)))
	}
	if p.Name != "" {
		clauses = append(clauses, fmt.Sprintf("Name eq '%s'", quote(p.Name)))
	}
	if p.ProductType != "" {
		clauses = append(clauses, fmt.Sprintf(
			"Attributes/OData.CSC.StringAttribute/any(att:att/Name eq 'productType' and att/OData.CSC.StringAttribute/Value eq '%s')",
			quote(p.ProductType)))
	}
	if p.CloudCoverMin != nil {
		clauses = append(clauses, fmt.Sprintf(
			"Attributes/OData.CSC.DoubleAttribute/any(att:att/Name eq 'cloudCover' and att/OData.CSC.DoubleAttribute/Value ge %s)",
			formatNumber(*p.CloudCoverMin)))
	}
	if p.CloudCoverMax != nil {
		clauses = append(clauses, fmt.Sprintf(
			"Attributes/OData.CSC.DoubleAttribute/any(att:att/Name eq 'cloudCover' and att/OData.CSC.DoubleAttribute/Value le %s)",
			formatNumber(*p.CloudCoverMax)))
	}
	if p.Intersects != "" {
		clauses = append(clauses, fmt.Sprintf("OData.CSC.Intersects(area=geography'SRID=4326;%s')", p.Intersects))
	}
	if p.Start != nil {
		clauses = append(clauses, "ContentDate/Start ge "+formatODataTime(*p.Start))
	}
	if p.End != nil {
		clauses = append(clauses, "ContentDate/Start le "+formatODataTime(*p.End))
	}

	return strings.Join(clauses, " and ")
}

// ToURLValues converts SearchParams to url.Values.
func (p *SearchParams) ToURLValues() url.Values {
	values := url.Values{}

	if f := p.Filter(); f != "" {
		values.Set("$filter", f)
	}
	if p.OrderBy != "" {
		values.Set("$orderby", p.OrderBy)
	}
	if p.Top > 0 {
		values.Set("$top", strconv.Itoa(p.Top))
	}
	if p.Skip > 0 {
		values.Set("$skip", strconv.Itoa(p.Skip))
	}
	if p.ExpandAttributes {
		values.Set("$expand", "Attributes")
	}

	return values
}

// ToQueryString encodes the parameters. Spaces are sent as %20; the
// catalogue does not decode '+' in $filter.
func (p *SearchParams) ToQueryString() string {
	return strings.ReplaceAll(p.ToURLValues().Encode(), "+", "%20")
}

// formatODataTime formats t as an OData DateTimeOffset literal.
func formatODataTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// quote escapes single quotes in an OData string literal.
func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
