package odata

import (
	"encoding/json"
	"strconv"
)

// ProductsResponse is the OData collection returned by /Products.
type ProductsResponse struct {
	Context  string    `json:"@odata.context,omitempty"`
	Value    []Product `json:"value"`
	NextLink string    `json:"@odata.nextLink,omitempty"`
	Count    *int      `json:"@odata.count,omitempty"`
}

// Product is a single catalogue entry.
type Product struct {
	ID               string          `json:"Id"`
	Name             string          `json:"Name"`
	ContentType      string          `json:"ContentType,omitempty"`
	ContentLength    int64           `json:"ContentLength"`
	OriginDate       string          `json:"OriginDate"`
	PublicationDate  string          `json:"PublicationDate"`
	ModificationDate string          `json:"ModificationDate,omitempty"`
	Online           bool            `json:"Online"`
	S3Path           string          `json:"S3Path"`
	ContentDate      ContentDate     `json:"ContentDate"`
	Footprint        string          `json:"Footprint"`
	GeoFootprint     json.RawMessage `json:"GeoFootprint,omitempty"`
	Checksum         []Checksum      `json:"Checksum,omitempty"`
	Attributes       []Attribute     `json:"Attributes,omitempty"`
}

// ContentDate is the sensing interval of a product.
type ContentDate struct {
	Start string `json:"Start"`
	End   string `json:"End"`
}

// Checksum is a product checksum.
type Checksum struct {
	Value     string `json:"Value"`
	Algorithm string `json:"Algorithm"`
}

// Attribute is an expanded product attribute ($expand=Attributes).
type Attribute struct {
	Type      string `json:"@odata.type,omitempty"`
	Name      string `json:"Name"`
	Value     any    `json:"Value"`
	ValueType string `json:"ValueType"`
}

// Attribute returns the value of the named attribute.
func (p *Product) Attribute(name string) (any, bool) {
	for _, a := range p.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// StringAttribute returns the named attribute as a string.
func (p *Product) StringAttribute(name string) (string, bool) {
	v, ok := p.Attribute(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// DoubleAttribute returns the named attribute as a float64. Numeric strings
// are accepted.
func (p *Product) DoubleAttribute(name string) (float64, bool) {
	v, ok := p.Attribute(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
