package stacapi

import "encoding/json"

// ItemCollection is a page of search results.
type ItemCollection struct {
	Type           string    `json:"type"`
	Features       []Feature `json:"features"`
	Links          []Link    `json:"links,omitempty"`
	NumberMatched  *int      `json:"numberMatched,omitempty"`
	NumberReturned *int      `json:"numberReturned,omitempty"`
}

// Feature is a STAC item as returned by a search.
type Feature struct {
	ID         string           `json:"id"`
	Collection string           `json:"collection,omitempty"`
	Geometry   json.RawMessage  `json:"geometry"`
	BBox       []float64        `json:"bbox,omitempty"`
	Properties map[string]any   `json:"properties"`
	Assets     map[string]Asset `json:"assets,omitempty"`
	Links      []Link           `json:"links,omitempty"`
}

// Asset is a STAC asset.
type Asset struct {
	Href  string   `json:"href"`
	Type  string   `json:"type,omitempty"`
	Title string   `json:"title,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Link is a STAC link. Next links of POST searches carry the request body to
// send.
type Link struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Type   string          `json:"type,omitempty"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Merge  bool            `json:"merge,omitempty"`
}

// NextLink returns the "next" link of the page, if any.
func (ic *ItemCollection) NextLink() *Link {
	for i := range ic.Links {
		if ic.Links[i].Rel == "next" {
			return &ic.Links[i]
		}
	}
	return nil
}

// String returns a string property.
func (f *Feature) String(name string) string {
	s, _ := f.Properties[name].(string)
	return s
}

// Number returns a numeric property.
func (f *Feature) Number(name string) (float64, bool) {
	n, ok := f.Properties[name].(float64)
	return n, ok
}
