// Package stac provides STAC API response types, wrapping planetlabs/go-stac
// for core types, and builds STAC documents for products and parcel outputs.
package stac

import (
	gostac "github.com/planetlabs/go-stac"
)

// Re-export core types from planetlabs/go-stac for convenience
type (
	Item       = gostac.Item
	Collection = gostac.Collection
	Asset      = gostac.Asset
	Link       = gostac.Link
	Provider   = gostac.Provider
	Extent     = gostac.Extent
)

// Version is the STAC version written into every document.
const Version = "1.0.0"

// Media types used in links and assets.
const (
	MediaTypeJSON    = "application/json"
	MediaTypeGeoJSON = "application/geo+json"
	MediaTypeGeoTIFF = "image/tiff; application=geotiff"
)

// ItemCollection represents a STAC ItemCollection (GeoJSON FeatureCollection)
// with the paging fields of the STAC API.
type ItemCollection struct {
	Type           string         `json:"type"` // "FeatureCollection"
	Features       []*gostac.Item `json:"features"`
	Links          []*gostac.Link `json:"links"`
	NumberMatched  *int           `json:"numberMatched,omitempty"`
	NumberReturned int            `json:"numberReturned"`
	Context        *Context       `json:"context,omitempty"`
}

// Context provides additional metadata about the response (STAC Context extension)
type Context struct {
	Returned int  `json:"returned"`
	Limit    int  `json:"limit,omitempty"`
	Matched  *int `json:"matched,omitempty"`
}

// NewItemCollection creates a new ItemCollection with the given items.
func NewItemCollection(items []*gostac.Item) *ItemCollection {
	if items == nil {
		items = make([]*gostac.Item, 0)
	}
	return &ItemCollection{
		Type:           "FeatureCollection",
		Features:       items,
		Links:          make([]*gostac.Link, 0),
		NumberReturned: len(items),
	}
}

// AddLink adds a link to the ItemCollection.
func (ic *ItemCollection) AddLink(rel, href, mediaType string) {
	ic.Links = append(ic.Links, &gostac.Link{
		Rel:  rel,
		Href: href,
		Type: mediaType,
	})
}

// SetContext sets the context metadata for the ItemCollection.
func (ic *ItemCollection) SetContext(returned, limit int, matched *int) {
	ic.Context = &Context{
		Returned: returned,
		Limit:    limit,
		Matched:  matched,
	}
	if matched != nil {
		ic.NumberMatched = matched
	}
}

// NewItem creates a new STAC Item with the given ID and collection.
func NewItem(id, collection string) *gostac.Item {
	return &gostac.Item{
		Version:    Version,
		Id:         id,
		Collection: collection,
		Properties: make(map[string]any),
		Assets:     make(map[string]*gostac.Asset),
		Links:      make([]*gostac.Link, 0),
	}
}

// NewCollection creates a new STAC Collection with the given ID.
func NewCollection(id, title, description string) *gostac.Collection {
	return &gostac.Collection{
		Version:     Version,
		Id:          id,
		Title:       title,
		Description: description,
		License:     "proprietary",
		Links:       make([]*gostac.Link, 0),
		Summaries:   make(map[string]any),
	}
}

// CollectionsList represents a list of collections response.
type CollectionsList struct {
	Collections []*gostac.Collection `json:"collections"`
	Links       []*gostac.Link       `json:"links"`
}

// NewCollectionsList creates a new CollectionsList.
func NewCollectionsList(collections []*gostac.Collection) *CollectionsList {
	if collections == nil {
		collections = make([]*gostac.Collection, 0)
	}
	return &CollectionsList{
		Collections: collections,
		Links:       make([]*gostac.Link, 0),
	}
}

// Conformance represents the conformance classes response.
type Conformance struct {
	ConformsTo []string `json:"conformsTo"`
}

// LandingPage represents the STAC API landing page response.
type LandingPage struct {
	Type        string         `json:"type"` // "Catalog"
	Id          string         `json:"id"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description"`
	StacVersion string         `json:"stac_version"`
	ConformsTo  []string       `json:"conformsTo,omitempty"`
	Links       []*gostac.Link `json:"links"`
}

// NewLandingPage creates a new landing page response.
func NewLandingPage(id, title, description string, conformsTo []string) *LandingPage {
	return &LandingPage{
		Type:        "Catalog",
		Id:          id,
		Title:       title,
		Description: description,
		StacVersion: Version,
		ConformsTo:  conformsTo,
		Links:       make([]*gostac.Link, 0),
	}
}

// AddLink adds a link to the landing page.
func (lp *LandingPage) AddLink(rel, href, mediaType string) {
	lp.Links = append(lp.Links, &gostac.Link{
		Rel:  rel,
		Href: href,
		Type: mediaType,
	})
}

// Standard STAC conformance URIs
const (
	ConformanceCore           = "https://api.stacspec.org/v1.0.0/core"
	ConformanceCollections    = "https://api.stacspec.org/v1.0.0/collections"
	ConformanceOGCFeatures    = "https://api.stacspec.org/v1.0.0/ogcapi-features"
	ConformanceOGCFeatCore    = "http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/core"
	ConformanceOGCFeatGeoJSON = "http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/geojson"
)

// DefaultConformance returns the conformance classes served by the API.
func DefaultConformance() []string {
	return []string{
		ConformanceCore,
		ConformanceCollections,
		ConformanceOGCFeatures,
		ConformanceOGCFeatCore,
		ConformanceOGCFeatGeoJSON,
	}
}

