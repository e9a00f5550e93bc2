package api

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"

	"github.com/rkm/s2-parcels/internal/aoi"
	"github.com/rkm/s2-parcels/internal/ledger"
	"github.com/rkm/s2-parcels/internal/product"
	intstac "github.com/rkm/s2-parcels/internal/stac"
	"github.com/rkm/s2-parcels/internal/translate"
	"github.com/rkm/s2-parcels/internal/workspace"
)

// Default landing page texts.
const (
	DefaultTitle       = "s2-parcels"
	DefaultDescription = "Sentinel-2 vegetation indices clipped to land parcels"
)

// Handlers contains all HTTP handlers of the catalogue.
type Handlers struct {
	workspace   *workspace.Workspace
	ledger      *ledger.Store
	links       intstac.Links
	title       string
	description string
	footprints  map[string]orb.Polygon
	logger      *slog.Logger
}

// NewHandlers creates handlers serving the outputs of ws and the records of
// store. baseURL is used for every link and must not end with a slash.
func NewHandlers(ws *workspace.Workspace, store *ledger.Store, baseURL string, logger *slog.Logger) *Handlers {
	return &Handlers{
		workspace:   ws,
		ledger:      store,
		links:       intstac.Links{BaseURL: baseURL},
		title:       DefaultTitle,
		description: DefaultDescription,
		footprints:  make(map[string]orb.Polygon),
		logger:      logger,
	}
}

// WithPolygons attaches polygon geometries so collections and items carry
// their footprint. Polygons must be in EPSG:4326.
func (h *Handlers) WithPolygons(polygons []aoi.Polygon) *Handlers {
	for _, p := range polygons {
		h.footprints[p.Name] = p.Geometry
	}
	return h
}

// WithTitle overrides the landing page title and description.
func (h *Handlers) WithTitle(title, description string) *Handlers {
	if title != "" {
		h.title = title
	}
	if description != "" {
		h.description = description
	}
	return h
}

// LandingPage returns the root catalog.
// GET /
func (h *Handlers) LandingPage(w http.ResponseWriter, r *http.Request) {
	baseURL := h.links.BaseURL

	landing := intstac.NewLandingPage("s2-parcels", h.title, h.description, intstac.DefaultConformance())
	landing.AddLink("self", baseURL+"/", intstac.MediaTypeJSON)
	landing.AddLink("root", baseURL+"/", intstac.MediaTypeJSON)
	landing.AddLink("conformance", baseURL+"/conformance", intstac.MediaTypeJSON)
	landing.AddLink("data", baseURL+"/collections", intstac.MediaTypeJSON)
	landing.AddLink("items", baseURL+"/products", intstac.MediaTypeGeoJSON)

	WriteJSON(w, http.StatusOK, landing)
}

// Conformance returns the conformance classes supported by this API.
// GET /conformance
func (h *Handlers) Conformance(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, &intstac.Conformance{
		ConformsTo: intstac.DefaultConformance(),
	})
}

// Collections lists one collection per polygon in the output tree.
// GET /collections
func (h *Handlers) Collections(w http.ResponseWriter, r *http.Request) {
	polygons, err := h.workspace.Scan()
	if err != nil {
		h.logger.Error("failed to scan workspace",
			slog.String("root", h.workspace.Root()),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to list collections")
		return
	}

	collections := make([]*intstac.Collection, 0, len(polygons))
	for _, p := range polygons {
		collections = append(collections, intstac.PolygonCollection(p, h.footprints[p.Name], h.links))
	}

	response := intstac.NewCollectionsList(collections)
	response.Links = append(response.Links,
		&intstac.Link{Rel: "self", Href: h.links.BaseURL + "/collections", Type: intstac.MediaTypeJSON},
		&intstac.Link{Rel: "root", Href: h.links.BaseURL + "/", Type: intstac.MediaTypeJSON},
	)

	WriteJSON(w, http.StatusOK, response)
}

// Collection returns a single polygon collection.
// GET /collections/{collectionId}
func (h *Handlers) Collection(w http.ResponseWriter, r *http.Request) {
	polygon, ok := h.lookup(w, chi.URLParam(r, "collectionId"))
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, intstac.PolygonCollection(polygon, h.footprints[polygon.Name], h.links))
}

// Items lists the dated items of a polygon, oldest first.
// GET /collections/{collectionId}/items?datetime=&limit=&cursor=
func (h *Handlers) Items(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionId")
	polygon, ok := h.lookup(w, collectionID)
	if !ok {
		return
	}

	q, err := parseListQuery(r)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	var dates []time.Time
	for _, day := range polygon.Dates() {
		if q.Time.Contains(day) {
			dates = append(dates, day)
		}
	}
	page, next := intstac.Page(dates, q.Cursor, q.Limit)

	footprint := h.footprints[polygon.Name]
	items := make([]*intstac.Item, 0, len(page))
	for _, day := range page {
		item, err := intstac.OutputItem(polygon, day, footprint, h.workspace.Root(), h.links)
		if err != nil {
			h.logger.Error("failed to build item",
				slog.String("collection_id", collectionID),
				slog.String("date", translate.FormatFileDay(day)),
				slog.String("error", err.Error()),
			)
			WriteInternalError(w, "failed to build items")
			return
		}
		items = append(items, item)
	}

	matched := len(dates)
	itemCollection := intstac.NewItemCollection(items)
	itemCollection.NumberMatched = &matched
	itemCollection.SetContext(len(items), q.Limit, &matched)

	selfURL := h.links.Items(collectionID)
	itemCollection.AddLink("self", selfURL, intstac.MediaTypeGeoJSON)
	itemCollection.AddLink("root", h.links.BaseURL+"/", intstac.MediaTypeJSON)
	itemCollection.AddLink("parent", h.links.Collection(collectionID), intstac.MediaTypeJSON)
	itemCollection.AddLink("collection", h.links.Collection(collectionID), intstac.MediaTypeJSON)
	itemCollection.Links = append(itemCollection.Links, intstac.BuildPaginationLinks(intstac.PaginationInfo{
		BaseURL:     selfURL,
		Limit:       q.Limit,
		QueryParams: r.URL.Query(),
		Current:     q.Cursor,
		Next:        next,
	})...)

	WriteGeoJSON(w, http.StatusOK, itemCollection)
}

// Item returns the outputs of a polygon on one date.
// GET /collections/{collectionId}/items/{itemId}
func (h *Handlers) Item(w http.ResponseWriter, r *http.Request) {
	polygon, ok := h.lookup(w, chi.URLParam(r, "collectionId"))
	if !ok {
		return
	}

	itemID := chi.URLParam(r, "itemId")
	day, err := translate.ParseFileDay(itemID)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}
	if len(polygon.OnDate(day)) == 0 {
		WriteNotFound(w, fmt.Sprintf("item %q not found", itemID))
		return
	}

	item, err := intstac.OutputItem(polygon, day, h.footprints[polygon.Name], h.workspace.Root(), h.links)
	if err != nil {
		h.logger.Error("failed to build item",
			slog.String("collection_id", polygon.Name),
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to build item")
		return
	}

	WriteGeoJSON(w, http.StatusOK, item)
}

// Products returns the ledger records as an item collection.
// GET /products?bbox=&datetime=&limit=&cursor=
func (h *Handlers) Products(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	records, err := h.ledger.Load()
	if err != nil {
		h.logger.Error("failed to load ledger",
			slog.String("path", h.ledger.Path()),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to read product ledger")
		return
	}

	var matches []product.Product
	for _, p := range records {
		if q.matches(p) {
			matches = append(matches, p)
		}
	}
	page, next := intstac.Page(matches, q.Cursor, q.Limit)

	items := make([]*intstac.Item, 0, len(page))
	for _, p := range page {
		item, err := intstac.ProductItem(p, h.links)
		if err != nil {
			h.logger.Warn("failed to translate product",
				slog.String("product_id", p.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		items = append(items, item)
	}

	matched := len(matches)
	itemCollection := intstac.NewItemCollection(items)
	itemCollection.NumberMatched = &matched
	itemCollection.SetContext(len(items), q.Limit, &matched)

	selfURL := h.links.BaseURL + "/products"
	itemCollection.AddLink("self", selfURL, intstac.MediaTypeGeoJSON)
	itemCollection.AddLink("root", h.links.BaseURL+"/", intstac.MediaTypeJSON)
	itemCollection.Links = append(itemCollection.Links, intstac.BuildPaginationLinks(intstac.PaginationInfo{
		BaseURL:     selfURL,
		Limit:       q.Limit,
		QueryParams: r.URL.Query(),
		Current:     q.Cursor,
		Next:        next,
	})...)

	WriteGeoJSON(w, http.StatusOK, itemCollection)
}

// Files serves raw outputs below the workspace root. GeoTIFFs carry the media
// type their item assets advertise.
// GET /files/*
func (h *Handlers) Files() http.Handler {
	files := http.StripPrefix("/files", http.FileServer(noDirFS{http.Dir(h.workspace.Root())}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch strings.ToLower(path.Ext(r.URL.Path)) {
		case ".tiff", ".tif":
			w.Header().Set("Content-Type", intstac.MediaTypeGeoTIFF)
		}
		files.ServeHTTP(w, r)
	})
}

// Health returns the health status of the service.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// lookup scans the polygon named name, writing the error response itself
// when it cannot.
func (h *Handlers) lookup(w http.ResponseWriter, name string) (workspace.Polygon, bool) {
	polygon, err := h.workspace.Lookup(name)
	switch {
	case err == nil:
		return polygon, true
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, workspace.ErrInvalidName):
		WriteNotFound(w, fmt.Sprintf("collection %q not found", name))
	default:
		h.logger.Error("failed to scan polygon",
			slog.String("collection_id", name),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to read collection")
	}
	return workspace.Polygon{}, false
}

// noDirFS hides directory listings from the file server.
type noDirFS struct {
	fs http.FileSystem
}

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
