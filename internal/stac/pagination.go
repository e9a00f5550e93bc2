package stac

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Limits applied to item listings.
const (
	DefaultLimit = 10
	MaxLimit     = 1000
)

// Cursor marks the position of the next page in a listing.
type Cursor struct {
	// Offset is the index of the first item of the page.
	Offset int `json:"o"`
}

// EncodeCursor encodes a cursor to a URL-safe string.
// Returns an empty string if the cursor is nil or encoding fails.
func EncodeCursor(cursor *Cursor) string {
	if cursor == nil {
		return ""
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor decodes a cursor from a URL-safe string. An empty string
// decodes to a nil cursor.
func DecodeCursor(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, nil
	}
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	if cursor.Offset < 0 {
		return nil, fmt.Errorf("invalid cursor: negative offset %d", cursor.Offset)
	}
	return &cursor, nil
}

// Page returns the slice of items selected by cursor and limit, and the
// cursor of the following page (nil on the last page).
func Page[T any](items []T, cursor *Cursor, limit int) ([]T, *Cursor) {
	start := 0
	if cursor != nil {
		start = cursor.Offset
	}
	if start >= len(items) {
		return []T{}, nil
	}
	end := start + limit
	if limit <= 0 || end >= len(items) {
		return items[start:], nil
	}
	return items[start:end], &Cursor{Offset: end}
}

// PaginationInfo holds information needed to generate pagination links.
type PaginationInfo struct {
	BaseURL     string
	Limit       int
	QueryParams url.Values // Original query parameters
	Current     *Cursor
	Next        *Cursor
}

// BuildPaginationLinks generates next and prev links.
func BuildPaginationLinks(info PaginationInfo) []*Link {
	links := make([]*Link, 0, 2)

	if info.Current != nil && info.Current.Offset > 0 {
		prev := info.Current.Offset - info.Limit
		var cursor *Cursor
		if prev > 0 {
			cursor = &Cursor{Offset: prev}
		}
		links = append(links, &Link{
			Rel:  "prev",
			Href: buildCursorURL(info.BaseURL, info.QueryParams, cursor, info.Limit),
			Type: MediaTypeGeoJSON,
		})
	}

	if info.Next != nil {
		links = append(links, &Link{
			Rel:  "next",
			Href: buildCursorURL(info.BaseURL, info.QueryParams, info.Next, info.Limit),
			Type: MediaTypeGeoJSON,
		})
	}

	return links
}

// buildCursorURL constructs a URL with the cursor parameter.
func buildCursorURL(baseURL string, params url.Values, cursor *Cursor, limit int) string {
	// Clone the params to avoid modifying the original
	newParams := url.Values{}
	for key, values := range params {
		if key == "cursor" {
			continue
		}
		for _, value := range values {
			newParams.Add(key, value)
		}
	}

	if encoded := EncodeCursor(cursor); encoded != "" {
		newParams.Set("cursor", encoded)
	}
	if limit > 0 {
		newParams.Set("limit", strconv.Itoa(limit))
	}

	if len(newParams) > 0 {
		return baseURL + "?" + newParams.Encode()
	}
	return baseURL
}

// ParseLimit parses the limit query parameter, applying DefaultLimit when it
// is empty and capping it at MaxLimit.
func ParseLimit(s string) (int, error) {
	if s == "" {
		return DefaultLimit, nil
	}
	limit, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q: %w", s, err)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit, nil
}
