// Package stacapi provides a client for STAC API item search, used against the
// Copernicus Data Space STAC catalogue.
package stacapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the Copernicus Data Space STAC API.
	DefaultBaseURL = "https://stac.dataspace.copernicus.eu/v1"

	// DefaultCollection is the Sentinel-2 Level-2A collection.
	DefaultCollection = "sentinel-2-l2a"

	// DefaultPageSize is the default number of items per page.
	DefaultPageSize = 100
)

// Client handles communication with a STAC API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new STAC API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// Search runs an item search and returns the first page.
func (c *Client) Search(ctx context.Context, params *SearchParams) (*ItemCollection, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search parameters: %w", err)
	}
	body, err := params.Body()
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/search", body)
}

// Next follows a "next" link. POST links resend their body, merged into the
// previous request body when the link asks for it.
func (c *Client) Next(ctx context.Context, link *Link, previous []byte) (*ItemCollection, []byte, error) {
	method := strings.ToUpper(link.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodPost {
		page, err := c.do(ctx, http.MethodGet, link.Href, nil)
		return page, nil, err
	}

	body := []byte(link.Body)
	if link.Merge && len(previous) > 0 {
		merged, err := mergeBodies(previous, link.Body)
		if err != nil {
			return nil, nil, err
		}
		body = merged
	}
	if len(body) == 0 {
		body = previous
	}

	page, err := c.do(ctx, http.MethodPost, link.Href, body)
	return page, body, err
}

// SearchAll runs an item search and follows next links until the result set
// is exhausted or maxResults items were collected (0 means no limit).
func (c *Client) SearchAll(ctx context.Context, params *SearchParams, maxResults int) ([]Feature, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search parameters: %w", err)
	}
	body, err := params.Body()
	if err != nil {
		return nil, err
	}

	page, err := c.do(ctx, http.MethodPost, c.baseURL+"/search", body)
	if err != nil {
		return nil, err
	}

	features := page.Features
	for maxResults <= 0 || len(features) < maxResults {
		next := page.NextLink()
		if next == nil || len(page.Features) == 0 {
			break
		}
		page, body, err = c.Next(ctx, next, body)
		if err != nil {
			return nil, err
		}
		features = append(features, page.Features...)
	}

	if maxResults > 0 && len(features) > maxResults {
		features = features[:maxResults]
	}
	return features, nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (*ItemCollection, error) {
	c.logger.DebugContext(ctx, "executing STAC search",
		slog.String("method", method),
		slog.String("url", target),
	)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")
	req.Header.Set("User-Agent", "s2-parcels/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "STAC API request failed",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("STAC API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		c.logger.ErrorContext(ctx, "STAC API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)),
		)
		return nil, fmt.Errorf("STAC API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ItemCollection
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode STAC response: %w", err)
	}

	c.logger.DebugContext(ctx, "STAC search completed",
		slog.Int("feature_count", len(result.Features)),
	)
	return &result, nil
}

// mergeBodies overlays the keys of patch onto base.
func mergeBodies(base, patch []byte) ([]byte, error) {
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("invalid search body: %w", err)
	}
	if len(patch) > 0 {
		var overlay map[string]json.RawMessage
		if err := json.Unmarshal(patch, &overlay); err != nil {
			return nil, fmt.Errorf("invalid next link body: %w", err)
		}
		for k, v := range overlay {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
