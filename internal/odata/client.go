// Package odata is a client for the Copernicus Data Space Ecosystem OData
// catalogue and its product download service.
package odata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const userAgent = "s2-parcels/1.0"

// Copernicus Data Space endpoints.
const (
	DefaultBaseURL     = "https://catalogue.dataspace.copernicus.eu/odata/v1"
	DefaultDownloadURL = "https://zipper.dataspace.copernicus.eu/odata/v1"
)

// ErrProductNotFound is returned when a product id is unknown.
var ErrProductNotFound = errors.New("product not found")

// Client handles communication with the OData catalogue.
type Client struct {
	baseURL     string
	downloadURL string
	httpClient  *http.Client
	limiter     *rate.Limiter
	tokens      *TokenSource
	logger      *slog.Logger
}

// NewClient creates a new OData client. baseURL is the catalogue root, e.g.
// https://catalogue.dataspace.copernicus.eu/odata/v1. The timeout bounds
// catalogue requests only; downloads are bounded by their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		downloadURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithDownloadURL sets the root of the download service, e.g.
// https://zipper.dataspace.copernicus.eu/odata/v1.
func (c *Client) WithDownloadURL(downloadURL string) *Client {
	c.downloadURL = strings.TrimSuffix(downloadURL, "/")
	return c
}

// WithRateLimit paces requests to at most perSecond requests per second.
// Zero or negative disables pacing.
func (c *Client) WithRateLimit(perSecond float64, burst int) *Client {
	if perSecond <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		return c
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	return c
}

// WithTokenSource sets the bearer token source used for downloads.
func (c *Client) WithTokenSource(ts *TokenSource) *Client {
	c.tokens = ts
	return c
}

// Search runs a product query and returns one page of results.
func (c *Client) Search(ctx context.Context, params SearchParams) (*ProductsResponse, error) {
	searchURL := c.baseURL + "/Products?" + params.ToQueryString()
	return c.fetchPage(ctx, searchURL)
}

// Next fetches the page behind an @odata.nextLink.
func (c *Client) Next(ctx context.Context, nextLink string) (*ProductsResponse, error) {
	if _, err := url.Parse(nextLink); err != nil {
		return nil, fmt.Errorf("invalid next link: %w", err)
	}
	return c.fetchPage(ctx, nextLink)
}

// SearchAll runs a product query and follows next links until the result set
// is exhausted or maxResults products were collected (0 means no limit).
func (c *Client) SearchAll(ctx context.Context, params SearchParams, maxResults int) ([]Product, error) {
	page, err := c.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	products := page.Value
	for page.NextLink != "" && (maxResults <= 0 || len(products) < maxResults) {
		page, err = c.Next(ctx, page.NextLink)
		if err != nil {
			return nil, err
		}
		if len(page.Value) == 0 {
			break
		}
		products = append(products, page.Value...)
	}

	if maxResults > 0 && len(products) > maxResults {
		products = products[:maxResults]
	}
	return products, nil
}

// GetProduct retrieves a single product by id.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid product id %q: %w", id, err)
	}

	productURL := fmt.Sprintf("%s/Products(%s)?$expand=Attributes", c.baseURL, pid)
	resp, err := c.get(ctx, productURL, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if err := c.checkStatus(ctx, resp); err != nil {
		return nil, err
	}

	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode product: %w", err)
	}
	return &p, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*ProductsResponse, error) {
	c.logger.DebugContext(ctx, "executing OData search",
		slog.String("url", pageURL),
	)

	resp, err := c.get(ctx, pageURL, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(ctx, resp); err != nil {
		return nil, err
	}

	var result ProductsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode OData response",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to decode OData response: %w", err)
	}

	c.logger.DebugContext(ctx, "OData search completed",
		slog.Int("product_count", len(result.Value)),
		slog.Bool("has_next", result.NextLink != ""),
	)

	return &result, nil
}

// get issues a paced GET request. A non-empty token is sent as bearer.
func (c *Client) get(ctx context.Context, target, token string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "OData request failed",
			slog.String("error", err.Error()),
			slog.String("url", target),
		)
		return nil, fmt.Errorf("OData request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) checkStatus(ctx context.Context, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	c.logger.ErrorContext(ctx, "OData API returned non-200 status",
		slog.Int("status_code", resp.StatusCode),
		slog.String("response_body", string(body)),
	)
	return fmt.Errorf("OData API returned status %d: %s", resp.StatusCode, string(body))
}
