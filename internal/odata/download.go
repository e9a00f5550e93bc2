package odata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// ProgressFunc receives the bytes written so far and the expected total (-1
// when unknown).
type ProgressFunc func(written, total int64)

// Download streams the zipped product with the given id into w. A 401 is
// retried once with a fresh token.
func (c *Client) Download(ctx context.Context, id string, w io.Writer, progress ProgressFunc) (int64, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return 0, fmt.Errorf("invalid product id %q: %w", id, err)
	}
	if c.tokens == nil {
		return 0, fmt.Errorf("download requires a token source")
	}

	target := fmt.Sprintf("%s/Products(%s)/$value", c.downloadURL, pid)

	var resp *http.Response
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return 0, err
		}

		resp, err = c.getStream(ctx, target, token)
		if err != nil {
			return 0, err
		}
		if resp.StatusCode != http.StatusUnauthorized {
			break
		}
		resp.Body.Close()
		c.tokens.Invalidate()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if err := c.checkStatus(ctx, resp); err != nil {
		return 0, err
	}

	c.logger.DebugContext(ctx, "downloading product",
		slog.String("id", id),
		slog.Int64("content_length", resp.ContentLength),
	)

	dst := w
	if progress != nil {
		dst = &progressWriter{w: w, total: resp.ContentLength, fn: progress}
	}
	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download of %s interrupted after %d bytes: %w", id, n, err)
	}
	return n, nil
}

// getStream is get without the client timeout, which would cut long
// downloads short.
func (c *Client) getStream(ctx context.Context, target, token string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Transport: c.httpClient.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	return resp, nil
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	fn      ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.fn(p.written, p.total)
	return n, err
}
