// Package fetch provides the shared rate-limited HTTP client that source
// implementations use for metadata, listing and content requests
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client is a polite HTTP fetcher: one request at a time per client, spaced
// by a configurable delay, with a browser user agent and bounded timeout
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// Options configures a fetch client
type Options struct {
	// DelaySeconds is the minimum spacing between requests; zero disables pacing
	DelaySeconds float64
	// TimeoutSeconds bounds each request; defaults to 30
	TimeoutSeconds int
	UserAgent      string
}

// New creates a new polite fetch client
func New(opts Options) *Client {
	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if opts.DelaySeconds > 0 {
		limit = rate.Limit(1 / opts.DelaySeconds)
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		userAgent:  opts.UserAgent,
	}
}

// Get fetches the given URL and returns the response body. Requests are
// paced by the configured delay; a canceled context interrupts the wait.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for request slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

// GetString fetches the given URL and returns the body as a string
func (c *Client) GetString(ctx context.Context, url string) (string, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
