// Package overpass talks to an Overpass API interpreter endpoint.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// ErrGatewayTimeout is returned for HTTP 504, which the interpreter emits
// when it is overloaded. Callers may retry it.
var ErrGatewayTimeout = errors.New("overpass gateway timeout")

// Element is one node or way from an Overpass JSON response
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *Center           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Center is the computed center of a way when queried with `out center`
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Position returns the element coordinate, falling back to its center
func (e Element) Position() (float64, float64, bool) {
	if e.Lat != 0 || e.Lon != 0 {
		return e.Lat, e.Lon, true
	}
	if e.Center != nil {
		return e.Center.Lat, e.Center.Lon, true
	}
	return 0, 0, false
}

// Response is the decoded interpreter output
type Response struct {
	Elements []Element `json:"elements"`
}

// Client issues throttled queries against one interpreter
type Client struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewClient creates a client allowing rps requests per second with the
// given burst. timeout bounds each HTTP request.
func NewClient(baseURL string, rps float64, burst int, timeout time.Duration, userAgent string) *Client {
	return &Client{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		userAgent: userAgent,
	}
}

// QueryURL returns the GET URL for a query, suitable for display
func (c *Client) QueryURL(ql string) string {
	return c.baseURL + "?data=" + url.QueryEscape(ql)
}

// Query runs ql and decodes the element list
func (c *Client) Query(ctx context.Context, ql string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.QueryURL(ql), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query overpass: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGatewayTimeout {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrGatewayTimeout
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("overpass returned status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode overpass response: %w", err)
	}
	return &out, nil
}
