// internal/api/client.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vanlt3/LifeTime-Swing/internal/alert"
	"github.com/vanlt3/LifeTime-Swing/internal/health"
	"github.com/vanlt3/LifeTime-Swing/internal/position"
)

// Client reads the monitor API. The dashboard polls through it.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the API at baseURL, e.g. http://127.0.0.1:8080.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Status(ctx context.Context) (health.Status, error) {
	var st health.Status
	err := c.get(ctx, "/status", nil, &st)
	return st, err
}

func (c *Client) Alerts(ctx context.Context, limit int) ([]alert.Alert, error) {
	var out []alert.Alert
	err := c.get(ctx, "/alerts", url.Values{"limit": {strconv.Itoa(limit)}}, &out)
	return out, err
}

func (c *Client) Positions(ctx context.Context) ([]position.Position, error) {
	var out []position.Position
	err := c.get(ctx, "/positions", nil, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
