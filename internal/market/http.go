// internal/market/http.go
package market

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v5"
)

const maxBodySize = 4 << 20

// FetchJSON performs a GET and returns the body of a 2xx response.
// Rejected credentials are reported as permanent so retries stop early.
func FetchJSON(ctx context.Context, client *http.Client, provider, symbol, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(Unavailable(provider, symbol, err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, Classify(provider, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, Classify(provider, symbol, fmt.Errorf("read body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(Unavailable(provider, symbol,
			fmt.Errorf("status %d: credentials rejected", resp.StatusCode)))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, Unavailable(provider, symbol, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200)))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
