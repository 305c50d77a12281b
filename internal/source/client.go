// Package source fetches raw trade activity records from upstream
// providers. Each adapter targets exactly one endpoint shape; records
// are returned as opaque mappings so that provider schema drift never
// breaks the fetch path.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Raw is one unparsed upstream activity record.
type Raw map[string]any

// Adapter is one upstream data source integration. A transport or
// non-2xx response yields an error that the caller treats as "zero
// records this cycle", never as fatal.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, walletAddress string, limit int) ([]Raw, error)
}

// Client is the shared HTTP core used by all adapters: per-host rate
// limiting plus linear-backoff retry on transport errors and 5xx.
type Client struct {
	http           *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a Client. Zero values fall back to sane defaults.
func NewClient(timeout time.Duration, maxRetries int, retryDelayBase time.Duration, ratePerSec float64) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	return &Client{
		http:           &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)+1),
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// GetJSON performs a rate-limited GET and decodes a 2xx JSON body into
// out. Transport errors, 429 and 5xx are retried with linear backoff;
// any other non-2xx status fails immediately.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	t := time.NewTimer(c.retryDelayBase * time.Duration(attempt+1))
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
