package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// DataAPI fetches wallet trades from the Polymarket data API
// (`/trades?user=<wallet>&limit=<n>`).
type DataAPI struct {
	baseURL string
	client  *Client
}

// NewDataAPI creates the data-api adapter.
func NewDataAPI(baseURL string, client *Client) *DataAPI {
	return &DataAPI{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

func (a *DataAPI) Name() string { return "data-api" }

func (a *DataAPI) Fetch(ctx context.Context, walletAddress string, limit int) ([]Raw, error) {
	return fetchTrades(ctx, a.client, a.baseURL, walletAddress, limit)
}

// Gamma fetches wallet trades from the Polymarket gamma API. Same query
// shape as the data API but a different host and record vocabulary; it
// acts as the secondary source the engine merges in.
type Gamma struct {
	baseURL string
	client  *Client
}

// NewGamma creates the gamma adapter.
func NewGamma(baseURL string, client *Client) *Gamma {
	return &Gamma{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

func (a *Gamma) Name() string { return "gamma" }

func (a *Gamma) Fetch(ctx context.Context, walletAddress string, limit int) ([]Raw, error) {
	return fetchTrades(ctx, a.client, a.baseURL, walletAddress, limit)
}

// fetchTrades issues the shared `/trades` request. The wallet address is
// lower-cased because the upstream user index is case-sensitive.
func fetchTrades(ctx context.Context, client *Client, baseURL, walletAddress string, limit int) ([]Raw, error) {
	u, err := url.Parse(baseURL + "/trades")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("user", strings.ToLower(walletAddress))
	q.Set("limit", fmt.Sprintf("%d", limit))
	u.RawQuery = q.Encode()

	var records []Raw
	if err := client.GetJSON(ctx, u.String(), &records); err != nil {
		return nil, fmt.Errorf("failed to fetch trades: %w", err)
	}
	return records, nil
}
