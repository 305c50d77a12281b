// Package resolver turns opaque market identifiers into human-readable
// titles and canonical web links, with an in-process cache.
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/walletwatch/engine/internal/logger"
	"github.com/walletwatch/engine/internal/models"
	"github.com/walletwatch/engine/internal/source"
)

// eventURLBase is the canonical web link prefix for resolved markets.
const eventURLBase = "https://polymarket.com/event/"

// marketDescriptor is the subset of the gamma market payload we read.
type marketDescriptor struct {
	Question string `json:"question"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
}

// Resolver looks up market metadata from the gamma API. Cache entries
// are immutable and never evicted: titles and links do not change within
// a watch session and cardinality is bounded by distinct markets traded.
// Failures and empty results cache nothing, so a transient miss can be
// retried on a later cycle.
type Resolver struct {
	gammaURL string
	client   *source.Client

	mu    sync.Mutex
	cache map[string]*models.MarketInfo
}

// New creates a Resolver backed by the given gamma API base URL.
func New(gammaURL string, client *source.Client) *Resolver {
	return &Resolver{
		gammaURL: strings.TrimSuffix(gammaURL, "/"),
		client:   client,
		cache:    make(map[string]*models.MarketInfo),
	}
}

// Resolve returns the market descriptor for marketRef, or nil when the
// upstream lookup fails or returns nothing. A cache hit performs no I/O.
func (r *Resolver) Resolve(ctx context.Context, marketRef string) *models.MarketInfo {
	if marketRef == "" {
		return nil
	}

	r.mu.Lock()
	cached, ok := r.cache[marketRef]
	r.mu.Unlock()
	if ok {
		return cached
	}

	info, err := r.fetch(ctx, marketRef)
	if err != nil {
		logger.Debug("Market lookup failed for %s: %v", marketRef, err)
		return nil
	}
	if info == nil {
		return nil
	}

	r.mu.Lock()
	r.cache[marketRef] = info
	r.mu.Unlock()
	return info
}

// CacheSize returns the number of resolved markets held in memory.
func (r *Resolver) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

func (r *Resolver) fetch(ctx context.Context, marketRef string) (*models.MarketInfo, error) {
	u, err := url.Parse(r.gammaURL + "/markets")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("condition_id", marketRef)
	u.RawQuery = q.Encode()

	var descriptors []marketDescriptor
	if err := r.client.GetJSON(ctx, u.String(), &descriptors); err != nil {
		return nil, fmt.Errorf("failed to fetch market: %w", err)
	}
	if len(descriptors) == 0 {
		return nil, nil
	}

	d := descriptors[0]
	title := d.Question
	if title == "" {
		title = d.Title
	}
	if title == "" && d.Slug == "" {
		return nil, nil
	}

	info := &models.MarketInfo{MarketRef: marketRef, Title: title}
	if d.Slug != "" {
		info.Link = eventURLBase + d.Slug
	}
	return info, nil
}
