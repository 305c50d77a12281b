// Package models defines the core domain entities: trade events, market
// descriptors, and daily summaries.
package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side int

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// String returns the upper-case wire form of the side.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// TradeEvent is the canonical, normalized form of one trade reported by
// any upstream source. It is immutable once constructed.
type TradeEvent struct {
	// Fingerprint is the stable deduplication key. Two events with equal
	// fingerprints are the same logical trade.
	Fingerprint string `json:"fingerprint"`
	// MarketRef is the opaque upstream market identifier (condition id or
	// slug) used for resolver lookups.
	MarketRef string          `json:"market_ref"`
	Side      Side            `json:"side"`
	Outcome   string          `json:"outcome"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	// NotionalUSD is the total dollar value of the trade.
	NotionalUSD decimal.Decimal `json:"notional_usd"`
	// OccurredAt is the event time; nil when the upstream timestamp could
	// not be validated.
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
	// RawSource names the adapter that produced the record. Diagnostic only.
	RawSource string `json:"raw_source"`
}

// Validate checks trade event field constraints.
func (e *TradeEvent) Validate() error {
	if e.Fingerprint == "" {
		return errors.New("fingerprint must not be empty")
	}
	if e.Outcome == "" {
		return errors.New("outcome must not be empty")
	}
	if e.Price.IsNegative() {
		return errors.New("price must not be negative")
	}
	if e.Quantity.IsNegative() {
		return errors.New("quantity must not be negative")
	}
	if e.NotionalUSD.IsNegative() {
		return errors.New("notional must not be negative")
	}
	if e.OccurredAt != nil && e.OccurredAt.Before(EpochFloor) {
		return errors.New("occurred at must not predate the epoch floor")
	}
	return nil
}

// EpochFloor is the oldest event time considered valid. Anything earlier
// is a zero or garbage upstream timestamp, not a historical trade.
var EpochFloor = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// MarketInfo describes a resolved market: human-readable title and a
// canonical web link. Immutable once fetched.
type MarketInfo struct {
	MarketRef string `json:"market_ref"`
	Title     string `json:"title"`
	Link      string `json:"link"`
}

// DailySummary is the aggregate view of the current calendar day's
// accepted trades.
type DailySummary struct {
	Day           string          `json:"day"`
	Count         int             `json:"count"`
	TotalNotional decimal.Decimal `json:"total_notional"`
	AvgNotional   decimal.Decimal `json:"avg_notional"`
	BuyCount      int             `json:"buy_count"`
	SellCount     int             `json:"sell_count"`
	Top           []TradeEvent    `json:"top"`
}

// Empty reports whether the summary covers zero trades.
func (s DailySummary) Empty() bool {
	return s.Count == 0
}
