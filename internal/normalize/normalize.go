// Package normalize maps raw upstream activity records into canonical
// trade events.
//
// Upstream providers disagree on field names and units, so every logical
// field is resolved through an ordered extractor chain: the first present
// field wins. The chains below are the normalization contract shared by
// all adapters; they are defined once, not per call site.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/walletwatch/engine/internal/models"
	"github.com/walletwatch/engine/internal/source"
)

// Extractor chains, in priority order. Resolution tries each name and
// takes the first key present in the record.
var (
	idChain        = []string{"id", "trade_id", "tradeId"}
	txHashChain    = []string{"transactionHash", "transaction_hash", "txHash"}
	marketChain    = []string{"condition_id", "conditionId", "market", "asset_id", "assetId", "asset"}
	sideChain      = []string{"side", "type"}
	outcomeChain   = []string{"outcome", "side"}
	priceChain     = []string{"price"}
	quantityChain  = []string{"size", "amount", "shares"}
	notionalChain  = []string{"usdcSize", "usd_size", "value", "total"}
	timestampChain = []string{"timestamp", "match_time", "created_at"}
)

// fingerprintSep joins the fingerprint components.
const fingerprintSep = "-"

// secondsCutoff distinguishes Unix seconds from milliseconds: numeric
// timestamps below it are seconds and get scaled by 1000.
const secondsCutoff = 10_000_000_000

// maxClockSkew is how far into the future an event time may point before
// it is treated as garbage rather than a trade.
const maxClockSkew = 24 * time.Hour

// defaultOutcome labels a position when no outcome field resolves.
const defaultOutcome = "N/A"

var now = time.Now

// Trade maps one raw record into a canonical TradeEvent. It never fails:
// every missing or malformed field falls back to a documented default
// (side Unknown, outcome "N/A", price/quantity zero, timestamp absent).
func Trade(rec source.Raw, sourceName string) models.TradeEvent {
	price := firstDecimal(rec, priceChain)
	quantity := firstDecimal(rec, quantityChain)

	notional, ok := lookupDecimal(rec, notionalChain)
	if !ok {
		notional = price.Mul(quantity)
	}
	if notional.IsNegative() {
		notional = decimal.Zero
	}

	marketRef, _ := firstString(rec, marketChain)

	return models.TradeEvent{
		Fingerprint: Fingerprint(rec),
		MarketRef:   marketRef,
		Side:        side(rec),
		Outcome:     outcome(rec),
		Price:       price,
		Quantity:    quantity,
		NotionalUSD: notional,
		OccurredAt:  occurredAt(rec),
		RawSource:   sourceName,
	}
}

// Fingerprint composes the stable dedup key: record id and transaction
// hash when present, then the raw timestamp field and the market/asset
// identifier. Records carrying neither id nor hash fall back to
// timestamp+market granularity, which is the accepted collision floor.
func Fingerprint(rec source.Raw) string {
	parts := make([]string, 0, 4)
	if id, ok := firstString(rec, idChain); ok && id != "" {
		parts = append(parts, id)
	}
	if hash, ok := firstString(rec, txHashChain); ok && hash != "" {
		parts = append(parts, hash)
	}
	ts, _ := firstString(rec, timestampChain)
	market, _ := firstString(rec, marketChain)
	parts = append(parts, ts, market)
	return strings.Join(parts, fingerprintSep)
}

func side(rec source.Raw) models.Side {
	raw, _ := firstString(rec, sideChain)
	switch strings.ToUpper(raw) {
	case "BUY":
		return models.SideBuy
	case "SELL":
		return models.SideSell
	default:
		return models.SideUnknown
	}
}

func outcome(rec source.Raw) string {
	if v, ok := firstString(rec, outcomeChain); ok && v != "" {
		return v
	}
	return defaultOutcome
}

// occurredAt validates the upstream timestamp. Numeric values below the
// seconds cutoff are Unix seconds and get scaled to milliseconds. A time
// outside [2020-01-01T00:00Z, now+24h] is unparseable, not a valid trade.
func occurredAt(rec source.Raw) *time.Time {
	raw, ok := firstValue(rec, timestampChain)
	if !ok {
		return nil
	}

	var t time.Time
	switch v := raw.(type) {
	case float64:
		t = fromNumeric(v)
	case int64:
		t = fromNumeric(float64(v))
	case string:
		if ms, err := strconv.ParseFloat(v, 64); err == nil {
			t = fromNumeric(ms)
		} else if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			t = parsed
		} else {
			return nil
		}
	default:
		return nil
	}

	if t.Before(models.EpochFloor) || t.After(now().Add(maxClockSkew)) {
		return nil
	}
	return &t
}

func fromNumeric(v float64) time.Time {
	if v < secondsCutoff {
		v *= 1000
	}
	return time.UnixMilli(int64(v)).UTC()
}

// firstValue returns the first present value along the chain.
func firstValue(rec source.Raw, chain []string) (any, bool) {
	for _, key := range chain {
		if v, ok := rec[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// firstString resolves a chain to the value's string form. Numbers are
// rendered without an exponent so that fingerprints stay byte-stable.
func firstString(rec source.Raw, chain []string) (string, bool) {
	v, ok := firstValue(rec, chain)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return fmt.Sprintf("%v", s), true
	}
}

func lookupDecimal(rec source.Raw, chain []string) (decimal.Decimal, bool) {
	v, ok := firstValue(rec, chain)
	if !ok {
		return decimal.Zero, false
	}
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// firstDecimal resolves a chain to a non-negative decimal, zero on any
// missing or malformed value.
func firstDecimal(rec source.Raw, chain []string) decimal.Decimal {
	d, ok := lookupDecimal(rec, chain)
	if !ok || d.IsNegative() {
		return decimal.Zero
	}
	return d
}
