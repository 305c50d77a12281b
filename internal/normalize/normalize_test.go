package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/walletwatch/engine/internal/models"
	"github.com/walletwatch/engine/internal/source"
)

func TestTrade_CanonicalScenario(t *testing.T) {
	rec := source.Raw{
		"id":           "t1",
		"condition_id": "0xmarket",
		"side":         "BUY",
		"outcome":      "Yes",
		"price":        "0.5",
		"size":         "20",
		"timestamp":    float64(1700000000),
	}

	ev := Trade(rec, "data-api")

	if ev.Fingerprint != "t1-1700000000-0xmarket" {
		t.Errorf("fingerprint = %q", ev.Fingerprint)
	}
	if ev.Side != models.SideBuy {
		t.Errorf("side = %v", ev.Side)
	}
	if !ev.Price.Equal(mustDecimal(t, "0.5")) {
		t.Errorf("price = %s", ev.Price)
	}
	if !ev.Quantity.Equal(mustDecimal(t, "20")) {
		t.Errorf("quantity = %s", ev.Quantity)
	}
	if !ev.NotionalUSD.Equal(mustDecimal(t, "10")) {
		t.Errorf("notional = %s", ev.NotionalUSD)
	}
	if ev.OccurredAt == nil {
		t.Fatal("occurredAt should be valid")
	}
	want := time.Unix(1700000000, 0).UTC()
	if !ev.OccurredAt.Equal(want) {
		t.Errorf("occurredAt = %v, want %v", ev.OccurredAt, want)
	}
	if ev.RawSource != "data-api" {
		t.Errorf("rawSource = %q", ev.RawSource)
	}
	if err := ev.Validate(); err != nil {
		t.Errorf("normalized event should validate: %v", err)
	}
}

func TestTrade_DefaultsOnMissingFields(t *testing.T) {
	ev := Trade(source.Raw{"timestamp": float64(1700000000), "asset_id": "a1"}, "gamma")

	if ev.Side != models.SideUnknown {
		t.Errorf("side default: got %v", ev.Side)
	}
	if ev.Outcome != "N/A" {
		t.Errorf("outcome default: got %q", ev.Outcome)
	}
	if !ev.Price.IsZero() || !ev.Quantity.IsZero() || !ev.NotionalUSD.IsZero() {
		t.Errorf("numeric defaults: price=%s qty=%s notional=%s", ev.Price, ev.Quantity, ev.NotionalUSD)
	}
	if ev.Fingerprint == "" {
		t.Error("fingerprint must never be empty")
	}
}

func TestTrade_Idempotent(t *testing.T) {
	rec := source.Raw{
		"trade_id":        "abc",
		"transactionHash": "0xdead",
		"market":          "m1",
		"side":            "sell",
		"price":           0.42,
		"amount":          "7",
		"timestamp":       float64(1700000000),
	}
	a := Trade(rec, "data-api")
	b := Trade(rec, "data-api")

	if a.Fingerprint != b.Fingerprint {
		t.Errorf("fingerprints differ: %q vs %q", a.Fingerprint, b.Fingerprint)
	}
	if !a.Price.Equal(b.Price) || !a.Quantity.Equal(b.Quantity) || !a.NotionalUSD.Equal(b.NotionalUSD) {
		t.Error("numeric fields differ between identical normalizations")
	}
	if (a.OccurredAt == nil) != (b.OccurredAt == nil) {
		t.Error("timestamp presence differs")
	}
}

func TestFingerprint_PriorityAndFallback(t *testing.T) {
	tests := []struct {
		name string
		rec  source.Raw
		want string
	}{
		{
			name: "id and hash present",
			rec: source.Raw{
				"id":              "t9",
				"transactionHash": "0xabc",
				"timestamp":       float64(1700000000),
				"asset_id":        "a1",
			},
			want: "t9-0xabc-1700000000-a1",
		},
		{
			name: "hash only",
			rec: source.Raw{
				"transaction_hash": "0xabc",
				"timestamp":        float64(1700000000),
				"condition_id":     "c1",
			},
			want: "0xabc-1700000000-c1",
		},
		{
			name: "neither id nor hash falls back to timestamp+market",
			rec: source.Raw{
				"timestamp": float64(1700000000),
				"asset_id":  "a1",
			},
			want: "1700000000-a1",
		},
		{
			name: "condition_id outranks market and asset_id",
			rec: source.Raw{
				"condition_id": "c1",
				"market":       "m1",
				"asset_id":     "a1",
				"timestamp":    "1700000000",
			},
			want: "1700000000-c1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fingerprint(tt.rec)
			if got != tt.want {
				t.Errorf("Fingerprint() = %q, want %q", got, tt.want)
			}
			if got == "" {
				t.Error("fingerprint must never be empty")
			}
		})
	}
}

func TestOccurredAt_Validation(t *testing.T) {
	tests := []struct {
		name      string
		timestamp any
		wantValid bool
	}{
		{"unix seconds scaled to ms", float64(1700000000), true},
		{"unix milliseconds kept", float64(1700000000000), true},
		{"numeric string seconds", "1700000000", true},
		{"rfc3339 string", "2024-06-01T12:00:00Z", true},
		{"zero timestamp rejected", float64(0), false},
		{"pre-2020 rejected", float64(1500000000), false},
		{"overflow garbage rejected", float64(1000000000000000), false},
		{"non-numeric garbage rejected", "soon", false},
		{"missing timestamp", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := source.Raw{"asset_id": "a1"}
			if tt.timestamp != nil {
				rec["timestamp"] = tt.timestamp
			}
			ev := Trade(rec, "test")
			if (ev.OccurredAt != nil) != tt.wantValid {
				t.Errorf("occurredAt presence = %v, want %v", ev.OccurredAt != nil, tt.wantValid)
			}
		})
	}
}

func TestTrade_NotionalResolution(t *testing.T) {
	// An explicit total field outranks price × quantity.
	explicit := Trade(source.Raw{
		"price":     "0.5",
		"size":      "20",
		"usdcSize":  "12.5",
		"timestamp": float64(1700000000),
	}, "data-api")
	if !explicit.NotionalUSD.Equal(mustDecimal(t, "12.5")) {
		t.Errorf("explicit notional: got %s", explicit.NotionalUSD)
	}

	derived := Trade(source.Raw{
		"price":     "0.25",
		"amount":    "40",
		"timestamp": float64(1700000000),
	}, "data-api")
	if !derived.NotionalUSD.Equal(mustDecimal(t, "10")) {
		t.Errorf("derived notional: got %s", derived.NotionalUSD)
	}
}

func TestTrade_SideAndOutcomeFallbacks(t *testing.T) {
	// "type" backs up "side"; "side" backs up "outcome".
	ev := Trade(source.Raw{"type": "buy", "timestamp": float64(1700000000)}, "gamma")
	if ev.Side != models.SideBuy {
		t.Errorf("type fallback: got %v", ev.Side)
	}

	ev = Trade(source.Raw{"side": "SELL", "timestamp": float64(1700000000)}, "gamma")
	if ev.Outcome != "SELL" {
		t.Errorf("outcome side-fallback: got %q", ev.Outcome)
	}

	ev = Trade(source.Raw{"outcome": "No", "side": "BUY"}, "gamma")
	if ev.Outcome != "No" {
		t.Errorf("outcome field must win: got %q", ev.Outcome)
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}
