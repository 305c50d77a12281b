package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/walletwatch/engine/internal/models"
)

func newTestStorage(t *testing.T, maxTrades int) *Storage {
	t.Helper()
	s, err := New(maxTrades, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEvent(fp string, notional string, occurred *time.Time) *models.TradeEvent {
	return &models.TradeEvent{
		Fingerprint: fp,
		MarketRef:   "0xmarket",
		Side:        models.SideBuy,
		Outcome:     "Yes",
		Price:       decimal.RequireFromString("0.5"),
		Quantity:    decimal.RequireFromString("20"),
		NotionalUSD: decimal.RequireFromString(notional),
		OccurredAt:  occurred,
		RawSource:   "data-api",
	}
}

func TestStorage_RecordAndRecent(t *testing.T) {
	s := newTestStorage(t, 100)
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := s.RecordTrade(testEvent("t1", "10", &now)); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	events, err := s.RecentTrades(5)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Fingerprint != "t1" {
		t.Errorf("fingerprint = %q", ev.Fingerprint)
	}
	if ev.Side != models.SideBuy {
		t.Errorf("side = %v", ev.Side)
	}
	if !ev.NotionalUSD.Equal(decimal.RequireFromString("10")) {
		t.Errorf("notional = %s", ev.NotionalUSD)
	}
	if ev.OccurredAt == nil || !ev.OccurredAt.Equal(now) {
		t.Errorf("occurredAt = %v, want %v", ev.OccurredAt, now)
	}
}

func TestStorage_AbsentTimestampRoundTrips(t *testing.T) {
	s := newTestStorage(t, 100)
	if err := s.RecordTrade(testEvent("t1", "10", nil)); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	events, err := s.RecentTrades(1)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if events[0].OccurredAt != nil {
		t.Errorf("occurredAt should stay absent, got %v", events[0].OccurredAt)
	}
}

func TestStorage_RecentOrderNewestFirst(t *testing.T) {
	s := newTestStorage(t, 100)
	for i := 0; i < 3; i++ {
		if err := s.RecordTrade(testEvent(fmt.Sprintf("t%d", i), "10", nil)); err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
		time.Sleep(2 * time.Millisecond) // distinct recorded_at
	}

	events, err := s.RecentTrades(2)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Fingerprint != "t2" || events[1].Fingerprint != "t1" {
		t.Errorf("order = %s, %s; want t2, t1", events[0].Fingerprint, events[1].Fingerprint)
	}
}

func TestStorage_CapRotation(t *testing.T) {
	s := newTestStorage(t, 2)
	for i := 0; i < 5; i++ {
		if err := s.RecordTrade(testEvent(fmt.Sprintf("t%d", i), "10", nil)); err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	n, err := s.CountTrades()
	if err != nil {
		t.Fatalf("CountTrades: %v", err)
	}
	if n != 2 {
		t.Errorf("journal size = %d, want 2", n)
	}

	events, _ := s.RecentTrades(10)
	if events[0].Fingerprint != "t4" {
		t.Errorf("newest survivor = %s, want t4", events[0].Fingerprint)
	}
}

func TestStorage_RejectsInvalidEvent(t *testing.T) {
	s := newTestStorage(t, 100)
	bad := testEvent("", "10", nil) // empty fingerprint
	if err := s.RecordTrade(bad); err == nil {
		t.Error("expected validation error for empty fingerprint")
	}
}
