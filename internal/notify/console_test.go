package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/walletwatch/engine/internal/models"
)

func TestConsoleNotifyTrade(t *testing.T) {
	var buf strings.Builder
	c := NewConsoleWriter(&buf)

	occurred := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	ev := models.TradeEvent{
		Side:        models.SideBuy,
		Outcome:     "Yes",
		Price:       decimal.RequireFromString("0.5"),
		Quantity:    decimal.RequireFromString("20"),
		NotionalUSD: decimal.RequireFromString("10"),
		OccurredAt:  &occurred,
	}
	market := &models.MarketInfo{Title: "Will it rain?"}

	if err := c.NotifyTrade(ev, market, "0xwallet"); err != nil {
		t.Fatalf("NotifyTrade: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"BUY", "Yes", "$0.50", "$10.00", "Will it rain?", "0xwallet"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConsoleNotifySummary(t *testing.T) {
	var buf strings.Builder
	c := NewConsoleWriter(&buf)

	s := models.DailySummary{
		Day:           "2024-03-01",
		Count:         2,
		TotalNotional: decimal.RequireFromString("40"),
		AvgNotional:   decimal.RequireFromString("20"),
		BuyCount:      1,
		SellCount:     1,
		Top: []models.TradeEvent{
			{Side: models.SideBuy, Outcome: "Yes",
				Price:       decimal.RequireFromString("0.5"),
				Quantity:    decimal.RequireFromString("60"),
				NotionalUSD: decimal.RequireFromString("30"),
				MarketRef:   "0xmarket"},
		},
	}

	if err := c.NotifySummary(s); err != nil {
		t.Fatalf("NotifySummary: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"2024-03-01", "2 trades", "$40.00", "BUY", "$30.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConsoleNotifySummaryEmpty(t *testing.T) {
	var buf strings.Builder
	c := NewConsoleWriter(&buf)

	if err := c.NotifySummary(models.DailySummary{Day: "2024-03-01"}); err != nil {
		t.Fatalf("NotifySummary: %v", err)
	}
	if !strings.Contains(buf.String(), "no trades") {
		t.Errorf("empty summary output wrong:\n%s", buf.String())
	}
}
