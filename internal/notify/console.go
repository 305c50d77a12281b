// Package notify provides a console notification sink for running
// without Telegram credentials.
package notify

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/walletwatch/engine/internal/models"
)

// Console writes trade notifications and summaries to a writer.
type Console struct {
	out io.Writer
}

// NewConsole creates a sink that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a sink for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// NotifyTrade prints a one-line trade notification.
func (c *Console) NotifyTrade(ev models.TradeEvent, market *models.MarketInfo, walletAddress string) error {
	when := "n/a"
	if ev.OccurredAt != nil {
		when = ev.OccurredAt.Format("15:04:05")
	}
	title := ev.MarketRef
	if market != nil && market.Title != "" {
		title = market.Title
	}
	_, err := fmt.Fprintf(c.out, "[%s] %s %s @ $%s x %s = $%s | %s | %s\n",
		when, ev.Side, ev.Outcome,
		ev.Price.StringFixed(2), ev.Quantity.StringFixed(2), ev.NotionalUSD.StringFixed(2),
		truncate(title, 50), walletAddress)
	return err
}

// NotifySummary prints the daily summary as a table.
func (c *Console) NotifySummary(s models.DailySummary) error {
	if s.Empty() {
		_, err := fmt.Fprintf(c.out, "[%s] daily summary %s: no trades\n",
			time.Now().Format("15:04:05"), s.Day)
		return err
	}

	fmt.Fprintf(c.out, "\nDaily summary %s | %d trades (%d buys / %d sells), total $%s, avg $%s\n",
		s.Day, s.Count, s.BuyCount, s.SellCount,
		s.TotalNotional.StringFixed(2), s.AvgNotional.StringFixed(2))

	if len(s.Top) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Side", "Outcome", "Price", "Qty", "Total", "Market")
	for i, ev := range s.Top {
		table.Append(
			fmt.Sprintf("%d", i+1),
			ev.Side.String(),
			ev.Outcome,
			fmt.Sprintf("$%s", ev.Price.StringFixed(2)),
			ev.Quantity.StringFixed(2),
			fmt.Sprintf("$%s", ev.NotionalUSD.StringFixed(2)),
			truncate(ev.MarketRef, 20),
		)
	}
	table.Render()
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
