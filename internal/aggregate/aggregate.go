// Package aggregate accumulates accepted trade events into a rolling
// per-calendar-day window and produces summaries from it.
package aggregate

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/walletwatch/engine/internal/models"
)

// dayFormat keys the window by process-local calendar day.
const dayFormat = "2006-01-02"

// Window holds the current day's accepted trades. It is never persisted;
// a day change clears it before new events are appended.
type Window struct {
	mu     sync.Mutex
	day    string
	events []models.TradeEvent
}

// NewWindow creates a window anchored to the given time's calendar day.
func NewWindow(now time.Time) *Window {
	return &Window{day: now.Format(dayFormat)}
}

// Roll resets the window if the calendar day has changed since the last
// call. It reports whether a reset happened.
func (w *Window) Roll(now time.Time) bool {
	day := now.Format(dayFormat)
	w.mu.Lock()
	defer w.mu.Unlock()
	if day == w.day {
		return false
	}
	w.day = day
	w.events = nil
	return true
}

// Append records an accepted event into the current day's window.
func (w *Window) Append(ev models.TradeEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, ev)
}

// Count returns the number of events in the current window.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

// Summarize computes the aggregate view of the current day. An empty
// window yields a zero-count summary; the average is never a division
// by zero.
func (w *Window) Summarize(topN int) models.DailySummary {
	w.mu.Lock()
	events := make([]models.TradeEvent, len(w.events))
	copy(events, w.events)
	day := w.day
	w.mu.Unlock()

	s := models.DailySummary{
		Day:           day,
		Count:         len(events),
		TotalNotional: decimal.Zero,
		AvgNotional:   decimal.Zero,
	}
	if len(events) == 0 {
		return s
	}

	for _, ev := range events {
		s.TotalNotional = s.TotalNotional.Add(ev.NotionalUSD)
		switch ev.Side {
		case models.SideBuy:
			s.BuyCount++
		case models.SideSell:
			s.SellCount++
		}
	}
	s.AvgNotional = s.TotalNotional.DivRound(decimal.NewFromInt(int64(len(events))), 2)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].NotionalUSD.GreaterThan(events[j].NotionalUSD)
	})
	if topN > 0 && len(events) > topN {
		events = events[:topN]
	}
	s.Top = events

	return s
}
