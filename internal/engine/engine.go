// Package engine drives the trade reconciliation loop: it polls every
// registered source adapter, normalizes and deduplicates the returned
// records, applies the notification filters, and hands qualifying
// events to the sink exactly once.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/walletwatch/engine/internal/aggregate"
	"github.com/walletwatch/engine/internal/dedup"
	"github.com/walletwatch/engine/internal/logger"
	"github.com/walletwatch/engine/internal/models"
	"github.com/walletwatch/engine/internal/normalize"
	"github.com/walletwatch/engine/internal/source"
	"github.com/walletwatch/engine/internal/storage"
)

// ErrAlreadyWatching is returned when StartWatch is called while the
// engine is already in the Watching phase.
var ErrAlreadyWatching = errors.New("watch already active")

// ErrAllSourcesFailed is returned by a manual check when every adapter
// failed, meaning no records could be fetched at all.
var ErrAllSourcesFailed = errors.New("all sources failed")

// summaryTopN bounds the per-day top-trades list in summaries.
const summaryTopN = 5

// summaryTickInterval is how often the watch loop checks whether the
// scheduled daily summary time has been reached.
const summaryTickInterval = 20 * time.Second

// Sink receives formatted notifications. Delivery failures are logged
// and dropped, never retried: the event has already been marked seen,
// so delivery is at-most-once.
type Sink interface {
	NotifyTrade(ev models.TradeEvent, market *models.MarketInfo, walletAddress string) error
	NotifySummary(s models.DailySummary) error
}

// Resolver resolves a market reference into display metadata, or nil
// when the lookup fails.
type Resolver interface {
	Resolve(ctx context.Context, marketRef string) *models.MarketInfo
}

// Config is the runtime-mutable watch configuration.
type Config struct {
	WalletAddress   string
	PollInterval    time.Duration
	FetchLimit      int
	MinNotionalUSD  decimal.Decimal
	StalenessWindow time.Duration
	// SummaryTime is the "HH:MM" wall-clock time of the automatic daily
	// summary push.
	SummaryTime string
}

// Status is the observable engine state.
type Status struct {
	Running    bool
	KnownCount int
	DailyCount int
	Config     Config
}

type phase int

const (
	phaseIdle phase = iota
	phaseWatching
)

// Engine owns the reconciliation state: the dedup set, the daily
// window, and the watch phase. All cycle processing happens under
// cycleMu, preserving the single-writer invariant even when a manual
// check overlaps the scheduled loop.
type Engine struct {
	adapters []source.Adapter
	resolver Resolver
	sink     Sink
	journal  *storage.Storage

	mu     sync.Mutex
	cfg    Config
	phase  phase
	gen    int // watch generation; stale cycle results are discarded
	cancel context.CancelFunc

	cycleMu        sync.Mutex
	seen           *dedup.Set
	window         *aggregate.Window
	lastSummaryDay string

	now func() time.Time
}

// New creates an engine in the Idle phase.
func New(cfg Config, adapters []source.Adapter, resolver Resolver, sink Sink, journal *storage.Storage) *Engine {
	now := time.Now
	return &Engine{
		adapters: adapters,
		resolver: resolver,
		sink:     sink,
		journal:  journal,
		cfg:      cfg,
		seen:     dedup.NewSet(),
		window:   aggregate.NewWindow(now()),
		now:      now,
	}
}

// StartWatch transitions Idle→Watching. It first takes a baseline
// snapshot (every adapter is queried once and all fingerprints are
// recorded as seen without notifying) so pre-existing history never
// re-notifies, then starts the polling loop.
func (e *Engine) StartWatch(ctx context.Context) error {
	e.mu.Lock()
	if e.phase == phaseWatching {
		e.mu.Unlock()
		return ErrAlreadyWatching
	}
	e.phase = phaseWatching
	e.gen++
	gen := e.gen
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	seeded := e.runCycle(loopCtx, gen, cycleBaseline)
	logger.Info("Baseline snapshot complete: %d existing trades recorded, %d known total", seeded, e.seen.Len())

	go e.watchLoop(loopCtx, gen)
	return nil
}

// StopWatch transitions Watching→Idle. Cancelling the loop context
// aborts in-flight adapter calls; anything already fetched is discarded
// by the generation check rather than merged.
func (e *Engine) StopWatch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != phaseWatching {
		return
	}
	e.phase = phaseIdle
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	logger.Info("Watch stopped")
}

// Running reports whether the engine is in the Watching phase.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == phaseWatching
}

// Status returns the observable engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	cfg := e.cfg
	running := e.phase == phaseWatching
	e.mu.Unlock()
	return Status{
		Running:    running,
		KnownCount: e.seen.Len(),
		DailyCount: e.window.Count(),
		Config:     cfg,
	}
}

// Config returns a snapshot of the current configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// UpdateConfig applies a mutation to the runtime configuration without
// restarting the loop. Already-seen events stay suppressed regardless
// of how the thresholds move.
func (e *Engine) UpdateConfig(mutate func(*Config)) Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	mutate(&e.cfg)
	return e.cfg
}

// CheckNow runs one reconciliation cycle out-of-band, without touching
// the interval timer. It works in either phase and shares the seen-set
// with the loop. It returns the number of novel events found.
func (e *Engine) CheckNow(ctx context.Context) (int, error) {
	novel, ok := e.runCycleCounted(ctx, 0, cycleManual)
	if !ok {
		return 0, ErrAllSourcesFailed
	}
	return novel, nil
}

// Recent returns the n most recently journaled trade events, newest
// first, independent of the dedup store.
func (e *Engine) Recent(n int) ([]models.TradeEvent, error) {
	return e.journal.RecentTrades(n)
}

// Summarize returns the current calendar day's aggregate view.
func (e *Engine) Summarize() models.DailySummary {
	return e.window.Summarize(summaryTopN)
}

func (e *Engine) watchLoop(ctx context.Context, gen int) {
	e.mu.Lock()
	interval := e.cfg.PollInterval
	e.mu.Unlock()

	timer := time.NewTimer(interval)
	defer timer.Stop()
	summaryTick := time.NewTicker(summaryTickInterval)
	defer summaryTick.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Watch loop exiting (generation %d)", gen)
			return

		case <-timer.C:
			e.runCycle(ctx, gen, cycleScheduled)
			e.mu.Lock()
			interval = e.cfg.PollInterval
			e.mu.Unlock()
			timer.Reset(interval)

		case <-summaryTick.C:
			e.maybePushSummary()
		}
	}
}

type cycleKind int

const (
	cycleScheduled cycleKind = iota
	cycleManual
	cycleBaseline
)

func (e *Engine) runCycle(ctx context.Context, gen int, kind cycleKind) int {
	novel, _ := e.runCycleCounted(ctx, gen, kind)
	return novel
}

// runCycleCounted performs one full reconciliation cycle and reports
// the number of novel events plus whether at least one adapter
// delivered records.
func (e *Engine) runCycleCounted(ctx context.Context, gen int, kind cycleKind) (int, bool) {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	start := e.now()
	batches, okCount := e.fetchAll(ctx, cfg)

	if kind != cycleManual {
		// Results fetched before a stop (or restart) are discarded, not
		// processed: the state owner has moved on.
		e.mu.Lock()
		stale := gen != e.gen
		e.mu.Unlock()
		if stale {
			logger.Debug("Discarding results of superseded cycle (generation %d)", gen)
			return 0, okCount > 0
		}
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	if e.window.Roll(e.now()) {
		logger.Info("Daily window reset for %s", e.now().Format("2006-01-02"))
	}

	novel := 0
	accepted := 0
	for i, adapter := range e.adapters {
		for _, rec := range batches[i] {
			ev := normalize.Trade(rec, adapter.Name())
			if e.seen.Seen(ev.Fingerprint) {
				continue
			}
			e.seen.Record(ev.Fingerprint)
			novel++

			if err := e.journal.RecordTrade(&ev); err != nil {
				logger.Warn("Failed to journal trade %s: %v", ev.Fingerprint, err)
			}

			if kind == cycleBaseline {
				continue
			}

			if e.process(ctx, ev, cfg) {
				accepted++
			}
		}
	}

	if kind == cycleBaseline {
		return novel, okCount > 0
	}

	logger.Info("Cycle complete in %v: %d sources ok, %d novel, %d notified, %d known",
		e.now().Sub(start), okCount, novel, accepted, e.seen.Len())
	return novel, okCount > 0
}

// fetchAll queries every adapter concurrently and merges the results
// back on the calling goroutine, preserving per-adapter record order.
func (e *Engine) fetchAll(ctx context.Context, cfg Config) ([][]source.Raw, int) {
	batches := make([][]source.Raw, len(e.adapters))
	var wg sync.WaitGroup
	var okCount int
	var okMu sync.Mutex

	for i, adapter := range e.adapters {
		wg.Add(1)
		go func(i int, adapter source.Adapter) {
			defer wg.Done()
			records, err := adapter.Fetch(ctx, cfg.WalletAddress, cfg.FetchLimit)
			if err != nil {
				// Degrade gracefully: an unreachable source contributes zero
				// records this cycle, nothing more.
				logger.Warn("Source %s failed: %v", adapter.Name(), err)
				return
			}
			batches[i] = records
			okMu.Lock()
			okCount++
			okMu.Unlock()
		}(i, adapter)
	}
	wg.Wait()
	return batches, okCount
}

// process applies the notification filters to one novel event and
// dispatches it when it qualifies. It reports whether the event was
// accepted. The event is already marked seen either way, so a filtered
// trade is never reconsidered: a below-threshold trade stays suppressed
// even if the threshold is later lowered, and a stale trade never
// becomes fresh again.
func (e *Engine) process(ctx context.Context, ev models.TradeEvent, cfg Config) bool {
	if ev.OccurredAt == nil {
		logger.Debug("Suppressing %s: timestamp unparseable", ev.Fingerprint)
		return false
	}
	if age := e.now().Sub(*ev.OccurredAt); age > cfg.StalenessWindow {
		logger.Debug("Suppressing %s: stale by %v", ev.Fingerprint, age)
		return false
	}
	if cfg.MinNotionalUSD.IsPositive() && ev.NotionalUSD.LessThan(cfg.MinNotionalUSD) {
		logger.Debug("Suppressing %s: notional %s below minimum %s", ev.Fingerprint, ev.NotionalUSD, cfg.MinNotionalUSD)
		return false
	}

	info := e.resolver.Resolve(ctx, ev.MarketRef)
	if info == nil {
		info = &models.MarketInfo{MarketRef: ev.MarketRef}
	}

	e.window.Append(ev)

	// Fire-and-forget dispatch: a slow sink must not stall the loop.
	go func(ev models.TradeEvent, info models.MarketInfo, wallet string) {
		if err := e.sink.NotifyTrade(ev, &info, wallet); err != nil {
			logger.Error("Failed to deliver trade notification: %v", err)
		}
	}(ev, *info, cfg.WalletAddress)

	return true
}

// maybePushSummary sends the daily summary once per day at the
// configured wall-clock minute.
func (e *Engine) maybePushSummary() {
	e.mu.Lock()
	at := e.cfg.SummaryTime
	e.mu.Unlock()

	now := e.now()
	if now.Format("15:04") != at {
		return
	}

	e.cycleMu.Lock()
	day := now.Format("2006-01-02")
	if e.lastSummaryDay == day {
		e.cycleMu.Unlock()
		return
	}
	e.lastSummaryDay = day
	e.cycleMu.Unlock()

	s := e.Summarize()
	logger.Info("Pushing scheduled daily summary: %d trades", s.Count)
	if err := e.sink.NotifySummary(s); err != nil {
		logger.Error("Failed to deliver daily summary: %v", err)
	}
}
