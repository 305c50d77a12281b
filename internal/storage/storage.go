// Package storage provides a SQLite-backed journal of every novel trade
// event. The journal backs the /recent command and daily diagnostics;
// it is not the dedup store, which lives in memory and is rebuilt from
// a baseline snapshot on every start-of-watch.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/walletwatch/engine/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database holding the trade journal.
type Storage struct {
	db        *sql.DB
	maxTrades int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/walletwatch/data.db.
func New(maxTrades int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "walletwatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxTrades: maxTrades}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id           TEXT PRIMARY KEY,
			fingerprint  TEXT NOT NULL,
			market_ref   TEXT,
			side         TEXT NOT NULL,
			outcome      TEXT NOT NULL,
			price        TEXT NOT NULL,
			quantity     TEXT NOT NULL,
			notional     TEXT NOT NULL,
			occurred_at  INTEGER,
			raw_source   TEXT NOT NULL,
			recorded_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_recorded_at ON trades(recorded_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_fingerprint ON trades(fingerprint)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordTrade appends one normalized event to the journal and enforces
// the journal cap in the same transaction.
func (s *Storage) RecordTrade(ev *models.TradeEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid trade event: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var occurredAt sql.NullInt64
	if ev.OccurredAt != nil {
		occurredAt = sql.NullInt64{Int64: ev.OccurredAt.UnixNano(), Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO trades
			(id, fingerprint, market_ref, side, outcome,
			 price, quantity, notional, occurred_at, raw_source, recorded_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		uuid.New().String(), ev.Fingerprint, ev.MarketRef,
		ev.Side.String(), ev.Outcome,
		ev.Price.String(), ev.Quantity.String(), ev.NotionalUSD.String(),
		occurredAt, ev.RawSource, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM trades WHERE id NOT IN (
			SELECT id FROM trades ORDER BY recorded_at DESC LIMIT ?
		)`, s.maxTrades); err != nil {
		return fmt.Errorf("failed to enforce journal cap: %w", err)
	}

	return tx.Commit()
}

// RecentTrades returns the n most recently recorded events, newest
// first, independent of the dedup store.
func (s *Storage) RecentTrades(n int) ([]models.TradeEvent, error) {
	rows, err := s.db.Query(`
		SELECT fingerprint, market_ref, side, outcome,
		       price, quantity, notional, occurred_at, raw_source
		FROM trades ORDER BY recorded_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	events := []models.TradeEvent{}
	for rows.Next() {
		ev, err := scanTrade(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// CountTrades returns the number of journaled events.
func (s *Storage) CountTrades() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}

func scanTrade(scan func(...any) error) (*models.TradeEvent, error) {
	var ev models.TradeEvent
	var sideStr, priceStr, quantityStr, notionalStr string
	var occurredAt sql.NullInt64

	err := scan(
		&ev.Fingerprint, &ev.MarketRef, &sideStr, &ev.Outcome,
		&priceStr, &quantityStr, &notionalStr, &occurredAt, &ev.RawSource,
	)
	if err != nil {
		return nil, err
	}

	switch sideStr {
	case "BUY":
		ev.Side = models.SideBuy
	case "SELL":
		ev.Side = models.SideSell
	default:
		ev.Side = models.SideUnknown
	}

	if ev.Price, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("bad price %q: %w", priceStr, err)
	}
	if ev.Quantity, err = decimal.NewFromString(quantityStr); err != nil {
		return nil, fmt.Errorf("bad quantity %q: %w", quantityStr, err)
	}
	if ev.NotionalUSD, err = decimal.NewFromString(notionalStr); err != nil {
		return nil, fmt.Errorf("bad notional %q: %w", notionalStr, err)
	}

	if occurredAt.Valid {
		t := time.Unix(0, occurredAt.Int64).UTC()
		ev.OccurredAt = &t
	}
	return &ev, nil
}
