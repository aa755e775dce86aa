// Package sqlite is the canonical reconciliation store: instruments,
// broker mappings and per-broker sync status live in three tables behind
// idempotent upserts, so a retried sync reconverges instead of
// duplicating rows.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database. Single-writer by design: row-level
// upserts are the only mutation, so no distributed locking is needed.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (creating if needed) the symbol database with WAL mode and
// the schema in place.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single connection: sqlite is the lone writer here and :memory:
	// databases are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened symbol database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	// Identity columns use '' / 0 sentinels instead of NULL: sqlite
	// treats NULLs as distinct in UNIQUE indexes, which would break the
	// one-row-per-identity invariant for instruments without expiry.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS instruments (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol          TEXT    NOT NULL,
			name            TEXT    NOT NULL DEFAULT '',
			exchange        TEXT    NOT NULL,
			segment         TEXT    NOT NULL DEFAULT '',
			instrument_type TEXT    NOT NULL DEFAULT '',
			lot_size        INTEGER NOT NULL DEFAULT 1,
			tick_size       REAL    NOT NULL DEFAULT 0.05,
			expiry_date     TEXT    NOT NULL DEFAULT '',
			strike_price    REAL    NOT NULL DEFAULT 0,
			option_type     TEXT    NOT NULL DEFAULT '',
			created_at      TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at      TEXT    NOT NULL DEFAULT (datetime('now')),
			UNIQUE (symbol, exchange, segment, expiry_date, strike_price, option_type)
		);

		CREATE INDEX IF NOT EXISTS idx_instruments_symbol   ON instruments(symbol);
		CREATE INDEX IF NOT EXISTS idx_instruments_exchange ON instruments(exchange, segment);

		CREATE TABLE IF NOT EXISTS broker_instrument_mappings (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument_id   INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
			broker_name     TEXT    NOT NULL,
			broker_symbol   TEXT    NOT NULL,
			broker_token    TEXT    NOT NULL DEFAULT '',
			broker_exchange TEXT    NOT NULL DEFAULT '',
			is_active       INTEGER NOT NULL DEFAULT 1,
			updated_at      TEXT    NOT NULL DEFAULT (datetime('now')),
			UNIQUE (instrument_id, broker_name)
		);

		CREATE INDEX IF NOT EXISTS idx_mappings_broker ON broker_instrument_mappings(broker_name);

		CREATE TABLE IF NOT EXISTS symbol_sync_status (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			broker_name   TEXT    NOT NULL UNIQUE,
			sync_status   TEXT    NOT NULL DEFAULT 'pending',
			total_symbols INTEGER NOT NULL DEFAULT 0,
			error_message TEXT    NOT NULL DEFAULT '',
			last_sync_at  TEXT    NOT NULL DEFAULT '',
			created_at    TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at    TEXT    NOT NULL DEFAULT (datetime('now'))
		);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// parseDBTime parses sqlite's datetime('now') text format. Returns the
// zero time for empty or unparsable values.
func parseDBTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// splitConcat splits a GROUP_CONCAT value into its parts.
func splitConcat(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	return strings.Split(s.String, ",")
}
