package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"symbolsyncv1/internal/model"
)

// StoreSymbols upserts one broker's normalized records into the
// canonical store. stored counts fresh instrument inserts, updated
// counts replaced rows. A pathological record is logged and skipped; it
// never aborts the batch, so the counts reflect only successfully
// processed records.
func (s *Store) StoreSymbols(ctx context.Context, broker string, records []model.SymbolRecord) (stored, updated int, err error) {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	skipped := 0
	for _, rec := range records {
		inserted, serr := storeOne(ctx, tx, broker, rec)
		if serr != nil {
			slog.Warn("failed to store symbol", "broker", broker, "symbol", rec.Symbol, "err", serr)
			skipped++
			continue
		}
		if inserted {
			stored++
		} else {
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("sqlite commit: %w", err)
	}

	slog.Info("symbol storage completed",
		"broker", broker, "stored", stored, "updated", updated,
		"skipped", skipped, "took", time.Since(start).Round(time.Millisecond).String())
	return stored, updated, nil
}

// storeOne upserts one instrument by identity tuple and exactly one
// mapping row for (instrument, broker).
func storeOne(ctx context.Context, tx *sql.Tx, broker string, rec model.SymbolRecord) (inserted bool, err error) {
	// Existence check decides stored-vs-updated before the upsert runs.
	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM instruments
		WHERE symbol = ? AND exchange = ? AND segment = ?
		  AND expiry_date = ? AND strike_price = ? AND option_type = ?
	`, rec.Symbol, rec.Exchange, rec.Segment, rec.Expiry, rec.Strike, rec.OptionType).Scan(&id)
	switch {
	case err == nil:
		inserted = false
	case errors.Is(err, sql.ErrNoRows):
		inserted = true
	default:
		return false, fmt.Errorf("resolve instrument: %w", err)
	}

	// Conflict-update keeps the row id stable so sibling brokers'
	// mappings survive a re-sync (a destructive replace would orphan
	// them via the FK cascade).
	_, err = tx.ExecContext(ctx, `
		INSERT INTO instruments (
			symbol, name, exchange, segment, instrument_type,
			lot_size, tick_size, expiry_date, strike_price, option_type, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (symbol, exchange, segment, expiry_date, strike_price, option_type)
		DO UPDATE SET
			name            = excluded.name,
			instrument_type = excluded.instrument_type,
			lot_size        = excluded.lot_size,
			tick_size       = excluded.tick_size,
			updated_at      = excluded.updated_at
	`, rec.Symbol, rec.Name, rec.Exchange, rec.Segment, rec.InstrumentType,
		rec.LotSize, rec.TickSize, rec.Expiry, rec.Strike, rec.OptionType)
	if err != nil {
		return false, fmt.Errorf("upsert instrument: %w", err)
	}

	// Re-resolve the id by identity tuple rather than trusting
	// LastInsertId: the upsert may have hit the conflict arm.
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM instruments
		WHERE symbol = ? AND exchange = ? AND segment = ?
		  AND expiry_date = ? AND strike_price = ? AND option_type = ?
	`, rec.Symbol, rec.Exchange, rec.Segment, rec.Expiry, rec.Strike, rec.OptionType).Scan(&id)
	if err != nil {
		return false, fmt.Errorf("re-resolve instrument id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO broker_instrument_mappings (
			instrument_id, broker_name, broker_symbol, broker_token,
			broker_exchange, is_active, updated_at
		) VALUES (?, ?, ?, ?, ?, 1, datetime('now'))
		ON CONFLICT (instrument_id, broker_name)
		DO UPDATE SET
			broker_symbol   = excluded.broker_symbol,
			broker_token    = excluded.broker_token,
			broker_exchange = excluded.broker_exchange,
			is_active       = 1,
			updated_at      = excluded.updated_at
	`, id, broker, rec.Symbol, rec.BrokerToken, rec.BrokerExchange)
	if err != nil {
		return false, fmt.Errorf("upsert mapping: %w", err)
	}

	return inserted, nil
}
