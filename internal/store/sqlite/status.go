package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"symbolsyncv1/internal/model"
)

// InitStatuses creates a pending status row for every broker that has
// none. Run at bootstrap; existing rows are left untouched so a restart
// never clobbers the last sync outcome.
func (s *Store) InitStatuses(ctx context.Context, brokers []string) error {
	for _, broker := range brokers {
		var id int64
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM symbol_sync_status WHERE broker_name = ?`, broker).Scan(&id)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check status row for %s: %w", broker, err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO symbol_sync_status (broker_name, sync_status, total_symbols)
			VALUES (?, 'pending', 0)
		`, broker)
		if err != nil {
			return fmt.Errorf("init status row for %s: %w", broker, err)
		}
		slog.Info("initialized sync status", "broker", broker)
	}
	return nil
}

// SetStatus records one lifecycle transition as a single idempotent
// upsert keyed by broker name. A crash mid-sync therefore leaves the
// prior terminal row intact rather than a corrupt partial one.
func (s *Store) SetStatus(ctx context.Context, broker, status, errMsg string, totalSymbols int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO symbol_sync_status (
			broker_name, sync_status, total_symbols, error_message, last_sync_at, updated_at
		) VALUES (?, ?, ?, ?, datetime('now'), datetime('now'))
		ON CONFLICT (broker_name) DO UPDATE SET
			sync_status   = excluded.sync_status,
			total_symbols = excluded.total_symbols,
			error_message = excluded.error_message,
			last_sync_at  = excluded.last_sync_at,
			updated_at    = excluded.updated_at
	`, broker, status, totalSymbols, errMsg)
	if err != nil {
		return fmt.Errorf("update sync status for %s: %w", broker, err)
	}
	return nil
}

// GetStatuses returns all broker status rows, most recently updated first.
func (s *Store) GetStatuses(ctx context.Context) ([]model.SyncStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT broker_name, sync_status, total_symbols, error_message, last_sync_at, updated_at
		FROM symbol_sync_status
		ORDER BY updated_at DESC, broker_name
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite status query: %w", err)
	}
	defer rows.Close()

	var out []model.SyncStatus
	for rows.Next() {
		var st model.SyncStatus
		var lastSync, updated string
		if err := rows.Scan(&st.BrokerName, &st.SyncStatus, &st.TotalSymbols,
			&st.ErrorMessage, &lastSync, &updated); err != nil {
			return nil, fmt.Errorf("sqlite scan status: %w", err)
		}
		st.LastSyncAt = parseDBTime(lastSync)
		st.UpdatedAt = parseDBTime(updated)
		out = append(out, st)
	}
	return out, rows.Err()
}
