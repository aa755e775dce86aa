package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"symbolsyncv1/internal/model"
)

const defaultSearchLimit = 50

// Search runs a ranked keyword search over symbols and names. Exact
// symbol matches rank first, symbol prefixes second, name substrings
// third, symbol substrings last. Expired instruments are excluded unless
// f.IncludeExpired is set; expiry strings sqlite cannot parse as dates
// are treated as not expired.
func (s *Store) Search(ctx context.Context, query string, f model.SearchFilters) ([]model.SearchResult, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	sqlText := `
		SELECT
			i.id, i.symbol, i.name, i.exchange, i.segment, i.instrument_type,
			i.lot_size, i.tick_size, i.expiry_date, i.strike_price, i.option_type, i.updated_at,
			GROUP_CONCAT(bim.broker_name),
			GROUP_CONCAT(bim.broker_token),
			CASE
				WHEN i.symbol = ?      THEN 1
				WHEN i.symbol LIKE ?   THEN 2
				WHEN i.name LIKE ?     THEN 3
				ELSE 4
			END AS relevance
		FROM instruments i
		LEFT JOIN broker_instrument_mappings bim
			ON i.id = bim.instrument_id AND bim.is_active = 1
		WHERE (i.symbol LIKE ? OR i.name LIKE ?)
	`
	args := []any{
		query,
		query + "%",
		"%" + query + "%",
		"%" + query + "%",
		"%" + query + "%",
	}

	if f.Exchange != "" {
		sqlText += ` AND i.exchange = ?`
		args = append(args, f.Exchange)
	}
	if f.Segment != "" {
		sqlText += ` AND i.segment = ?`
		args = append(args, f.Segment)
	}
	if f.InstrumentType != "" {
		sqlText += ` AND i.instrument_type = ?`
		args = append(args, f.InstrumentType)
	}
	if f.Broker != "" {
		sqlText += ` AND bim.broker_name = ?`
		args = append(args, f.Broker)
	}
	if !f.IncludeExpired {
		sqlText += ` AND (i.expiry_date = '' OR date(i.expiry_date) IS NULL OR date(i.expiry_date) >= date('now'))`
	}

	sqlText += ` GROUP BY i.id ORDER BY relevance, i.symbol LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite search: %w", err)
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		var updatedAt string
		var brokers, tokens sql.NullString
		if err := rows.Scan(
			&r.ID, &r.Symbol, &r.Name, &r.Exchange, &r.Segment, &r.InstrumentType,
			&r.LotSize, &r.TickSize, &r.ExpiryDate, &r.StrikePrice, &r.OptionType, &updatedAt,
			&brokers, &tokens, &r.Relevance,
		); err != nil {
			return nil, fmt.Errorf("sqlite scan search row: %w", err)
		}
		r.UpdatedAt = parseDBTime(updatedAt)
		r.SupportedBrokers = splitConcat(brokers)
		r.BrokerTokens = splitConcat(tokens)
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetMapping looks up one broker's identifiers for a canonical
// symbol+exchange. Returns nil, nil when no active mapping exists.
func (s *Store) GetMapping(ctx context.Context, broker, symbol, exchange string) (*model.MappingLookup, error) {
	var m model.MappingLookup
	err := s.db.QueryRowContext(ctx, `
		SELECT
			i.symbol, i.name, i.exchange, i.segment,
			bim.broker_name, bim.broker_symbol, bim.broker_token, bim.broker_exchange
		FROM instruments i
		JOIN broker_instrument_mappings bim ON i.id = bim.instrument_id
		WHERE bim.broker_name = ? AND i.symbol = ? AND i.exchange = ?
		  AND bim.is_active = 1
		LIMIT 1
	`, broker, symbol, exchange).Scan(
		&m.Symbol, &m.Name, &m.Exchange, &m.Segment,
		&m.BrokerName, &m.BrokerSymbol, &m.BrokerToken, &m.BrokerExchange,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite mapping lookup: %w", err)
	}
	return &m, nil
}

// GetDetails returns the instrument for symbol+exchange together with
// all of its active broker mappings, or nil, nil when unknown.
func (s *Store) GetDetails(ctx context.Context, symbol, exchange string) (*model.InstrumentDetails, error) {
	var d model.InstrumentDetails
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, name, exchange, segment, instrument_type,
		       lot_size, tick_size, expiry_date, strike_price, option_type, updated_at
		FROM instruments
		WHERE symbol = ? AND exchange = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`, symbol, exchange).Scan(
		&d.ID, &d.Symbol, &d.Name, &d.Exchange, &d.Segment, &d.InstrumentType,
		&d.LotSize, &d.TickSize, &d.ExpiryDate, &d.StrikePrice, &d.OptionType, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite instrument lookup: %w", err)
	}
	d.UpdatedAt = parseDBTime(updatedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument_id, broker_name, broker_symbol, broker_token,
		       broker_exchange, is_active, updated_at
		FROM broker_instrument_mappings
		WHERE instrument_id = ? AND is_active = 1
		ORDER BY broker_name
	`, d.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlite mappings query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m model.BrokerMapping
		var mUpdated string
		if err := rows.Scan(&m.InstrumentID, &m.BrokerName, &m.BrokerSymbol,
			&m.BrokerToken, &m.BrokerExchange, &m.IsActive, &mUpdated); err != nil {
			return nil, fmt.Errorf("sqlite scan mapping: %w", err)
		}
		m.UpdatedAt = parseDBTime(mUpdated)
		d.Mappings = append(d.Mappings, m)
		d.SupportedBrokers = append(d.SupportedBrokers, m.BrokerName)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListSegments returns the distinct (segment, exchange) catalog with
// symbol and broker counts and a dashboard display name.
func (s *Store) ListSegments(ctx context.Context) ([]model.SegmentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			i.segment, i.exchange,
			COUNT(DISTINCT i.id),
			COUNT(DISTINCT bim.broker_name),
			GROUP_CONCAT(DISTINCT bim.broker_name)
		FROM instruments i
		LEFT JOIN broker_instrument_mappings bim
			ON i.id = bim.instrument_id AND bim.is_active = 1
		GROUP BY i.segment, i.exchange
		HAVING COUNT(DISTINCT i.id) > 0
		ORDER BY i.exchange, i.segment
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite segments query: %w", err)
	}
	defer rows.Close()

	var out []model.SegmentSummary
	for rows.Next() {
		var seg model.SegmentSummary
		var brokers sql.NullString
		if err := rows.Scan(&seg.Segment, &seg.Exchange, &seg.SymbolCount, &seg.BrokerCount, &brokers); err != nil {
			return nil, fmt.Errorf("sqlite scan segment: %w", err)
		}
		seg.SupportedBrokers = splitConcat(brokers)
		seg.DisplayName = SegmentDisplayName(seg.Segment, seg.Exchange)
		out = append(out, seg)
	}
	return out, rows.Err()
}

// PopularSymbols returns NSE/BSE equities supported by more than one
// broker, ordered by broker coverage. A proxy for "most traded" until
// real volume data exists.
func (s *Store) PopularSymbols(ctx context.Context, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			i.id, i.symbol, i.name, i.exchange, i.segment, i.instrument_type,
			COUNT(bim.broker_name),
			GROUP_CONCAT(bim.broker_name)
		FROM instruments i
		LEFT JOIN broker_instrument_mappings bim
			ON i.id = bim.instrument_id AND bim.is_active = 1
		WHERE i.instrument_type = 'EQ' AND i.exchange IN ('NSE', 'BSE')
		GROUP BY i.id
		HAVING COUNT(bim.broker_name) > 1
		ORDER BY COUNT(bim.broker_name) DESC, i.symbol
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite popular query: %w", err)
	}
	defer rows.Close()

	var out []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		var brokerCount int
		var brokers sql.NullString
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Name, &r.Exchange, &r.Segment,
			&r.InstrumentType, &brokerCount, &brokers); err != nil {
			return nil, fmt.Errorf("sqlite scan popular: %w", err)
		}
		r.SupportedBrokers = splitConcat(brokers)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SymbolsByExchange lists instruments on one exchange ordered by symbol.
func (s *Store) SymbolsByExchange(ctx context.Context, exchange string, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			i.id, i.symbol, i.name, i.exchange, i.segment, i.instrument_type,
			GROUP_CONCAT(bim.broker_name)
		FROM instruments i
		LEFT JOIN broker_instrument_mappings bim
			ON i.id = bim.instrument_id AND bim.is_active = 1
		WHERE i.exchange = ?
		GROUP BY i.id
		ORDER BY i.symbol
		LIMIT ?
	`, exchange, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite by-exchange query: %w", err)
	}
	defer rows.Close()

	var out []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		var brokers sql.NullString
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Name, &r.Exchange, &r.Segment,
			&r.InstrumentType, &brokers); err != nil {
			return nil, fmt.Errorf("sqlite scan by-exchange: %w", err)
		}
		r.SupportedBrokers = splitConcat(brokers)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InstrumentCount returns the number of canonical instruments.
func (s *Store) InstrumentCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM instruments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite count: %w", err)
	}
	return n, nil
}
