// Package normalize maps heterogeneous broker field names onto the
// canonical SymbolRecord shape. Each source adapter declares a static
// Mapping (broker column names per canonical field); the normalizer
// applies it with permissive numeric parsing so a single bad field never
// drops usable rows.
package normalize

import (
	"strconv"
	"strings"

	"symbolsyncv1/internal/model"
)

// Defaults applied when a source omits or mangles a numeric field.
const (
	DefaultLotSize   = 1
	DefaultTickSize  = 0.05
	DefaultPrecision = 2
)

// Row is one raw record from a source adapter: column name → raw value.
type Row map[string]string

// Mapping is the explicit field table for one broker: for every
// canonical field, the source column names that may carry it, in
// priority order. Declared as package vars in the source adapters so
// the full mapping surface is visible at compile time.
type Mapping struct {
	Symbol         []string
	Name           []string
	Exchange       []string
	Segment        []string
	InstrumentType []string
	LotSize        []string
	TickSize       []string
	Expiry         []string
	Strike         []string
	OptionType     []string

	BrokerToken    []string
	BrokerExchange []string
	ISIN           []string
	WeeklyExpiry   []string
	SymbolToken    []string
	Precision      []string
}

// Record maps one raw row through m. ok is false when the row lacks a
// non-empty symbol or exchange after mapping; such rows are dropped,
// not errors.
func Record(m Mapping, r Row) (model.SymbolRecord, bool) {
	rec := model.SymbolRecord{
		Symbol:         first(r, m.Symbol),
		Name:           first(r, m.Name),
		Exchange:       first(r, m.Exchange),
		Segment:        first(r, m.Segment),
		InstrumentType: first(r, m.InstrumentType),
		LotSize:        parseIntDefault(first(r, m.LotSize), DefaultLotSize),
		TickSize:       parseFloatDefault(first(r, m.TickSize), DefaultTickSize),
		Expiry:         first(r, m.Expiry),
		Strike:         parseFloatDefault(first(r, m.Strike), 0),
		OptionType:     first(r, m.OptionType),

		BrokerToken:  first(r, m.BrokerToken),
		ISIN:         first(r, m.ISIN),
		WeeklyExpiry: first(r, m.WeeklyExpiry),
		SymbolToken:  first(r, m.SymbolToken),
	}

	if rec.Symbol == "" || rec.Exchange == "" {
		return model.SymbolRecord{}, false
	}

	if rec.LotSize < 1 {
		rec.LotSize = DefaultLotSize
	}
	if rec.TickSize <= 0 {
		rec.TickSize = DefaultTickSize
	}

	rec.BrokerExchange = first(r, m.BrokerExchange)
	if rec.BrokerExchange == "" {
		rec.BrokerExchange = rec.Exchange
	}
	if rec.BrokerToken == "" {
		// Some sources omit a token entirely; fall back to the symbol so
		// the mapping row stays addressable.
		rec.BrokerToken = rec.Symbol
	}
	if len(m.Precision) > 0 {
		rec.Precision = parseIntDefault(first(r, m.Precision), DefaultPrecision)
	}

	return rec, true
}

// Records maps every raw row through m, silently dropping rows that fail
// the minimal-presence rule.
func Records(m Mapping, rows []Row) []model.SymbolRecord {
	out := make([]model.SymbolRecord, 0, len(rows))
	for _, r := range rows {
		if rec, ok := Record(m, r); ok {
			out = append(out, rec)
		}
	}
	return out
}

// first returns the first non-empty value among the mapped columns.
func first(r Row, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Tolerate values like "100.0" that some masters emit.
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return int(f)
		}
		return def
	}
	return n
}

func parseFloatDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
