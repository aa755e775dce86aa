package model

import "time"

// Broker names recognized by the sync pipeline. Stored lowercase everywhere.
const (
	BrokerZerodha = "zerodha"
	BrokerUpstox  = "upstox"
	BrokerAngel   = "angel"
	BrokerShoonya = "shoonya"
)

// KnownBrokers returns the brokers the pipeline syncs, in sync order.
func KnownBrokers() []string {
	return []string{BrokerZerodha, BrokerUpstox, BrokerAngel, BrokerShoonya}
}

// IsKnownBroker reports whether name (already lowercased) is a supported broker.
func IsKnownBroker(name string) bool {
	switch name {
	case BrokerZerodha, BrokerUpstox, BrokerAngel, BrokerShoonya:
		return true
	}
	return false
}

// SymbolRecord is one normalized instrument row fetched from a broker:
// the canonical fields plus the broker-specific extras kept for mapping
// storage. Empty string / zero means the source did not provide the field.
type SymbolRecord struct {
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Exchange       string  `json:"exchange"`
	Segment        string  `json:"segment"`
	InstrumentType string  `json:"instrument_type"`
	LotSize        int     `json:"lot_size"`
	TickSize       float64 `json:"tick_size"`
	Expiry         string  `json:"expiry,omitempty"`
	Strike         float64 `json:"strike,omitempty"`
	OptionType     string  `json:"option_type,omitempty"` // CE or PE

	// Broker-specific extras, not part of canonical identity.
	BrokerToken    string `json:"broker_token"`
	BrokerExchange string `json:"broker_exchange"`
	ISIN           string `json:"isin,omitempty"`
	WeeklyExpiry   string `json:"weekly_expiry,omitempty"`
	SymbolToken    string `json:"symbol_token,omitempty"`
	Precision      int    `json:"precision,omitempty"`
}

// Instrument is the canonical representation of one tradable contract.
// Identity = (symbol, exchange, segment, expiry, strike, option type);
// broker-specific identifiers live in BrokerMapping rows.
type Instrument struct {
	ID             int64   `json:"id"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Exchange       string  `json:"exchange"`
	Segment        string  `json:"segment"`
	InstrumentType string  `json:"instrument_type"`
	LotSize        int     `json:"lot_size"`
	TickSize       float64 `json:"tick_size"`
	ExpiryDate     string  `json:"expiry_date,omitempty"`
	StrikePrice    float64 `json:"strike_price,omitempty"`
	OptionType     string  `json:"option_type,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// BrokerMapping links one Instrument to one broker's identifiers.
// At most one mapping exists per (instrument, broker); a re-sync
// replaces it rather than appending.
type BrokerMapping struct {
	InstrumentID   int64     `json:"instrument_id"`
	BrokerName     string    `json:"broker_name"`
	BrokerSymbol   string    `json:"broker_symbol"`
	BrokerToken    string    `json:"broker_token"`
	BrokerExchange string    `json:"broker_exchange"`
	IsActive       bool      `json:"is_active"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MappingLookup is the order-routing view of one instrument: canonical
// identity plus one broker's own identifiers.
type MappingLookup struct {
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	Exchange       string `json:"exchange"`
	Segment        string `json:"segment"`
	BrokerName     string `json:"broker_name"`
	BrokerSymbol   string `json:"broker_symbol"`
	BrokerToken    string `json:"broker_token"`
	BrokerExchange string `json:"broker_exchange"`
}

// InstrumentDetails is an Instrument with all of its active broker mappings.
type InstrumentDetails struct {
	Instrument
	Mappings         []BrokerMapping `json:"broker_mappings"`
	SupportedBrokers []string        `json:"supported_brokers"`
}

// SearchResult is one ranked search hit. Relevance: 1 = exact symbol
// match, 2 = symbol prefix, 3 = name contains, 4 = symbol contains only.
type SearchResult struct {
	Instrument
	SupportedBrokers []string `json:"supported_brokers"`
	BrokerTokens     []string `json:"broker_tokens"`
	Relevance        int      `json:"relevance"`
}

// SearchFilters narrows a symbol search. Zero values mean "no filter".
type SearchFilters struct {
	Exchange       string
	Segment        string
	Broker         string
	InstrumentType string
	IncludeExpired bool
	Limit          int
}

// SegmentSummary is one (segment, exchange) pair in the catalog with
// counts and a display name for dashboards.
type SegmentSummary struct {
	Segment          string   `json:"segment"`
	Exchange         string   `json:"exchange"`
	SymbolCount      int      `json:"symbol_count"`
	BrokerCount      int      `json:"broker_count"`
	SupportedBrokers []string `json:"supported_brokers"`
	DisplayName      string   `json:"display_name"`
}
