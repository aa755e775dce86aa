package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the sync orchestrator and API handlers from
// concrete storage implementations (SQLite, Redis, flat files). Each
// implementation satisfies one or more of these interfaces.

// SymbolStore persists canonical instruments and their broker mappings.
type SymbolStore interface {
	// StoreSymbols upserts records for one broker. stored counts fresh
	// inserts, updated counts replaced rows. Per-record failures are
	// logged and skipped, never abort the batch.
	StoreSymbols(ctx context.Context, broker string, records []SymbolRecord) (stored, updated int, err error)

	// Search runs a ranked keyword search over symbols and names.
	Search(ctx context.Context, query string, f SearchFilters) ([]SearchResult, error)

	// GetMapping looks up one broker's identifiers for a canonical
	// symbol+exchange. Returns nil, nil when no active mapping exists.
	GetMapping(ctx context.Context, broker, symbol, exchange string) (*MappingLookup, error)

	// GetDetails returns an instrument with all of its active broker
	// mappings, or nil, nil when unknown.
	GetDetails(ctx context.Context, symbol, exchange string) (*InstrumentDetails, error)

	// ListSegments returns the distinct (segment, exchange) catalog.
	ListSegments(ctx context.Context) ([]SegmentSummary, error)
}

// StatusStore owns the per-broker sync status rows.
type StatusStore interface {
	// InitStatuses creates a pending row for every broker that has none.
	InitStatuses(ctx context.Context, brokers []string) error

	// SetStatus upserts the status row for one broker. errMsg is empty
	// except on failed transitions and degraded-data completions.
	SetStatus(ctx context.Context, broker, status, errMsg string, totalSymbols int) error

	// GetStatuses returns all broker status rows, most recent first.
	GetStatuses(ctx context.Context) ([]SyncStatus, error)
}

// SnapshotArchiver persists normalized record sets to flat files.
// Best-effort: the sync outcome never depends on it.
type SnapshotArchiver interface {
	Save(broker string, records []SymbolRecord) error
	List() ([]SnapshotFile, error)
	LoadLatest(broker string) ([]SymbolRecord, error)
}

// MappingCache is an optional read-aside cache for mapping lookups.
type MappingCache interface {
	GetMapping(ctx context.Context, broker, symbol, exchange string) (*MappingLookup, bool)
	SetMapping(ctx context.Context, m *MappingLookup)
	InvalidateBroker(ctx context.Context, broker string)
}

// EventSink receives sync lifecycle events for fan-out to dashboards.
type EventSink interface {
	PublishSyncEvent(broker, status string, totalSymbols int, errMsg string)
}
