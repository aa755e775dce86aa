package model

import "time"

// Sync lifecycle states. Any state may re-enter in_progress on the next
// sync attempt; failed always carries an error message, completed clears
// it (unless the run was served by a degraded fallback, which is noted
// there so operators can see it).
const (
	SyncPending    = "pending"
	SyncInProgress = "in_progress"
	SyncCompleted  = "completed"
	SyncFailed     = "failed"
)

// SyncStatus is the per-broker sync lifecycle record. One row per broker,
// created at bootstrap with pending, mutated only by transitions, never
// deleted.
type SyncStatus struct {
	BrokerName   string    `json:"broker_name"`
	SyncStatus   string    `json:"sync_status"`
	TotalSymbols int       `json:"total_symbols"`
	ErrorMessage string    `json:"error_message,omitempty"`
	LastSyncAt   time.Time `json:"last_sync_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SnapshotFile describes one archived symbol dump on disk.
type SnapshotFile struct {
	Filename string    `json:"filename"`
	Broker   string    `json:"broker"`
	Date     string    `json:"date"` // YYYY-MM-DD or "latest"
	Type     string    `json:"type"` // json or csv
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}
