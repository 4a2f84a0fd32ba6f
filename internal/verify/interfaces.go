package verify

import (
	"context"
	"time"
)

// JobStore persists batches and items with atomic claim semantics.
type JobStore interface {
	// SubmitBatch creates one batch row and its item rows; no partial batch
	// is visible to pollers.
	SubmitBatch(ctx context.Context, batch Batch, items []Item) error
	// PendingItems returns pending items ordered by id, optionally scoped to
	// one batch (empty batchID means all batches).
	PendingItems(ctx context.Context, batchID string) ([]Item, error)
	// TryStartItem performs the conditional pending->running transition.
	// It reports false when another claimant already moved the item.
	TryStartItem(ctx context.Context, itemID int64) (bool, error)
	// FinishItem records the terminal status and message for an item.
	FinishItem(ctx context.Context, itemID int64, status ItemStatus, message string) error
	// Heartbeat bumps the batch liveness timestamp.
	Heartbeat(ctx context.Context, batchID string) error
	// IncrementProgress adds delta to the batch progress counter.
	IncrementProgress(ctx context.Context, batchID string, delta int) error
	// SetBatchStatus updates the batch lifecycle status.
	SetBatchStatus(ctx context.Context, batchID string, status BatchStatus) error
	// FinishBatch marks the batch done with final outcome counts.
	FinishBatch(ctx context.Context, batchID string, found, notFound int) error
	// FailBatch marks the batch error and fails its non-terminal items.
	FailBatch(ctx context.Context, batchID, message string) error
	// ResetStuckItems moves running items back to pending, returning how many.
	ResetStuckItems(ctx context.Context, batchID string) (int64, error)
	// HasActiveItems reports whether any item is still pending or running.
	HasActiveItems(ctx context.Context, batchID string) (bool, error)
	// GetBatch loads one batch or returns ErrNotFound.
	GetBatch(ctx context.Context, batchID string) (Batch, error)
	// ListBatches returns batches newest first.
	ListBatches(ctx context.Context, limit int) ([]Batch, error)
}

// RecordStore persists verification outcomes, one row per (case, identifier).
type RecordStore interface {
	// UpsertRecord inserts or overwrites the record for its key pair.
	UpsertRecord(ctx context.Context, rec VerificationRecord) error
	// RecordsByBatch returns records for one batch, newest first.
	RecordsByBatch(ctx context.Context, batchID string) ([]VerificationRecord, error)
	// RecentRecords returns the latest records across all batches.
	RecentRecords(ctx context.Context, limit int) ([]VerificationRecord, error)
	// CountOutcomes tallies found/not-found records for a batch.
	CountOutcomes(ctx context.Context, batchID string) (found, notFound int, err error)
}

// LogStore persists batch-scoped log lines.
type LogStore interface {
	AppendLog(ctx context.Context, entry LogEntry) error
	LogsByBatch(ctx context.Context, batchID string) ([]LogEntry, error)
	RecentLogs(ctx context.Context, limit int) ([]LogEntry, error)
}

// CredentialStore keeps portal credentials and loose configuration values.
type CredentialStore interface {
	SaveCredential(ctx context.Context, username, password string) error
	Password(ctx context.Context, username string) (string, error)
	Usernames(ctx context.Context) ([]string, error)
	SetSetting(ctx context.Context, key, value string) error
	Setting(ctx context.Context, key string) (string, error)
}

// Maintenance exposes the administrative store operations.
type Maintenance interface {
	// ActiveBatchCount counts batches that have not finished.
	ActiveBatchCount(ctx context.Context) (int, error)
	// ForceFinalizeBatch finalizes one batch with its current record counts.
	ForceFinalizeBatch(ctx context.Context, batchID string) error
	// ForceFinalizeAll finalizes every active batch, returning how many.
	ForceFinalizeAll(ctx context.Context) (int, error)
	// BackupAndReset snapshots all rows into timestamped backup tables and
	// truncates the live ones. Refused with ErrStoreBusy while batches are
	// active. Returns the backup suffix.
	BackupAndReset(ctx context.Context) (string, error)
}

// SnapshotStore writes diagnostic artifacts and returns a URI.
type SnapshotStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Session is one authenticated portal browsing session.
type Session interface {
	// Login authenticates; failure is fatal for the owning batch.
	Login(ctx context.Context, username, password string) error
	// Verify runs the full case lookup for one item. ErrAccessLimit demands
	// a session restart; other errors are per-item failures.
	Verify(ctx context.Context, caseNumber, identifier string) (VerifyResult, error)
	// Close releases the browser.
	Close()
}

// SessionFactory opens portal sessions; one per batch per worker pass.
// The batch ID scopes diagnostic snapshot names.
type SessionFactory interface {
	NewSession(ctx context.Context, batchID string, mode BrowserMode) (Session, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces batch IDs.
type IDGenerator interface {
	NewID() (string, error)
}
