// Package verify defines core types shared across subsystems.
package verify

import (
	"time"
)

// BatchStatus represents the lifecycle state of a verification batch.
type BatchStatus string

// Batch status values persisted in the job store.
const (
	BatchStatusQueued  BatchStatus = "queued"
	BatchStatusRunning BatchStatus = "running"
	BatchStatusDone    BatchStatus = "done"
	BatchStatusError   BatchStatus = "error"
)

// ItemStatus represents the lifecycle state of a single job item.
type ItemStatus string

// Item status values persisted in the job store.
const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusRunning ItemStatus = "running"
	ItemStatusDone    ItemStatus = "done"
	ItemStatusFailed  ItemStatus = "failed"
)

// Outcome is the verdict of one verification.
type Outcome string

// Outcome values recorded per verification.
const (
	OutcomeProtocolized Outcome = "Protocolized"
	OutcomeNotFound     Outcome = "Not found"
)

// BrowserMode selects how the portal session renders.
type BrowserMode string

// Browser modes accepted at submission.
const (
	BrowserHeadless BrowserMode = "headless"
	BrowserVisible  BrowserMode = "visible"
)

// Batch represents one submitted group of verification requests, processed
// under a single portal session per worker pass.
type Batch struct {
	ID            string      `json:"id"`
	CreatedAt     time.Time   `json:"created_at"`
	FinishedAt    *time.Time  `json:"finished_at,omitempty"`
	Credential    string      `json:"credential"`
	BrowserMode   BrowserMode `json:"browser_mode"`
	Host          string      `json:"host"`
	TotalItems    int         `json:"total_items"`
	FoundCount    int         `json:"found_count"`
	NotFoundCount int         `json:"not_found_count"`
	Status        BatchStatus `json:"status"`
	Progress      int         `json:"progress"`
	HeartbeatAt   *time.Time  `json:"heartbeat_at,omitempty"`
}

// Item is one (case, identifier) verification task within a batch.
// Identifier may be empty, meaning "any matching record counts".
type Item struct {
	ID         int64      `json:"id"`
	BatchID    string     `json:"batch_id"`
	RawLine    string     `json:"raw_line"`
	CaseNumber string     `json:"case_number"`
	Identifier string     `json:"identifier,omitempty"`
	Status     ItemStatus `json:"status"`
	Message    string     `json:"message,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// VerificationRecord is the persisted outcome of one item. Records are keyed
// by (case number, identifier): re-verification overwrites the prior row.
type VerificationRecord struct {
	CaseNumber   string      `json:"case_number"`
	Identifier   string      `json:"identifier"`
	OriginalFile string      `json:"original_file"`
	Outcome      Outcome     `json:"outcome"`
	MatchedName  *string     `json:"matched_name,omitempty"`
	ProtocolDate *string     `json:"protocol_date,omitempty"`
	Message      string      `json:"message"`
	Credential   string      `json:"credential"`
	BrowserMode  BrowserMode `json:"browser_mode"`
	Host         string      `json:"host"`
	BatchID      string      `json:"batch_id"`
	ItemID       int64       `json:"item_id"`
	VerifiedAt   time.Time   `json:"verified_at"`
}

// Attachment describes one document link collected from an expanded movement
// row on the portal.
type Attachment struct {
	Title        string `json:"title"`
	Href         string `json:"href"`
	Identifier   string `json:"identifier,omitempty"`
	ProtocolDate string `json:"protocol_date,omitempty"`
	DocType      string `json:"doc_type,omitempty"`
}

// VerifyResult is returned by a portal session for one case lookup.
type VerifyResult struct {
	Found        bool
	MatchedName  string
	ProtocolDate string
	DocType      string
	Link         string
	Message      string
}

// LogEntry is one batch-scoped log line stored alongside results so the
// dashboard can render a live terminal view.
type LogEntry struct {
	ID       int64     `json:"id"`
	At       time.Time `json:"at"`
	Level    string    `json:"level"`
	Message  string    `json:"message"`
	BatchID  string    `json:"batch_id"`
	WorkerID string    `json:"worker_id"`
}

// ParsedLine is the canonical decomposition of one raw input line.
type ParsedLine struct {
	CaseNumber string
	Identifier string
	Raw        string
}
