// Package memory provides an in-memory store for development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// Store keeps batches, items, records, logs and credentials in process
// memory. It implements the same interfaces as the Postgres store.
type Store struct {
	mu         sync.RWMutex
	batches    map[string]verify.Batch
	items      map[int64]verify.Item
	records    map[string]verify.VerificationRecord
	logs       []verify.LogEntry
	creds      map[string]string
	settings   map[string]string
	nextItemID int64
	nextLogID  int64
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		batches:  make(map[string]verify.Batch),
		items:    make(map[int64]verify.Item),
		records:  make(map[string]verify.VerificationRecord),
		creds:    make(map[string]string),
		settings: make(map[string]string),
	}
}

func recordKey(caseNumber, identifier string) string {
	return caseNumber + "|" + identifier
}

// SubmitBatch stores the batch and its items atomically under one lock.
func (s *Store) SubmitBatch(_ context.Context, batch verify.Batch, items []verify.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.batches[batch.ID]; exists {
		return fmt.Errorf("batch %s already exists", batch.ID)
	}
	s.batches[batch.ID] = batch
	for _, it := range items {
		s.nextItemID++
		it.ID = s.nextItemID
		it.BatchID = batch.ID
		it.Status = verify.ItemStatusPending
		it.CreatedAt = batch.CreatedAt
		s.items[it.ID] = it
	}
	return nil
}

// PendingItems returns pending items in id order, optionally batch-scoped.
func (s *Store) PendingItems(_ context.Context, batchID string) ([]verify.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []verify.Item
	for _, it := range s.items {
		if it.Status != verify.ItemStatusPending {
			continue
		}
		if batchID != "" && it.BatchID != batchID {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// TryStartItem claims a pending item, reporting false when it was already
// taken or finished.
func (s *Store) TryStartItem(_ context.Context, itemID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return false, verify.ErrNotFound
	}
	if it.Status != verify.ItemStatusPending {
		return false, nil
	}
	it.Status = verify.ItemStatusRunning
	it.Message = ""
	it.UpdatedAt = pointerTime(time.Now().UTC())
	s.items[itemID] = it
	return true, nil
}

// FinishItem records the terminal status and message for one item.
func (s *Store) FinishItem(_ context.Context, itemID int64, status verify.ItemStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return verify.ErrNotFound
	}
	it.Status = status
	it.Message = message
	it.UpdatedAt = pointerTime(time.Now().UTC())
	s.items[itemID] = it
	return nil
}

// Heartbeat bumps the batch liveness timestamp.
func (s *Store) Heartbeat(_ context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return verify.ErrNotFound
	}
	b.HeartbeatAt = pointerTime(time.Now().UTC())
	s.batches[batchID] = b
	return nil
}

// IncrementProgress adds delta to the batch progress counter.
func (s *Store) IncrementProgress(_ context.Context, batchID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return verify.ErrNotFound
	}
	b.Progress += delta
	s.batches[batchID] = b
	return nil
}

// SetBatchStatus updates the batch lifecycle status.
func (s *Store) SetBatchStatus(_ context.Context, batchID string, status verify.BatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return verify.ErrNotFound
	}
	b.Status = status
	s.batches[batchID] = b
	return nil
}

// FinishBatch marks the batch done with final counts.
func (s *Store) FinishBatch(_ context.Context, batchID string, found, notFound int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return verify.ErrNotFound
	}
	b.Status = verify.BatchStatusDone
	b.FoundCount = found
	b.NotFoundCount = notFound
	b.FinishedAt = pointerTime(time.Now().UTC())
	s.batches[batchID] = b
	return nil
}

// FailBatch marks the batch error and fails its non-terminal items.
func (s *Store) FailBatch(_ context.Context, batchID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return verify.ErrNotFound
	}
	now := time.Now().UTC()
	for id, it := range s.items {
		if it.BatchID != batchID {
			continue
		}
		if it.Status == verify.ItemStatusPending || it.Status == verify.ItemStatusRunning {
			it.Status = verify.ItemStatusFailed
			it.Message = message
			it.UpdatedAt = pointerTime(now)
			s.items[id] = it
		}
	}
	b.Status = verify.BatchStatusError
	b.FinishedAt = pointerTime(now)
	s.batches[batchID] = b
	return nil
}

// ResetStuckItems moves running items back to pending.
func (s *Store) ResetStuckItems(_ context.Context, batchID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, it := range s.items {
		if it.BatchID == batchID && it.Status == verify.ItemStatusRunning {
			it.Status = verify.ItemStatusPending
			it.Message = ""
			it.UpdatedAt = pointerTime(time.Now().UTC())
			s.items[id] = it
			n++
		}
	}
	return n, nil
}

// HasActiveItems reports whether any item is still pending or running.
func (s *Store) HasActiveItems(_ context.Context, batchID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.BatchID != batchID {
			continue
		}
		if it.Status == verify.ItemStatusPending || it.Status == verify.ItemStatusRunning {
			return true, nil
		}
	}
	return false, nil
}

// GetBatch fetches one batch by ID.
func (s *Store) GetBatch(_ context.Context, batchID string) (verify.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	if !ok {
		return verify.Batch{}, verify.ErrNotFound
	}
	return b, nil
}

// ListBatches returns batches newest first.
func (s *Store) ListBatches(_ context.Context, limit int) ([]verify.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]verify.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertRecord inserts or replaces the record for its (case, identifier) pair.
func (s *Store) UpsertRecord(_ context.Context, rec verify.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(rec.CaseNumber, rec.Identifier)] = rec
	return nil
}

// RecordsByBatch returns records for one batch, newest first.
func (s *Store) RecordsByBatch(_ context.Context, batchID string) ([]verify.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []verify.VerificationRecord
	for _, rec := range s.records {
		if rec.BatchID == batchID {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// RecentRecords returns the latest records across all batches.
func (s *Store) RecentRecords(_ context.Context, limit int) ([]verify.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]verify.VerificationRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortRecords(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountOutcomes tallies found and not-found records for one batch.
func (s *Store) CountOutcomes(_ context.Context, batchID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found, notFound int
	for _, rec := range s.records {
		if rec.BatchID != batchID {
			continue
		}
		switch rec.Outcome {
		case verify.OutcomeProtocolized:
			found++
		case verify.OutcomeNotFound:
			notFound++
		}
	}
	return found, notFound, nil
}

// AppendLog stores one log line.
func (s *Store) AppendLog(_ context.Context, entry verify.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	entry.ID = s.nextLogID
	s.logs = append(s.logs, entry)
	return nil
}

// LogsByBatch returns the batch log in append order.
func (s *Store) LogsByBatch(_ context.Context, batchID string) ([]verify.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []verify.LogEntry
	for _, e := range s.logs {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out, nil
}

// RecentLogs returns the latest log lines, newest first.
func (s *Store) RecentLogs(_ context.Context, limit int) ([]verify.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]verify.LogEntry, 0, len(s.logs))
	for i := len(s.logs) - 1; i >= 0; i-- {
		out = append(out, s.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SaveCredential stores or replaces one credential.
func (s *Store) SaveCredential(_ context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[username] = password
	return nil
}

// Password returns the stored password or verify.ErrNotFound.
func (s *Store) Password(_ context.Context, username string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	password, ok := s.creds[username]
	if !ok {
		return "", verify.ErrNotFound
	}
	return password, nil
}

// Usernames lists stored usernames in sorted order.
func (s *Store) Usernames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SetSetting stores or replaces one configuration value.
func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// Setting returns one configuration value or verify.ErrNotFound.
func (s *Store) Setting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.settings[key]
	if !ok {
		return "", verify.ErrNotFound
	}
	return value, nil
}

// ActiveBatchCount counts batches that have not reached a terminal state.
func (s *Store) ActiveBatchCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	for _, b := range s.batches {
		if b.Status == verify.BatchStatusQueued || b.Status == verify.BatchStatusRunning {
			n++
		}
	}
	return n, nil
}

// ForceFinalizeBatch marks one batch done using its current record counts.
func (s *Store) ForceFinalizeBatch(ctx context.Context, batchID string) error {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return err
	}
	found, notFound, err := s.CountOutcomes(ctx, batchID)
	if err != nil {
		return err
	}
	return s.FinishBatch(ctx, batchID, found, notFound)
}

// ForceFinalizeAll finalizes every active batch.
func (s *Store) ForceFinalizeAll(ctx context.Context) (int, error) {
	s.mu.RLock()
	var ids []string
	for id, b := range s.batches {
		if b.Status == verify.BatchStatusQueued || b.Status == verify.BatchStatusRunning {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := s.ForceFinalizeBatch(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// BackupAndReset drops all batches, items, records and logs. Refused while
// batches are active. Credentials and settings survive the reset.
func (s *Store) BackupAndReset(ctx context.Context) (string, error) {
	active, err := s.ActiveBatchCount(ctx)
	if err != nil {
		return "", err
	}
	if active > 0 {
		return "", verify.ErrStoreBusy
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = make(map[string]verify.Batch)
	s.items = make(map[int64]verify.Item)
	s.records = make(map[string]verify.VerificationRecord)
	s.logs = nil
	return time.Now().UTC().Format("20060102_150405"), nil
}

func sortRecords(recs []verify.VerificationRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].VerifiedAt.Equal(recs[j].VerifiedAt) {
			return recs[i].ItemID > recs[j].ItemID
		}
		return recs[i].VerifiedAt.After(recs[j].VerifiedAt)
	})
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
