package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

const batchColumns = `id, created_at, finished_at, credential, browser_mode, host,
	total_items, found_count, not_found_count, status, progress, heartbeat_at`

const itemColumns = `id, batch_id, raw_line, case_number, identifier, status, message,
	created_at, updated_at`

// SubmitBatch writes the batch row and all item rows in one transaction so
// pollers never observe a partially submitted batch.
func (s *Store) SubmitBatch(ctx context.Context, batch verify.Batch, items []verify.Item) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin submit batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO verification_batches
			(id, created_at, credential, browser_mode, host, total_items, status, progress)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)`,
		batch.ID, batch.CreatedAt, batch.Credential, string(batch.BrowserMode),
		batch.Host, batch.TotalItems, string(batch.Status))
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", batch.ID, err)
	}
	for _, it := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO verification_items
				(batch_id, raw_line, case_number, identifier, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			batch.ID, it.RawLine, it.CaseNumber, it.Identifier,
			string(verify.ItemStatusPending), batch.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert item for batch %s: %w", batch.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit submit batch: %w", err)
	}
	return nil
}

// PendingItems returns pending items in submission order. An empty batchID
// spans all batches.
func (s *Store) PendingItems(ctx context.Context, batchID string) ([]verify.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM verification_items WHERE status = 'pending'`
	args := []any{}
	if batchID != "" {
		query += ` AND batch_id = $1`
		args = append(args, batchID)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// TryStartItem claims the item only if it is still pending. The conditional
// update is the claim: concurrent workers race it and exactly one wins.
func (s *Store) TryStartItem(ctx context.Context, itemID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE verification_items
		SET status = 'running', message = '', updated_at = now()
		WHERE id = $1 AND status = 'pending'`, itemID)
	if err != nil {
		return false, fmt.Errorf("claim item %d: %w", itemID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// FinishItem records the terminal status and message for one item.
func (s *Store) FinishItem(ctx context.Context, itemID int64, status verify.ItemStatus, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE verification_items
		SET status = $2, message = $3, updated_at = now()
		WHERE id = $1`, itemID, string(status), message)
	if err != nil {
		return fmt.Errorf("finish item %d: %w", itemID, err)
	}
	return nil
}

// Heartbeat bumps the batch liveness timestamp.
func (s *Store) Heartbeat(ctx context.Context, batchID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE verification_batches SET heartbeat_at = now() WHERE id = $1`, batchID)
	if err != nil {
		return fmt.Errorf("heartbeat batch %s: %w", batchID, err)
	}
	return nil
}

// IncrementProgress adds delta to the batch progress counter.
func (s *Store) IncrementProgress(ctx context.Context, batchID string, delta int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE verification_batches SET progress = progress + $2 WHERE id = $1`, batchID, delta)
	if err != nil {
		return fmt.Errorf("increment progress for batch %s: %w", batchID, err)
	}
	return nil
}

// SetBatchStatus updates the batch lifecycle status.
func (s *Store) SetBatchStatus(ctx context.Context, batchID string, status verify.BatchStatus) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE verification_batches SET status = $2 WHERE id = $1`, batchID, string(status))
	if err != nil {
		return fmt.Errorf("set status for batch %s: %w", batchID, err)
	}
	return nil
}

// FinishBatch marks the batch done with its final outcome counts.
func (s *Store) FinishBatch(ctx context.Context, batchID string, found, notFound int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE verification_batches
		SET status = 'done', finished_at = now(), found_count = $2, not_found_count = $3
		WHERE id = $1`, batchID, found, notFound)
	if err != nil {
		return fmt.Errorf("finish batch %s: %w", batchID, err)
	}
	return nil
}

// FailBatch marks the batch error and fails any items that never completed.
func (s *Store) FailBatch(ctx context.Context, batchID, message string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fail batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		UPDATE verification_items
		SET status = 'failed', message = $2, updated_at = now()
		WHERE batch_id = $1 AND status IN ('pending', 'running')`, batchID, message)
	if err != nil {
		return fmt.Errorf("fail items for batch %s: %w", batchID, err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE verification_batches
		SET status = 'error', finished_at = now()
		WHERE id = $1`, batchID)
	if err != nil {
		return fmt.Errorf("fail batch %s: %w", batchID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fail batch: %w", err)
	}
	return nil
}

// ResetStuckItems moves running items back to pending so a later pass can
// retry them, returning the number of rows moved.
func (s *Store) ResetStuckItems(ctx context.Context, batchID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE verification_items
		SET status = 'pending', message = '', updated_at = now()
		WHERE batch_id = $1 AND status = 'running'`, batchID)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items for batch %s: %w", batchID, err)
	}
	return tag.RowsAffected(), nil
}

// HasActiveItems reports whether any item of the batch is pending or running.
func (s *Store) HasActiveItems(ctx context.Context, batchID string) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM verification_items
			WHERE batch_id = $1 AND status IN ('pending', 'running')
		)`, batchID).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check active items for batch %s: %w", batchID, err)
	}
	return active, nil
}

// GetBatch loads one batch or returns verify.ErrNotFound.
func (s *Store) GetBatch(ctx context.Context, batchID string) (verify.Batch, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+batchColumns+` FROM verification_batches WHERE id = $1`, batchID)
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return verify.Batch{}, verify.ErrNotFound
	}
	if err != nil {
		return verify.Batch{}, fmt.Errorf("get batch %s: %w", batchID, err)
	}
	return b, nil
}

// ListBatches returns batches newest first.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]verify.Batch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+batchColumns+` FROM verification_batches
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []verify.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

func scanBatch(row pgx.Row) (verify.Batch, error) {
	var b verify.Batch
	var mode, status string
	err := row.Scan(&b.ID, &b.CreatedAt, &b.FinishedAt, &b.Credential, &mode, &b.Host,
		&b.TotalItems, &b.FoundCount, &b.NotFoundCount, &status, &b.Progress, &b.HeartbeatAt)
	if err != nil {
		return verify.Batch{}, err
	}
	b.BrowserMode = verify.BrowserMode(mode)
	b.Status = verify.BatchStatus(status)
	return b, nil
}

func scanItems(rows pgx.Rows) ([]verify.Item, error) {
	var items []verify.Item
	for rows.Next() {
		var it verify.Item
		var status string
		err := rows.Scan(&it.ID, &it.BatchID, &it.RawLine, &it.CaseNumber, &it.Identifier,
			&status, &it.Message, &it.CreatedAt, &it.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		it.Status = verify.ItemStatus(status)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}
