package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// resetTables are snapshotted and truncated by BackupAndReset, in an order
// that satisfies the items -> batches foreign key.
var resetTables = []string{
	"verification_items",
	"verification_batches",
	"verifications",
	"batch_logs",
}

// ActiveBatchCount counts batches that have not reached a terminal state.
func (s *Store) ActiveBatchCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM verification_batches
		WHERE status IN ('queued', 'running')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active batches: %w", err)
	}
	return n, nil
}

// ForceFinalizeBatch marks one batch done using whatever records exist for it.
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

// ForceFinalizeAll finalizes every active batch, returning how many.
func (s *Store) ForceFinalizeAll(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM verification_batches WHERE status IN ('queued', 'running')`)
	if err != nil {
		return 0, fmt.Errorf("list active batches: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan active batch id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate active batches: %w", err)
	}

	for _, id := range ids {
		if err := s.ForceFinalizeBatch(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// BackupAndReset copies every reset table into a timestamped backup table and
// truncates the live ones. Refused while batches are still active. Returns
// the backup suffix shared by the created tables.
func (s *Store) BackupAndReset(ctx context.Context) (string, error) {
	active, err := s.ActiveBatchCount(ctx)
	if err != nil {
		return "", err
	}
	if active > 0 {
		return "", verify.ErrStoreBusy
	}

	suffix := time.Now().UTC().Format("20060102_150405")
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, table := range resetTables {
		stmt := fmt.Sprintf("CREATE TABLE %s_backup_%s AS TABLE %s", table, suffix, table)
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return "", fmt.Errorf("backup %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(ctx, `
		TRUNCATE verification_items, verification_batches, verifications, batch_logs`); err != nil {
		return "", fmt.Errorf("truncate live tables: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit reset: %w", err)
	}
	return suffix, nil
}
