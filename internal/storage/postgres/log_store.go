package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// AppendLog stores one batch-scoped log line.
func (s *Store) AppendLog(ctx context.Context, entry verify.LogEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO batch_logs (at, level, message, batch_id, worker_id)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.At, entry.Level, entry.Message, entry.BatchID, entry.WorkerID)
	if err != nil {
		return fmt.Errorf("append log for batch %s: %w", entry.BatchID, err)
	}
	return nil
}

// LogsByBatch returns the batch log in chronological order.
func (s *Store) LogsByBatch(ctx context.Context, batchID string) ([]verify.LogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, at, level, message, batch_id, worker_id FROM batch_logs
		WHERE batch_id = $1 ORDER BY at, id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query logs for batch %s: %w", batchID, err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

// RecentLogs returns the latest log lines across all batches.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]verify.LogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, at, level, message, batch_id, worker_id FROM batch_logs
		ORDER BY at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent logs: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

func scanLogs(rows pgx.Rows) ([]verify.LogEntry, error) {
	var entries []verify.LogEntry
	for rows.Next() {
		var e verify.LogEntry
		if err := rows.Scan(&e.ID, &e.At, &e.Level, &e.Message, &e.BatchID, &e.WorkerID); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return entries, nil
}
