package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

const recordColumns = `case_number, identifier, original_file, outcome, matched_name,
	protocol_date, message, credential, browser_mode, host, batch_id, item_id, verified_at`

// UpsertRecord inserts or replaces the verification for its (case, identifier)
// pair. Re-running a batch overwrites prior verdicts instead of duplicating.
func (s *Store) UpsertRecord(ctx context.Context, rec verify.VerificationRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verifications (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (case_number, identifier) DO UPDATE SET
			original_file = EXCLUDED.original_file,
			outcome       = EXCLUDED.outcome,
			matched_name  = EXCLUDED.matched_name,
			protocol_date = EXCLUDED.protocol_date,
			message       = EXCLUDED.message,
			credential    = EXCLUDED.credential,
			browser_mode  = EXCLUDED.browser_mode,
			host          = EXCLUDED.host,
			batch_id      = EXCLUDED.batch_id,
			item_id       = EXCLUDED.item_id,
			verified_at   = EXCLUDED.verified_at`,
		rec.CaseNumber, rec.Identifier, rec.OriginalFile, string(rec.Outcome),
		rec.MatchedName, rec.ProtocolDate, rec.Message, rec.Credential,
		string(rec.BrowserMode), rec.Host, rec.BatchID, rec.ItemID, rec.VerifiedAt)
	if err != nil {
		return fmt.Errorf("upsert verification %s/%s: %w", rec.CaseNumber, rec.Identifier, err)
	}
	return nil
}

// RecordsByBatch returns records for one batch, newest first.
func (s *Store) RecordsByBatch(ctx context.Context, batchID string) ([]verify.VerificationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM verifications
		WHERE batch_id = $1 ORDER BY verified_at DESC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query records for batch %s: %w", batchID, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// RecentRecords returns the latest records across all batches.
func (s *Store) RecentRecords(ctx context.Context, limit int) ([]verify.VerificationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM verifications
		ORDER BY verified_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// CountOutcomes tallies found and not-found records for one batch.
func (s *Store) CountOutcomes(ctx context.Context, batchID string) (int, int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT outcome, COUNT(*) FROM verifications
		WHERE batch_id = $1 GROUP BY outcome`, batchID)
	if err != nil {
		return 0, 0, fmt.Errorf("count outcomes for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	var found, notFound int
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return 0, 0, fmt.Errorf("scan outcome row: %w", err)
		}
		switch verify.Outcome(outcome) {
		case verify.OutcomeProtocolized:
			found = n
		case verify.OutcomeNotFound:
			notFound = n
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate outcomes: %w", err)
	}
	return found, notFound, nil
}

func scanRecords(rows pgx.Rows) ([]verify.VerificationRecord, error) {
	var recs []verify.VerificationRecord
	for rows.Next() {
		var rec verify.VerificationRecord
		var outcome, mode string
		err := rows.Scan(&rec.CaseNumber, &rec.Identifier, &rec.OriginalFile, &outcome,
			&rec.MatchedName, &rec.ProtocolDate, &rec.Message, &rec.Credential,
			&mode, &rec.Host, &rec.BatchID, &rec.ItemID, &rec.VerifiedAt)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		rec.Outcome = verify.Outcome(outcome)
		rec.BrowserMode = verify.BrowserMode(mode)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}
