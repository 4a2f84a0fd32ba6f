package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

func newMockedStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestSubmitBatchIsTransactional(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	now := time.Unix(1700000000, 0).UTC()

	batch := verify.Batch{
		ID:          "a1b2c3d4",
		CreatedAt:   now,
		Credential:  "ana.silva",
		BrowserMode: verify.BrowserHeadless,
		Host:        "worker-1",
		TotalItems:  2,
		Status:      verify.BatchStatusQueued,
	}
	items := []verify.Item{
		{RawLine: "doc_111_222_.pdf", CaseNumber: "0001234.56.2020.8.09.0001", Identifier: "_111_222_"},
		{RawLine: "doc_333_444_.pdf", CaseNumber: "0001234.56.2020.8.09.0001", Identifier: "_333_444_"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO verification_batches").
		WithArgs(batch.ID, batch.CreatedAt, batch.Credential, "headless",
			batch.Host, batch.TotalItems, "queued").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for _, it := range items {
		mock.ExpectExec("INSERT INTO verification_items").
			WithArgs(batch.ID, it.RawLine, it.CaseNumber, it.Identifier, "pending", batch.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, store.SubmitBatch(context.Background(), batch, items))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryStartItemWinsOnlyWhenPending(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)

	mock.ExpectExec("UPDATE verification_items").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE verification_items").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	claimed, err := store.TryStartItem(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = store.TryStartItem(context.Background(), 7)
	require.NoError(t, err)
	require.False(t, claimed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRecordUsesConflictKey(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	now := time.Unix(1700000000, 0).UTC()
	name := "peticao_111_222_.pdf"
	date := "13/11/2025"

	rec := verify.VerificationRecord{
		CaseNumber:   "5188032.43.2019.8.09.0152",
		Identifier:   "_9565_56790_",
		OriginalFile: "doc_9565_56790_.pdf",
		Outcome:      verify.OutcomeProtocolized,
		MatchedName:  &name,
		ProtocolDate: &date,
		Message:      "matched attachment",
		Credential:   "ana.silva",
		BrowserMode:  verify.BrowserHeadless,
		Host:         "worker-1",
		BatchID:      "a1b2c3d4",
		ItemID:       7,
		VerifiedAt:   now,
	}

	mock.ExpectExec("INSERT INTO verifications").
		WithArgs(rec.CaseNumber, rec.Identifier, rec.OriginalFile, "Protocolized",
			rec.MatchedName, rec.ProtocolDate, rec.Message, rec.Credential,
			"headless", rec.Host, rec.BatchID, rec.ItemID, rec.VerifiedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertRecord(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetStuckItemsReturnsCount(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)

	mock.ExpectExec("UPDATE verification_items").
		WithArgs("a1b2c3d4").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := store.ResetStuckItems(context.Background(), "a1b2c3d4")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBatchNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)

	mock.ExpectQuery("SELECT (.+) FROM verification_batches WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "created_at", "finished_at", "credential", "browser_mode", "host",
			"total_items", "found_count", "not_found_count", "status", "progress", "heartbeat_at",
		}))

	_, err := store.GetBatch(context.Background(), "missing")
	require.ErrorIs(t, err, verify.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountOutcomes(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)

	mock.ExpectQuery("SELECT outcome, COUNT").
		WithArgs("a1b2c3d4").
		WillReturnRows(pgxmock.NewRows([]string{"outcome", "count"}).
			AddRow("Protocolized", 5).
			AddRow("Not found", 2))

	found, notFound, err := store.CountOutcomes(context.Background(), "a1b2c3d4")
	require.NoError(t, err)
	require.Equal(t, 5, found)
	require.Equal(t, 2, notFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupAndResetRefusedWhileActive(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	_, err := store.BackupAndReset(context.Background())
	require.ErrorIs(t, err, verify.ErrStoreBusy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)

	mock.ExpectQuery("SELECT password FROM credentials").
		WithArgs("nobody").
		WillReturnRows(pgxmock.NewRows([]string{"password"}))

	_, err := store.Password(context.Background(), "nobody")
	require.ErrorIs(t, err, verify.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
