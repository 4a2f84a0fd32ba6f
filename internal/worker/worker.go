// Package worker implements the batch verification execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/prm-gestao/projudi-verifier/internal/logging"
	"github.com/prm-gestao/projudi-verifier/internal/metrics"
	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// Config controls Worker behavior.
type Config struct {
	// PollInterval is the wait between store polls for pending items.
	PollInterval time.Duration
	// HeartbeatInterval drives the watchdog ticker. Liveness itself is a
	// side effect of work: every stored log line bumps the batch heartbeat.
	HeartbeatInterval time.Duration
	// StallThreshold is the consecutive watchdog tick count with unchanged
	// progress after which the batch is torn down.
	StallThreshold int
	// EnvCredential and EnvPassword are the environment fallback pair for
	// batches submitted without an assigned credential.
	EnvCredential string
	EnvPassword   string
	// WorkerID labels stored log lines.
	WorkerID string
}

// defaultCredentialKey is the settings key naming the stored fallback
// credential.
const defaultCredentialKey = "default_credential"

// Worker drains pending items batch by batch, one portal session per batch.
type Worker struct {
	jobs     verify.JobStore
	records  verify.RecordStore
	logs     verify.LogStore
	creds    verify.CredentialStore
	sessions verify.SessionFactory
	clock    verify.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	jobs verify.JobStore,
	records verify.RecordStore,
	logs verify.LogStore,
	creds verify.CredentialStore,
	sessions verify.SessionFactory,
	clock verify.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = 10
	}
	if cfg.WorkerID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.WorkerID = host
		} else {
			cfg.WorkerID = "worker"
		}
	}
	return &Worker{
		jobs:     jobs,
		records:  records,
		logs:     logs,
		creds:    creds,
		sessions: sessions,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, polling for pending work until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("worker pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce drains everything currently pending, grouped by batch.
func (w *Worker) RunOnce(ctx context.Context) error {
	pending, err := w.jobs.PendingItems(ctx, "")
	if err != nil {
		return fmt.Errorf("poll pending items: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	byBatch := make(map[string][]verify.Item)
	var order []string
	for _, item := range pending {
		if _, seen := byBatch[item.BatchID]; !seen {
			order = append(order, item.BatchID)
		}
		byBatch[item.BatchID] = append(byBatch[item.BatchID], item)
	}

	for _, batchID := range order {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.processBatch(ctx, batchID, byBatch[batchID]); err != nil {
			w.logger.Error("batch processing failed",
				zap.String("batch_id", batchID), zap.Error(err))
		}
	}
	return nil
}

func (w *Worker) processBatch(ctx context.Context, batchID string, items []verify.Item) error {
	batch, err := w.jobs.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch %s: %w", batchID, err)
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	blog := logging.WithBatchSink(w.logger.With(zap.String("batch_id", batchID)),
		logging.NewStoreCore(w.logs, w.jobs, batchID, w.cfg.WorkerID, zapcore.InfoLevel))

	username, password, err := w.resolveCredential(ctx, batch)
	if err != nil {
		if errors.Is(err, verify.ErrMissingCredentials) {
			blog.Error("no credential resolves for batch", zap.Error(err))
			if failErr := w.jobs.FailBatch(ctx, batchID, "missing credentials"); failErr != nil {
				return failErr
			}
			metrics.ObserveBatch(string(verify.BatchStatusError))
			return nil
		}
		return fmt.Errorf("resolve credential for batch %s: %w", batchID, err)
	}

	if err := w.jobs.SetBatchStatus(ctx, batchID, verify.BatchStatusRunning); err != nil {
		return fmt.Errorf("mark batch %s running: %w", batchID, err)
	}

	session, err := w.openSession(ctx, batch, username, password)
	if err != nil {
		if errors.Is(err, verify.ErrLoginFailed) {
			blog.Error("portal rejected credentials", zap.String("username", username))
			if failErr := w.jobs.FailBatch(ctx, batchID, "login rejected for "+username); failErr != nil {
				return failErr
			}
			metrics.ObserveBatch(string(verify.BatchStatusError))
			return nil
		}
		// Portal or browser trouble: requeue and let a later pass retry.
		blog.Warn("portal session unavailable, requeueing batch", zap.Error(err))
		return w.jobs.SetBatchStatus(ctx, batchID, verify.BatchStatusQueued)
	}
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	bctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var tripped atomic.Bool
	go w.watchdogLoop(bctx, batchID, batch.Progress, &tripped, cancel)

	blog.Info("batch started",
		zap.String("username", username),
		zap.Int("pending_items", len(items)))

	for _, item := range items {
		if bctx.Err() != nil {
			break
		}
		restart := w.processItem(bctx, blog, session, batch, username, item)
		if restart {
			metrics.ObserveSessionRestart()
			session.Close()
			session = nil
			session, err = w.openSession(bctx, batch, username, password)
			if err != nil {
				blog.Warn("session restart failed, requeueing remainder", zap.Error(err))
				break
			}
		}
	}
	cancel()

	if tripped.Load() {
		if session != nil {
			session.Close()
			session = nil
		}
		reset, resetErr := w.jobs.ResetStuckItems(ctx, batchID)
		if resetErr != nil {
			return fmt.Errorf("reset stuck items for batch %s: %w", batchID, resetErr)
		}
		if err := w.jobs.SetBatchStatus(ctx, batchID, verify.BatchStatusQueued); err != nil {
			return err
		}
		metrics.ObserveWatchdogReset()
		blog.Warn("watchdog tore batch down", zap.Int64("items_requeued", reset))
		return nil
	}

	active, err := w.jobs.HasActiveItems(ctx, batchID)
	if err != nil {
		return fmt.Errorf("check batch %s completion: %w", batchID, err)
	}
	if active {
		// Leftover pending items (failed restart, cancellation): requeue.
		return w.jobs.SetBatchStatus(ctx, batchID, verify.BatchStatusQueued)
	}

	found, notFound, err := w.records.CountOutcomes(ctx, batchID)
	if err != nil {
		return fmt.Errorf("count outcomes for batch %s: %w", batchID, err)
	}
	if err := w.jobs.FinishBatch(ctx, batchID, found, notFound); err != nil {
		return fmt.Errorf("finish batch %s: %w", batchID, err)
	}
	metrics.ObserveBatch(string(verify.BatchStatusDone))
	blog.Info("batch finished", zap.Int("found", found), zap.Int("not_found", notFound))
	return nil
}

// processItem runs one claimed item end to end. It reports true when the
// portal signaled the daily access limit, which demands a session restart;
// the requeued item stays pending for the restarted session.
func (w *Worker) processItem(
	ctx context.Context,
	blog *zap.Logger,
	session verify.Session,
	batch verify.Batch,
	username string,
	item verify.Item,
) bool {
	claimed, err := w.jobs.TryStartItem(ctx, item.ID)
	if err != nil {
		blog.Error("claim failed", zap.Int64("item_id", item.ID), zap.Error(err))
		return false
	}
	if !claimed {
		return false
	}

	start := w.clock.Now()
	blog.Info("verifying document",
		zap.Int64("item_id", item.ID),
		zap.String("case_number", item.CaseNumber),
		zap.String("identifier", item.Identifier))

	result, err := session.Verify(ctx, item.CaseNumber, item.Identifier)
	if err != nil {
		if ctx.Err() != nil {
			// Teardown in progress; the claim stays running for the
			// stuck-item reset.
			return false
		}
		if errors.Is(err, verify.ErrAccessLimit) {
			blog.Warn("daily access limit hit, restarting session")
			if _, resetErr := w.jobs.ResetStuckItems(ctx, batch.ID); resetErr != nil {
				blog.Error("requeue after access limit failed", zap.Error(resetErr))
			}
			return true
		}
		blog.Error("verification failed",
			zap.Int64("item_id", item.ID), zap.Error(err))
		if finErr := w.jobs.FinishItem(ctx, item.ID, verify.ItemStatusFailed, err.Error()); finErr != nil {
			blog.Error("finish item failed", zap.Error(finErr))
		}
		w.bumpProgress(ctx, blog, batch.ID)
		metrics.ObserveItem("error", w.clock.Now().Sub(start))
		return false
	}

	rec := w.buildRecord(batch, username, item, result)
	if err := w.records.UpsertRecord(ctx, rec); err != nil {
		blog.Error("record upsert failed", zap.Int64("item_id", item.ID), zap.Error(err))
		if finErr := w.jobs.FinishItem(ctx, item.ID, verify.ItemStatusFailed, "record upsert failed"); finErr != nil {
			blog.Error("finish item failed", zap.Error(finErr))
		}
		w.bumpProgress(ctx, blog, batch.ID)
		return false
	}
	if err := w.jobs.FinishItem(ctx, item.ID, verify.ItemStatusDone, rec.Message); err != nil {
		blog.Error("finish item failed", zap.Int64("item_id", item.ID), zap.Error(err))
	}
	w.bumpProgress(ctx, blog, batch.ID)
	metrics.ObserveItem(string(rec.Outcome), w.clock.Now().Sub(start))

	blog.Info("document verdict",
		zap.Int64("item_id", item.ID),
		zap.String("outcome", string(rec.Outcome)),
		zap.String("message", rec.Message))
	return false
}

// buildRecord converts a portal result into the persisted verdict. A match
// without a valid protocol date is demoted to Not found: the point of the
// verification is the protocolization date, and a dateless hit proves
// nothing.
func (w *Worker) buildRecord(batch verify.Batch, username string, item verify.Item, result verify.VerifyResult) verify.VerificationRecord {
	rec := verify.VerificationRecord{
		CaseNumber:   item.CaseNumber,
		Identifier:   item.Identifier,
		OriginalFile: item.RawLine,
		Outcome:      verify.OutcomeNotFound,
		Message:      result.Message,
		Credential:   username,
		BrowserMode:  batch.BrowserMode,
		Host:         w.cfg.WorkerID,
		BatchID:      batch.ID,
		ItemID:       item.ID,
		VerifiedAt:   w.clock.Now(),
	}
	if !result.Found {
		return rec
	}
	matched := result.MatchedName
	rec.MatchedName = &matched
	if result.ProtocolDate == "" {
		rec.Message = fmt.Sprintf("matched %q but no valid protocol date", result.MatchedName)
		return rec
	}
	date := result.ProtocolDate
	rec.Outcome = verify.OutcomeProtocolized
	rec.ProtocolDate = &date
	if result.DocType != "" {
		rec.Message = fmt.Sprintf("%s protocolada em %s", result.DocType, date)
	} else {
		rec.Message = fmt.Sprintf("Protocolada em %s", date)
	}
	return rec
}

func (w *Worker) bumpProgress(ctx context.Context, blog *zap.Logger, batchID string) {
	if err := w.jobs.IncrementProgress(ctx, batchID, 1); err != nil {
		blog.Error("progress update failed", zap.Error(err))
	}
}

// watchdogLoop counts consecutive liveness ticks with unchanged progress. A
// live heartbeat with frozen progress means the browser is wedged, not that
// the store is down, so the remedy is tearing the session down and handing
// the batch back to the queue.
func (w *Worker) watchdogLoop(ctx context.Context, batchID string, lastProgress int, tripped *atomic.Bool, cancel context.CancelFunc) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	stalls := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := w.jobs.GetBatch(ctx, batchID)
			if err != nil {
				continue
			}
			if batch.Progress == lastProgress {
				stalls++
			} else {
				stalls = 0
				lastProgress = batch.Progress
			}
			if stalls >= w.cfg.StallThreshold {
				tripped.Store(true)
				cancel()
				return
			}
		}
	}
}

// openSession launches and authenticates a portal session, retrying the
// launch a couple of times. A rejected credential is not retried.
func (w *Worker) openSession(ctx context.Context, batch verify.Batch, username, password string) (verify.Session, error) {
	var session verify.Session
	err := retry.Do(func() error {
		s, err := w.sessions.NewSession(ctx, batch.ID, batch.BrowserMode)
		if err != nil {
			return err
		}
		if err := s.Login(ctx, username, password); err != nil {
			s.Close()
			if errors.Is(err, verify.ErrLoginFailed) {
				return retry.Unrecoverable(err)
			}
			return err
		}
		session = s
		return nil
	},
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (w *Worker) resolveCredential(ctx context.Context, batch verify.Batch) (string, string, error) {
	if batch.Credential != "" {
		password, err := w.creds.Password(ctx, batch.Credential)
		if err == nil {
			return batch.Credential, password, nil
		}
		if !errors.Is(err, verify.ErrNotFound) {
			return "", "", err
		}
		if w.cfg.EnvCredential == batch.Credential && w.cfg.EnvPassword != "" {
			return batch.Credential, w.cfg.EnvPassword, nil
		}
		return "", "", fmt.Errorf("assigned credential %s: %w", batch.Credential, verify.ErrMissingCredentials)
	}

	if w.cfg.EnvCredential != "" && w.cfg.EnvPassword != "" {
		return w.cfg.EnvCredential, w.cfg.EnvPassword, nil
	}

	username, err := w.creds.Setting(ctx, defaultCredentialKey)
	if err != nil {
		if errors.Is(err, verify.ErrNotFound) {
			return "", "", verify.ErrMissingCredentials
		}
		return "", "", err
	}
	password, err := w.creds.Password(ctx, username)
	if err != nil {
		if errors.Is(err, verify.ErrNotFound) {
			return "", "", fmt.Errorf("stored credential %s: %w", username, verify.ErrMissingCredentials)
		}
		return "", "", err
	}
	return username, password, nil
}
