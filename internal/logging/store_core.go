package logging

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// storeWriteTimeout bounds the store round trip per log line.
const storeWriteTimeout = 5 * time.Second

// storeCore tees log entries into the batch log store so the dashboard can
// render a live terminal view. Every stored line also bumps the batch
// heartbeat: a batch that is still talking is not stalled.
type storeCore struct {
	zapcore.LevelEnabler
	logs     verify.LogStore
	jobs     verify.JobStore
	batchID  string
	workerID string
}

// NewStoreCore builds a zapcore.Core that persists entries at or above the
// enabler's level for one batch.
func NewStoreCore(logs verify.LogStore, jobs verify.JobStore, batchID, workerID string, enab zapcore.LevelEnabler) zapcore.Core {
	return &storeCore{
		LevelEnabler: enab,
		logs:         logs,
		jobs:         jobs,
		batchID:      batchID,
		workerID:     workerID,
	}
}

// With returns the core unchanged; structured fields are not persisted, only
// the rendered message line.
func (c *storeCore) With(_ []zapcore.Field) zapcore.Core {
	return c
}

func (c *storeCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *storeCore) Write(ent zapcore.Entry, _ []zapcore.Field) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	entry := verify.LogEntry{
		At:       ent.Time.UTC(),
		Level:    ent.Level.String(),
		Message:  ent.Message,
		BatchID:  c.batchID,
		WorkerID: c.workerID,
	}
	if err := c.logs.AppendLog(ctx, entry); err != nil {
		return fmt.Errorf("append batch log: %w", err)
	}
	if err := c.jobs.Heartbeat(ctx, c.batchID); err != nil {
		return fmt.Errorf("heartbeat on log emit: %w", err)
	}
	return nil
}

func (c *storeCore) Sync() error {
	return nil
}

// WithBatchSink attaches a store core to an existing logger, so every line
// the worker logs for a batch lands both on stderr and in the store.
func WithBatchSink(base *zap.Logger, core zapcore.Core) *zap.Logger {
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, core)
	}))
}
