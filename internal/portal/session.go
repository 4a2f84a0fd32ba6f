package portal

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// Factory opens portal sessions. The search pacer is shared across every
// session the factory opens, so concurrent batches still respect the
// portal-wide search interval.
type Factory struct {
	cfg       Config
	snapshots verify.SnapshotStore
	logger    *zap.Logger
	pace      *rate.Limiter
}

// NewFactory creates a session factory. snapshots may be nil, which disables
// diagnostic captures.
func NewFactory(cfg Config, snapshots verify.SnapshotStore, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Factory{
		cfg:       cfg,
		snapshots: snapshots,
		logger:    logger,
		pace:      rate.NewLimiter(rate.Every(cfg.SearchInterval), 1),
	}
}

// NewSession launches a Chrome process and warms it up. Visible mode turns
// headless off so an operator can watch the batch run.
func (f *Factory) NewSession(ctx context.Context, batchID string, mode verify.BrowserMode) (verify.Session, error) {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", mode != verify.BrowserVisible),
		chromedp.Flag("disable-gpu", true),
	)
	if f.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Session{
		cfg:           f.cfg,
		snapshots:     f.snapshots,
		logger:        f.logger.With(zap.String("batch_id", batchID)),
		pace:          f.pace,
		batchID:       batchID,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Session is one authenticated browsing session against the portal.
type Session struct {
	cfg           Config
	snapshots     verify.SnapshotStore
	logger        *zap.Logger
	pace          *rate.Limiter
	batchID       string
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// Close tears down the browser and its allocator.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.browserCancel()
	s.allocCancel()
}

// url joins a portal path onto the configured base.
func (s *Session) url(path string) string {
	return s.cfg.BaseURL + path
}

// forwardCancel propagates an outer context's cancellation into a chromedp
// task context, which hangs off the browser context rather than the caller's.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
