package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// snapshotTimeout bounds the diagnostic capture so it cannot stall a
// teardown path.
const snapshotTimeout = 15 * time.Second

// snapshot captures a screenshot plus a page-state note (URL and frame
// names) under "<batch>_<timestamp>_<tag>". Capture failures are logged and
// swallowed; a missing snapshot must never mask the original failure.
func (s *Session) snapshot(tag string) {
	if s.snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.browserCtx, snapshotTimeout)
	defer cancel()

	var shot []byte
	var location string
	if err := chromedp.Run(ctx, chromedp.Location(&location), chromedp.CaptureScreenshot(&shot)); err != nil {
		s.logger.Warn("snapshot capture failed", zap.String("tag", tag), zap.Error(err))
		return
	}
	frames, err := s.frameNames(ctx)
	if err != nil {
		s.logger.Warn("snapshot frame listing failed", zap.String("tag", tag), zap.Error(err))
	}

	base := fmt.Sprintf("%s_%s_%s", s.batchID, time.Now().UTC().Format("20060102T150405Z"), tag)
	if uri, putErr := s.snapshots.PutObject(ctx, base+".png", "image/png", shot); putErr != nil {
		s.logger.Warn("snapshot upload failed", zap.String("tag", tag), zap.Error(putErr))
	} else {
		s.logger.Info("snapshot captured", zap.String("tag", tag), zap.String("uri", uri))
	}

	note := fmt.Sprintf("url=%s\nframes=%s\n", location, strings.Join(frames, ","))
	if _, putErr := s.snapshots.PutObject(ctx, base+".txt", "text/plain", []byte(note)); putErr != nil {
		s.logger.Warn("page state upload failed", zap.String("tag", tag), zap.Error(putErr))
	}
}
