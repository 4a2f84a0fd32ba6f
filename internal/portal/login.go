package portal

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// mainFrameName is the frame the portal loads its workspace into after a
// successful login. Its absence after submitting the form means the
// credentials were rejected.
const mainFrameName = "userMainFrame"

// Login authenticates the session. A rejected credential is reported as
// verify.ErrLoginFailed so the owning batch can be failed instead of retried.
func (s *Session) Login(ctx context.Context, username, password string) error {
	taskCtx, cancel := context.WithTimeout(s.browserCtx, s.cfg.LoginTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	err := chromedp.Run(taskCtx,
		network.Enable(),
		chromedp.Navigate(s.url(loginPath)),
		chromedp.WaitVisible("#login", chromedp.ByQuery),
		chromedp.SetValue("#login", username, chromedp.ByQuery),
		chromedp.SetValue("#senha", password, chromedp.ByQuery),
		chromedp.Click(`[name='entrar']`, chromedp.ByQuery),
	)
	if err != nil {
		s.snapshot("login_form_unreachable")
		return fmt.Errorf("submit login form: %w", err)
	}

	ok, err := s.waitForFrame(taskCtx, mainFrameName)
	if err != nil {
		s.snapshot("login_wait_failed")
		return fmt.Errorf("wait for portal workspace: %w", err)
	}
	if !ok {
		s.snapshot("login_rejected")
		return fmt.Errorf("login as %s: %w", username, verify.ErrLoginFailed)
	}

	s.logger.Info("portal login succeeded", zap.String("username", username))
	return nil
}

// waitForFrame polls the frame tree until a frame with the given name shows
// up or the context expires. The expiry is reported as ok=false, not as an
// error, so callers can distinguish "portal broken" from "frame never came".
func (s *Session) waitForFrame(ctx context.Context, name string) (bool, error) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		names, err := s.frameNames(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, err
		}
		for _, n := range names {
			if n == name {
				return true, nil
			}
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}

// frameNames returns the names of all frames currently in the page.
func (s *Session) frameNames(ctx context.Context) ([]string, error) {
	var names []string
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		var walk func(*page.FrameTree)
		walk = func(t *page.FrameTree) {
			if t == nil {
				return
			}
			if t.Frame != nil && t.Frame.Name != "" {
				names = append(names, t.Frame.Name)
			}
			for _, child := range t.ChildFrames {
				walk(child)
			}
		}
		walk(tree)
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("get frame tree: %w", err)
	}
	return names, nil
}
