package portal

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// bodyTextScript concatenates the visible text of the top document and every
// same-origin frame, so response messages are found wherever the portal put
// them.
const bodyTextScript = `(function() {
	var text = (document.body && document.body.innerText) || '';
	for (var i = 0; i < window.frames.length; i++) {
		try {
			var b = window.frames[i].document.body;
			if (b) { text += '\n' + (b.innerText || ''); }
		} catch (e) {}
	}
	return text;
})()`

// confirmDialogScript clicks the OK control of the pending access dialog.
const confirmDialogScript = `(function() {
	function dialogOf(d) { return d.querySelector('#dialog'); }
	function confirm(d) {
		var dialog = dialogOf(d);
		if (!dialog) { return false; }
		var controls = dialog.querySelectorAll('button, input[type=button], input[type=submit], a');
		for (var i = 0; i < controls.length; i++) {
			var label = (controls[i].value || controls[i].textContent || '').trim().toUpperCase();
			if (label.indexOf('OK') >= 0) {
				controls[i].click();
				return true;
			}
		}
		return false;
	}
	if (confirm(document)) { return true; }
	for (var i = 0; i < window.frames.length; i++) {
		try {
			if (confirm(window.frames[i].document)) { return true; }
		} catch (e) {}
	}
	return false;
})()`

// grantAccess acknowledges the portal's pending access interstitial for the
// case currently under search. The daily access limit surfaces here and is
// returned as verify.ErrAccessLimit, which forces a full session restart.
func (s *Session) grantAccess(ctx context.Context) error {
	err := chromedp.Run(ctx,
		chromedp.Navigate(s.url(grantAccessPath)),
		chromedp.Sleep(s.cfg.PollInterval),
	)
	if err != nil {
		return fmt.Errorf("open access grant page: %w", err)
	}

	var body string
	if err := chromedp.Run(ctx, chromedp.Evaluate(bodyTextScript, &body)); err != nil {
		return fmt.Errorf("read access grant page: %w", err)
	}
	granted, err := classifyAccessText(body)
	if err != nil {
		return err
	}
	if granted {
		s.logger.Info("case access already granted")
		return nil
	}

	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(confirmDialogScript, &clicked)); err != nil {
		return fmt.Errorf("confirm access dialog: %w", err)
	}
	if !clicked {
		return fmt.Errorf("access dialog confirmation control not found")
	}
	if err := chromedp.Run(ctx, chromedp.Sleep(s.cfg.PollInterval)); err != nil {
		return fmt.Errorf("wait after access confirmation: %w", err)
	}
	return nil
}

// classifyAccessText interprets the access grant response. The "wait 24h"
// and "already has access" variants both mean the case is reachable; the
// daily limit message is terminal for the whole session.
func classifyAccessText(text string) (bool, error) {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "só é permitido") || strings.Contains(lower, "atingiu o limite") {
		return false, verify.ErrAccessLimit
	}
	if strings.Contains(lower, "tem que esperar 24h") || strings.Contains(lower, "já tem acesso") {
		return true, nil
	}
	return false, nil
}
