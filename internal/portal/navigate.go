package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// locateAttempts bounds the marker polls after a search submit. Result links
// clicked by the fallback chain trigger a reload, so a couple of polls are
// expected before the case view settles.
const locateAttempts = 8

// searchScript submits the case search form. The portal renders the form
// either at top level or inside a workspace frame, so both are probed.
const searchScript = `(function() {
	function formDoc() {
		if (document.querySelector('#ProcessoNumero')) { return document; }
		for (var i = 0; i < window.frames.length; i++) {
			try {
				if (window.frames[i].document.querySelector('#ProcessoNumero')) {
					return window.frames[i].document;
				}
			} catch (e) {}
		}
		return null;
	}
	var d = formDoc();
	if (!d) { return false; }
	var clear = d.querySelector("[name='imaLimparProcessoStatus']");
	if (clear) { clear.click(); }
	d.querySelector('#ProcessoNumero').value = %q;
	var submit = d.querySelector("[name='imgSubmeter']");
	if (!submit) { return false; }
	submit.click();
	return true;
})()`

// locateScript reports how the case view was reached: the result marker is
// already present, a link carrying the case number was clicked, or the
// "Visualizar" action link was clicked. Top document first, then each frame.
const locateScript = `(function() {
	var caseNumber = %q;
	function scan(d) {
		if (d.querySelector('#span_proc_numero')) { return 'marker'; }
		var anchors = d.querySelectorAll('a');
		for (var i = 0; i < anchors.length; i++) {
			if ((anchors[i].textContent || '').indexOf(caseNumber) >= 0) {
				anchors[i].click();
				return 'link';
			}
		}
		for (var j = 0; j < anchors.length; j++) {
			var a = anchors[j];
			if ((a.title || '').indexOf('Visualizar') >= 0 || (a.textContent || '').indexOf('Visualizar') >= 0) {
				a.click();
				return 'visualizar';
			}
		}
		return '';
	}
	var hit = scan(document);
	if (hit) { return hit; }
	for (var k = 0; k < window.frames.length; k++) {
		try {
			hit = scan(window.frames[k].document);
			if (hit) { return hit; }
		} catch (e) {}
	}
	return '';
})()`

// Verify runs the full lookup for one case: search, open the case view,
// walk the movement table for the target document, and extract the protocol
// date. A missing document is a successful verification with Found=false;
// errors are reserved for the portal itself misbehaving.
func (s *Session) Verify(ctx context.Context, caseNumber, identifier string) (verify.VerifyResult, error) {
	var res verify.VerifyResult

	taskCtx, cancel := context.WithTimeout(s.browserCtx, s.cfg.VerifyTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var opened bool
	err := retry.Do(func() error {
		if err := s.searchCase(taskCtx, caseNumber); err != nil {
			return retry.Unrecoverable(err)
		}
		var err error
		opened, err = s.locateCase(taskCtx, caseNumber)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		if opened {
			return nil
		}
		// The usual cause is a pending access interstitial. Acknowledge it,
		// then let the retry redo the search.
		if err := s.grantAccess(taskCtx); err != nil {
			return retry.Unrecoverable(err)
		}
		return fmt.Errorf("case %s not visible yet", caseNumber)
	}, retry.Attempts(2), retry.Context(taskCtx), retry.LastErrorOnly(true))
	if err != nil {
		if errors.Is(err, verify.ErrAccessLimit) {
			s.snapshot("access_limit")
			return res, err
		}
		s.snapshot("case_unreachable")
		return res, fmt.Errorf("open case %s: %w", caseNumber, err)
	}

	match, rowText, all, found, err := s.findDocument(taskCtx, identifier)
	if err != nil {
		s.snapshot("movement_walk_failed")
		return res, fmt.Errorf("walk movements for case %s: %w", caseNumber, err)
	}
	if !found {
		res.Message = fmt.Sprintf("no attachment matched %s among %d", identifier, len(all))
		if similar := verify.SimilarNames(identifier, all, 3); len(similar) > 0 {
			res.Message += "; similar: " + strings.Join(similar, ", ")
		}
		return res, nil
	}

	res.Found = true
	res.MatchedName = match.Title
	res.Link = match.Href
	res.DocType = verify.DetectDocType(match.Title)
	if date, ok := verify.ExtractProtocolDate(match.Title); ok {
		res.ProtocolDate = date
	} else if date, ok := verify.ExtractProtocolDate(rowText); ok {
		res.ProtocolDate = date
	}
	s.logger.Debug("document matched",
		zap.String("case_number", caseNumber),
		zap.String("matched_name", res.MatchedName),
		zap.String("protocol_date", res.ProtocolDate))
	return res, nil
}

func (s *Session) searchCase(ctx context.Context, caseNumber string) error {
	if s.pace != nil {
		if err := s.pace.Wait(ctx); err != nil {
			return fmt.Errorf("pace case search: %w", err)
		}
	}
	var submitted bool
	err := chromedp.Run(ctx,
		chromedp.Navigate(s.url(searchPath)),
		chromedp.Sleep(s.cfg.PollInterval),
		chromedp.Evaluate(fmt.Sprintf(searchScript, caseNumber), &submitted),
	)
	if err != nil {
		return fmt.Errorf("submit case search: %w", err)
	}
	if !submitted {
		return fmt.Errorf("case search form not present")
	}
	return nil
}

// locateCase polls for the case view marker, driving the fallback chain on
// every poll. False means the case never became reachable.
func (s *Session) locateCase(ctx context.Context, caseNumber string) (bool, error) {
	script := fmt.Sprintf(locateScript, caseNumber)
	for i := 0; i < locateAttempts; i++ {
		if err := chromedp.Run(ctx, chromedp.Sleep(s.cfg.PollInterval)); err != nil {
			return false, fmt.Errorf("wait for case view: %w", err)
		}
		var hit string
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &hit)); err != nil {
			return false, fmt.Errorf("probe case view: %w", err)
		}
		if hit == "marker" {
			return true, nil
		}
		// 'link' and 'visualizar' mean a navigation was triggered; keep
		// polling until the marker shows up.
	}
	return false, nil
}
