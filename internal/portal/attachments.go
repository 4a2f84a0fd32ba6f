package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// movementDocSnippet resolves the document holding the movement table,
// probing the top document first and then every same-origin frame.
const movementDocSnippet = `function movementDoc() {
		if (document.querySelector('tr.filtro-entrada')) { return document; }
		for (var i = 0; i < window.frames.length; i++) {
			try {
				if (window.frames[i].document.querySelector('tr.filtro-entrada')) {
					return window.frames[i].document;
				}
			} catch (e) {}
		}
		return null;
	}`

const countRowsScript = `(function() {
	` + movementDocSnippet + `
	var d = movementDoc();
	if (!d) { return 0; }
	return d.querySelectorAll('tr.filtro-entrada').length;
})()`

const expandRowScript = `(function() {
	` + movementDocSnippet + `
	var d = movementDoc();
	if (!d) { return false; }
	var row = d.querySelectorAll('tr.filtro-entrada')[%d];
	if (!row) { return false; }
	var expander = row.querySelector("img[id^='MostrarArquivos_']");
	if (!expander) { return false; }
	expander.click();
	return true;
})()`

// readRowScript reads the attachment anchors revealed in the sibling row an
// expander inserts below its movement row.
const readRowScript = `(function() {
	` + movementDocSnippet + `
	var empty = JSON.stringify({row: '', anchors: []});
	var d = movementDoc();
	if (!d) { return empty; }
	var row = d.querySelectorAll('tr.filtro-entrada')[%d];
	if (!row) { return empty; }
	var anchors = [];
	var sibling = row.nextElementSibling;
	if (sibling) {
		var links = sibling.querySelectorAll('a');
		for (var i = 0; i < links.length; i++) {
			anchors.push({title: (links[i].textContent || '').trim(), href: links[i].href || ''});
		}
	}
	return JSON.stringify({row: (row.textContent || '').trim(), anchors: anchors});
})()`

// findDocument expands movement rows one at a time, matching each row's
// anchors before touching the next, so the walk stops at the first hit. An
// empty target accepts the first attachment of any movement. The full list
// of anchors seen so far is returned for not-found diagnostics.
func (s *Session) findDocument(ctx context.Context, target string) (verify.Attachment, string, []verify.Attachment, bool, error) {
	var count int
	if err := chromedp.Run(ctx, chromedp.Evaluate(countRowsScript, &count)); err != nil {
		return verify.Attachment{}, "", nil, false, fmt.Errorf("count movement rows: %w", err)
	}

	var all []verify.Attachment
	for i := 0; i < count; i++ {
		anchors, rowText, err := s.expandRow(ctx, i)
		if err != nil {
			return verify.Attachment{}, "", all, false, err
		}
		all = append(all, anchors...)
		if target == "" {
			if len(anchors) > 0 {
				return anchors[0], rowText, all, true, nil
			}
			continue
		}
		if match, ok := verify.FindAttachment(target, anchors); ok {
			return match, rowText, all, true, nil
		}
	}
	return verify.Attachment{}, "", all, false, nil
}

func (s *Session) expandRow(ctx context.Context, index int) ([]verify.Attachment, string, error) {
	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(expandRowScript, index), &clicked)); err != nil {
		return nil, "", fmt.Errorf("expand movement row %d: %w", index, err)
	}
	if clicked {
		if err := chromedp.Run(ctx, chromedp.Sleep(s.cfg.PollInterval)); err != nil {
			return nil, "", fmt.Errorf("wait for row %d expansion: %w", index, err)
		}
	}

	var raw string
	if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(readRowScript, index), &raw)); err != nil {
		return nil, "", fmt.Errorf("read movement row %d: %w", index, err)
	}
	var payload struct {
		Row     string `json:"row"`
		Anchors []struct {
			Title string `json:"title"`
			Href  string `json:"href"`
		} `json:"anchors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, "", fmt.Errorf("decode movement row %d: %w", index, err)
	}

	atts := make([]verify.Attachment, 0, len(payload.Anchors))
	for _, a := range payload.Anchors {
		atts = append(atts, verify.Attachment{Title: strings.TrimSpace(a.Title), Href: a.Href})
	}
	return atts, payload.Row, nil
}
