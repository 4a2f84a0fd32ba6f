package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/prm-gestao/projudi-verifier/internal/metrics"
	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

type submitBatchRequest struct {
	// Lines carries one filename-like entry per element. Text is the
	// textarea alternative, split on newlines; both may be combined.
	Lines       []string `json:"lines"`
	Text        string   `json:"text"`
	Credential  string   `json:"credential"`
	BrowserMode string   `json:"browser_mode"`
}

type submitBatchResponse struct {
	BatchID    string `json:"batch_id"`
	TotalItems int    `json:"total_items"`
	Skipped    int    `json:"skipped"`
}

func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	lines := append([]string{}, req.Lines...)
	if req.Text != "" {
		lines = append(lines, strings.Split(req.Text, "\n")...)
	}

	mode, err := parseBrowserMode(req.BrowserMode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Credential != "" {
		if err := s.checkCredential(r, req.Credential); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if err := s.checkDefaultCredential(r.Context()); err != nil {
		if errors.Is(err, verify.ErrMissingCredentials) {
			writeError(w, http.StatusBadRequest, "no usable credential configured")
			return
		}
		writeError(w, http.StatusInternalServerError, "credential lookup failed")
		return
	}

	parsed, err := verify.ParseLines(lines)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no line carries a recognizable case number")
		return
	}

	batchID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate batch id failed")
		return
	}

	now := s.clock.Now()
	batch := verify.Batch{
		ID:          batchID,
		CreatedAt:   now,
		Credential:  req.Credential,
		BrowserMode: mode,
		Host:        hostname(),
		TotalItems:  len(parsed),
		Status:      verify.BatchStatusQueued,
	}
	items := make([]verify.Item, 0, len(parsed))
	for _, p := range parsed {
		items = append(items, verify.Item{
			RawLine:    p.Raw,
			CaseNumber: p.CaseNumber,
			Identifier: p.Identifier,
		})
	}

	if err := s.jobs.SubmitBatch(r.Context(), batch, items); err != nil {
		s.logger.Error("batch submission failed",
			zap.String("batch_id", batchID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "batch submission failed")
		return
	}
	metrics.ObserveBatch(string(verify.BatchStatusQueued))

	writeJSON(w, http.StatusAccepted, submitBatchResponse{
		BatchID:    batchID,
		TotalItems: len(parsed),
		Skipped:    countNonEmpty(lines) - len(parsed),
	})
}

// checkCredential rejects submissions naming a credential the worker will
// never be able to resolve.
func (s *Server) checkCredential(r *http.Request, username string) error {
	if username == s.cfg.Worker.Credential && s.cfg.Worker.Password != "" {
		return nil
	}
	_, err := s.creds.Password(r.Context(), username)
	if errors.Is(err, verify.ErrNotFound) {
		return fmt.Errorf("unknown credential %q", username)
	}
	return err
}

// checkDefaultCredential verifies that a batch submitted without a credential
// will still resolve one: the environment pair first, then the stored
// default. A batch that cannot resolve must never enter the queue.
func (s *Server) checkDefaultCredential(ctx context.Context) error {
	if s.cfg.Worker.Credential != "" && s.cfg.Worker.Password != "" {
		return nil
	}
	username, err := s.creds.Setting(ctx, "default_credential")
	if err != nil {
		if errors.Is(err, verify.ErrNotFound) {
			return verify.ErrMissingCredentials
		}
		return err
	}
	if _, err := s.creds.Password(ctx, username); err != nil {
		if errors.Is(err, verify.ErrNotFound) {
			return verify.ErrMissingCredentials
		}
		return err
	}
	return nil
}

func parseBrowserMode(raw string) (verify.BrowserMode, error) {
	switch verify.BrowserMode(raw) {
	case "":
		return verify.BrowserHeadless, nil
	case verify.BrowserHeadless:
		return verify.BrowserHeadless, nil
	case verify.BrowserVisible:
		return verify.BrowserVisible, nil
	}
	return "", fmt.Errorf("unknown browser mode %q", raw)
}

func countNonEmpty(lines []string) int {
	n := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.jobs.ListBatches(r.Context(), limitParam(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list batches failed")
		return
	}
	if batches == nil {
		batches = []verify.Batch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	batch, err := s.jobs.GetBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, verify.ErrNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load batch failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (s *Server) batchRecords(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if _, err := s.jobs.GetBatch(r.Context(), batchID); err != nil {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	recs, err := s.records.RecordsByBatch(r.Context(), batchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load records failed")
		return
	}
	if recs == nil {
		recs = []verify.VerificationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) batchLogs(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if _, err := s.jobs.GetBatch(r.Context(), batchID); err != nil {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	entries, err := s.logs.LogsByBatch(r.Context(), batchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load logs failed")
		return
	}
	if entries == nil {
		entries = []verify.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

func (s *Server) finalizeBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if err := s.maint.ForceFinalizeBatch(r.Context(), batchID); err != nil {
		if errors.Is(err, verify.ErrNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "finalize failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"batch_id": batchID,
		"status":   string(verify.BatchStatusDone),
	})
}
