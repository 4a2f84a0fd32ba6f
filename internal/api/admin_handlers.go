package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

func (s *Server) recentRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.records.RecentRecords(r.Context(), limitParam(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load records failed")
		return
	}
	if recs == nil {
		recs = []verify.VerificationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) recentLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.logs.RecentLogs(r.Context(), limitParam(r, 200))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load logs failed")
		return
	}
	if entries == nil {
		entries = []verify.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

func (s *Server) finalizeAll(w http.ResponseWriter, r *http.Request) {
	finalized, err := s.maint.ForceFinalizeAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "finalize failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"finalized": finalized})
}

// resetStore backs the live tables up and truncates them. Refused with 409
// while any batch is still active.
func (s *Server) resetStore(w http.ResponseWriter, r *http.Request) {
	suffix, err := s.maint.BackupAndReset(r.Context())
	if err != nil {
		if errors.Is(err, verify.ErrStoreBusy) {
			writeError(w, http.StatusConflict, "batches still active, finalize them first")
			return
		}
		s.logger.Error("store reset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"backup_suffix": suffix})
}

type credentialRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Default marks the credential as the stored fallback for batches
	// submitted without one.
	Default bool `json:"default"`
}

func (s *Server) saveCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	if err := s.creds.SaveCredential(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, http.StatusInternalServerError, "save credential failed")
		return
	}
	if req.Default {
		if err := s.creds.SetSetting(r.Context(), "default_credential", req.Username); err != nil {
			writeError(w, http.StatusInternalServerError, "mark default failed")
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]string{"username": req.Username})
}

func (s *Server) listCredentials(w http.ResponseWriter, r *http.Request) {
	usernames, err := s.creds.Usernames(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list credentials failed")
		return
	}
	if usernames == nil {
		usernames = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"usernames": usernames})
}

type settingRequest struct {
	Value string `json:"value"`
}

func (s *Server) putSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.creds.SetSetting(r.Context(), key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "save setting failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

func (s *Server) getSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := s.creds.Setting(r.Context(), key)
	if err != nil {
		if errors.Is(err, verify.ErrNotFound) {
			writeError(w, http.StatusNotFound, "setting not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load setting failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}
