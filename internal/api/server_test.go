package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prm-gestao/projudi-verifier/internal/clock/system"
	"github.com/prm-gestao/projudi-verifier/internal/config"
	idgen "github.com/prm-gestao/projudi-verifier/internal/id/uuid"
	"github.com/prm-gestao/projudi-verifier/internal/metrics"
	"github.com/prm-gestao/projudi-verifier/internal/storage/memory"
	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

func newTestServer(t *testing.T, cfg config.Config) (*httptest.Server, *memory.Store) {
	t.Helper()
	metrics.Init()
	if cfg.Worker.Credential == "" {
		cfg.Worker.Credential = "env.user"
		cfg.Worker.Password = "env-secret"
	}
	store := memory.NewStore()
	srv := NewServer(store, store, store, store, store,
		idgen.New(), system.New(), cfg, zap.NewNop(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestSubmitBatch(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t, config.Config{})
	resp := postJSON(t, ts.URL+"/v1/batches", submitBatchRequest{
		Lines: []string{
			"contestacao 5390917.09.2020.8.09.0051_9565_56790_.pdf",
			"not a case line",
			"",
		},
		Text: "peticao 123.45.2021.8.09.0001_111_222_.pdf",
	})

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var out submitBatchResponse
	decodeBody(t, resp, &out)
	require.Len(t, out.BatchID, 8)
	require.Equal(t, 2, out.TotalItems)
	require.Equal(t, 1, out.Skipped)

	batch, err := store.GetBatch(context.Background(), out.BatchID)
	require.NoError(t, err)
	require.Equal(t, verify.BatchStatusQueued, batch.Status)
	require.Equal(t, verify.BrowserHeadless, batch.BrowserMode)
	require.Equal(t, 2, batch.TotalItems)

	items, err := store.PendingItems(context.Background(), out.BatchID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "5390917.09.2020.8.09.0051", items[0].CaseNumber)
	require.Equal(t, "_9565_56790_", items[0].Identifier)
	require.Equal(t, "0000123.45.2021.8.09.0001", items[1].CaseNumber)
}

func TestSubmitBatchRejectsGarbage(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, config.Config{})

	resp := postJSON(t, ts.URL+"/v1/batches", submitBatchRequest{
		Lines: []string{"nothing here", "still nothing"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/batches", submitBatchRequest{
		Lines:       []string{"contestacao 5390917.09.2020.8.09.0051_9565_56790_.pdf"},
		BrowserMode: "kiosk",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitBatchRejectsUnknownCredential(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t, config.Config{})

	resp := postJSON(t, ts.URL+"/v1/batches", submitBatchRequest{
		Lines:      []string{"contestacao 5390917.09.2020.8.09.0051_9565_56790_.pdf"},
		Credential: "ghost",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	require.NoError(t, store.SaveCredential(context.Background(), "ana.silva", "secret"))
	resp = postJSON(t, ts.URL+"/v1/batches", submitBatchRequest{
		Lines:      []string{"contestacao 5390917.09.2020.8.09.0051_9565_56790_.pdf"},
		Credential: "ana.silva",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitBatchRequiresSomeCredential(t *testing.T) {
	t.Parallel()

	// Bare server: no environment pair, nothing stored.
	metrics.Init()
	store := memory.NewStore()
	srv := NewServer(store, store, store, store, store,
		idgen.New(), system.New(), config.Config{}, zap.NewNop(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	line := "contestacao 5390917.09.2020.8.09.0051_9565_56790_.pdf"

	resp := postJSON(t, ts.URL+"/v1/batches", submitBatchRequest{Lines: []string{line}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode,
		"unresolvable submission must never enter the queue")
	resp.Body.Close()

	batches, err := store.ListBatches(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, batches)

	// A stored default credential makes the same submission acceptable.
	ctx := context.Background()
	require.NoError(t, store.SaveCredential(ctx, "jose.santos", "stored-secret"))
	require.NoError(t, store.SetSetting(ctx, "default_credential", "jose.santos"))

	resp = postJSON(t, ts.URL+"/v1/batches", submitBatchRequest{Lines: []string{line}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitBatchRejectsDanglingDefault(t *testing.T) {
	t.Parallel()

	metrics.Init()
	store := memory.NewStore()
	srv := NewServer(store, store, store, store, store,
		idgen.New(), system.New(), config.Config{}, zap.NewNop(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	// The default names a credential whose password was never stored.
	require.NoError(t, store.SetSetting(context.Background(), "default_credential", "ghost"))

	resp := postJSON(t, ts.URL+"/v1/batches", submitBatchRequest{
		Lines: []string{"contestacao 5390917.09.2020.8.09.0051_9565_56790_.pdf"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetBatchAndListing(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t, config.Config{})
	batch := verify.Batch{
		ID:         "abcd1234",
		CreatedAt:  time.Now().UTC(),
		TotalItems: 1,
		Status:     verify.BatchStatusQueued,
	}
	items := []verify.Item{{RawLine: "x", CaseNumber: "0000001.11.2020.8.09.0001"}}
	require.NoError(t, store.SubmitBatch(context.Background(), batch, items))

	resp, err := http.Get(ts.URL + "/v1/batches/abcd1234")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var single struct {
		Batch verify.Batch `json:"batch"`
	}
	decodeBody(t, resp, &single)
	require.Equal(t, "abcd1234", single.Batch.ID)

	resp, err = http.Get(ts.URL + "/v1/batches/missing")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/v1/batches")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Batches []verify.Batch `json:"batches"`
	}
	decodeBody(t, resp, &list)
	require.Len(t, list.Batches, 1)
}

func TestBatchRecordsAndLogs(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t, config.Config{})
	ctx := context.Background()
	batch := verify.Batch{ID: "abcd1234", CreatedAt: time.Now().UTC(), Status: verify.BatchStatusDone}
	require.NoError(t, store.SubmitBatch(ctx, batch, nil))
	require.NoError(t, store.UpsertRecord(ctx, verify.VerificationRecord{
		CaseNumber: "0000001.11.2020.8.09.0001",
		Identifier: "_1_2_",
		Outcome:    verify.OutcomeProtocolized,
		BatchID:    "abcd1234",
		VerifiedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.AppendLog(ctx, verify.LogEntry{
		At: time.Now().UTC(), Level: "info", Message: "hello", BatchID: "abcd1234",
	}))

	resp, err := http.Get(ts.URL + "/v1/batches/abcd1234/records")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recs struct {
		Records []verify.VerificationRecord `json:"records"`
	}
	decodeBody(t, resp, &recs)
	require.Len(t, recs.Records, 1)

	resp, err = http.Get(ts.URL + "/v1/batches/abcd1234/logs")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var logs struct {
		Logs []verify.LogEntry `json:"logs"`
	}
	decodeBody(t, resp, &logs)
	require.Len(t, logs.Logs, 1)

	resp, err = http.Get(ts.URL + "/v1/batches/missing/records")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestFinalizeBatch(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t, config.Config{})
	ctx := context.Background()
	batch := verify.Batch{ID: "abcd1234", CreatedAt: time.Now().UTC(), Status: verify.BatchStatusRunning}
	require.NoError(t, store.SubmitBatch(ctx, batch, nil))

	resp := postJSON(t, ts.URL+"/v1/batches/abcd1234/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	got, err := store.GetBatch(ctx, "abcd1234")
	require.NoError(t, err)
	require.Equal(t, verify.BatchStatusDone, got.Status)
}

func TestResetStore(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t, config.Config{})
	ctx := context.Background()
	batch := verify.Batch{ID: "abcd1234", CreatedAt: time.Now().UTC(), Status: verify.BatchStatusRunning}
	require.NoError(t, store.SubmitBatch(ctx, batch, nil))

	resp := postJSON(t, ts.URL+"/v1/admin/reset", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/admin/finalize-all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var finalized struct {
		Finalized int `json:"finalized"`
	}
	decodeBody(t, resp, &finalized)
	require.Equal(t, 1, finalized.Finalized)

	resp = postJSON(t, ts.URL+"/v1/admin/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reset struct {
		BackupSuffix string `json:"backup_suffix"`
	}
	decodeBody(t, resp, &reset)
	require.NotEmpty(t, reset.BackupSuffix)

	_, err := store.GetBatch(ctx, "abcd1234")
	require.ErrorIs(t, err, verify.ErrNotFound)
}

func TestCredentialLifecycle(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t, config.Config{})

	resp := postJSON(t, ts.URL+"/v1/admin/credentials", credentialRequest{
		Username: "ana.silva", Password: "secret", Default: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/admin/credentials", credentialRequest{Username: "", Password: "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/v1/admin/credentials")
	require.NoError(t, err)
	var users struct {
		Usernames []string `json:"usernames"`
	}
	decodeBody(t, resp, &users)
	require.Equal(t, []string{"ana.silva"}, users.Usernames)

	value, err := store.Setting(context.Background(), "default_credential")
	require.NoError(t, err)
	require.Equal(t, "ana.silva", value)

	resp, err = http.Get(ts.URL + "/v1/admin/settings/default_credential")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var setting struct {
		Value string `json:"value"`
	}
	decodeBody(t, resp, &setting)
	require.Equal(t, "ana.silva", setting.Value)
}

func TestAPIKeyGuardsV1Only(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "sesame"
	ts, _ := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/v1/batches")
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/batches", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "sesame")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Probes stay open so orchestration can reach them without the key.
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	metrics.Init()
	store := memory.NewStore()
	srv := NewServer(store, store, store, store, store,
		idgen.New(), system.New(), config.Config{}, zap.NewNop(),
		func(context.Context) error { return fmt.Errorf("pool down") })
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}
