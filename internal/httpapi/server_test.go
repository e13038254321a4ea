package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shahincodev/Sofware-AI-English/internal/config"
	"github.com/shahincodev/Sofware-AI-English/internal/core"
	"github.com/shahincodev/Sofware-AI-English/internal/store"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T, opts ServerOptions, coreOpts ...core.Option) (*httptest.Server, *App) {
	t.Helper()
	t.Setenv(config.HomeEnv, "")
	cfg, err := config.Load(config.LoadOptions{Home: t.TempDir()})
	require.NoError(t, err)
	cfg.Agents.Stub = true
	cfg.Concurrency = 2

	hub := NewSSEHub()
	c, err := core.Open(context.Background(), cfg, quiet, append(coreOpts, core.WithEvents(hub.Publish))...)
	require.NoError(t, err)
	opts.Logger = quiet
	app := NewApp(c, hub, opts)
	ts := httptest.NewServer(app.Server.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = c.Close(context.Background())
	})
	return ts, app
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, ServerOptions{})
	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, true, body["ok"])
	assert.EqualValues(t, 2, body["concurrency"])
}

func TestSubmitAndWait(t *testing.T) {
	ts, _ := newTestServer(t, ServerOptions{})

	resp := postJSON(t, ts.URL+"/tasks", `{"text":"open example.com","mode":"browser"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var sub models.SubmitTaskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	require.NotEmpty(t, sub.TaskID)
	assert.Equal(t, models.ModeBrowser, sub.Mode)
	assert.Equal(t, "/tasks/"+sub.TaskID, resp.Header.Get("Location"))

	var st models.TaskStatus
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/tasks/"+sub.TaskID+"?wait=1", &st))
	assert.False(t, st.Pending)
	require.NotNil(t, st.Result)
	assert.Equal(t, models.StatusSuccess, st.Result.Outcome.Status)
	require.NotNil(t, st.Result.Outcome.Result)
	assert.Equal(t, "stub: ok", *st.Result.Outcome.Result)

	// Once finished the task is served from memory.
	assert.Eventually(t, func() bool {
		var again models.TaskStatus
		return getJSON(t, ts.URL+"/tasks/"+sub.TaskID, &again) == http.StatusOK && !again.Pending
	}, 2*time.Second, 20*time.Millisecond)

	var rec models.RecallResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/memory/"+sub.TaskID, &rec))
	assert.Equal(t, models.TierShortTerm, rec.Tier)
	assert.Equal(t, sub.TaskID, rec.Outcome.TaskID)
}

type failingStore struct{ store.Store }

func (failingStore) Append(context.Context, models.MemoryRecord) (bool, error) {
	return false, errors.New("disk full")
}

func (failingStore) Get(context.Context, string) (*models.MemoryRecord, error) { return nil, nil }

func (failingStore) Ping(context.Context) error { return nil }

func (failingStore) Close() error { return nil }

func TestTaskStatus_keepsMemoryErrorAfterCompletion(t *testing.T) {
	ts, _ := newTestServer(t, ServerOptions{}, core.WithStore(failingStore{}))

	resp := postJSON(t, ts.URL+"/tasks", `{"text":"open example.com"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var sub models.SubmitTaskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))

	var st models.TaskStatus
	require.Eventually(t, func() bool {
		st = models.TaskStatus{}
		return getJSON(t, ts.URL+"/tasks/"+sub.TaskID, &st) == http.StatusOK && !st.Pending
	}, 2*time.Second, 20*time.Millisecond)

	// Polled well after completion, the failed long-term write is still reported.
	time.Sleep(50 * time.Millisecond)
	st = models.TaskStatus{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/tasks/"+sub.TaskID, &st))
	require.NotNil(t, st.Result)
	assert.Equal(t, models.StatusSuccess, st.Result.Outcome.Status)
	assert.Contains(t, st.Result.MemoryError, "disk full")
}

func TestSubmit_defaultModeAndValidation(t *testing.T) {
	ts, _ := newTestServer(t, ServerOptions{})

	resp := postJSON(t, ts.URL+"/tasks", `{"text":"no mode given"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var sub models.SubmitTaskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	assert.Equal(t, models.ModeBrowser, sub.Mode)

	for _, body := range []string{`{"mode":"browser"}`, `{"text":"x","mode":"voice"}`, `not json`} {
		resp := postJSON(t, ts.URL+"/tasks", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestBatch_ordered(t *testing.T) {
	ts, _ := newTestServer(t, ServerOptions{})

	resp := postJSON(t, ts.URL+"/tasks/batch",
		`{"tasks":[{"text":"a","mode":"browser"},{"text":"b","mode":"code"},{"text":"c","mode":"browser"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var br models.BatchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&br))
	require.Len(t, br.Results, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, br.Results[i].Outcome.Text)
		assert.Empty(t, br.Results[i].MemoryError)
	}

	resp = postJSON(t, ts.URL+"/tasks/batch", `{"tasks":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMemoryEndpoints(t *testing.T) {
	ts, app := newTestServer(t, ServerOptions{})

	resp := postJSON(t, ts.URL+"/tasks/batch", `{"tasks":[{"text":"a","mode":"browser"},{"text":"b","mode":"code"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var br models.BatchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&br))
	id := br.Results[0].Outcome.TaskID

	var recs []models.MemoryRecord
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/memory?mode=browser", &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].TaskID)

	recs = nil
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/memory?mode=code&limit=5", &recs))
	require.Len(t, recs, 1)
	assert.NotEqual(t, id, recs[0].TaskID)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/memory?since=yesterday", nil))

	resp = postJSON(t, ts.URL+"/memory/"+id+"/promote", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pr models.PromoteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pr))
	assert.True(t, pr.Promoted)

	resp = postJSON(t, ts.URL+"/memory/nope/promote", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/memory/nope", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/tasks/nope", nil))

	resp = postJSON(t, ts.URL+"/memory/sweep", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sw models.SweepResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sw))
	assert.Equal(t, 0, sw.Removed)
	assert.Equal(t, 2, app.Core.Memory.ShortTerm().Len())
}

func TestAPIKey(t *testing.T) {
	ts, _ := newTestServer(t, ServerOptions{APIKey: "secret"})

	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", nil))
	assert.Equal(t, http.StatusUnauthorized, getJSON(t, ts.URL+"/memory", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/memory?api_key=secret", nil))

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/tasks", strings.NewReader(`{"text":"x"}`))
	req.Header.Set("X-API-Key", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestBodyLimit(t *testing.T) {
	ts, _ := newTestServer(t, ServerOptions{MaxBodyBytes: 64})
	resp := postJSON(t, ts.URL+"/tasks", `{"text":"`+strings.Repeat("x", 200)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestSubmit_afterShutdown(t *testing.T) {
	ts, app := newTestServer(t, ServerOptions{})
	require.NoError(t, app.Core.Engine.Shutdown(context.Background()))
	resp := postJSON(t, ts.URL+"/tasks", `{"text":"late"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPlainMetrics(t *testing.T) {
	ts, _ := newTestServer(t, ServerOptions{})
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), "software_ai_tasks_inflight 0")
}

func TestStream_receivesTaskEvents(t *testing.T) {
	ts, app := newTestServer(t, ServerOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Eventually(t, func() bool { return app.Hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	postJSON(t, ts.URL+"/tasks", `{"text":"stream me"}`)

	sc := bufio.NewScanner(resp.Body)
	var completed bool
	for sc.Scan() {
		if strings.Contains(sc.Text(), models.EventTaskCompleted) {
			completed = true
			break
		}
	}
	assert.True(t, completed)
}

func TestMemoryErrors(t *testing.T) {
	assert.Empty(t, memoryErrors(nil))
	err := &models.MemoryWriteError{TaskID: "t1", Tier: models.TierLongTerm, Err: io.ErrShortWrite}
	got := memoryErrors(err)
	assert.Contains(t, got["t1"], "short write")
	assert.Len(t, got, 1)

	joined := errors.Join(
		err,
		&models.MemoryWriteError{TaskID: "t2", Tier: models.TierShortTerm, Err: io.ErrClosedPipe},
		models.ErrEngineClosed,
	)
	got = memoryErrors(joined)
	assert.Len(t, got, 2)
	assert.Contains(t, got["t1"], "short write")
	assert.Contains(t, got["t2"], "closed pipe")
}
