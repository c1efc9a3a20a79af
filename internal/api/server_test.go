package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/engine"
	"github.com/lattice-run/crawlhive/internal/logger"
	"github.com/lattice-run/crawlhive/internal/robots"
	"github.com/lattice-run/crawlhive/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	memStore := store.NewMemoryStore()
	log := logger.NewNoOp()
	registry := engine.New(memStore, robots.NewChecker(nil, log), log, nil)
	scheduler := engine.NewScheduler(registry, memStore, log)

	srv := NewServer(Config{Addr: ":0"}, log, Deps{
		Registry:  registry,
		Scheduler: scheduler,
		Tasks:     memStore,
		Records:   memStore,
		DeleteAll: memStore.DeleteTask,
	})
	return srv, memStore
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestCreateAndGetTask(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, env := doJSON(t, srv.Router(), http.MethodPost, "/tasks", `{"seed_url":"https://example.com","strategy":"breadth","max_depth":2,"worker_count":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, env.Success)

	var created taskView
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.LifecyclePending, created.Lifecycle)

	rec, env = doJSON(t, srv.Router(), http.MethodGet, "/tasks/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestCreateTaskRejectsInvalidConfig(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, env := doJSON(t, srv.Router(), http.MethodPost, "/tasks", `{"strategy":"breadth","max_depth":2,"worker_count":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestGetTaskNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, env := doJSON(t, srv.Router(), http.MethodGet, "/tasks/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestStartPauseStopLifecycle(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer upstream.Close()

	srv, memStore := newTestServer(t)
	cfg := domain.TaskConfig{ID: "t1", SeedURL: upstream.URL, Strategy: domain.StrategyBreadth, MaxDepth: 1, WorkerCount: 1}.WithDefaults()
	require.NoError(t, memStore.CreateTask(context.Background(), cfg))

	rec, env := doJSON(t, srv.Router(), http.MethodPost, "/tasks/t1/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	rec, env = doJSON(t, srv.Router(), http.MethodPost, "/tasks/t1/pause-queue", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, env = doJSON(t, srv.Router(), http.MethodPost, "/tasks/t1/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestUpdateTaskRejectedWhileRunning(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer upstream.Close()

	srv, memStore := newTestServer(t)
	cfg := domain.TaskConfig{ID: "t2", SeedURL: upstream.URL, Strategy: domain.StrategyBreadth, MaxDepth: 1, WorkerCount: 1}.WithDefaults()
	require.NoError(t, memStore.CreateTask(context.Background(), cfg))

	rec, _ := doJSON(t, srv.Router(), http.MethodPost, "/tasks/t2/start", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := doJSON(t, srv.Router(), http.MethodPut, "/tasks/t2", `{"seed_url":"https://example.com","strategy":"breadth","max_depth":1,"worker_count":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)

	doJSON(t, srv.Router(), http.MethodPost, "/tasks/t2/stop", "")
}

func TestMonitorCurrentUnknownTask(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, env := doJSON(t, srv.Router(), http.MethodGet, "/monitor/unknown/current", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDownloadProxiesUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download?url="+upstream.URL, nil)
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
}
