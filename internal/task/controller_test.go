package task

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/logger"
	"github.com/lattice-run/crawlhive/internal/robots"
	"github.com/lattice-run/crawlhive/internal/store"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><title>Home</title><body><a href="/a">a</a></body></html>`))
		case "/a":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><title>A</title></html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestController(t *testing.T, seedURL string) (*Controller, store.Store) {
	t.Helper()
	records := store.NewMemoryStore()
	cfg := domain.TaskConfig{
		ID:              "t1",
		SeedURL:         seedURL,
		Strategy:        domain.StrategyBreadth,
		MaxDepth:        3,
		WorkerCount:     2,
		RequestInterval: 0,
		RetryTimes:      1,
		RespectRobots:   false,
		UserAgent:       "crawlhive-test/1.0",
	}
	require.NoError(t, records.CreateTask(t.Context(), cfg))
	ctrl := New(cfg, records, robots.NewChecker(nil, logger.NewNoOp()), logger.NewNoOp(), nil)
	return ctrl, records
}

func TestControllerStartRunsToCompletion(t *testing.T) {
	srv := testServer(t)
	ctrl, records := newTestController(t, srv.URL+"/")

	require.NoError(t, ctrl.Start(t.Context()))

	require.Eventually(t, func() bool {
		return ctrl.Lifecycle() == domain.LifecycleCompleted
	}, 5*time.Second, 20*time.Millisecond)

	snapshot := ctrl.Snapshot()
	assert.GreaterOrEqual(t, snapshot.Counters.Completed, int64(2))

	// §8 invariant: completed + failed + robots_blocked <= total_discovered,
	// which requires the seed itself to count toward TotalDiscovered.
	c := snapshot.Counters
	assert.LessOrEqual(t, c.Completed+c.Failed+c.RobotsBlocked, c.TotalDiscovered)

	urls, err := records.ListURLs(t.Context(), "t1", domain.RecordFilter{}, domain.Pagination{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(urls), 2)
}

func TestControllerSinglePageSeedCountsDiscovered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><title>Lonely</title></html>`))
	}))
	t.Cleanup(srv.Close)

	ctrl, _ := newTestController(t, srv.URL+"/")
	require.NoError(t, ctrl.Start(t.Context()))

	require.Eventually(t, func() bool {
		return ctrl.Lifecycle() == domain.LifecycleCompleted
	}, 5*time.Second, 20*time.Millisecond)

	snapshot := ctrl.Snapshot()
	c := snapshot.Counters
	assert.Equal(t, int64(1), c.Completed)
	assert.Equal(t, int64(0), c.Failed)
	assert.Equal(t, int64(1), c.TotalDiscovered)
	assert.LessOrEqual(t, c.Completed+c.Failed+c.RobotsBlocked, c.TotalDiscovered)
}

func TestControllerInvalidTransitions(t *testing.T) {
	srv := testServer(t)
	ctrl, _ := newTestController(t, srv.URL+"/")

	assert.ErrorIs(t, ctrl.PauseWorkers(), ErrInvalidTransition)
	assert.ErrorIs(t, ctrl.Stop(), ErrInvalidTransition)
}

func TestControllerPauseResume(t *testing.T) {
	srv := testServer(t)
	ctrl, _ := newTestController(t, srv.URL+"/")

	require.NoError(t, ctrl.Start(t.Context()))
	require.NoError(t, ctrl.PauseWorkers())
	assert.Equal(t, domain.LifecyclePaused, ctrl.Lifecycle())

	require.NoError(t, ctrl.ResumeWorkers())
	assert.Equal(t, domain.LifecycleRunning, ctrl.Lifecycle())

	require.NoError(t, ctrl.Stop())
	assert.Equal(t, domain.LifecycleStopped, ctrl.Lifecycle())
}

func TestControllerPauseFrontierTogglesFrontierState(t *testing.T) {
	srv := testServer(t)
	ctrl, _ := newTestController(t, srv.URL+"/")

	ctrl.PauseFrontier()
	snapshot := ctrl.Snapshot()
	assert.Equal(t, domain.FrontierPaused, snapshot.FrontierState)

	ctrl.ResumeFrontier()
	snapshot = ctrl.Snapshot()
	assert.Equal(t, domain.FrontierActive, snapshot.FrontierState)
}
