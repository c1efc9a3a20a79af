package worker

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/extractor"
	"github.com/lattice-run/crawlhive/internal/frontier"
	"github.com/lattice-run/crawlhive/internal/logger"
	"github.com/lattice-run/crawlhive/internal/robots"
	"github.com/lattice-run/crawlhive/internal/store"
)

type fakeReporter struct {
	mu          sync.Mutex
	completed   int
	failed      int
	robotsB     int
	discovered  int
	states      []domain.WorkerStatus
}

func (f *fakeReporter) IncDiscovered() { f.mu.Lock(); f.discovered++; f.mu.Unlock() }
func (f *fakeReporter) IncCompleted(int64, float64) { f.mu.Lock(); f.completed++; f.mu.Unlock() }
func (f *fakeReporter) IncFailed() { f.mu.Lock(); f.failed++; f.mu.Unlock() }
func (f *fakeReporter) IncRobotsBlocked() { f.mu.Lock(); f.robotsB++; f.mu.Unlock() }
func (f *fakeReporter) IncCrossDomainBlocked() {}
func (f *fakeReporter) IncDepthBlocked()       {}
func (f *fakeReporter) IncDuplicateRejected()  {}
func (f *fakeReporter) SetWorkerState(_ int, status domain.WorkerStatus, _ string) {
	f.mu.Lock()
	f.states = append(f.states, status)
	f.mu.Unlock()
}

func (f *fakeReporter) snapshot() (completed, failed, robotsBlocked, discovered int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed, f.failed, f.robotsB, f.discovered
}

func newTestWorker(t *testing.T, srvURL string) (*Worker, *frontier.Frontier, *fakeReporter, store.RecordStore) {
	t.Helper()

	fr := frontier.New(domain.StrategyBreadth, 5, true, srvURL)
	reporter := &fakeReporter{}
	records := store.NewMemoryStore()
	require.NoError(t, records.CreateTask(t.Context(), domain.TaskConfig{ID: "t1"}))

	cfg := Config{
		TaskID:        "t1",
		MaxDepth:      5,
		RetryTimes:    1,
		RespectRobots: false,
		UserAgent:     "crawlhive-test/1.0",
	}

	w := New(0, cfg, fr, robots.NewChecker(nil, logger.NewNoOp()), extractor.New(), records, reporter, NewPauseGate(), nil, logger.NewNoOp())
	return w, fr, reporter, records
}

func TestWorkerFetchesAndDiscoversLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head><title>Home</title></head><body><a href="/child">child</a></body></html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	w, fr, reporter, records := newTestWorker(t, srv.URL)

	require.Equal(t, frontier.Accepted, fr.Offer(srv.URL+"/", 0))

	entry, ok := fr.Poll()
	require.True(t, ok)

	ctx := t.Context()
	w.process(ctx, entry)

	completed, failed, _, discovered := reporter.snapshot()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 1, discovered)

	urls, err := records.ListURLs(ctx, "t1", domain.RecordFilter{}, domain.Pagination{})
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.Equal(t, domain.RecordCompleted, urls[0].Status)
	require.NotNil(t, urls[0].Title)
	assert.Equal(t, "Home", *urls[0].Title)
}

func TestWorkerRetriesOnServerError(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><title>OK</title></html>`))
	}))
	defer srv.Close()

	w, fr, reporter, _ := newTestWorker(t, srv.URL)
	require.Equal(t, frontier.Accepted, fr.Offer(srv.URL+"/", 0))
	entry, ok := fr.Poll()
	require.True(t, ok)

	w.process(t.Context(), entry)

	completed, failed, _, _ := reporter.snapshot()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, failed)
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestWorkerFourOhFourIsFailedNotCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	w, fr, reporter, records := newTestWorker(t, srv.URL)
	require.Equal(t, frontier.Accepted, fr.Offer(srv.URL+"/", 0))
	entry, ok := fr.Poll()
	require.True(t, ok)

	w.process(t.Context(), entry)

	completed, failed, _, _ := reporter.snapshot()
	assert.Equal(t, 0, completed)
	assert.Equal(t, 1, failed)

	urls, err := records.ListURLs(t.Context(), "t1", domain.RecordFilter{}, domain.Pagination{})
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, domain.RecordFailed, urls[0].Status)
	require.NotNil(t, urls[0].StatusCode)
	assert.Equal(t, http.StatusNotFound, *urls[0].StatusCode)
}

func TestWorkerFourOhFourIsNotRetried(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	w, fr, _, _ := newTestWorker(t, srv.URL)
	require.Equal(t, frontier.Accepted, fr.Offer(srv.URL+"/", 0))
	entry, ok := fr.Poll()
	require.True(t, ok)

	w.process(t.Context(), entry)

	assert.Equal(t, 1, attempts)
}

func TestWorkerExhaustedRetriesPersistsStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w, fr, reporter, records := newTestWorker(t, srv.URL)
	require.Equal(t, frontier.Accepted, fr.Offer(srv.URL+"/", 0))
	entry, ok := fr.Poll()
	require.True(t, ok)

	w.process(t.Context(), entry)

	_, failed, _, _ := reporter.snapshot()
	assert.Equal(t, 1, failed)

	urls, err := records.ListURLs(t.Context(), "t1", domain.RecordFilter{}, domain.Pagination{})
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, domain.RecordFailed, urls[0].Status)
	require.NotNil(t, urls[0].StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, *urls[0].StatusCode)
}

func TestWorkerDoesNotPersistBlockedOrDuplicateDiscoveredLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body>
				<a href="/">self</a>
				<a href="http://other.example/x">external</a>
			</body></html>`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	// allow_cross_domain=false so the external link is cross_domain_blocked,
	// and the self-link is a duplicate of the already-seen seed — neither
	// must leave a pending record behind (§7, §8 scenario 1).
	fr := frontier.New(domain.StrategyBreadth, 1, false, srv.URL)
	reporter := &fakeReporter{}
	records := store.NewMemoryStore()
	require.NoError(t, records.CreateTask(t.Context(), domain.TaskConfig{ID: "t1"}))

	cfg := Config{TaskID: "t1", MaxDepth: 1, RetryTimes: 1, UserAgent: "crawlhive-test/1.0"}
	w := New(0, cfg, fr, robots.NewChecker(nil, logger.NewNoOp()), extractor.New(), records, reporter, NewPauseGate(), nil, logger.NewNoOp())

	require.Equal(t, frontier.Accepted, fr.Offer(srv.URL+"/", 0))
	entry, ok := fr.Poll()
	require.True(t, ok)

	w.process(t.Context(), entry)

	urls, err := records.ListURLs(t.Context(), "t1", domain.RecordFilter{}, domain.Pagination{})
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, srv.URL+"/", urls[0].URL)
}

func TestWorkerMarksRobotsBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	defer srv.Close()

	w, fr, reporter, records := newTestWorker(t, srv.URL)
	w.cfg.RespectRobots = true

	require.Equal(t, frontier.Accepted, fr.Offer(srv.URL+"/", 0))
	entry, ok := fr.Poll()
	require.True(t, ok)

	w.process(t.Context(), entry)

	_, _, robotsBlocked, _ := reporter.snapshot()
	assert.Equal(t, 1, robotsBlocked)

	urls, err := records.ListURLs(t.Context(), "t1", domain.RecordFilter{}, domain.Pagination{})
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, domain.RecordRobotsBlocked, urls[0].Status)
}

func TestPauseGateBlocksUntilResume(t *testing.T) {
	gate := NewPauseGate()
	gate.Pause()

	done := make(chan struct{})
	go func() {
		_ = gate.Wait(t.Context())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before Resume")
	case <-time.After(50 * time.Millisecond):
	}

	gate.Resume()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Resume")
	}
}
