// Package worker implements the fetch-parse-record loop described in the
// specification's Worker component: poll the frontier, respect robots.txt,
// pace requests, fetch with bounded retries, extract metadata, and persist
// the outcome, discovering new links along the way.
//
// Adapted from the crawler's fetcher.WorkerPool loop and its per-worker
// dependency-interface style (FrontierClaimer/RobotsAllower/ContentIndexer),
// narrowed to the frontier/robots/extractor/store types this engine uses.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/extractor"
	"github.com/lattice-run/crawlhive/internal/frontier"
	"github.com/lattice-run/crawlhive/internal/logger"
	"github.com/lattice-run/crawlhive/internal/normalize"
	"github.com/lattice-run/crawlhive/internal/retry"
	"github.com/lattice-run/crawlhive/internal/robots"
	"github.com/lattice-run/crawlhive/internal/store"
)

const (
	maxResponseBodyBytes = 10 * 1024 * 1024
	maxRedirects         = 10
	requestTimeout       = 30 * time.Second
	pollTimeout          = 1 * time.Second
	pollInterval         = 50 * time.Millisecond
)

// Config carries the per-task settings a Worker needs from domain.TaskConfig,
// narrowed to what the fetch loop actually reads.
type Config struct {
	TaskID           string
	MaxDepth         int
	RequestInterval  time.Duration
	RetryTimes       int
	RespectRobots    bool
	AllowCrossDomain bool
	UserAgent        string
}

// Worker runs one fetch-parse-record loop against a shared Frontier, Robots
// Checker, Extractor, and Record Store, reporting results through Reporter.
type Worker struct {
	index      int
	cfg        Config
	frontier   *frontier.Frontier
	robots     *robots.Checker
	extractor  *extractor.Extractor
	records    store.RecordStore
	reporter   Reporter
	pauseGate  *PauseGate
	httpClient *http.Client
	logger     logger.Interface

	lastFetch time.Time
}

// New builds a Worker. httpClient may be nil, in which case a client with
// the standard request timeout and redirect cap is built.
func New(
	index int,
	cfg Config,
	fr *frontier.Frontier,
	robotsChecker *robots.Checker,
	ext *extractor.Extractor,
	records store.RecordStore,
	reporter Reporter,
	pauseGate *PauseGate,
	httpClient *http.Client,
	log logger.Interface,
) *Worker {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       requestTimeout,
			CheckRedirect: redirectPolicy(maxRedirects),
		}
	}
	return &Worker{
		index:      index,
		cfg:        cfg,
		frontier:   fr,
		robots:     robotsChecker,
		extractor:  ext,
		records:    records,
		reporter:   reporter,
		pauseGate:  pauseGate,
		httpClient: httpClient,
		logger:     log,
	}
}

// Run loops until ctx is cancelled, polling the frontier and processing
// whatever it finds. stopCh, when closed, also ends the loop immediately
// (used for a bounded-grace-period Stop independent of ctx cancellation).
func (w *Worker) Run(ctx context.Context, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			w.reporter.SetWorkerState(w.index, domain.WorkerStopped, "")
			return
		case <-stopCh:
			w.reporter.SetWorkerState(w.index, domain.WorkerStopped, "")
			return
		default:
		}

		if w.pauseGate.Paused() {
			w.reporter.SetWorkerState(w.index, domain.WorkerPaused, "")
		}
		if err := w.pauseGate.Wait(ctx); err != nil {
			w.reporter.SetWorkerState(w.index, domain.WorkerStopped, "")
			return
		}

		entry, ok := w.pollFrontier(ctx, stopCh)
		if !ok {
			w.reporter.SetWorkerState(w.index, domain.WorkerIdle, "")
			continue
		}

		w.process(ctx, entry)
	}
}

// pollFrontier polls the frontier for up to pollTimeout, sleeping between
// attempts so it does not spin a CPU core while the queue is empty.
func (w *Worker) pollFrontier(ctx context.Context, stopCh <-chan struct{}) (frontier.Entry, bool) {
	deadline := time.Now().Add(pollTimeout)
	for {
		if entry, ok := w.frontier.Poll(); ok {
			return entry, true
		}
		if time.Now().After(deadline) {
			return frontier.Entry{}, false
		}
		select {
		case <-ctx.Done():
			return frontier.Entry{}, false
		case <-stopCh:
			return frontier.Entry{}, false
		case <-time.After(pollInterval):
		}
	}
}

func (w *Worker) process(ctx context.Context, entry frontier.Entry) {
	if w.cfg.RespectRobots && !w.robots.CanFetch(ctx, entry.URL, w.cfg.UserAgent) {
		if err := w.records.MarkRobotsBlocked(ctx, w.cfg.TaskID, entry.URL, entry.Depth); err != nil {
			w.logger.Warn("mark robots blocked failed", logger.String("url", entry.URL), logger.Error(err))
		}
		w.reporter.IncRobotsBlocked()
		return
	}

	w.paceRequest()

	w.reporter.SetWorkerState(w.index, domain.WorkerFetching, entry.URL)

	start := time.Now()
	resp, err := w.fetchWithRetry(ctx, entry.URL)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		w.finalizeFailed(ctx, entry, resp, err, elapsed)
		return
	}
	defer resp.body.Close()

	w.finalizeSuccess(ctx, entry, resp, elapsed)
}

func (w *Worker) paceRequest() {
	if w.cfg.RequestInterval <= 0 {
		return
	}
	if w.lastFetch.IsZero() {
		w.lastFetch = time.Now()
		return
	}
	elapsed := time.Since(w.lastFetch)
	if elapsed < w.cfg.RequestInterval {
		time.Sleep(w.cfg.RequestInterval - elapsed)
	}
	w.lastFetch = time.Now()
}

type fetchResult struct {
	body        io.ReadCloser
	statusCode  int
	contentType string
	bytes       int64
}

func (w *Worker) fetchWithRetry(ctx context.Context, rawURL string) (fetchResult, error) {
	var result fetchResult

	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = w.cfg.RetryTimes + 1
	cfg.IsRetryable = isRetryableFetchError

	err := retry.Do(ctx, cfg, func(_ int) error {
		fetched, fetchErr := w.fetchOnce(ctx, rawURL)
		result = fetched
		return fetchErr
	})

	return result, err
}

// httpStatusError reports a non-2xx/3xx response so fetchWithRetry's
// IsRetryable can distinguish a 5xx (TransientFetchError, retried) from a
// 4xx (PermanentFetchError, failed immediately) per §7, and so the final
// status code survives into the persisted failed record.
type httpStatusError struct {
	statusCode int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http status %d", e.statusCode)
}

func (w *Worker) fetchOnce(ctx context.Context, rawURL string) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fetchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", w.cfg.UserAgent)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fetchResult{}, fmt.Errorf("fetch: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return fetchResult{statusCode: resp.StatusCode}, &httpStatusError{statusCode: resp.StatusCode}
	}

	limited := io.LimitReader(resp.Body, maxResponseBodyBytes)
	buf, err := io.ReadAll(limited)
	resp.Body.Close()
	if err != nil {
		return fetchResult{}, fmt.Errorf("read body: %w", err)
	}

	return fetchResult{
		body:        io.NopCloser(bytes.NewReader(buf)),
		statusCode:  resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		bytes:       int64(len(buf)),
	}, nil
}

// isRetryableFetchError reports whether a fetch should be retried: network
// errors and 5xx responses are TransientFetchError (retried up to
// retry_times), a 4xx is a PermanentFetchError and fails immediately.
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.statusCode >= http.StatusInternalServerError
	}
	return true
}

func (w *Worker) finalizeFailed(ctx context.Context, entry frontier.Entry, resp fetchResult, fetchErr error, elapsed float64) {
	outcome := domain.Outcome{
		Status:              domain.RecordFailed,
		StatusCode:          resp.statusCode,
		ResponseTimeSeconds: elapsed,
		ErrorMessage:        fetchErr.Error(),
	}
	if err := w.records.Finalize(ctx, w.cfg.TaskID, entry.URL, outcome); err != nil {
		w.logger.Warn("finalize failed record error", logger.String("url", entry.URL), logger.Error(err))
	}
	w.reporter.IncFailed()
}

func (w *Worker) finalizeSuccess(ctx context.Context, entry frontier.Entry, resp fetchResult, elapsed float64) {
	meta, extractErr := w.extractor.Extract(resp.body, entry.URL, resp.contentType)
	if extractErr != nil {
		w.logger.Warn("extract failed", logger.String("url", entry.URL), logger.Error(extractErr))
	}

	outcome := domain.Outcome{
		Status:              domain.RecordCompleted,
		StatusCode:          resp.statusCode,
		ResponseTimeSeconds: elapsed,
		FileSizeBytes:       resp.bytes,
		ContentType:         resp.contentType,
		Title:               meta.Title,
		Author:              meta.Author,
		Description:         meta.Description,
		Keywords:            meta.Keywords,
		PublishTime:         meta.PublishTime,
	}
	if err := w.records.Finalize(ctx, w.cfg.TaskID, entry.URL, outcome); err != nil {
		w.logger.Warn("finalize record error", logger.String("url", entry.URL), logger.Error(err))
	}
	w.reporter.IncCompleted(resp.bytes, elapsed)

	if entry.Depth+1 > w.cfg.MaxDepth {
		return
	}
	for _, link := range meta.Links {
		w.offerDiscovered(ctx, link, entry.Depth+1)
	}
}

func (w *Worker) offerDiscovered(ctx context.Context, link string, depth int) {
	switch w.frontier.Offer(link, depth) {
	case frontier.Accepted:
		// Offer normalizes rawURL internally before keying the seen-set; the
		// persisted record must use the same key so Finalize (which receives
		// the normalized URL back off Poll) lands on the row this created.
		key := link
		if normalized, err := normalize.URL(link); err == nil {
			key = normalized
		}
		if err := w.records.UpsertPending(ctx, w.cfg.TaskID, key, depth); err != nil {
			w.logger.Warn("upsert pending failed", logger.String("url", key), logger.Error(err))
		}
		w.reporter.IncDiscovered()
	case frontier.DepthBlocked:
		w.reporter.IncDepthBlocked()
	case frontier.CrossDomainBlocked:
		w.reporter.IncCrossDomainBlocked()
	case frontier.Duplicate, frontier.Malformed:
		w.reporter.IncDuplicateRejected()
	case frontier.FrontierPausedResult:
		// dropped silently: paused frontiers shed new links.
	}
}

