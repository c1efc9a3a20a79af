// Package task implements the Task Controller: the component that owns a
// single crawl task's configuration, frontier, workers, counters, and
// lifecycle state, and exposes the command methods the Control API and
// Engine Registry drive it through.
//
// Grounded on the crawler's internal/crawler State (RWMutex-guarded counters
// and running flag) and LifecycleManager (done-channel + WaitGroup
// completion signaling), combined with the worker pool's atomic-state-
// machine idiom for the lifecycle transitions themselves.
package task

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/extractor"
	"github.com/lattice-run/crawlhive/internal/frontier"
	"github.com/lattice-run/crawlhive/internal/logger"
	"github.com/lattice-run/crawlhive/internal/normalize"
	"github.com/lattice-run/crawlhive/internal/robots"
	"github.com/lattice-run/crawlhive/internal/store"
	"github.com/lattice-run/crawlhive/internal/worker"
)

// StopGracePeriod bounds how long Stop waits for workers to drain before
// abandoning them.
const StopGracePeriod = 5 * time.Second

const reaperInterval = 500 * time.Millisecond
const snapshotTickInterval = 2 * time.Second

var (
	// ErrInvalidTransition is returned when a command method is called from
	// a lifecycle state it does not support.
	ErrInvalidTransition = errors.New("task: invalid lifecycle transition")
)

// Publisher receives a Snapshot on every lifecycle transition and on a
// periodic tick while running, for the Telemetry SSE/metrics surfaces.
type Publisher interface {
	Publish(snapshot domain.Snapshot)
}

type noopPublisher struct{}

func (noopPublisher) Publish(domain.Snapshot) {}

// Controller owns one task's full runtime state.
type Controller struct {
	mu  sync.RWMutex
	cfg domain.TaskConfig

	frontier  *frontier.Frontier
	robots    *robots.Checker
	extractor *extractor.Extractor
	records   store.Store
	logger    logger.Interface
	publisher Publisher

	lifecycle    domain.Lifecycle
	counters     domain.Counters
	workerStates []domain.WorkerState

	pauseGate *worker.PauseGate
	runCtx    context.Context
	runCancel context.CancelFunc
	workersWG sync.WaitGroup

	reaperStop chan struct{}
	reaperDone chan struct{}

	httpClient *http.Client
}

// New builds a Controller for cfg. publisher may be nil (telemetry is then a
// no-op). The controller passes no HTTP client to its workers, so each
// worker builds its own default client.
func New(cfg domain.TaskConfig, records store.Store, robotsChecker *robots.Checker, log logger.Interface, publisher Publisher) *Controller {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Controller{
		cfg:       cfg,
		frontier:  frontier.New(cfg.Strategy, cfg.MaxDepth, cfg.AllowCrossDomain, cfg.SeedURL),
		robots:    robotsChecker,
		extractor: extractor.New(),
		records:   records,
		logger:    log,
		publisher: publisher,
		lifecycle: domain.LifecyclePending,
		pauseGate: worker.NewPauseGate(),
	}
}

// TaskID returns the controller's task id.
func (c *Controller) TaskID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.ID
}

// Lifecycle returns the current lifecycle state.
func (c *Controller) Lifecycle() domain.Lifecycle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lifecycle
}

// Start spawns the worker pool. Valid from pending, stopped, failed, or
// completed. Resets per-worker state and counters; the frontier is reset and
// re-seeded with the seed URL, then the seen-set is rehydrated from the
// record store so previously finished URLs are not re-discovered.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if !isStartable(c.lifecycle) {
		c.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, c.lifecycle)
	}

	c.frontier.Reset(c.cfg.Strategy)
	c.counters = domain.Counters{}
	c.workerStates = make([]domain.WorkerState, c.cfg.WorkerCount)
	for i := range c.workerStates {
		c.workerStates[i] = domain.WorkerState{Index: i, Status: domain.WorkerIdle}
	}
	c.pauseGate.Resume()
	c.lifecycle = domain.LifecycleRunning
	cfg := c.cfg
	c.mu.Unlock()

	if c.frontier.Offer(cfg.SeedURL, 0) == frontier.Accepted {
		seedKey := cfg.SeedURL
		if normalized, err := normalize.URL(cfg.SeedURL); err == nil {
			seedKey = normalized
		}
		if err := c.records.UpsertPending(ctx, cfg.ID, seedKey, 0); err != nil {
			c.logger.Warn("upsert seed pending failed", logger.Error(err))
		}
		c.IncDiscovered()
	}
	seen, err := c.records.SeenURLs(ctx, cfg.ID)
	if err != nil {
		c.logger.Warn("rehydrate seen-set failed", logger.String("task_id", cfg.ID), logger.Error(err))
	}
	for _, url := range seen {
		c.frontier.MarkSeen(url)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.runCtx = runCtx
	c.runCancel = cancel
	c.reaperStop = make(chan struct{})
	c.reaperDone = make(chan struct{})
	c.mu.Unlock()

	c.spawnWorkers(runCtx, cfg)
	go c.reaper()
	go c.snapshotTicker(runCtx)

	c.publish()
	return nil
}

func isStartable(l domain.Lifecycle) bool {
	switch l {
	case domain.LifecyclePending, domain.LifecycleStopped, domain.LifecycleFailed, domain.LifecycleCompleted:
		return true
	default:
		return false
	}
}

func (c *Controller) spawnWorkers(ctx context.Context, cfg domain.TaskConfig) {
	interval := time.Duration(cfg.RequestInterval * float64(time.Second))
	workerCfg := worker.Config{
		TaskID:           cfg.ID,
		MaxDepth:         cfg.MaxDepth,
		RequestInterval:  interval,
		RetryTimes:       cfg.RetryTimes,
		RespectRobots:    cfg.RespectRobots,
		AllowCrossDomain: cfg.AllowCrossDomain,
		UserAgent:        cfg.UserAgent,
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		w := worker.New(i, workerCfg, c.frontier, c.robots, c.extractor, c.records, c, c.pauseGate, c.httpClient, c.logger)
		c.workersWG.Add(1)
		go func() {
			defer c.workersWG.Done()
			w.Run(ctx, c.reaperStop)
		}()
	}
}

// PauseWorkers blocks every worker after it finishes its current URL. Valid
// from running.
func (c *Controller) PauseWorkers() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lifecycle != domain.LifecycleRunning {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, c.lifecycle)
	}
	c.pauseGate.Pause()
	c.lifecycle = domain.LifecyclePaused
	c.publishLocked()
	return nil
}

// ResumeWorkers unblocks a paused pool. Valid from paused.
func (c *Controller) ResumeWorkers() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lifecycle != domain.LifecyclePaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, c.lifecycle)
	}
	c.pauseGate.Resume()
	c.lifecycle = domain.LifecycleRunning
	c.publishLocked()
	return nil
}

// Stop signals all workers and joins them within StopGracePeriod; on timeout
// they are marked stopped anyway and abandoned. Valid from running or paused.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.lifecycle != domain.LifecycleRunning && c.lifecycle != domain.LifecyclePaused {
		c.mu.Unlock()
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, c.lifecycle)
	}
	c.pauseGate.Resume() // unblock any paused workers so they observe stop
	close(c.reaperStop)
	c.runCancel()
	c.mu.Unlock()

	c.stopReaper()

	done := make(chan struct{})
	go func() {
		c.workersWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(StopGracePeriod):
		c.logger.Warn("stop grace period exceeded, abandoning workers", logger.String("task_id", c.TaskID()))
	}

	c.mu.Lock()
	for i := range c.workerStates {
		c.workerStates[i].Status = domain.WorkerStopped
		c.workerStates[i].CurrentURL = ""
	}
	c.lifecycle = domain.LifecycleStopped
	c.publishLocked()
	c.mu.Unlock()
	return nil
}

// PauseFrontier stops new link discoveries from being enqueued without
// affecting lifecycle. Workers keep draining already-queued URLs.
func (c *Controller) PauseFrontier() {
	c.frontier.Pause()
	c.publish()
}

// ResumeFrontier allows new link discoveries again.
func (c *Controller) ResumeFrontier() {
	c.frontier.Resume()
	c.publish()
}

// Snapshot returns a consistent read of counters, per-worker state,
// lifecycle, and frontier state.
func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() domain.Snapshot {
	workers := make([]domain.WorkerState, len(c.workerStates))
	copy(workers, c.workerStates)

	frontierState := domain.FrontierActive
	if c.frontier.Paused() {
		frontierState = domain.FrontierPaused
	}

	return domain.Snapshot{
		TaskID:        c.cfg.ID,
		Lifecycle:     c.lifecycle,
		FrontierState: frontierState,
		Counters:      c.counters,
		Workers:       workers,
		FrontierSize:  c.frontier.Size(),
		TakenAt:       time.Now().UnixNano(),
	}
}

func (c *Controller) publish() {
	c.mu.RLock()
	snapshot := c.snapshotLocked()
	c.mu.RUnlock()
	c.publisher.Publish(snapshot)
}

func (c *Controller) publishLocked() {
	c.publisher.Publish(c.snapshotLocked())
}

func (c *Controller) stopReaper() {
	select {
	case <-c.reaperDone:
	case <-time.After(StopGracePeriod):
	}
}
