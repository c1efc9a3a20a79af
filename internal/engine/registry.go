// Package engine owns the process-wide set of live Task Controllers and the
// cron-driven scheduler that restarts tasks carrying a schedule.
//
// Grounded on the crawler's job.DBScheduler for the scheduling half; the
// registry itself (a locked map from task id to controller) has no direct
// teacher analogue since the teacher runs a single crawler.Interface per
// process rather than one controller per tenant task.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/extractor"
	"github.com/lattice-run/crawlhive/internal/logger"
	"github.com/lattice-run/crawlhive/internal/robots"
	"github.com/lattice-run/crawlhive/internal/store"
	"github.com/lattice-run/crawlhive/internal/task"
)

// ErrTaskRunning is returned by StartTask when a controller for the task id
// is already live (running or paused).
var ErrTaskRunning = errors.New("engine: task already running")

// ErrUnknownTask is returned when a task id has no registered controller.
var ErrUnknownTask = errors.New("engine: unknown task")

// Registry owns one *task.Controller per task id. A controller stays in the
// map after it reaches a terminal state; StartTask replaces it with a fresh
// controller for the next run.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]*task.Controller

	records   store.Store
	robots    *robots.Checker
	extractor *extractor.Extractor
	logger    logger.Interface
	publisher task.Publisher
}

// New builds an empty Registry. publisher may be nil.
func New(records store.Store, robotsChecker *robots.Checker, log logger.Interface, publisher task.Publisher) *Registry {
	return &Registry{
		controllers: make(map[string]*task.Controller),
		records:     records,
		robots:      robotsChecker,
		extractor:   extractor.New(),
		logger:      log,
		publisher:   publisher,
	}
}

// StartTask builds a fresh controller for cfg.ID and starts it. It
// refuses if a controller for the same id is already running or paused; a
// controller left over from a prior terminal run is replaced.
func (r *Registry) StartTask(ctx context.Context, cfg domain.TaskConfig) (*task.Controller, error) {
	r.mu.Lock()
	if existing, ok := r.controllers[cfg.ID]; ok {
		switch existing.Lifecycle() {
		case domain.LifecycleRunning, domain.LifecyclePaused:
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrTaskRunning, cfg.ID)
		}
	}
	ctrl := task.New(cfg, r.records, r.robots, r.logger, r.publisher)
	r.controllers[cfg.ID] = ctrl
	r.mu.Unlock()

	if err := ctrl.Start(ctx); err != nil {
		return nil, fmt.Errorf("engine: start task %s: %w", cfg.ID, err)
	}
	return ctrl, nil
}

// GetController returns the live controller for id, if any.
func (r *Registry) GetController(id string) (*task.Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctrl, ok := r.controllers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return ctrl, nil
}

// ForceCleanup removes a controller from the registry without calling Stop
// on it, for recovering from a controller that failed to stop cleanly
// (its worker goroutines are abandoned, per the Task Controller's bounded
// grace period).
func (r *Registry) ForceCleanup(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.controllers, id)
}

// Snapshot returns the current Snapshot for id, or false if the task is not
// registered.
func (r *Registry) Snapshot(id string) (domain.Snapshot, bool) {
	r.mu.RLock()
	ctrl, ok := r.controllers[id]
	r.mu.RUnlock()
	if !ok {
		return domain.Snapshot{}, false
	}
	return ctrl.Snapshot(), true
}

// TaskIDs returns the ids of every currently registered controller.
func (r *Registry) TaskIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.controllers))
	for id := range r.controllers {
		ids = append(ids, id)
	}
	return ids
}
