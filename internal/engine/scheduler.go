package engine

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/logger"
	"github.com/lattice-run/crawlhive/internal/store"
)

// reloadInterval mirrors the teacher's periodic job-reload cadence so task
// configurations edited directly in the store (schedule added, removed, or
// changed) are picked up without an explicit ReloadTask call.
const reloadInterval = 5 * time.Minute

// Scheduler drives scheduled re-crawls: for every Task Configuration with a
// non-empty Schedule, it registers a cron entry that calls StartTask once
// the task's last known lifecycle is terminal (completed, stopped, or
// failed). A task already running or paused when its cron entry fires is
// skipped for that tick rather than queued.
//
// Grounded on the crawler's job.DBScheduler/cron_manager.go: a robfig/cron
// instance plus a periodic reload of schedules from the store, with
// individual entries tracked so they can be replaced on reload.
type Scheduler struct {
	registry *Registry
	tasks    store.TaskStore
	logger   logger.Interface

	cron   *cron.Cron
	parser cron.Parser

	mu      sync.Mutex
	entries map[string]cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler builds a Scheduler over registry, sourcing Task Configurations
// from tasks.
func NewScheduler(registry *Registry, tasks store.TaskStore, log logger.Interface) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		registry: registry,
		tasks:    tasks,
		logger:   log,
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		parser:   parser,
		entries:  make(map[string]cron.EntryID),
	}
}

// Start loads schedules from the store, starts the cron instance, and
// launches the periodic reloader. The returned error is nil; reload failures
// are logged, not propagated, since a transient store outage should not
// prevent already-loaded schedules from firing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron.Start()
	if err := s.reload(s.ctx); err != nil {
		s.logger.Warn("initial schedule load failed", logger.Error(err))
	}

	s.wg.Add(1)
	go s.periodicReload()
	return nil
}

// Stop halts the cron instance and the periodic reloader, waiting for any
// in-flight cron job handlers to return.
func (s *Scheduler) Stop() {
	s.cancel()
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
	s.wg.Wait()
}

// ReloadTask re-registers a single task's cron entry, for callers that just
// created or edited a task and want its schedule live immediately rather
// than waiting for the periodic reload.
func (s *Scheduler) ReloadTask(cfg domain.TaskConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unscheduleLocked(cfg.ID)
	if cfg.Schedule != nil && *cfg.Schedule != "" {
		s.scheduleLocked(cfg)
	}
}

// Unschedule removes a task's cron entry, for callers that deleted a task.
func (s *Scheduler) Unschedule(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unscheduleLocked(taskID)
}

func (s *Scheduler) reload(ctx context.Context) error {
	cfgs, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for id := range s.entries {
		s.unscheduleLocked(id)
	}
	for _, cfg := range cfgs {
		if cfg.Schedule != nil && *cfg.Schedule != "" {
			s.scheduleLocked(cfg)
		}
	}
	s.mu.Unlock()
	return nil
}

// scheduleLocked must be called with s.mu held.
func (s *Scheduler) scheduleLocked(cfg domain.TaskConfig) {
	schedule := *cfg.Schedule
	if _, err := s.parser.Parse(schedule); err != nil {
		s.logger.Error("invalid cron schedule, skipping", logger.String("task_id", cfg.ID), logger.Error(err))
		return
	}

	taskID := cfg.ID
	entryID, err := s.cron.AddFunc(schedule, func() { s.fire(taskID) })
	if err != nil {
		s.logger.Error("failed to register cron entry", logger.String("task_id", taskID), logger.Error(err))
		return
	}
	s.entries[taskID] = entryID
}

// unscheduleLocked must be called with s.mu held.
func (s *Scheduler) unscheduleLocked(taskID string) {
	if entryID, ok := s.entries[taskID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, taskID)
	}
}

// fire is the cron callback: it reloads the task's current configuration
// (in case it changed since the entry was registered) and starts it if no
// controller for it is currently live.
func (s *Scheduler) fire(taskID string) {
	cfg, err := s.tasks.GetTask(s.ctx, taskID)
	if err != nil {
		s.logger.Error("scheduled task lookup failed", logger.String("task_id", taskID), logger.Error(err))
		return
	}

	if _, err := s.registry.StartTask(s.ctx, cfg); err != nil {
		s.logger.Info("scheduled run skipped",
			logger.String("task_id", taskID), logger.Error(err))
	}
}

func (s *Scheduler) periodicReload() {
	defer s.wg.Done()
	ticker := time.NewTicker(reloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.reload(s.ctx); err != nil {
				s.logger.Warn("periodic schedule reload failed", logger.Error(err))
			}
		}
	}
}
