package api

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lattice-run/crawlhive/internal/apierr"
	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/engine"
	"github.com/lattice-run/crawlhive/internal/logger"
	"github.com/lattice-run/crawlhive/internal/store"
	"github.com/lattice-run/crawlhive/internal/task"
	"github.com/lattice-run/crawlhive/internal/telemetry"
)

type handlers struct {
	registry  *engine.Registry
	scheduler *engine.Scheduler
	tasks     store.TaskStore
	records   store.RecordStore
	deleteAll func(ctx context.Context, taskID string) error
	hub       *telemetry.Hub
	logger    logger.Interface
}

// taskView is a Task Configuration with its last-known lifecycle merged in,
// the way ListTasks/GetTask report it: pending when no controller is live.
type taskView struct {
	domain.TaskConfig
	Lifecycle domain.Lifecycle `json:"lifecycle"`
}

func (h *handlers) view(cfg domain.TaskConfig) taskView {
	lifecycle := domain.LifecyclePending
	if snapshot, ok := h.registry.Snapshot(cfg.ID); ok {
		lifecycle = snapshot.Lifecycle
	}
	return taskView{TaskConfig: cfg, Lifecycle: lifecycle}
}

// ListTasks handles GET /tasks.
func (h *handlers) ListTasks(c *gin.Context) {
	cfgs, err := h.tasks.ListTasks(c.Request.Context())
	if err != nil {
		apierr.Write(c, err)
		return
	}
	views := make([]taskView, 0, len(cfgs))
	for _, cfg := range cfgs {
		views = append(views, h.view(cfg))
	}
	apierr.OK(c, views)
}

// CreateTask handles POST /tasks.
func (h *handlers) CreateTask(c *gin.Context) {
	var cfg domain.TaskConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		apierr.BadRequest(c, err.Error())
		return
	}
	cfg.ID = uuid.New().String()
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		apierr.Write(c, err)
		return
	}
	if err := h.tasks.CreateTask(c.Request.Context(), cfg); err != nil {
		apierr.Write(c, err)
		return
	}
	if h.scheduler != nil {
		h.scheduler.ReloadTask(cfg)
	}
	apierr.Created(c, h.view(cfg))
}

// GetTask handles GET /tasks/{id}.
func (h *handlers) GetTask(c *gin.Context) {
	cfg, err := h.tasks.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	apierr.OK(c, h.view(cfg))
}

// UpdateTask handles PUT /tasks/{id}. Rejected with task_running unless no
// live controller exists for the task.
func (h *handlers) UpdateTask(c *gin.Context) {
	id := c.Param("id")
	if ctrl, err := h.registry.GetController(id); err == nil {
		switch ctrl.Lifecycle() {
		case domain.LifecycleRunning, domain.LifecyclePaused:
			apierr.Write(c, engine.ErrTaskRunning)
			return
		}
	}

	existing, err := h.tasks.GetTask(c.Request.Context(), id)
	if err != nil {
		apierr.Write(c, err)
		return
	}

	var cfg domain.TaskConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		apierr.BadRequest(c, err.Error())
		return
	}
	cfg.ID = id
	cfg.CreatedAt = existing.CreatedAt
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		apierr.Write(c, err)
		return
	}
	if err := h.tasks.UpdateTask(c.Request.Context(), cfg); err != nil {
		apierr.Write(c, err)
		return
	}
	if h.scheduler != nil {
		h.scheduler.ReloadTask(cfg)
	}
	apierr.OK(c, h.view(cfg))
}

// DeleteTask handles DELETE /tasks/{id}: stop+cleanup a live controller,
// unschedule any cron entry, then delete the configuration and its records.
func (h *handlers) DeleteTask(c *gin.Context) {
	id := c.Param("id")
	if ctrl, err := h.registry.GetController(id); err == nil {
		switch ctrl.Lifecycle() {
		case domain.LifecycleRunning, domain.LifecyclePaused:
			if err := ctrl.Stop(); err != nil {
				h.logger.Warn("stop before delete failed", logger.String("task_id", id), logger.Error(err))
			}
		}
		h.registry.ForceCleanup(id)
	}
	if h.scheduler != nil {
		h.scheduler.Unschedule(id)
	}

	if err := h.deleteAll(c.Request.Context(), id); err != nil {
		apierr.Write(c, err)
		return
	}
	apierr.OK(c, gin.H{"id": id})
}

// StartTask handles POST /tasks/{id}/start.
func (h *handlers) StartTask(c *gin.Context) {
	id := c.Param("id")
	cfg, err := h.tasks.GetTask(c.Request.Context(), id)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	ctrl, err := h.registry.StartTask(c.Request.Context(), cfg)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	apierr.OK(c, ctrl.Snapshot())
}

// PauseTask handles POST /tasks/{id}/pause.
func (h *handlers) PauseTask(c *gin.Context) {
	ctrl, err := h.controllerFor(c)
	if err != nil {
		return
	}
	if err := ctrl.PauseWorkers(); err != nil {
		apierr.Write(c, err)
		return
	}
	apierr.OK(c, ctrl.Snapshot())
}

// ResumeTask handles POST /tasks/{id}/resume: resumes a paused controller,
// or starts a fresh run if none is currently live.
func (h *handlers) ResumeTask(c *gin.Context) {
	id := c.Param("id")
	ctrl, err := h.registry.GetController(id)
	if err != nil {
		h.StartTask(c)
		return
	}
	if resumeErr := ctrl.ResumeWorkers(); resumeErr != nil {
		if errors.Is(resumeErr, task.ErrInvalidTransition) {
			h.StartTask(c)
			return
		}
		apierr.Write(c, resumeErr)
		return
	}
	apierr.OK(c, ctrl.Snapshot())
}

// StopTask handles POST /tasks/{id}/stop.
func (h *handlers) StopTask(c *gin.Context) {
	ctrl, err := h.controllerFor(c)
	if err != nil {
		return
	}
	if err := ctrl.Stop(); err != nil {
		apierr.Write(c, err)
		return
	}
	apierr.OK(c, ctrl.Snapshot())
}

// PauseQueue handles POST /tasks/{id}/pause-queue.
func (h *handlers) PauseQueue(c *gin.Context) {
	ctrl, err := h.controllerFor(c)
	if err != nil {
		return
	}
	ctrl.PauseFrontier()
	apierr.OK(c, ctrl.Snapshot())
}

// ResumeQueue handles POST /tasks/{id}/resume-queue.
func (h *handlers) ResumeQueue(c *gin.Context) {
	ctrl, err := h.controllerFor(c)
	if err != nil {
		return
	}
	ctrl.ResumeFrontier()
	apierr.OK(c, ctrl.Snapshot())
}

func (h *handlers) controllerFor(c *gin.Context) (*task.Controller, error) {
	ctrl, err := h.registry.GetController(c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return nil, err
	}
	return ctrl, nil
}
