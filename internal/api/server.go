// Package api implements the Control API: the gin HTTP surface for creating
// and driving crawl tasks, streaming their runtime state, and browsing their
// collected records. Grounded on the crawler's infrastructure/gin package
// for the server lifecycle and middleware chain, and its jobs_handler.go
// for the CRUD handler shape.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lattice-run/crawlhive/internal/engine"
	"github.com/lattice-run/crawlhive/internal/logger"
	"github.com/lattice-run/crawlhive/internal/store"
	"github.com/lattice-run/crawlhive/internal/telemetry"
)

// Default timeout values for the HTTP server configuration.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 5 * time.Minute // /tasks/{id}/export and /monitor/{id}/stream run long
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// Config holds the Control API's HTTP server configuration.
type Config struct {
	Addr            string
	Debug           bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORS            CORSConfig
}

// SetDefaults fills zero-value fields with the package defaults.
func (c *Config) SetDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(c.CORS.AllowedOrigins) == 0 && len(c.CORS.AllowedMethods) == 0 {
		c.CORS = DefaultCORSConfig()
	}
}

// Server wires the Engine Registry, Task Store, Record Store, and Telemetry
// Hub into a gin.Engine and an http.Server.
type Server struct {
	cfg    Config
	logger logger.Interface
	router *gin.Engine
	http   *http.Server

	h *handlers
}

// Deps collects the Server's runtime dependencies.
type Deps struct {
	Registry  *engine.Registry
	Scheduler *engine.Scheduler
	Tasks     store.TaskStore
	Records   store.RecordStore
	DeleteAll func(ctx context.Context, taskID string) error
	Hub       *telemetry.Hub
}

// NewServer builds a Server: it installs the Recovery, RequestID+Logger,
// Logger and CORS middleware in that order, then registers every route.
func NewServer(cfg Config, log logger.Interface, deps Deps) *Server {
	cfg.SetDefaults()

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDLoggerMiddleware(log))
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORS))

	h := &handlers{
		registry:  deps.Registry,
		scheduler: deps.Scheduler,
		tasks:     deps.Tasks,
		records:   deps.Records,
		deleteAll: deps.DeleteAll,
		hub:       deps.Hub,
		logger:    log,
	}
	h.register(router)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{cfg: cfg, logger: log, router: router, http: httpServer, h: h}
}

// Router returns the underlying gin.Engine, for tests that want to drive
// requests directly with httptest.
func (s *Server) Router() *gin.Engine { return s.router }

// Start runs the HTTP server, blocking until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting control api", logger.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control api: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control api shutdown: %w", err)
	}
	return nil
}

func (h *handlers) register(router *gin.Engine) {
	router.GET("/healthz", h.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/download", h.Download)

	router.GET("/tasks", h.ListTasks)
	router.POST("/tasks", h.CreateTask)
	router.GET("/tasks/:id", h.GetTask)
	router.PUT("/tasks/:id", h.UpdateTask)
	router.DELETE("/tasks/:id", h.DeleteTask)
	router.POST("/tasks/:id/start", h.StartTask)
	router.POST("/tasks/:id/pause", h.PauseTask)
	router.POST("/tasks/:id/resume", h.ResumeTask)
	router.POST("/tasks/:id/stop", h.StopTask)
	router.POST("/tasks/:id/pause-queue", h.PauseQueue)
	router.POST("/tasks/:id/resume-queue", h.ResumeQueue)
	router.GET("/tasks/:id/urls", h.ListURLs)
	router.GET("/tasks/:id/stats", h.Stats)
	router.GET("/tasks/:id/export", h.Export)

	router.GET("/monitor/:id/current", h.MonitorCurrent)
	router.GET("/monitor/:id/stream", h.MonitorStream)
}
