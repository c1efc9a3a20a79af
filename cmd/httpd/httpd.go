// Package httpd implements the HTTP server command: it wires the Engine
// Registry, Record Store, Robots Cache, and Telemetry Hub into a running
// Control API and blocks until an interrupt or server error.
package httpd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/lattice-run/crawlhive/internal/api"
	"github.com/lattice-run/crawlhive/internal/config"
	"github.com/lattice-run/crawlhive/internal/engine"
	"github.com/lattice-run/crawlhive/internal/logger"
	"github.com/lattice-run/crawlhive/internal/robots"
	"github.com/lattice-run/crawlhive/internal/store"
	"github.com/lattice-run/crawlhive/internal/telemetry"
)

var cfgFile string

// Command returns the httpd subcommand that serves the Control API.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "httpd",
		Short: "Run the crawl engine's Control API",
		Long: `Starts the HTTP Control API described in the crawl engine's interface
contract: task CRUD, lifecycle commands, the live snapshot monitor, and
record listing/export, backed by the Engine Registry.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgFile)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "path to config file")
	return cmd
}

func run(ctx context.Context, cfgPath string) error {
	// Loaded before config.Load so .env values are visible to viper's
	// AutomaticEnv lookup; a missing .env file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("httpd: load config: %w", err)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("httpd: build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := store.NewPostgresConnection(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("httpd: connect postgres: %w", err)
	}
	defer db.Close()

	var mirror store.Mirror
	if cfg.Elasticsearch.Enabled() {
		esClient, esErr := es.NewClient(es.Config{
			Addresses: cfg.Elasticsearch.Addresses,
			APIKey:    cfg.Elasticsearch.APIKey,
		})
		if esErr != nil {
			log.Warn("elasticsearch client init failed, mirror disabled", logger.Error(esErr))
		} else {
			mirror = store.NewElasticsearchMirror(esClient, log)
		}
	}

	recordStore := store.NewPostgresStore(db, mirror)

	var robotsStore robots.Store
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if pingErr := rdb.Ping(ctx).Err(); pingErr != nil {
			log.Warn("redis ping failed, robots cache falls back to in-memory", logger.Error(pingErr))
		} else {
			robotsStore = robots.NewRedisStore(rdb)
		}
	}
	robotsChecker := robots.NewChecker(robotsStore, log)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	broker := telemetry.NewBroker(log)
	broker.Start(ctx)
	defer broker.Stop()
	hub := telemetry.NewHub(metrics, broker)

	registry := engine.New(recordStore, robotsChecker, log, hub)
	scheduler := engine.NewScheduler(registry, recordStore, log)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("httpd: start scheduler: %w", err)
	}
	defer scheduler.Stop()

	cors := api.DefaultCORSConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		cors.AllowedOrigins = cfg.Server.CORSOrigins
	}

	server := api.NewServer(api.Config{
		Addr:  cfg.Server.Addr,
		Debug: cfg.App.Debug,
		CORS:  cors,
	}, log, api.Deps{
		Registry:  registry,
		Scheduler: scheduler,
		Tasks:     recordStore,
		Records:   recordStore,
		DeleteAll: recordStore.DeleteTask,
		Hub:       hub,
	})

	errCh := make(chan error, 1)
	go func() {
		if srvErr := server.Start(); srvErr != nil {
			errCh <- srvErr
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("httpd: server error: %w", err)
	case <-sigCtx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("httpd: shutdown: %w", err)
	}
	log.Info("control api stopped")
	return nil
}
