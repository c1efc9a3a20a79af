// Package store defines the Record Store Adapter: the narrow interface the
// engine uses to persist task configurations and URL records, plus a
// Postgres implementation (the system of record), an optional write-only
// Elasticsearch mirror, and an in-memory implementation for tests.
package store

import (
	"context"
	"errors"

	"github.com/lattice-run/crawlhive/internal/domain"
)

// ErrNotFound is returned when a task configuration or record lookup misses.
var ErrNotFound = errors.New("store: not found")

// TaskStore persists Task Configurations.
type TaskStore interface {
	CreateTask(ctx context.Context, cfg domain.TaskConfig) error
	UpdateTask(ctx context.Context, cfg domain.TaskConfig) error
	GetTask(ctx context.Context, id string) (domain.TaskConfig, error)
	ListTasks(ctx context.Context) ([]domain.TaskConfig, error)
	DeleteTask(ctx context.Context, id string) error
}

// RecordStore persists URL Records for a task. All upserts are idempotent on
// the (task_id, url) key.
type RecordStore interface {
	UpsertPending(ctx context.Context, taskID, url string, depth int) error
	Finalize(ctx context.Context, taskID, url string, outcome domain.Outcome) error
	MarkRobotsBlocked(ctx context.Context, taskID, url string, depth int) error
	DeleteTaskRecords(ctx context.Context, taskID string) error
	ListURLs(ctx context.Context, taskID string, filter domain.RecordFilter, page domain.Pagination) ([]domain.URLRecord, error)
	AggregateStats(ctx context.Context, taskID string) (domain.AggregateStats, error)
	SeenURLs(ctx context.Context, taskID string) ([]string, error)
}

// Store is the full Record Store Adapter surface the engine depends on.
// DeleteTask must cascade a task configuration and its records atomically
// against the system of record (Postgres); a secondary mirror's failure to
// delete is logged, not fatal.
type Store interface {
	TaskStore
	RecordStore
	DeleteTask(ctx context.Context, id string) error
}

// Mirror receives the same finalize/mark events as the system of record. It
// is write-only: ListURLs/AggregateStats are always answered by the system of
// record, never by a Mirror. A nil Mirror is valid; callers should treat mirror errors as non-fatal.
type Mirror interface {
	IndexRecord(ctx context.Context, record domain.URLRecord) error
	DeleteTaskRecords(ctx context.Context, taskID string) error
}
