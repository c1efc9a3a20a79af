package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/normalize"
)

// Connection pool defaults for the Postgres system of record.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

// PostgresConfig holds connection parameters for the system of record.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewPostgresConnection opens and verifies a pooled connection to Postgres.
func NewPostgresConnection(cfg PostgresConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// Schema is the logical DDL for the Postgres system of record. It is not
// executed automatically; operators apply it via migration tooling of their
// choice.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id                 TEXT PRIMARY KEY,
	seed_url           TEXT NOT NULL,
	strategy           TEXT NOT NULL,
	max_depth          INTEGER NOT NULL,
	worker_count       INTEGER NOT NULL,
	request_interval   DOUBLE PRECISION NOT NULL,
	retry_times        INTEGER NOT NULL,
	respect_robots     BOOLEAN NOT NULL,
	allow_cross_domain BOOLEAN NOT NULL,
	user_agent         TEXT NOT NULL,
	schedule           TEXT,
	lifecycle          TEXT NOT NULL DEFAULT 'pending',
	frontier_state     TEXT NOT NULL DEFAULT 'active',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS url_records (
	task_id               TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	url                   TEXT NOT NULL,
	depth                 INTEGER NOT NULL,
	status                TEXT NOT NULL,
	status_code           INTEGER,
	response_time_seconds DOUBLE PRECISION,
	file_size_bytes       BIGINT,
	content_type          TEXT,
	title                 TEXT,
	author                TEXT,
	description           TEXT,
	keywords              TEXT,
	publish_time          TEXT,
	error_message         TEXT,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at          TIMESTAMPTZ,
	PRIMARY KEY (task_id, url)
);

CREATE INDEX IF NOT EXISTS idx_url_records_task_status ON url_records (task_id, status);
CREATE INDEX IF NOT EXISTS idx_url_records_content_type ON url_records (task_id, content_type);
`

// taskColumns lists the tasks columns that domain.TaskConfig maps; the
// lifecycle and frontier_state columns have no field to scan into.
const taskColumns = `id, seed_url, strategy, max_depth, worker_count, request_interval,
	retry_times, respect_robots, allow_cross_domain, user_agent, schedule, created_at, updated_at`

// PostgresStore is the system-of-record Store implementation.
type PostgresStore struct {
	db     *sqlx.DB
	mirror Mirror
}

// NewPostgresStore wraps db. mirror is optional (nil disables secondary
// indexing) and receives the same finalize/mark events as Postgres; mirror
// failures are swallowed, since Postgres alone must satisfy DeleteTask.
func NewPostgresStore(db *sqlx.DB, mirror Mirror) *PostgresStore {
	return &PostgresStore{db: db, mirror: mirror}
}

func (s *PostgresStore) CreateTask(ctx context.Context, cfg domain.TaskConfig) error {
	query := `
		INSERT INTO tasks (id, seed_url, strategy, max_depth, worker_count, request_interval,
			retry_times, respect_robots, allow_cross_domain, user_agent, schedule, lifecycle, frontier_state)
		VALUES (:id, :seed_url, :strategy, :max_depth, :worker_count, :request_interval,
			:retry_times, :respect_robots, :allow_cross_domain, :user_agent, :schedule, 'pending', 'active')
	`
	_, err := s.db.NamedExecContext(ctx, query, cfg)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, cfg domain.TaskConfig) error {
	query := `
		UPDATE tasks SET
			seed_url = :seed_url, strategy = :strategy, max_depth = :max_depth,
			worker_count = :worker_count, request_interval = :request_interval,
			retry_times = :retry_times, respect_robots = :respect_robots,
			allow_cross_domain = :allow_cross_domain, user_agent = :user_agent,
			schedule = :schedule, updated_at = NOW()
		WHERE id = :id
	`
	result, err := s.db.NamedExecContext(ctx, query, cfg)
	return requireRowsAffected(result, err, ErrNotFound)
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (domain.TaskConfig, error) {
	var cfg domain.TaskConfig
	err := s.db.GetContext(ctx, &cfg, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TaskConfig{}, ErrNotFound
	}
	if err != nil {
		return domain.TaskConfig{}, fmt.Errorf("get task: %w", err)
	}
	return cfg, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context) ([]domain.TaskConfig, error) {
	var configs []domain.TaskConfig
	if err := s.db.SelectContext(ctx, &configs, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return configs, nil
}

// DeleteTask cascades to url_records via the foreign key. Postgres is the
// only store this must succeed against; a configured mirror's deletion is
// attempted but not required for success.
func (s *PostgresStore) DeleteTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if rowErr := requireRowsAffected(result, err, ErrNotFound); rowErr != nil {
		return rowErr
	}
	if s.mirror != nil {
		_ = s.mirror.DeleteTaskRecords(ctx, id)
	}
	return nil
}

func (s *PostgresStore) UpsertPending(ctx context.Context, taskID, url string, depth int) error {
	query := `
		INSERT INTO url_records (task_id, url, depth, status)
		VALUES ($1, $2, $3, 'pending')
		ON CONFLICT (task_id, url) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, taskID, url, depth)
	if err != nil {
		return fmt.Errorf("upsert pending record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Finalize(ctx context.Context, taskID, url string, outcome domain.Outcome) error {
	query := `
		INSERT INTO url_records (task_id, url, depth, status, status_code, response_time_seconds,
			file_size_bytes, content_type, title, author, description, keywords, publish_time,
			error_message, completed_at)
		VALUES ($1, $2, 0, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (task_id, url) DO UPDATE SET
			status = EXCLUDED.status,
			status_code = EXCLUDED.status_code,
			response_time_seconds = EXCLUDED.response_time_seconds,
			file_size_bytes = EXCLUDED.file_size_bytes,
			content_type = EXCLUDED.content_type,
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			description = EXCLUDED.description,
			keywords = EXCLUDED.keywords,
			publish_time = EXCLUDED.publish_time,
			error_message = EXCLUDED.error_message,
			completed_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, taskID, url, outcome.Status, outcome.StatusCode,
		outcome.ResponseTimeSeconds, outcome.FileSizeBytes, nullIfEmpty(outcome.ContentType),
		nullIfEmpty(outcome.Title), nullIfEmpty(outcome.Author), nullIfEmpty(outcome.Description),
		nullIfEmpty(outcome.Keywords), nullIfEmpty(outcome.PublishTime), nullIfEmpty(outcome.ErrorMessage))
	if err != nil {
		return fmt.Errorf("finalize record: %w", err)
	}

	if s.mirror != nil {
		record := domain.URLRecord{
			TaskID:      taskID,
			URL:         url,
			Status:      outcome.Status,
			ContentType: stringPtrOrNil(outcome.ContentType),
			Title:       stringPtrOrNil(outcome.Title),
		}
		_ = s.mirror.IndexRecord(ctx, record)
	}
	return nil
}

func (s *PostgresStore) MarkRobotsBlocked(ctx context.Context, taskID, url string, depth int) error {
	query := `
		INSERT INTO url_records (task_id, url, depth, status, completed_at)
		VALUES ($1, $2, $3, 'robots_blocked', NOW())
		ON CONFLICT (task_id, url) DO UPDATE SET status = 'robots_blocked', completed_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, taskID, url, depth)
	if err != nil {
		return fmt.Errorf("mark robots blocked: %w", err)
	}
	if s.mirror != nil {
		record := domain.URLRecord{TaskID: taskID, URL: url, Depth: depth, Status: domain.RecordRobotsBlocked}
		_ = s.mirror.IndexRecord(ctx, record)
	}
	return nil
}

func (s *PostgresStore) DeleteTaskRecords(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM url_records WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task records: %w", err)
	}
	if s.mirror != nil {
		_ = s.mirror.DeleteTaskRecords(ctx, taskID)
	}
	return nil
}

func (s *PostgresStore) ListURLs(ctx context.Context, taskID string, filter domain.RecordFilter, page domain.Pagination) ([]domain.URLRecord, error) {
	whereClause, args := buildRecordWhere(taskID, filter)

	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	argIdx := len(args) - 1

	query := fmt.Sprintf(`
		SELECT * FROM url_records %s
		ORDER BY created_at
		LIMIT $%d OFFSET $%d
	`, whereClause, argIdx, argIdx+1)

	var records []domain.URLRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list url records: %w", err)
	}
	if records == nil {
		records = []domain.URLRecord{}
	}
	return records, nil
}

func buildRecordWhere(taskID string, filter domain.RecordFilter) (string, []any) {
	conditions := []string{"task_id = $1"}
	args := []any{taskID}
	idx := 2

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}
	if filter.URLPrefix != "" {
		conditions = append(conditions, fmt.Sprintf("url LIKE $%d", idx))
		args = append(args, filter.URLPrefix+"%")
		idx++
	}
	if filter.Extension != "" {
		conditions = append(conditions, fmt.Sprintf("url LIKE $%d", idx))
		args = append(args, "%"+filter.Extension)
		idx++
	}
	if filter.ContentType != "" {
		conditions = append(conditions, fmt.Sprintf("content_type ILIKE $%d", idx))
		args = append(args, "%"+filter.ContentType+"%")
		idx++
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (s *PostgresStore) AggregateStats(ctx context.Context, taskID string) (domain.AggregateStats, error) {
	stats := domain.AggregateStats{
		ByStatus:      make(map[domain.RecordStatus]int64),
		ByContentType: make(map[string]int64),
		ByDomain:      make(map[string]int64),
	}

	statusRows, err := s.db.QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM url_records WHERE task_id = $1 GROUP BY status`, taskID)
	if err != nil {
		return stats, fmt.Errorf("aggregate by status: %w", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var status domain.RecordStatus
		var count int64
		if err := statusRows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan status row: %w", err)
		}
		stats.ByStatus[status] = count
	}

	ctRows, err := s.db.QueryxContext(ctx,
		`SELECT content_type, COUNT(*) FROM url_records WHERE task_id = $1 AND content_type IS NOT NULL GROUP BY content_type`, taskID)
	if err != nil {
		return stats, fmt.Errorf("aggregate by content type: %w", err)
	}
	defer ctRows.Close()
	for ctRows.Next() {
		var contentType string
		var count int64
		if err := ctRows.Scan(&contentType, &count); err != nil {
			return stats, fmt.Errorf("scan content type row: %w", err)
		}
		stats.ByContentType[contentType] = count
	}

	urlRows, err := s.db.QueryxContext(ctx, `SELECT url FROM url_records WHERE task_id = $1`, taskID)
	if err != nil {
		return stats, fmt.Errorf("aggregate by domain: %w", err)
	}
	defer urlRows.Close()
	for urlRows.Next() {
		var url string
		if err := urlRows.Scan(&url); err != nil {
			return stats, fmt.Errorf("scan url row: %w", err)
		}
		if host, err := normalize.Host(url); err == nil {
			stats.ByDomain[host]++
		}
	}

	return stats, nil
}

func (s *PostgresStore) SeenURLs(ctx context.Context, taskID string) ([]string, error) {
	var urls []string
	query := `SELECT url FROM url_records WHERE task_id = $1 AND status IN ('completed', 'failed', 'robots_blocked')`
	if err := s.db.SelectContext(ctx, &urls, query, taskID); err != nil {
		return nil, fmt.Errorf("seen urls: %w", err)
	}
	return urls, nil
}

func requireRowsAffected(result sql.Result, err error, notFound error) error {
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
