package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/normalize"
)

// MemoryStore is an in-process Store used by unit tests.
type MemoryStore struct {
	mu      sync.RWMutex
	tasks   map[string]domain.TaskConfig
	records map[string]map[string]domain.URLRecord // taskID -> url -> record
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:   make(map[string]domain.TaskConfig),
		records: make(map[string]map[string]domain.URLRecord),
	}
}

func (m *MemoryStore) CreateTask(_ context.Context, cfg domain.TaskConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[cfg.ID] = cfg
	if _, ok := m.records[cfg.ID]; !ok {
		m.records[cfg.ID] = make(map[string]domain.URLRecord)
	}
	return nil
}

func (m *MemoryStore) UpdateTask(_ context.Context, cfg domain.TaskConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[cfg.ID]; !ok {
		return ErrNotFound
	}
	m.tasks[cfg.ID] = cfg
	return nil
}

func (m *MemoryStore) GetTask(_ context.Context, id string) (domain.TaskConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.tasks[id]
	if !ok {
		return domain.TaskConfig{}, ErrNotFound
	}
	return cfg, nil
}

func (m *MemoryStore) ListTasks(_ context.Context) ([]domain.TaskConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.TaskConfig, 0, len(m.tasks))
	for _, cfg := range m.tasks {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.tasks, id)
	delete(m.records, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) UpsertPending(_ context.Context, taskID, url string, depth int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.recordsFor(taskID)
	if existing, ok := bucket[url]; ok {
		return nilIfPending(existing)
	}
	bucket[url] = domain.URLRecord{
		TaskID:    taskID,
		URL:       url,
		Depth:     depth,
		Status:    domain.RecordPending,
		CreatedAt: timeNow(),
	}
	return nil
}

func nilIfPending(_ domain.URLRecord) error { return nil }

func (m *MemoryStore) Finalize(_ context.Context, taskID, url string, outcome domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.recordsFor(taskID)
	record := bucket[url]
	record.TaskID = taskID
	record.URL = url
	record.Status = outcome.Status
	record.StatusCode = intPtr(outcome.StatusCode)
	record.ResponseTimeSeconds = floatPtr(outcome.ResponseTimeSeconds)
	record.FileSizeBytes = int64Ptr(outcome.FileSizeBytes)
	record.ContentType = stringPtrOrNil(outcome.ContentType)
	record.Title = stringPtrOrNil(outcome.Title)
	record.Author = stringPtrOrNil(outcome.Author)
	record.Description = stringPtrOrNil(outcome.Description)
	record.Keywords = stringPtrOrNil(outcome.Keywords)
	record.PublishTime = stringPtrOrNil(outcome.PublishTime)
	record.ErrorMessage = stringPtrOrNil(outcome.ErrorMessage)
	now := timeNow()
	record.CompletedAt = &now
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	bucket[url] = record
	return nil
}

func (m *MemoryStore) MarkRobotsBlocked(_ context.Context, taskID, url string, depth int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.recordsFor(taskID)
	now := timeNow()
	bucket[url] = domain.URLRecord{
		TaskID:      taskID,
		URL:         url,
		Depth:       depth,
		Status:      domain.RecordRobotsBlocked,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	return nil
}

func (m *MemoryStore) DeleteTaskRecords(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, taskID)
	return nil
}

func (m *MemoryStore) ListURLs(_ context.Context, taskID string, filter domain.RecordFilter, page domain.Pagination) ([]domain.URLRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]domain.URLRecord, 0)
	for _, record := range m.records[taskID] {
		if !matchesFilter(record, filter) {
			continue
		}
		matched = append(matched, record)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].URL < matched[j].URL })

	return paginate(matched, page), nil
}

func (m *MemoryStore) AggregateStats(_ context.Context, taskID string) (domain.AggregateStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := domain.AggregateStats{
		ByStatus:      make(map[domain.RecordStatus]int64),
		ByContentType: make(map[string]int64),
		ByDomain:      make(map[string]int64),
	}
	for _, record := range m.records[taskID] {
		stats.ByStatus[record.Status]++
		if record.ContentType != nil && *record.ContentType != "" {
			stats.ByContentType[*record.ContentType]++
		}
		if host, err := normalize.Host(record.URL); err == nil {
			stats.ByDomain[host]++
		}
	}
	return stats, nil
}

func (m *MemoryStore) SeenURLs(_ context.Context, taskID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	urls := make([]string, 0, len(m.records[taskID]))
	for _, record := range m.records[taskID] {
		if record.Status.IsTerminal() {
			urls = append(urls, record.URL)
		}
	}
	return urls, nil
}

func (m *MemoryStore) recordsFor(taskID string) map[string]domain.URLRecord {
	bucket, ok := m.records[taskID]
	if !ok {
		bucket = make(map[string]domain.URLRecord)
		m.records[taskID] = bucket
	}
	return bucket
}

func matchesFilter(record domain.URLRecord, filter domain.RecordFilter) bool {
	if filter.Status != "" && record.Status != filter.Status {
		return false
	}
	if filter.URLPrefix != "" && !strings.HasPrefix(record.URL, filter.URLPrefix) {
		return false
	}
	if filter.Extension != "" && !strings.HasSuffix(record.URL, filter.Extension) {
		return false
	}
	if filter.ContentType != "" {
		if record.ContentType == nil || !strings.Contains(*record.ContentType, filter.ContentType) {
			return false
		}
	}
	return true
}

func paginate(records []domain.URLRecord, page domain.Pagination) []domain.URLRecord {
	if page.Offset >= len(records) {
		return []domain.URLRecord{}
	}
	end := len(records)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return records[page.Offset:end]
}

func intPtr(v int) *int                { return &v }
func floatPtr(v float64) *float64      { return &v }
func int64Ptr(v int64) *int64          { return &v }
func stringPtrOrNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// timeNow is isolated so tests can stub it if determinism is ever needed;
// today it is a direct pass-through.
var timeNow = func() time.Time { return time.Now().UTC() }
