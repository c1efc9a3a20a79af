package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-run/crawlhive/internal/domain"
)

func TestMemoryStoreTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	cfg := domain.TaskConfig{ID: "t1", SeedURL: "https://example.com"}
	require.NoError(t, s.CreateTask(ctx, cfg))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.SeedURL)

	cfg.SeedURL = "https://example.org"
	require.NoError(t, s.UpdateTask(ctx, cfg))
	got, err = s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org", got.SeedURL)

	_, err = s.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteTask(ctx, "t1"))
	_, err = s.GetTask(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRecordFlow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateTask(ctx, domain.TaskConfig{ID: "t1"}))

	require.NoError(t, s.UpsertPending(ctx, "t1", "https://example.com/a", 1))

	require.NoError(t, s.Finalize(ctx, "t1", "https://example.com/a", domain.Outcome{
		Status:     domain.RecordCompleted,
		StatusCode: 200,
		Title:      "Example",
	}))

	records, err := s.ListURLs(ctx, "t1", domain.RecordFilter{}, domain.Pagination{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.RecordCompleted, records[0].Status)
	require.NotNil(t, records[0].Title)
	assert.Equal(t, "Example", *records[0].Title)

	stats, err := s.AggregateStats(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByStatus[domain.RecordCompleted])
	assert.Equal(t, int64(1), stats.ByDomain["example.com"])

	seen, err := s.SeenURLs(ctx, "t1")
	require.NoError(t, err)
	assert.Contains(t, seen, "https://example.com/a")
}

func TestMemoryStoreMarkRobotsBlocked(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateTask(ctx, domain.TaskConfig{ID: "t1"}))
	require.NoError(t, s.MarkRobotsBlocked(ctx, "t1", "https://example.com/blocked", 1))

	records, err := s.ListURLs(ctx, "t1", domain.RecordFilter{Status: domain.RecordRobotsBlocked}, domain.Pagination{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.RecordRobotsBlocked, records[0].Status)
}

func TestMemoryStoreListURLsPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateTask(ctx, domain.TaskConfig{ID: "t1"}))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.UpsertPending(ctx, "t1", "https://example.com/"+string(rune('a'+i)), 1))
	}

	page, err := s.ListURLs(ctx, "t1", domain.RecordFilter{}, domain.Pagination{Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = s.ListURLs(ctx, "t1", domain.RecordFilter{}, domain.Pagination{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}
