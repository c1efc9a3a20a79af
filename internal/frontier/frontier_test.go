package frontier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-run/crawlhive/internal/domain"
)

func TestOfferAcceptsAndDedupes(t *testing.T) {
	f := New(domain.StrategyBreadth, 5, true, "https://example.com")

	require.Equal(t, Accepted, f.Offer("https://example.com/a", 1))
	require.Equal(t, Duplicate, f.Offer("https://example.com/a", 1))
	assert.Equal(t, 1, f.Size())
}

func TestOfferDepthBlocked(t *testing.T) {
	f := New(domain.StrategyBreadth, 1, true, "https://example.com")

	assert.Equal(t, DepthBlocked, f.Offer("https://example.com/a", 2))
	assert.Equal(t, 0, f.Size())
}

func TestOfferCrossDomainBlocked(t *testing.T) {
	f := New(domain.StrategyBreadth, 5, false, "https://example.com")

	assert.Equal(t, Accepted, f.Offer("https://example.com/a", 1))
	assert.Equal(t, CrossDomainBlocked, f.Offer("https://other.com/b", 1))
}

func TestOfferCrossDomainAllowed(t *testing.T) {
	f := New(domain.StrategyBreadth, 5, true, "https://example.com")

	assert.Equal(t, Accepted, f.Offer("https://other.com/b", 1))
}

func TestOfferMalformed(t *testing.T) {
	f := New(domain.StrategyBreadth, 5, true, "https://example.com")

	assert.Equal(t, Malformed, f.Offer("://not-a-url", 1))
}

func TestPauseBlocksOffer(t *testing.T) {
	f := New(domain.StrategyBreadth, 5, true, "https://example.com")
	f.Pause()
	assert.True(t, f.Paused())

	assert.Equal(t, FrontierPausedResult, f.Offer("https://example.com/a", 1))

	f.Resume()
	assert.False(t, f.Paused())
	assert.Equal(t, Accepted, f.Offer("https://example.com/a", 1))
}

func TestFIFOOrdering(t *testing.T) {
	f := New(domain.StrategyBreadth, 5, true, "https://example.com")
	require.Equal(t, Accepted, f.Offer("https://example.com/1", 1))
	require.Equal(t, Accepted, f.Offer("https://example.com/2", 1))
	require.Equal(t, Accepted, f.Offer("https://example.com/3", 1))

	first, ok := f.Poll()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/1", first.URL)

	second, ok := f.Poll()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/2", second.URL)
}

func TestLIFOOrdering(t *testing.T) {
	f := New(domain.StrategyDepth, 5, true, "https://example.com")
	require.Equal(t, Accepted, f.Offer("https://example.com/1", 1))
	require.Equal(t, Accepted, f.Offer("https://example.com/2", 1))
	require.Equal(t, Accepted, f.Offer("https://example.com/3", 1))

	first, ok := f.Poll()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/3", first.URL)
}

func TestPriorityOrdering(t *testing.T) {
	f := New(domain.StrategyPriority, 5, true, "https://example.com")
	require.Equal(t, Accepted, f.Offer("https://example.com/image.png", 1))
	require.Equal(t, Accepted, f.Offer("https://example.com/data.json", 1))
	require.Equal(t, Accepted, f.Offer("https://example.com/page.html", 1))

	first, ok := f.Poll()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/page.html", first.URL)

	second, ok := f.Poll()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/image.png", second.URL)

	third, ok := f.Poll()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/data.json", third.URL)
}

func TestPollEmpty(t *testing.T) {
	f := New(domain.StrategyBreadth, 5, true, "https://example.com")
	_, ok := f.Poll()
	assert.False(t, ok)
	assert.True(t, f.Empty())
}

func TestMarkSeenPreventsOffer(t *testing.T) {
	f := New(domain.StrategyBreadth, 5, true, "https://example.com")
	f.MarkSeen("https://example.com/already-done")

	assert.Equal(t, Duplicate, f.Offer("https://example.com/already-done", 1))
}

func TestResetClearsQueueKeepsSeen(t *testing.T) {
	f := New(domain.StrategyBreadth, 5, true, "https://example.com")
	require.Equal(t, Accepted, f.Offer("https://example.com/a", 1))
	f.Reset(domain.StrategyBreadth)

	assert.Equal(t, 0, f.Size())
	assert.Equal(t, Duplicate, f.Offer("https://example.com/a", 1))
}
