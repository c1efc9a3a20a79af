package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/logger"
)

func TestBrokerDeliversFilteredSnapshots(t *testing.T) {
	b := NewBroker(logger.NewNoOp())
	b.Start(t.Context())
	defer b.Stop()

	events, cleanup := b.Subscribe(t.Context(), ForTask("task-a"))
	defer cleanup()

	b.Publish(domain.Snapshot{TaskID: "task-b"})
	b.Publish(domain.Snapshot{TaskID: "task-a", Lifecycle: domain.LifecycleRunning})

	select {
	case snap := <-events:
		assert.Equal(t, "task-a", snap.TaskID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for filtered snapshot")
	}
}

func TestBrokerClientCount(t *testing.T) {
	b := NewBroker(logger.NewNoOp())
	b.Start(t.Context())
	defer b.Stop()

	assert.Equal(t, 0, b.ClientCount())
	_, cleanup := b.Subscribe(t.Context(), nil)
	assert.Equal(t, 1, b.ClientCount())
	cleanup()

	require.Eventually(t, func() bool {
		return b.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMetricsObserveDeltaAccumulates(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Observe(domain.Snapshot{TaskID: "t1", Counters: domain.Counters{Completed: 3}})
	m.Observe(domain.Snapshot{TaskID: "t1", Counters: domain.Counters{Completed: 5}})

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "crawlhive_task_urls_completed_total" {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			assert.InDelta(t, 5, mf.GetMetric()[0].GetCounter().GetValue(), 0.001)
		}
	}
	assert.True(t, found, "expected completed-total metric to be registered")
}

func TestMetricsForgetRemovesLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Observe(domain.Snapshot{TaskID: "t1", Counters: domain.Counters{Completed: 1}})
	m.Forget("t1")

	m.mu.Lock()
	_, ok := m.last["t1"]
	m.mu.Unlock()
	assert.False(t, ok)
}
