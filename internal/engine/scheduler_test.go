package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-run/crawlhive/internal/domain"
)

func TestSchedulerFireStartsTerminalTask(t *testing.T) {
	srv := testServer(t)
	reg := newTestRegistry()

	schedule := "* * * * *"
	cfg := testCfg("sched1", srv.URL+"/")
	cfg.Schedule = &schedule
	require.NoError(t, reg.records.CreateTask(t.Context(), cfg))

	sched := NewScheduler(reg, reg.records, reg.logger)
	sched.ctx = t.Context()

	sched.fire("sched1")

	ctrl, err := reg.GetController("sched1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return ctrl.Lifecycle() == domain.LifecycleCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSchedulerFireSkipsAlreadyRunning(t *testing.T) {
	srv := testServer(t)
	reg := newTestRegistry()
	cfg := testCfg("sched2", srv.URL+"/")
	require.NoError(t, reg.records.CreateTask(t.Context(), cfg))

	_, err := reg.StartTask(t.Context(), cfg)
	require.NoError(t, err)

	sched := NewScheduler(reg, reg.records, reg.logger)
	sched.ctx = t.Context()

	// fire should not panic or error even though the task is already live;
	// StartTask's duplicate rejection is logged and swallowed.
	sched.fire("sched2")
	assert.NotPanics(t, func() { sched.fire("sched2") })
}

func TestSchedulerReloadRegistersAndUnscheduleRemovesEntry(t *testing.T) {
	srv := testServer(t)
	reg := newTestRegistry()

	schedule := "*/5 * * * *"
	cfg := testCfg("sched3", srv.URL+"/")
	cfg.Schedule = &schedule
	require.NoError(t, reg.records.CreateTask(t.Context(), cfg))

	sched := NewScheduler(reg, reg.records, reg.logger)
	sched.ctx = t.Context()

	require.NoError(t, sched.reload(t.Context()))
	sched.mu.Lock()
	_, ok := sched.entries["sched3"]
	sched.mu.Unlock()
	assert.True(t, ok)

	sched.Unschedule("sched3")
	sched.mu.Lock()
	_, ok = sched.entries["sched3"]
	sched.mu.Unlock()
	assert.False(t, ok)
}
