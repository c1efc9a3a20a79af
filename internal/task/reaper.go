package task

import (
	"context"
	"time"

	"github.com/lattice-run/crawlhive/internal/domain"
)

// reaper polls for (frontier empty && all workers idle) twice consecutively
// ~500ms apart and, on that condition, transitions running to completed.
func (c *Controller) reaper() {
	defer close(c.reaperDone)

	consecutiveIdle := 0
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.reaperStop:
			return
		case <-ticker.C:
			if c.Lifecycle() != domain.LifecycleRunning {
				continue
			}
			if c.isQuiescent() {
				consecutiveIdle++
			} else {
				consecutiveIdle = 0
			}
			if consecutiveIdle >= 2 {
				c.completeFromReaper()
				return
			}
		}
	}
}

func (c *Controller) isQuiescent() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.frontier.Empty() {
		return false
	}
	for _, ws := range c.workerStates {
		if ws.Status == domain.WorkerFetching {
			return false
		}
	}
	return true
}

func (c *Controller) completeFromReaper() {
	c.mu.Lock()
	if c.lifecycle != domain.LifecycleRunning {
		c.mu.Unlock()
		return
	}
	c.lifecycle = domain.LifecycleCompleted
	c.mu.Unlock()

	c.runCancel()
	c.publish()
}

// snapshotTicker pushes a Snapshot to the publisher every snapshotTickInterval
// while ctx is live, mirroring how the worker pool exposes Stats() and the
// teacher's SSE broker fans out job events.
func (c *Controller) snapshotTicker(ctx context.Context) {
	ticker := time.NewTicker(snapshotTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.publish()
		}
	}
}
