package task

import "github.com/lattice-run/crawlhive/internal/domain"

// The Controller itself implements worker.Reporter so every worker in its
// pool reports counters and per-worker state back through the same lock
// that guards Snapshot reads.

func (c *Controller) IncDiscovered() {
	c.mu.Lock()
	c.counters.TotalDiscovered++
	c.mu.Unlock()
}

func (c *Controller) IncCompleted(bytes int64, responseTimeSeconds float64) {
	c.mu.Lock()
	c.counters.Completed++
	c.counters.Bytes += bytes
	c.counters.ResponseTimeSumSec += responseTimeSeconds
	c.mu.Unlock()
}

func (c *Controller) IncFailed() {
	c.mu.Lock()
	c.counters.Failed++
	c.mu.Unlock()
}

func (c *Controller) IncRobotsBlocked() {
	c.mu.Lock()
	c.counters.RobotsBlocked++
	c.mu.Unlock()
}

func (c *Controller) IncCrossDomainBlocked() {
	c.mu.Lock()
	c.counters.CrossDomainBlocked++
	c.mu.Unlock()
}

func (c *Controller) IncDepthBlocked() {
	c.mu.Lock()
	c.counters.DepthBlocked++
	c.mu.Unlock()
}

func (c *Controller) IncDuplicateRejected() {
	c.mu.Lock()
	c.counters.DuplicateRejected++
	c.mu.Unlock()
}

func (c *Controller) SetWorkerState(index int, status domain.WorkerStatus, currentURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.workerStates) {
		return
	}
	state := &c.workerStates[index]
	state.Status = status
	state.CurrentURL = currentURL
}
