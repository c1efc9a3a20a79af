package worker

import "github.com/lattice-run/crawlhive/internal/domain"

// Reporter is how a Worker feeds results back to its owning Task Controller:
// counters and per-worker state. The controller holds the lock guarding
// these; Reporter implementations must be safe for concurrent use by every
// worker in the pool.
type Reporter interface {
	IncDiscovered()
	IncCompleted(bytes int64, responseTimeSeconds float64)
	IncFailed()
	IncRobotsBlocked()
	IncCrossDomainBlocked()
	IncDepthBlocked()
	IncDuplicateRejected()
	SetWorkerState(index int, status domain.WorkerStatus, currentURL string)
}
