package domain

// WorkerStatus is the runtime status of a single worker goroutine.
type WorkerStatus string

const (
	WorkerIdle     WorkerStatus = "idle"
	WorkerFetching WorkerStatus = "fetching"
	WorkerPaused   WorkerStatus = "paused"
	WorkerError    WorkerStatus = "error"
	WorkerStopped  WorkerStatus = "stopped"
)

// WorkerState is a snapshot of one worker's runtime status.
type WorkerState struct {
	Index     int          `json:"index"`
	Status    WorkerStatus `json:"status"`
	CurrentURL string      `json:"current_url,omitempty"`
	Completed int64        `json:"completed"`
	Failed    int64        `json:"failed"`
	Bytes     int64        `json:"bytes"`
}

// Counters are the task-wide aggregate counters described in §3.
type Counters struct {
	TotalDiscovered    int64 `json:"total_discovered"`
	Completed          int64 `json:"completed"`
	Failed             int64 `json:"failed"`
	RobotsBlocked      int64 `json:"robots_blocked"`
	Bytes              int64 `json:"bytes"`
	ResponseTimeSumSec float64 `json:"response_time_sum_seconds"`
	CrossDomainBlocked int64 `json:"cross_domain_blocked"`
	DepthBlocked       int64 `json:"depth_blocked"`
	DuplicateRejected  int64 `json:"duplicate_rejected"`
}

// AverageResponseTime returns the mean response time over completed fetches.
func (c Counters) AverageResponseTime() float64 {
	if c.Completed == 0 {
		return 0
	}
	return c.ResponseTimeSumSec / float64(c.Completed)
}

// Snapshot is a consistent read of a task's runtime state, served to
// monitor/stream/metrics consumers.
type Snapshot struct {
	TaskID        string        `json:"task_id"`
	Lifecycle     Lifecycle     `json:"lifecycle"`
	FrontierState FrontierState `json:"frontier_state"`
	Counters      Counters      `json:"counters"`
	Workers       []WorkerState `json:"workers"`
	FrontierSize  int           `json:"frontier_size"`
	TakenAt       int64         `json:"taken_at_unix_nano"`
}
