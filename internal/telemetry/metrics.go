// Package telemetry exposes a crawl task's runtime state to the outside
// world two ways: a Prometheus metrics registry updated on every Snapshot,
// and an SSE broker that fans the same Snapshot out to streaming clients.
//
// Grounded on the crawler's scheduler/v2/observability.Metrics (a
// promauto-registered *Metrics struct with init*Metrics helpers split by
// concern and Record*/Set* update methods) for the Prometheus half.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lattice-run/crawlhive/internal/domain"
)

const (
	metricsNamespace = "crawlhive"
	metricsSubsystem = "task"
)

// Metrics holds every Prometheus series the engine exposes, labeled by
// task_id so a single process serving many tenants still yields a useful
// /metrics scrape. Counter series can only be incremented, while
// domain.Counters is a cumulative snapshot, so Metrics tracks the last
// observed totals per task and Adds only the delta on each Observe.
type Metrics struct {
	discoveredTotal         *prometheus.CounterVec
	completedTotal          *prometheus.CounterVec
	failedTotal             *prometheus.CounterVec
	robotsBlockedTotal      *prometheus.CounterVec
	crossDomainBlockedTotal *prometheus.CounterVec
	depthBlockedTotal       *prometheus.CounterVec
	duplicateRejectedTotal  *prometheus.CounterVec
	bytesTotal              *prometheus.CounterVec
	frontierSize            *prometheus.GaugeVec
	workersActive           *prometheus.GaugeVec
	lifecycleState          *prometheus.GaugeVec

	mu   sync.Mutex
	last map[string]domain.Counters
}

// NewMetrics registers the task metrics against reg. A nil reg registers
// against prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		discoveredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "urls_discovered_total", Help: "Total URLs discovered by a task.",
		}, []string{"task_id"}),
		completedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "urls_completed_total", Help: "Total URLs successfully fetched and recorded.",
		}, []string{"task_id"}),
		failedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "urls_failed_total", Help: "Total URLs that failed after exhausting retries.",
		}, []string{"task_id"}),
		robotsBlockedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "urls_robots_blocked_total", Help: "Total URLs skipped by robots policy.",
		}, []string{"task_id"}),
		crossDomainBlockedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "urls_cross_domain_blocked_total", Help: "Total URLs rejected by the cross-domain policy.",
		}, []string{"task_id"}),
		depthBlockedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "urls_depth_blocked_total", Help: "Total URLs rejected for exceeding max depth.",
		}, []string{"task_id"}),
		duplicateRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "urls_duplicate_rejected_total", Help: "Total URLs rejected as already seen.",
		}, []string{"task_id"}),
		bytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "bytes_fetched_total", Help: "Total response bytes fetched.",
		}, []string{"task_id"}),
		frontierSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "frontier_size", Help: "Current number of URLs pending in the frontier.",
		}, []string{"task_id"}),
		workersActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "workers_fetching", Help: "Number of workers currently fetching a URL.",
		}, []string{"task_id"}),
		lifecycleState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "lifecycle_state", Help: "1 for the task's current lifecycle value, 0 for all others.",
		}, []string{"task_id", "lifecycle"}),
		last: make(map[string]domain.Counters),
	}
}

// lifecycleStates lists every lifecycle value so Observe can zero out the
// non-current ones; otherwise a stale "running=1" gauge would linger after
// a transition to "completed".
var lifecycleStates = []domain.Lifecycle{
	domain.LifecyclePending, domain.LifecycleRunning, domain.LifecyclePaused,
	domain.LifecycleStopped, domain.LifecycleCompleted, domain.LifecycleFailed,
}

// Observe updates every series from a Snapshot.
func (m *Metrics) Observe(snapshot domain.Snapshot) {
	id := snapshot.TaskID
	c := snapshot.Counters

	m.mu.Lock()
	prev := m.last[id]
	m.last[id] = c
	m.mu.Unlock()

	m.discoveredTotal.WithLabelValues(id).Add(float64(c.TotalDiscovered - prev.TotalDiscovered))
	m.completedTotal.WithLabelValues(id).Add(float64(c.Completed - prev.Completed))
	m.failedTotal.WithLabelValues(id).Add(float64(c.Failed - prev.Failed))
	m.robotsBlockedTotal.WithLabelValues(id).Add(float64(c.RobotsBlocked - prev.RobotsBlocked))
	m.crossDomainBlockedTotal.WithLabelValues(id).Add(float64(c.CrossDomainBlocked - prev.CrossDomainBlocked))
	m.depthBlockedTotal.WithLabelValues(id).Add(float64(c.DepthBlocked - prev.DepthBlocked))
	m.duplicateRejectedTotal.WithLabelValues(id).Add(float64(c.DuplicateRejected - prev.DuplicateRejected))
	m.bytesTotal.WithLabelValues(id).Add(float64(c.Bytes - prev.Bytes))

	m.frontierSize.WithLabelValues(id).Set(float64(snapshot.FrontierSize))

	fetching := 0
	for _, w := range snapshot.Workers {
		if w.Status == domain.WorkerFetching {
			fetching++
		}
	}
	m.workersActive.WithLabelValues(id).Set(float64(fetching))

	for _, l := range lifecycleStates {
		value := 0.0
		if l == snapshot.Lifecycle {
			value = 1
		}
		m.lifecycleState.WithLabelValues(id, string(l)).Set(value)
	}
}

// Forget removes a task's label values from every series, for when a task
// configuration is deleted and its metrics should stop being reported
// rather than linger at their last value forever.
func (m *Metrics) Forget(taskID string) {
	m.mu.Lock()
	delete(m.last, taskID)
	m.mu.Unlock()

	m.discoveredTotal.DeleteLabelValues(taskID)
	m.completedTotal.DeleteLabelValues(taskID)
	m.failedTotal.DeleteLabelValues(taskID)
	m.robotsBlockedTotal.DeleteLabelValues(taskID)
	m.crossDomainBlockedTotal.DeleteLabelValues(taskID)
	m.depthBlockedTotal.DeleteLabelValues(taskID)
	m.duplicateRejectedTotal.DeleteLabelValues(taskID)
	m.bytesTotal.DeleteLabelValues(taskID)
	m.frontierSize.DeleteLabelValues(taskID)
	m.workersActive.DeleteLabelValues(taskID)
	for _, l := range lifecycleStates {
		m.lifecycleState.DeleteLabelValues(taskID, string(l))
	}
}
