package telemetry

import "github.com/lattice-run/crawlhive/internal/domain"

// Hub fans a Task Controller's Publish calls out to both the Prometheus
// registry and the SSE broker, so a Controller only needs one
// task.Publisher dependency to feed both telemetry surfaces.
type Hub struct {
	Metrics *Metrics
	Broker  *Broker
}

// NewHub builds a Hub wrapping metrics and broker. Either may be nil, in
// which case that surface is skipped.
func NewHub(metrics *Metrics, broker *Broker) *Hub {
	return &Hub{Metrics: metrics, Broker: broker}
}

// Publish implements task.Publisher.
func (h *Hub) Publish(snapshot domain.Snapshot) {
	if h.Metrics != nil {
		h.Metrics.Observe(snapshot)
	}
	if h.Broker != nil {
		h.Broker.Publish(snapshot)
	}
}
