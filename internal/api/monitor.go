package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lattice-run/crawlhive/internal/apierr"
	"github.com/lattice-run/crawlhive/internal/engine"
	"github.com/lattice-run/crawlhive/internal/telemetry"
)

// MonitorCurrent handles GET /monitor/{id}/current.
func (h *handlers) MonitorCurrent(c *gin.Context) {
	snapshot, ok := h.registry.Snapshot(c.Param("id"))
	if !ok {
		apierr.Write(c, engine.ErrUnknownTask)
		return
	}
	apierr.OK(c, snapshot)
}

// MonitorStream handles GET /monitor/{id}/stream: an SSE feed of Snapshot
// updates for one task, with a heartbeat comment line to keep idle proxies
// from closing the connection.
func (h *handlers) MonitorStream(c *gin.Context) {
	taskID := c.Param("id")
	if h.hub == nil || h.hub.Broker == nil {
		apierr.BadRequest(c, "streaming is not enabled")
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	ctx := c.Request.Context()
	events, cleanup := h.hub.Broker.Subscribe(ctx, telemetry.ForTask(taskID))
	defer cleanup()

	if snapshot, ok := h.registry.Snapshot(taskID); ok {
		if err := telemetry.WriteSnapshotEvent(w, "snapshot", snapshot); err == nil && canFlush {
			flusher.Flush()
		}
	}

	heartbeat := time.NewTicker(telemetry.DefaultHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-events:
			if !ok {
				return
			}
			if err := telemetry.WriteSnapshotEvent(w, "snapshot", snapshot); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-heartbeat.C:
			if err := telemetry.WriteHeartbeat(w); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}
