package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteSnapshotEvent writes payload as one SSE event to w, the way the
// crawler's sse package writes its Event frames: an "event:" line naming
// eventType (omitted when eventType is empty), then a JSON "data:" line, then
// a blank line. Intended for use from the Control API's streaming handler.
func WriteSnapshotEvent(w io.Writer, eventType string, payload any) error {
	if eventType != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
			return fmt.Errorf("write event type: %w", err)
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event data: %w", err)
	}
	return nil
}

// WriteHeartbeat writes an SSE comment line to keep a connection alive
// through idle proxies, matching the crawler's heartbeat framing.
func WriteHeartbeat(w io.Writer) error {
	if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}
