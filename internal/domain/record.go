package domain

import "time"

// RecordStatus is the terminal or pending state of a URL Record.
type RecordStatus string

const (
	RecordPending       RecordStatus = "pending"
	RecordCompleted     RecordStatus = "completed"
	RecordFailed        RecordStatus = "failed"
	RecordRobotsBlocked RecordStatus = "robots_blocked"
)

// IsTerminal reports whether the status is completed, failed, or robots_blocked.
func (s RecordStatus) IsTerminal() bool {
	return s == RecordCompleted || s == RecordFailed || s == RecordRobotsBlocked
}

// URLRecord is one row per unique (task_id, normalized url).
type URLRecord struct {
	TaskID              string       `db:"task_id"               json:"task_id"`
	URL                 string       `db:"url"                   json:"url"`
	Depth               int          `db:"depth"                 json:"depth"`
	Status              RecordStatus `db:"status"                json:"status"`
	StatusCode          *int         `db:"status_code"           json:"status_code,omitempty"`
	ResponseTimeSeconds *float64     `db:"response_time_seconds" json:"response_time_seconds,omitempty"`
	FileSizeBytes       *int64       `db:"file_size_bytes"       json:"file_size_bytes,omitempty"`
	ContentType         *string      `db:"content_type"          json:"content_type,omitempty"`
	Title               *string      `db:"title"                 json:"title,omitempty"`
	Author              *string      `db:"author"                json:"author,omitempty"`
	Description         *string      `db:"description"           json:"description,omitempty"`
	Keywords            *string      `db:"keywords"               json:"keywords,omitempty"`
	PublishTime         *string      `db:"publish_time"          json:"publish_time,omitempty"`
	ErrorMessage         *string     `db:"error_message"          json:"error_message,omitempty"`
	CreatedAt           time.Time    `db:"created_at"             json:"created_at"`
	CompletedAt         *time.Time   `db:"completed_at"           json:"completed_at,omitempty"`
}

// Outcome carries the result of a fetch+extract pass for Finalize.
type Outcome struct {
	Status              RecordStatus
	StatusCode          int
	ResponseTimeSeconds float64
	FileSizeBytes       int64
	ContentType         string
	Title               string
	Author              string
	Description         string
	Keywords            string
	PublishTime         string
	ErrorMessage        string
}

// RecordFilter narrows a ListURLs query.
type RecordFilter struct {
	Status      RecordStatus
	URLPrefix   string
	Extension   string
	ContentType string
}

// Pagination bounds a ListURLs query.
type Pagination struct {
	Limit  int
	Offset int
}

// AggregateStats summarizes a task's records for the /tasks/{id}/stats endpoint.
type AggregateStats struct {
	ByStatus      map[RecordStatus]int64 `json:"by_status"`
	ByContentType map[string]int64       `json:"by_content_type"`
	ByDomain      map[string]int64       `json:"by_domain"`
}
