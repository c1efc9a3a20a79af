// Package domain holds the data types shared across the crawl engine:
// task configuration, URL records, and the lifecycle/state enums that
// describe a task at runtime.
package domain

import "time"

// Strategy selects the frontier's traversal order.
type Strategy string

const (
	StrategyBreadth  Strategy = "breadth"
	StrategyDepth    Strategy = "depth"
	StrategyPriority Strategy = "priority"
)

// Lifecycle is the task-level state machine.
type Lifecycle string

const (
	LifecyclePending   Lifecycle = "pending"
	LifecycleRunning   Lifecycle = "running"
	LifecyclePaused    Lifecycle = "paused"
	LifecycleStopped   Lifecycle = "stopped"
	LifecycleCompleted Lifecycle = "completed"
	LifecycleFailed    Lifecycle = "failed"
)

// FrontierState is the independent pause toggle for new link discovery.
type FrontierState string

const (
	FrontierActive FrontierState = "active"
	FrontierPaused FrontierState = "paused"
)

// Defaults and bounds for Task Configuration fields.
const (
	MinMaxDepth    = 1
	MaxMaxDepth    = 10
	MinWorkerCount = 1
	MaxWorkerCount = 10

	DefaultUserAgent = "crawlhive/1.0"
)

// TaskConfig is the immutable-while-running configuration for one crawl task.
type TaskConfig struct {
	ID               string    `db:"id"                 json:"id"`
	SeedURL          string    `db:"seed_url"            json:"seed_url"`
	Strategy         Strategy  `db:"strategy"            json:"strategy"`
	MaxDepth         int       `db:"max_depth"           json:"max_depth"`
	WorkerCount      int       `db:"worker_count"        json:"worker_count"`
	RequestInterval  float64   `db:"request_interval"    json:"request_interval"`
	RetryTimes       int       `db:"retry_times"         json:"retry_times"`
	RespectRobots    bool      `db:"respect_robots"      json:"respect_robots"`
	AllowCrossDomain bool      `db:"allow_cross_domain"  json:"allow_cross_domain"`
	UserAgent        string    `db:"user_agent"          json:"user_agent"`
	Schedule         *string   `db:"schedule"            json:"schedule,omitempty"`
	CreatedAt        time.Time `db:"created_at"          json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"          json:"updated_at"`
}

// Validate checks the invariants from the data model section.
func (c *TaskConfig) Validate() error {
	switch {
	case c.SeedURL == "":
		return ErrMissingSeedURL
	case c.Strategy != StrategyBreadth && c.Strategy != StrategyDepth && c.Strategy != StrategyPriority:
		return ErrInvalidStrategy
	case c.MaxDepth < MinMaxDepth || c.MaxDepth > MaxMaxDepth:
		return ErrInvalidMaxDepth
	case c.WorkerCount < MinWorkerCount || c.WorkerCount > MaxWorkerCount:
		return ErrInvalidWorkerCount
	case c.RequestInterval < 0:
		return ErrInvalidRequestInterval
	case c.RetryTimes < 0:
		return ErrInvalidRetryTimes
	}
	return nil
}

// WithDefaults fills zero-value fields with their documented defaults.
func (c TaskConfig) WithDefaults() TaskConfig {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Strategy == "" {
		c.Strategy = StrategyBreadth
	}
	return c
}
