// Package connectors defines how queued tasks are handed to data collection.
package connectors

import "context"

// Job is one task handed to a collector.
type Job struct {
	TaskID     string         `json:"task_id"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Shape      string         `json:"shape"`
	Parameters map[string]any `json:"parameters"`
}

// ExecResult holds the result of a collection.
type ExecResult struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// OK reports whether the collection succeeded.
func (r *ExecResult) OK() bool { return r != nil && r.ExitCode == 0 }

// Connector hands jobs to the acquisition side.
type Connector interface {
	// Name returns the connector identifier.
	Name() string

	// Collect runs one job and returns its result. A non-nil error means the
	// job could not be started at all.
	Collect(ctx context.Context, job Job) (*ExecResult, error)
}
