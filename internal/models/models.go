// Package models defines the persisted domain types of the task queue.
package models

import "time"

// TaskStatus represents the current state of a queued task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusClaimed   TaskStatus = "claimed"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is one beamline task in the queue.
type Task struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"seq"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Shape      string         `json:"shape"`
	RunNow     bool           `json:"run_now"`
	Parameters map[string]any `json:"parameters"`
	Status     TaskStatus     `json:"status"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	ClaimedBy  string         `json:"claimed_by,omitempty"`
	ClaimedAt  *time.Time     `json:"claimed_at,omitempty"`
}

// NewTask holds the fields supplied when a task is enqueued.
type NewTask struct {
	Type       string
	Label      string
	Shape      string
	RunNow     bool
	Parameters map[string]any
}

// Lease represents a temporary claim on a task with TTL.
type Lease struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	HolderID  string    `json:"holder_id"`
	TTLSec    int       `json:"ttl_sec"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Run represents one collector execution of a task.
type Run struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Connector string    `json:"connector"`
	Command   string    `json:"command"`
	Args      []string  `json:"args"`
	ExitCode  int       `json:"exit_code"`
	Stdout    string    `json:"stdout"`
	Stderr    string    `json:"stderr"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskID     string    `json:"task_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
