// Package task provides the asynchronous tool-invocation queue.
//
// types.go - Task value object and status machine
//
// This file contains:
// - Status enum with monotonic terminal semantics
// - Task, one queued tool invocation
// - Result and Snapshot shapes returned to callers
//
// Status and the cancellation flag are atomics so hot-path polling never
// observes a torn write; everything else on a Task is guarded by the
// queue lock.

package task

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Status is the lifecycle state of a task. Transitions only move
// forward: Pending -> Running -> one terminal status, never revisited.
type Status int32

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
	StatusTimedOut
)

// Terminal reports whether no further transition can occur
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result is the outcome payload of a terminal task
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Task represents one queued tool invocation
type Task struct {
	ID       string
	ToolName string
	// Params is the opaque structured input, passed through verbatim
	Params  json.RawMessage
	Timeout time.Duration

	status          atomic.Int32
	cancelRequested atomic.Bool
	progress        atomic.Int32

	// Guarded by the queue lock
	SubmittedAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Result      *Result
}

// Status returns the current lifecycle state
func (t *Task) Status() Status {
	return Status(t.status.Load())
}

// CancelRequested reports whether cancellation has been requested
func (t *Task) CancelRequested() bool {
	return t.cancelRequested.Load()
}

// RequestCancel sets the cooperative cancellation flag
func (t *Task) RequestCancel() {
	t.cancelRequested.Store(true)
}

// Progress returns the best-effort 0-100 progress value
func (t *Task) Progress() int {
	return int(t.progress.Load())
}

// SetProgress stores a clamped 0-100 progress value
func (t *Task) SetProgress(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	t.progress.Store(int32(pct))
}

// Snapshot is a point-in-time read-only view of a task
type Snapshot struct {
	ID          string     `json:"task_id"`
	ToolName    string     `json:"tool_name"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	SubmittedAt time.Time  `json:"submitted_time"`
	StartedAt   *time.Time `json:"started_time,omitempty"`
	CompletedAt *time.Time `json:"completed_time,omitempty"`
	TimeoutMs   int64      `json:"timeout_ms"`
	Result      *Result    `json:"result,omitempty"`
}

// snapshotLocked builds a Snapshot. Caller holds the queue lock.
func (t *Task) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:          t.ID,
		ToolName:    t.ToolName,
		Status:      t.Status().String(),
		Progress:    t.Progress(),
		SubmittedAt: t.SubmittedAt,
		TimeoutMs:   t.Timeout.Milliseconds(),
		Result:      t.Result,
	}
	if !t.StartedAt.IsZero() {
		started := t.StartedAt
		snap.StartedAt = &started
	}
	if !t.CompletedAt.IsZero() {
		completed := t.CompletedAt
		snap.CompletedAt = &completed
	}
	return snap
}
