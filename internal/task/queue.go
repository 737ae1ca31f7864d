// Package task provides the asynchronous tool-invocation queue.
//
// queue.go - bounded-concurrency scheduler
//
// This file contains:
// - Queue, owning the scheduler goroutine and the shared task table
// - Submission, dispatch, cancellation and read-only snapshot APIs
// - The periodic sweep (timeout marking + retention eviction)
//
// The scheduler goroutine only schedules. Every accepted task executes
// on its own goroutine so a slow tool never starves scheduling. The
// task table is guarded by one mutex for all read/mutate access; the
// terminal status write happens in exactly one place (finishLocked),
// under that mutex, which closes the double-terminal-write race between
// the timeout sweep and a late tool return.

package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HyphaGroup/portcullis/internal/logger"
	"github.com/HyphaGroup/portcullis/internal/metrics"
	"github.com/HyphaGroup/portcullis/internal/validation"
	"github.com/google/uuid"
)

var (
	ErrUnknownTool  = errors.New("unknown tool")
	ErrQueueFull    = errors.New("task queue at capacity")
	ErrTaskNotFound = errors.New("task not found")
)

// Cancellation messages recorded as terminal results
const (
	msgCancelledBeforeExec = "Task cancelled before execution"
	msgCancelledDuringExec = "Task cancelled during execution"
)

// ToolExecutor is the external tool registry collaborator
type ToolExecutor interface {
	Has(name string) bool
	Execute(ctx context.Context, name string, params json.RawMessage) (*Result, error)
}

// Archiver receives terminal tasks at eviction time
type Archiver interface {
	Archive(snap Snapshot) error
}

// Config holds queue tuning parameters
type Config struct {
	MaxConcurrent   int           // concurrency ceiling for running tasks
	MaxQueued       int           // capacity ceiling for non-terminal tasks
	DefaultTimeout  time.Duration // applied when a caller submits zero
	LongOpThreshold time.Duration // timeouts above this route through the serialized executor
	Retention       time.Duration // how long terminal tasks stay visible
	SweepInterval   time.Duration // timeout/eviction sweep cadence
	PollInterval    time.Duration // scheduler pass cadence
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   4,
		MaxQueued:       64,
		DefaultTimeout:  2 * time.Minute,
		LongOpThreshold: 30 * time.Second,
		Retention:       10 * time.Minute,
		SweepInterval:   5 * time.Second,
		PollInterval:    50 * time.Millisecond,
	}
}

// Queue accepts tool-invocation requests, runs up to MaxConcurrent of
// them at a time, enforces per-task timeouts and retains results for a
// bounded window.
type Queue struct {
	cfg      Config
	tools    ToolExecutor
	serial   *SerialExecutor
	archiver Archiver

	mu      sync.Mutex
	tasks   map[string]*Task
	pending []string // FIFO of task IDs awaiting dispatch

	runningCount atomic.Int32

	wake   chan struct{}
	stopCh chan struct{}
	loopWg sync.WaitGroup
}

// NewQueue creates a queue backed by the given tool registry. The
// serialized executor may be nil, disabling long-op routing.
func NewQueue(cfg Config, tools ToolExecutor, serial *SerialExecutor) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.MaxQueued <= 0 {
		cfg.MaxQueued = DefaultConfig().MaxQueued
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if cfg.LongOpThreshold <= 0 {
		cfg.LongOpThreshold = DefaultConfig().LongOpThreshold
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}

	return &Queue{
		cfg:    cfg,
		tools:  tools,
		serial: serial,
		tasks:  make(map[string]*Task),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// SetArchiver installs an archive sink for evicted terminal tasks
func (q *Queue) SetArchiver(a Archiver) {
	q.archiver = a
}

// Start launches the scheduler goroutine
func (q *Queue) Start() {
	q.loopWg.Add(1)
	go q.loop()
	logger.Info("Task queue started (concurrency=%d, capacity=%d)", q.cfg.MaxConcurrent, q.cfg.MaxQueued)
}

// Shutdown stops the scheduler, then flags every still-non-terminal
// task for cancellation. It does not block on dispatched invocations.
func (q *Queue) Shutdown() {
	close(q.stopCh)
	q.loopWg.Wait()

	q.mu.Lock()
	for _, t := range q.tasks {
		if !t.Status().Terminal() {
			t.RequestCancel()
		}
	}
	q.mu.Unlock()
	logger.Info("Task queue stopped")
}

// Submit accepts a named tool invocation. It fails with no side effect
// when the tool is unknown or the non-terminal task count has reached
// the capacity ceiling. Zero timeout takes the configured default.
func (q *Queue) Submit(toolName string, params json.RawMessage, timeout time.Duration) (string, error) {
	if err := validation.ValidateToolName(toolName); err != nil {
		metrics.RecordTaskReject("invalid_name")
		return "", fmt.Errorf("%w: %v", ErrUnknownTool, err)
	}
	if !q.tools.Has(toolName) {
		metrics.RecordTaskReject("unknown_tool")
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, toolName)
	}
	if timeout <= 0 {
		timeout = q.cfg.DefaultTimeout
	}

	q.mu.Lock()
	active := 0
	for _, t := range q.tasks {
		if !t.Status().Terminal() {
			active++
		}
	}
	if active >= q.cfg.MaxQueued {
		q.mu.Unlock()
		metrics.RecordTaskReject("capacity")
		return "", fmt.Errorf("%w: %d active tasks", ErrQueueFull, active)
	}

	t := &Task{
		ID:          uuid.NewString(),
		ToolName:    toolName,
		Params:      params,
		Timeout:     timeout,
		SubmittedAt: time.Now().UTC(),
	}
	q.tasks[t.ID] = t
	q.pending = append(q.pending, t.ID)
	q.updateGaugesLocked()
	q.mu.Unlock()

	metrics.RecordTaskSubmit(toolName)
	q.notify()
	return t.ID, nil
}

// Cancel requests cancellation. A Pending task transitions to Cancelled
// immediately and never executes; a Running task only gets its flag set
// and transitions when the in-flight invocation observes it. Terminal
// tasks return false.
func (q *Queue) Cancel(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return false
	}

	switch t.Status() {
	case StatusPending:
		t.RequestCancel()
		q.finishLocked(t, StatusCancelled, &Result{Success: false, Message: msgCancelledBeforeExec})
		return true
	case StatusRunning:
		t.RequestCancel()
		return true
	default:
		return false
	}
}

// Get returns a snapshot of one task
func (q *Queue) Get(taskID string) (Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return Snapshot{}, ErrTaskNotFound
	}
	return t.snapshotLocked(), nil
}

// SetProgress updates a task's best-effort progress value
func (q *Queue) SetProgress(taskID string, pct int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	t.SetProgress(pct)
	return nil
}

// List returns task snapshots ordered newest-submitted-first
func (q *Queue) List(includeCompleted bool) []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snaps := make([]Snapshot, 0, len(q.tasks))
	for _, t := range q.tasks {
		if !includeCompleted && t.Status().Terminal() {
			continue
		}
		snaps = append(snaps, t.snapshotLocked())
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].SubmittedAt.After(snaps[j].SubmittedAt)
	})
	return snaps
}

// Stats returns pending, running and terminal counts, taken under the
// same lock that guards mutation so they are internally consistent.
func (q *Queue) Stats() (pending, running, completed int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.tasks {
		switch {
		case t.Status() == StatusPending:
			pending++
		case t.Status() == StatusRunning:
			running++
		case t.Status().Terminal():
			completed++
		}
	}
	return pending, running, completed
}

// notify wakes the scheduler without blocking
func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// loop is the scheduler goroutine: a bounded poll so shutdown stays
// observable, plus a wake channel so submissions dispatch promptly.
func (q *Queue) loop() {
	defer q.loopWg.Done()

	poll := time.NewTicker(q.cfg.PollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(q.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-q.wake:
			q.schedule()
		case <-poll.C:
			q.schedule()
		case <-sweep.C:
			q.runSweep()
		}
	}
}

// schedule dispatches runnable pending tasks up to the concurrency
// ceiling. Entries that already left Pending (cancelled while queued)
// are discarded, not re-queued.
func (q *Queue) schedule() {
	for {
		q.mu.Lock()
		if int(q.runningCount.Load()) >= q.cfg.MaxConcurrent {
			q.updateGaugesLocked()
			q.mu.Unlock()
			return
		}

		var next *Task
		for len(q.pending) > 0 {
			id := q.pending[0]
			q.pending = q.pending[1:]
			if t, ok := q.tasks[id]; ok && t.Status() == StatusPending {
				next = t
				break
			}
		}
		if next == nil {
			q.updateGaugesLocked()
			q.mu.Unlock()
			return
		}

		q.runningCount.Add(1)
		q.updateGaugesLocked()
		q.mu.Unlock()

		go q.runTask(next)
	}
}

// runTask executes one task on its own goroutine
func (q *Queue) runTask(t *Task) {
	defer func() {
		q.runningCount.Add(-1)
		q.notify()
	}()

	q.mu.Lock()
	if t.Status() != StatusPending {
		q.mu.Unlock()
		return
	}
	if t.CancelRequested() {
		q.finishLocked(t, StatusCancelled, &Result{Success: false, Message: msgCancelledBeforeExec})
		q.mu.Unlock()
		return
	}
	t.status.Store(int32(StatusRunning))
	t.StartedAt = time.Now().UTC()
	q.mu.Unlock()

	res, err := q.invoke(t)

	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case errors.Is(err, ErrWaitTimeout):
		q.finishLocked(t, StatusTimedOut, &Result{
			Success: false,
			Message: fmt.Sprintf("Task timed out after %v waiting for serialized execution", t.Timeout),
		})
	case t.CancelRequested():
		// Cancellation observed during execution overrides the tool result
		q.finishLocked(t, StatusCancelled, &Result{Success: false, Message: msgCancelledDuringExec})
	case errors.Is(err, context.DeadlineExceeded):
		q.finishLocked(t, StatusTimedOut, &Result{
			Success: false,
			Message: fmt.Sprintf("Task timed out after %v", t.Timeout),
		})
	case err != nil:
		q.finishLocked(t, StatusFailed, &Result{Success: false, Message: err.Error()})
	case res == nil:
		q.finishLocked(t, StatusFailed, &Result{Success: false, Message: "tool returned no result"})
	case res.Success:
		q.finishLocked(t, StatusCompleted, res)
	default:
		q.finishLocked(t, StatusFailed, res)
	}
}

// invoke runs the tool with a context carrying the task's deadline,
// cancellation and progress reporting. Declared timeouts above the
// long-op threshold route through the serialized executor with a wait
// bounded by the task's own timeout, not a shorter default; the
// serialized invocation gets the same task context, so a timed-out or
// cancelled task unwinds its tool instead of wedging the consumer.
func (q *Queue) invoke(t *Task) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.Timeout)
	defer cancel()
	ctx = WithProgressReporter(ctx, func(pct int) {
		_ = q.SetProgress(t.ID, pct)
	})

	// Fold the cooperative cancel flag into the context so the tool
	// observes Cancel mid-execution
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		tick := time.NewTicker(q.cfg.PollInterval)
		defer tick.Stop()
		for {
			select {
			case <-watchDone:
				return
			case <-tick.C:
				if t.CancelRequested() {
					cancel()
					return
				}
			}
		}
	}()

	if t.Timeout > q.cfg.LongOpThreshold && q.serial != nil {
		var execErr error
		res, err := q.serial.RunAndWait(func() *Result {
			r, e := q.tools.Execute(ctx, t.ToolName, t.Params)
			if e != nil {
				execErr = e
				return &Result{Success: false, Message: e.Error()}
			}
			return r
		}, t.Timeout)
		if err != nil {
			return nil, err
		}
		// RunAndWait returning means the fn completed, so execErr is
		// safely visible here
		if execErr != nil {
			return nil, execErr
		}
		return res, nil
	}

	return q.tools.Execute(ctx, t.ToolName, t.Params)
}

// runSweep marks over-deadline running tasks TimedOut and evicts
// terminal tasks past the retention window.
func (q *Queue) runSweep() {
	now := time.Now().UTC()
	var evicted []Snapshot

	q.mu.Lock()
	for id, t := range q.tasks {
		if t.Status() == StatusRunning && t.Timeout > 0 && now.Sub(t.StartedAt) > t.Timeout {
			t.RequestCancel()
			q.finishLocked(t, StatusTimedOut, &Result{
				Success: false,
				Message: fmt.Sprintf("Task timed out after %v", t.Timeout),
			})
		}

		if t.Status().Terminal() && !t.CompletedAt.IsZero() && now.Sub(t.CompletedAt) > q.cfg.Retention {
			evicted = append(evicted, t.snapshotLocked())
			delete(q.tasks, id)
		}
	}
	q.updateGaugesLocked()
	q.mu.Unlock()

	for _, snap := range evicted {
		if q.archiver != nil {
			if err := q.archiver.Archive(snap); err != nil {
				logger.Error("Failed to archive task %s: %v", snap.ID, err)
			}
		}
		logger.Info("Evicted task %s (%s, %s)", snap.ID, snap.ToolName, snap.Status)
	}
}

// finishLocked records the terminal transition. It is the only place a
// terminal status is ever written; a task already terminal is left
// untouched. Caller holds the queue lock.
func (q *Queue) finishLocked(t *Task, status Status, res *Result) {
	if t.Status().Terminal() {
		return
	}

	t.status.Store(int32(status))
	t.CompletedAt = time.Now().UTC()
	t.Result = res
	if status == StatusCompleted {
		t.SetProgress(100)
	}

	var duration float64
	if !t.StartedAt.IsZero() {
		duration = t.CompletedAt.Sub(t.StartedAt).Seconds()
	}
	metrics.RecordTaskDone(t.ToolName, status.String(), duration)
}

// updateGaugesLocked refreshes the queue depth metrics. Caller holds
// the queue lock.
func (q *Queue) updateGaugesLocked() {
	pending := 0
	for _, t := range q.tasks {
		if t.Status() == StatusPending {
			pending++
		}
	}
	metrics.SetQueueDepth(pending, int(q.runningCount.Load()))
}
