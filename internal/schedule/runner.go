// Package schedule submits recurring agent prompts on a cron cadence.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/HyphaGroup/portcullis/internal/logger"
)

// Entry is one config-declared recurring prompt
type Entry struct {
	Name      string `json:"name"`
	CronExpr  string `json:"cron"`
	Prompt    string `json:"prompt"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
	Enabled   bool   `json:"enabled"`
}

// SubmitFunc hands a due entry to the task queue
type SubmitFunc func(entry *Entry) (taskID string, err error)

// Runner checks entries once a minute and submits the due ones
type Runner struct {
	entries []*Entry
	submit  SubmitFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	nextRun map[string]time.Time // entry name -> next due time
}

// NewRunner creates a schedule runner. Entries with invalid cron
// expressions are rejected at construction.
func NewRunner(entries []Entry, submit SubmitFunc) (*Runner, error) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		submit:  submit,
		ctx:     ctx,
		cancel:  cancel,
		nextRun: make(map[string]time.Time),
	}

	now := time.Now()
	for i := range entries {
		e := entries[i]
		if !e.Enabled {
			continue
		}
		next, err := NextRun(e.CronExpr, now)
		if err != nil {
			cancel()
			return nil, err
		}
		r.entries = append(r.entries, &e)
		r.nextRun[e.Name] = next
	}

	return r, nil
}

// Start begins the scheduler loop
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.loop()
	logger.Info("Schedule runner started (%d entries)", len(r.entries))
}

// Stop gracefully stops the runner
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
	logger.Info("Schedule runner stopped")
}

// loop runs every minute to check for due entries
func (r *Runner) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.checkDue(time.Now())
		}
	}
}

// checkDue submits every entry whose next run time has passed and
// advances its schedule. A failed submission (queue at capacity, agent
// busy) is logged and retried at the following due time.
func (r *Runner) checkDue(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		next, ok := r.nextRun[e.Name]
		if !ok || now.Before(next) {
			continue
		}

		taskID, err := r.submit(e)
		if err != nil {
			logger.Error("Schedule %s: submission failed: %v", e.Name, err)
		} else {
			logger.Info("Schedule %s: submitted task %s", e.Name, taskID)
		}

		upcoming, err := NextRun(e.CronExpr, now)
		if err != nil {
			// Validated at construction; should not happen
			logger.Error("Schedule %s: %v", e.Name, err)
			delete(r.nextRun, e.Name)
			continue
		}
		r.nextRun[e.Name] = upcoming
	}
}
