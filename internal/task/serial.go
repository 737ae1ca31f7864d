// Package task provides the asynchronous tool-invocation queue.
//
// serial.go - single-consumer serialized executor
//
// Some host operations must run on one designated goroutine (resources
// with thread affinity, long human-interactive steps). SerialExecutor
// funnels those through a request channel consumed by a single loop,
// and RunAndWait bounds the caller's wait with the task's own timeout
// so a stalled operation never leaves the caller pending forever.

package task

import (
	"errors"
	"sync"
	"time"

	"github.com/HyphaGroup/portcullis/internal/logger"
)

var (
	// ErrWaitTimeout is returned when the serialized executor did not
	// signal completion within the caller's deadline
	ErrWaitTimeout = errors.New("serialized executor wait timed out")

	// ErrExecutorStopped is returned after Stop
	ErrExecutorStopped = errors.New("serialized executor stopped")
)

// SerialFn is one unit of work routed through the executor
type SerialFn func() *Result

type serialRequest struct {
	fn   SerialFn
	done chan *Result
}

// SerialExecutor runs submitted functions one at a time on a dedicated
// consumer goroutine.
type SerialExecutor struct {
	requests chan serialRequest
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSerialExecutor creates an executor with the given request backlog
func NewSerialExecutor(backlog int) *SerialExecutor {
	if backlog <= 0 {
		backlog = 16
	}
	return &SerialExecutor{
		requests: make(chan serialRequest, backlog),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the consumer loop
func (e *SerialExecutor) Start() {
	e.wg.Add(1)
	go e.loop()
}

// Stop halts the consumer loop and waits for it to exit. In-flight work
// finishes; queued requests are answered with a stopped result.
func (e *SerialExecutor) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	e.wg.Wait()
}

func (e *SerialExecutor) loop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			// Drain queued requests so waiters unblock
			for {
				select {
				case req := <-e.requests:
					req.done <- &Result{Success: false, Message: ErrExecutorStopped.Error()}
				default:
					return
				}
			}
		case req := <-e.requests:
			res := req.fn()
			if res == nil {
				res = &Result{Success: false, Message: "serialized operation returned no result"}
			}
			// done is buffered; an abandoned waiter never blocks the loop
			req.done <- res
		}
	}
}

// RunAndWait submits fn and blocks until it completes or the deadline
// expires. The deadline covers both queue admission and execution.
func (e *SerialExecutor) RunAndWait(fn SerialFn, timeout time.Duration) (*Result, error) {
	select {
	case <-e.stopCh:
		return nil, ErrExecutorStopped
	default:
	}

	req := serialRequest{fn: fn, done: make(chan *Result, 1)}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case e.requests <- req:
	case <-e.stopCh:
		return nil, ErrExecutorStopped
	case <-deadline.C:
		logger.Error("Serialized executor admission timed out after %v", timeout)
		return nil, ErrWaitTimeout
	}

	select {
	case res := <-req.done:
		return res, nil
	case <-deadline.C:
		logger.Error("Serialized executor wait timed out after %v", timeout)
		return nil, ErrWaitTimeout
	}
}
