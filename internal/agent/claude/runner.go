// runner.go - single-flight process runner
//
// This file contains:
// - Runner, owning one agent subprocess lifecycle at a time
// - The worker goroutine: envelope delivery, stream read loop, completion
// - Cooperative cancellation via a stop flag plus process kill
//
// The runner is single-flight: acceptance is decided under the runner
// mutex, so two concurrent ExecuteAsync calls can never both launch
// and an accepted session never loses a concurrent Cancel. The worker
// goroutine is the only owner of the pipes; a
// Cancel call sets the stop flag and kills the process, and the worker
// observes that and performs cleanup itself.

package claude

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/HyphaGroup/portcullis/internal/agent"
	"github.com/HyphaGroup/portcullis/internal/logger"
	"github.com/HyphaGroup/portcullis/internal/metrics"
)

const (
	// maxScanTokenSize bounds one NDJSON line from the agent
	maxScanTokenSize = 1024 * 1024

	// rawPreviewLimit bounds the captured-output preview used in
	// failure diagnostics
	rawPreviewLimit = 2000
)

// Options configures a Runner
type Options struct {
	// Command is the agent executable. Empty means look up "claude"
	// on PATH (cached on success).
	Command string

	// Model is the default model passed to the agent
	Model string

	// BaseDir anchors relative attachment paths; attachments resolving
	// outside it are dropped
	BaseDir string

	// SkipPermissions passes the permission-bypass flag to the agent
	SkipPermissions bool

	// AllowedTools is the agent-side tool allow-list. The host tool
	// namespace wildcard is always appended.
	AllowedTools []string

	// Attachment ceilings; zero means the package defaults
	MaxAttachments          int
	MaxAttachmentBytes      int64
	MaxTotalAttachmentBytes int64
}

// Runner owns one agent subprocess's lifecycle. Single-flight: only one
// request may be in flight per Runner at a time.
type Runner struct {
	opts     Options
	inFlight atomic.Bool
	stop     atomic.Bool

	mu  sync.Mutex
	cmd *exec.Cmd

	wg sync.WaitGroup
}

// NewRunner creates a new process runner
func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts}
}

// Busy reports whether a session is currently in flight
func (r *Runner) Busy() bool {
	return r.inFlight.Load()
}

// ExecuteAsync launches the agent subprocess for one request. It returns
// false, without side effects, if a session is already in flight or the
// agent executable cannot be located. On acceptance, events stream to
// onEvent as each output line completes, and onComplete fires exactly
// once with the final text and success flag.
func (r *Runner) ExecuteAsync(req *agent.ExecuteRequest, onEvent agent.EventSink, onComplete agent.CompletionFunc) bool {
	if req == nil || onComplete == nil {
		return false
	}

	// Acceptance and the stop-flag reset happen under the same lock
	// Cancel takes: a cancel aimed at an earlier session is cleared
	// here, and a cancel landing after acceptance always sticks.
	r.mu.Lock()
	if r.inFlight.Load() {
		r.mu.Unlock()
		logger.Info("Rejecting agent request: session already in flight")
		return false
	}
	r.stop.Store(false)
	r.inFlight.Store(true)
	r.mu.Unlock()

	bin, err := locateBinary(r.opts.Command)
	if err != nil {
		logger.Error("Rejecting agent request: %v", err)
		r.inFlight.Store(false)
		return false
	}

	r.wg.Add(1)
	go r.run(bin, req, onEvent, onComplete)
	return true
}

// Cancel sets the stop flag and kills the subprocess if one is active.
// Pipe cleanup happens on the worker goroutine after its loop exits, so
// the handles are never touched from two goroutines at once.
func (r *Runner) Cancel() {
	r.mu.Lock()
	r.stop.Store(true)
	if r.cmd != nil && r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	r.mu.Unlock()
}

// Close cancels any in-flight session and waits for the worker goroutine
// to fully exit before returning.
func (r *Runner) Close() {
	r.Cancel()
	r.wg.Wait()
}

func (r *Runner) run(bin string, req *agent.ExecuteRequest, onEvent agent.EventSink, onComplete agent.CompletionFunc) {
	// onComplete fires before the in-flight flag clears; defers run LIFO
	defer r.inFlight.Store(false)
	defer r.wg.Done()

	envelope, err := r.buildEnvelope(req)
	if err != nil {
		onComplete(fmt.Sprintf("Failed to serialize request: %v", err), false)
		return
	}

	cmd := exec.Command(bin, r.buildArgs(req)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		onComplete(fmt.Sprintf("Failed to create input pipe: %v", err), false)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		onComplete(fmt.Sprintf("Failed to create output pipe: %v", err), false)
		return
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		onComplete(fmt.Sprintf("Failed to start agent process: %v", err), false)
		return
	}
	metrics.RecordAgentStart()

	r.mu.Lock()
	r.cmd = cmd
	stopped := r.stop.Load()
	r.mu.Unlock()
	if stopped {
		// Cancel raced the launch
		_ = cmd.Process.Kill()
	}

	// Deliver the request and signal end-of-input
	if _, err := stdin.Write(envelope); err != nil {
		logger.Error("Failed to write request envelope: %v", err)
	}
	_ = stdin.Close()

	scanner := newLineScanner(stdout)

	var raw bytes.Buffer
	var textAcc strings.Builder
	var resultText string
	var haveResult bool

	for scanner.Scan() {
		if r.stop.Load() {
			break
		}

		line := scanner.Bytes()
		raw.Write(line)
		raw.WriteByte('\n')

		for _, ev := range ParseLine(line) {
			if ev.Type == agent.StreamEventUnknown {
				logger.Info("Dropping unrecognized agent output line")
				continue
			}

			switch ev.Type {
			case agent.StreamEventText:
				textAcc.WriteString(ev.Text)
			case agent.StreamEventResult:
				resultText = ev.ResultText
				haveResult = true
			}

			metrics.RecordStreamEvent(string(ev.Type))
			if onEvent != nil {
				onEvent(ev)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("Agent output read error: %v", err)
	}

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	r.mu.Lock()
	r.cmd = nil
	r.mu.Unlock()

	cancelled := r.stop.Load()
	success := exitCode == 0 && !cancelled

	text := r.finalText(haveResult, resultText, textAcc.String(), raw.Bytes())
	if !success && (text == "" || text == parseFailureText) {
		text = failureDiagnostic(raw.Bytes(), stderr.Bytes(), exitCode, cancelled)
	}

	status := "completed"
	switch {
	case cancelled:
		status = "cancelled"
	case !success:
		status = "failed"
	}
	metrics.RecordAgentEnd(status)
	logger.Info("Agent session finished: exit=%d cancelled=%v", exitCode, cancelled)

	onComplete(text, success)
}

// finalText picks the reported answer: a live result event is
// authoritative, then the accumulated text fragments, then the fallback
// extractor over the raw captured output.
func (r *Runner) finalText(haveResult bool, resultText, accumulated string, raw []byte) string {
	if haveResult {
		return resultText
	}
	if accumulated != "" {
		return accumulated
	}
	return ExtractFinalText(raw)
}

// failureDiagnostic builds a best-effort message for a failed session
// from stderr or a bounded preview of the captured output.
func failureDiagnostic(raw, stderr []byte, exitCode int, cancelled bool) string {
	if cancelled {
		return "Agent session cancelled"
	}

	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		detail = strings.TrimSpace(string(raw))
	}
	if len(detail) > rawPreviewLimit {
		detail = detail[:rawPreviewLimit] + "..."
	}
	if detail == "" {
		return fmt.Sprintf("Agent process exited with code %d", exitCode)
	}
	return fmt.Sprintf("Agent process exited with code %d: %s", exitCode, detail)
}
