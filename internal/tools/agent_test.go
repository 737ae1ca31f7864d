package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/HyphaGroup/portcullis/internal/agent"
	"github.com/HyphaGroup/portcullis/internal/agent/claude"
)

func fakeAgentBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake agent scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-agent")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("failed to write fake agent: %v", err)
	}
	return path
}

func TestRegisterAgentTools(t *testing.T) {
	runner := claude.NewRunner(claude.Options{Command: "/bin/sh"})
	r := NewRegistry()
	RegisterAgentTools(r, runner, nil)

	if !r.Has("agent_prompt") {
		t.Fatal("agent_prompt not registered")
	}

	def, _ := r.Get("agent_prompt")
	if def.InputSchema == nil {
		t.Error("agent_prompt schema not generated")
	}
}

func TestAgentPrompt_RequiresPrompt(t *testing.T) {
	runner := claude.NewRunner(claude.Options{Command: "/bin/sh"})
	r := NewRegistry()
	RegisterAgentTools(r, runner, nil)

	_, err := r.Execute(context.Background(), "agent_prompt", json.RawMessage(`{}`))
	if err == nil {
		t.Error("Execute() without prompt error = nil, want error")
	}
}

func TestAgentPrompt_RunsSession(t *testing.T) {
	bin := fakeAgentBinary(t, `cat >/dev/null
echo '{"type":"system","subtype":"init","session_id":"s1"}'
echo '{"type":"assistant","session_id":"s1","message":{"content":[{"type":"text","text":"thinking"}]}}'
echo '{"type":"result","session_id":"s1","result":"the answer"}'
`)

	runner := claude.NewRunner(claude.Options{Command: bin})
	defer runner.Close()

	events := agent.NewEventBuffer("agent", 100)
	r := NewRegistry()
	RegisterAgentTools(r, runner, events)

	res, err := r.Execute(context.Background(), "agent_prompt", json.RawMessage(`{"prompt":"solve it"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success {
		t.Errorf("Success = false, want true (message=%q)", res.Message)
	}
	if res.Message != "the answer" {
		t.Errorf("Message = %q, want the final result text", res.Message)
	}

	// Events were streamed into the shared buffer
	buffered := events.All()
	if len(buffered) != 3 {
		t.Fatalf("buffered event count = %v, want 3", len(buffered))
	}
	if buffered[2].Event.Type != agent.StreamEventResult {
		t.Errorf("last event type = %v, want result", buffered[2].Event.Type)
	}
}

func TestAgentPrompt_ContextCancellation(t *testing.T) {
	bin := fakeAgentBinary(t, `cat >/dev/null
exec sleep 30
`)

	runner := claude.NewRunner(claude.Options{Command: bin})
	defer runner.Close()

	r := NewRegistry()
	RegisterAgentTools(r, runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		res, err := r.Execute(ctx, "agent_prompt", json.RawMessage(`{"prompt":"hang"}`))
		if err != nil {
			t.Errorf("Execute() error = %v", err)
		} else if res.Success {
			t.Error("Success = true after cancellation, want false")
		}
		close(done)
	}()

	// Let the session start, then cancel the task context
	start := time.Now()
	for !runner.Busy() {
		if time.Since(start) > 5*time.Second {
			t.Fatal("runner never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for cancelled execution to return")
	}
}
