package claude

import (
	"strings"
	"testing"

	"github.com/HyphaGroup/portcullis/internal/agent"
)

func hasArgPair(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func TestBuildArgs_Base(t *testing.T) {
	r := NewRunner(Options{})
	args := r.buildArgs(&agent.ExecuteRequest{Prompt: "hi"})

	for _, want := range []string{"-p", "--verbose"} {
		if !contains(args, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}
	if !hasArgPair(args, "--output-format", "stream-json") {
		t.Errorf("args missing --output-format stream-json: %v", args)
	}
	if !hasArgPair(args, "--input-format", "stream-json") {
		t.Errorf("args missing --input-format stream-json: %v", args)
	}
	if contains(args, "--model") {
		t.Errorf("args should not carry --model without one configured: %v", args)
	}
	if contains(args, "--resume") {
		t.Errorf("args should not carry --resume for a new session: %v", args)
	}
	if contains(args, "--dangerously-skip-permissions") {
		t.Errorf("args should not skip permissions by default: %v", args)
	}
}

func TestBuildArgs_ModelPrecedence(t *testing.T) {
	r := NewRunner(Options{Model: "default-model"})

	args := r.buildArgs(&agent.ExecuteRequest{Prompt: "hi"})
	if !hasArgPair(args, "--model", "default-model") {
		t.Errorf("configured model not applied: %v", args)
	}

	// Per-request model overrides the configured default
	args = r.buildArgs(&agent.ExecuteRequest{Prompt: "hi", Model: "request-model"})
	if !hasArgPair(args, "--model", "request-model") {
		t.Errorf("request model not applied: %v", args)
	}
}

func TestBuildArgs_SessionResume(t *testing.T) {
	r := NewRunner(Options{})
	args := r.buildArgs(&agent.ExecuteRequest{Prompt: "hi", SessionID: "sess-42"})

	if !hasArgPair(args, "--resume", "sess-42") {
		t.Errorf("args missing --resume sess-42: %v", args)
	}
}

func TestBuildArgs_SystemPrompt(t *testing.T) {
	r := NewRunner(Options{})
	args := r.buildArgs(&agent.ExecuteRequest{Prompt: "hi", SystemPrompt: "be terse"})

	if !hasArgPair(args, "--append-system-prompt", "be terse") {
		t.Errorf("args missing --append-system-prompt: %v", args)
	}
}

func TestBuildArgs_SkipPermissions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		req  agent.ExecuteRequest
		want bool
	}{
		{"neither", Options{}, agent.ExecuteRequest{}, false},
		{"runner option", Options{SkipPermissions: true}, agent.ExecuteRequest{}, true},
		{"request flag", Options{}, agent.ExecuteRequest{SkipPermissions: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(tt.opts)
			args := r.buildArgs(&tt.req)
			if got := contains(args, "--dangerously-skip-permissions"); got != tt.want {
				t.Errorf("skip permissions = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildArgs_AllowedToolsAlwaysIncludesHost(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
	}{
		{"empty list", nil},
		{"custom tools", []string{"Bash", "Read"}},
		{"already present", []string{hostToolPattern}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(Options{AllowedTools: tt.allowed})
			args := r.buildArgs(&agent.ExecuteRequest{Prompt: "hi"})

			var list string
			for i := 0; i < len(args)-1; i++ {
				if args[i] == "--allowedTools" {
					list = args[i+1]
				}
			}
			if list == "" {
				t.Fatalf("args missing --allowedTools: %v", args)
			}

			parts := strings.Split(list, ",")
			count := 0
			for _, p := range parts {
				if p == hostToolPattern {
					count++
				}
			}
			if count != 1 {
				t.Errorf("host tool pattern appears %d times in %q, want 1", count, list)
			}
			for _, want := range tt.allowed {
				if !contains(parts, want) {
					t.Errorf("allow-list %q missing %q", list, want)
				}
			}
		})
	}
}
