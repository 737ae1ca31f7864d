package claude

import (
	"strings"

	"github.com/HyphaGroup/portcullis/internal/agent"
)

// hostToolPattern matches every tool this host exposes to the agent.
// It is always present in the allow-list so the agent can call back
// into the Portcullis MCP server.
const hostToolPattern = "mcp__portcullis__*"

func (r *Runner) buildArgs(req *agent.ExecuteRequest) []string {
	// Non-interactive print mode with structured streaming in and out.
	// --verbose is required for stream-json output.
	args := []string{
		"-p",
		"--verbose",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
	}

	model := req.Model
	if model == "" {
		model = r.opts.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}

	if req.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", req.SystemPrompt)
	}

	// Session continuation
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}

	if req.SkipPermissions || r.opts.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}

	allowed := append([]string{}, r.opts.AllowedTools...)
	if !contains(allowed, hostToolPattern) {
		allowed = append(allowed, hostToolPattern)
	}
	args = append(args, "--allowedTools", strings.Join(allowed, ","))

	return args
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
