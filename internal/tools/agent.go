// Package tools provides the host tool registry.
//
// agent.go - builtin agent_prompt tool
//
// agent_prompt bridges the task queue to the process runner: it starts
// one agent session, streams events into the shared event buffer, and
// blocks until the runner's completion callback fires or the task
// context is cancelled.

package tools

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/HyphaGroup/portcullis/internal/agent"
	"github.com/HyphaGroup/portcullis/internal/agent/claude"
	"github.com/HyphaGroup/portcullis/internal/task"
)

// AgentPromptParams are the arguments of the agent_prompt tool
type AgentPromptParams struct {
	Prompt      string   `json:"prompt" description:"Prompt text to send to the agent"`
	Attachments []string `json:"attachments,omitempty" description:"Image paths to attach, resolved against the attachment base directory"`
	SessionID   string   `json:"session_id,omitempty" description:"Agent session to resume; omit for a new session"`
	Model       string   `json:"model,omitempty" description:"Model override for this request"`
}

type agentOutcome struct {
	text    string
	success bool
}

// RegisterAgentTools registers the builtin tools that drive the agent
// process runner.
func RegisterAgentTools(r *Registry, runner *claude.Runner, events *agent.EventBuffer) {
	Register(r, Def{
		Name: "agent_prompt",
		Description: `Run one conversational turn of the embedded coding agent.

Launches the agent subprocess, streams its events into the shared event
buffer (poll agent_events to observe them live), and returns the final
answer text. Rejected if a session is already in flight.`,
	}, func(ctx context.Context, params AgentPromptParams) (*task.Result, error) {
		if params.Prompt == "" {
			return nil, errors.New("prompt is required")
		}

		req := &agent.ExecuteRequest{
			Prompt:    params.Prompt,
			SessionID: params.SessionID,
			Model:     params.Model,
		}
		for _, path := range params.Attachments {
			req.Attachments = append(req.Attachments, agent.Attachment{Path: path})
		}

		if events != nil {
			events.Reset()
		}

		// Best-effort progress: a notch per stream event, capped until
		// the completion callback settles the task
		var eventsSeen atomic.Int32

		done := make(chan agentOutcome, 1)
		accepted := runner.ExecuteAsync(req,
			func(ev *agent.StreamEvent) {
				if events != nil {
					events.Append(ev)
				}
				pct := 10 + int(eventsSeen.Add(1))*5
				if pct > 90 {
					pct = 90
				}
				task.ReportProgress(ctx, pct)
			},
			func(text string, success bool) {
				done <- agentOutcome{text: text, success: success}
			},
		)
		if !accepted {
			return nil, errors.New("agent unavailable: session already in flight or executable not found")
		}
		task.ReportProgress(ctx, 10)

		select {
		case out := <-done:
			return &task.Result{
				Success: out.success,
				Message: out.text,
			}, nil
		case <-ctx.Done():
			runner.Cancel()
			// The runner still owes exactly one completion call
			out := <-done
			return &task.Result{
				Success: false,
				Message: out.text,
			}, nil
		}
	})
}
