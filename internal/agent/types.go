// Package agent provides the agent process abstraction layer.
//
// types.go - Shared types for agent communication
//
// This file contains:
// - StreamEventType and StreamEvent for normalized event streaming
// - ExecuteRequest and Attachment for agent execution parameters
//
// StreamEvent provides a common format that the stream parser produces
// from the agent's NDJSON stdout protocol. Consumers (event sinks, the
// MCP event buffer) only ever see this normalized shape.

package agent

// StreamEventType represents the type of streaming event
type StreamEventType string

const (
	StreamEventSystem     StreamEventType = "system"
	StreamEventText       StreamEventType = "text"
	StreamEventToolUse    StreamEventType = "tool_use"
	StreamEventToolResult StreamEventType = "tool_result"
	StreamEventResult     StreamEventType = "result"
	StreamEventUnknown    StreamEventType = "unknown"
)

// StreamEvent represents a single event in agent streaming output
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	SessionID string          `json:"session_id,omitempty"`

	// Text fields (incremental assistant output)
	Text string `json:"text,omitempty"`

	// Tool call fields
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolInput is the tool's structured input re-serialized to compact
	// single-line JSON. The payload is passed through verbatim.
	ToolInput string `json:"tool_input,omitempty"`

	// Tool result fields, correlated to a prior tool_use by ToolCallID
	Content string `json:"content,omitempty"`

	// Result fields (terminal summary of one turn)
	ResultText   string  `json:"result_text,omitempty"`
	IsError      bool    `json:"is_error,omitempty"`
	DurationMs   int     `json:"duration_ms,omitempty"`
	NumTurns     int     `json:"num_turns,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`
}

// Attachment is one image attached to an execute request.
// Path is resolved against the runner's attachment base directory.
type Attachment struct {
	Path      string `json:"path"`
	MediaType string `json:"media_type,omitempty"`
}

// ExecuteRequest contains parameters for one agent execution
type ExecuteRequest struct {
	// Required
	Prompt string

	// Optional image attachments, subject to count and byte ceilings
	Attachments []Attachment

	// Session continuation (empty for new)
	SessionID string

	// Agent configuration overrides
	Model           string
	SystemPrompt    string
	SkipPermissions bool
}

// EventSink receives stream events as they are parsed from the agent's
// output, strictly in newline arrival order.
type EventSink func(event *StreamEvent)

// CompletionFunc receives the final text and success flag exactly once
// per accepted execution.
type CompletionFunc func(text string, success bool)
