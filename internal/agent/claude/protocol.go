// Package claude runs the claude CLI agent as a subprocess.
//
// protocol.go - stdin/stdout wire format
//
// This file contains:
// - The stdin envelope types (one newline-terminated JSON object per message)
// - The stdout NDJSON line shapes emitted in stream-json mode
//
// The agent reads user messages from stdin and writes newline-delimited
// JSON events to stdout. Recognized stdout "type" values are "system",
// "assistant", "user" and "result".

package claude

import "encoding/json"

// Envelope is one stdin message in stream-json input format
type Envelope struct {
	Type    string          `json:"type"`
	Message EnvelopeMessage `json:"message"`
}

// EnvelopeMessage carries the role and content blocks of a user message
type EnvelopeMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a text or image block inside a message
type ContentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource is a base64-encoded image payload
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// wireLine is the superset of fields carried by one stdout NDJSON line
type wireLine struct {
	Type         string       `json:"type"`
	Subtype      string       `json:"subtype,omitempty"`
	SessionID    string       `json:"session_id,omitempty"`
	Message      *wireMessage `json:"message,omitempty"`
	Result       string       `json:"result,omitempty"`
	IsError      bool         `json:"is_error,omitempty"`
	DurationMs   int          `json:"duration_ms,omitempty"`
	NumTurns     int          `json:"num_turns,omitempty"`
	TotalCostUSD float64      `json:"total_cost_usd,omitempty"`
}

// wireMessage wraps the content array of assistant/user lines
type wireMessage struct {
	Role    string            `json:"role,omitempty"`
	Content []wireContentItem `json:"content,omitempty"`
}

// wireContentItem is one entry of a message content array
type wireContentItem struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}
