// parser.go - NDJSON stream event parsing
//
// This file contains:
// - ParseLine, turning one stdout line into normalized stream events
// - ExtractFinalText, the fallback extractor over the full captured output
//
// ParseLine is pure and never fails: malformed or unrecognized input
// yields a single Unknown event which callers log and drop.

package claude

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/HyphaGroup/portcullis/internal/agent"
)

// parseFailureText is returned by ExtractFinalText when the captured
// output contains nothing recognizable.
const parseFailureText = "Failed to parse agent response"

// ParseLine parses one newline-delimited JSON line from the agent's
// stdout into zero or more stream events. Assistant and user wrapper
// lines produce one event per recognized content entry. Anything that
// does not parse, or parses without a recognized type, yields a single
// Unknown event.
func ParseLine(line []byte) []*agent.StreamEvent {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	var wire wireLine
	if err := json.Unmarshal(line, &wire); err != nil {
		return []*agent.StreamEvent{unknownEvent()}
	}

	now := time.Now().UnixMilli()

	switch wire.Type {
	case "system":
		return []*agent.StreamEvent{{
			Type:      agent.StreamEventSystem,
			SessionID: wire.SessionID,
			Timestamp: now,
		}}

	case "result":
		return []*agent.StreamEvent{{
			Type:         agent.StreamEventResult,
			SessionID:    wire.SessionID,
			ResultText:   wire.Result,
			IsError:      wire.IsError,
			DurationMs:   wire.DurationMs,
			NumTurns:     wire.NumTurns,
			TotalCostUSD: wire.TotalCostUSD,
			Timestamp:    now,
		}}

	case "assistant":
		return parseContentItems(wire, now, true)

	case "user":
		return parseContentItems(wire, now, false)

	default:
		return []*agent.StreamEvent{unknownEvent()}
	}
}

// parseContentItems walks a message content array. Assistant lines carry
// text and tool_use entries, user lines carry tool_result entries.
func parseContentItems(wire wireLine, now int64, assistant bool) []*agent.StreamEvent {
	if wire.Message == nil || len(wire.Message.Content) == 0 {
		return []*agent.StreamEvent{unknownEvent()}
	}

	var events []*agent.StreamEvent
	for _, item := range wire.Message.Content {
		switch item.Type {
		case "text":
			if !assistant {
				continue
			}
			events = append(events, &agent.StreamEvent{
				Type:      agent.StreamEventText,
				SessionID: wire.SessionID,
				Text:      item.Text,
				Timestamp: now,
			})
		case "tool_use":
			if !assistant {
				continue
			}
			events = append(events, &agent.StreamEvent{
				Type:       agent.StreamEventToolUse,
				SessionID:  wire.SessionID,
				ToolName:   item.Name,
				ToolCallID: item.ID,
				ToolInput:  compactJSON(item.Input),
				Timestamp:  now,
			})
		case "tool_result":
			if assistant {
				continue
			}
			events = append(events, &agent.StreamEvent{
				Type:       agent.StreamEventToolResult,
				SessionID:  wire.SessionID,
				ToolCallID: item.ToolUseID,
				Content:    flattenContent(item.Content),
				Timestamp:  now,
			})
		}
	}

	if len(events) == 0 {
		return []*agent.StreamEvent{unknownEvent()}
	}
	return events
}

// ExtractFinalText recovers the assistant's answer from the full captured
// output. It is the fallback when the incremental path missed events
// (abrupt process termination). Preference order: the last result line's
// result field, then assistant text fragments concatenated in order, then
// a fixed diagnostic string.
func ExtractFinalText(raw []byte) string {
	var resultText string
	var haveResult bool
	var textParts []string

	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var wire wireLine
		if err := json.Unmarshal(line, &wire); err != nil {
			continue
		}

		switch wire.Type {
		case "result":
			resultText = wire.Result
			haveResult = true
		case "assistant":
			if wire.Message == nil {
				continue
			}
			for _, item := range wire.Message.Content {
				if item.Type == "text" && item.Text != "" {
					textParts = append(textParts, item.Text)
				}
			}
		}
	}

	if haveResult {
		return resultText
	}
	if len(textParts) > 0 {
		return strings.Join(textParts, "")
	}
	return parseFailureText
}

// compactJSON re-serializes a structured input payload to a compact
// single-line string without structural loss.
func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// flattenContent renders a tool_result content value as plain text.
// The wire value may be a bare string or a content block array.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}

	return compactJSON(raw)
}

func unknownEvent() *agent.StreamEvent {
	return &agent.StreamEvent{
		Type:      agent.StreamEventUnknown,
		Timestamp: time.Now().UnixMilli(),
	}
}
