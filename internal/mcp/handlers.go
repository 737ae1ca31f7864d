// handlers.go - task queue tool surface
//
// This file contains:
// - Parameter types for each exposed tool
// - The generic addTool registration helper
// - Handlers bridging MCP calls to the queue, event buffer and history

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HyphaGroup/portcullis/internal/history"
	"github.com/HyphaGroup/portcullis/internal/task"
	"github.com/HyphaGroup/portcullis/internal/tools"
	"github.com/HyphaGroup/portcullis/internal/validation"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// addTool registers one typed tool with the underlying MCP server.
// The input schema is generated from the P type parameter.
func addTool[P any](s *Server, name, description string, handler func(ctx context.Context, params P) (any, error)) {
	schema := toSchema(tools.GenerateSchema[P]())
	t := &mcp_sdk.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}

	s.mcpServer.AddTool(t, func(ctx context.Context, req *mcp_sdk.CallToolRequest) (*mcp_sdk.CallToolResult, error) {
		var params P
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
				return NewErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
			}
		}

		result, err := handler(ctx, params)
		if err != nil {
			return NewErrorResult(SanitizeError(err, name).Error()), nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			return NewErrorResult(err.Error()), nil
		}
		return NewTextResult(string(data)), nil
	})
}

// SubmitParams are the arguments of task_submit
type SubmitParams struct {
	ToolName   string         `json:"tool_name" description:"Registered tool to invoke"`
	Parameters map[string]any `json:"parameters,omitempty" description:"Structured tool arguments, passed through verbatim"`
	TimeoutMs  int64          `json:"timeout_ms,omitempty" description:"Deadline from task start in milliseconds; 0 uses the queue default"`
}

// TaskIDParams identify one task
type TaskIDParams struct {
	TaskID string `json:"task_id" description:"Task identifier returned by task_submit"`
}

// ListParams are the arguments of task_list
type ListParams struct {
	IncludeCompleted bool `json:"include_completed,omitempty" description:"Include terminal tasks still inside the retention window"`
}

// EventsParams are the arguments of agent_events
type EventsParams struct {
	SinceIndex *int `json:"since_index,omitempty" description:"Return events after this index; omit or -1 for all buffered events"`
}

// HistoryParams are the arguments of task_history
type HistoryParams struct {
	Limit int `json:"limit,omitempty" description:"Maximum records to return, newest first (default 50)"`
}

func (s *Server) registerTaskTools() {
	addTool(s, "task_submit", `Submit a named tool invocation to the async task queue.

Returns the task_id immediately. Poll task_status / task_result for the
outcome. Fails when the tool is unknown or the queue is at capacity.`,
		func(ctx context.Context, params SubmitParams) (any, error) {
			var raw json.RawMessage
			if params.Parameters != nil {
				data, err := json.Marshal(params.Parameters)
				if err != nil {
					return nil, fmt.Errorf("invalid parameters: %w", err)
				}
				raw = data
			}

			id, err := s.queue.Submit(params.ToolName, raw, time.Duration(params.TimeoutMs)*time.Millisecond)
			if err != nil {
				return nil, err
			}
			return map[string]any{"task_id": id}, nil
		})

	addTool(s, "task_status", `Get the current status of a task.`,
		func(ctx context.Context, params TaskIDParams) (any, error) {
			return s.taskStatus(params.TaskID)
		})

	addTool(s, "task_result", `Get the result of a terminal task.

Returns ready=false while the task is still pending or running. Tasks
already evicted from the queue are served from the archive when task
history is enabled.`,
		func(ctx context.Context, params TaskIDParams) (any, error) {
			return s.taskResult(params.TaskID)
		})

	addTool(s, "task_cancel", `Request cancellation of a task.

A pending task is cancelled immediately and never executes. A running
task gets its cooperative cancellation flag set. Returns false for
tasks already terminal.`,
		func(ctx context.Context, params TaskIDParams) (any, error) {
			return s.taskCancel(params.TaskID)
		})

	addTool(s, "task_list", `List tasks ordered newest-submitted-first.`,
		func(ctx context.Context, params ListParams) (any, error) {
			return map[string]any{"tasks": s.queue.List(params.IncludeCompleted)}, nil
		})

	addTool(s, "queue_stats", `Get pending/running/completed task counts.`,
		func(ctx context.Context, params struct{}) (any, error) {
			pending, running, completed := s.queue.Stats()
			return map[string]any{
				"pending":   pending,
				"running":   running,
				"completed": completed,
			}, nil
		})

	addTool(s, "tool_list", `List the tools available for task_submit.`,
		func(ctx context.Context, params struct{}) (any, error) {
			return map[string]any{"tools": s.registry.All()}, nil
		})

	addTool(s, "agent_events", `Poll buffered agent stream events.

Use since_index=-1 (or omit it) on the first poll, then pass the
returned last_index to resume. Fails if the requested index has been
purged from the ring buffer.`,
		func(ctx context.Context, params EventsParams) (any, error) {
			if s.events == nil {
				return nil, errors.New("event buffer unavailable")
			}

			since := -1
			if params.SinceIndex != nil {
				since = *params.SinceIndex
			}

			events, err := s.events.After(since)
			if err != nil {
				return nil, err
			}

			lastIndex := since
			if n := len(events); n > 0 {
				lastIndex = events[n-1].Index
			}
			return map[string]any{
				"events":     events,
				"last_index": lastIndex,
				"dropped":    s.events.DroppedEvents(),
			}, nil
		})

	addTool(s, "task_history", `List archived terminal tasks, newest first.`,
		func(ctx context.Context, params HistoryParams) (any, error) {
			if s.history == nil {
				return nil, errors.New("task history is not enabled")
			}
			records, err := s.history.ListRecent(params.Limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"records": records}, nil
		})
}

func (s *Server) taskStatus(taskID string) (any, error) {
	if err := validation.ValidateTaskID(taskID); err != nil {
		return nil, fmt.Errorf("invalid task_id: %v", err)
	}
	snap, err := s.queue.Get(taskID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// taskResult reads a terminal result from the live queue, falling back
// to the archive for tasks the retention sweep already evicted.
func (s *Server) taskResult(taskID string) (any, error) {
	if err := validation.ValidateTaskID(taskID); err != nil {
		return nil, fmt.Errorf("invalid task_id: %v", err)
	}

	snap, err := s.queue.Get(taskID)
	if errors.Is(err, task.ErrTaskNotFound) && s.history != nil {
		rec, herr := s.history.Get(taskID)
		if herr == nil {
			return map[string]any{
				"ready":    true,
				"status":   rec.Status,
				"archived": true,
				"result":   map[string]any{"success": rec.Success, "message": rec.Message},
			}, nil
		}
		if !errors.Is(herr, history.ErrRecordNotFound) {
			return nil, herr
		}
	}
	if err != nil {
		return nil, err
	}

	if snap.Result == nil {
		return map[string]any{"ready": false, "status": snap.Status}, nil
	}
	return map[string]any{"ready": true, "status": snap.Status, "result": snap.Result}, nil
}

func (s *Server) taskCancel(taskID string) (any, error) {
	if err := validation.ValidateTaskID(taskID); err != nil {
		return nil, fmt.Errorf("invalid task_id: %v", err)
	}
	return map[string]any{"cancelled": s.queue.Cancel(taskID)}, nil
}
