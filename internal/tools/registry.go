// Package tools provides the host tool registry.
//
// registry.go - named tool lookup and dispatch
//
// The registry is the synchronous execute(name, params) collaborator
// consumed by the task queue. Handlers receive the raw structured
// arguments and return a task.Result; what a tool does with the host's
// object model is its own business.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/HyphaGroup/portcullis/internal/task"
)

// Handler is a function that handles a tool call
type Handler func(ctx context.Context, arguments json.RawMessage) (*task.Result, error)

// Def defines a tool with all metadata
type Def struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Registry stores tool definitions and handlers
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*Def
	handlers map[string]Handler
	order    []string // preserve registration order
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]*Def),
		handlers: make(map[string]Handler),
		order:    make([]string, 0),
	}
}

// Register adds a tool with its handler to the registry.
// Schema is auto-generated from the P type parameter if not provided.
func Register[P any](r *Registry, def Def, handler func(ctx context.Context, params P) (*task.Result, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.InputSchema == nil {
		def.InputSchema = GenerateSchema[P]()
	}

	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = &def
	r.handlers[def.Name] = wrapHandler(handler)
}

// Has reports whether a tool is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Get returns a tool definition by name
func (r *Registry) Get(name string) (*Def, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// All returns all tool definitions in registration order
func (r *Registry) All() []*Def {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Def, 0, len(r.order))
	for _, name := range r.order {
		if def, ok := r.tools[name]; ok {
			defs = append(defs, def)
		}
	}
	return defs
}

// Execute dispatches a tool call synchronously. It implements the task
// queue's ToolExecutor contract. A handler error is distinct from a
// tool-level failure (a Result with Success=false).
func (r *Registry) Execute(ctx context.Context, name string, arguments json.RawMessage) (*task.Result, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("tool not registered: %s", name)
	}
	return handler(ctx, arguments)
}

// wrapHandler wraps a typed handler into a Handler
func wrapHandler[P any](handler func(ctx context.Context, params P) (*task.Result, error)) Handler {
	return func(ctx context.Context, args json.RawMessage) (*task.Result, error) {
		var params P
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("invalid parameters: %w", err)
			}
		}
		return handler(ctx, params)
	}
}
