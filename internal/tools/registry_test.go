package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/HyphaGroup/portcullis/internal/task"
)

type echoParams struct {
	Value string `json:"value" description:"Value to echo back"`
	Count int    `json:"count,omitempty"`
}

func TestRegistry_RegisterAndExecute(t *testing.T) {
	r := NewRegistry()

	Register(r, Def{Name: "echo", Description: "Echo the value"},
		func(ctx context.Context, params echoParams) (*task.Result, error) {
			return &task.Result{Success: true, Message: params.Value}, nil
		})

	if !r.Has("echo") {
		t.Fatal("Has(echo) = false after Register")
	}

	res, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"value":"hi"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success || res.Message != "hi" {
		t.Errorf("result = %+v, want success/hi", res)
	}
}

func TestRegistry_ExecuteUnregistered(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), "missing", nil); err == nil {
		t.Error("Execute(missing) error = nil, want error")
	}
	if r.Has("missing") {
		t.Error("Has(missing) = true, want false")
	}
}

func TestRegistry_InvalidParameters(t *testing.T) {
	r := NewRegistry()
	Register(r, Def{Name: "echo"},
		func(ctx context.Context, params echoParams) (*task.Result, error) {
			return &task.Result{Success: true}, nil
		})

	if _, err := r.Execute(context.Background(), "echo", json.RawMessage(`not json`)); err == nil {
		t.Error("Execute() with malformed arguments error = nil, want error")
	}
}

func TestRegistry_EmptyArguments(t *testing.T) {
	r := NewRegistry()
	Register(r, Def{Name: "echo"},
		func(ctx context.Context, params echoParams) (*task.Result, error) {
			return &task.Result{Success: true, Message: params.Value}, nil
		})

	// Missing arguments decode to the zero value
	res, err := r.Execute(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Message != "" {
		t.Errorf("Message = %q, want zero value", res.Message)
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	r := NewRegistry()
	wantErr := errors.New("handler broke")
	Register(r, Def{Name: "broken"},
		func(ctx context.Context, params struct{}) (*task.Result, error) {
			return nil, wantErr
		})

	_, err := r.Execute(context.Background(), "broken", nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("Execute() error = %v, want %v", err, wantErr)
	}
}

func TestRegistry_AllPreservesOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"c_tool", "a_tool", "b_tool"} {
		Register(r, Def{Name: name},
			func(ctx context.Context, params struct{}) (*task.Result, error) {
				return &task.Result{Success: true}, nil
			})
	}

	defs := r.All()
	if len(defs) != 3 {
		t.Fatalf("All() count = %v, want 3", len(defs))
	}
	want := []string{"c_tool", "a_tool", "b_tool"}
	for i, def := range defs {
		if def.Name != want[i] {
			t.Errorf("All()[%d].Name = %q, want %q", i, def.Name, want[i])
		}
	}
}

func TestRegistry_ReRegisterReplacesHandler(t *testing.T) {
	r := NewRegistry()
	Register(r, Def{Name: "echo"},
		func(ctx context.Context, params struct{}) (*task.Result, error) {
			return &task.Result{Success: true, Message: "old"}, nil
		})
	Register(r, Def{Name: "echo"},
		func(ctx context.Context, params struct{}) (*task.Result, error) {
			return &task.Result{Success: true, Message: "new"}, nil
		})

	if got := len(r.All()); got != 1 {
		t.Errorf("All() count = %v, want 1 after re-register", got)
	}
	res, err := r.Execute(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Message != "new" {
		t.Errorf("Message = %q, want new", res.Message)
	}
}

func TestRegistry_GetSchemaGenerated(t *testing.T) {
	r := NewRegistry()
	Register(r, Def{Name: "echo", Description: "d"},
		func(ctx context.Context, params echoParams) (*task.Result, error) {
			return &task.Result{Success: true}, nil
		})

	def, ok := r.Get("echo")
	if !ok {
		t.Fatal("Get(echo) not found")
	}
	if def.InputSchema == nil {
		t.Fatal("InputSchema not auto-generated")
	}
	if def.InputSchema["type"] != "object" {
		t.Errorf("schema type = %v, want object", def.InputSchema["type"])
	}
}
