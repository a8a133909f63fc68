// Package tools defines the tool catalog available to the assistant.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/enviamx/paqbot/internal/store"
)

// Handler executes one tool call. The returned string is fed back to
// the model verbatim, so handlers produce compact JSON or short
// sentences, never Go error dumps.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     Handler        `json:"-"`
}

// Registry holds the fixed tool catalog. It is built once at startup
// and read-only afterwards, so concurrent conversations share it
// without coordination.
type Registry struct {
	tools map[string]*Tool
	order []string
	data  store.DataService

	// now is injectable for date-bucketed statistics tests.
	now func() time.Time
}

// NewRegistry creates the tool registry over the given data service.
// Registration problems (duplicate or empty names, missing handlers)
// are configuration bugs and surface here rather than at call time.
func NewRegistry(data store.DataService) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]*Tool),
		data:  data,
		now:   time.Now,
	}

	builtins := make([]*Tool, 0, 10)
	builtins = append(builtins, r.dataTools()...)
	builtins = append(builtins, r.quoteTool())
	builtins = append(builtins, r.statsTools()...)

	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool with empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q registered twice", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List returns the catalog in function-calling format, in registration
// order. The same list goes verbatim into every model call.
func (r *Registry) List() []map[string]any {
	result := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with the given arguments. An unknown
// name returns *ErrUnknownTool; the conversation loop converts any
// error into a failure-shaped result for the model rather than
// aborting.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrUnknownTool{Name: name}
	}
	if args == nil {
		args = map[string]any{}
	}
	return tool.Handler(ctx, args)
}

// toJSON marshals a result payload for the model. Marshal failures on
// our own types are programmer errors; report them as tool failures
// rather than panicking mid-conversation.
func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}

// --- Argument helpers ---
// JSON numbers decode as float64; the model occasionally sends numbers
// as strings. These helpers normalize both.

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func floatArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func boolArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "sí" || v == "si"
	}
	return false
}
