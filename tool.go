package genflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// ToolDeclaration describes a tool the model may invoke during a call, together with
// the handler that executes it locally.
//
// Name is the join key between a model invocation and its handler: lookup is exact
// and case-sensitive, and names must be unique within one call.
//
// Example tool with a single required parameter:
//
//	{
//	    Name:        "lookupWeather",
//	    Description: "Get the current weather conditions for a city.",
//	    Parameters: &jsonschema.Schema{
//	        Type: "object",
//	        Properties: map[string]*jsonschema.Schema{
//	            "city": {Type: "string", Description: "City name, e.g. Paris"},
//	        },
//	        Required: []string{"city"},
//	    },
//	    Handler: ToolHandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
//	        return map[string]string{"conditions": "clear"}, nil
//	    }),
//	}
type ToolDeclaration struct {
	Name        string
	Description string
	// Parameters is the JSON Schema of the argument object. Nil means no arguments.
	Parameters *jsonschema.Schema
	// Handler runs when the model invokes the tool. It is never serialized.
	Handler ToolHandler
}

// ToolHandler executes a tool invocation.
//
// The returned value is serialized to JSON and fed back to the model as
// {"result": "<json>"}; a string result is sent as is. A non-nil error is
// fed back as {"error": "<message>"} and does not abort the call, so the
// model gets a chance to recover.
type ToolHandler interface {
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ToolHandlerFunc adapts an ordinary function to the ToolHandler interface.
type ToolHandlerFunc func(ctx context.Context, args map[string]any) (any, error)

func (f ToolHandlerFunc) Call(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Validator can be implemented by typed tool argument structs to check their
// contents after they are decoded.
//
//	type WeatherArgs struct {
//	    City string `json:"city"`
//	}
//
//	func (a *WeatherArgs) Validate() error {
//	    if a.City == "" {
//	        return fmt.Errorf("city is required")
//	    }
//	    return nil
//	}
type Validator interface {
	Validate() error
}

// TypedHandler is a ToolHandler whose arguments are decoded into T before the
// wrapped function runs. If T implements Validator, it is validated first.
type TypedHandler[T any, R any] func(ctx context.Context, args T) (R, error)

// Call implements ToolHandler.
func (f TypedHandler[T, R]) Call(ctx context.Context, args map[string]any) (any, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}
	if validator, ok := any(&t).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("argument validation failed: %w", err)
		}
	}
	return f(ctx, t)
}

// NewTool builds a ToolDeclaration whose parameter schema is generated from T.
func NewTool[T any, R any](name, description string, fn func(ctx context.Context, args T) (R, error)) (ToolDeclaration, error) {
	schema, err := GenerateSchema[T]()
	if err != nil {
		return ToolDeclaration{}, err
	}
	return ToolDeclaration{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Handler:     TypedHandler[T, R](fn),
	}, nil
}

// toolSet is the name-indexed tool registry of a single call.
type toolSet struct {
	order []string
	tools map[string]ToolDeclaration
}

func newToolSet(decls []ToolDeclaration) (toolSet, error) {
	ts := toolSet{tools: make(map[string]ToolDeclaration, len(decls))}
	for i, d := range decls {
		field := fmt.Sprintf("Tools[%d]", i)
		if d.Name == "" {
			return toolSet{}, ConfigInvalidErr{Field: field, Reason: "tool name must not be empty"}
		}
		if d.Handler == nil {
			return toolSet{}, ConfigInvalidErr{Field: field, Reason: fmt.Sprintf("tool %q has no handler", d.Name)}
		}
		if _, exists := ts.tools[d.Name]; exists {
			return toolSet{}, ConfigInvalidErr{Field: field, Reason: fmt.Sprintf("duplicate tool name %q", d.Name)}
		}
		ts.tools[d.Name] = d
		ts.order = append(ts.order, d.Name)
	}
	return ts, nil
}

func (ts toolSet) empty() bool { return len(ts.order) == 0 }

func (ts toolSet) lookup(name string) (ToolDeclaration, bool) {
	d, ok := ts.tools[name]
	return d, ok
}

// declarations returns the tools in declaration order.
func (ts toolSet) declarations() []ToolDeclaration {
	out := make([]ToolDeclaration, 0, len(ts.order))
	for _, name := range ts.order {
		out = append(out, ts.tools[name])
	}
	return out
}

// invokeTool runs the handler and converts any failure, including a panic, into
// an error value so it can be fed back to the model.
func invokeTool(ctx context.Context, h ToolHandler, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool handler panicked: %v", r)
		}
	}()
	return h.Call(ctx, args)
}

// toolArgs returns the parsed argument object of a tool call. String arguments
// that are not valid JSON are run through jsonrepair before giving up.
func toolArgs(tc *ToolCall) (map[string]any, error) {
	if tc.Args != nil {
		return tc.Args, nil
	}
	raw := strings.TrimSpace(tc.RawArgs)
	if raw == "" {
		return map[string]any{}, nil
	}
	args, err := parseJSONObject(raw)
	if err != nil {
		return nil, MalformedToolArgumentsErr{Tool: tc.Name, Raw: raw, Cause: err}
	}
	return args, nil
}

func parseJSONObject(raw string) (map[string]any, error) {
	var args map[string]any
	err := json.Unmarshal([]byte(raw), &args)
	if err == nil {
		if args == nil {
			return nil, errors.New("arguments are not a JSON object")
		}
		return args, nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil || args == nil {
		return nil, fmt.Errorf("arguments are not a JSON object after repair: %w", err)
	}
	return args, nil
}

// parseJSONValue parses structured output text, repairing it when needed.
func parseJSONValue(raw string) (any, error) {
	var v any
	err := json.Unmarshal([]byte(raw), &v)
	if err == nil {
		return v, nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, err
	}
	return v, nil
}
