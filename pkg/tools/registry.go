package tools

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/localrt/localrt/pkg/observability"
)

// Registry is the mutable set of tools the chat loop can dispatch against.
// Registering an existing name replaces it, which lets an MCP refresh update
// tools in place; cross-server name collisions are resolved by the MCP
// source before registration.
type Registry struct {
	mu       sync.RWMutex
	schemas  map[string]Schema
	handlers map[string]Handler
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{
		schemas:  make(map[string]Schema),
		handlers: make(map[string]Handler),
	}
}

// Register adds or replaces a tool. The schema is sanity-checked against
// JSON Schema; a broken schema is logged but still registered, matching the
// permissive validation the loop applies at call time.
func (r *Registry) Register(schema Schema, handler Handler) error {
	if schema.Name == "" {
		return NewToolRegistryError("ToolRegistry", "Register", "tool name cannot be empty", nil)
	}
	if handler == nil {
		return NewToolRegistryError("ToolRegistry", "Register", "tool handler cannot be nil", nil)
	}

	warnIfSchemaInvalid(schema)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.schemas[schema.Name]; !exists {
		r.order = append(r.order, schema.Name)
	}
	r.schemas[schema.Name] = schema
	r.handlers[schema.Name] = handler
	return nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

func (r *Registry) GetSchema(name string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

func (r *Registry) GetHandler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// ListSchemas returns every schema in registration order.
func (r *Registry) ListSchemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.schemas[name])
	}
	return out
}

// FilterSchemas returns the schemas for the given names, skipping unknowns,
// preserving the order of allowNames.
func (r *Registry) FilterSchemas(allowNames []string) []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(allowNames))
	for _, name := range allowNames {
		if s, ok := r.schemas[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Execute runs a registered tool under a span and records execution metrics.
// The caller is expected to have resolved allow-list and existence checks;
// an unknown name yields a failed Result.
func (r *Registry) Execute(ctx context.Context, toolCallID, name string, args map[string]any) Result {
	start := time.Now()
	tracer := observability.GetTracer("localrt.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(attribute.String(observability.AttrToolName, name)),
	)
	defer span.End()

	handler, ok := r.GetHandler(name)
	if !ok {
		res := errorResult(toolCallID, name, "tool not found")
		span.SetStatus(codes.Error, res.Error)
		observability.GetGlobalMetrics().RecordToolExecution(ctx, name, time.Since(start), &ToolRegistryError{
			Component: "ToolRegistry", Action: "Execute", Message: res.Error,
		})
		return res
	}

	res := handler(ctx, toolCallID, args)
	duration := time.Since(start)

	var recordErr error
	if !res.OK {
		recordErr = NewToolRegistryError("ToolRegistry", "Execute", res.Error, nil)
		span.SetStatus(codes.Error, res.Error)
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	span.SetAttributes(
		attribute.Bool("tool.success", res.OK),
		attribute.Int64("tool.duration_ms", duration.Milliseconds()),
	)
	observability.GetGlobalMetrics().RecordToolExecution(ctx, name, duration, recordErr)

	return res
}

// ExtractToolNames flattens schemas to their names.
func ExtractToolNames(schemas []Schema) []string {
	out := make([]string, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, s.Name)
	}
	return out
}
