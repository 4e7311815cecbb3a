// Package tools holds the runtime's tool surface: the registry the chat loop
// dispatches against, the builtin workspace tools, MCP-backed tools, and the
// parsers that recover tool calls from free-form assistant text.
package tools

import (
	"context"
	"fmt"
)

// Schema describes one callable tool. Parameters is a JSON-schema object
// ({"type":"object","properties":{...},"required":[...]}).
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Result is the outcome of one tool invocation. Result always carries a JSON
// value; on failure it is {"ok":false,"error":...}.
type Result struct {
	ToolCallID string
	Name       string
	OK         bool
	Error      string
	Result     any
}

// Handler executes a tool. Args is nil when the caller's arguments were not
// a JSON object.
type Handler func(ctx context.Context, toolCallID string, args map[string]any) Result

// Call is a parsed tool call: the arguments stay as raw JSON text until
// validation.
type Call struct {
	ID            string
	Name          string
	ArgumentsJSON string
}

// ToolRegistryError wraps registry failures with component and action
// context.
type ToolRegistryError struct {
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *ToolRegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Action, e.Message)
}

func NewToolRegistryError(component, action, message string, err error) *ToolRegistryError {
	return &ToolRegistryError{Component: component, Action: action, Message: message, Err: err}
}

func errorResult(toolCallID, name, message string) Result {
	return Result{
		ToolCallID: toolCallID,
		Name:       name,
		OK:         false,
		Error:      message,
		Result:     map[string]any{"ok": false, "error": message},
	}
}

func okResult(toolCallID, name string, result map[string]any) Result {
	if _, ok := result["ok"]; !ok {
		result["ok"] = true
	}
	return Result{ToolCallID: toolCallID, Name: name, OK: true, Result: result}
}
