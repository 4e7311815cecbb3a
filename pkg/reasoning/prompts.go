// Package reasoning drives multi-step tool use: the prompted tool loop, the
// plan-then-execute strategy with repair rewrites, and the runtime trace
// clients can request for debugging.
package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/localrt/localrt/pkg/tools"
)

type toolSpecEntry struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func toolSpecJSON(schemas []tools.Schema) string {
	list := make([]toolSpecEntry, 0, len(schemas))
	for _, s := range schemas {
		params := s.Parameters
		if params == nil {
			params = map[string]any{}
		}
		list = append(list, toolSpecEntry{Name: s.Name, Description: s.Description, Parameters: params})
	}
	enc, _ := json.Marshal(map[string]any{"tools": list})
	return string(enc)
}

// BuildToolSystemPrompt instructs the model to answer in the JSON tool-call
// dialect the loop parses.
func BuildToolSystemPrompt(schemas []tools.Schema) string {
	var b strings.Builder
	b.WriteString("You are a tool-using assistant.\n")
	b.WriteString("If you need to call tools, respond ONLY with a single JSON object:\n")
	b.WriteString("{\"tool_calls\":[{\"id\":\"call_1\",\"name\":\"tool_name\",\"arguments\":{...}}]}\n")
	b.WriteString("If you can answer without tools, respond ONLY with:\n")
	b.WriteString("{\"final\":\"...\"}\n")
	b.WriteString("Never include any extra text outside the JSON.\n")
	b.WriteString("Available tools spec:\n")
	b.WriteString(toolSpecJSON(schemas))
	return b.String()
}

// BuildPlannerSystemPrompt instructs the model to emit a bounded plan.
func BuildPlannerSystemPrompt(schemas []tools.Schema, maxPlanSteps int) string {
	var b strings.Builder
	b.WriteString("You are a planner.\n")
	b.WriteString("Return ONLY a single JSON object and no extra text.\n")
	b.WriteString("If tools are needed, output:\n")
	b.WriteString("{\"plan\":[{\"name\":\"tool_name\",\"arguments\":{...}}]}\n")
	fmt.Fprintf(&b, "The plan length MUST be <= %d.\n", maxPlanSteps)
	b.WriteString("If no tools are needed, output:\n")
	b.WriteString("{\"final\":\"...\"}\n")
	b.WriteString("Available tools spec:\n")
	b.WriteString(toolSpecJSON(schemas))
	return b.String()
}

// BuildSummarizerSystemPrompt asks for a final answer over executed tool
// results.
func BuildSummarizerSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a tool result summarizer.\n")
	b.WriteString("You have been given TOOL_RESULT messages.\n")
	b.WriteString("Return ONLY a single JSON object and no extra text:\n")
	b.WriteString("{\"final\":\"...\"}\n")
	return b.String()
}

// ExtractFinal pulls {"final":"..."} out of assistant text, tolerating
// surrounding prose.
func ExtractFinal(text string) (string, bool) {
	v, ok := tools.ParseJSONLoose(text)
	if !ok {
		return "", false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	final, ok := obj["final"].(string)
	return final, ok
}
