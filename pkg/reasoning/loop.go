package reasoning

import (
	"context"
	"encoding/json"

	"github.com/localrt/localrt/pkg/llms"
	"github.com/localrt/localrt/pkg/tools"
)

// Default loop budgets. Requests may lower or raise them per call.
const (
	DefaultMaxSteps     = 6
	DefaultMaxToolCalls = 16
)

// ChatFunc produces one non-streaming assistant completion for the given
// messages. The server binds it to a resolved provider, or to the scripted
// fake model.
type ChatFunc func(ctx context.Context, messages []llms.Message) (string, error)

// PlanStep is one step of an accepted planner plan.
type PlanStep struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// LoopResult is the outcome of a tool loop or planner run: the final answer,
// everything that was executed on the way, and the counters the runtime trace
// reports.
type LoopResult struct {
	FinalText     string
	ExecutedCalls []tools.Call
	Results       []tools.Result
	Steps         int
	HitStepLimit  bool
	HitToolLimit  bool
	UsedPlanner   bool
	PlannerFailed bool
	PlanSteps     int
	PlanRewrites  int
	Plan          []PlanStep
}

// FinishReason maps the loop outcome onto the wire-level finish reason.
func (r *LoopResult) FinishReason(err error) string {
	switch {
	case err != nil:
		return "error"
	case r.HitToolLimit:
		return "tool_limit"
	case r.HitStepLimit:
		return "length"
	default:
		return "stop"
	}
}

func allowedNameSet(schemas []tools.Schema) map[string]bool {
	set := make(map[string]bool, len(schemas))
	for _, s := range schemas {
		set[s.Name] = true
	}
	return set
}

func marshalResult(r tools.Result) string {
	enc, err := json.Marshal(r.Result)
	if err != nil {
		return `{"ok":false,"error":"unencodable result"}`
	}
	return string(enc)
}

func toolResultMessage(name string, r tools.Result) llms.Message {
	return llms.Message{Role: "user", Content: "TOOL_RESULT " + name + " " + marshalResult(r)}
}

func rejectedResult(toolCallID, name, message string) tools.Result {
	return tools.Result{
		ToolCallID: toolCallID,
		Name:       name,
		OK:         false,
		Error:      message,
		Result:     map[string]any{"ok": false, "error": message},
	}
}

// RunToolLoop runs the prompted tool loop: ask the model, execute any tool
// calls it emits, feed results back, and stop on a final answer or a budget.
// Rejected calls (not allowed, unknown, bad arguments) are reported back to
// the model as failed results without consuming the tool budget.
func RunToolLoop(ctx context.Context, chat ChatFunc, fullMessages []llms.Message,
	allowed []tools.Schema, reg *tools.Registry, maxSteps, maxToolCalls int) (*LoopResult, error) {

	out := &LoopResult{Plan: []PlanStep{}}
	allowedNames := allowedNameSet(allowed)

	msgs := make([]llms.Message, 0, len(fullMessages)+8)
	if len(allowed) > 0 {
		msgs = append(msgs, llms.Message{Role: "system", Content: BuildToolSystemPrompt(allowed)})
	}
	msgs = append(msgs, fullMessages...)

	if maxSteps <= 0 {
		maxSteps = 1
	}
	if maxToolCalls < 0 {
		maxToolCalls = 0
	}

	toolCallsUsed := 0
	for step := 0; step < maxSteps; step++ {
		out.Steps = step + 1

		assistantText, err := chat(ctx, msgs)
		if err != nil {
			return out, err
		}

		calls := tools.ParseToolCalls(assistantText)
		if len(calls) == 0 {
			if final, ok := ExtractFinal(assistantText); ok {
				out.FinalText = final
				return out, nil
			}
			out.FinalText = assistantText
			return out, nil
		}

		for _, c := range calls {
			if len(allowedNames) > 0 && !allowedNames[c.Name] {
				r := rejectedResult(c.ID, c.Name, "tool not allowed")
				out.ExecutedCalls = append(out.ExecutedCalls, c)
				out.Results = append(out.Results, r)
				msgs = append(msgs, toolResultMessage(c.Name, r))
				continue
			}
			if !reg.Has(c.Name) {
				r := rejectedResult(c.ID, c.Name, "tool not found")
				out.ExecutedCalls = append(out.ExecutedCalls, c)
				out.Results = append(out.Results, r)
				msgs = append(msgs, toolResultMessage(c.Name, r))
				continue
			}
			if toolCallsUsed >= maxToolCalls {
				out.HitToolLimit = true
				out.FinalText = "tool call limit exceeded"
				return out, nil
			}
			argsVal, ok := tools.ParseJSONLoose(c.ArgumentsJSON)
			if !ok {
				r := rejectedResult(c.ID, c.Name, "invalid tool arguments json")
				out.ExecutedCalls = append(out.ExecutedCalls, c)
				out.Results = append(out.Results, r)
				msgs = append(msgs, toolResultMessage(c.Name, r))
				continue
			}
			args, _ := argsVal.(map[string]any)

			r := reg.Execute(ctx, c.ID, c.Name, args)
			toolCallsUsed++
			out.ExecutedCalls = append(out.ExecutedCalls, c)
			out.Results = append(out.Results, r)
			msgs = append(msgs, toolResultMessage(c.Name, r))
		}
	}

	out.HitStepLimit = true
	out.FinalText = "tool loop exceeded max steps"
	return out, nil
}
