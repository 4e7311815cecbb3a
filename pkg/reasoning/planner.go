package reasoning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/localrt/localrt/pkg/llms"
	"github.com/localrt/localrt/pkg/tools"
)

// Default planner budgets.
const (
	DefaultMaxPlanSteps    = 6
	DefaultMaxPlanRewrites = 2
)

// PlannerOptions carries the per-request planner settings ({"planner":true}
// or {"planner":{"enabled":...,"max_plan_steps":...,"max_rewrites":...}}).
type PlannerOptions struct {
	Enabled      bool `json:"enabled" mapstructure:"enabled"`
	MaxPlanSteps int  `json:"max_plan_steps" mapstructure:"max_plan_steps"`
	MaxRewrites  int  `json:"max_rewrites" mapstructure:"max_rewrites"`
}

func parsePlan(assistantText string) ([]PlanStep, bool) {
	v, ok := tools.ParseJSONLoose(assistantText)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if _, isFinal := obj["final"].(string); isFinal {
		return []PlanStep{}, true
	}
	rawPlan, ok := obj["plan"].([]any)
	if !ok {
		return nil, false
	}
	var out []PlanStep
	for _, item := range rawPlan {
		step, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, ok := step["name"].(string)
		if !ok || name == "" {
			continue
		}
		args, _ := step["arguments"].(map[string]any)
		if args == nil {
			args = map[string]any{}
		}
		out = append(out, PlanStep{Name: name, Arguments: args})
	}
	return out, true
}

// validatePlan returns the first rejection reason, or "" when the plan is
// acceptable.
func validatePlan(plan []PlanStep, allowedNames map[string]bool, reg *tools.Registry) string {
	for _, s := range plan {
		if len(allowedNames) > 0 && !allowedNames[s.Name] {
			return "tool not allowed: " + s.Name
		}
		schema, ok := reg.GetSchema(s.Name)
		if !ok {
			return "tool not found: " + s.Name
		}
		if err := tools.ValidateLoose(schema.Parameters, s.Arguments); err != nil {
			return fmt.Sprintf("invalid arguments for %s: %s", s.Name, err.Error())
		}
	}
	return ""
}

// RunPlanner runs plan-then-execute: ask for a bounded plan, repair it with
// up to maxPlanRewrites corrective prompts, execute the accepted steps, then
// summarize the results into a final answer. A run that cannot produce an
// acceptable plan reports PlannerFailed so the caller can fall back to the
// stepwise loop.
func RunPlanner(ctx context.Context, chat ChatFunc, fullMessages []llms.Message,
	allowed []tools.Schema, reg *tools.Registry,
	maxPlanSteps, maxPlanRewrites, maxToolCalls int) (*LoopResult, error) {

	out := &LoopResult{UsedPlanner: true, Plan: []PlanStep{}}

	if maxPlanSteps <= 0 {
		maxPlanSteps = 1
	}
	if maxPlanRewrites < 0 {
		maxPlanRewrites = 0
	}
	if maxToolCalls < 0 {
		maxToolCalls = 0
	}

	allowedNames := allowedNameSet(allowed)

	planMsgs := make([]llms.Message, 0, len(fullMessages)+2)
	planMsgs = append(planMsgs, llms.Message{Role: "system", Content: BuildPlannerSystemPrompt(allowed, maxPlanSteps)})
	planMsgs = append(planMsgs, fullMessages...)

	var plan []PlanStep
	havePlan := false
	planText := ""
	rewrites := 0
	for attempt := 0; attempt <= maxPlanRewrites; attempt++ {
		var err error
		planText, err = chat(ctx, planMsgs)
		if err != nil && planText == "" {
			out.PlannerFailed = true
			return out, err
		}
		if final, ok := ExtractFinal(planText); ok {
			out.FinalText = final
			out.Steps = 1
			return out, nil
		}
		parsed, ok := parsePlan(planText)
		if !ok {
			if attempt == maxPlanRewrites {
				out.PlannerFailed = true
				out.FinalText = planText
				out.Steps = 1
				return out, nil
			}
			planMsgs = append(planMsgs, llms.Message{Role: "user",
				Content: "Plan invalid JSON. Return a corrected plan JSON only."})
			continue
		}
		why := validatePlan(parsed, allowedNames, reg)
		if why == "" {
			plan = parsed
			havePlan = true
			break
		}
		if attempt == maxPlanRewrites {
			out.PlannerFailed = true
			out.FinalText = why
			out.Steps = 1
			return out, nil
		}
		planMsgs = append(planMsgs, llms.Message{Role: "user",
			Content: "Plan rejected: " + why + ". Return a corrected plan JSON only."})
		rewrites = attempt + 1
	}

	if !havePlan {
		out.PlannerFailed = true
		out.FinalText = planText
		out.Steps = 1
		return out, nil
	}

	if len(plan) > maxPlanSteps {
		plan = plan[:maxPlanSteps]
	}
	out.PlanSteps = len(plan)
	out.PlanRewrites = rewrites
	out.Plan = plan

	execMsgs := make([]llms.Message, 0, len(fullMessages)+len(plan)+4)
	execMsgs = append(execMsgs, fullMessages...)

	toolCallsUsed := 0
	for i, s := range plan {
		if toolCallsUsed >= maxToolCalls {
			out.HitToolLimit = true
			out.FinalText = "tool call limit exceeded"
			out.Steps = i + 1
			return out, nil
		}

		argsJSON, _ := json.Marshal(s.Arguments)
		c := tools.Call{ID: fmt.Sprintf("plan_%d", i+1), Name: s.Name, ArgumentsJSON: string(argsJSON)}
		out.ExecutedCalls = append(out.ExecutedCalls, c)

		var r tools.Result
		switch {
		case len(allowedNames) > 0 && !allowedNames[c.Name]:
			r = rejectedResult(c.ID, c.Name, "tool not allowed")
		case !reg.Has(c.Name):
			r = rejectedResult(c.ID, c.Name, "tool not found")
		default:
			r = reg.Execute(ctx, c.ID, c.Name, s.Arguments)
		}
		out.Results = append(out.Results, r)
		execMsgs = append(execMsgs, toolResultMessage(c.Name, r))
		toolCallsUsed++
	}

	finalMsgs := make([]llms.Message, 0, len(execMsgs)+2)
	finalMsgs = append(finalMsgs, llms.Message{Role: "system", Content: BuildSummarizerSystemPrompt()})
	finalMsgs = append(finalMsgs, execMsgs...)

	finalText, err := chat(ctx, finalMsgs)
	out.Steps = 2
	if final, ok := ExtractFinal(finalText); ok {
		out.FinalText = final
		return out, nil
	}
	out.FinalText = finalText
	if out.FinalText == "" && err != nil {
		return out, err
	}
	return out, nil
}
