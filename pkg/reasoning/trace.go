package reasoning

import "encoding/json"

type traceCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type traceResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	Result     any    `json:"result"`
}

type runtimeTrace struct {
	Steps         int           `json:"steps"`
	HitStepLimit  bool          `json:"hit_step_limit"`
	HitToolLimit  bool          `json:"hit_tool_limit"`
	UsedPlanner   bool          `json:"used_planner"`
	PlannerFailed bool          `json:"planner_failed"`
	PlanSteps     int           `json:"plan_steps"`
	PlanRewrites  int           `json:"plan_rewrites"`
	Plan          []PlanStep    `json:"plan"`
	ToolCalls     []traceCall   `json:"tool_calls"`
	ToolResults   []traceResult `json:"tool_results"`
}

// BuildRuntimeTrace renders the loop outcome as the compact JSON document
// returned in the x-runtime-trace response header.
func BuildRuntimeTrace(loop *LoopResult) string {
	t := runtimeTrace{
		Steps:         loop.Steps,
		HitStepLimit:  loop.HitStepLimit,
		HitToolLimit:  loop.HitToolLimit,
		UsedPlanner:   loop.UsedPlanner,
		PlannerFailed: loop.PlannerFailed,
		PlanSteps:     loop.PlanSteps,
		PlanRewrites:  loop.PlanRewrites,
		Plan:          loop.Plan,
		ToolCalls:     []traceCall{},
		ToolResults:   []traceResult{},
	}
	if t.Plan == nil {
		t.Plan = []PlanStep{}
	}
	for _, c := range loop.ExecutedCalls {
		t.ToolCalls = append(t.ToolCalls, traceCall{ID: c.ID, Name: c.Name, Arguments: c.ArgumentsJSON})
	}
	for _, r := range loop.Results {
		t.ToolResults = append(t.ToolResults, traceResult{
			ToolCallID: r.ToolCallID, Name: r.Name, OK: r.OK, Result: r.Result,
		})
	}
	enc, err := json.Marshal(t)
	if err != nil {
		return "{}"
	}
	return string(enc)
}
