package reasoning

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrt/localrt/pkg/llms"
)

func TestRunPlannerHappyPath(t *testing.T) {
	reg := newTestRegistry(t)
	allowed := reg.FilterSchemas([]string{"runtime.add"})
	msgs := []llms.Message{{Role: "user", Content: "add the numbers"}}

	loop, err := RunPlanner(context.Background(), fakeChat, msgs, allowed, reg, 2, 1, 16)
	require.NoError(t, err)
	assert.True(t, loop.UsedPlanner)
	assert.False(t, loop.PlannerFailed)
	assert.Equal(t, 1, loop.PlanSteps)
	assert.Equal(t, 0, loop.PlanRewrites)
	assert.Equal(t, 2, loop.Steps)
	require.Len(t, loop.ExecutedCalls, 1)
	assert.Equal(t, "plan_1", loop.ExecutedCalls[0].ID)
	assert.Equal(t, "runtime.add", loop.ExecutedCalls[0].Name)
	assert.Contains(t, loop.FinalText, "TOOL_RESULT runtime.add")
}

func TestRunPlannerRepairsBadArguments(t *testing.T) {
	reg := newTestRegistry(t)
	allowed := reg.FilterSchemas([]string{"ide.hover"})
	msgs := []llms.Message{{Role: "user", Content: "bad_args ide.hover"}}

	loop, err := RunPlanner(context.Background(), fakeChat, msgs, allowed, reg, 2, 1, 16)
	require.NoError(t, err)
	assert.True(t, loop.UsedPlanner)
	assert.False(t, loop.PlannerFailed)
	assert.Equal(t, 1, loop.PlanRewrites)
	require.Len(t, loop.ExecutedCalls, 1)
	assert.Equal(t, "ide.hover", loop.ExecutedCalls[0].Name)
	require.Len(t, loop.Results, 1)
	assert.True(t, loop.Results[0].OK)
}

func TestRunPlannerDirectFinal(t *testing.T) {
	reg := newTestRegistry(t)
	loop, err := RunPlanner(context.Background(), scriptedChat(`{"final":"no tools needed"}`),
		nil, reg.ListSchemas(), reg, 2, 1, 16)
	require.NoError(t, err)
	assert.Equal(t, "no tools needed", loop.FinalText)
	assert.Equal(t, 1, loop.Steps)
	assert.Equal(t, 0, loop.PlanSteps)
	assert.Empty(t, loop.ExecutedCalls)
}

func TestRunPlannerInvalidJSONExhaustsRewrites(t *testing.T) {
	reg := newTestRegistry(t)
	loop, err := RunPlanner(context.Background(), scriptedChat("not a plan at all"),
		nil, reg.ListSchemas(), reg, 2, 1, 16)
	require.NoError(t, err)
	assert.True(t, loop.PlannerFailed)
	assert.Equal(t, "not a plan at all", loop.FinalText)
	assert.Equal(t, 1, loop.Steps)
}

func TestRunPlannerRejectsUnknownTool(t *testing.T) {
	reg := newTestRegistry(t)
	loop, err := RunPlanner(context.Background(),
		scriptedChat(`{"plan":[{"name":"ghost.tool","arguments":{}}]}`),
		nil, reg.ListSchemas(), reg, 2, 0, 16)
	require.NoError(t, err)
	assert.True(t, loop.PlannerFailed)
	assert.Equal(t, "tool not found: ghost.tool", loop.FinalText)
}

func TestRunPlannerTruncatesPlan(t *testing.T) {
	reg := newTestRegistry(t)
	chat := scriptedChat(
		`{"plan":[{"name":"runtime.add","arguments":{"a":1,"b":1}},{"name":"runtime.add","arguments":{"a":2,"b":2}}]}`,
		`{"final":"done"}`,
	)
	loop, err := RunPlanner(context.Background(), chat, nil, reg.ListSchemas(), reg, 1, 0, 16)
	require.NoError(t, err)
	assert.Equal(t, 1, loop.PlanSteps)
	assert.Len(t, loop.ExecutedCalls, 1)
	assert.Equal(t, "done", loop.FinalText)
}

func TestRunPlannerToolLimit(t *testing.T) {
	reg := newTestRegistry(t)
	chat := scriptedChat(`{"plan":[{"name":"runtime.add","arguments":{"a":1,"b":1}}]}`)
	loop, err := RunPlanner(context.Background(), chat, nil, reg.ListSchemas(), reg, 2, 0, 0)
	require.NoError(t, err)
	assert.True(t, loop.HitToolLimit)
	assert.Equal(t, "tool call limit exceeded", loop.FinalText)
	assert.Equal(t, "tool_limit", loop.FinishReason(nil))
}

func TestRunPlannerFallbackSignal(t *testing.T) {
	reg := newTestRegistry(t)
	loop, err := RunPlanner(context.Background(),
		scriptedChat(`{"plan":[{"name":"ide.hover","arguments":{"uri":1}}]}`),
		nil, reg.ListSchemas(), reg, 2, 0, 16)
	require.NoError(t, err)
	assert.True(t, loop.PlannerFailed)
	assert.True(t, strings.HasPrefix(loop.FinalText, "invalid arguments for ide.hover:"))
}

func TestBuildRuntimeTrace(t *testing.T) {
	reg := newTestRegistry(t)
	allowed := reg.FilterSchemas([]string{"ide.hover"})
	msgs := []llms.Message{{Role: "user", Content: "bad_args ide.hover"}}

	loop, err := RunPlanner(context.Background(), fakeChat, msgs, allowed, reg, 2, 1, 16)
	require.NoError(t, err)

	trace := BuildRuntimeTrace(loop)
	assert.True(t, strings.HasPrefix(trace, `{"steps":`))
	assert.Contains(t, trace, `"used_planner":true`)
	assert.Contains(t, trace, `"plan_rewrites":1`)
	assert.Contains(t, trace, `"tool_calls":[`)
	assert.Contains(t, trace, `"tool_results":[`)
}

func TestBuildRuntimeTraceEmptyLoop(t *testing.T) {
	trace := BuildRuntimeTrace(&LoopResult{Steps: 1})
	assert.Contains(t, trace, `"plan":[]`)
	assert.Contains(t, trace, `"tool_calls":[]`)
	assert.Contains(t, trace, `"tool_results":[]`)
	assert.Contains(t, trace, `"hit_step_limit":false`)
}

func TestPlannerPromptMentionsBudget(t *testing.T) {
	prompt := BuildPlannerSystemPrompt(nil, 3)
	assert.Contains(t, prompt, "You are a planner.\n")
	assert.Contains(t, prompt, "The plan length MUST be <= 3.\n")

	final := BuildSummarizerSystemPrompt()
	assert.True(t, strings.HasPrefix(final, "You are a tool result summarizer.\n"))
}
