package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/localrt/localrt/pkg/llms"
	"github.com/localrt/localrt/pkg/reasoning"
	"github.com/localrt/localrt/pkg/session"
	"github.com/localrt/localrt/pkg/tools"
)

type chatUsage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// parsePlannerOptions reads the planner field, which is either a boolean or
// an options object.
func parsePlannerOptions(v any) reasoning.PlannerOptions {
	opts := reasoning.PlannerOptions{
		MaxPlanSteps: reasoning.DefaultMaxPlanSteps,
		MaxRewrites:  reasoning.DefaultMaxPlanRewrites,
	}
	switch t := v.(type) {
	case bool:
		opts.Enabled = t
	case map[string]any:
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &opts,
		})
		if err == nil {
			_ = dec.Decode(t)
		}
	}
	return opts
}

// chatCall holds everything the chat handler derives from one request before
// running the orchestrator.
type chatCall struct {
	model       string
	reqMessages []llms.Message
	full        []llms.Message
	sessionID   string
	turnID      string
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid json body", "invalid_request_error")
		return
	}
	model := stringField(body, "model")
	if model == "" {
		writeError(w, http.StatusBadRequest, "missing field: model", "invalid_request_error")
		return
	}
	reqMessages, ok := parseChatMessages(body)
	if !ok || len(reqMessages) == 0 {
		writeError(w, http.StatusBadRequest, "missing field: messages", "invalid_request_error")
		return
	}

	sessionID := stringField(body, "session_id")
	if sessionID == "" {
		sessionID = r.Header.Get("x-session-id")
	}
	clientProvidedSession := sessionID != ""
	sessionID = s.sessions.EnsureSessionID(sessionID)

	release, err := s.sessions.Acquire(sessionID)
	if err != nil {
		writeError(w, http.StatusConflict, "session_busy", "invalid_request_error")
		return
	}
	defer release()
	w.Header().Set("x-session-id", sessionID)

	useHistory := boolField(body, "use_server_history")
	full := reqMessages
	if useHistory || clientProvidedSession {
		sess := s.sessions.GetOrCreate(sessionID)
		if len(sess.History) > 0 {
			full = make([]llms.Message, 0, len(sess.History)+len(reqMessages))
			full = append(full, sess.History...)
			full = append(full, reqMessages...)
		}
	}

	stream := boolField(body, "stream")
	maxSteps := intField(body, "max_steps", reasoning.DefaultMaxSteps)
	maxToolCalls := intField(body, "max_tool_calls", reasoning.DefaultMaxToolCalls)
	planner := parsePlannerOptions(body["planner"])
	traceOn := boolField(body, "trace")
	maxTokens := intField(body, "max_tokens", 0)

	timeout := DefaultRequestTimeout
	if t := floatPtrField(body, "timeout_s"); t != nil && *t > 0 {
		timeout = time.Duration(*t * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	var allowed []tools.Schema
	if !toolChoiceIsNone(body) {
		if named := namedToolChoice(body); named != "" && !s.tools.Has(named) {
			writeError(w, http.StatusBadRequest, "unknown tool in tool_choice", "invalid_request_error")
			return
		}
		allowed = s.tools.FilterSchemas(parseRequestedToolNames(body))
	}

	sampling := llms.Sampling{
		Temperature: floatPtrField(body, "temperature"),
		TopP:        floatPtrField(body, "top_p"),
		MinP:        floatPtrField(body, "min_p"),
	}

	var chatFn reasoning.ChatFunc
	if model == reasoning.FakeModelName {
		chatFn = func(ctx context.Context, messages []llms.Message) (string, error) {
			return reasoning.FakeModelOnce(messages), nil
		}
	} else {
		resolved, err := s.providers.Resolve(model)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown provider in model", "invalid_request_error")
			return
		}
		normalized := llms.NormalizeSampling(model, sampling)
		chatFn = func(ctx context.Context, messages []llms.Message) (string, error) {
			start := time.Now()
			resp, err := resolved.Provider.ChatOnce(ctx, &llms.ChatRequest{
				Model:     resolved.Model,
				Messages:  messages,
				MaxTokens: maxTokens,
				Sampling:  normalized,
			})
			if s.metrics != nil {
				s.metrics.RecordLLMRequest(ctx, resolved.ProviderName, resolved.Model, time.Since(start), err)
			}
			if err != nil {
				return "", err
			}
			return resp.Content, nil
		}
	}

	call := chatCall{
		model:       model,
		reqMessages: reqMessages,
		full:        full,
		sessionID:   sessionID,
		turnID:      session.NewID("turn"),
	}

	loop, loopErr := s.runCompletion(ctx, chatFn, call, allowed, planner, maxSteps, maxToolCalls)
	if loop.FinalText == "" && loopErr != nil {
		msg := loopErr.Error()
		if msg == "" {
			msg = "upstream error"
		}
		writeError(w, http.StatusBadGateway, msg, "api_error")
		return
	}
	if traceOn {
		w.Header().Set("x-runtime-trace", reasoning.BuildRuntimeTrace(loop))
	}

	if stream {
		s.streamCompletion(w, call, loop)
		return
	}

	final := loop.FinalText
	s.persistCompletion(call, loop, final)

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      session.NewID("chatcmpl"),
		Object:  "chat.completion",
		Created: nowSeconds(),
		Model:   model,
		Choices: []chatChoice{{
			Index:        0,
			Message:      chatMessage{Role: "assistant", Content: final},
			FinishReason: loop.FinishReason(loopErr),
		}},
	})
}

// runCompletion picks the execution strategy: the planner when requested
// (falling back to the stepwise loop when planning fails), the stepwise loop
// when tools are in play, and a single model call otherwise.
func (s *Server) runCompletion(ctx context.Context, chatFn reasoning.ChatFunc, call chatCall,
	allowed []tools.Schema, planner reasoning.PlannerOptions,
	maxSteps, maxToolCalls int) (*reasoning.LoopResult, error) {

	if len(allowed) > 0 {
		if planner.Enabled {
			loop, err := reasoning.RunPlanner(ctx, chatFn, call.full, allowed, s.tools,
				planner.MaxPlanSteps, planner.MaxRewrites, maxToolCalls)
			if loop != nil && loop.PlannerFailed {
				return reasoning.RunToolLoop(ctx, chatFn, call.full, allowed, s.tools, maxSteps, maxToolCalls)
			}
			return loop, err
		}
		return reasoning.RunToolLoop(ctx, chatFn, call.full, allowed, s.tools, maxSteps, maxToolCalls)
	}

	content, err := chatFn(ctx, call.full)
	return &reasoning.LoopResult{FinalText: content}, err
}

// persistCompletion records the turn and writes the updated history back:
// the request messages, one assistant TOOL_CALL marker per executed call,
// one user TOOL_RESULT marker per result, then the final assistant text.
func (s *Server) persistCompletion(call chatCall, loop *reasoning.LoopResult, finalText string) {
	turn := session.TurnRecord{
		TurnID:        call.turnID,
		InputMessages: call.reqMessages,
		OutputText:    &finalText,
	}
	s.sessions.AppendTurn(call.sessionID, turn)

	s.sessions.AppendToHistory(call.sessionID, call.reqMessages...)
	for _, c := range loop.ExecutedCalls {
		s.sessions.AppendToHistory(call.sessionID,
			llms.Message{Role: "assistant", Content: "TOOL_CALL " + c.Name + " " + c.ArgumentsJSON})
	}
	for _, res := range loop.Results {
		enc, err := json.Marshal(res.Result)
		if err != nil {
			enc = []byte("null")
		}
		s.sessions.AppendToHistory(call.sessionID,
			llms.Message{Role: "user", Content: "TOOL_RESULT " + res.Name + " " + string(enc)})
	}
	s.sessions.AppendToHistory(call.sessionID, llms.Message{Role: "assistant", Content: finalText})
}
