package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/localrt/localrt/pkg/llms"
)

// apiError is the OpenAI-style error envelope. param and code always render
// as explicit nulls.
type apiError struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

type errorBody struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, errType string) {
	writeJSON(w, status, errorBody{Error: apiError{Message: message, Type: errType}})
}

func nowSeconds() int64 {
	return time.Now().Unix()
}

// decodeBody reads the request body as a loose JSON object.
func decodeBody(r *http.Request) (map[string]any, bool) {
	var body map[string]any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil || body == nil {
		return nil, false
	}
	return body, true
}

func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

func boolField(body map[string]any, key string) bool {
	b, _ := body[key].(bool)
	return b
}

func intField(body map[string]any, key string, fallback int) int {
	if f, ok := body[key].(float64); ok {
		return int(f)
	}
	return fallback
}

func floatPtrField(body map[string]any, key string) *float64 {
	if f, ok := body[key].(float64); ok {
		return &f
	}
	return nil
}

// flattenContent renders a message content value to plain text. Content-part
// arrays concatenate their text parts.
func flattenContent(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		out := ""
		for _, item := range t {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if typ, _ := part["type"].(string); typ != "" && typ != "text" {
				continue
			}
			if text, ok := part["text"].(string); ok {
				out += text
			}
		}
		return out
	default:
		return ""
	}
}

// parseChatMessages extracts the normalized message list. ok is false when
// the messages field is missing or not an array; entries without a role are
// skipped.
func parseChatMessages(body map[string]any) ([]llms.Message, bool) {
	raw, ok := body["messages"].([]any)
	if !ok {
		return nil, false
	}
	out := make([]llms.Message, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := obj["role"].(string)
		if role == "" {
			continue
		}
		out = append(out, llms.Message{Role: role, Content: flattenContent(obj["content"])})
	}
	return out, true
}

// parseRequestedToolNames collects tool names from the request's tools array,
// accepting both {"function":{"name":...}} and bare {"name":...} entries.
func parseRequestedToolNames(body map[string]any) []string {
	raw, ok := body["tools"].([]any)
	if !ok {
		return nil
	}
	var names []string
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if fn, ok := obj["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok && name != "" {
				names = append(names, name)
				continue
			}
		}
		if name, ok := obj["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

func toolChoiceIsNone(body map[string]any) bool {
	switch t := body["tool_choice"].(type) {
	case string:
		return t == "none"
	case map[string]any:
		typ, _ := t["type"].(string)
		return typ == "none"
	default:
		return false
	}
}

// namedToolChoice returns the tool name a non-auto tool_choice pins, or ""
// for auto/none/absent.
func namedToolChoice(body map[string]any) string {
	switch t := body["tool_choice"].(type) {
	case string:
		if t == "auto" || t == "none" || t == "" {
			return ""
		}
		return t
	case map[string]any:
		if fn, ok := t["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok {
				return name
			}
		}
		if name, ok := t["name"].(string); ok {
			return name
		}
		return ""
	default:
		return ""
	}
}

// parseInputText extracts the input field of embeddings and responses
// requests: a plain string, or the first element of an array holding either
// a string or an object with a string content field.
func parseInputText(body map[string]any) (string, bool) {
	switch t := body["input"].(type) {
	case string:
		return t, true
	case []any:
		if len(t) == 0 {
			return "", false
		}
		switch first := t[0].(type) {
		case string:
			return first, true
		case map[string]any:
			if content, ok := first["content"].(string); ok {
				return content, true
			}
			return "", false
		default:
			return "", false
		}
	default:
		return "", false
	}
}
