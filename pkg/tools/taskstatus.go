package tools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/localrt/localrt/pkg/session"
)

const (
	taskStatusDefaultHistory     = 200
	taskStatusDefaultToolResults = 20
)

func statusScore(status string) int {
	switch status {
	case "completed":
		return 3
	case "in_progress":
		return 2
	case "pending":
		return 1
	default:
		return 0
	}
}

var checkboxPrefixes = []struct {
	prefix string
	status string
}{
	{"- [ ]", "pending"},
	{"* [ ]", "pending"},
	{"- [x]", "completed"},
	{"* [x]", "completed"},
}

// parseTodoLine recognizes markdown checkbox items and plain bullets with a
// status keyword in the text.
func parseTodoLine(rawLine string) (text, status string, ok bool) {
	line := strings.TrimSpace(rawLine)
	if line == "" {
		return "", "", false
	}
	lower := strings.ToLower(line)

	for _, cp := range checkboxPrefixes {
		if strings.HasPrefix(lower, cp.prefix) {
			text := strings.TrimSpace(line[len(cp.prefix):])
			if text == "" {
				return "", "", false
			}
			return text, cp.status, true
		}
	}

	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		text := strings.TrimSpace(line[2:])
		if text == "" {
			return "", "", false
		}
		switch {
		case strings.Contains(lower, "in progress") || strings.Contains(lower, "in_progress"):
			return text, "in_progress", true
		case strings.Contains(lower, "completed") || strings.Contains(lower, "done"):
			return text, "completed", true
		case strings.Contains(lower, "pending"):
			return text, "pending", true
		default:
			return text, "unknown", true
		}
	}
	return "", "", false
}

// inferTodosFromSession scans the most recent history for todo-looking lines
// and keeps the most advanced status seen per item.
func inferTodosFromSession(s *session.Session, maxHistoryMessages int) []map[string]any {
	best := map[string]string{}
	var order []string

	start := 0
	if maxHistoryMessages > 0 && len(s.History) > maxHistoryMessages {
		start = len(s.History) - maxHistoryMessages
	}

	for _, m := range s.History[start:] {
		if m.Role != "assistant" && m.Role != "user" {
			continue
		}
		for _, line := range strings.Split(m.Content, "\n") {
			text, status, ok := parseTodoLine(line)
			if !ok {
				continue
			}
			prev, seen := best[text]
			if !seen {
				best[text] = status
				order = append(order, text)
				continue
			}
			if statusScore(status) > statusScore(prev) {
				best[text] = status
			}
		}
	}

	sort.Strings(order)
	todos := make([]map[string]any, 0, len(order))
	for _, text := range order {
		todos = append(todos, map[string]any{"text": text, "status": best[text]})
	}
	return todos
}

// extractRecentToolResults walks history newest-first collecting the tool
// result echoes the chat loop writes as user messages.
func extractRecentToolResults(s *session.Session, maxItems int) []map[string]any {
	out := make([]map[string]any, 0)
	if maxItems <= 0 {
		return out
	}
	const prefix = "TOOL_RESULT "
	for i := len(s.History) - 1; i >= 0 && len(out) < maxItems; i-- {
		m := s.History[i]
		if m.Role != "user" || !strings.HasPrefix(m.Content, prefix) {
			continue
		}
		rest := m.Content[len(prefix):]
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			continue
		}
		name := rest[:sp]
		payload := strings.TrimSpace(rest[sp+1:])

		var parsed any
		ok := true
		var result any = payload
		if err := json.Unmarshal([]byte(payload), &parsed); err == nil {
			result = parsed
			if obj, isObj := parsed.(map[string]any); isObj {
				if v, has := obj["ok"].(bool); has {
					ok = v
				}
			}
		}
		out = append(out, map[string]any{"name": name, "ok": ok, "result": result})
	}
	return out
}

// RegisterTaskStatus exposes runtime.infer_task_status, which summarizes a
// stored session: counts, inferred todos, and recent tool results.
func RegisterTaskStatus(reg *Registry, sessions *session.Manager) {
	schema := Schema{
		Name:        "runtime.infer_task_status",
		Description: "Infer todo/task status from server session context.",
		Parameters: objectSchema(map[string]any{
			"session_id":              prop("string"),
			"max_history_messages":    prop("integer"),
			"max_recent_tool_results": prop("integer"),
		}, []string{"session_id"}),
	}
	reg.Register(schema, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		sessionID, ok := stringArg(args, "session_id")
		if !ok {
			return errorResult(toolCallID, schema.Name, "missing required field: session_id")
		}

		maxHistoryMessages := taskStatusDefaultHistory
		maxRecentToolResults := taskStatusDefaultToolResults
		if v, ok := intArg(args, "max_history_messages"); ok {
			maxHistoryMessages = v
		}
		if v, ok := intArg(args, "max_recent_tool_results"); ok {
			maxRecentToolResults = v
		}

		s := sessions.GetOrCreate(sessionID)

		result := map[string]any{
			"ok":                  true,
			"session_id":          s.SessionID,
			"history_messages":    len(s.History),
			"turns":               len(s.Turns),
			"todos":               inferTodosFromSession(s, maxHistoryMessages),
			"recent_tool_results": extractRecentToolResults(s, maxRecentToolResults),
		}
		if len(s.Turns) > 0 {
			result["last_turn_id"] = s.Turns[len(s.Turns)-1].TurnID
		}
		return okResult(toolCallID, schema.Name, result)
	})
}
