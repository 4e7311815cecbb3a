package reasoning

import (
	"encoding/json"
	"strings"

	"github.com/localrt/localrt/pkg/llms"
)

// FakeModelName routes a request to the deterministic scripted model below
// instead of a real backend.
const FakeModelName = "fake-tool"

const (
	fakeURI      = "file:///workspace/localrt/src/main.go"
	fakeReadPath = "src/main.go"
)

// FakeModelOnce is a deterministic stand-in model for integration testing the
// tool loop and planner without any backend. It keys off the latest system
// and user messages: planner prompts get plans, summarizer prompts get
// finals, everything else gets scripted tool calls followed by "done".
func FakeModelOnce(messages []llms.Message) string {
	hasToolResult := false
	lastUser := ""
	lastSystem := ""
	for _, m := range messages {
		if m.Role == "user" {
			lastUser = m.Content
		}
		if m.Role == "system" {
			lastSystem = m.Content
		}
		if m.Role == "user" && strings.Contains(m.Content, "TOOL_RESULT") {
			hasToolResult = true
			break
		}
	}

	if strings.Contains(lastSystem, "You are a planner.") {
		switch {
		case strings.Contains(lastUser, "bad_args"):
			return `{"plan":[{"name":"ide.hover","arguments":{"uri":"` + fakeURI + `","line":"x","character":2}}]}`
		case strings.Contains(lastUser, "ide.read_file"):
			return `{"plan":[{"name":"ide.read_file","arguments":{"path":"` + fakeReadPath + `"}}]}`
		case strings.Contains(lastUser, "ide.search"):
			return `{"plan":[{"name":"ide.search","arguments":{"query":"ChatRouter","path":"src"}}]}`
		case strings.Contains(lastUser, "ide.hover"):
			return `{"plan":[{"name":"ide.hover","arguments":{"uri":"` + fakeURI + `","line":1,"character":2}}]}`
		case strings.Contains(lastUser, "ide.definition"):
			return `{"plan":[{"name":"ide.definition","arguments":{"uri":"` + fakeURI + `","line":1,"character":2}}]}`
		case strings.Contains(lastUser, "ide.diagnostics"):
			return `{"plan":[{"name":"ide.diagnostics","arguments":{"uri":"` + fakeURI + `"}}]}`
		case strings.Contains(lastUser, "lsp.hover"):
			return `{"plan":[{"name":"lsp.hover","arguments":{"uri":"` + fakeURI + `","line":1,"character":2}}]}`
		default:
			return `{"plan":[{"name":"runtime.add","arguments":{"a":2,"b":3}}]}`
		}
	}

	if strings.Contains(lastSystem, "tool result summarizer") {
		if strings.Contains(lastUser, "TOOL_RESULT") {
			enc, _ := json.Marshal(lastUser)
			return `{"final":` + string(enc) + `}`
		}
		return `{"final":"done"}`
	}

	if !hasToolResult {
		switch {
		case strings.Contains(lastUser, "mcp2.mcp.echo"):
			return `{"tool_calls":[{"id":"call_1","name":"mcp2.mcp.echo","arguments":{"text":"hello2"}}]}`
		case strings.Contains(lastUser, "mcp.echo"):
			return `{"tool_calls":[{"id":"call_1","name":"mcp.echo","arguments":{"text":"hello"}}]}`
		case strings.Contains(lastUser, "ide.read_file"):
			return `{"tool_calls":[{"id":"call_1","name":"ide.read_file","arguments":{"path":"` + fakeReadPath + `"}}]}`
		case strings.Contains(lastUser, "ide.search"):
			return `{"tool_calls":[{"id":"call_1","name":"ide.search","arguments":{"query":"ChatRouter","path":"src"}}]}`
		case strings.Contains(lastUser, "ide.hover"):
			return `{"tool_calls":[{"id":"call_1","name":"ide.hover","arguments":{"uri":"` + fakeURI + `","line":1,"character":2}}]}`
		case strings.Contains(lastUser, "ide.definition"):
			return `{"tool_calls":[{"id":"call_1","name":"ide.definition","arguments":{"uri":"` + fakeURI + `","line":1,"character":2}}]}`
		case strings.Contains(lastUser, "ide.diagnostics"):
			return `{"tool_calls":[{"id":"call_1","name":"ide.diagnostics","arguments":{"uri":"` + fakeURI + `"}}]}`
		case strings.Contains(lastUser, "lsp.hover"):
			return `{"tool_calls":[{"id":"call_1","name":"lsp.hover","arguments":{"uri":"` + fakeURI + `","line":1,"character":2}}]}`
		default:
			return `{"tool_calls":[{"id":"call_1","name":"runtime.add","arguments":{"a":2,"b":3}}]}`
		}
	}

	for _, marker := range []string{
		"mcp.echo", "mcp2.mcp.echo", "lsp.hover", "ide.hover",
		"ide.read_file", "ide.search", "ide.definition", "ide.diagnostics",
	} {
		if strings.Contains(lastUser, marker) {
			if strings.Contains(lastUser, "TOOL_RESULT") {
				enc, _ := json.Marshal(lastUser)
				return `{"final":` + string(enc) + `}`
			}
			return `{"final":"done"}`
		}
	}
	return `{"final":"2 + 3 = 5"}`
}
