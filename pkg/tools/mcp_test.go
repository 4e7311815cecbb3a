package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrt/localrt/pkg/config"
)

type fakeMCPServer struct {
	tools []map[string]any
	calls []map[string]any
}

func (f *fakeMCPServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     any            `json:"id"`
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result any
		switch req.Method {
		case "initialize":
			result = map[string]any{"protocolVersion": "2024-11-05"}
		case "tools/list":
			result = map[string]any{"tools": f.tools}
		case "tools/call":
			f.calls = append(f.calls, req.Params)
			name, _ := req.Params["name"].(string)
			result = map[string]any{
				"content": []any{map[string]any{"type": "text", "text": "handled " + name}},
				"isError": false,
			}
		default:
			result = map[string]any{}
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}
}

func endpointFor(t *testing.T, srv *httptest.Server) config.Endpoint {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return config.Endpoint{Scheme: u.Scheme, Host: u.Hostname(), Port: port}
}

func newMCPTestSource(t *testing.T, root string, servers ...*fakeMCPServer) *MCPSource {
	t.Helper()
	var cfg config.MCP
	for _, f := range servers {
		srv := httptest.NewServer(f.handler())
		t.Cleanup(srv.Close)
		cfg.Hosts = append(cfg.Hosts, endpointFor(t, srv))
	}
	src := NewMCPSource(cfg, root)
	src.Connect(context.Background())
	return src
}

func TestMCPSourceRefreshRegistersTools(t *testing.T) {
	fake := &fakeMCPServer{tools: []map[string]any{
		{"name": "fs.search", "description": "search files", "inputSchema": map[string]any{"type": "object"}},
		{"name": "fs.read_file", "title": "read a file"},
	}}
	src := newMCPTestSource(t, t.TempDir(), fake)

	reg := NewRegistry()
	out := src.Refresh(context.Background(), reg)
	assert.True(t, out.OK)
	assert.Equal(t, 1, out.Servers)
	assert.Equal(t, 2, out.Registered)
	assert.Empty(t, out.Errors)

	require.True(t, reg.Has("fs.search"))
	require.True(t, reg.Has("fs.read_file"))

	schema, _ := reg.GetSchema("fs.read_file")
	assert.Equal(t, "read a file", schema.Description, "title backfills a missing description")

	r := reg.Execute(context.Background(), "c1", "fs.search", map[string]any{"query": "x"})
	require.True(t, r.OK)
	m := resultMap(t, r)
	assert.Equal(t, false, m["isError"])
}

func TestMCPSourceCollisionPrefix(t *testing.T) {
	first := &fakeMCPServer{tools: []map[string]any{{"name": "mcp.echo"}}}
	second := &fakeMCPServer{tools: []map[string]any{{"name": "mcp.echo"}}}
	src := newMCPTestSource(t, t.TempDir(), first, second)

	reg := NewRegistry()
	out := src.Refresh(context.Background(), reg)
	assert.Equal(t, 2, out.Registered)

	assert.True(t, reg.Has("mcp.echo"))
	assert.True(t, reg.Has("mcp2.mcp.echo"))

	// A second refresh keeps the established names instead of re-prefixing.
	out = src.Refresh(context.Background(), reg)
	assert.Equal(t, 2, out.Registered)
	assert.False(t, reg.Has("mcp2.mcp2.mcp.echo"))
}

func TestMCPSourceDropsFailedServers(t *testing.T) {
	var cfg config.MCP
	cfg.Hosts = append(cfg.Hosts, config.Endpoint{Scheme: "http", Host: "127.0.0.1", Port: 1})
	src := NewMCPSource(cfg, "")
	src.Connect(context.Background())
	assert.False(t, src.HasServers())

	reg := NewRegistry()
	out := src.Refresh(context.Background(), reg)
	assert.Equal(t, 0, out.Servers)
	assert.Equal(t, 0, out.Registered)
}

func TestIDEToolsRelayToRemote(t *testing.T) {
	fake := &fakeMCPServer{}
	root := t.TempDir()
	src := newMCPTestSource(t, root, fake)

	reg := NewRegistry()
	src.RegisterIDETools(reg)

	r := reg.Execute(context.Background(), "c1", "ide.read_file", map[string]any{"path": "main.go"})
	require.True(t, r.OK)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "fs.read_file", fake.calls[0]["name"])
	args := fake.calls[0]["arguments"].(map[string]any)
	assert.Contains(t, args["path"], "main.go")

	r = reg.Execute(context.Background(), "c2", "ide.search", map[string]any{"query": "Session"})
	require.True(t, r.OK)
	args = fake.calls[1]["arguments"].(map[string]any)
	assert.Equal(t, "Session", args["query"])
	assert.Contains(t, args["path"], root, "workspace root is the default search path")

	r = reg.Execute(context.Background(), "c3", "ide.hover",
		map[string]any{"uri": "main.go", "line": float64(3), "character": float64(7)})
	require.True(t, r.OK)
	assert.Equal(t, "lsp.hover", fake.calls[2]["name"])
	args = fake.calls[2]["arguments"].(map[string]any)
	uri := args["uri"].(string)
	assert.Contains(t, uri, "file://")
	assert.Contains(t, uri, "main.go")

	r = reg.Execute(context.Background(), "c4", "ide.hover", map[string]any{"uri": "main.go"})
	require.False(t, r.OK)
	assert.Equal(t, "missing required fields: line, character", r.Error)

	r = reg.Execute(context.Background(), "c5", "ide.read_file", map[string]any{"path": "/etc/passwd"})
	require.False(t, r.OK)
	assert.Equal(t, "path is outside workspace root", r.Error)
}

func TestSanitizeArgsForLog(t *testing.T) {
	out := sanitizeArgsForLog(map[string]any{
		"query":   "x",
		"api_key": "secret",
		"apiKey":  "secret",
		"headers": map[string]any{"authorization": "Bearer t", "x-api-key": "k", "accept": "json"},
	})
	assert.Contains(t, out, "query")
	assert.Contains(t, out, "accept")
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "Bearer t")
	assert.NotContains(t, out, `"x-api-key"`)

	assert.Equal(t, "null", sanitizeArgsForLog(nil))
}

func TestTruncateForLog(t *testing.T) {
	assert.Equal(t, "short", truncateForLog("short", 2000))
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'a'
	}
	out := truncateForLog(string(long), 2000)
	assert.Len(t, out, 2000)
	assert.True(t, len(out) < 3000)
	assert.Contains(t, out, "...(truncated)")
}
