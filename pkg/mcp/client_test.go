package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrt/localrt/pkg/config"
)

func newMockMCPServer(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	seen := &sync.Map{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			seen.Store("Authorization", auth)
		}
		if key := r.Header.Get("x-api-key"); key != "" {
			seen.Store("x-api-key", key)
		}

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		write := func(result any) {
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  result,
			})
		}

		switch req.Method {
		case "initialize":
			write(map[string]any{
				"protocolVersion": "2024-11-05",
				"serverInfo":      map[string]any{"name": "mock-mcp", "version": "0.0.1"},
			})
		case "tools/list":
			params, _ := req.Params.(map[string]any)
			cursor, _ := params["cursor"].(string)
			if cursor == "" {
				write(map[string]any{
					"tools": []map[string]any{
						{
							"name":        "fs.read_file",
							"description": "Read a file",
							"inputSchema": map[string]any{
								"type":       "object",
								"properties": map[string]any{"uri": map[string]any{"type": "string"}},
								"required":   []string{"uri"},
							},
						},
					},
					"nextCursor": "page2",
				})
			} else {
				write(map[string]any{
					"tools": []map[string]any{
						{"name": "lsp.hover", "description": "Hover info"},
					},
				})
			}
		case "tools/call":
			var params CallParams
			raw, _ := json.Marshal(req.Params)
			require.NoError(t, json.Unmarshal(raw, &params))
			if params.Name == "boom" {
				json.NewEncoder(w).Encode(map[string]any{
					"jsonrpc": "2.0",
					"id":      req.ID,
					"error":   map[string]any{"code": -32601, "message": "tool not found"},
				})
				return
			}
			write(map[string]any{
				"content": []map[string]any{{"type": "text", "text": `{"ok":true,"tool":"` + params.Name + `"}`}},
				"isError": false,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	return srv, seen
}

func clientFor(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return NewClient(config.ParseEndpoint(srv.URL, 0), config.MCP{
		ConnectTimeoutS: 5,
		ReadTimeoutS:    10,
		WriteTimeoutS:   5,
		MaxInFlight:     8,
	})
}

func TestClientInitialize(t *testing.T) {
	srv, _ := newMockMCPServer(t)
	defer srv.Close()

	c := clientFor(t, srv)
	require.NoError(t, c.Initialize(context.Background()))
}

func TestClientListToolsFollowsCursor(t *testing.T) {
	srv, _ := newMockMCPServer(t)
	defer srv.Close()

	c := clientFor(t, srv)
	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "fs.read_file", tools[0].Name)
	assert.Equal(t, "lsp.hover", tools[1].Name)
	assert.Contains(t, tools[0].InputSchema, "properties")
}

func TestClientCallTool(t *testing.T) {
	srv, _ := newMockMCPServer(t)
	defer srv.Close()

	c := clientFor(t, srv)
	res, err := c.CallTool(context.Background(), "fs.read_file", map[string]any{"uri": "file:///tmp/a"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Text(), `"tool":"fs.read_file"`)
}

func TestClientCallToolJSONRPCError(t *testing.T) {
	srv, _ := newMockMCPServer(t)
	defer srv.Close()

	c := clientFor(t, srv)
	_, err := c.CallTool(context.Background(), "boom", nil)
	require.Error(t, err)
	assert.Equal(t, "tool not found", err.Error())
}

func TestClientForwardsAuthHeaders(t *testing.T) {
	srv, seen := newMockMCPServer(t)
	defer srv.Close()

	c := clientFor(t, srv)
	ctx := WithRequestAuthHeaders(context.Background(), map[string]string{
		"Authorization": "Bearer secret-token",
		"x-api-key":     "k-123",
	})
	require.NoError(t, c.Initialize(ctx))

	auth, ok := seen.Load("Authorization")
	require.True(t, ok)
	assert.Equal(t, "Bearer secret-token", auth)
	key, ok := seen.Load("x-api-key")
	require.True(t, ok)
	assert.Equal(t, "k-123", key)
}

func TestClientConnectFailure(t *testing.T) {
	c := NewClient(config.ParseEndpoint("http://127.0.0.1:1", 0), config.MCP{MaxInFlight: 2})
	err := c.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, "mcp: failed to connect", err.Error())
}

func TestClientHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := clientFor(t, srv)
	err := c.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, "mcp: http 503", err.Error())
}

func TestClientMissingResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1})
	}))
	defer srv.Close()

	c := clientFor(t, srv)
	err := c.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, "mcp: missing result", err.Error())
}

func TestExtractAuthHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer tok")
	h.Set("api_key", "raw-key")
	h.Set("Content-Type", "application/json")

	got := ExtractAuthHeaders(h)
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer tok",
		"api_key":       "raw-key",
	}, got)

	assert.True(t, IsAuthHeader("X-Api-Key"))
	assert.False(t, IsAuthHeader("Content-Type"))
}
