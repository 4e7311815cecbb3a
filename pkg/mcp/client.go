package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/localrt/localrt/pkg/config"
	"github.com/localrt/localrt/pkg/httpclient"
)

const protocolVersion = "2024-11-05"

// maxListPages bounds tools/list cursor paging against servers that hand
// back a cursor loop.
const maxListPages = 64

// Request represents a JSON-RPC request
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Response represents a JSON-RPC response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CallParams represents parameters for tools/call
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolInfo describes one tool advertised by a server.
type ToolInfo struct {
	Name        string         `json:"name"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// CallResult is the result payload of tools/call.
type CallResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError"`
}

// ContentItem is one element of a tool result's content array.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Text joins the textual content of the result.
func (r *CallResult) Text() string {
	var buf bytes.Buffer
	for _, c := range r.Content {
		if c.Type == "text" {
			buf.WriteString(c.Text)
		}
	}
	return buf.String()
}

// Client speaks JSON-RPC 2.0 over HTTP to a single MCP server. Auth headers
// captured from the inbound request are replayed on every outbound call; the
// in-flight cap sheds load instead of queueing when the server is slow.
type Client struct {
	endpoint    config.Endpoint
	httpClient  *httpclient.Client
	nextID      atomic.Int64
	maxInFlight int
	mu          sync.Mutex
	inFlight    int
}

// NewClient builds a client for one MCP endpoint using the shared timeout
// and concurrency settings.
func NewClient(endpoint config.Endpoint, cfg config.MCP) *Client {
	timeout := time.Duration(cfg.ConnectTimeoutS+cfg.ReadTimeoutS+cfg.WriteTimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &Client{
		endpoint: endpoint,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(0),
		),
		maxInFlight: maxInFlight,
	}
}

// URL returns the server URL this client talks to.
func (c *Client) URL() string {
	return c.endpoint.URL()
}

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "local-ai-runtime",
			"version": "0.1.0",
		},
	}
	_, err := c.rpc(ctx, "initialize", params)
	return err
}

// ListTools fetches the server's tool catalog, following nextCursor paging.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var out []ToolInfo
	cursor := ""
	for page := 0; page < maxListPages; page++ {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		result, err := c.rpc(ctx, "tools/list", params)
		if err != nil {
			return nil, err
		}
		var parsed struct {
			Tools      []ToolInfo `json:"tools"`
			NextCursor string     `json:"nextCursor"`
		}
		if err := json.Unmarshal(result, &parsed); err != nil {
			return out, nil
		}
		for _, t := range parsed.Tools {
			if t.Name == "" {
				continue
			}
			out = append(out, t)
		}
		if parsed.NextCursor == "" {
			break
		}
		cursor = parsed.NextCursor
	}
	return out, nil
}

// CallTool invokes a named tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*CallResult, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	result, err := c.rpc(ctx, "tools/call", CallParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	var parsed CallResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("mcp: invalid json response")
	}
	return &parsed, nil
}

// CallToolRaw invokes a tool and returns the result object untouched, for
// callers that relay the server's payload to a client verbatim.
func (c *Client) CallToolRaw(ctx context.Context, name string, arguments map[string]any) (map[string]any, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	result, err := c.rpc(ctx, "tools/call", CallParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	var parsed map[string]any
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("mcp: invalid json response")
	}
	return parsed, nil
}

func (c *Client) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight >= c.maxInFlight {
		return fmt.Errorf("mcp: too many in-flight requests")
	}
	c.inFlight++
	return nil
}

func (c *Client) release() {
	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
}

func (c *Client) rpc(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	payload, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	url := c.endpoint.URL()
	if c.endpoint.BasePath == "" {
		url += "/"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range AuthHeadersFromContext(ctx) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to connect")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mcp: http %d", resp.StatusCode)
	}

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("mcp: invalid json response")
	}
	if rpcResp.Error != nil {
		msg := rpcResp.Error.Message
		if msg == "" {
			msg = "json-rpc error"
		}
		return nil, fmt.Errorf("%s", msg)
	}
	if rpcResp.Result == nil {
		return nil, fmt.Errorf("mcp: missing result")
	}
	return rpcResp.Result, nil
}
