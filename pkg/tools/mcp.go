package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/localrt/localrt/pkg/config"
	"github.com/localrt/localrt/pkg/mcp"
)

const logValueLimit = 2000

// sanitizeArgsForLog renders a log-safe copy of tool arguments: credential
// keys are dropped at the top level and inside a headers sub-object.
func sanitizeArgsForLog(args map[string]any) string {
	if args == nil {
		return "null"
	}
	clean := make(map[string]any, len(args))
	for k, v := range args {
		clean[k] = v
	}
	for _, key := range []string{"api_key", "api-key", "authorization", "apiKey"} {
		delete(clean, key)
	}
	if headers, ok := clean["headers"].(map[string]any); ok {
		h := make(map[string]any, len(headers))
		for k, v := range headers {
			h[k] = v
		}
		for _, key := range []string{"authorization", "proxy-authorization", "api-key", "api_key", "x-api-key"} {
			delete(h, key)
		}
		clean["headers"] = h
	}
	raw, err := json.Marshal(clean)
	if err != nil {
		return "null"
	}
	return string(raw)
}

func sanitizeResultForLog(result any) string {
	if obj, ok := result.(map[string]any); ok {
		return sanitizeArgsForLog(obj)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return "null"
	}
	return string(raw)
}

func truncateForLog(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	const suffix = "...(truncated)"
	if maxChars <= len(suffix) {
		return suffix[:maxChars]
	}
	return s[:maxChars-len(suffix)] + suffix
}

func logMCPCall(toolCallID, exposedName, remoteName string, args map[string]any) {
	slog.Info("mcp-call",
		"id", toolCallID,
		"exposed", exposedName,
		"remote", remoteName,
		"arguments", truncateForLog(sanitizeArgsForLog(args), logValueLimit),
	)
}

func logMCPResult(toolCallID, exposedName, remoteName string, ok bool, errMsg string, result any) {
	if errMsg == "" {
		errMsg = "-"
	}
	slog.Info("mcp-result",
		"id", toolCallID,
		"exposed", exposedName,
		"remote", remoteName,
		"ok", ok,
		"error", errMsg,
		"result", truncateForLog(sanitizeResultForLog(result), logValueLimit),
	)
}

// RefreshResult reports the outcome of an MCP tool discovery pass.
type RefreshResult struct {
	OK         bool               `json:"ok"`
	Servers    int                `json:"servers"`
	Registered int                `json:"registered"`
	Errors     []RefreshServerErr `json:"errors"`
}

// RefreshServerErr names the server (1-based) whose listing failed.
type RefreshServerErr struct {
	Server int    `json:"server"`
	Error  string `json:"error"`
}

// MCPSource connects to the configured MCP servers and projects their tools
// into a Registry. Tool names are kept stable across refreshes: once a remote
// name maps to an exposed name, the mapping sticks; a remote name that would
// shadow an existing tool is prefixed with the server ordinal.
type MCPSource struct {
	clients       []*mcp.Client
	workspaceRoot string

	mu       sync.Mutex
	nameMaps []map[string]string
}

// NewMCPSource builds clients for each configured host. No connections are
// made until Connect.
func NewMCPSource(cfg config.MCP, workspaceRoot string) *MCPSource {
	src := &MCPSource{workspaceRoot: workspaceRoot}
	for _, host := range cfg.Hosts {
		src.clients = append(src.clients, mcp.NewClient(host, cfg))
	}
	return src
}

// Connect initializes each server, dropping the ones that fail the handshake.
func (s *MCPSource) Connect(ctx context.Context) {
	var live []*mcp.Client
	for _, c := range s.clients {
		if err := c.Initialize(ctx); err != nil {
			slog.Warn("mcp server handshake failed", "url", c.URL(), "error", err)
			continue
		}
		live = append(live, c)
	}
	s.mu.Lock()
	s.clients = live
	s.nameMaps = make([]map[string]string, len(live))
	for i := range s.nameMaps {
		s.nameMaps[i] = map[string]string{}
	}
	s.mu.Unlock()
}

// HasServers reports whether any server survived Connect.
func (s *MCPSource) HasServers() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients) > 0
}

// Refresh lists every server's tools and registers them. Listing runs
// concurrently; registration is serialized so exposed-name assignment stays
// deterministic in server order.
func (s *MCPSource) Refresh(ctx context.Context, reg *Registry) RefreshResult {
	s.mu.Lock()
	clients := append([]*mcp.Client{}, s.clients...)
	s.mu.Unlock()

	out := RefreshResult{OK: true, Servers: len(clients), Errors: []RefreshServerErr{}}

	lists := make([][]mcp.ToolInfo, len(clients))
	listErrs := make([]error, len(clients))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range clients {
		i, c := i, c
		g.Go(func() error {
			lists[i], listErrs[i] = c.ListTools(gctx)
			return nil
		})
	}
	g.Wait()

	for i, c := range clients {
		if listErrs[i] != nil {
			out.Errors = append(out.Errors, RefreshServerErr{Server: i + 1, Error: listErrs[i].Error()})
			continue
		}
		for _, t := range lists[i] {
			if t.Name == "" {
				continue
			}
			exposed := s.exposedName(reg, i, t.Name)

			description := t.Description
			if description == "" {
				description = t.Title
			}
			params := t.InputSchema
			if params == nil {
				params = map[string]any{}
			}
			reg.Register(Schema{Name: exposed, Description: description, Parameters: params},
				s.remoteHandler(c, exposed, t.Name))
			out.Registered++
		}
	}
	return out
}

func (s *MCPSource) exposedName(reg *Registry, serverIdx int, remoteName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exposed, ok := s.nameMaps[serverIdx][remoteName]; ok {
		return exposed
	}
	exposed := remoteName
	if reg.Has(exposed) {
		exposed = fmt.Sprintf("mcp%d.%s", serverIdx+1, exposed)
	}
	s.nameMaps[serverIdx][remoteName] = exposed
	return exposed
}

func (s *MCPSource) remoteHandler(c *mcp.Client, exposedName, remoteName string) Handler {
	return func(ctx context.Context, toolCallID string, args map[string]any) Result {
		logMCPCall(toolCallID, exposedName, remoteName, args)
		result, err := c.CallToolRaw(ctx, remoteName, args)
		if err != nil {
			msg := err.Error()
			if msg == "" {
				msg = "mcp: call failed"
			}
			res := errorResult(toolCallID, exposedName, msg)
			logMCPResult(toolCallID, exposedName, remoteName, false, msg, res.Result)
			return res
		}
		ok := true
		if isErr, has := result["isError"].(bool); has {
			ok = !isErr
		}
		logMCPResult(toolCallID, exposedName, remoteName, ok, "", result)
		return Result{ToolCallID: toolCallID, Name: exposedName, OK: ok, Result: result}
	}
}

// callAny tries each connected server in order, returning the first success.
func (s *MCPSource) callAny(ctx context.Context, toolName string, args map[string]any) (map[string]any, error) {
	s.mu.Lock()
	clients := append([]*mcp.Client{}, s.clients...)
	s.mu.Unlock()

	var lastErr error
	for _, c := range clients {
		r, err := c.CallToolRaw(ctx, toolName, args)
		if err == nil {
			return r, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("mcp: call failed")
	}
	return nil, lastErr
}

func (s *MCPSource) relayResult(ctx context.Context, toolCallID, exposedName, remoteName string, args map[string]any) Result {
	logMCPCall(toolCallID, exposedName, remoteName, args)
	result, err := s.callAny(ctx, remoteName, args)
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "mcp: call failed"
		}
		res := errorResult(toolCallID, exposedName, msg)
		logMCPResult(toolCallID, exposedName, remoteName, false, msg, res.Result)
		return res
	}
	ok := true
	if isErr, has := result["isError"].(bool); has {
		ok = !isErr
	}
	logMCPResult(toolCallID, exposedName, remoteName, ok, "", result)
	return Result{ToolCallID: toolCallID, Name: exposedName, OK: ok, Result: result}
}

// RegisterIDETools exposes the ide.* convenience wrappers over the remote
// fs.* and lsp.* tools. Paths and URIs are normalized under the workspace
// root before leaving the process.
func (s *MCPSource) RegisterIDETools(reg *Registry) {
	root := s.workspaceRoot

	reg.Register(Schema{
		Name:        "ide.read_file",
		Description: "Read a text file under workspace root.",
		Parameters:  objectSchema(map[string]any{"path": prop("string")}, []string{"path"}),
	}, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		path, ok := stringArg(args, "path")
		if !ok {
			return errorResult(toolCallID, "ide.read_file", "missing required field: path")
		}
		norm, err := NormalizeUnderRoot(root, path)
		if err != nil {
			return errorResult(toolCallID, "ide.read_file", err.Error())
		}
		return s.relayResult(ctx, toolCallID, "ide.read_file", "fs.read_file", map[string]any{"path": norm})
	})

	reg.Register(Schema{
		Name:        "ide.search",
		Description: "Search text in workspace files.",
		Parameters: objectSchema(map[string]any{
			"query": prop("string"), "path": prop("string"), "max_results": prop("integer"),
		}, []string{"query"}),
	}, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		query, ok := stringArg(args, "query")
		if !ok {
			return errorResult(toolCallID, "ide.search", "missing required field: query")
		}
		remote := map[string]any{"query": query}
		if v, ok := intArg(args, "max_results"); ok {
			remote["max_results"] = v
		}
		if path, ok := stringArg(args, "path"); ok {
			norm, err := NormalizeUnderRoot(root, path)
			if err != nil {
				return errorResult(toolCallID, "ide.search", err.Error())
			}
			remote["path"] = norm
		} else if root != "" {
			remote["path"] = root
		}
		return s.relayResult(ctx, toolCallID, "ide.search", "fs.search", remote)
	})

	reg.Register(Schema{
		Name:        "ide.diagnostics",
		Description: "Get diagnostics for a file.",
		Parameters:  objectSchema(map[string]any{"uri": prop("string")}, []string{"uri"}),
	}, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		uri, ok := stringArg(args, "uri")
		if !ok {
			return errorResult(toolCallID, "ide.diagnostics", "missing required field: uri")
		}
		norm, err := NormalizeUnderRoot(root, uri)
		if err != nil {
			return errorResult(toolCallID, "ide.diagnostics", err.Error())
		}
		return s.relayResult(ctx, toolCallID, "ide.diagnostics", "lsp.diagnostics",
			map[string]any{"uri": MakeFileURI(norm)})
	})

	for _, spec := range []struct {
		exposed string
		remote  string
		desc    string
	}{
		{"ide.hover", "lsp.hover", "Get hover information at a position."},
		{"ide.definition", "lsp.definition", "Get definition location at a position."},
	} {
		spec := spec
		reg.Register(Schema{
			Name:        spec.exposed,
			Description: spec.desc,
			Parameters: objectSchema(map[string]any{
				"uri": prop("string"), "line": prop("integer"), "character": prop("integer"),
			}, []string{"uri", "line", "character"}),
		}, func(ctx context.Context, toolCallID string, args map[string]any) Result {
			uri, ok := stringArg(args, "uri")
			if !ok {
				return errorResult(toolCallID, spec.exposed, "missing required field: uri")
			}
			line, lineOK := intArg(args, "line")
			character, charOK := intArg(args, "character")
			if !lineOK || !charOK {
				return errorResult(toolCallID, spec.exposed, "missing required fields: line, character")
			}
			norm, err := NormalizeUnderRoot(root, uri)
			if err != nil {
				return errorResult(toolCallID, spec.exposed, err.Error())
			}
			return s.relayResult(ctx, toolCallID, spec.exposed, spec.remote, map[string]any{
				"uri": MakeFileURI(norm), "line": line, "character": character,
			})
		})
	}
}

// IsIDETool reports whether a name belongs to the ide.* wrapper family.
func IsIDETool(name string) bool {
	return strings.HasPrefix(name, "ide.")
}
