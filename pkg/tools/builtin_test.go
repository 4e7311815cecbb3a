package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuiltinRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	reg := NewRegistry()
	RegisterBuiltins(reg, root)
	return reg, root
}

func resultMap(t *testing.T, r Result) map[string]any {
	t.Helper()
	m, ok := r.Result.(map[string]any)
	require.True(t, ok, "result should be an object, got %T", r.Result)
	return m
}

func TestEchoTool(t *testing.T) {
	reg, _ := newBuiltinRegistry(t)

	r := reg.Execute(context.Background(), "c1", "runtime.echo", map[string]any{"text": "hi"})
	require.True(t, r.OK)
	assert.Equal(t, "hi", resultMap(t, r)["text"])

	r = reg.Execute(context.Background(), "c2", "runtime.echo", map[string]any{})
	require.False(t, r.OK)
	assert.Equal(t, "missing required field: text", r.Error)
}

func TestAddTool(t *testing.T) {
	reg, _ := newBuiltinRegistry(t)

	r := reg.Execute(context.Background(), "c1", "runtime.add", map[string]any{"a": float64(2), "b": float64(3)})
	require.True(t, r.OK)
	assert.Equal(t, float64(5), resultMap(t, r)["sum"])

	r = reg.Execute(context.Background(), "c2", "runtime.add", map[string]any{"a": float64(2)})
	assert.Equal(t, "missing required fields: a, b", r.Error)

	r = reg.Execute(context.Background(), "c3", "runtime.add", map[string]any{"a": "2", "b": float64(3)})
	assert.Equal(t, "fields a and b must be numbers", r.Error)
}

func TestTimeTool(t *testing.T) {
	reg, _ := newBuiltinRegistry(t)
	r := reg.Execute(context.Background(), "c1", "runtime.time", nil)
	require.True(t, r.OK)
	assert.Greater(t, resultMap(t, r)["unix_seconds"].(int64), int64(0))
}

func TestReadTool(t *testing.T) {
	reg, root := newBuiltinRegistry(t)
	path := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha\nbeta\ngamma\n"), 0o644))

	r := reg.Execute(context.Background(), "c1", "read", map[string]any{"filePath": "notes.txt"})
	require.True(t, r.OK)
	m := resultMap(t, r)
	output := m["output"].(string)
	assert.True(t, strings.HasPrefix(output, "<file>\n"))
	assert.Contains(t, output, "00001| alpha")
	assert.Contains(t, output, "00003| gamma")
	assert.Contains(t, output, "(End of file - total 3 lines)")

	meta := m["metadata"].(map[string]any)
	assert.Equal(t, false, meta["truncated"])
	assert.Equal(t, 3, meta["totalLines"])
}

func TestReadToolOffsetAndLimit(t *testing.T) {
	reg, root := newBuiltinRegistry(t)
	var b strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "many.txt"), []byte(b.String()), 0o644))

	r := reg.Execute(context.Background(), "c1", "read",
		map[string]any{"filePath": "many.txt", "offset": float64(2), "limit": float64(3)})
	require.True(t, r.OK)
	output := resultMap(t, r)["output"].(string)
	assert.Contains(t, output, "00003| line 3")
	assert.Contains(t, output, "00005| line 5")
	assert.NotContains(t, output, "line 6")
	assert.Contains(t, output, "(File has more lines. Use 'offset' parameter to read beyond line 5)")
}

func TestReadToolMissingFile(t *testing.T) {
	reg, _ := newBuiltinRegistry(t)
	r := reg.Execute(context.Background(), "c1", "read", map[string]any{"filePath": "nope.txt"})
	require.False(t, r.OK)
	assert.Equal(t, "file not found", r.Error)
}

func TestReadToolEscapesWorkspace(t *testing.T) {
	reg, _ := newBuiltinRegistry(t)
	r := reg.Execute(context.Background(), "c1", "read", map[string]any{"filePath": "../../etc/passwd"})
	require.False(t, r.OK)
	assert.Equal(t, "path is outside workspace root", r.Error)
}

func TestReadToolAliases(t *testing.T) {
	reg, root := newBuiltinRegistry(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x\n"), 0o644))
	for _, name := range []string{"readFile", "read_file"} {
		r := reg.Execute(context.Background(), "c1", name, map[string]any{"filePath": "a.txt"})
		require.True(t, r.OK, name)
		assert.Equal(t, name, r.Name)
	}
}

func TestWriteTool(t *testing.T) {
	reg, root := newBuiltinRegistry(t)

	r := reg.Execute(context.Background(), "c1", "write",
		map[string]any{"filePath": "sub/dir/out.txt", "content": "hello"})
	require.True(t, r.OK)
	meta := resultMap(t, r)["metadata"].(map[string]any)
	assert.Equal(t, false, meta["exists"])

	data, err := os.ReadFile(filepath.Join(root, "sub", "dir", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	r = reg.Execute(context.Background(), "c2", "write",
		map[string]any{"filePath": "sub/dir/out.txt", "content": "again"})
	require.True(t, r.OK)
	meta = resultMap(t, r)["metadata"].(map[string]any)
	assert.Equal(t, true, meta["exists"])

	r = reg.Execute(context.Background(), "c3", "write", map[string]any{"filePath": "x.txt"})
	assert.Equal(t, "missing required fields: filePath, content", r.Error)
}

func TestEditTool(t *testing.T) {
	reg, root := newBuiltinRegistry(t)
	path := filepath.Join(root, "code.go")
	require.NoError(t, os.WriteFile(path, []byte("foo bar foo"), 0o644))

	r := reg.Execute(context.Background(), "c1", "edit",
		map[string]any{"filePath": "code.go", "oldString": "foo", "newString": "baz"})
	require.False(t, r.OK)
	assert.Equal(t, "found multiple matches for oldString; set replaceAll=true or provide a more specific oldString", r.Error)

	r = reg.Execute(context.Background(), "c2", "edit",
		map[string]any{"filePath": "code.go", "oldString": "foo", "newString": "baz", "replaceAll": true})
	require.True(t, r.OK)
	assert.Equal(t, 2, resultMap(t, r)["metadata"].(map[string]any)["replacements"])
	data, _ := os.ReadFile(path)
	assert.Equal(t, "baz bar baz", string(data))

	r = reg.Execute(context.Background(), "c3", "edit",
		map[string]any{"filePath": "code.go", "oldString": "missing", "newString": "x"})
	assert.Equal(t, "oldString not found in content", r.Error)

	r = reg.Execute(context.Background(), "c4", "edit",
		map[string]any{"filePath": "code.go", "oldString": "x", "newString": "x"})
	assert.Equal(t, "oldString and newString must be different", r.Error)

	r = reg.Execute(context.Background(), "c5", "edit",
		map[string]any{"filePath": "fresh.txt", "oldString": "", "newString": "content"})
	require.True(t, r.OK)
	data, _ = os.ReadFile(filepath.Join(root, "fresh.txt"))
	assert.Equal(t, "content", string(data))
}

func TestGlobTool(t *testing.T) {
	reg, root := newBuiltinRegistry(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "a.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "b.txt"), []byte("x"), 0o644))

	r := reg.Execute(context.Background(), "c1", "glob", map[string]any{"pattern": "**/*.go"})
	require.True(t, r.OK)
	m := resultMap(t, r)
	assert.Contains(t, m["output"].(string), "a.go")
	assert.NotContains(t, m["output"].(string), "b.txt")
	assert.Equal(t, 1, m["metadata"].(map[string]any)["count"])

	r = reg.Execute(context.Background(), "c2", "glob", map[string]any{"pattern": "*.zig"})
	require.True(t, r.OK)
	assert.Equal(t, "No files found", resultMap(t, r)["output"])
}

func TestGrepTool(t *testing.T) {
	reg, root := newBuiltinRegistry(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world\nnothing\nhello again\n"), 0o644))

	r := reg.Execute(context.Background(), "c1", "grep", map[string]any{"pattern": "hello"})
	require.True(t, r.OK)
	output := resultMap(t, r)["output"].(string)
	assert.Contains(t, output, "Found 2 matches")
	assert.Contains(t, output, "Line 1: hello world")
	assert.Contains(t, output, "Line 3: hello again")

	r = reg.Execute(context.Background(), "c2", "grep", map[string]any{"pattern": "("})
	require.False(t, r.OK)
	assert.Contains(t, r.Error, "invalid regex:")
}

func TestListTool(t *testing.T) {
	reg, root := newBuiltinRegistry(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "api"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "api", "server.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "dep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "dep", "index.js"), []byte("x"), 0o644))

	r := reg.Execute(context.Background(), "c1", "list", nil)
	require.True(t, r.OK)
	output := resultMap(t, r)["output"].(string)
	assert.Contains(t, output, "README.md")
	assert.Contains(t, output, "server.go")
	assert.Contains(t, output, "api/")
	assert.NotContains(t, output, "index.js")
	assert.True(t, strings.HasSuffix(strings.SplitN(output, "\n", 2)[0], "/"))
}

func TestTodoWriteTool(t *testing.T) {
	reg, _ := newBuiltinRegistry(t)
	r := reg.Execute(context.Background(), "c1", "todowrite", map[string]any{"todos": []any{}})
	require.True(t, r.OK)
}

func TestUnsupportedTools(t *testing.T) {
	reg, _ := newBuiltinRegistry(t)

	cases := map[string]string{
		"bash":      "bash is unsupported",
		"websearch": "websearch is unsupported",
		"webfetch":  "webfetch is unsupported",
		"web_fetch": "webfetch is unsupported",
		"WebFetch":  "webfetch is unsupported",
		"task":      "task is unsupported",
		"patch":     "patch is unsupported",
	}
	for name, want := range cases {
		r := reg.Execute(context.Background(), "c1", name, map[string]any{})
		require.False(t, r.OK, name)
		assert.Equal(t, want, r.Error, name)
	}

	r := reg.Execute(context.Background(), "c2", "lsp", map[string]any{})
	assert.Equal(t, "lsp is unsupported (use ide.hover/ide.definition/ide.diagnostics if available)", r.Error)

	r = reg.Execute(context.Background(), "c3", "invalid",
		map[string]any{"tool": "mystery", "error": "no such tool"})
	assert.Equal(t, "invalid tool call: mystery: no such tool", r.Error)
}
