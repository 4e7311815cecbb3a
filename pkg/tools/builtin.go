package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	readDefaultLimit = 2000
	maxLineLength    = 2000
	readMaxBytes     = 50 * 1024
	walkLimit        = 100
)

var walkSkipDirs = map[string]bool{
	".git": true, "node_modules": true, "dist": true, "build": true,
	"target": true, ".venv": true, "venv": true,
}

var listDefaultIgnores = []string{
	"node_modules/**", "__pycache__/**", ".git/**", "dist/**", "build/**",
	"target/**", "vendor/**", "bin/**", "obj/**", ".idea/**", ".vscode/**",
	".zig-cache/**", "zig-out/**", ".coverage/**", "coverage/**", "tmp/**",
	"temp/**", ".cache/**", "cache/**", "logs/**", ".venv/**", "venv/**", "env/**",
}

func stringArg(args map[string]any, key string) (string, bool) {
	if args == nil {
		return "", false
	}
	s, ok := args[key].(string)
	return s, ok
}

func intArg(args map[string]any, key string) (int, bool) {
	if args == nil {
		return 0, false
	}
	switch n := args[key].(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func objectSchema(properties map[string]any, required []string) map[string]any {
	req := make([]any, 0, len(required))
	for _, r := range required {
		req = append(req, r)
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   req,
	}
}

func prop(t string) map[string]any { return map[string]any{"type": t} }

// registerAlias registers the same handler under another name, rewriting the
// reported tool name.
func registerAlias(reg *Registry, base Schema, alias string, handler Handler) {
	s := base
	s.Name = alias
	reg.Register(s, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		r := handler(ctx, toolCallID, args)
		r.Name = alias
		return r
	})
}

func registerUnsupported(reg *Registry, name, description string, properties map[string]any, required []string, aliases ...string) {
	schema := Schema{
		Name:        name,
		Description: description,
		Parameters:  objectSchema(properties, required),
	}
	handler := func(ctx context.Context, toolCallID string, args map[string]any) Result {
		return errorResult(toolCallID, name, name+" is unsupported")
	}
	reg.Register(schema, handler)
	for _, alias := range aliases {
		a := alias
		registerAlias(reg, schema, a, func(ctx context.Context, toolCallID string, args map[string]any) Result {
			return errorResult(toolCallID, a, name+" is unsupported")
		})
	}
}

// RegisterBuiltins installs the default tool set: runtime.* helpers, the
// workspace file tools, and the unsupported stubs that keep agent harnesses
// from looping on unknown-tool errors.
func RegisterBuiltins(reg *Registry, workspaceRoot string) {
	if workspaceRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			workspaceRoot = wd
		}
	}
	if abs, err := filepath.Abs(workspaceRoot); err == nil {
		workspaceRoot = filepath.ToSlash(filepath.Clean(abs))
	}

	reg.Register(Schema{
		Name:        "runtime.echo",
		Description: "Echo back the provided text.",
		Parameters:  objectSchema(map[string]any{"text": prop("string")}, []string{"text"}),
	}, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		text, ok := stringArg(args, "text")
		if !ok {
			return errorResult(toolCallID, "runtime.echo", "missing required field: text")
		}
		return okResult(toolCallID, "runtime.echo", map[string]any{"text": text})
	})

	reg.Register(Schema{
		Name:        "runtime.add",
		Description: "Add two numbers and return the sum.",
		Parameters:  objectSchema(map[string]any{"a": prop("number"), "b": prop("number")}, []string{"a", "b"}),
	}, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		if args == nil {
			return errorResult(toolCallID, "runtime.add", "missing required fields: a, b")
		}
		av, aok := args["a"]
		bv, bok := args["b"]
		if !aok || !bok {
			return errorResult(toolCallID, "runtime.add", "missing required fields: a, b")
		}
		a, aok := av.(float64)
		b, bok := bv.(float64)
		if !aok || !bok {
			return errorResult(toolCallID, "runtime.add", "fields a and b must be numbers")
		}
		return okResult(toolCallID, "runtime.add", map[string]any{"sum": a + b})
	})

	reg.Register(Schema{
		Name:        "runtime.time",
		Description: "Get current unix time in seconds.",
		Parameters:  objectSchema(map[string]any{}, nil),
	}, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		return okResult(toolCallID, "runtime.time", map[string]any{"unix_seconds": time.Now().Unix()})
	})

	reg.Register(Schema{
		Name:        "todowrite",
		Description: "Write or update a todo list.",
		Parameters:  objectSchema(map[string]any{}, nil),
	}, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		return okResult(toolCallID, "todowrite", map[string]any{})
	})

	registerReadTool(reg, workspaceRoot)
	registerWriteTool(reg, workspaceRoot)
	registerEditTool(reg, workspaceRoot)
	registerGlobTool(reg, workspaceRoot)
	registerGrepTool(reg, workspaceRoot)
	registerListTool(reg, workspaceRoot)

	registerUnsupported(reg, "webfetch", "UNSUPPORTED in local-ai-runtime: fetch web content.",
		map[string]any{"url": prop("string")}, []string{"url"}, "web_fetch", "WebFetch")
	registerUnsupported(reg, "websearch", "UNSUPPORTED in local-ai-runtime: web search.",
		map[string]any{"query": prop("string"), "num": prop("integer"), "lr": prop("string")}, []string{"query"})
	registerUnsupported(reg, "codesearch", "UNSUPPORTED in local-ai-runtime: code search.",
		map[string]any{"query": prop("string"), "tokensNum": prop("integer")}, []string{"query"})
	registerUnsupported(reg, "skill", "UNSUPPORTED in local-ai-runtime: load skills.",
		map[string]any{"name": prop("string")}, []string{"name"})
	registerUnsupported(reg, "question", "UNSUPPORTED in local-ai-runtime: ask user questions.",
		map[string]any{"questions": map[string]any{"type": "array", "items": prop("object")}}, nil)
	registerUnsupported(reg, "bash", "UNSUPPORTED in local-ai-runtime: execute shell commands.",
		map[string]any{"command": prop("string"), "timeout": prop("integer"), "workdir": prop("string")}, []string{"command"})
	registerUnsupported(reg, "terminal", "UNSUPPORTED in local-ai-runtime: interact with terminal.",
		map[string]any{"command": prop("string")}, []string{"command"})
	registerUnsupported(reg, "task", "UNSUPPORTED in local-ai-runtime: run a sub-agent task.",
		map[string]any{
			"description": prop("string"), "prompt": prop("string"), "subagent_type": prop("string"),
			"session_id": prop("string"), "command": prop("string"),
		}, []string{"description", "prompt", "subagent_type"})
	registerUnsupported(reg, "todoread", "UNSUPPORTED in local-ai-runtime: read todo list.",
		map[string]any{}, nil)
	registerUnsupported(reg, "batch", "UNSUPPORTED in local-ai-runtime: batch tool calls.",
		map[string]any{"tool_calls": map[string]any{"type": "array", "items": prop("object")}}, []string{"tool_calls"})
	registerUnsupported(reg, "patch", "UNSUPPORTED in local-ai-runtime: apply a multi-file patch.",
		map[string]any{"patchText": prop("string")}, []string{"patchText"})
	registerUnsupported(reg, "multiedit", "UNSUPPORTED in local-ai-runtime: apply multiple edits to a file.",
		map[string]any{"filePath": prop("string"), "edits": map[string]any{"type": "array", "items": prop("object")}},
		[]string{"filePath", "edits"})

	reg.Register(Schema{
		Name:        "lsp",
		Description: "UNSUPPORTED in local-ai-runtime: LSP operations.",
		Parameters: objectSchema(map[string]any{
			"operation": prop("string"), "filePath": prop("string"),
			"line": prop("integer"), "character": prop("integer"),
		}, []string{"operation", "filePath", "line", "character"}),
	}, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		return errorResult(toolCallID, "lsp", "lsp is unsupported (use ide.hover/ide.definition/ide.diagnostics if available)")
	})

	reg.Register(Schema{
		Name:        "invalid",
		Description: "Invalid tool placeholder.",
		Parameters:  objectSchema(map[string]any{"tool": prop("string"), "error": prop("string")}, []string{"tool", "error"}),
	}, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		tool, _ := stringArg(args, "tool")
		errMsg, _ := stringArg(args, "error")
		if tool == "" {
			tool = "<unknown>"
		}
		if errMsg == "" {
			errMsg = "unknown error"
		}
		return errorResult(toolCallID, "invalid", "invalid tool call: "+tool+": "+errMsg)
	})
}

func registerReadTool(reg *Registry, workspaceRoot string) {
	schema := Schema{
		Name:        "read",
		Description: "Read a text file.",
		Parameters: objectSchema(map[string]any{
			"filePath": prop("string"), "offset": prop("integer"), "limit": prop("integer"),
		}, []string{"filePath"}),
	}
	handler := func(ctx context.Context, toolCallID string, args map[string]any) Result {
		filePath, ok := stringArg(args, "filePath")
		if !ok {
			return errorResult(toolCallID, schema.Name, "missing required field: filePath")
		}

		offset := 0
		limit := readDefaultLimit
		if v, ok := intArg(args, "offset"); ok {
			offset = v
		}
		if v, ok := intArg(args, "limit"); ok {
			limit = v
		}
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 {
			limit = readDefaultLimit
		}

		norm, err := NormalizeUnderRoot(workspaceRoot, filePath)
		if err != nil {
			return errorResult(toolCallID, schema.Name, err.Error())
		}

		f, err := os.Open(norm)
		if err != nil {
			return errorResult(toolCallID, schema.Name, "file not found")
		}
		defer f.Close()

		var outLines []string
		totalLines := 0
		bytes := 0
		truncatedByBytes := false

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		idx := 0
		for scanner.Scan() {
			totalLines++
			line := scanner.Text()
			if idx < offset {
				idx++
				continue
			}
			if len(outLines) >= limit {
				idx++
				continue
			}
			shown := line
			if len(shown) > maxLineLength {
				shown = shown[:maxLineLength] + "..."
			}
			add := len(shown)
			if len(outLines) > 0 {
				add++
			}
			if bytes+add > readMaxBytes {
				truncatedByBytes = true
				break
			}
			bytes += add
			outLines = append(outLines, shown)
			idx++
		}

		lastReadLine := offset + len(outLines)
		hasMoreLines := totalLines > lastReadLine
		truncated := hasMoreLines || truncatedByBytes

		var b strings.Builder
		b.WriteString("<file>\n")
		for i, line := range outLines {
			fmt.Fprintf(&b, "%05d| %s", offset+i+1, line)
			if i+1 < len(outLines) {
				b.WriteByte('\n')
			}
		}
		switch {
		case truncatedByBytes:
			fmt.Fprintf(&b, "\n\n(Output truncated at %d bytes. Use 'offset' parameter to read beyond line %d)", readMaxBytes, lastReadLine)
		case hasMoreLines:
			fmt.Fprintf(&b, "\n\n(File has more lines. Use 'offset' parameter to read beyond line %d)", lastReadLine)
		default:
			fmt.Fprintf(&b, "\n\n(End of file - total %d lines)", totalLines)
		}
		b.WriteString("\n</file>")

		return okResult(toolCallID, schema.Name, map[string]any{
			"title":  norm,
			"output": b.String(),
			"metadata": map[string]any{
				"truncated":    truncated,
				"lastReadLine": lastReadLine,
				"totalLines":   totalLines,
			},
		})
	}
	reg.Register(schema, handler)
	registerAlias(reg, schema, "readFile", handler)
	registerAlias(reg, schema, "read_file", handler)
}

func registerWriteTool(reg *Registry, workspaceRoot string) {
	schema := Schema{
		Name:        "write",
		Description: "Write text content to a file.",
		Parameters:  objectSchema(map[string]any{"content": prop("string"), "filePath": prop("string")}, []string{"content", "filePath"}),
	}
	handler := func(ctx context.Context, toolCallID string, args map[string]any) Result {
		filePath, pathOK := stringArg(args, "filePath")
		content, contentOK := stringArg(args, "content")
		if !pathOK || !contentOK {
			return errorResult(toolCallID, schema.Name, "missing required fields: filePath, content")
		}

		norm, err := NormalizeUnderRoot(workspaceRoot, filePath)
		if err != nil {
			return errorResult(toolCallID, schema.Name, err.Error())
		}

		_, statErr := os.Stat(norm)
		existed := statErr == nil

		if dir := filepath.Dir(norm); dir != "" {
			os.MkdirAll(dir, 0o755)
		}
		if err := os.WriteFile(norm, []byte(content), 0o644); err != nil {
			return errorResult(toolCallID, schema.Name, "failed to open file for writing")
		}

		return okResult(toolCallID, schema.Name, map[string]any{
			"title":    norm,
			"output":   "",
			"metadata": map[string]any{"filepath": norm, "exists": existed},
		})
	}
	reg.Register(schema, handler)
	registerAlias(reg, schema, "writeFile", handler)
}

func registerEditTool(reg *Registry, workspaceRoot string) {
	schema := Schema{
		Name:        "edit",
		Description: "Edit a file by replacing a string.",
		Parameters: objectSchema(map[string]any{
			"filePath": prop("string"), "oldString": prop("string"),
			"newString": prop("string"), "replaceAll": prop("boolean"),
		}, []string{"filePath", "oldString", "newString"}),
	}
	handler := func(ctx context.Context, toolCallID string, args map[string]any) Result {
		filePath, pathOK := stringArg(args, "filePath")
		oldString, oldOK := stringArg(args, "oldString")
		newString, newOK := stringArg(args, "newString")
		if !pathOK || !oldOK || !newOK {
			return errorResult(toolCallID, schema.Name, "missing required fields: filePath, oldString, newString")
		}
		if oldString == newString {
			return errorResult(toolCallID, schema.Name, "oldString and newString must be different")
		}

		replaceAll := false
		if args != nil {
			if v, ok := args["replaceAll"].(bool); ok {
				replaceAll = v
			}
		}

		norm, err := NormalizeUnderRoot(workspaceRoot, filePath)
		if err != nil {
			return errorResult(toolCallID, schema.Name, err.Error())
		}

		if dir := filepath.Dir(norm); dir != "" {
			os.MkdirAll(dir, 0o755)
		}

		if oldString == "" {
			if err := os.WriteFile(norm, []byte(newString), 0o644); err != nil {
				return errorResult(toolCallID, schema.Name, "failed to open file for writing")
			}
			return okResult(toolCallID, schema.Name, map[string]any{
				"title": norm, "output": "", "metadata": map[string]any{"filepath": norm},
			})
		}

		data, err := os.ReadFile(norm)
		if err != nil {
			return errorResult(toolCallID, schema.Name, "file not found")
		}
		content := string(data)

		first := strings.Index(content, oldString)
		if first < 0 {
			return errorResult(toolCallID, schema.Name, "oldString not found in content")
		}

		replacements := 0
		if replaceAll {
			replacements = strings.Count(content, oldString)
			content = strings.ReplaceAll(content, oldString, newString)
		} else {
			if strings.LastIndex(content, oldString) != first {
				return errorResult(toolCallID, schema.Name,
					"found multiple matches for oldString; set replaceAll=true or provide a more specific oldString")
			}
			content = content[:first] + newString + content[first+len(oldString):]
			replacements = 1
		}

		if err := os.WriteFile(norm, []byte(content), 0o644); err != nil {
			return errorResult(toolCallID, schema.Name, "failed to open file for writing")
		}

		return okResult(toolCallID, schema.Name, map[string]any{
			"title": norm, "output": "",
			"metadata": map[string]any{"filepath": norm, "replacements": replacements},
		})
	}
	reg.Register(schema, handler)
	registerAlias(reg, schema, "editFile", handler)
}

type walkHit struct {
	path  string
	mtime int64
}

func walkFiles(base string, visit func(path, rel string, mtime int64) bool) {
	filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != base && walkSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			rel = d.Name()
		}
		rel = filepath.ToSlash(rel)

		var mtime int64
		if info, infoErr := d.Info(); infoErr == nil {
			mtime = info.ModTime().UnixNano()
		}
		if !visit(filepath.ToSlash(path), rel, mtime) {
			return filepath.SkipAll
		}
		return nil
	})
}

func registerGlobTool(reg *Registry, workspaceRoot string) {
	schema := Schema{
		Name:        "glob",
		Description: "Match files using a glob pattern.",
		Parameters:  objectSchema(map[string]any{"pattern": prop("string"), "path": prop("string")}, []string{"pattern"}),
	}
	reg.Register(schema, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		pattern, ok := stringArg(args, "pattern")
		if !ok {
			return errorResult(toolCallID, schema.Name, "missing required field: pattern")
		}

		base := "."
		if v, ok := stringArg(args, "path"); ok {
			base = v
		}
		normBase, err := NormalizeUnderRoot(workspaceRoot, base)
		if err != nil {
			return errorResult(toolCallID, schema.Name, err.Error())
		}

		globs, err := compileGlobs([]string{pattern})
		if err != nil {
			return errorResult(toolCallID, schema.Name, "invalid glob pattern: "+err.Error())
		}

		var hits []walkHit
		truncated := false
		walkFiles(normBase, func(path, rel string, mtime int64) bool {
			if !matchAnyGlob(globs, rel) {
				return true
			}
			hits = append(hits, walkHit{path: path, mtime: mtime})
			if len(hits) >= walkLimit {
				truncated = true
				return false
			}
			return true
		})

		sort.SliceStable(hits, func(i, j int) bool { return hits[i].mtime > hits[j].mtime })

		var b strings.Builder
		if len(hits) == 0 {
			b.WriteString("No files found")
		} else {
			for i, h := range hits {
				b.WriteString(h.path)
				if i+1 < len(hits) {
					b.WriteByte('\n')
				}
			}
			if truncated {
				b.WriteString("\n\n(Results are truncated. Consider using a more specific path or pattern.)")
			}
		}

		return okResult(toolCallID, schema.Name, map[string]any{
			"title":    normBase,
			"output":   b.String(),
			"metadata": map[string]any{"count": len(hits), "truncated": truncated},
		})
	})
}

func registerGrepTool(reg *Registry, workspaceRoot string) {
	schema := Schema{
		Name:        "grep",
		Description: "Search file contents using a regex pattern.",
		Parameters: objectSchema(map[string]any{
			"pattern": prop("string"), "path": prop("string"), "include": prop("string"),
		}, []string{"pattern"}),
	}
	reg.Register(schema, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		patternText, ok := stringArg(args, "pattern")
		if !ok {
			return errorResult(toolCallID, schema.Name, "missing required field: pattern")
		}

		base := "."
		if v, ok := stringArg(args, "path"); ok {
			base = v
		}
		normBase, err := NormalizeUnderRoot(workspaceRoot, base)
		if err != nil {
			return errorResult(toolCallID, schema.Name, err.Error())
		}

		pattern, err := regexp.Compile(patternText)
		if err != nil {
			return errorResult(toolCallID, schema.Name, "invalid regex: "+err.Error())
		}

		var includeGlobs []*regexp.Regexp
		if inc, ok := stringArg(args, "include"); ok {
			if globs, err := compileGlobs([]string{inc}); err == nil {
				includeGlobs = globs
			}
		}

		type match struct {
			path  string
			mtime int64
			line  int
			text  string
		}
		var matches []match
		walkFiles(normBase, func(path, rel string, mtime int64) bool {
			if !matchAnyGlob(includeGlobs, rel) {
				return true
			}
			f, err := os.Open(path)
			if err != nil {
				return true
			}
			defer f.Close()

			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
			lineNum := 0
			for scanner.Scan() {
				lineNum++
				line := scanner.Text()
				if !pattern.MatchString(line) {
					continue
				}
				shown := line
				if len(shown) > maxLineLength {
					shown = shown[:maxLineLength] + "..."
				}
				matches = append(matches, match{path: path, mtime: mtime, line: lineNum, text: shown})
				if len(matches) >= walkLimit {
					return false
				}
			}
			return true
		})

		sort.SliceStable(matches, func(i, j int) bool { return matches[i].mtime > matches[j].mtime })

		var b strings.Builder
		if len(matches) == 0 {
			b.WriteString("No files found")
		} else {
			fmt.Fprintf(&b, "Found %d matches\n", len(matches))
			current := ""
			for i, m := range matches {
				if m.path != current {
					if current != "" {
						b.WriteByte('\n')
					}
					current = m.path
					b.WriteString(current)
					b.WriteString(":\n")
				}
				fmt.Fprintf(&b, "  Line %d: %s", m.line, m.text)
				if i+1 < len(matches) {
					b.WriteByte('\n')
				}
			}
		}
		truncated := len(matches) >= walkLimit
		if truncated {
			b.WriteString("\n\n(Results are truncated. Consider using a more specific path or pattern.)")
		}

		return okResult(toolCallID, schema.Name, map[string]any{
			"title":    patternText,
			"output":   b.String(),
			"metadata": map[string]any{"matches": len(matches), "truncated": truncated},
		})
	})
}

func registerListTool(reg *Registry, workspaceRoot string) {
	schema := Schema{
		Name:        "list",
		Description: "List files under a directory.",
		Parameters: objectSchema(map[string]any{
			"path":   prop("string"),
			"ignore": map[string]any{"type": "array", "items": prop("string")},
		}, nil),
	}
	reg.Register(schema, func(ctx context.Context, toolCallID string, args map[string]any) Result {
		base := "."
		if v, ok := stringArg(args, "path"); ok {
			base = v
		}
		normBase, err := NormalizeUnderRoot(workspaceRoot, base)
		if err != nil {
			return errorResult(toolCallID, schema.Name, err.Error())
		}

		ignorePatterns := append([]string{}, listDefaultIgnores...)
		if args != nil {
			if arr, ok := args["ignore"].([]any); ok {
				for _, item := range arr {
					if s, ok := item.(string); ok {
						ignorePatterns = append(ignorePatterns, s)
					}
				}
			}
		}
		ignoreGlobs, err := compileGlobs(ignorePatterns)
		if err != nil {
			ignoreGlobs = nil
		}

		var files []string
		walkFiles(normBase, func(path, rel string, mtime int64) bool {
			if len(ignoreGlobs) > 0 && matchAnyGlob(ignoreGlobs, rel) {
				return true
			}
			files = append(files, rel)
			return len(files) < walkLimit
		})
		sort.Strings(files)

		dirs := map[string]bool{".": true}
		filesByDir := map[string][]string{}
		for _, f := range files {
			dir := "."
			name := f
			if pos := strings.LastIndexByte(f, '/'); pos >= 0 {
				dir = f[:pos]
				name = f[pos+1:]
			}
			filesByDir[dir] = append(filesByDir[dir], name)
			if dir != "." {
				parts := strings.Split(dir, "/")
				for i := 1; i <= len(parts); i++ {
					dirs[strings.Join(parts[:i], "/")] = true
				}
			}
		}
		for _, v := range filesByDir {
			sort.Strings(v)
		}

		var renderDir func(dirPath string, depth int) string
		renderDir = func(dirPath string, depth int) string {
			var out strings.Builder
			if depth > 0 {
				out.WriteString(strings.Repeat("  ", depth))
				name := dirPath
				if pos := strings.LastIndexByte(dirPath, '/'); pos >= 0 {
					name = dirPath[pos+1:]
				}
				out.WriteString(name)
				out.WriteString("/\n")
			}

			var children []string
			for d := range dirs {
				if d == "." || d == dirPath {
					continue
				}
				parent := "."
				if pos := strings.LastIndexByte(d, '/'); pos >= 0 {
					parent = d[:pos]
				}
				if parent == dirPath {
					children = append(children, d)
				}
			}
			sort.Strings(children)
			for _, child := range children {
				out.WriteString(renderDir(child, depth+1))
			}

			for _, fn := range filesByDir[dirPath] {
				out.WriteString(strings.Repeat("  ", depth+1))
				out.WriteString(fn)
				out.WriteByte('\n')
			}
			return out.String()
		}

		output := normBase
		if output == "" || output[len(output)-1] != '/' {
			output += "/"
		}
		output += "\n"
		output += renderDir(".", 0)

		return okResult(toolCallID, schema.Name, map[string]any{
			"title":    normBase,
			"output":   output,
			"metadata": map[string]any{"count": len(files), "truncated": len(files) >= walkLimit},
		})
	})
}
