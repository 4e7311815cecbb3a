package tools

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

func percentDecode(in string) string {
	hex := func(c byte) int {
		switch {
		case c >= '0' && c <= '9':
			return int(c - '0')
		case c >= 'a' && c <= 'f':
			return 10 + int(c-'a')
		case c >= 'A' && c <= 'F':
			return 10 + int(c-'A')
		default:
			return -1
		}
	}
	var out strings.Builder
	out.Grow(len(in))
	for i := 0; i < len(in); i++ {
		c := in[i]
		if c == '%' && i+2 < len(in) {
			ha, hb := hex(in[i+1]), hex(in[i+2])
			if ha >= 0 && hb >= 0 {
				out.WriteByte(byte(ha<<4 | hb))
				i += 2
				continue
			}
		}
		out.WriteByte(c)
	}
	return out.String()
}

// NormalizeUnderRoot resolves a path or file:// URI to an absolute slash path
// and rejects anything escaping the workspace root. An empty root disables
// containment.
func NormalizeUnderRoot(workspaceRoot, pathOrURI string) (string, error) {
	raw := pathOrURI
	if strings.HasPrefix(strings.ToLower(raw), "file://") {
		raw = raw[len("file://"):]
		raw = strings.TrimPrefix(raw, "localhost/")
		// Windows-style /C:/... drive prefix.
		if len(raw) >= 3 && raw[0] == '/' && raw[2] == ':' && isAlpha(raw[1]) {
			raw = raw[1:]
		}
		raw = percentDecode(raw)
	}

	p := raw
	if workspaceRoot != "" && !filepath.IsAbs(p) {
		p = filepath.Join(workspaceRoot, p)
	}
	canon, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("invalid path")
	}
	canon = filepath.ToSlash(filepath.Clean(canon))

	if workspaceRoot != "" {
		root, err := filepath.Abs(workspaceRoot)
		if err != nil {
			return "", fmt.Errorf("invalid workspace root")
		}
		root = filepath.ToSlash(filepath.Clean(root))
		if canon != root && !strings.HasPrefix(canon, root+"/") {
			return "", fmt.Errorf("path is outside workspace root")
		}
	}
	return canon, nil
}

// MakeFileURI renders a normalized path as a file:// URI.
func MakeFileURI(normalizedPath string) string {
	if normalizedPath == "" {
		return "file:///"
	}
	if normalizedPath[0] == '/' {
		return "file://" + normalizedPath
	}
	return "file:///" + normalizedPath
}

func isAlpha(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// globToRegexp converts a glob to an anchored regexp: ** crosses path
// separators, * and ? do not.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var out strings.Builder
	out.WriteByte('^')
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				out.WriteString(".*")
				i++
			} else {
				out.WriteString("[^/]*")
			}
		case '?':
			out.WriteString("[^/]")
		case '.':
			out.WriteString(`\.`)
		case '\\', '/':
			out.WriteByte('/')
		case '(', ')', '[', ']', '{', '}', '+', '^', '$', '|':
			out.WriteByte('\\')
			out.WriteByte(c)
		default:
			out.WriteByte(c)
		}
	}
	out.WriteByte('$')
	return regexp.Compile(out.String())
}

// expandBraceGlob expands a single {a,b,c} alternation.
func expandBraceGlob(pattern string) []string {
	open := strings.IndexByte(pattern, '{')
	if open < 0 {
		return []string{pattern}
	}
	close := strings.IndexByte(pattern[open+1:], '}')
	if close < 0 {
		return []string{pattern}
	}
	close += open + 1
	if close <= open+1 {
		return []string{pattern}
	}
	inside := pattern[open+1 : close]
	parts := strings.Split(inside, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, pattern[:open]+p+pattern[close+1:])
	}
	return out
}

func compileGlobs(patterns []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, pattern := range patterns {
		for _, p := range expandBraceGlob(pattern) {
			re, err := globToRegexp(p)
			if err != nil {
				return nil, err
			}
			out = append(out, re)
		}
	}
	return out, nil
}

// matchAnyGlob reports whether rel matches any glob; an empty set matches
// everything.
func matchAnyGlob(globs []*regexp.Regexp, rel string) bool {
	rel = strings.ReplaceAll(rel, "\\", "/")
	if len(globs) == 0 {
		return true
	}
	for _, re := range globs {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}
