package tools

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/localrt/localrt/pkg/session"
)

// Local models emit tool calls in several dialects: the prompted JSON shape,
// XML-ish <tool_call> tags, bare "todowrite k=v" commands, and even plain
// "cat <path>". ParseToolCalls tries each parser in turn and returns the
// first non-empty result.
func ParseToolCalls(assistantText string) []Call {
	if v, ok := ParseJSONLoose(assistantText); ok {
		if calls := extractCallsFromJSON(v); len(calls) > 0 {
			return calls
		}
	}
	if calls := extractCallsFromTaggedText(assistantText); len(calls) > 0 {
		return calls
	}
	if calls := extractCallsFromTodoCommand(assistantText); len(calls) > 0 {
		return calls
	}
	return extractCallsFromCatCommand(assistantText)
}

// ParseJSONLoose parses text as JSON, falling back to the first balanced
// {...} object embedded in it.
func ParseJSONLoose(text string) (any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, true
	}
	if obj, ok := extractBalanced(trimmed, strings.IndexByte(trimmed, '{')); ok {
		if err := json.Unmarshal([]byte(obj), &v); err == nil {
			return v, true
		}
	}
	return nil, false
}

// extractBalanced returns the balanced {...} or [...] starting at start,
// honoring string literals and escapes.
func extractBalanced(text string, start int) (string, bool) {
	if start < 0 || start >= len(text) {
		return "", false
	}
	open := text[start]
	var closeCh byte
	switch open {
	case '{':
		closeCh = '}'
	case '[':
		closeCh = ']'
	default:
		return "", false
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// normalizeArgsValue renders an arguments value as the JSON text the loop
// will re-parse. Strings that already parse loosely are kept verbatim;
// anything else is re-encoded.
func normalizeArgsValue(v any) string {
	switch a := v.(type) {
	case nil:
		return "{}"
	case string:
		if _, ok := ParseJSONLoose(a); ok {
			return a
		}
		enc, _ := json.Marshal(a)
		return string(enc)
	default:
		enc, err := json.Marshal(a)
		if err != nil {
			return "{}"
		}
		return string(enc)
	}
}

func makeCallFromJSON(item any) (Call, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return Call{}, false
	}

	c := Call{ID: session.NewID("call")}
	if id, ok := m["id"].(string); ok && id != "" {
		c.ID = id
	}

	c.Name = firstString(m, "name", "tool", "toolName")
	if c.Name == "" {
		if fn, ok := m["function"].(map[string]any); ok {
			c.Name = firstString(fn, "name")
		}
	}

	var argsVal any
	hasArgs := false
	for _, key := range []string{"arguments", "args", "input"} {
		if v, present := m[key]; present {
			argsVal = v
			hasArgs = true
			break
		}
	}
	if !hasArgs {
		if fn, ok := m["function"].(map[string]any); ok {
			if v, present := fn["arguments"]; present {
				argsVal = v
				hasArgs = true
			}
		}
	}
	if !hasArgs || c.Name == "" {
		return Call{}, false
	}

	c.ArgumentsJSON = normalizeArgsValue(argsVal)
	if c.ArgumentsJSON == "" {
		c.ArgumentsJSON = "{}"
	}
	return c, true
}

func extractCallsFromJSON(parsed any) []Call {
	root, ok := parsed.(map[string]any)
	if !ok {
		return nil
	}
	if inner, ok := root["opencode"].(map[string]any); ok {
		root = inner
	}

	for _, key := range []string{"tool_call", "toolCall", "toolcall"} {
		if item, ok := root[key].(map[string]any); ok {
			if c, ok := makeCallFromJSON(item); ok {
				return []Call{c}
			}
		}
	}

	if c, ok := makeCallFromJSON(root); ok {
		return []Call{c}
	}

	var list []any
	for _, key := range []string{"tool_calls", "toolCalls", "toolcalls"} {
		if arr, ok := root[key].([]any); ok {
			list = arr
			break
		}
	}
	if list == nil {
		return nil
	}

	var calls []Call
	for _, item := range list {
		if c, ok := makeCallFromJSON(item); ok {
			calls = append(calls, c)
		}
	}
	return calls
}

func isToolNameChar(c byte) bool {
	return c == '_' || c == '-' || c == '.' || c == ':' || c == '/' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func findAttr(tagText, tagLower, attr string) (string, bool) {
	p := strings.Index(tagLower, attr)
	if p < 0 {
		return "", false
	}
	p += len(attr)
	for p < len(tagText) && unicode.IsSpace(rune(tagText[p])) {
		p++
	}
	if p >= len(tagText) || tagText[p] != '=' {
		return "", false
	}
	p++
	for p < len(tagText) && unicode.IsSpace(rune(tagText[p])) {
		p++
	}
	if p >= len(tagText) {
		return "", false
	}
	if q := tagText[p]; q == '"' || q == '\'' {
		p++
		end := strings.IndexByte(tagText[p:], q)
		if end < 0 {
			return "", false
		}
		return tagText[p : p+end], true
	}
	e := p
	for e < len(tagText) && !unicode.IsSpace(rune(tagText[e])) && tagText[e] != '>' {
		e++
	}
	if e <= p {
		return "", false
	}
	return tagText[p:e], true
}

func extractCallsFromTaggedText(text string) []Call {
	lower := strings.ToLower(text)

	const (
		toolTag   = "<tool_call"
		toolTag2  = "<toolcall"
		argTag    = "<arg_value>"
		argEnd    = "</arg_value>"
		argKeyEnd = "</arg_key>"
	)

	var calls []Call
	pos := 0
	for pos < len(lower) {
		start := indexFrom(lower, toolTag, pos)
		if start < 0 {
			start = indexFrom(lower, toolTag2, pos)
		}
		if start < 0 {
			break
		}

		tagClose := indexFrom(lower, ">", start)
		if tagClose < 0 {
			break
		}

		tagText := text[start : tagClose+1]
		tagLower := lower[start : tagClose+1]

		name := ""
		if v, ok := findAttr(tagText, tagLower, "name"); ok {
			name = strings.TrimSpace(v)
		}
		afterName := tagClose + 1
		if name == "" {
			nameStart := tagClose + 1
			for nameStart < len(text) && unicode.IsSpace(rune(text[nameStart])) {
				nameStart++
			}
			nameEnd := nameStart
			for nameEnd < len(text) && isToolNameChar(text[nameEnd]) {
				nameEnd++
			}
			name = strings.TrimSpace(text[nameStart:nameEnd])
			afterName = nameEnd
		}

		if name == "" {
			pos = tagClose + 1
			continue
		}

		blockStart := tagClose + 1
		nextTool := indexFrom(lower, toolTag, blockStart)
		if next2 := indexFrom(lower, toolTag2, blockStart); nextTool < 0 || (next2 >= 0 && next2 < nextTool) {
			nextTool = next2
		}
		blockEnd := len(text)
		if nextTool >= 0 {
			blockEnd = nextTool
		}

		argsText := ""
		if astart := indexFrom(lower, argTag, afterName); astart >= 0 && astart < blockEnd {
			astart += len(argTag)
			aend := indexFrom(lower, argEnd, astart)
			if aend < 0 || aend > blockEnd {
				aend = blockEnd
			}
			argsText = strings.TrimSpace(text[astart:aend])
		} else if maybeClose := indexFrom(lower, argEnd, afterName); maybeClose >= 0 && maybeClose < blockEnd {
			rawStart := afterName
			if keyClose := strings.LastIndex(lower[:maybeClose], argKeyEnd); keyClose >= afterName {
				rawStart = keyClose + len(argKeyEnd)
			}
			if rawStart <= maybeClose {
				argsText = strings.TrimSpace(text[rawStart:maybeClose])
			}
			if argsText == "" {
				raw2 := maybeClose + len(argEnd)
				if raw2 < blockEnd {
					argsText = strings.TrimSpace(text[raw2:blockEnd])
				}
			}
		} else {
			argsText = strings.TrimSpace(text[afterName:blockEnd])
		}

		if argsText != "" {
			if obj, ok := extractBalanced(argsText, strings.IndexByte(argsText, '{')); ok {
				argsText = strings.TrimSpace(obj)
			}
		}

		c := Call{ID: session.NewID("call"), Name: name}
		if argsText != "" {
			if v, ok := ParseJSONLoose(argsText); ok {
				enc, _ := json.Marshal(v)
				c.ArgumentsJSON = string(enc)
			} else {
				raw := strings.TrimSpace(argsText)
				if lt := strings.IndexByte(raw, '<'); lt >= 0 {
					raw = strings.TrimSpace(raw[:lt])
				}
				if raw != "" && c.Name == "cat" {
					rawLower := strings.ToLower(raw)
					if strings.HasPrefix(rawLower, "cat") {
						raw = strings.TrimSpace(raw[3:])
					}
					raw = strings.TrimPrefix(raw, "`")
					raw = strings.TrimRight(raw, "`;")
					raw = strings.TrimSpace(raw)
				}
				enc, _ := json.Marshal(raw)
				c.ArgumentsJSON = string(enc)
			}
		} else {
			c.ArgumentsJSON = "{}"
		}

		if c.Name == "cat" {
			c.Name = "read"
		}
		calls = append(calls, c)

		pos = blockEnd
	}

	return calls
}

func indexFrom(s, sub string, from int) int {
	if from >= len(s) {
		return -1
	}
	idx := strings.Index(s[from:], sub)
	if idx < 0 {
		return -1
	}
	return from + idx
}

func extractCallsFromTodoCommand(text string) []Call {
	lower := strings.ToLower(text)
	const tool = "todowrite"

	var calls []Call
	pos := 0
	for pos < len(lower) {
		start := indexFrom(lower, tool, pos)
		if start < 0 {
			break
		}

		leftOK := start == 0 || unicode.IsSpace(rune(lower[start-1])) || lower[start-1] == '`'
		after := start + len(tool)
		rightOK := after >= len(lower) || unicode.IsSpace(rune(lower[after])) || lower[after] == ':' || lower[after] == '('
		if !leftOK || !rightOK {
			pos = after
			continue
		}

		argsStart := after
		if argsStart < len(text) && text[argsStart] == ':' {
			argsStart++
		}

		args := map[string]any{}
		p := argsStart
		for p < len(text) {
			for p < len(text) && (unicode.IsSpace(rune(text[p])) || text[p] == ',' || text[p] == ';') {
				p++
			}
			if p >= len(text) {
				break
			}
			if text[p] == '{' {
				if obj, ok := extractBalanced(text, p); ok {
					var v map[string]any
					if err := json.Unmarshal([]byte(obj), &v); err == nil {
						calls = append(calls, Call{ID: session.NewID("call"), Name: tool, ArgumentsJSON: obj})
					}
				}
				break
			}

			keyStart := p
			for p < len(text) && (text[p] == '_' || isAlnum(text[p])) {
				p++
			}
			if p <= keyStart {
				break
			}
			key := text[keyStart:p]

			for p < len(text) && unicode.IsSpace(rune(text[p])) {
				p++
			}
			if p >= len(text) || text[p] != '=' {
				break
			}
			p++
			for p < len(text) && unicode.IsSpace(rune(text[p])) {
				p++
			}
			if p >= len(text) {
				break
			}

			var rawValue string
			badValue := false
			switch {
			case text[p] == '"' || text[p] == '\'':
				q := text[p]
				p++
				vstart := p
				esc := false
				for ; p < len(text); p++ {
					c := text[p]
					if esc {
						esc = false
						continue
					}
					if c == '\\' {
						esc = true
						continue
					}
					if c == q {
						break
					}
				}
				if p > vstart {
					rawValue = text[vstart:p]
				}
				if p < len(text) && text[p] == q {
					p++
				}
			case text[p] == '{' || text[p] == '[':
				b, ok := extractBalanced(text, p)
				if !ok {
					badValue = true
					break
				}
				rawValue = b
				p += len(b)
			default:
				vstart := p
				for p < len(text) && !unicode.IsSpace(rune(text[p])) && text[p] != ',' && text[p] != ';' {
					p++
				}
				rawValue = text[vstart:p]
			}
			if badValue {
				break
			}

			trimmed := strings.TrimSpace(rawValue)
			if trimmed != "" && (trimmed[0] == '{' || trimmed[0] == '[') {
				var v any
				if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
					args[key] = v
				} else {
					args[key] = trimmed
				}
			} else {
				args[key] = trimmed
			}
		}

		if len(calls) > 0 && calls[len(calls)-1].Name == tool {
			pos = after
			continue
		}

		if len(args) > 0 {
			enc, _ := json.Marshal(args)
			calls = append(calls, Call{ID: session.NewID("call"), Name: tool, ArgumentsJSON: string(enc)})
		}

		pos = after
	}

	return calls
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func extractCallsFromCatCommand(text string) []Call {
	lower := strings.ToLower(text)
	const cmd = "cat"

	var calls []Call
	pos := 0
	for pos < len(lower) {
		start := indexFrom(lower, cmd, pos)
		if start < 0 {
			break
		}

		leftOK := start == 0 || unicode.IsSpace(rune(lower[start-1])) || lower[start-1] == '`' || lower[start-1] == ':'
		after := start + len(cmd)
		rightOK := after >= len(lower) || unicode.IsSpace(rune(lower[after])) || lower[after] == '`'
		if !leftOK || !rightOK {
			pos = after
			continue
		}

		p := after
		for p < len(text) && unicode.IsSpace(rune(text[p])) {
			p++
		}
		if p >= len(text) {
			pos = after
			continue
		}

		var rawPath string
		if text[p] == '"' || text[p] == '\'' {
			q := text[p]
			p++
			vstart := p
			esc := false
			for ; p < len(text); p++ {
				c := text[p]
				if esc {
					esc = false
					continue
				}
				if c == '\\' {
					esc = true
					continue
				}
				if c == q {
					break
				}
			}
			if p > vstart {
				rawPath = text[vstart:p]
			}
			if p < len(text) && text[p] == q {
				p++
			}
		} else {
			vstart := p
			for p < len(text) && !unicode.IsSpace(rune(text[p])) && text[p] != ';' && text[p] != ',' && text[p] != '<' && text[p] != '`' {
				p++
			}
			rawPath = text[vstart:p]
		}

		path := strings.TrimSpace(rawPath)
		if lt := strings.IndexByte(path, '<'); lt >= 0 {
			path = strings.TrimSpace(path[:lt])
		}
		path = strings.TrimRight(path, "`;,")
		path = strings.TrimSpace(path)

		if path != "" {
			enc, _ := json.Marshal(map[string]any{"filePath": path})
			calls = append(calls, Call{ID: session.NewID("call"), Name: "read", ArgumentsJSON: string(enc)})
		}

		pos = after
	}

	return calls
}
