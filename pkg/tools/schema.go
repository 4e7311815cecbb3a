package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// warnIfSchemaInvalid compiles a tool's parameter schema with a real JSON
// Schema compiler. Registration proceeds either way; the loop only applies
// loose validation at call time.
func warnIfSchemaInvalid(schema Schema) {
	if len(schema.Parameters) == 0 {
		return
	}
	raw, err := json.Marshal(schema.Parameters)
	if err != nil {
		slog.Warn("tool schema does not marshal", "tool", schema.Name, "error", err)
		return
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		slog.Warn("tool schema is not valid json", "tool", schema.Name, "error", err)
		return
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", doc); err != nil {
		slog.Warn("tool schema rejected", "tool", schema.Name, "error", err)
		return
	}
	if _, err := compiler.Compile("schema.json"); err != nil {
		slog.Warn("tool schema does not compile", "tool", schema.Name, "error", err)
	}
}

// ValidateLoose checks arguments against a tool's parameter schema the
// permissive way the planner expects: top-level type, required keys, and
// per-property primitive types only.
func ValidateLoose(params map[string]any, args any) error {
	if len(params) == 0 {
		return nil
	}

	obj, isObj := args.(map[string]any)
	if t, ok := params["type"].(string); ok && t == "object" && !isObj {
		return fmt.Errorf("arguments type mismatch")
	}
	if !isObj {
		return nil
	}

	if required, ok := params["required"].([]any); ok {
		for _, item := range required {
			key, ok := item.(string)
			if !ok {
				continue
			}
			if _, present := obj[key]; !present {
				return fmt.Errorf("missing required field: %s", key)
			}
		}
	}

	props, ok := params["properties"].(map[string]any)
	if !ok {
		return nil
	}
	for key, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		want, ok := prop["type"].(string)
		if !ok {
			continue
		}
		val, present := obj[key]
		if !present {
			continue
		}
		if !looseTypeMatches(want, val) {
			return fmt.Errorf("field type mismatch: %s", key)
		}
	}
	return nil
}

func looseTypeMatches(want string, val any) bool {
	switch want {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		return isJSONNumber(val)
	case "integer":
		switch n := val.(type) {
		case float64:
			return n == math.Trunc(n)
		case int, int64, json.Number:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	default:
		return true
	}
}

func isJSONNumber(val any) bool {
	switch val.(type) {
	case float64, int, int64, json.Number:
		return true
	default:
		return false
	}
}
