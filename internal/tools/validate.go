package tools

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValidateParams checks params against a tool's JSON-schema parameters.
// Returns human-readable error strings, empty when the params are valid.
// Unknown fields pass through; the schema is open, not closed.
func ValidateParams(schema map[string]any, params map[string]any) []string {
	schemaType := "object"
	if t, ok := schema["type"].(string); ok && t != "" {
		schemaType = t
	}
	if schemaType != "object" {
		return []string{"schema must be object type"}
	}
	if params == nil {
		params = map[string]any{}
	}
	return validateValue(params, schema, "", "parameter")
}

func validateValue(value any, schema map[string]any, path, fallbackLabel string) []string {
	schemaType := "object"
	if t, ok := schema["type"].(string); ok && t != "" {
		schemaType = t
	}
	label := path
	if label == "" {
		label = fallbackLabel
	}
	var errors []string

	switch schemaType {
	case "string":
		s, ok := value.(string)
		if !ok {
			return append(errors, fmt.Sprintf("%s should be string", label))
		}
		if min, ok := schemaInt(schema, "minLength"); ok && len(s) < min {
			errors = append(errors, fmt.Sprintf("%s must be at least %d chars", label, min))
		}
		if max, ok := schemaInt(schema, "maxLength"); ok && len(s) > max {
			errors = append(errors, fmt.Sprintf("%s must be at most %d chars", label, max))
		}
	case "integer":
		num, ok := asInt64(value)
		if !ok {
			return append(errors, fmt.Sprintf("%s should be integer", label))
		}
		if min, ok := schemaInt(schema, "minimum"); ok && num < int64(min) {
			errors = append(errors, fmt.Sprintf("%s must be >= %d", label, min))
		}
		if max, ok := schemaInt(schema, "maximum"); ok && num > int64(max) {
			errors = append(errors, fmt.Sprintf("%s must be <= %d", label, max))
		}
	case "number":
		num, ok := asFloat64(value)
		if !ok {
			return append(errors, fmt.Sprintf("%s should be number", label))
		}
		if min, ok := schemaFloat(schema, "minimum"); ok && num < min {
			errors = append(errors, fmt.Sprintf("%s must be >= %v", label, min))
		}
		if max, ok := schemaFloat(schema, "maximum"); ok && num > max {
			errors = append(errors, fmt.Sprintf("%s must be <= %v", label, max))
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return append(errors, fmt.Sprintf("%s should be boolean", label))
		}
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return append(errors, fmt.Sprintf("%s should be array", label))
		}
		if itemSchema, ok := schema["items"].(map[string]any); ok {
			for idx, item := range arr {
				childPath := fmt.Sprintf("%s[%d]", path, idx)
				errors = append(errors, validateValue(item, itemSchema, childPath, fallbackLabel)...)
			}
		}
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return append(errors, fmt.Sprintf("%s should be object", label))
		}
		props, _ := schema["properties"].(map[string]any)
		if required, ok := schema["required"].([]any); ok {
			for _, rk := range required {
				key, ok := rk.(string)
				if !ok {
					continue
				}
				if _, present := obj[key]; !present {
					if path == "" {
						errors = append(errors, fmt.Sprintf("missing required %s", key))
					} else {
						errors = append(errors, fmt.Sprintf("missing required %s.%s", path, key))
					}
				}
			}
		}
		for key, item := range obj {
			propSchema, ok := props[key].(map[string]any)
			if !ok {
				continue
			}
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			errors = append(errors, validateValue(item, propSchema, childPath, fallbackLabel)...)
		}
	}

	if enums, ok := schema["enum"].([]any); ok {
		matched := false
		for _, candidate := range enums {
			if valuesEqual(candidate, value) {
				matched = true
				break
			}
		}
		if !matched {
			rendered, _ := json.Marshal(enums)
			errors = append(errors, fmt.Sprintf("%s must be one of %s", label, rendered))
		}
	}

	return errors
}

func schemaInt(schema map[string]any, key string) (int, bool) {
	if n, ok := asInt64(schema[key]); ok {
		return int(n), true
	}
	return 0, false
}

func schemaFloat(schema map[string]any, key string) (float64, bool) {
	return asFloat64(schema[key])
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

func valuesEqual(a, b any) bool {
	if a == b {
		return true
	}
	if af, aok := asFloat64(a); aok {
		if bf, bok := asFloat64(b); bok {
			return af == bf
		}
	}
	return false
}
