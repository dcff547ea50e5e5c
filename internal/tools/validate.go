package tools

import "fmt"

// ValidateArgs checks decoded arguments against a JSON-schema object:
// required properties must be present and primitive types must match.
// Nested object schemas are checked one level deep, which covers the
// schemas function tools declare in practice.
func ValidateArgs(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}
	props, _ := schema["properties"].(map[string]any)

	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			name, _ := r.(string)
			if name == "" {
				continue
			}
			if _, present := args[name]; !present {
				return fmt.Errorf("missing required property %q", name)
			}
		}
	}

	for name, v := range args {
		propSchema, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		want, _ := propSchema["type"].(string)
		if want == "" {
			continue
		}
		if err := checkType(name, want, v); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name, want string, v any) error {
	if v == nil {
		return nil
	}
	ok := false
	switch want {
	case "string":
		_, ok = v.(string)
	case "number":
		switch v.(type) {
		case float64, int, int64:
			ok = true
		}
	case "integer":
		switch n := v.(type) {
		case int, int64:
			ok = true
		case float64:
			ok = n == float64(int64(n))
		}
	case "boolean":
		_, ok = v.(bool)
	case "array":
		_, ok = v.([]any)
	case "object":
		_, ok = v.(map[string]any)
	default:
		ok = true
	}
	if !ok {
		return fmt.Errorf("property %q is not a %s", name, want)
	}
	return nil
}
