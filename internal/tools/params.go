package tools

// Accessors for sanitized input. They return the zero value, or def,
// when a parameter is absent or of another type.

// String returns a string parameter
func String(input map[string]interface{}, name string) string {
	s, _ := input[name].(string)
	return s
}

// Int returns an integer parameter or def
func Int(input map[string]interface{}, name string, def int) int {
	switch v := input[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// Float returns a number parameter or def
func Float(input map[string]interface{}, name string, def float64) float64 {
	switch v := input[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// Bool returns a boolean parameter or def
func Bool(input map[string]interface{}, name string, def bool) bool {
	if b, ok := input[name].(bool); ok {
		return b
	}
	return def
}

// Object returns an object parameter, nil when absent
func Object(input map[string]interface{}, name string) map[string]interface{} {
	m, _ := input[name].(map[string]interface{})
	return m
}

// Strings returns an array parameter's string elements
func Strings(input map[string]interface{}, name string) []string {
	switch v := input[name].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
