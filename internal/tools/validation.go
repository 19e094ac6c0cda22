package tools

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// ValidateInput checks input against a schema: required parameters must
// be present, unknown parameters are rejected, and each value must fit
// its declared type and constraints.
func ValidateInput(schema Schema, input map[string]interface{}) error {
	for _, param := range schema.Parameters {
		if !param.Required {
			continue
		}
		if _, exists := input[param.Name]; !exists {
			return NewValidationError(param.Name, "required parameter missing", nil)
		}
	}

	for key, value := range input {
		param, ok := schema.Parameter(key)
		if !ok {
			return NewValidationError(key, "unknown parameter", value)
		}
		if err := validateParameter(param, value); err != nil {
			return err
		}
	}

	return nil
}

func validateParameter(param Parameter, value interface{}) error {
	if value == nil {
		if param.Required {
			return NewValidationError(param.Name, "required parameter cannot be nil", value)
		}
		return nil
	}

	switch param.Type {
	case TypeString:
		return validateString(param, value)
	case TypeNumber, TypeInteger:
		return validateNumber(param, value)
	case TypeBoolean:
		if _, ok := toBool(value); !ok {
			return NewValidationError(param.Name, "expected boolean value", value)
		}
		return nil
	case TypeObject:
		if reflect.ValueOf(value).Kind() != reflect.Map {
			return NewValidationError(param.Name, "expected object value", value)
		}
		return nil
	case TypeArray:
		return validateArray(param, value)
	default:
		return NewValidationError(param.Name, fmt.Sprintf("unsupported parameter type: %s", param.Type), value)
	}
}

func validateString(param Parameter, value interface{}) error {
	str, ok := value.(string)
	if !ok {
		return NewValidationError(param.Name, "expected string value", value)
	}

	if len(param.Enum) > 0 && !contains(param.Enum, str) {
		return NewValidationError(param.Name,
			fmt.Sprintf("value must be one of: %s", strings.Join(param.Enum, ", ")), value)
	}

	if param.Pattern != "" {
		re, err := regexp.Compile(param.Pattern)
		if err != nil {
			return NewValidationError(param.Name, fmt.Sprintf("invalid regex pattern: %s", param.Pattern), value)
		}
		if !re.MatchString(str) {
			return NewValidationError(param.Name, fmt.Sprintf("value does not match pattern: %s", param.Pattern), value)
		}
	}

	return nil
}

func validateNumber(param Parameter, value interface{}) error {
	num, ok := toFloat(value)
	if !ok {
		return NewValidationError(param.Name, "expected number value", value)
	}
	if param.Type == TypeInteger && num != math.Trunc(num) {
		return NewValidationError(param.Name, "expected integer value", value)
	}
	if param.Minimum != nil && num < *param.Minimum {
		return NewValidationError(param.Name, fmt.Sprintf("value must be >= %g", *param.Minimum), value)
	}
	if param.Maximum != nil && num > *param.Maximum {
		return NewValidationError(param.Name, fmt.Sprintf("value must be <= %g", *param.Maximum), value)
	}
	return nil
}

func validateArray(param Parameter, value interface{}) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return NewValidationError(param.Name, "expected array value", value)
	}
	if param.Items == "" {
		return nil
	}

	for i := 0; i < rv.Len(); i++ {
		elem := Parameter{Name: fmt.Sprintf("%s[%d]", param.Name, i), Type: param.Items, Required: true}
		if err := validateParameter(elem, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// SanitizeInput keeps the declared parameters, fills in defaults and
// coerces values to their declared types: numbers become float64 and
// integers become int.
func SanitizeInput(schema Schema, input map[string]interface{}) (map[string]interface{}, error) {
	sanitized := make(map[string]interface{}, len(schema.Parameters))

	for _, param := range schema.Parameters {
		value, exists := input[param.Name]
		if !exists || value == nil {
			if param.Default != nil {
				sanitized[param.Name] = param.Default
			}
			continue
		}

		converted, err := convertValue(param.Type, value)
		if err != nil {
			return nil, NewValidationError(param.Name, err.Error(), value)
		}
		sanitized[param.Name] = converted
	}

	return sanitized, nil
}

func convertValue(expectedType string, value interface{}) (interface{}, error) {
	switch expectedType {
	case TypeString:
		if str, ok := value.(string); ok {
			return str, nil
		}
		return fmt.Sprintf("%v", value), nil

	case TypeNumber:
		if num, ok := toFloat(value); ok {
			return num, nil
		}
		return nil, fmt.Errorf("cannot convert to number")

	case TypeInteger:
		if num, ok := toFloat(value); ok && num == math.Trunc(num) {
			return int(num), nil
		}
		return nil, fmt.Errorf("cannot convert to integer")

	case TypeBoolean:
		if b, ok := toBool(value); ok {
			return b, nil
		}
		return nil, fmt.Errorf("cannot convert to boolean")

	default:
		return value, nil
	}
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return parsed, err == nil
	}
	return 0, false
}

func toBool(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
