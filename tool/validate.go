package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
)

// Severity defines diagnostic severity produced by validation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic codes produced by ParamModel.Validate.
const (
	CodeMissingRequired = "MISSING_REQUIRED"
	CodeTypeMismatch    = "TYPE_MISMATCH"
	CodeUnknownField    = "UNKNOWN_FIELD"
	CodeEnumMismatch    = "ENUM_MISMATCH"
)

// Diagnostic is a structured validation finding.
type Diagnostic struct {
	Field    string   `json:"field,omitempty"`
	Code     string   `json:"code,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ValidationError aggregates the diagnostics of a failed validation.
type ValidationError struct {
	Diagnostics []Diagnostic
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Diagnostics) == 0 {
		return "invalid arguments"
	}
	parts := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		if d.Field != "" {
			parts = append(parts, d.Field+": "+d.Message)
			continue
		}
		parts = append(parts, d.Message)
	}
	return "invalid arguments: " + strings.Join(parts, "; ")
}

// Validate checks args against the model and returns a copy with declared
// defaults applied. Optional parameters without a default stay absent.
func (m ParamModel) Validate(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args)+len(m.Params))
	for key, value := range args {
		out[key] = value
	}

	var diags []Diagnostic
	declared := make(map[string]struct{}, len(m.Params))
	for _, param := range m.Params {
		declared[param.Name] = struct{}{}
		value, present := args[param.Name]
		if !present {
			switch {
			case param.Required:
				diags = append(diags, errorDiagnostic(param.Name, CodeMissingRequired, "required parameter is missing"))
			case param.HasDefault:
				out[param.Name] = param.Default
			}
			continue
		}
		if value == nil && !param.Required {
			continue
		}
		diags = append(diags, checkValue(param.Name, param.Field, value, 0)...)
	}

	if !m.AllowExtra {
		unknown := make([]string, 0)
		for key := range args {
			if _, ok := declared[key]; !ok {
				unknown = append(unknown, key)
			}
		}
		slices.Sort(unknown)
		for _, key := range unknown {
			diags = append(diags, errorDiagnostic(key, CodeUnknownField, "parameter is not declared"))
		}
	}

	if len(diags) > 0 {
		return nil, &ValidationError{Diagnostics: diags}
	}
	return out, nil
}

func errorDiagnostic(field, code, message string) Diagnostic {
	return Diagnostic{Field: field, Code: code, Severity: SeverityError, Message: message}
}

func checkValue(path string, field Field, value any, depth int) []Diagnostic {
	if depth > maxSchemaDepth {
		return nil
	}
	if value == nil {
		if field.Kind == KindOpaque || field.Nullable || (field.Kind == KindScalar && field.Scalar == TypeNull) {
			return nil
		}
		return []Diagnostic{errorDiagnostic(path, CodeTypeMismatch, fmt.Sprintf("expected %s, got null", describeField(field)))}
	}

	switch field.Kind {
	case KindScalar:
		if !scalarMatches(field.Scalar, value) {
			return []Diagnostic{errorDiagnostic(path, CodeTypeMismatch, fmt.Sprintf("expected %s, got %s", field.Scalar, describeValue(value)))}
		}
		if len(field.Enum) > 0 && !enumContains(field.Enum, value) {
			return []Diagnostic{errorDiagnostic(path, CodeEnumMismatch, fmt.Sprintf("value %v is not one of %v", value, field.Enum))}
		}
		return nil
	case KindSequence:
		rv := reflect.ValueOf(value)
		if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || isBytes(value) {
			return []Diagnostic{errorDiagnostic(path, CodeTypeMismatch, fmt.Sprintf("expected array, got %s", describeValue(value)))}
		}
		if field.Items == nil {
			return nil
		}
		var diags []Diagnostic
		for i := 0; i < rv.Len(); i++ {
			diags = append(diags, checkValue(fmt.Sprintf("%s[%d]", path, i), *field.Items, rv.Index(i).Interface(), depth+1)...)
		}
		return diags
	case KindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return []Diagnostic{errorDiagnostic(path, CodeTypeMismatch, fmt.Sprintf("expected object, got %s", describeValue(value)))}
		}
		var diags []Diagnostic
		for _, child := range field.Properties {
			childPath := path + "." + child.Name
			childValue, present := obj[child.Name]
			if !present {
				if child.Required {
					diags = append(diags, errorDiagnostic(childPath, CodeMissingRequired, "required parameter is missing"))
				}
				continue
			}
			if childValue == nil && !child.Required {
				continue
			}
			diags = append(diags, checkValue(childPath, child.Field, childValue, depth+1)...)
		}
		return diags
	default:
		return nil
	}
}

func scalarMatches(t ScalarType, value any) bool {
	switch t {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeInteger:
		return isIntegral(value)
	case TypeNumber:
		_, ok := numericValue(value)
		return ok
	case TypeNull:
		return value == nil
	default:
		return true
	}
}

func isIntegral(value any) bool {
	switch v := value.(type) {
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return true
		}
		f, err := v.Float64()
		return err == nil && f == math.Trunc(f) && !math.IsInf(f, 0)
	case float32:
		f := float64(v)
		return f == math.Trunc(f) && !math.IsInf(f, 0)
	case float64:
		return v == math.Trunc(v) && !math.IsInf(v, 0)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func numericValue(value any) (float64, bool) {
	if n, ok := value.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func enumContains(enum []any, value any) bool {
	for _, candidate := range enum {
		if a, ok := numericValue(candidate); ok {
			if b, ok := numericValue(value); ok && a == b {
				return true
			}
			continue
		}
		if reflect.DeepEqual(candidate, value) {
			return true
		}
	}
	return false
}

func isBytes(value any) bool {
	_, ok := value.([]byte)
	return ok
}

func describeField(field Field) string {
	switch field.Kind {
	case KindScalar:
		return string(field.Scalar)
	case KindSequence:
		return "array"
	case KindObject:
		return "object"
	default:
		return "any"
	}
}

func describeValue(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	}
	if _, ok := numericValue(value); ok {
		if isIntegral(value) {
			return "integer"
		}
		return "number"
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return "array"
	}
	return fmt.Sprintf("%T", value)
}
