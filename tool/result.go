package tool

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode/utf8"
)

const maxResultDepth = 64

// Envelope is a provider-specific result wrapper. Payload returns the inner
// value, or an error when the provider reported a remote failure.
type Envelope interface {
	Payload() (any, error)
}

// RemoteError is a failure reported by the remote tool inside a result.
type RemoteError struct {
	Message string
	Value   any
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Message) == "" {
		return "remote tool reported an error"
	}
	return e.Message
}

var errUnadaptable = errors.New("value has no plain structural form")

// AdaptResult converts a client result to plain strings, numbers, booleans,
// nil, []any, and map[string]any. A mapping whose "error" key is truthy is a
// remote failure and yields an InvocationFailure.
func AdaptResult(raw any) (any, error) {
	if env, ok := raw.(Envelope); ok {
		payload, err := env.Payload()
		if err != nil {
			return nil, newToolError(ErrorCodeInvocationFailed, "", "", err)
		}
		raw = payload
	}

	value, err := plainValue(raw, 0)
	if err != nil {
		return nil, newToolError(ErrorCodeResultAdaptation, "", "", err)
	}

	if obj, ok := value.(map[string]any); ok {
		if errValue, ok := obj["error"]; ok && truthy(errValue) {
			remote := &RemoteError{Message: remoteMessage(errValue), Value: errValue}
			return nil, withToolErrorDetails(
				newToolError(ErrorCodeInvocationFailed, "", "", remote),
				map[string]any{"remote_error": errValue},
			)
		}
	}
	return value, nil
}

func plainValue(raw any, depth int) (any, error) {
	if depth > maxResultDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", errUnadaptable, maxResultDepth)
	}

	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string, bool:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite number", errUnadaptable)
		}
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errUnadaptable, err)
		}
		return f, nil
	case json.RawMessage:
		return decodeJSON(v, depth)
	case []byte:
		if utf8.Valid(v) {
			return string(v), nil
		}
		return base64.StdEncoding.EncodeToString(v), nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			adapted, err := plainValue(item, depth+1)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = adapted
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			adapted, err := plainValue(item, depth+1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = adapted
		}
		return out, nil
	case Envelope:
		payload, err := v.Payload()
		if err != nil {
			return nil, fmt.Errorf("%w: nested envelope failed: %v", errUnadaptable, err)
		}
		return plainValue(payload, depth+1)
	case error:
		return v.Error(), nil
	case fmt.Stringer:
		if _, ok := raw.(json.Marshaler); !ok {
			return v.String(), nil
		}
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return float64(u), nil
		}
		return int64(u), nil
	case reflect.Float32:
		return plainValue(rv.Float(), depth)
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return nil, fmt.Errorf("%w: %T", errUnadaptable, raw)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
	}

	// Structs, typed maps and typed slices go through their JSON form.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %T: %v", errUnadaptable, raw, err)
	}
	return decodeJSON(encoded, depth)
}

func decodeJSON(data []byte, depth int) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", errUnadaptable, err)
	}
	return plainValue(decoded, depth+1)
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	}
	if n, ok := numericValue(value); ok {
		return n != 0
	}
	return true
}

func remoteMessage(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(encoded)
}

// RenderText renders an adapted result the way tool output is shown to a
// model: strings verbatim, mappings and sequences as indented JSON.
func RenderText(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case map[string]any, []any:
		encoded, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", newToolError(ErrorCodeResultAdaptation, "", "", err)
		}
		return string(encoded), nil
	default:
		return fmt.Sprint(v), nil
	}
}
