package tool

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ErrorCodeMalformedDescriptor is returned when a descriptor cannot be translated.
	ErrorCodeMalformedDescriptor = "MALFORMED_DESCRIPTOR"
	// ErrorCodeInvalidArguments is returned when arguments fail parameter model validation.
	ErrorCodeInvalidArguments = "INVALID_ARGUMENTS"
	// ErrorCodeInvocationFailed is returned when the client or the remote tool fails.
	ErrorCodeInvocationFailed = "INVOCATION_FAILED"
	// ErrorCodeResultAdaptation is returned when a result has no plain structural form.
	ErrorCodeResultAdaptation = "RESULT_ADAPTATION_FAILED"
)

// Kind sentinels for errors.Is. They match any *ToolError carrying the same code.
var (
	ErrMalformedDescriptor = &ToolError{Code: ErrorCodeMalformedDescriptor}
	ErrInvalidArguments    = &ToolError{Code: ErrorCodeInvalidArguments}
	ErrInvocationFailure   = &ToolError{Code: ErrorCodeInvocationFailed}
	ErrResultAdaptation    = &ToolError{Code: ErrorCodeResultAdaptation}
)

// ToolError is a structured translation or invocation error. The cause is kept
// so callers can still match transport or context errors underneath it.
type ToolError struct {
	Code    string         `json:"code"`
	Tool    string         `json:"tool,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	if code == "" {
		code = ErrorCodeInvocationFailed
	}
	msg := strings.TrimSpace(e.Message)
	switch {
	case e.Tool != "" && msg != "":
		return fmt.Sprintf("%s: tool %q: %s", code, e.Tool, msg)
	case e.Tool != "":
		return fmt.Sprintf("%s: tool %q", code, e.Tool)
	case msg != "":
		return fmt.Sprintf("%s: %s", code, msg)
	default:
		return code
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is a kind sentinel with the same code.
func (e *ToolError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ToolError)
	if !ok || t == nil {
		return false
	}
	if t.Tool != "" || t.Message != "" || t.Cause != nil {
		return false
	}
	return t.Code == e.Code
}

func newToolError(code, name, message string, cause error) *ToolError {
	cleanCode := strings.TrimSpace(code)
	if cleanCode == "" {
		cleanCode = ErrorCodeInvocationFailed
	}
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &ToolError{
		Code:    cleanCode,
		Tool:    name,
		Message: cleanMsg,
		Cause:   cause,
	}
}

func withToolErrorDetails(err *ToolError, details map[string]any) *ToolError {
	if err == nil {
		return nil
	}
	if len(details) == 0 {
		return err
	}
	if err.Details == nil {
		err.Details = make(map[string]any, len(details))
	}
	for key, value := range details {
		err.Details[key] = value
	}
	return err
}

// AsToolError returns the first *ToolError in err's chain.
func AsToolError(err error) (*ToolError, bool) {
	if err == nil {
		return nil, false
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// ErrorCode returns the code of the first *ToolError in err's chain, or "".
func ErrorCode(err error) string {
	if toolErr, ok := AsToolError(err); ok && toolErr != nil {
		return toolErr.Code
	}
	return ""
}
