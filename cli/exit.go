package cli

import (
	"errors"
	"fmt"

	"github.com/petal-labs/toolbridge/tool"
)

// Exit codes
const (
	exitValidation = 1
	exitRuntime    = 2
)

// ExitError is an error that carries a specific process exit code.
// Cobra's RunE returns this to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitError creates a new ExitError with the given code and formatted message.
func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// toolExitError maps a tool failure to an exit code: bad arguments and
// malformed descriptors are caller errors, everything else is a runtime
// failure.
func toolExitError(name string, err error) *ExitError {
	switch {
	case errors.Is(err, tool.ErrInvalidArguments), errors.Is(err, tool.ErrMalformedDescriptor):
		return exitError(exitValidation, "%s: %s", name, err)
	default:
		return exitError(exitRuntime, "%s: %s", name, err)
	}
}
