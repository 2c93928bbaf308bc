package commands

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDefinition is returned by Register for malformed input.
	ErrInvalidDefinition = errors.New("commands: invalid definition")

	// ErrNotFound is returned by Execute when no command has the name.
	ErrNotFound = errors.New("commands: unknown command")

	// ErrAccessDenied is returned by Execute when the caller's rank does not
	// satisfy the command's access expression.
	ErrAccessDenied = errors.New("commands: access denied")
)

// Error describes a failed execution. It unwraps to ErrNotFound,
// ErrAccessDenied or the error returned by the command itself.
type Error struct {
	Name   string
	Caller string
	Err    error
}

// Error returns the error message.
func (e *Error) Error() string {
	switch {
	case errors.Is(e.Err, ErrNotFound):
		return fmt.Sprintf("unknown command %q", e.Name)
	case errors.Is(e.Err, ErrAccessDenied):
		return fmt.Sprintf("%s isn't allowed to execute %q", e.Caller, e.Name)
	default:
		return fmt.Sprintf("command %q failed: %v", e.Name, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}
