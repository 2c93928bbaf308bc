package access

import (
	"errors"
	"fmt"
)

// ErrInvalidExpression matches every compile failure via errors.Is.
var ErrInvalidExpression = errors.New("access: invalid expression")

// ExpressionError describes why an expression failed to compile.
type ExpressionError struct {
	Expr   string
	Pos    int
	Reason string
}

func newError(expr string, pos int, format string, args ...any) *ExpressionError {
	return &ExpressionError{Expr: expr, Pos: pos, Reason: fmt.Sprintf(format, args...)}
}

// Error returns the error message.
func (e *ExpressionError) Error() string {
	return fmt.Sprintf("access: invalid expression %q at offset %d: %s", e.Expr, e.Pos, e.Reason)
}

// Is reports whether target is ErrInvalidExpression.
func (e *ExpressionError) Is(target error) bool {
	return target == ErrInvalidExpression
}
