package nodes

import "fmt"

// MalformedExpressionError reports an expression rejected at construction,
// such as an arity or argument type mismatch.
type MalformedExpressionError struct {
	Operator Operator
	Reason   string
}

func (e *MalformedExpressionError) Error() string {
	if e.Operator == "" {
		return "querytree: malformed expression: " + e.Reason
	}
	return fmt.Sprintf("querytree: malformed expression %s: %s", e.Operator, e.Reason)
}

func malformed(op Operator, format string, args ...any) *MalformedExpressionError {
	return &MalformedExpressionError{Operator: op, Reason: fmt.Sprintf(format, args...)}
}

// IndexOutOfRangeError reports access to an argument position beyond an
// operation's arity.
type IndexOutOfRangeError struct {
	Operator Operator
	Index    int
	Len      int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("querytree: argument %d out of range for %s with %d arguments", e.Index, e.Operator, e.Len)
}
