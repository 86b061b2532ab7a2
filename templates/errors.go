package templates

import (
	"errors"
	"fmt"

	"github.com/bawdo/querytree/nodes"
)

// ErrUnknownDialect is returned for a dialect name with no definition.
var ErrUnknownDialect = errors.New("querytree: unknown dialect")

// UnsupportedOperationError reports an operator with no template in a
// dialect or any dialect it derives from.
type UnsupportedOperationError struct {
	Operator nodes.Operator
	Dialect  string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("querytree: operator %s is not supported by dialect %q", e.Operator, e.Dialect)
}

// ParseError reports a malformed template pattern.
type ParseError struct {
	Pattern string
	Offset  int
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("querytree: template %q at offset %d: %s", e.Pattern, e.Offset, e.Reason)
}
