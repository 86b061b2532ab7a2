package visitors

import (
	"errors"
	"fmt"
)

// ErrUnsupportedLiteral is returned when a constant cannot be inlined.
var ErrUnsupportedLiteral = errors.New("querytree: unsupported literal type")

// ParamNotSetError reports a parameter with no bound value.
type ParamNotSetError struct {
	Name string
}

func (e *ParamNotSetError) Error() string {
	return fmt.Sprintf("querytree: parameter %q is not set", e.Name)
}
