package taskform

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fentz26/mxchip/internal/validation"
)

// ErrNoShape is returned when a task is run immediately without a selected
// shape or point.
var ErrNoShape = errors.New("run now requires a selected shape or point")

// ValidationError carries the field-scoped messages that blocked submission.
type ValidationError struct {
	Result validation.Result
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Result.Errors))
	for f := range e.Result.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s: %s", f, e.Result.Errors[f])
	}
	return "invalid parameters: " + strings.Join(parts, "; ")
}
