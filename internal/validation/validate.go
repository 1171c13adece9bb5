package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/fentz26/mxchip/internal/schema"
)

// WarningRule flags a numeric field whose value is legal but unusual.
type WarningRule struct {
	Field   string   `json:"field" yaml:"field"`
	Below   *float64 `json:"below,omitempty" yaml:"below,omitempty"`
	Above   *float64 `json:"above,omitempty" yaml:"above,omitempty"`
	Message string   `json:"message" yaml:"message"`
}

func (w WarningRule) matches(n float64) bool {
	return (w.Below != nil && n < *w.Below) || (w.Above != nil && n > *w.Above)
}

func float(v float64) *float64 { return &v }

// DefaultWarnings returns the stock acquisition warnings.
func DefaultWarnings() []WarningRule {
	return []WarningRule{
		{Field: "exp_time", Below: float(0.01), Message: "Exposure time is unusually low"},
		{Field: "num_images", Above: float(100000), Message: "Very large number of images"},
	}
}

// Result holds field-scoped validation messages.
type Result struct {
	Errors   map[string]string `json:"errors,omitempty"`
	Warnings map[string]string `json:"warnings,omitempty"`
}

// Valid reports whether there are no errors. Warnings never block.
func (r Result) Valid() bool { return len(r.Errors) == 0 }

// Validator checks parameters against a resolved schema.
type Validator struct {
	warnings []WarningRule
}

// NewValidator creates a validator with the given warning rules.
func NewValidator(warnings []WarningRule) *Validator {
	return &Validator{warnings: warnings}
}

// Validate checks every declared field of s. It depends only on its
// arguments.
func (v *Validator) Validate(params map[string]any, s *schema.Schema) Result {
	res := Result{Errors: map[string]string{}, Warnings: map[string]string{}}

	for _, name := range s.Names() {
		f, _ := s.Field(name)
		val, present := params[name]
		if !present || empty(val) {
			if f.Required {
				res.Errors[name] = "Required"
			}
			continue
		}
		if msg := checkField(f, val); msg != "" {
			res.Errors[name] = msg
		}
	}

	for _, w := range v.warnings {
		if _, failed := res.Errors[w.Field]; failed {
			continue
		}
		if n, ok := Number(params[w.Field]); ok && w.matches(n) {
			res.Warnings[w.Field] = w.Message
		}
	}
	return res
}

func checkField(f schema.Field, val any) string {
	if f.Type.Numeric() {
		n, ok := Number(val)
		if !ok {
			return "Must be a number"
		}
		if f.Type == schema.TypeInteger && n != math.Trunc(n) {
			return "Must be a whole number"
		}
		if f.ExclusiveMinimum != nil && n <= *f.ExclusiveMinimum {
			return fmt.Sprintf("Must be greater than %g", *f.ExclusiveMinimum)
		}
		if f.ExclusiveMaximum != nil && n >= *f.ExclusiveMaximum {
			return fmt.Sprintf("Must be less than %g", *f.ExclusiveMaximum)
		}
	}
	if f.Type == schema.TypeBoolean {
		if _, ok := val.(bool); !ok {
			return "Must be true or false"
		}
	}
	if len(f.Enum) > 0 && !inEnum(f.Enum, val) {
		opts := make([]string, len(f.Enum))
		for i, e := range f.Enum {
			opts[i] = fmt.Sprint(e)
		}
		return "Must be one of " + strings.Join(opts, ", ")
	}
	return ""
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

func inEnum(enum []any, v any) bool {
	n, numeric := Number(v)
	for _, e := range enum {
		if en, ok := Number(e); ok && numeric && en == n {
			return true
		}
		if fmt.Sprint(e) == fmt.Sprint(v) {
			return true
		}
	}
	return false
}
