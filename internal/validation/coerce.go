// Package validation coerces form input to the types a parameter schema
// declares and checks it against the schema's rules.
package validation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/fentz26/mxchip/internal/schema"
)

// DefaultTextFields are never converted to numbers, whatever they contain.
// A field the schema declares boolean is still parsed as a boolean.
var DefaultTextFields = []string{
	"shutterless",
	"inverse_beam",
	"centringMethod",
	"detector_mode",
	"space_group",
	"prefix",
	"subdir",
	"type",
	"shape",
	"label",
	"helical",
}

// Coercer converts text form values to the types declared by a schema.
type Coercer struct {
	text map[string]bool
}

// NewCoercer creates a coercer that leaves textFields untouched.
func NewCoercer(textFields []string) *Coercer {
	text := make(map[string]bool, len(textFields))
	for _, f := range textFields {
		text[f] = true
	}
	return &Coercer{text: text}
}

// IsText reports whether name holds free text: it is declared as a string
// field, or it is allow-listed and not declared boolean.
func (c *Coercer) IsText(name string, s *schema.Schema) bool {
	var ft schema.FieldType
	if s != nil {
		if f, ok := s.Field(name); ok {
			ft = f.Type
		}
	}
	switch ft {
	case schema.TypeString:
		return true
	case schema.TypeBoolean:
		return false
	}
	return c.text[name]
}

// Coerce returns a new map with text values converted to their declared
// types. Values that fail to parse are kept as given so Validate can report
// them. Undeclared, non-text values are converted when they look numeric.
func (c *Coercer) Coerce(params map[string]any, s *schema.Schema) map[string]any {
	out := make(map[string]any, len(params))
	for name, v := range params {
		if c.IsText(name, s) {
			out[name] = v
			continue
		}

		var ft schema.FieldType
		if s != nil {
			if f, ok := s.Field(name); ok {
				ft = f.Type
			}
		}
		out[name] = coerceValue(v, ft)
	}
	return out
}

func coerceValue(v any, ft schema.FieldType) any {
	switch ft {
	case schema.TypeBoolean:
		if str, ok := v.(string); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(str)); err == nil {
				return b
			}
		}
		return v
	case schema.TypeInteger:
		n, ok := Number(v)
		if !ok {
			return v
		}
		if n == math.Trunc(n) && math.Abs(n) <= math.MaxInt32 {
			return int(n)
		}
		return n
	case schema.TypeNumber:
		if n, ok := Number(v); ok {
			return n
		}
		return v
	case "":
		str, ok := v.(string)
		if !ok {
			return v
		}
		if n, ok := Number(str); ok {
			return n
		}
		return v
	default:
		return v
	}
}

// Number returns v as a float64 when it is a number or numeric text.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
