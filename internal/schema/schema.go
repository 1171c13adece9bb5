// Package schema holds the declarative parameter schemas that drive task
// forms, and resolves them against runtime defaults and hardware limits.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeString  FieldType = "string"
	TypeBoolean FieldType = "boolean"
)

// Numeric reports whether values of t are numbers.
func (t FieldType) Numeric() bool { return t == TypeNumber || t == TypeInteger }

// Field describes one form parameter.
type Field struct {
	Type             FieldType `json:"type" yaml:"type"`
	Title            string    `json:"title,omitempty" yaml:"title,omitempty"`
	Default          any       `json:"default,omitempty" yaml:"default,omitempty"`
	ExclusiveMinimum *float64  `json:"exclusiveMinimum,omitempty" yaml:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum *float64  `json:"exclusiveMaximum,omitempty" yaml:"exclusiveMaximum,omitempty"`
	Enum             []any     `json:"enum,omitempty" yaml:"enum,omitempty"`
	Required         bool      `json:"-" yaml:"-"`
}

func (f Field) clone() *Field {
	c := f
	c.Default = copyValue(f.Default)
	if f.ExclusiveMinimum != nil {
		v := *f.ExclusiveMinimum
		c.ExclusiveMinimum = &v
	}
	if f.ExclusiveMaximum != nil {
		v := *f.ExclusiveMaximum
		c.ExclusiveMaximum = &v
	}
	if f.Enum != nil {
		c.Enum = make([]any, len(f.Enum))
		for i, e := range f.Enum {
			c.Enum[i] = copyValue(e)
		}
	}
	return &c
}

// Schema is an ordered mapping from field name to field descriptor.
// Templates are shared; mutate only clones. The zero value is empty.
type Schema struct {
	names  []string
	fields map[string]*Field
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{fields: make(map[string]*Field)}
}

// Set adds or replaces a field. New fields are appended to the declaration order.
func (s *Schema) Set(name string, f Field) *Schema {
	if s.fields == nil {
		s.fields = make(map[string]*Field)
	}
	if _, ok := s.fields[name]; !ok {
		s.names = append(s.names, name)
	}
	s.fields[name] = f.clone()
	return s
}

// Field returns a copy of the named field.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	if !ok {
		return Field{}, false
	}
	return *f.clone(), true
}

// Has reports whether the schema declares name.
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Names returns field names in declaration order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.names) }

// Required returns the required field names in declaration order.
func (s *Schema) Required() []string {
	var out []string
	for _, n := range s.names {
		if s.fields[n].Required {
			out = append(out, n)
		}
	}
	return out
}

// Defaults returns the default value of every field that has one.
func (s *Schema) Defaults() map[string]any {
	out := make(map[string]any, len(s.names))
	for _, n := range s.names {
		if d := s.fields[n].Default; d != nil {
			out[n] = copyValue(d)
		}
	}
	return out
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	c := &Schema{
		names:  make([]string, len(s.names)),
		fields: make(map[string]*Field, len(s.fields)),
	}
	copy(c.names, s.names)
	for n, f := range s.fields {
		c.fields[n] = f.clone()
	}
	return c
}

// Equal reports whether two schemas declare the same fields in the same order.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if !reflect.DeepEqual(s.names, o.names) {
		return false
	}
	for n, f := range s.fields {
		of, ok := o.fields[n]
		if !ok || !reflect.DeepEqual(f, of) {
			return false
		}
	}
	return true
}

type document struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
	Required   []string        `json:"required,omitempty"`
}

// MarshalJSON encodes the schema as a JSON-schema object, keeping property order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var props bytes.Buffer
	props.WriteByte('{')
	for i, n := range s.names {
		if i > 0 {
			props.WriteByte(',')
		}
		key, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.fields[n])
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", n, err)
		}
		props.Write(key)
		props.WriteByte(':')
		props.Write(val)
	}
	props.WriteByte('}')

	return json.Marshal(document{
		Type:       "object",
		Properties: props.Bytes(),
		Required:   s.Required(),
	})
}

// UnmarshalJSON decodes a JSON-schema object, keeping property order.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode schema: %w", err)
	}
	out := New()
	if len(doc.Properties) > 0 {
		dec := json.NewDecoder(bytes.NewReader(doc.Properties))
		if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
			return fmt.Errorf("decode schema: properties must be an object")
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return fmt.Errorf("decode schema: %w", err)
			}
			name, _ := tok.(string)
			var f Field
			if err := dec.Decode(&f); err != nil {
				return fmt.Errorf("decode field %s: %w", name, err)
			}
			out.Set(name, f)
		}
	}
	for _, n := range doc.Required {
		if f, ok := out.fields[n]; ok {
			f.Required = true
		}
	}
	*s = *out
	return nil
}

func copyValue(v any) any {
	switch t := v.(type) {
	case []any:
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = copyValue(e)
		}
		return c
	case map[string]any:
		c := make(map[string]any, len(t))
		for k, e := range t {
			c[k] = copyValue(e)
		}
		return c
	default:
		return v
	}
}
