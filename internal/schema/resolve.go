package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Defaults maps field names to runtime default values.
type Defaults map[string]any

// Limit is an exclusive numeric range, encoded as [min, max].
type Limit struct {
	Min float64
	Max float64
}

// MarshalJSON encodes the limit as a two-element array.
func (l Limit) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{l.Min, l.Max})
}

// UnmarshalJSON decodes a two-element array.
func (l *Limit) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("limit must be [min, max], got %d values", len(pair))
	}
	l.Min, l.Max = pair[0], pair[1]
	return nil
}

// UnmarshalYAML decodes a two-element sequence.
func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	var pair []float64
	if err := node.Decode(&pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("limit must be [min, max], got %d values", len(pair))
	}
	l.Min, l.Max = pair[0], pair[1]
	return nil
}

// MarshalYAML encodes the limit as a two-element sequence.
func (l Limit) MarshalYAML() (any, error) {
	return []float64{l.Min, l.Max}, nil
}

// Limits maps field names to hardware limits.
type Limits map[string]Limit

// Resolve returns a copy of tmpl with defaults and limits applied, and the
// sorted names of constraint entries that matched no field. The template is
// never modified and unknown entries never add fields.
func Resolve(tmpl *Schema, defaults Defaults, limits Limits) (*Schema, []string) {
	out := tmpl.Clone()
	ignored := make(map[string]struct{})

	for name, v := range defaults {
		f, ok := out.fields[name]
		if !ok {
			ignored[name] = struct{}{}
			continue
		}
		f.Default = copyValue(v)
	}
	for name, l := range limits {
		f, ok := out.fields[name]
		if !ok {
			ignored[name] = struct{}{}
			continue
		}
		lo, hi := l.Min, l.Max
		f.ExclusiveMinimum = &lo
		f.ExclusiveMaximum = &hi
	}

	if len(ignored) == 0 {
		return out, nil
	}
	names := make([]string, 0, len(ignored))
	for n := range ignored {
		names = append(names, n)
	}
	sort.Strings(names)
	return out, names
}

// Resolver applies runtime constraints to templates and logs the entries
// it had to ignore.
type Resolver struct {
	log *zap.Logger
}

// NewResolver creates a resolver. A nil logger discards output.
func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log}
}

// Resolve is Resolve with logging.
func (r *Resolver) Resolve(tmpl *Schema, defaults Defaults, limits Limits) *Schema {
	out, ignored := Resolve(tmpl, defaults, limits)
	if len(ignored) > 0 {
		r.log.Info("ignoring constraints for undeclared fields", zap.Strings("fields", ignored))
	}
	return out
}
