// Package tasks defines the beamline task types and their schema templates.
package tasks

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned for a task type outside the catalog.
var ErrUnknownType = errors.New("unknown task type")

// Type is the closed set of task kinds.
type Type string

const (
	DataCollection   Type = "datacollection"
	Characterisation Type = "characterisation"
	Helical          Type = "helical"
	Mesh             Type = "mesh"
	XRFScan          Type = "xrfscan"
	Interleaved      Type = "interleaved"
)

// All lists every task type in display order.
var All = []Type{DataCollection, Characterisation, Helical, Mesh, XRFScan, Interleaved}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, k := range All {
		if t == k {
			return true
		}
	}
	return false
}

// ParseType converts a type name, ignoring case and surrounding space.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Infer returns the type a parameter set actually describes: a set helical
// or mesh flag turns an ordinary collection into that kind.
func Infer(t Type, params map[string]any) Type {
	switch {
	case flag(params["helical"]):
		return Helical
	case flag(params["mesh"]):
		return Mesh
	default:
		return t
	}
}

func flag(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}
