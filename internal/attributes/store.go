// Package attributes keeps the latest beamline attribute values and their
// hardware limits, and turns them into runtime form defaults.
package attributes

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fentz26/mxchip/internal/schema"
)

var (
	ErrInvalidName   = errors.New("attribute name is required")
	ErrInvalidLimits = errors.New("attribute limits must satisfy min < max")
)

// Tracked are the attributes new task forms take their defaults from.
var Tracked = []string{"resolution", "energy", "transmission", "omega"}

// fieldFor maps attribute names onto form fields where they differ.
var fieldFor = map[string]string{
	"omega": "osc_start",
}

// FieldName returns the form field an attribute feeds.
func FieldName(attr string) string {
	if f, ok := fieldFor[attr]; ok {
		return f
	}
	return attr
}

// Attribute is one reported beamline value.
type Attribute struct {
	Name      string        `json:"name"`
	Value     float64       `json:"value"`
	Limits    *schema.Limit `json:"limits,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Store holds attribute values. Updates may arrive at any time or never.
type Store struct {
	mu     sync.RWMutex
	attrs  map[string]Attribute
	maxAge time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// NewStore creates an empty store. Values older than maxAge are ignored by
// Snapshot; zero keeps them forever.
func NewStore(maxAge time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		attrs:  make(map[string]Attribute),
		maxAge: maxAge,
		now:    time.Now,
		log:    log,
	}
}

// Set records a value. Nil limits keep the previously reported limits.
func (s *Store) Set(name string, value float64, limits *schema.Limit) (Attribute, error) {
	if name == "" {
		return Attribute{}, ErrInvalidName
	}
	if limits != nil && !(limits.Min < limits.Max) {
		return Attribute{}, fmt.Errorf("%w: %s [%g, %g]", ErrInvalidLimits, name, limits.Min, limits.Max)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := Attribute{Name: name, Value: value, UpdatedAt: s.now().UTC()}
	if limits != nil {
		l := *limits
		a.Limits = &l
	} else if prev, ok := s.attrs[name]; ok {
		a.Limits = prev.Limits
	}
	s.attrs[name] = a
	return a, nil
}

// Get returns one attribute.
func (s *Store) Get(name string) (Attribute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attrs[name]
	return a, ok
}

// List returns every attribute, sorted by name.
func (s *Store) List() []Attribute {
	s.mu.RLock()
	out := make([]Attribute, 0, len(s.attrs))
	for _, a := range s.attrs {
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) stale(a Attribute) bool {
	return s.maxAge > 0 && s.now().Sub(a.UpdatedAt) > s.maxAge
}

// Snapshot returns the fresh tracked values as form defaults and limits,
// keyed by form field. Missing or stale attributes are left out so the
// template default applies.
func (s *Store) Snapshot() (schema.Defaults, schema.Limits) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	defaults := schema.Defaults{}
	limits := schema.Limits{}
	for _, name := range Tracked {
		a, ok := s.attrs[name]
		if !ok {
			s.log.Debug("runtime default missing", zap.String("attribute", name))
			continue
		}
		if s.stale(a) {
			s.log.Debug("runtime default stale",
				zap.String("attribute", name),
				zap.Time("updated_at", a.UpdatedAt))
			continue
		}
		field := FieldName(name)
		defaults[field] = a.Value
		if a.Limits != nil {
			limits[field] = *a.Limits
		}
	}
	return defaults, limits
}
