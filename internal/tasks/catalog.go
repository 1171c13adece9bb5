package tasks

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fentz26/mxchip/internal/schema"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Template is the static form definition of one task type.
type Template struct {
	Title  string         `yaml:"title" json:"title"`
	Schema *schema.Schema `yaml:"schema" json:"schema"`
}

// Catalog maps task types to their templates. Templates are shared and
// must be treated as read-only.
type Catalog struct {
	templates map[Type]*Template
}

type catalogFile struct {
	Templates map[string]*Template `yaml:"templates"`
}

func parseCatalog(data []byte) (map[Type]*Template, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	out := make(map[Type]*Template, len(f.Templates))
	for name, tmpl := range f.Templates {
		t, err := ParseType(name)
		if err != nil {
			return nil, err
		}
		if tmpl == nil || tmpl.Schema == nil || tmpl.Schema.Len() == 0 {
			return nil, fmt.Errorf("template %s has no fields", t)
		}
		out[t] = tmpl
	}
	return out, nil
}

// DefaultCatalog returns the built-in templates for every task type.
func DefaultCatalog() *Catalog {
	templates, err := parseCatalog(builtinCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return &Catalog{templates: templates}
}

// LoadCatalog reads a catalog file. Templates in the file replace the
// built-in ones of the same type; a missing file yields the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	templates, err := parseCatalog(data)
	if err != nil {
		return nil, err
	}
	for t, tmpl := range templates {
		c.templates[t] = tmpl
	}
	return c, nil
}

// Template returns the template for t.
func (c *Catalog) Template(t Type) (*Template, error) {
	tmpl, ok := c.templates[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return tmpl, nil
}

// Types returns the catalogued types in display order.
func (c *Catalog) Types() []Type {
	out := make([]Type, 0, len(c.templates))
	for t := range c.templates {
		out = append(out, t)
	}
	rank := make(map[Type]int, len(All))
	for i, t := range All {
		rank[t] = i
	}
	sort.Slice(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out
}
