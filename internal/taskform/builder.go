// Package taskform turns a chip selection and form input into the
// parameter object of a queued task.
package taskform

import (
	"context"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/fentz26/mxchip/internal/chip"
	"github.com/fentz26/mxchip/internal/schema"
	"github.com/fentz26/mxchip/internal/tasks"
	"github.com/fentz26/mxchip/internal/validation"
)

// NoShape is the shape of a task with neither a chip selection nor a point.
const NoShape = "-1"

// Parameters is the field-name to value mapping submitted to the queue.
type Parameters map[string]any

// AttributeSource supplies runtime defaults and limits. Either map may be
// partial or empty.
type AttributeSource interface {
	Snapshot() (schema.Defaults, schema.Limits)
}

// Memory supplies the parameters last used for a task type.
type Memory interface {
	TypeDefaults(ctx context.Context, t tasks.Type) (map[string]any, error)
}

// Request is one form submission.
type Request struct {
	Type      tasks.Type     `json:"type"`
	Values    map[string]any `json:"parameters"`
	Selection *chip.Snapshot `json:"selection,omitempty"`
	PointID   string         `json:"point_id,omitempty"`
	// Existing marks an edit of a queued task; live attribute values are
	// not applied as defaults.
	Existing bool `json:"existing,omitempty"`
	RunNow   bool `json:"run_now,omitempty"`
}

// Form is a resolved form ready to render.
type Form struct {
	Type     tasks.Type     `json:"type"`
	Title    string         `json:"title"`
	Schema   *schema.Schema `json:"schema"`
	Order    []string       `json:"order"`
	Path     string         `json:"path"`
	Filename string         `json:"filename"`
}

// Built is a validated task ready to enqueue.
type Built struct {
	Type       tasks.Type        `json:"type"`
	Label      string            `json:"label"`
	Shape      string            `json:"shape"`
	RunNow     bool              `json:"run_now"`
	Parameters Parameters        `json:"parameters"`
	Warnings   map[string]string `json:"warnings,omitempty"`
	Path       string            `json:"path"`
	Filename   string            `json:"filename"`
}

// Options configures a Builder.
type Options struct {
	Catalog    *tasks.Catalog
	Attributes AttributeSource
	Memory     Memory
	TextFields []string
	Warnings   []validation.WarningRule
	Priority   []string
	RootPath   string
	Logger     *zap.Logger
}

// Builder resolves forms and builds task parameters.
type Builder struct {
	catalog   *tasks.Catalog
	attrs     AttributeSource
	memory    Memory
	resolver  *schema.Resolver
	coercer   *validation.Coercer
	validator *validation.Validator
	priority  []string
	rootPath  string
	log       *zap.Logger
}

// NewBuilder creates a builder. Nil attribute source and memory mean no
// runtime defaults; nil text fields and warnings select the stock ones.
func NewBuilder(opts Options) *Builder {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = tasks.DefaultCatalog()
	}
	priority := opts.Priority
	if len(priority) == 0 {
		priority = schema.DefaultPriority
	}
	textFields := opts.TextFields
	if textFields == nil {
		textFields = validation.DefaultTextFields
	}
	warnings := opts.Warnings
	if warnings == nil {
		warnings = validation.DefaultWarnings()
	}
	return &Builder{
		catalog:   catalog,
		attrs:     opts.Attributes,
		memory:    opts.Memory,
		resolver:  schema.NewResolver(log),
		coercer:   validation.NewCoercer(textFields),
		validator: validation.NewValidator(warnings),
		priority:  priority,
		rootPath:  opts.RootPath,
		log:       log,
	}
}

func (b *Builder) resolve(ctx context.Context, t tasks.Type, existing bool) (*tasks.Template, *schema.Schema, error) {
	tmpl, err := b.catalog.Template(t)
	if err != nil {
		return nil, nil, err
	}

	defaults := schema.Defaults{}
	if b.memory != nil {
		last, err := b.memory.TypeDefaults(ctx, t)
		if err != nil {
			b.log.Warn("loading type defaults", zap.String("type", string(t)), zap.Error(err))
		}
		for k, v := range last {
			defaults[k] = v
		}
	}

	var limits schema.Limits
	if b.attrs != nil {
		live, l := b.attrs.Snapshot()
		if !existing {
			for k, v := range live {
				defaults[k] = v
			}
		}
		limits = l
	}

	return tmpl, b.resolver.Resolve(tmpl.Schema, defaults, limits), nil
}

// Form resolves the form of task type t.
func (b *Builder) Form(ctx context.Context, t tasks.Type, existing bool) (*Form, error) {
	tmpl, resolved, err := b.resolve(ctx, t, existing)
	if err != nil {
		return nil, err
	}
	defaults := resolved.Defaults()
	return &Form{
		Type:     t,
		Title:    tmpl.Title,
		Schema:   resolved,
		Order:    schema.Order(resolved, b.priority),
		Path:     PathPreview(b.rootPath, text(defaults["subdir"])),
		Filename: FilenamePreview(text(defaults["prefix"])),
	}, nil
}

// Build merges defaults, form values and the selection, then coerces and
// validates the result. A *ValidationError means the form must be fixed
// before it can be submitted.
func (b *Builder) Build(ctx context.Context, req Request) (*Built, error) {
	t := tasks.Infer(req.Type, req.Values)
	tmpl, resolved, err := b.resolve(ctx, t, req.Existing)
	if err != nil {
		return nil, err
	}

	params := Parameters(resolved.Defaults())
	for k, v := range req.Values {
		params[k] = v
	}

	shape, position := NoShape, "PX"
	if req.Selection != nil && len(req.Selection.Selection) > 0 {
		shape = req.Selection.Shape()
		position = shape
		params["selection"] = req.Selection.Selection
		params["cell_count"] = req.Selection.CellCount
		params["numRows"] = req.Selection.NumRows
		params["numCols"] = req.Selection.NumCols
	} else if req.PointID != "" {
		shape = req.PointID
		position = req.PointID
	}

	label := strings.TrimSpace(text(params["name"]))
	if label == "" {
		label = tmpl.Title + " " + position
	}
	params["label"] = label
	params["shape"] = shape
	params["type"] = string(t)

	if req.RunNow && shape == NoShape {
		return nil, ErrNoShape
	}

	coerced := b.coercer.Coerce(params, resolved)
	res := b.validator.Validate(coerced, resolved)
	if !res.Valid() {
		return nil, &ValidationError{Result: res}
	}

	return &Built{
		Type:       t,
		Label:      label,
		Shape:      shape,
		RunNow:     req.RunNow,
		Parameters: Parameters(coerced),
		Warnings:   res.Warnings,
		Path:       PathPreview(b.rootPath, text(coerced["subdir"])),
		Filename:   FilenamePreview(text(coerced["prefix"])),
	}, nil
}

// Check coerces and validates values against the resolved form of t
// without building a task.
func (b *Builder) Check(ctx context.Context, t tasks.Type, values map[string]any, existing bool) (validation.Result, error) {
	_, resolved, err := b.resolve(ctx, tasks.Infer(t, values), existing)
	if err != nil {
		return validation.Result{}, err
	}
	params := resolved.Defaults()
	for k, v := range values {
		params[k] = v
	}
	return b.validator.Validate(b.coercer.Coerce(params, resolved), resolved), nil
}

// PathPreview is the data directory of a task.
func PathPreview(root, subdir string) string {
	if root == "" {
		return path.Clean("/" + subdir)
	}
	return path.Join(root, subdir)
}

// FilenamePreview is the image filename template of a task.
func FilenamePreview(prefix string) string {
	return prefix + "_[RUN#]_[IMG#]"
}

func text(v any) string {
	s, _ := v.(string)
	return s
}
