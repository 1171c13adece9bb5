// Package controlplane provides the HTTP API and service layer for mxchip.
package controlplane

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fentz26/mxchip/internal/attributes"
	"github.com/fentz26/mxchip/internal/audit"
	"github.com/fentz26/mxchip/internal/chip"
	"github.com/fentz26/mxchip/internal/models"
	"github.com/fentz26/mxchip/internal/schema"
	"github.com/fentz26/mxchip/internal/store"
	"github.com/fentz26/mxchip/internal/taskform"
	"github.com/fentz26/mxchip/internal/tasks"
	"github.com/fentz26/mxchip/internal/validation"
)

// Service provides the control plane business logic.
type Service struct {
	store    *store.Store
	pdr      *audit.PDRWriter
	sessions *chip.Registry
	geometry chip.Geometry
	catalog  *tasks.Catalog
	attrs    *attributes.Store
	builder  *taskform.Builder
	log      *zap.Logger
}

// ServiceOptions wires the service's collaborators. Nil Catalog, Attributes
// and Sessions get fresh defaults.
type ServiceOptions struct {
	Store      *store.Store
	PDR        *audit.PDRWriter
	Sessions   *chip.Registry
	Geometry   chip.Geometry
	Catalog    *tasks.Catalog
	Attributes *attributes.Store
	Form       taskform.Options
	Logger     *zap.Logger
}

// NewService creates a new control plane service.
func NewService(opts ServiceOptions) *Service {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Catalog == nil {
		opts.Catalog = tasks.DefaultCatalog()
	}
	if opts.Attributes == nil {
		opts.Attributes = attributes.NewStore(0, log)
	}
	if opts.Sessions == nil {
		opts.Sessions = chip.NewRegistry(chip.LockBoth)
	}
	if opts.Geometry.Rows == 0 {
		opts.Geometry = chip.DefaultGeometry()
	}

	form := opts.Form
	form.Catalog = opts.Catalog
	form.Attributes = opts.Attributes
	form.Memory = opts.Store
	if form.Logger == nil {
		form.Logger = log
	}

	return &Service{
		store:    opts.Store,
		pdr:      opts.PDR,
		sessions: opts.Sessions,
		geometry: opts.Geometry,
		catalog:  opts.Catalog,
		attrs:    opts.Attributes,
		builder:  taskform.NewBuilder(form),
		log:      log.Named("service"),
	}
}

// Health pings the database.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Schema Operations ---

// Form resolves the form of task type t.
func (s *Service) Form(ctx context.Context, t tasks.Type, existing bool) (*taskform.Form, error) {
	return s.builder.Form(ctx, t, existing)
}

// Types lists the task types of the catalog.
func (s *Service) Types() []tasks.Type {
	return s.catalog.Types()
}

// --- Session Operations ---

// SessionView is the state of one chip selection session.
type SessionView struct {
	ID           string         `json:"id"`
	Geometry     chip.Geometry  `json:"geometry"`
	Snapshot     chip.Snapshot  `json:"snapshot"`
	MovementLock string         `json:"movement_lock"`
	Added        []chip.Address `json:"added,omitempty"`
}

func view(sess *chip.Session) *SessionView {
	return &SessionView{
		ID:           sess.ID(),
		Geometry:     sess.Grid().Geometry(),
		Snapshot:     sess.Snapshot(),
		MovementLock: sess.MovementLock().String(),
	}
}

// OpenSession starts a selection session on g, or on the configured chip
// when g is nil.
func (s *Service) OpenSession(g *chip.Geometry) (*SessionView, error) {
	geometry := s.geometry
	if g != nil {
		geometry = *g
	}
	id, err := s.sessions.Open(geometry)
	if err != nil {
		return nil, err
	}
	return s.Session(id)
}

// Session returns the current state of session id.
func (s *Service) Session(id string) (*SessionView, error) {
	var v *SessionView
	err := s.sessions.With(id, func(sess *chip.Session) error {
		v = view(sess)
		return nil
	})
	return v, err
}

// CloseSession discards session id.
func (s *Service) CloseSession(id string) error {
	return s.sessions.Close(id)
}

// Click handles a primary click on session id.
func (s *Service) Click(id string, p chip.Point, mod chip.Modifiers) (*SessionView, error) {
	return s.update(id, func(sess *chip.Session) ([]chip.Address, error) {
		sess.Click(p, mod)
		return nil, nil
	})
}

// Drag handles a marquee on session id.
func (s *Service) Drag(id string, start, end chip.Point, mod chip.Modifiers) (*SessionView, error) {
	return s.update(id, func(sess *chip.Session) ([]chip.Address, error) {
		return sess.Drag(start, end, mod), nil
	})
}

// Toggle flips one block of session id.
func (s *Service) Toggle(id string, a chip.Address) (*SessionView, error) {
	return s.update(id, func(sess *chip.Session) ([]chip.Address, error) {
		return nil, sess.ToggleSelect(a)
	})
}

// ClearSelection empties the selection of session id.
func (s *Service) ClearSelection(id string) (*SessionView, error) {
	return s.update(id, func(sess *chip.Session) ([]chip.Address, error) {
		sess.ClearSelection()
		return nil, nil
	})
}

// SetLock overrides the movement lock of one block.
func (s *Service) SetLock(id string, a chip.Address, l chip.LockAxes) (*SessionView, error) {
	return s.update(id, func(sess *chip.Session) ([]chip.Address, error) {
		return nil, sess.SetBlockLock(a, l)
	})
}

func (s *Service) update(id string, fn func(*chip.Session) ([]chip.Address, error)) (*SessionView, error) {
	var v *SessionView
	err := s.sessions.With(id, func(sess *chip.Session) error {
		added, err := fn(sess)
		if err != nil {
			return err
		}
		v = view(sess)
		v.Added = added
		return nil
	})
	return v, err
}

// RightClick resolves a context menu request. ErrNoMenu means the menu is
// suppressed.
func (s *Service) RightClick(id string, p chip.Point) (*chip.ContextMenuRequest, error) {
	var menu chip.ContextMenuRequest
	var ok bool
	err := s.sessions.With(id, func(sess *chip.Session) error {
		menu, ok = sess.RightClick(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoMenu
	}
	return &menu, nil
}

// DoubleClick resolves a stage navigation request.
func (s *Service) DoubleClick(id string, p chip.Point) (*chip.NavigateRequest, error) {
	var nav chip.NavigateRequest
	var ok bool
	err := s.sessions.With(id, func(sess *chip.Session) error {
		nav, ok = sess.DoubleClick(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoMenu
	}
	s.log.Info("move to block", zap.String("session_id", id), zap.Stringer("address", nav.Address))
	return &nav, nil
}

// --- Task Operations ---

// AddTask builds, validates and enqueues a task. The task's parameters
// become the defaults of its type.
func (s *Service) AddTask(ctx context.Context, req taskform.Request) (*models.Task, *taskform.Built, error) {
	built, err := s.builder.Build(ctx, req)
	if err != nil {
		s.pdr.Record(ctx, audit.ActionTaskAdd, req, audit.OutcomeFailure, "", err.Error())
		return nil, nil, err
	}

	task, err := s.store.CreateTask(ctx, models.NewTask{
		Type:       string(built.Type),
		Label:      built.Label,
		Shape:      built.Shape,
		RunNow:     built.RunNow,
		Parameters: built.Parameters,
	})
	if err != nil {
		s.pdr.Record(ctx, audit.ActionTaskAdd, req, audit.OutcomeFailure, "", err.Error())
		return nil, nil, err
	}

	if err := s.rememberDefaults(ctx, built); err != nil {
		s.log.Warn("saving type defaults", zap.String("type", string(built.Type)), zap.Error(err))
	}

	s.pdr.Record(ctx, audit.ActionTaskAdd, map[string]any{
		"type":       built.Type,
		"shape":      built.Shape,
		"run_now":    built.RunNow,
		"parameters": built.Parameters,
	}, audit.OutcomeSuccess, task.ID, built.Label)
	s.log.Info("task queued",
		zap.String("task_id", task.ID),
		zap.String("type", task.Type),
		zap.String("label", task.Label),
		zap.Bool("run_now", task.RunNow))
	return task, built, nil
}

// AddSessionTask enqueues a task for the current selection of session id.
// The selection is cleared once the task is queued.
func (s *Service) AddSessionTask(ctx context.Context, id string, req taskform.Request) (*models.Task, *taskform.Built, error) {
	var snap chip.Snapshot
	err := s.sessions.With(id, func(sess *chip.Session) error {
		snap = sess.Snapshot()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	req.Selection = &snap
	task, built, err := s.AddTask(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	err = s.sessions.With(id, func(sess *chip.Session) error {
		sess.ClearSelection()
		return nil
	})
	if err != nil {
		s.log.Warn("clearing selection", zap.String("session_id", id), zap.Error(err))
	}
	return task, built, nil
}

// rememberDefaults stores the declared fields of built as its type's defaults.
func (s *Service) rememberDefaults(ctx context.Context, built *taskform.Built) error {
	tmpl, err := s.catalog.Template(built.Type)
	if err != nil {
		return err
	}
	params := make(map[string]any)
	for k, v := range built.Parameters {
		if tmpl.Schema.Has(k) {
			params[k] = v
		}
	}
	return s.store.SaveTypeDefaults(ctx, built.Type, params)
}

// CheckTask validates values against the resolved form of t.
func (s *Service) CheckTask(ctx context.Context, t tasks.Type, values map[string]any, existing bool) (validation.Result, error) {
	return s.builder.Check(ctx, t, values, existing)
}

// GetTask retrieves a task by ID.
func (s *Service) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// ListTasks returns queued tasks in execution order, optionally filtered.
func (s *Service) ListTasks(ctx context.Context, status string) ([]models.Task, error) {
	return s.store.ListTasks(ctx, status)
}

// RemoveTask deletes a pending task from the queue.
func (s *Service) RemoveTask(ctx context.Context, id string) error {
	if _, err := s.GetTask(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.pdr.Record(ctx, audit.ActionTaskRemove, map[string]string{"task_id": id}, audit.OutcomeSuccess, id, "")
	return nil
}

// GetTaskRuns returns collector runs for a task.
func (s *Service) GetTaskRuns(ctx context.Context, id string) ([]models.Run, error) {
	return s.store.GetRunsForTask(ctx, id)
}

// ResetDefaults forgets every remembered per-type default.
func (s *Service) ResetDefaults(ctx context.Context) (int64, error) {
	n, err := s.store.ResetTypeDefaults(ctx)
	if err != nil {
		return 0, err
	}
	s.pdr.Record(ctx, audit.ActionDefaultsReset, map[string]int64{"types": n}, audit.OutcomeSuccess, "", "")
	return n, nil
}

// --- Attribute Operations ---

// SetAttribute records a beamline attribute reading.
func (s *Service) SetAttribute(ctx context.Context, name string, value float64, limits *schema.Limit) (attributes.Attribute, error) {
	a, err := s.attrs.Set(name, value, limits)
	if err != nil {
		return a, err
	}
	s.pdr.Record(ctx, audit.ActionAttributeSet, a, audit.OutcomeSuccess, "", fmt.Sprintf("%s=%g", a.Name, a.Value))
	return a, nil
}

// ListAttributes returns every known attribute.
func (s *Service) ListAttributes() []attributes.Attribute {
	return s.attrs.List()
}

// --- Audit ---

// ListAudit returns the most recent decision records.
func (s *Service) ListAudit(ctx context.Context, limit int) ([]models.PDREntry, error) {
	return s.store.ListPDR(ctx, limit)
}
