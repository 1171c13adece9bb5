package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fentz26/mxchip/internal/attributes"
	"github.com/fentz26/mxchip/internal/chip"
	"github.com/fentz26/mxchip/internal/models"
	"github.com/fentz26/mxchip/internal/schema"
	"github.com/fentz26/mxchip/internal/scheduler"
	"github.com/fentz26/mxchip/internal/store"
	"github.com/fentz26/mxchip/internal/taskform"
	"github.com/fentz26/mxchip/internal/tasks"
	"github.com/fentz26/mxchip/internal/validation"
)

// Version is reported by /health.
var Version = "dev"

// Server provides the HTTP API for mxchip.
type Server struct {
	service   *Service
	scheduler *scheduler.Scheduler
	addr      string
	server    *http.Server
	log       *zap.Logger
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		service: service,
		addr:    addr,
		log:     log.Named("http"),
	}
}

// SetScheduler exposes scheduler statistics on /workers.
func (s *Server) SetScheduler(sch *scheduler.Scheduler) {
	s.scheduler = sch
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/workers", s.handleWorkers)

	// Schema endpoints
	mux.HandleFunc("/types", s.handleTypes)
	mux.HandleFunc("/schemas/", s.handleSchema)

	// Chip session endpoints
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionByID)

	// Task endpoints
	mux.HandleFunc("/tasks", s.handleTasks)
	mux.HandleFunc("/tasks/", s.handleTaskByID)
	mux.HandleFunc("/defaults/reset", s.handleResetDefaults)

	// Beamline attributes
	mux.HandleFunc("/attributes", s.handleAttributes)
	mux.HandleFunc("/attributes/", s.handleAttributeByName)

	mux.HandleFunc("/audit", s.handleAudit)
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting mxchip daemon", zap.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// --- Responses ---

// HealthResponse is the /health payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// ErrorResponse is the body of every failed request. Fields carries the
// field-scoped messages of a rejected form.
type ErrorResponse struct {
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Warnings map[string]string `json:"warnings,omitempty"`
}

// TaskResponse is a queued task with the previews computed when it was built.
type TaskResponse struct {
	Task     *models.Task      `json:"task"`
	Warnings map[string]string `json:"warnings,omitempty"`
	Path     string            `json:"path"`
	Filename string            `json:"filename"`
}

// ValidateResponse is the /tasks/validate payload.
type ValidateResponse struct {
	Valid bool `json:"valid"`
	validation.Result
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var verr *taskform.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, chip.ErrInvalidAddress),
		errors.Is(err, chip.ErrInvalidGeometry),
		errors.Is(err, tasks.ErrUnknownType),
		errors.Is(err, attributes.ErrInvalidName),
		errors.Is(err, attributes.ErrInvalidLimits):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrTaskNotFound),
		errors.Is(err, ErrNoMenu),
		errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, chip.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrTaskNotClaimable),
		errors.Is(err, taskform.ErrNoShape):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	var verr *taskform.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Result.Errors
		resp.Warnings = verr.Result.Warnings
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	return nil
}

// splitPath returns the id and optional action below prefix.
func splitPath(r *http.Request, prefix string) (string, string) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, prefix), "/", 2)
	id := parts[0]
	action := ""
	if len(parts) > 1 {
		action = strings.Trim(parts[1], "/")
	}
	return id, action
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	health := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := s.service.Health(r.Context()); err != nil {
		health.OK = false
		health.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "scheduler not running"})
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.GetStats())
}

// --- Schema Handlers ---

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Types())
}

// handleSchema handles GET /schemas/{type}?existing=true
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	name, _ := splitPath(r, "/schemas/")
	t, err := tasks.ParseType(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	existing, _ := strconv.ParseBool(r.URL.Query().Get("existing"))

	form, err := s.service.Form(r.Context(), t, existing)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// --- Session Handlers ---

type openSessionRequest struct {
	Geometry *chip.Geometry `json:"geometry,omitempty"`
}

type pointerRequest struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Ctrl bool    `json:"ctrl"`
}

func (p pointerRequest) point() chip.Point { return chip.Point{X: p.X, Y: p.Y} }

type dragRequest struct {
	Start chip.Point `json:"start"`
	End   chip.Point `json:"end"`
	Ctrl  bool       `json:"ctrl"`
}

type blockRequest struct {
	Address chip.Address `json:"address"`
	Lock    string       `json:"lock,omitempty"`
}

// handleSessions handles POST /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req openSessionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	v, err := s.service.OpenSession(req.Geometry)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// handleSessionByID handles /sessions/{id}/*
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	id, action := splitPath(r, "/sessions/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "session id required"})
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.respond(w)(s.service.Session(id))
	case action == "" && r.Method == http.MethodDelete:
		if err := s.service.CloseSession(id); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case r.Method != http.MethodPost:
		methodNotAllowed(w)
	default:
		s.sessionAction(w, r, id, action)
	}
}

func (s *Server) sessionAction(w http.ResponseWriter, r *http.Request, id, action string) {
	switch action {
	case "click", "rightclick", "dblclick":
		var req pointerRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		switch action {
		case "click":
			s.respond(w)(s.service.Click(id, req.point(), chip.Modifiers{Ctrl: req.Ctrl}))
		case "rightclick":
			menu, err := s.service.RightClick(id, req.point())
			s.respond(w)(menu, err)
		default:
			nav, err := s.service.DoubleClick(id, req.point())
			s.respond(w)(nav, err)
		}
	case "drag":
		var req dragRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		s.respond(w)(s.service.Drag(id, req.Start, req.End, chip.Modifiers{Ctrl: req.Ctrl}))
	case "toggle", "lock":
		var req blockRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		if action == "toggle" {
			s.respond(w)(s.service.Toggle(id, req.Address))
			return
		}
		lock, err := chip.ParseLock(req.Lock)
		if err != nil {
			s.writeError(w, errors.Join(ErrInvalidRequest, err))
			return
		}
		s.respond(w)(s.service.SetLock(id, req.Address, lock))
	case "clear":
		s.respond(w)(s.service.ClearSelection(id))
	case "tasks":
		var req taskform.Request
		if err := decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		task, built, err := s.service.AddSessionTask(r.Context(), id, req)
		s.writeTask(w, task, built, err)
	default:
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
	}
}

// respond writes v as JSON, or err mapped to its status.
func (s *Server) respond(w http.ResponseWriter) func(any, error) {
	return func(v any, err error) {
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// --- Task Handlers ---

// handleTasks handles POST /tasks and GET /tasks
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createTask(w, r)
	case http.MethodGet:
		s.listTasks(w, r)
	default:
		methodNotAllowed(w)
	}
}

// handleTaskByID handles /tasks/{id}/* and POST /tasks/validate
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	id, action := splitPath(r, "/tasks/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "task id required"})
		return
	}

	switch {
	case id == "validate" && r.Method == http.MethodPost:
		s.validateTask(w, r)
	case action == "" && r.Method == http.MethodGet:
		s.respond(w)(s.service.GetTask(r.Context(), id))
	case action == "" && r.Method == http.MethodDelete:
		if err := s.service.RemoveTask(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case action == "runs" && r.Method == http.MethodGet:
		runs, err := s.service.GetTaskRuns(r.Context(), id)
		if runs == nil {
			runs = []models.Run{}
		}
		s.respond(w)(runs, err)
	default:
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
	}
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskform.Request
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	task, built, err := s.service.AddTask(r.Context(), req)
	s.writeTask(w, task, built, err)
}

func (s *Server) writeTask(w http.ResponseWriter, task *models.Task, built *taskform.Built, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, TaskResponse{
		Task:     task,
		Warnings: built.Warnings,
		Path:     built.Path,
		Filename: built.Filename,
	})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	list, err := s.service.ListTasks(r.Context(), status)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if list == nil {
		list = []models.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) validateTask(w http.ResponseWriter, r *http.Request) {
	var req taskform.Request
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.service.CheckTask(r.Context(), req.Type, req.Values, req.Existing)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Valid: res.Valid(), Result: res})
}

func (s *Server) handleResetDefaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	n, err := s.service.ResetDefaults(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"reset": n})
}

// --- Attribute Handlers ---

type setAttributeRequest struct {
	Value  *float64      `json:"value"`
	Limits *schema.Limit `json:"limits,omitempty"`
}

func (s *Server) handleAttributes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.service.ListAttributes())
}

// handleAttributeByName handles PUT /attributes/{name}
func (s *Server) handleAttributeByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	name, _ := splitPath(r, "/attributes/")

	var req setAttributeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Value == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "value is required"})
		return
	}
	s.respond(w)(s.service.SetAttribute(r.Context(), name, *req.Value, req.Limits))
}

// --- Audit ---

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := s.service.ListAudit(r.Context(), limit)
	if entries == nil {
		entries = []models.PDREntry{}
	}
	s.respond(w)(entries, err)
}
