// Package store provides SQLite-backed persistence for the task queue.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/mxchip/internal/models"
	"github.com/fentz26/mxchip/internal/tasks"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrTaskNotFound indicates no task has the requested id.
var ErrTaskNotFound = errors.New("task not found")

// Store provides access to the queue database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL UNIQUE,
		type TEXT NOT NULL,
		label TEXT NOT NULL,
		shape TEXT NOT NULL,
		run_now INTEGER NOT NULL DEFAULT 0,
		parameters TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT,
		claimed_by TEXT,
		claimed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leases (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		holder_id TEXT NOT NULL,
		ttl_sec INTEGER NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		connector TEXT NOT NULL,
		command TEXT NOT NULL,
		args TEXT,
		exit_code INTEGER,
		stdout TEXT,
		stderr TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS type_defaults (
		type TEXT PRIMARY KEY,
		parameters TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_leases_task_id ON leases(task_id);
	CREATE INDEX IF NOT EXISTS idx_runs_task_id ON runs(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Task Operations ---

const taskColumns = `id, seq, type, label, shape, run_now, parameters, status, error, claimed_by, claimed_at, created_at, updated_at`

// queueOrder puts run-now tasks first, then everything else first in, first out.
const queueOrder = ` ORDER BY run_now DESC, seq ASC`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*models.Task, error) {
	var task models.Task
	var params string
	var errMsg, claimedBy sql.NullString
	var claimedAt sql.NullTime

	if err := row.Scan(&task.ID, &task.Seq, &task.Type, &task.Label, &task.Shape, &task.RunNow, &params,
		&task.Status, &errMsg, &claimedBy, &claimedAt, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &task.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters of %s: %w", task.ID, err)
	}
	if errMsg.Valid {
		task.Error = errMsg.String
	}
	if claimedBy.Valid {
		task.ClaimedBy = claimedBy.String
	}
	if claimedAt.Valid {
		task.ClaimedAt = &claimedAt.Time
	}
	return &task, nil
}

// CreateTask appends a task to the queue.
func (s *Store) CreateTask(ctx context.Context, nt models.NewTask) (*models.Task, error) {
	params, err := json.Marshal(nt.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM tasks`).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next seq: %w", err)
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:         uuid.New().String(),
		Seq:        seq,
		Type:       nt.Type,
		Label:      nt.Label,
		Shape:      nt.Shape,
		RunNow:     nt.RunNow,
		Parameters: nt.Parameters,
		Status:     models.TaskStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, seq, type, label, shape, run_now, parameters, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Seq, task.Type, task.Label, task.Shape, task.RunNow, string(params), task.Status, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return task, nil
}

// GetTask retrieves a task by ID. It returns nil, nil when there is none.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks in queue order, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, status string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any

	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += queueOrder

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

// UpdateTaskStatus updates the status of a task and records errMsg.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error = NULLIF(?, ''), updated_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a pending task from the queue.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND status = ?`, id, models.TaskStatusPending)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotClaimable
	}
	return nil
}

// ClaimResult holds the result of an atomic claim operation.
type ClaimResult struct {
	Task  *models.Task
	Lease *models.Lease
}

// ErrTaskNotClaimable indicates the task cannot be claimed (not found or wrong status).
var ErrTaskNotClaimable = errors.New("task not found or not claimable")

// ClaimNext atomically claims the head of the queue and creates a lease in a
// single transaction. It returns nil, nil when nothing is pending.
func (s *Store) ClaimNext(ctx context.Context, holderID string, ttlSec int) (*ClaimResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	task, err := scanTask(tx.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ?`+queueOrder+` LIMIT 1`,
		models.TaskStatusPending,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query head: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = ?, claimed_by = ?, claimed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.TaskStatusClaimed, holderID, now, now, task.ID, models.TaskStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrTaskNotClaimable
	}

	lease := &models.Lease{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		HolderID:  holderID,
		TTLSec:    ttlSec,
		ExpiresAt: now.Add(time.Duration(ttlSec) * time.Second),
		CreatedAt: now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO leases (id, task_id, holder_id, ttl_sec, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		lease.ID, lease.TaskID, lease.HolderID, lease.TTLSec, lease.ExpiresAt, lease.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	task.Status = models.TaskStatusClaimed
	task.ClaimedBy = holderID
	task.ClaimedAt = &now
	task.UpdatedAt = now

	return &ClaimResult{Task: task, Lease: lease}, nil
}

// ReleaseTask puts a claimed task back into the queue.
func (s *Store) ReleaseTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, claimed_by = NULL, claimed_at = NULL, updated_at = ? WHERE id = ?`,
		models.TaskStatusPending, time.Now().UTC(), id,
	)
	return err
}

// RequeueExpired returns claimed or running tasks whose leases have all
// expired to the queue, and drops the expired leases.
func (s *Store) RequeueExpired(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = ?, claimed_by = NULL, claimed_at = NULL, updated_at = ?
		 WHERE status IN (?, ?)
		 AND NOT EXISTS (SELECT 1 FROM leases WHERE leases.task_id = tasks.id AND leases.expires_at > ?)`,
		models.TaskStatusPending, now, models.TaskStatusClaimed, models.TaskStatusRunning, now,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue tasks: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM leases WHERE expires_at <= ?`, now); err != nil {
		return 0, fmt.Errorf("drop expired leases: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return n, nil
}

// --- Lease Operations ---

// GetActiveLease returns the active lease for a task, if any.
func (s *Store) GetActiveLease(ctx context.Context, taskID string) (*models.Lease, error) {
	lease := &models.Lease{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, holder_id, ttl_sec, expires_at, created_at FROM leases WHERE task_id = ? AND expires_at > ? ORDER BY created_at DESC LIMIT 1`,
		taskID, time.Now().UTC(),
	).Scan(&lease.ID, &lease.TaskID, &lease.HolderID, &lease.TTLSec, &lease.ExpiresAt, &lease.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query lease: %w", err)
	}
	return lease, nil
}

// RenewLease extends the expiry of a lease (heartbeat).
func (s *Store) RenewLease(ctx context.Context, leaseID string, ttlSec int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE leases SET expires_at = ? WHERE id = ?`,
		time.Now().UTC().Add(time.Duration(ttlSec)*time.Second), leaseID,
	)
	return err
}

// DeleteLease removes a lease.
func (s *Store) DeleteLease(ctx context.Context, leaseID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE id = ?`, leaseID)
	return err
}

// --- Run Operations ---

// CreateRun inserts a new run record.
func (s *Store) CreateRun(ctx context.Context, taskID, connector, command string, args []string) (*models.Run, error) {
	now := time.Now().UTC()
	argsJSON, _ := json.Marshal(args)

	run := &models.Run{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Connector: connector,
		Command:   command,
		Args:      args,
		StartedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, task_id, connector, command, args, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.TaskID, run.Connector, run.Command, string(argsJSON), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// UpdateRun updates a run with results.
func (s *Store) UpdateRun(ctx context.Context, id string, exitCode int, stdout, stderr string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET exit_code = ?, stdout = ?, stderr = ?, ended_at = ? WHERE id = ?`,
		exitCode, stdout, stderr, time.Now().UTC(), id,
	)
	return err
}

// GetRunsForTask returns all runs for a task, newest first.
func (s *Store) GetRunsForTask(ctx context.Context, taskID string) ([]models.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, connector, command, args, exit_code, stdout, stderr, started_at, ended_at FROM runs WHERE task_id = ? ORDER BY started_at DESC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var run models.Run
		var argsJSON string
		var endedAt sql.NullTime
		var exitCode sql.NullInt64
		var stdout, stderr sql.NullString

		if err := rows.Scan(&run.ID, &run.TaskID, &run.Connector, &run.Command, &argsJSON, &exitCode, &stdout, &stderr, &run.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		if argsJSON != "" {
			json.Unmarshal([]byte(argsJSON), &run.Args)
		}
		if exitCode.Valid {
			run.ExitCode = int(exitCode.Int64)
		}
		if stdout.Valid {
			run.Stdout = stdout.String
		}
		if stderr.Valid {
			run.Stderr = stderr.String
		}
		if endedAt.Valid {
			run.EndedAt = endedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Type Default Operations ---

// SaveTypeDefaults remembers params as the starting point of the next form
// of type t.
func (s *Store) SaveTypeDefaults(ctx context.Context, t tasks.Type, params map[string]any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO type_defaults (type, parameters, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(type) DO UPDATE SET parameters = excluded.parameters, updated_at = excluded.updated_at`,
		string(t), string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save defaults: %w", err)
	}
	return nil
}

// TypeDefaults returns the remembered parameters of type t, or nil.
func (s *Store) TypeDefaults(ctx context.Context, t tasks.Type) (map[string]any, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT parameters FROM type_defaults WHERE type = ?`, string(t)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query defaults: %w", err)
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(data), &params); err != nil {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	return params, nil
}

// ResetTypeDefaults forgets every remembered parameter set.
func (s *Store) ResetTypeDefaults(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM type_defaults`)
	if err != nil {
		return 0, fmt.Errorf("reset defaults: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(ctx context.Context, action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error) {
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		TaskID:     taskID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pdr (id, action, inputs_hash, outcome, task_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.TaskID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns the most recent records, newest first.
func (s *Store) ListPDR(ctx context.Context, limit int) ([]models.PDREntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, inputs_hash, outcome, task_id, details, timestamp FROM pdr ORDER BY timestamp DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var out []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var taskID, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &taskID, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.TaskID = taskID.String
		e.Details = details.String
		out = append(out, e)
	}
	return out, rows.Err()
}
