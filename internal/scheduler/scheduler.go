package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fentz26/mxchip/internal/audit"
	"github.com/fentz26/mxchip/internal/connectors"
	"github.com/fentz26/mxchip/internal/models"
	"github.com/fentz26/mxchip/internal/store"
)

// Scheduler manages task dispatching and worker pools.
type Scheduler struct {
	store     *store.Store
	pdr       *audit.PDRWriter
	connector connectors.Connector
	config    *Config
	log       *zap.Logger

	// Worker pool state
	mu              sync.Mutex
	activeWorkers   int
	connectorCounts map[string]int

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler.
func New(s *store.Store, pdr *audit.PDRWriter, conn connectors.Connector, cfg *Config, log *zap.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		store:           s,
		pdr:             pdr,
		connector:       conn,
		config:          cfg,
		log:             log.Named("scheduler"),
		connectorCounts: make(map[string]int),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start requeues tasks abandoned by a previous run and begins the
// scheduler loop.
func (sch *Scheduler) Start() {
	if n, err := sch.store.RequeueExpired(sch.ctx); err != nil {
		sch.log.Error("requeue expired tasks", zap.Error(err))
	} else if n > 0 {
		sch.log.Info("requeued interrupted tasks", zap.Int64("count", n))
	}

	sch.wg.Add(1)
	go sch.schedulerLoop()
	sch.log.Info("scheduler started", zap.String("connector", sch.connector.Name()))
}

// Stop gracefully stops the scheduler. Interrupted tasks go back to the queue.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	sch.log.Info("scheduler stopped")
}

// schedulerLoop polls for pending tasks and dispatches them to workers.
func (sch *Scheduler) schedulerLoop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			sch.pollAndDispatch()
		}
	}
}

// pollAndDispatch claims the head of the queue when there is capacity.
func (sch *Scheduler) pollAndDispatch() {
	connectorName := sch.connector.Name()

	sch.mu.Lock()
	if sch.activeWorkers >= sch.config.GlobalMax ||
		sch.connectorCounts[connectorName] >= sch.config.GetConnectorLimit(connectorName) {
		sch.mu.Unlock()
		return
	}
	sch.mu.Unlock()

	workerID := uuid.New().String()
	claim, err := sch.store.ClaimNext(sch.ctx, workerID, sch.config.leaseTTL())
	if err != nil {
		if sch.ctx.Err() == nil {
			sch.log.Error("claiming task", zap.Error(err))
		}
		return
	}
	if claim == nil {
		return
	}
	task := claim.Task

	sch.pdr.Record(sch.ctx, audit.ActionTaskDispatch, map[string]any{
		"task_id":   task.ID,
		"worker_id": workerID,
		"connector": connectorName,
	}, audit.OutcomeSuccess, task.ID, fmt.Sprintf("Dispatched to worker %s", workerID))

	sch.log.Info("dispatched task",
		zap.String("task_id", task.ID),
		zap.String("label", task.Label),
		zap.String("worker_id", workerID))

	sch.mu.Lock()
	sch.activeWorkers++
	sch.connectorCounts[connectorName]++
	sch.mu.Unlock()

	sch.wg.Add(1)
	go sch.runWorker(claim, workerID)
}

// runWorker hands one claimed task to the connector.
func (sch *Scheduler) runWorker(claim *store.ClaimResult, workerID string) {
	defer sch.wg.Done()
	defer func() {
		sch.mu.Lock()
		sch.activeWorkers--
		sch.connectorCounts[sch.connector.Name()]--
		sch.mu.Unlock()
	}()

	task, lease := claim.Task, claim.Lease
	log := sch.log.With(zap.String("task_id", task.ID), zap.String("worker_id", workerID))

	// Bookkeeping after an interrupt must still reach the database.
	bg := context.Background()
	defer func() {
		if err := sch.store.DeleteLease(bg, lease.ID); err != nil {
			log.Error("deleting lease", zap.Error(err))
		}
	}()

	if err := sch.store.UpdateTaskStatus(sch.ctx, task.ID, models.TaskStatusRunning, ""); err != nil {
		log.Error("marking task running", zap.Error(err))
		sch.store.ReleaseTask(bg, task.ID)
		return
	}

	run, err := sch.store.CreateRun(sch.ctx, task.ID, sch.connector.Name(), "collect", []string{task.Type, task.Shape})
	if err != nil {
		log.Error("creating run", zap.Error(err))
	}

	done := make(chan struct{})
	go sch.heartbeat(lease, done)
	result, err := sch.connector.Collect(sch.ctx, connectors.Job{
		TaskID:     task.ID,
		Type:       task.Type,
		Label:      task.Label,
		Shape:      task.Shape,
		Parameters: task.Parameters,
	})
	close(done)

	if sch.ctx.Err() != nil {
		log.Info("worker interrupted, releasing task")
		if err := sch.store.ReleaseTask(bg, task.ID); err != nil {
			log.Error("releasing task", zap.Error(err))
		}
		return
	}

	status, errMsg := models.TaskStatusCompleted, ""
	switch {
	case err != nil:
		status, errMsg = models.TaskStatusFailed, err.Error()
		if run != nil {
			sch.store.UpdateRun(bg, run.ID, -1, "", err.Error())
		}
	default:
		if run != nil {
			sch.store.UpdateRun(bg, run.ID, result.ExitCode, result.Stdout, result.Stderr)
		}
		if !result.OK() {
			status, errMsg = models.TaskStatusFailed, fmt.Sprintf("collector exited with code %d", result.ExitCode)
		}
	}

	if err := sch.store.UpdateTaskStatus(bg, task.ID, status, errMsg); err != nil {
		log.Error("recording task status", zap.Error(err))
	}

	outcome := audit.OutcomeSuccess
	if status == models.TaskStatusFailed {
		outcome = audit.OutcomeFailure
	}
	sch.pdr.Record(bg, audit.ActionTaskComplete, map[string]any{
		"task_id": task.ID,
		"status":  status,
	}, outcome, task.ID, errMsg)

	log.Info("task finished", zap.String("status", string(status)), zap.String("error", errMsg))
}

// heartbeat renews the lease until done is closed.
func (sch *Scheduler) heartbeat(lease *models.Lease, done <-chan struct{}) {
	ttl := sch.config.leaseTTL()
	ticker := time.NewTicker(time.Duration(ttl) * time.Second / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sch.store.RenewLease(context.Background(), lease.ID, ttl); err != nil {
				sch.log.Warn("renewing lease", zap.String("lease_id", lease.ID), zap.Error(err))
			}
		}
	}
}

// Stats is a point-in-time view of the worker pool.
type Stats struct {
	ActiveWorkers   int            `json:"active_workers"`
	GlobalMax       int            `json:"global_max"`
	ConnectorCounts map[string]int `json:"connector_counts"`
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() Stats {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	connectorCounts := make(map[string]int)
	for k, v := range sch.connectorCounts {
		connectorCounts[k] = v
	}

	return Stats{
		ActiveWorkers:   sch.activeWorkers,
		GlobalMax:       sch.config.GlobalMax,
		ConnectorCounts: connectorCounts,
	}
}
