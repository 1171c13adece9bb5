// Package dryrun provides a collector that records jobs without acquiring.
package dryrun

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/mxchip/internal/connectors"
)

// DryRun implements Connector by logging what would be collected.
type DryRun struct {
	delay time.Duration

	mu   sync.Mutex
	jobs []connectors.Job
}

// New creates a dry-run collector that takes delay per job.
func New(delay time.Duration) *DryRun {
	return &DryRun{delay: delay}
}

// Name returns the connector identifier.
func (d *DryRun) Name() string {
	return "dryrun"
}

// Collect records job and reports success.
func (d *DryRun) Collect(ctx context.Context, job connectors.Job) (*connectors.ExecResult, error) {
	if d.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.delay):
		}
	}

	d.mu.Lock()
	d.jobs = append(d.jobs, job)
	d.mu.Unlock()

	return &connectors.ExecResult{
		Command: "dryrun",
		Args:    []string{job.Type, job.TaskID},
		Stdout:  fmt.Sprintf("would collect %s (%s) at %s\n", job.Label, job.Type, job.Shape),
	}, nil
}

// Jobs returns the jobs collected so far.
func (d *DryRun) Jobs() []connectors.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]connectors.Job, len(d.jobs))
	copy(out, d.jobs)
	return out
}
