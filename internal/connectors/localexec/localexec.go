// Package localexec hands jobs to a local collection hook with an allowlist.
package localexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fentz26/mxchip/internal/connectors"
)

// ErrNotAllowed is returned for hook commands outside the allowlist.
var ErrNotAllowed = errors.New("command not allowed")

// Config selects the hook and the commands it may be.
type Config struct {
	// Command is the hook and its leading arguments.
	Command []string `yaml:"command"`
	// Allowed lists hook executables by base name.
	Allowed []string `yaml:"allowed"`
	// WorkDir is the hook's working directory.
	WorkDir string `yaml:"work_dir"`
}

// LocalExec implements Connector by running a local hook. The job's
// parameters are written to the hook's stdin as JSON.
type LocalExec struct {
	cfg     Config
	allowed map[string]bool
}

// New creates a new LocalExec connector.
func New(cfg Config) *LocalExec {
	allowed := make(map[string]bool, len(cfg.Allowed))
	for _, a := range cfg.Allowed {
		allowed[a] = true
	}
	return &LocalExec{cfg: cfg, allowed: allowed}
}

// Name returns the connector identifier.
func (l *LocalExec) Name() string {
	return "localexec"
}

// IsAllowed checks whether cmd is in the allowlist.
func (l *LocalExec) IsAllowed(cmd string) bool {
	return cmd != "" && l.allowed[filepath.Base(cmd)]
}

// Collect runs the hook for one job.
func (l *LocalExec) Collect(ctx context.Context, job connectors.Job) (*connectors.ExecResult, error) {
	if len(l.cfg.Command) == 0 {
		return nil, fmt.Errorf("%w: no hook configured", ErrNotAllowed)
	}
	cmd := l.cfg.Command[0]
	if !l.IsAllowed(cmd) {
		return nil, fmt.Errorf("%w: %s", ErrNotAllowed, cmd)
	}
	args := append(append([]string{}, l.cfg.Command[1:]...), "--type", job.Type, "--task", job.TaskID)

	input, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}

	execCmd := exec.CommandContext(ctx, cmd, args...)
	if l.cfg.WorkDir != "" {
		execCmd.Dir = l.cfg.WorkDir
	}
	execCmd.Env = append(os.Environ(),
		"MXCHIP_TASK_ID="+job.TaskID,
		"MXCHIP_TASK_TYPE="+job.Type,
		"MXCHIP_SHAPE="+job.Shape,
	)
	execCmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err = execCmd.Run()

	exitCode := 0
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			return nil, fmt.Errorf("exec error: %w", err)
		}
	}

	return &connectors.ExecResult{
		Command:  cmd,
		Args:     args,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
