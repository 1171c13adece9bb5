package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fentz26/mxchip/internal/chip"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:7466" {
		t.Errorf("Expected default listen, got %s", cfg.Server.Listen)
	}
	if cfg.Chip.Rows != 10 {
		t.Errorf("Expected default 10 rows, got %d", cfg.Chip.Rows)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  listen: 0.0.0.0:9000
chip:
  rows: 4
  cols: 6
  block_width: 10
  spacing: 2
  offset: 1
  lock: x
form:
  root_path: /data/visitor
attributes:
  max_age: 30s
scheduler:
  global_max: 2
collector:
  connector: localexec
  localexec:
    command: [/opt/bin/collect, --beamline, id23]
    allowed: [collect]
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:9000" {
		t.Errorf("Expected listen override, got %s", cfg.Server.Listen)
	}
	if cfg.Chip.Rows != 4 || cfg.Chip.Cols != 6 || cfg.Chip.BlockWidth != 10 {
		t.Errorf("Unexpected chip geometry %+v", cfg.Chip.Geometry)
	}
	if lock, _ := chip.ParseLock(cfg.Chip.Lock); lock != chip.LockX {
		t.Errorf("Expected x lock, got %v", lock)
	}
	if cfg.Form.RootPath != "/data/visitor" {
		t.Errorf("Expected root path override, got %s", cfg.Form.RootPath)
	}
	// Untouched keys keep their defaults
	if len(cfg.Form.Priority) == 0 {
		t.Error("Expected default priority to survive")
	}
	if cfg.Attributes.MaxAge != 30*time.Second {
		t.Errorf("Expected 30s max age, got %s", cfg.Attributes.MaxAge)
	}
	if cfg.Scheduler.GlobalMax != 2 {
		t.Errorf("Expected global max 2, got %d", cfg.Scheduler.GlobalMax)
	}
	if cfg.Collector.LocalExec.Command[0] != "/opt/bin/collect" {
		t.Errorf("Unexpected collector command %v", cfg.Collector.LocalExec.Command)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad collector", "collector:\n  connector: ssh\n", "invalid collector"},
		{"bad lock", "chip:\n  lock: diagonal\n", "invalid lock"},
		{"bad geometry", "chip:\n  rows: 0\n", "invalid chip geometry"},
		{"bad log", "log:\n  level: loud\n", "invalid log level"},
		{"bad warning", "warnings:\n  - field: exp_time\n", "warnings[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Server.Listen = "127.0.0.1:8000"
	cfg.Collector.DryRunDelay = 5 * time.Second

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Server.Listen != "127.0.0.1:8000" {
		t.Errorf("Expected saved listen, got %s", loaded.Server.Listen)
	}
	if loaded.Collector.DryRunDelay != 5*time.Second {
		t.Errorf("Expected 5s delay, got %s", loaded.Collector.DryRunDelay)
	}
	if len(loaded.Warnings) != len(cfg.Warnings) {
		t.Errorf("Expected %d warnings, got %d", len(cfg.Warnings), len(loaded.Warnings))
	}
}

func TestSave_Nil(t *testing.T) {
	if err := Save(filepath.Join(t.TempDir(), "c.yaml"), nil); err == nil {
		t.Error("Expected error for nil config")
	}
}
