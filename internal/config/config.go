// Package config loads the daemon configuration from ~/.mxchip/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fentz26/mxchip/internal/chip"
	"github.com/fentz26/mxchip/internal/connectors/localexec"
	"github.com/fentz26/mxchip/internal/logging"
	"github.com/fentz26/mxchip/internal/schema"
	"github.com/fentz26/mxchip/internal/scheduler"
	"github.com/fentz26/mxchip/internal/validation"
)

// Collector names accepted in collector.connector.
const (
	CollectorLocalExec = "localexec"
	CollectorDryRun    = "dryrun"
)

// Config is the full daemon configuration.
type Config struct {
	Server     ServerConfig             `yaml:"server"`
	Database   DatabaseConfig           `yaml:"database"`
	Log        logging.Config           `yaml:"log"`
	Chip       ChipConfig               `yaml:"chip"`
	Catalog    CatalogConfig            `yaml:"catalog"`
	Form       FormConfig               `yaml:"form"`
	Warnings   []validation.WarningRule `yaml:"warnings"`
	Attributes AttributesConfig         `yaml:"attributes"`
	Scheduler  scheduler.Config         `yaml:"scheduler"`
	Collector  CollectorConfig          `yaml:"collector"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// DatabaseConfig locates the SQLite queue.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ChipConfig is the default chip layout and block lock for new sessions.
type ChipConfig struct {
	chip.Geometry `yaml:",inline"`
	// Lock is one of both, x, y, none.
	Lock string `yaml:"lock"`
}

// CatalogConfig points at a task template override file. Empty uses the
// built-in catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// FormConfig tunes form presentation and parameter handling.
type FormConfig struct {
	Priority   []string `yaml:"priority"`
	RootPath   string   `yaml:"root_path"`
	TextFields []string `yaml:"text_fields"`
}

// AttributesConfig controls how long a beamline reading stays usable.
type AttributesConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
}

// CollectorConfig selects what executes dispatched tasks.
type CollectorConfig struct {
	Connector   string           `yaml:"connector"`
	LocalExec   localexec.Config `yaml:"localexec"`
	DryRunDelay time.Duration    `yaml:"dryrun_delay"`
}

// DefaultConfig returns a configuration that runs without a config file.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server:   ServerConfig{Listen: "127.0.0.1:7466"},
		Database: DatabaseConfig{Path: filepath.Join(home, ".mxchip", "mxchip.db")},
		Log:      logging.DefaultConfig(),
		Chip:     ChipConfig{Geometry: chip.DefaultGeometry(), Lock: "both"},
		Form: FormConfig{
			Priority:   append([]string(nil), schema.DefaultPriority...),
			RootPath:   "/data",
			TextFields: append([]string(nil), validation.DefaultTextFields...),
		},
		Warnings:   validation.DefaultWarnings(),
		Attributes: AttributesConfig{MaxAge: 10 * time.Minute},
		Scheduler:  *scheduler.DefaultConfig(),
		Collector: CollectorConfig{
			Connector: CollectorDryRun,
			LocalExec: localexec.Config{
				Command: []string{"mxcollect"},
				Allowed: []string{"mxcollect"},
			},
			DryRunDelay: 2 * time.Second,
		},
	}
}

// DefaultPath returns ~/.mxchip/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".mxchip", "config.yaml")
}

// Load reads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file, creating parent directories
// if needed.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must be set")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must be set")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Chip.Geometry.Validate(); err != nil {
		return fmt.Errorf("chip: %w", err)
	}
	if _, err := chip.ParseLock(c.Chip.Lock); err != nil {
		return fmt.Errorf("chip: %w", err)
	}
	for i, w := range c.Warnings {
		if w.Field == "" || (w.Below == nil && w.Above == nil) {
			return fmt.Errorf("warnings[%d]: field and a below or above bound are required", i)
		}
	}
	if c.Attributes.MaxAge < 0 {
		return fmt.Errorf("attributes.max_age must not be negative")
	}
	if c.Scheduler.GlobalMax < 1 {
		return fmt.Errorf("scheduler.global_max must be at least 1")
	}

	switch c.Collector.Connector {
	case CollectorDryRun:
	case CollectorLocalExec:
		if len(c.Collector.LocalExec.Command) == 0 {
			return fmt.Errorf("collector.localexec.command must be set")
		}
	default:
		return fmt.Errorf("invalid collector %q, must be: %s or %s",
			c.Collector.Connector, CollectorLocalExec, CollectorDryRun)
	}
	return nil
}
