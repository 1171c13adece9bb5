// Package scheduler dispatches queued tasks to the collector with worker
// pool management.
package scheduler

import "time"

// Config defines the scheduler configuration.
type Config struct {
	// GlobalMax is the maximum number of concurrent workers across all connectors.
	GlobalMax int `yaml:"global_max"`
	// ByConnector defines per-connector concurrency limits.
	ByConnector map[string]int `yaml:"by_connector"`
	// PollInterval is how often the queue head is checked.
	PollInterval time.Duration `yaml:"poll_interval"`
	// LeaseTTL is the lease length in seconds; running workers renew it.
	LeaseTTL int `yaml:"lease_ttl"`
}

// DefaultConfig returns the default scheduler configuration. One beamline
// collects one task at a time.
func DefaultConfig() *Config {
	return &Config{
		GlobalMax: 1,
		ByConnector: map[string]int{
			"localexec": 1,
			"dryrun":    1,
		},
		PollInterval: time.Second,
		LeaseTTL:     60,
	}
}

// GetConnectorLimit returns the concurrency limit for a connector.
func (c *Config) GetConnectorLimit(connectorName string) int {
	if limit, ok := c.ByConnector[connectorName]; ok {
		return limit
	}
	return 1
}

func (c *Config) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return time.Second
	}
	return c.PollInterval
}

func (c *Config) leaseTTL() int {
	if c.LeaseTTL <= 0 {
		return 60
	}
	return c.LeaseTTL
}
