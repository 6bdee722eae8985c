package jobs

import (
	"errors"
	"fmt"

	"github.com/hamba/pkg/log"
	"github.com/hamba/pkg/stats"
	"github.com/nrwiersma/worker/jobs/params"
)

// Config holds the configuration for a Manager.
type Config struct {
	// Concurrency is the core size of the shared pool.
	Concurrency int

	// AllocatedGroups are the groups that get their own
	// serial executor instead of using the shared pool.
	AllocatedGroups []int

	// Logger is the logger used by the manager and scheduler.
	Logger log.Logger

	// Statter is the statter used by the scheduler.
	Statter stats.Statter
}

// NewConfig returns a config with sane defaults.
func NewConfig() *Config {
	return &Config{
		Concurrency: 4,
		Logger:      log.Null,
		Statter:     stats.Null,
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return errors.New("jobs: concurrency must be at least 1")
	}

	for _, g := range c.AllocatedGroups {
		if g == params.GroupUnique || g == params.GroupDedicated {
			return fmt.Errorf("jobs: group %d cannot be allocated", g)
		}
	}
	return nil
}

func (c *Config) logger() log.Logger {
	if c.Logger == nil {
		return log.Null
	}
	return c.Logger
}

func (c *Config) statter() stats.Statter {
	if c.Statter == nil {
		return stats.Null
	}
	return c.Statter
}
