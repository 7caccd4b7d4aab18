package timeout

import (
	"fmt"
	"time"

	"github.com/hannesrauhe/bttimeout/utils"
)

// Config is the "timeout" section of the config file
type Config struct {
	// time without connected devices after which the adapter is switched off
	Timeout time.Duration `yaml:"timeout"`
	// how long before the deadline a warning is sent, warnings not shorter than Timeout are dropped
	Warnings []time.Duration `yaml:"warnings"`
}

// DefaultConfig gives the first 5 minute warning a second to be shown
var DefaultConfig = Config{
	Timeout:  5*time.Minute + time.Second,
	Warnings: []time.Duration{5 * time.Minute, time.Minute, 30 * time.Second, 10 * time.Second},
}

// Validate rejects non-positive durations
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout.timeout must be positive, got %v", utils.ErrInvalidConfig, c.Timeout)
	}
	for _, w := range c.Warnings {
		if w <= 0 {
			return fmt.Errorf("%w: timeout.warnings must be positive, got %v", utils.ErrInvalidConfig, w)
		}
	}
	return nil
}
