/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"fmt"
	"time"

	"github.com/acronis/go-rpcgate/config"
)

const (
	cfgKeyWorkers       = "workers"
	cfgKeyQueueCapacity = "queueCapacity"
	cfgKeyMaxRestarts   = "maxRestarts"
	cfgKeyRestartDelay  = "restartDelay"
)

// Default values.
const (
	DefaultWorkers      = 16
	DefaultMaxRestarts  = 5
	DefaultRestartDelay = 100 * time.Millisecond
)

// Config is the "dispatch" section.
type Config struct {
	Workers       int
	QueueCapacity int
	MaxRestarts   int
	RestartDelay  time.Duration
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewDefaultConfig returns the configuration used when the section is absent.
func NewDefaultConfig() *Config {
	return &Config{Workers: DefaultWorkers, MaxRestarts: DefaultMaxRestarts, RestartDelay: DefaultRestartDelay}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return "dispatch"
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyWorkers, DefaultWorkers)
	dp.SetDefault(cfgKeyMaxRestarts, DefaultMaxRestarts)
	dp.SetDefault(cfgKeyRestartDelay, DefaultRestartDelay.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Workers, err = dp.GetInt(cfgKeyWorkers); err != nil {
		return err
	}
	if c.Workers <= 0 {
		return dp.WrapKeyErr(cfgKeyWorkers, fmt.Errorf("should be > 0"))
	}
	if c.QueueCapacity, err = dp.GetInt(cfgKeyQueueCapacity); err != nil {
		return err
	}
	if c.QueueCapacity < 0 {
		return dp.WrapKeyErr(cfgKeyQueueCapacity, fmt.Errorf("should be >= 0 (0 means unbounded)"))
	}
	if c.MaxRestarts, err = dp.GetInt(cfgKeyMaxRestarts); err != nil {
		return err
	}
	if c.MaxRestarts < 0 {
		return dp.WrapKeyErr(cfgKeyMaxRestarts, fmt.Errorf("should be >= 0"))
	}
	if c.RestartDelay, err = dp.GetDuration(cfgKeyRestartDelay); err != nil {
		return err
	}
	return nil
}
