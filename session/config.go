/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package session

import (
	"fmt"
	"time"

	"github.com/acronis/go-rpcgate/config"
)

const (
	cfgKeyTTL           = "ttl"
	cfgKeyMaxEntries    = "maxEntries"
	cfgKeySweepInterval = "sweepInterval"
	cfgKeyUsers         = "users"
)

const (
	defaultTTL           = 8 * time.Hour
	defaultMaxEntries    = 10000
	defaultSweepInterval = time.Minute
)

// Config is the "session" section.
type Config struct {
	TTL           time.Duration
	MaxEntries    int
	SweepInterval time.Duration

	// Users maps a username to the bcrypt hash of its password.
	Users map[string]string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewDefaultConfig returns the configuration used when the section is absent.
func NewDefaultConfig() *Config {
	return &Config{TTL: defaultTTL, MaxEntries: defaultMaxEntries, SweepInterval: defaultSweepInterval}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return "session"
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTTL, defaultTTL.String())
	dp.SetDefault(cfgKeyMaxEntries, defaultMaxEntries)
	dp.SetDefault(cfgKeySweepInterval, defaultSweepInterval.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.TTL, err = dp.GetDuration(cfgKeyTTL); err != nil {
		return err
	}
	if c.TTL <= 0 {
		return dp.WrapKeyErr(cfgKeyTTL, fmt.Errorf("should be > 0"))
	}
	if c.MaxEntries, err = dp.GetInt(cfgKeyMaxEntries); err != nil {
		return err
	}
	if c.MaxEntries <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxEntries, fmt.Errorf("should be > 0"))
	}
	if c.SweepInterval, err = dp.GetDuration(cfgKeySweepInterval); err != nil {
		return err
	}
	if c.SweepInterval <= 0 {
		return dp.WrapKeyErr(cfgKeySweepInterval, fmt.Errorf("should be > 0"))
	}
	c.Users, err = dp.GetStringMapString(cfgKeyUsers)
	return err
}
