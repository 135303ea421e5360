/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"github.com/acronis/go-rpcgate/config"
)

const (
	cfgKeyEnabled = "enabled"
	cfgKeyAddress = "address"

	defaultAddress = "127.0.0.1:8081"
)

// Config is the "profiler" section. The profiler is off unless enabled explicitly.
type Config struct {
	Enabled bool
	Address string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return "profiler"
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, false)
	dp.SetDefault(cfgKeyAddress, defaultAddress)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	c.Address, err = dp.GetString(cfgKeyAddress)
	return err
}
