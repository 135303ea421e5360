/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"time"

	"github.com/acronis/go-rpcgate/config"
)

const (
	cfgKeyServerAddress                 = "address"
	cfgKeyServerUnixSocketPath          = "unixSocketPath"
	cfgKeyServerTimeoutsWrite           = "timeouts.write"
	cfgKeyServerTimeoutsRead            = "timeouts.read"
	cfgKeyServerTimeoutsReadHeader      = "timeouts.readHeader"
	cfgKeyServerTimeoutsIdle            = "timeouts.idle"
	cfgKeyServerTimeoutsShutdown        = "timeouts.shutdown"
	cfgKeyServerLimitsMaxRequests       = "limits.maxRequests"
	cfgKeyServerLogRequestStart         = "log.requestStart"
	cfgKeyServerLogSlowRequestThreshold = "log.slowRequestThreshold"
)

const (
	defaultServerAddress            = ":8080"
	defaultServerTimeoutsWrite      = time.Minute
	defaultServerTimeoutsRead       = time.Second * 15
	defaultServerTimeoutsReadHeader = time.Second * 10
	defaultServerTimeoutsIdle       = time.Minute
	defaultServerTimeoutsShutdown   = time.Second * 5
	defaultSlowRequestThreshold     = time.Second
)

// Config represents a set of configuration parameters for HTTPServer.
type Config struct {
	Address        string
	UnixSocketPath string
	Timeouts       TimeoutsConfig
	Limits         LimitsConfig
	Log            LogConfig
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// TimeoutsConfig represents a set of configuration parameters for HTTPServer relating to timeouts.
type TimeoutsConfig struct {
	Write      time.Duration
	Read       time.Duration
	ReadHeader time.Duration
	Idle       time.Duration
	Shutdown   time.Duration
}

// LimitsConfig represents a set of configuration parameters for HTTPServer relating to limits.
type LimitsConfig struct {
	// MaxRequests is the maximum number of requests served at the same time. Zero disables the limit.
	// Rejected requests get 503, so it is off by default: gateway calls are throttled by the admission queue.
	MaxRequests int
}

// LogConfig represents a set of configuration parameters for HTTPServer relating to logging.
type LogConfig struct {
	RequestStart         bool
	SlowRequestThreshold time.Duration
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Address: defaultServerAddress,
		Timeouts: TimeoutsConfig{
			Write:      defaultServerTimeoutsWrite,
			Read:       defaultServerTimeoutsRead,
			ReadHeader: defaultServerTimeoutsReadHeader,
			Idle:       defaultServerTimeoutsIdle,
			Shutdown:   defaultServerTimeoutsShutdown,
		},
		Log: LogConfig{SlowRequestThreshold: defaultSlowRequestThreshold},
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return "server"
}

// SetProviderDefaults sets default configuration values for HTTPServer in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyServerAddress, defaultServerAddress)
	dp.SetDefault(cfgKeyServerTimeoutsWrite, defaultServerTimeoutsWrite.String())
	dp.SetDefault(cfgKeyServerTimeoutsRead, defaultServerTimeoutsRead.String())
	dp.SetDefault(cfgKeyServerTimeoutsReadHeader, defaultServerTimeoutsReadHeader.String())
	dp.SetDefault(cfgKeyServerTimeoutsIdle, defaultServerTimeoutsIdle.String())
	dp.SetDefault(cfgKeyServerTimeoutsShutdown, defaultServerTimeoutsShutdown.String())
	dp.SetDefault(cfgKeyServerLimitsMaxRequests, 0)
	dp.SetDefault(cfgKeyServerLogRequestStart, false)
	dp.SetDefault(cfgKeyServerLogSlowRequestThreshold, defaultSlowRequestThreshold.String())
}

// Set sets HTTPServer configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyServerAddress); err != nil {
		return err
	}
	if c.UnixSocketPath, err = dp.GetString(cfgKeyServerUnixSocketPath); err != nil {
		return err
	}
	if err = c.Timeouts.set(dp); err != nil {
		return err
	}
	if c.Limits.MaxRequests, err = dp.GetInt(cfgKeyServerLimitsMaxRequests); err != nil {
		return err
	}
	if c.Limits.MaxRequests < 0 {
		return dp.WrapKeyErr(cfgKeyServerLimitsMaxRequests, fmt.Errorf("should be >= 0"))
	}
	if c.Log.RequestStart, err = dp.GetBool(cfgKeyServerLogRequestStart); err != nil {
		return err
	}
	if c.Log.SlowRequestThreshold, err = dp.GetDuration(cfgKeyServerLogSlowRequestThreshold); err != nil {
		return err
	}
	return nil
}

func (t *TimeoutsConfig) set(dp config.DataProvider) error {
	for _, item := range []struct {
		key string
		dst *time.Duration
	}{
		{cfgKeyServerTimeoutsWrite, &t.Write},
		{cfgKeyServerTimeoutsRead, &t.Read},
		{cfgKeyServerTimeoutsReadHeader, &t.ReadHeader},
		{cfgKeyServerTimeoutsIdle, &t.Idle},
		{cfgKeyServerTimeoutsShutdown, &t.Shutdown},
	} {
		d, err := dp.GetDuration(item.key)
		if err != nil {
			return err
		}
		if d < 0 {
			return dp.WrapKeyErr(item.key, fmt.Errorf("should not be negative"))
		}
		*item.dst = d
	}
	return nil
}
