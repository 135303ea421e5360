/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-rpcgate/config"
)

const (
	cfgKeyPath           = "path"
	cfgKeyMaxRequestSize = "maxRequestSize"
	cfgKeyAdmissionRate  = "admissionRate"
	cfgKeyAdmissionBurst = "admissionBurst"
	cfgKeyInitTimeout    = "initTimeout"
)

// Default values.
const (
	DefaultPath           = "/rest"
	DefaultMaxRequestSize = "32M"
	DefaultInitTimeout    = 30 * time.Second
)

// Config is the "gateway" section.
type Config struct {
	Path string

	// MaxRequestSize limits the request body, uploaded files included. Zero means no limit.
	MaxRequestSize config.BytesCount

	// AdmissionRate limits admitted calls per second. Zero disables the limit.
	AdmissionRate  float64
	AdmissionBurst int

	InitTimeout time.Duration
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewDefaultConfig returns the configuration used when the section is absent.
func NewDefaultConfig() *Config {
	return &Config{Path: DefaultPath, MaxRequestSize: 32 << 20, InitTimeout: DefaultInitTimeout}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return "gateway"
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyPath, DefaultPath)
	dp.SetDefault(cfgKeyMaxRequestSize, DefaultMaxRequestSize)
	dp.SetDefault(cfgKeyInitTimeout, DefaultInitTimeout.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Path, err = dp.GetString(cfgKeyPath); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Path, "/") {
		return dp.WrapKeyErr(cfgKeyPath, fmt.Errorf("should start with \"/\""))
	}
	if c.MaxRequestSize, err = dp.GetBytesCount(cfgKeyMaxRequestSize); err != nil {
		return err
	}
	if c.AdmissionRate, err = dp.GetFloat64(cfgKeyAdmissionRate); err != nil {
		return err
	}
	if c.AdmissionRate < 0 {
		return dp.WrapKeyErr(cfgKeyAdmissionRate, fmt.Errorf("should be >= 0"))
	}
	if c.AdmissionBurst, err = dp.GetInt(cfgKeyAdmissionBurst); err != nil {
		return err
	}
	if c.AdmissionRate > 0 && c.AdmissionBurst <= 0 {
		c.AdmissionBurst = int(c.AdmissionRate) + 1
	}
	if c.InitTimeout, err = dp.GetDuration(cfgKeyInitTimeout); err != nil {
		return err
	}
	return nil
}
