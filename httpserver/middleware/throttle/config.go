/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/acronis/go-rpcgate/config"
	"github.com/acronis/go-rpcgate/internal/throttleconfig"
)

const (
	cfgKeyRateLimitZones = "rateLimitZones"
	cfgKeyRateLimits     = "rateLimits"
)

// Config is the "throttle" section.
//
//	throttle:
//	  rateLimitZones:
//	    total:
//	      rateLimit: 1000/s
//	      burstLimit: 2000
//	    per_client:
//	      alg: sliding_window
//	      rateLimit: 20/s
//	      key:
//	        type: remote_addr
//	      maxKeys: 10000
//	      excludedKeys: ["127.0.0.1"]
//	  rateLimits:
//	    - zone: total
//	    - zone: per_client
type Config struct {
	// RateLimitZones maps a zone name to its configuration.
	RateLimitZones map[string]RateLimitZoneConfig `mapstructure:"rateLimitZones"`

	// RateLimits lists the zones requests go through, in order.
	RateLimits []RateLimitRef `mapstructure:"rateLimits"`
}

// RateLimitRef refers to a zone from RateLimitZones.
type RateLimitRef struct {
	Zone string `mapstructure:"zone"`
}

// RateLimitZoneConfig describes one rate limiting zone.
type RateLimitZoneConfig struct {
	Alg        string                        `mapstructure:"alg"`
	RateLimit  throttleconfig.RateLimitValue `mapstructure:"rateLimit"`
	BurstLimit int                           `mapstructure:"burstLimit"`
	Key        throttleconfig.ZoneKeyConfig  `mapstructure:"key"`

	// MaxKeys bounds the number of keys the zone tracks at once.
	MaxKeys int `mapstructure:"maxKeys"`

	// ExcludedKeys and IncludedKeys are glob patterns. Requests whose key matches an excluded pattern
	// (or does not match any included one) are not throttled by the zone.
	ExcludedKeys []string `mapstructure:"excludedKeys"`
	IncludedKeys []string `mapstructure:"includedKeys"`

	ResponseRetryAfter throttleconfig.RetryAfterValue `mapstructure:"responseRetryAfter"`

	// DryRun only logs and counts requests that would be rejected.
	DryRun bool `mapstructure:"dryRun"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewDefaultConfig returns a configuration without zones, which throttles nothing.
func NewDefaultConfig() *Config {
	return &Config{}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return "throttle"
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(_ config.DataProvider) {}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	decodeHook := func(dc *mapstructure.DecoderConfig) { dc.DecodeHook = throttleconfig.MapstructureDecodeHook() }
	if err := dp.UnmarshalKey(cfgKeyRateLimitZones, &c.RateLimitZones, decodeHook); err != nil {
		return err
	}
	if err := dp.UnmarshalKey(cfgKeyRateLimits, &c.RateLimits, decodeHook); err != nil {
		return err
	}
	// Map keys (zone names) come lowercased from the provider.
	for i := range c.RateLimits {
		c.RateLimits[i].Zone = strings.ToLower(c.RateLimits[i].Zone)
	}
	return c.Validate()
}

// Validate checks zones and that every reference points to a defined zone.
func (c *Config) Validate() error {
	for name, zone := range c.RateLimitZones {
		if err := zone.Validate(); err != nil {
			return fmt.Errorf("validate rate limit zone %q: %w", name, err)
		}
	}
	for _, ref := range c.RateLimits {
		if _, ok := c.RateLimitZones[ref.Zone]; !ok {
			return fmt.Errorf("rate limit zone %q is not defined", ref.Zone)
		}
	}
	return nil
}

// Validate checks the zone parameters.
func (c *RateLimitZoneConfig) Validate() error {
	switch c.Alg {
	case "", throttleconfig.RateLimitAlgLeakyBucket, throttleconfig.RateLimitAlgSlidingWindow:
	default:
		return fmt.Errorf("unknown rate limit alg %q", c.Alg)
	}
	if c.RateLimit.Count <= 0 {
		return fmt.Errorf("rate limit should be positive")
	}
	if c.BurstLimit < 0 {
		return fmt.Errorf("burst limit should be >= 0, got %d", c.BurstLimit)
	}
	if c.MaxKeys < 0 {
		return fmt.Errorf("max keys should be >= 0, got %d", c.MaxKeys)
	}
	if len(c.ExcludedKeys) != 0 && len(c.IncludedKeys) != 0 {
		return fmt.Errorf("excluded and included keys cannot be used together")
	}
	return c.Key.Validate()
}
