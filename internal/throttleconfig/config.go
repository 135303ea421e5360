/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttleconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Rate-limiting algorithms.
const (
	RateLimitAlgLeakyBucket   = "leaky_bucket"
	RateLimitAlgSlidingWindow = "sliding_window"
)

// ZoneKeyType determines what a zone counts requests by.
type ZoneKeyType string

// Zone key types.
const (
	ZoneKeyTypeNoKey      ZoneKeyType = ""
	ZoneKeyTypeRemoteAddr ZoneKeyType = "remote_addr"
	ZoneKeyTypeHeader     ZoneKeyType = "header"
)

// ZoneKeyConfig is the "key" of a zone.
type ZoneKeyConfig struct {
	Type ZoneKeyType `mapstructure:"type"`

	// HeaderName is used when Type is "header".
	HeaderName string `mapstructure:"headerName"`

	// NoBypassEmpty makes requests with an empty header share one key instead of passing unthrottled.
	NoBypassEmpty bool `mapstructure:"noBypassEmpty"`
}

// Validate checks the key type.
func (c *ZoneKeyConfig) Validate() error {
	switch c.Type {
	case ZoneKeyTypeNoKey, ZoneKeyTypeRemoteAddr:
		return nil
	case ZoneKeyTypeHeader:
		if c.HeaderName == "" {
			return fmt.Errorf("header name should be specified for %q key type", ZoneKeyTypeHeader)
		}
		return nil
	}
	return fmt.Errorf("unknown key type %q", c.Type)
}

// RateLimitValue is a number of requests per second, minute or hour.
type RateLimitValue struct {
	Count    int
	Duration time.Duration
}

// String returns the value as it is written in the configuration, e.g. "10/s".
func (rl RateLimitValue) String() string {
	if rl.Count == 0 && rl.Duration == 0 {
		return ""
	}
	unit := rl.Duration.String()
	switch rl.Duration {
	case time.Second:
		unit = "s"
	case time.Minute:
		unit = "m"
	case time.Hour:
		unit = "h"
	}
	return fmt.Sprintf("%d/%s", rl.Count, unit)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (rl *RateLimitValue) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*rl = RateLimitValue{}
		return nil
	}
	formatErr := fmt.Errorf("incorrect format for rate %q, should be N/(s|m|h), for example 10/s, 100/m, 1000/h", s)
	countStr, unit, found := strings.Cut(s, "/")
	if !found {
		return formatErr
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		return formatErr
	}
	var dur time.Duration
	switch strings.ToLower(unit) {
	case "s":
		dur = time.Second
	case "m":
		dur = time.Minute
	case "h":
		dur = time.Hour
	default:
		return formatErr
	}
	*rl = RateLimitValue{Count: count, Duration: dur}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (rl RateLimitValue) MarshalText() ([]byte, error) {
	return []byte(rl.String()), nil
}

const retryAfterAuto = "auto"

// RetryAfterValue is the Retry-After of rejected requests: a fixed duration or "auto",
// which means the time the limiter estimates until the next request would pass.
type RetryAfterValue struct {
	IsAuto   bool
	Duration time.Duration
}

func (ra RetryAfterValue) String() string {
	if ra.IsAuto {
		return retryAfterAuto
	}
	return ra.Duration.String()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ra *RetryAfterValue) UnmarshalText(text []byte) error {
	switch s := strings.TrimSpace(string(text)); s {
	case "":
		*ra = RetryAfterValue{}
	case retryAfterAuto:
		*ra = RetryAfterValue{IsAuto: true}
	default:
		dur, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*ra = RetryAfterValue{Duration: dur}
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (ra RetryAfterValue) MarshalText() ([]byte, error) {
	return []byte(ra.String()), nil
}

// Get returns the Retry-After for a request the limiter says may be retried after estimated.
func (ra RetryAfterValue) Get(estimated time.Duration) time.Duration {
	if ra.IsAuto {
		return estimated
	}
	return ra.Duration
}

// MapstructureDecodeHook decodes the text values of this package and durations.
func MapstructureDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}
