/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-rpcgate/gateway"
)

func TestLoadAppConfig(t *testing.T) {
	cfg, err := loadAppConfig(defaultConfigPath)
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Address)
	require.Equal(t, 16, cfg.Dispatch.Workers)
	require.Equal(t, 1024, cfg.Dispatch.QueueCapacity)
	require.Equal(t, gateway.DefaultPath, cfg.Gateway.Path)
	require.EqualValues(t, 32<<20, cfg.Gateway.MaxRequestSize)
	require.Equal(t, 30*time.Second, cfg.Gateway.InitTimeout)
	require.Empty(t, cfg.Throttle.RateLimits)
	require.False(t, cfg.Database.Enabled())
	require.False(t, cfg.Bolt.Enabled())
	require.Equal(t, []string{"store"}, cfg.Bolt.Buckets)
	require.Equal(t, time.Minute, cfg.Session.SweepInterval)
	require.False(t, cfg.Profiler.Enabled)
}
