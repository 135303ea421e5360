/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-rpcgate/config"
)

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := &Config{}
		err := config.NewDefaultLoader("RPCGATETEST").LoadFromReader(bytes.NewBufferString("{}"), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, NewDefaultConfig(), cfg)
	})

	t.Run("custom values", func(t *testing.T) {
		yamlData := `
server:
  address: "127.0.0.1:9090"
  timeouts:
    write: 2m
    shutdown: 30s
  limits:
    maxRequests: 100
  log:
    requestStart: true
`
		cfg := &Config{}
		err := config.NewDefaultLoader("RPCGATETEST").LoadFromReader(bytes.NewBufferString(yamlData), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, "127.0.0.1:9090", cfg.Address)
		require.Equal(t, 2*time.Minute, cfg.Timeouts.Write)
		require.Equal(t, 30*time.Second, cfg.Timeouts.Shutdown)
		require.Equal(t, 100, cfg.Limits.MaxRequests)
		require.True(t, cfg.Log.RequestStart)
	})

	t.Run("negative limit", func(t *testing.T) {
		cfg := &Config{}
		err := config.NewDefaultLoader("RPCGATETEST").LoadFromReader(
			bytes.NewBufferString("server:\n  limits:\n    maxRequests: -1\n"), config.DataTypeYAML, cfg)
		require.EqualError(t, err, "server.limits.maxRequests: should be >= 0")
	})
}
