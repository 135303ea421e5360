/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testPoolConfig struct {
	Workers   int
	Capacity  BytesCount
	Heartbeat time.Duration
}

func (c *testPoolConfig) KeyPrefix() string { return "pool" }

func (c *testPoolConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("workers", 16)
	dp.SetDefault("heartbeat", "5s")
}

func (c *testPoolConfig) Set(dp DataProvider) error {
	var err error
	if c.Workers, err = dp.GetInt("workers"); err != nil {
		return err
	}
	if c.Capacity, err = dp.GetBytesCount("capacity"); err != nil {
		return err
	}
	c.Heartbeat, err = dp.GetDuration("heartbeat")
	return err
}

type testServerConfig struct {
	Mode string
}

func (c *testServerConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("mode", "plain")
}

func (c *testServerConfig) Set(dp DataProvider) error {
	var err error
	c.Mode, err = dp.GetStringFromSet("mode", []string{"plain", "tls"}, true)
	return err
}

type testAppConfig struct {
	Pool   *testPoolConfig
	Server *testServerConfig
	Absent *testPoolConfig
}

func TestLoader_LoadFromReader(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		poolCfg := &testPoolConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, poolCfg)
		require.NoError(t, err)
		require.Equal(t, 16, poolCfg.Workers)
		require.Equal(t, 5*time.Second, poolCfg.Heartbeat)
		require.Zero(t, poolCfg.Capacity)
	})

	t.Run("values under key prefix", func(t *testing.T) {
		poolCfg := &testPoolConfig{}
		srvCfg := &testServerConfig{}
		data := `{"pool":{"workers":4,"capacity":"1Ki","heartbeat":"250ms"},"mode":"TLS"}`
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(data), DataTypeJSON, poolCfg, srvCfg)
		require.NoError(t, err)
		require.Equal(t, 4, poolCfg.Workers)
		require.Equal(t, BytesCount(1024), poolCfg.Capacity)
		require.Equal(t, 250*time.Millisecond, poolCfg.Heartbeat)
		require.Equal(t, "TLS", srvCfg.Mode)
	})

	t.Run("value out of set", func(t *testing.T) {
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"mode":"quic"}`), DataTypeJSON, &testServerConfig{})
		require.EqualError(t, err, `mode: unknown value "quic", should be one of [plain tls]`)
	})

	t.Run("negative bytes count", func(t *testing.T) {
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"pool":{"capacity":-1}}`), DataTypeJSON, &testPoolConfig{})
		require.EqualError(t, err, "pool.capacity: negative value is not allowed: -1")
	})
}

func TestLoader_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  workers: 2\n"), 0o600))

	poolCfg := &testPoolConfig{}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromFile(path, DataTypeYAML, poolCfg))
	require.Equal(t, 2, poolCfg.Workers)
}

func TestNewDefaultLoader_EnvVars(t *testing.T) {
	t.Setenv("RPCGATETEST_POOL_WORKERS", "7")

	poolCfg := &testPoolConfig{}
	err := NewDefaultLoader("rpcgatetest").LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, poolCfg)
	require.NoError(t, err)
	require.Equal(t, 7, poolCfg.Workers)
}

func TestCallSetForFields(t *testing.T) {
	appCfg := &testAppConfig{Pool: &testPoolConfig{}, Server: &testServerConfig{}}
	dp := NewViperAdapter()
	require.NoError(t, dp.SetFromReader(bytes.NewBufferString(`{"pool":{"workers":3}}`), DataTypeJSON))

	CallSetProviderDefaultsForFields(appCfg, dp)
	require.NoError(t, CallSetForFields(appCfg, dp))
	require.Equal(t, 3, appCfg.Pool.Workers)
	require.Equal(t, "plain", appCfg.Server.Mode)
	require.Nil(t, appCfg.Absent)
}
