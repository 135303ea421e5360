/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"github.com/acronis/go-rpcgate/config"
	"github.com/acronis/go-rpcgate/dispatch"
	"github.com/acronis/go-rpcgate/gateway"
	"github.com/acronis/go-rpcgate/httpserver"
	"github.com/acronis/go-rpcgate/httpserver/middleware/throttle"
	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/profserver"
	"github.com/acronis/go-rpcgate/session"
	"github.com/acronis/go-rpcgate/txn/boltdb"
	"github.com/acronis/go-rpcgate/txn/sqldb"
)

const (
	envVarsPrefix     = "RPCGATE"
	envVarConfigPath  = "RPCGATE_CONFIG"
	defaultConfigPath = "config.yml"
	metricsNamespace  = "rpcgate"
)

// AppConfig holds all sections of the gateway configuration.
type AppConfig struct {
	Server   *httpserver.Config
	Log      *log.Config
	Dispatch *dispatch.Config
	Gateway  *gateway.Config
	Throttle *throttle.Config
	Database *sqldb.Config
	Bolt     *boltdb.Config
	Session  *session.Config
	Profiler *profserver.Config
}

var _ config.Config = (*AppConfig)(nil)

// NewAppConfig creates an AppConfig with default values of every section.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Server:   httpserver.NewDefaultConfig(),
		Log:      log.NewDefaultConfig(),
		Dispatch: dispatch.NewDefaultConfig(),
		Gateway:  gateway.NewDefaultConfig(),
		Throttle: throttle.NewDefaultConfig(),
		Database: &sqldb.Config{},
		Bolt:     &boltdb.Config{},
		Session:  session.NewDefaultConfig(),
		Profiler: &profserver.Config{},
	}
}

// SetProviderDefaults implements config.Config.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set implements config.Config.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

func loadAppConfig(path string) (*AppConfig, error) {
	cfgLoader := config.NewDefaultLoader(envVarsPrefix)
	cfg := NewAppConfig()
	err := cfgLoader.LoadFromFile(path, config.DataTypeYAML, cfg)
	return cfg, err
}
