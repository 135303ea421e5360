/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package sqldb

import (
	"fmt"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/acronis/go-rpcgate/config"
)

// Supported drivers. An empty driver means the gateway runs without a database.
const (
	DriverPostgres  = "postgres"
	DriverMySQL     = "mysql"
	DriverSQLServer = "sqlserver"
)

const (
	cfgKeyDriver          = "driver"
	cfgKeyDSN             = "dsn"
	cfgKeyMaxOpenConns    = "maxOpenConns"
	cfgKeyMaxIdleConns    = "maxIdleConns"
	cfgKeyConnMaxLifetime = "connMaxLifetime"
	cfgKeyPingAttempts    = "pingAttempts"
	cfgKeyPingInterval    = "pingInterval"
)

const (
	defaultMaxOpenConns = 32
	defaultMaxIdleConns = 8
	defaultPingAttempts = 5
	defaultPingInterval = time.Second
)

// Config is the "database" section.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingAttempts    int
	PingInterval    time.Duration
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return "database"
}

// Enabled reports whether a SQL database is configured.
func (c *Config) Enabled() bool {
	return c.Driver != ""
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxOpenConns, defaultMaxOpenConns)
	dp.SetDefault(cfgKeyMaxIdleConns, defaultMaxIdleConns)
	dp.SetDefault(cfgKeyPingAttempts, defaultPingAttempts)
	dp.SetDefault(cfgKeyPingInterval, defaultPingInterval.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Driver, err = dp.GetStringFromSet(cfgKeyDriver, []string{"", DriverPostgres, DriverMySQL, DriverSQLServer}, false); err != nil {
		return err
	}
	if c.DSN, err = dp.GetString(cfgKeyDSN); err != nil {
		return err
	}
	if c.Enabled() {
		if err = ValidateDSN(c.Driver, c.DSN); err != nil {
			return dp.WrapKeyErr(cfgKeyDSN, err)
		}
	}
	if c.MaxOpenConns, err = dp.GetInt(cfgKeyMaxOpenConns); err != nil {
		return err
	}
	if c.MaxIdleConns, err = dp.GetInt(cfgKeyMaxIdleConns); err != nil {
		return err
	}
	if c.ConnMaxLifetime, err = dp.GetDuration(cfgKeyConnMaxLifetime); err != nil {
		return err
	}
	if c.PingAttempts, err = dp.GetInt(cfgKeyPingAttempts); err != nil {
		return err
	}
	if c.PingAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyPingAttempts, fmt.Errorf("should be >= 0"))
	}
	if c.PingInterval, err = dp.GetDuration(cfgKeyPingInterval); err != nil {
		return err
	}
	return nil
}

// ValidateDSN parses the data source name with the driver's own parser
// so that a typo is reported at startup rather than on the first request.
func ValidateDSN(driver, dsn string) error {
	if dsn == "" {
		return fmt.Errorf("cannot be empty when %q driver is used", driver)
	}
	var err error
	switch driver {
	case DriverPostgres:
		_, err = pq.NewConnector(dsn)
	case DriverMySQL:
		_, err = mysql.ParseDSN(dsn)
	case DriverSQLServer:
		_, err = mssql.NewConnector(dsn)
	default:
		err = fmt.Errorf("unknown driver %q", driver)
	}
	return err
}
