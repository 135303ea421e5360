/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package sqldb

import (
	"bytes"
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-rpcgate/config"
	"github.com/acronis/go-rpcgate/txn"
)

func TestProvider_CommitThroughHandle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	h, err := txn.Open(context.Background(), New(db))
	require.NoError(t, err)
	defer func() { require.NoError(t, h.Close()) }()

	sqlTx, ok := FromHandle(h)
	require.True(t, ok)
	_, err = sqlTx.Exec("UPDATE accounts SET balance = balance - 1")
	require.NoError(t, err)
	require.NoError(t, h.Commit())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvider_CloseRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	h, err := txn.Open(context.Background(), New(db))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvider_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	require.NoError(t, New(db).Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFromHandle_OtherResource(t *testing.T) {
	_, ok := FromHandle(nil)
	require.False(t, ok)
	_, ok = FromHandle(txn.NewHandle(nopTx{}))
	require.False(t, ok)
}

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

func TestConfig_Set(t *testing.T) {
	load := func(data string) (*Config, error) {
		cfg := &Config{}
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg)
		return cfg, err
	}

	t.Run("no database", func(t *testing.T) {
		cfg, err := load(`{}`)
		require.NoError(t, err)
		require.False(t, cfg.Enabled())
		require.Equal(t, defaultPingAttempts, cfg.PingAttempts)
	})

	t.Run("mysql", func(t *testing.T) {
		cfg, err := load("database:\n  driver: mysql\n  dsn: \"kiss:secret@tcp(db:3306)/kiss\"\n  maxOpenConns: 4\n")
		require.NoError(t, err)
		require.True(t, cfg.Enabled())
		require.Equal(t, 4, cfg.MaxOpenConns)
	})

	t.Run("postgres", func(t *testing.T) {
		_, err := load("database:\n  driver: postgres\n  dsn: \"postgres://kiss:secret@db:5432/kiss?sslmode=disable\"\n")
		require.NoError(t, err)
	})

	t.Run("sqlserver", func(t *testing.T) {
		_, err := load("database:\n  driver: sqlserver\n  dsn: \"sqlserver://kiss:secret@db:1433?database=kiss\"\n")
		require.NoError(t, err)
	})

	t.Run("bad mysql dsn", func(t *testing.T) {
		_, err := load("database:\n  driver: mysql\n  dsn: \"kiss@db/kiss\"\n")
		require.ErrorContains(t, err, "database.dsn:")
	})

	t.Run("missing dsn", func(t *testing.T) {
		_, err := load("database:\n  driver: postgres\n")
		require.EqualError(t, err, `database.dsn: cannot be empty when "postgres" driver is used`)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := load("database:\n  driver: oracle\n")
		require.ErrorContains(t, err, `database.driver: unknown value "oracle"`)
	})
}
