/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package sqldb implements the gateway's transactional resource on top of database/sql.
// PostgreSQL (lib/pq), MySQL (go-sql-driver/mysql) and SQL Server (go-mssqldb) are supported.
package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/retry"
	"github.com/acronis/go-rpcgate/txn"
)

// Provider begins a database transaction per request.
type Provider struct {
	db *sql.DB
}

var (
	_ txn.Provider = (*Provider)(nil)
	_ txn.Pinger   = (*Provider)(nil)
)

// New wraps an already opened *sql.DB.
func New(db *sql.DB) *Provider {
	return &Provider{db: db}
}

// Open connects to the configured database and waits until it answers a ping,
// retrying up to cfg.PingAttempts times.
func Open(ctx context.Context, cfg *Config, logger log.FieldLogger) (*Provider, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", cfg.Driver)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	p := New(db)
	policy := retry.NewConstantBackoffPolicy(cfg.PingInterval, cfg.PingAttempts)
	notify := func(err error, next time.Duration) {
		logger.Warn("database is not reachable yet", log.Error(err), log.Duration("retry_in", next))
	}
	if err = retry.DoWithRetry(ctx, policy, nil, notify, p.Ping); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s database", cfg.Driver)
	}
	logger.Info("database connection established", log.String("driver", cfg.Driver))
	return p, nil
}

// Begin implements txn.Provider.
func (p *Provider) Begin(ctx context.Context) (txn.Tx, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx}, nil
}

// Ping implements txn.Pinger.
func (p *Provider) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the connection pool.
func (p *Provider) Close() error {
	return p.db.Close()
}

// Tx is the transaction handed to backends. They reach it via FromHandle.
type Tx struct {
	*sql.Tx
}

// FromHandle returns the SQL transaction behind the request's handle.
// It returns false if the gateway runs on another kind of resource.
func FromHandle(h *txn.Handle) (*sql.Tx, bool) {
	if h == nil {
		return nil, false
	}
	tx, ok := h.Tx().(*Tx)
	if !ok {
		return nil, false
	}
	return tx.Tx, true
}
