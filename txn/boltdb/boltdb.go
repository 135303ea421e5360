/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package boltdb implements the gateway's transactional resource on an embedded bbolt file.
// It lets the gateway run with sessions and transactions without an external database server.
//
// bbolt allows a single writable transaction at a time, so concurrent requests are serialized
// on Begin. Each request still gets its own transaction.
package boltdb

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/acronis/go-rpcgate/config"
	"github.com/acronis/go-rpcgate/txn"
)

const (
	cfgKeyPath        = "path"
	cfgKeyOpenTimeout = "openTimeout"
	cfgKeyBuckets     = "buckets"

	defaultOpenTimeout = time.Second
)

// Config is the "database.bolt" section.
type Config struct {
	Path        string
	OpenTimeout time.Duration
	Buckets     []string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return "database.bolt"
}

// Enabled reports whether a bolt file is configured.
func (c *Config) Enabled() bool {
	return c.Path != ""
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyOpenTimeout, defaultOpenTimeout.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Path, err = dp.GetString(cfgKeyPath); err != nil {
		return err
	}
	if c.OpenTimeout, err = dp.GetDuration(cfgKeyOpenTimeout); err != nil {
		return err
	}
	c.Buckets, err = dp.GetStringSlice(cfgKeyBuckets)
	return err
}

// Provider begins a writable bbolt transaction per request.
type Provider struct {
	db *bolt.DB
}

var (
	_ txn.Provider = (*Provider)(nil)
	_ txn.Pinger   = (*Provider)(nil)
)

// Open opens (creating if needed) the bolt file and makes sure the configured buckets exist.
func Open(cfg *Config) (*Provider, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", filepath.Dir(cfg.Path))
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: cfg.OpenTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt file %s", cfg.Path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range cfg.Buckets {
			if _, bErr := tx.CreateBucketIfNotExists([]byte(name)); bErr != nil {
				return errors.Wrapf(bErr, "create bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Provider{db: db}, nil
}

// Begin implements txn.Provider. It blocks while another request holds the write transaction,
// unless ctx is done first.
func (p *Provider) Begin(ctx context.Context) (txn.Tx, error) {
	type result struct {
		tx  *bolt.Tx
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		tx, err := p.db.Begin(true)
		resCh <- result{tx, err}
	}()
	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, res.err
		}
		return &Tx{res.tx}, nil
	case <-ctx.Done():
		go func() {
			if res := <-resCh; res.err == nil {
				_ = res.tx.Rollback()
			}
		}()
		return nil, ctx.Err()
	}
}

// Ping implements txn.Pinger by running an empty read-only transaction.
func (p *Provider) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.View(func(*bolt.Tx) error { return nil })
}

// Close closes the bolt file.
func (p *Provider) Close() error {
	return p.db.Close()
}

// Tx is the transaction handed to backends. They reach it via FromHandle.
type Tx struct {
	*bolt.Tx
}

// FromHandle returns the bolt transaction behind the request's handle.
func FromHandle(h *txn.Handle) (*bolt.Tx, bool) {
	if h == nil {
		return nil, false
	}
	tx, ok := h.Tx().(*Tx)
	if !ok {
		return nil, false
	}
	return tx.Tx, true
}
