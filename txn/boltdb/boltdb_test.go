/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package boltdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/acronis/go-rpcgate/txn"
)

func openTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := Open(&Config{
		Path:        filepath.Join(t.TempDir(), "data", "gateway.bolt"),
		OpenTimeout: time.Second,
		Buckets:     []string{"accounts"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p
}

func putThroughHandle(t *testing.T, p *Provider, key, value string, commit bool) {
	t.Helper()
	h, err := txn.Open(context.Background(), p)
	require.NoError(t, err)
	defer func() { require.NoError(t, h.Close()) }()

	tx, ok := FromHandle(h)
	require.True(t, ok)
	require.NoError(t, tx.Bucket([]byte("accounts")).Put([]byte(key), []byte(value)))
	if commit {
		require.NoError(t, h.Commit())
	}
}

func readAccount(t *testing.T, p *Provider, key string) []byte {
	t.Helper()
	var val []byte
	require.NoError(t, p.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte("accounts")).Get([]byte(key)); v != nil {
			val = append([]byte{}, v...)
		}
		return nil
	}))
	return val
}

func TestProvider(t *testing.T) {
	p := openTestProvider(t)

	putThroughHandle(t, p, "alice", "100", true)
	putThroughHandle(t, p, "bob", "50", false)

	require.Equal(t, []byte("100"), readAccount(t, p, "alice"))
	require.Nil(t, readAccount(t, p, "bob"))
	require.NoError(t, p.Ping(context.Background()))
}

func TestProvider_BeginCanceled(t *testing.T) {
	p := openTestProvider(t)

	h, err := txn.Open(context.Background(), p)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Begin(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, h.Close())
}
