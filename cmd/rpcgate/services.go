/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/acronis/go-rpcgate/backend/funcs"
	"github.com/acronis/go-rpcgate/gateway"
	"github.com/acronis/go-rpcgate/session"
	"github.com/acronis/go-rpcgate/txn/boltdb"
)

const storeBucket = "store"

var errNoStore = errors.New("store requires the bolt database")

// Echo returns what it is given.
type Echo struct{}

// Echo copies the call parameters into the response.
func (e *Echo) Echo(_ context.Context, call *gateway.Call) error {
	params := call.Envelope().Params()
	for _, key := range params.Keys() {
		val, _ := params.Get(key)
		call.Out().Set(key, val)
	}
	return nil
}

// Fail always fails with the given "reason".
func (e *Echo) Fail(_ context.Context, call *gateway.Call) error {
	return errors.New(call.Envelope().ParamString("reason"))
}

// Store keeps strings in a bucket of the bolt database. Writes are committed only when the call succeeds.
type Store struct{}

// Put saves "value" under "key".
func (s *Store) Put(_ context.Context, call *gateway.Call) error {
	tx, ok := boltdb.FromHandle(call.Handle())
	if !ok {
		return errNoStore
	}
	key := call.Envelope().ParamString("key")
	if key == "" {
		return errors.New("key is empty")
	}
	bucket, err := tx.CreateBucketIfNotExists([]byte(storeBucket))
	if err != nil {
		return errors.Wrap(err, "create bucket")
	}
	return bucket.Put([]byte(key), []byte(call.Envelope().ParamString("value")))
}

// Get returns the "value" saved under "key".
func (s *Store) Get(_ context.Context, call *gateway.Call) error {
	tx, ok := boltdb.FromHandle(call.Handle())
	if !ok {
		return errNoStore
	}
	key := call.Envelope().ParamString("key")
	var val []byte
	if bucket := tx.Bucket([]byte(storeBucket)); bucket != nil {
		val = bucket.Get([]byte(key))
	}
	if val == nil {
		return fmt.Errorf("key %q is not found", key)
	}
	call.Out().Set("value", string(val))
	return nil
}

func registerGatewayFuncs(table *funcs.Table, sessions *session.Manager) {
	table.Handle("Gateway", "time", func(_ context.Context, call *gateway.Call) error {
		call.Out().Set("time", time.Now().UTC().Format(time.RFC3339))
		return nil
	})

	table.Handle("Gateway", "logout", func(_ context.Context, call *gateway.Call) error {
		token, _ := call.Envelope().SessionToken()
		call.Out().Set("loggedOut", sessions.Logout(token))
		return nil
	})

	table.Handle("Gateway", "uploads", func(_ context.Context, call *gateway.Call) error {
		uploads := call.Uploads()
		names := make([]string, 0, uploads.Count())
		for i := 0; i < uploads.Count(); i++ {
			name, _ := uploads.Name(i)
			names = append(names, name)
		}
		call.Out().Set("files", names)
		return nil
	})
}
