/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-rpcgate/backend/funcs"
	"github.com/acronis/go-rpcgate/dispatch"
	"github.com/acronis/go-rpcgate/gateway"
	"github.com/acronis/go-rpcgate/httpserver"
	"github.com/acronis/go-rpcgate/log/logtest"
	"github.com/acronis/go-rpcgate/session"
	"github.com/acronis/go-rpcgate/txn/boltdb"
	"github.com/acronis/go-rpcgate/txn/sqldb"
)

type testGateway struct {
	t       *testing.T
	handler *gateway.Handler
	token   string
}

func (g *testGateway) call(class, method string, params map[string]interface{}) *gateway.Response {
	payload := gateway.NewPayload()
	for k, v := range params {
		payload.Set(k, v)
	}
	if g.token != "" {
		payload.Set(gateway.FieldSessionToken, g.token)
	}
	return g.handler.Handle(context.Background(), gateway.NewEnvelope(class, method, payload), gateway.NoUploads, nil)
}

func newTestGateway(t *testing.T, res *resources) *testGateway {
	t.Helper()
	logger := logtest.NewRecorder()

	hash, err := session.HashPassword("secret")
	require.NoError(t, err)
	sessionCfg := session.NewDefaultConfig()
	sessions, err := session.NewManager(sessionCfg, session.StaticCredentials{"admin": hash}, nil, logger)
	require.NoError(t, err)

	chain, err := makeChain(sessions, logger)
	require.NoError(t, err)

	table := funcs.New()
	table.Handle("Test", "putAndFail", func(ctx context.Context, call *gateway.Call) error {
		if err := (&Store{}).Put(ctx, call); err != nil {
			return err
		}
		return errors.New("failed after put")
	})
	chain = gateway.NewChain(logger, table, chainProvider{chain})

	var lifecycle *gateway.Lifecycle
	if res != nil {
		res.logger = logger
		lifecycle = gateway.NewLifecycle(res.init, 0, logger)
	}
	handler := gateway.NewHandler(chain, logger, gateway.HandlerOpts{Lifecycle: lifecycle, Sessions: sessions})
	return &testGateway{t: t, handler: handler}
}

type chainProvider struct {
	chain *gateway.Chain
}

func (cp chainProvider) Attempt(ctx context.Context, call *gateway.Call) gateway.Outcome {
	return cp.chain.Resolve(ctx, call)
}

func TestEcho(t *testing.T) {
	g := newTestGateway(t, nil)

	resp := g.call("Echo", "Echo", map[string]interface{}{"a": "1", "b": 2})
	require.True(t, resp.Success)
	require.ElementsMatch(t, []string{"a", "b"}, resp.Payload.Keys())

	resp = g.call("Echo", "Fail", map[string]interface{}{"reason": "nope"})
	require.False(t, resp.Success)
	require.Equal(t, "Error executing Echo.Fail nope", resp.ErrorMessage)

	resp = g.call("Store", "Get", map[string]interface{}{"key": "k"})
	require.False(t, resp.Success)
	require.Equal(t, "Error executing Store.Get "+errNoStore.Error(), resp.ErrorMessage)

	resp = g.call("Gateway", "time", nil)
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Payload.GetString("time"))
}

func TestStore(t *testing.T) {
	res := &resources{
		dbCfg:   &sqldb.Config{},
		boltCfg: &boltdb.Config{Path: filepath.Join(t.TempDir(), "rpcgate.db")},
	}
	defer res.close()
	g := newTestGateway(t, res)

	resp := g.call("Store", "Put", map[string]interface{}{"key": "k", "value": "v"})
	require.False(t, resp.Success)
	require.Contains(t, resp.ErrorMessage, gateway.MsgLoginFailed)

	resp = g.call("", gateway.MethodLogin, map[string]interface{}{"username": "admin", "password": "secret"})
	require.True(t, resp.Success, resp.ErrorMessage)
	g.token = resp.Payload.GetString("uuid")
	require.NotEmpty(t, g.token)

	resp = g.call("Store", "Put", map[string]interface{}{"key": "k", "value": "v"})
	require.True(t, resp.Success, resp.ErrorMessage)

	resp = g.call("Store", "Get", map[string]interface{}{"key": "k"})
	require.True(t, resp.Success, resp.ErrorMessage)
	require.Equal(t, "v", resp.Payload.GetString("value"))

	// A failed call rolls its writes back.
	resp = g.call("Test", "putAndFail", map[string]interface{}{"key": "other", "value": "v"})
	require.False(t, resp.Success)
	require.Equal(t, "Error executing Test.putAndFail failed after put", resp.ErrorMessage)

	resp = g.call("Store", "Get", map[string]interface{}{"key": "other"})
	require.False(t, resp.Success)
	require.Equal(t, `Error executing Store.Get key "other" is not found`, resp.ErrorMessage)

	resp = g.call("Gateway", "logout", nil)
	require.True(t, resp.Success)
	loggedOut, _ := resp.Payload.Get("loggedOut")
	require.Equal(t, true, loggedOut)

	resp = g.call("Store", "Get", map[string]interface{}{"key": "k"})
	require.False(t, resp.Success)
	require.Contains(t, resp.ErrorMessage, gateway.MsgLoginFailed)

	pinger, ok := res.pinger()
	require.True(t, ok)
	require.NoError(t, pinger.Ping(context.Background()))
}

func TestHealthCheck(t *testing.T) {
	cfg := dispatch.NewDefaultConfig()
	dispatcher := dispatch.New(cfg, logtest.NewRecorder(), nil)
	res := &resources{dbCfg: &sqldb.Config{}, boltCfg: &boltdb.Config{}, logger: logtest.NewRecorder()}

	result, err := makeHealthCheck(dispatcher, res)(context.Background())
	require.NoError(t, err)
	require.Equal(t, httpserver.HealthCheckResult{"dispatcher": httpserver.HealthCheckStatusFail}, result)

	provider, err := res.init(context.Background())
	require.NoError(t, err)
	require.Nil(t, provider)
}
