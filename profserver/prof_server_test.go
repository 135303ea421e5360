/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-rpcgate/config"
	"github.com/acronis/go-rpcgate/log/logtest"
)

func TestProfServer(t *testing.T) {
	profServer, err := New(&Config{Address: "127.0.0.1:0"}, logtest.NewRecorder())
	require.NoError(t, err)
	fatalErr := make(chan error, 1)
	go profServer.Start(fatalErr)

	resp, err := http.Get("http://" + profServer.Addr() + "/debug/pprof/goroutine?debug=1")
	require.NoError(t, err)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(respBody), "goroutine profile")

	require.NoError(t, profServer.Stop(false))
	require.Len(t, fatalErr, 0)
}

func TestConfig(t *testing.T) {
	cfg := &Config{}
	err := config.NewDefaultLoader("RPCGATETEST").LoadFromReader(strings.NewReader("profiler:\n  enabled: true\n"), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, &Config{Enabled: true, Address: defaultAddress}, cfg)
}
