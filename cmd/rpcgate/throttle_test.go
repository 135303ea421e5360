/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-rpcgate/httpserver/middleware/throttle"
	"github.com/acronis/go-rpcgate/internal/throttleconfig"
	"github.com/acronis/go-rpcgate/log/logtest"
)

func TestThrottleMiddleware_RespondsWithEnvelope(t *testing.T) {
	cfg := &throttle.Config{
		RateLimitZones: map[string]throttle.RateLimitZoneConfig{
			"per_client": {
				RateLimit:          throttleconfig.RateLimitValue{Count: 1, Duration: time.Hour},
				Key:                throttleconfig.ZoneKeyConfig{Type: throttleconfig.ZoneKeyTypeRemoteAddr},
				ResponseRetryAfter: throttleconfig.RetryAfterValue{IsAuto: true},
			},
		},
		RateLimits: []throttle.RateLimitRef{{Zone: "per_client"}},
	}
	mw, err := makeThrottleMiddleware(cfg, nil, logtest.NewRecorder())
	require.NoError(t, err)

	served := 0
	h := mw(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		served++
		rw.WriteHeader(http.StatusOK)
	}))
	do := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/rest", nil)
		req.RemoteAddr = remoteAddr
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		return resp
	}

	require.Equal(t, http.StatusOK, do("10.0.0.1:1000").Code)
	resp := do("10.0.0.1:1001")
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"_Success": false, "_ErrorMessage": "Too many requests"}`, resp.Body.String())
	require.NotEmpty(t, resp.Header().Get("Retry-After"))
	require.Equal(t, http.StatusOK, do("10.0.0.2:1000").Code)
	require.Equal(t, 2, served)

	resp = do("no-port")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"_Success":false`)
	require.Contains(t, resp.Body.String(), "Internal error get key")
	require.Equal(t, 2, served)
}
