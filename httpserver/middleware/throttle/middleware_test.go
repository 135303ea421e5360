/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-rpcgate/internal/throttleconfig"
	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/log/logtest"
)

func perHour(n int) throttleconfig.RateLimitValue {
	return throttleconfig.RateLimitValue{Count: n, Duration: time.Hour}
}

type throttleTest struct {
	t       *testing.T
	handler http.Handler
	metrics *PrometheusMetrics
	logger  *logtest.Recorder
	served  int
}

func newThrottleTest(t *testing.T, cfg *Config, opts MiddlewareOpts) *throttleTest {
	t.Helper()
	tt := &throttleTest{t: t, metrics: NewPrometheusMetrics("test"), logger: logtest.NewRecorder()}
	opts.Logger = tt.logger
	mw, err := Middleware(cfg, tt.metrics, opts)
	require.NoError(t, err)
	tt.handler = mw(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		tt.served++
		rw.WriteHeader(http.StatusOK)
	}))
	return tt
}

func (tt *throttleTest) do(remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/rest", nil)
	req.RemoteAddr = remoteAddr
	resp := httptest.NewRecorder()
	tt.handler.ServeHTTP(resp, req)
	return resp
}

func (tt *throttleTest) rejects(zone, dryRun string) float64 {
	return testutil.ToFloat64(tt.metrics.RateLimitRejects.With(prometheus.Labels{"zone": zone, "dry_run": dryRun}))
}

func TestMiddleware_NoKey(t *testing.T) {
	cfg := &Config{
		RateLimitZones: map[string]RateLimitZoneConfig{
			"total": {Alg: throttleconfig.RateLimitAlgSlidingWindow, RateLimit: perHour(2), ResponseRetryAfter: throttleconfig.RetryAfterValue{Duration: 5 * time.Second}},
		},
		RateLimits: []RateLimitRef{{Zone: "total"}},
	}
	tt := newThrottleTest(t, cfg, MiddlewareOpts{})

	require.Equal(t, http.StatusOK, tt.do("10.0.0.1:1000").Code)
	require.Equal(t, http.StatusOK, tt.do("10.0.0.2:1000").Code)
	resp := tt.do("10.0.0.3:1000")
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.Equal(t, "5", resp.Header().Get("Retry-After"))
	require.Equal(t, 2, tt.served)
	require.Equal(t, 1.0, tt.rejects("total", "no"))

	entry, found := tt.logger.FindEntry("rate limit exceeded, request is rejected")
	require.True(t, found)
	field, found := entry.FindField(ZoneLogFieldName)
	require.True(t, found)
	require.Equal(t, "total", string(field.Bytes))
}

func TestMiddleware_RemoteAddr(t *testing.T) {
	cfg := &Config{
		RateLimitZones: map[string]RateLimitZoneConfig{
			"per_client": {
				RateLimit:          perHour(1),
				Key:                throttleconfig.ZoneKeyConfig{Type: throttleconfig.ZoneKeyTypeRemoteAddr},
				MaxKeys:            100,
				ExcludedKeys:       []string{"127.0.0.*"},
				ResponseRetryAfter: throttleconfig.RetryAfterValue{IsAuto: true},
			},
		},
		RateLimits: []RateLimitRef{{Zone: "per_client"}},
	}
	var rejected []RejectParams
	tt := newThrottleTest(t, cfg, MiddlewareOpts{
		OnReject: func(rw http.ResponseWriter, _ *http.Request, params RejectParams, _ log.FieldLogger) {
			rejected = append(rejected, params)
			rw.WriteHeader(http.StatusOK)
		},
	})

	// Leaky bucket without burst lets one call of each client pass.
	tt.do("10.0.0.1:1000")
	tt.do("10.0.0.1:1001")
	tt.do("10.0.0.2:1000")
	for i := 0; i < 3; i++ {
		tt.do("127.0.0.1:1000")
	}

	require.Equal(t, 5, tt.served)
	require.Len(t, rejected, 1)
	require.Equal(t, "per_client", rejected[0].Zone)
	require.Equal(t, "10.0.0.1", rejected[0].Key)
	require.Greater(t, rejected[0].RetryAfter, time.Duration(0))
}

func TestMiddleware_DryRun(t *testing.T) {
	cfg := &Config{
		RateLimitZones: map[string]RateLimitZoneConfig{"total": {RateLimit: perHour(1), DryRun: true}},
		RateLimits:     []RateLimitRef{{Zone: "total"}},
	}
	tt := newThrottleTest(t, cfg, MiddlewareOpts{})

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, tt.do("10.0.0.1:1000").Code)
	}
	require.Equal(t, 3, tt.served)
	require.Equal(t, 2.0, tt.rejects("total", "yes"))
	_, found := tt.logger.FindEntry("rate limit exceeded, continuing in dry-run mode")
	require.True(t, found)
}

func TestMiddleware_KeyError(t *testing.T) {
	cfg := &Config{
		RateLimitZones: map[string]RateLimitZoneConfig{
			"per_client": {RateLimit: perHour(1), Key: throttleconfig.ZoneKeyConfig{Type: throttleconfig.ZoneKeyTypeRemoteAddr}},
		},
		RateLimits: []RateLimitRef{{Zone: "per_client"}},
	}
	tt := newThrottleTest(t, cfg, MiddlewareOpts{})

	require.Equal(t, http.StatusInternalServerError, tt.do("no-port").Code)
	require.Equal(t, 0, tt.served)
	_, found := tt.logger.FindEntry("rate limiting failed")
	require.True(t, found)
}

func TestMiddleware_NoZones(t *testing.T) {
	tt := newThrottleTest(t, NewDefaultConfig(), MiddlewareOpts{})
	for i := 0; i < 10; i++ {
		tt.do("10.0.0.1:1000")
	}
	require.Equal(t, 10, tt.served)
}

func TestMiddleware_InvalidConfig(t *testing.T) {
	_, err := Middleware(&Config{RateLimits: []RateLimitRef{{Zone: "missing"}}}, nil, MiddlewareOpts{})
	require.EqualError(t, err, `rate limit zone "missing" is not defined`)
}
