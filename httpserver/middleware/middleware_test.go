/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/log/logtest"
)

func TestRequestID(t *testing.T) {
	var gotID, gotIntID string
	handler := RequestID()(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotID = GetRequestIDFromContext(r.Context())
		gotIntID = GetInternalRequestIDFromContext(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
		require.NotEmpty(t, gotID)
		require.NotEmpty(t, gotIntID)
		require.NotEqual(t, gotID, gotIntID)
		require.Equal(t, gotID, resp.Header().Get(headerRequestID))
		require.Equal(t, gotIntID, resp.Header().Get(headerInternalRequestID))
	})

	t.Run("passed by client", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(headerRequestID, "client-id")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		require.Equal(t, "client-id", gotID)
		require.Equal(t, "client-id", resp.Header().Get(headerRequestID))
	})
}

func TestLogging(t *testing.T) {
	rec := logtest.NewRecorder()
	handler := RequestID()(Logging(rec, LoggingOpts{ExcludedEndpoints: []string{"/healthz"}})(
		http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			GetLoggerFromContext(r.Context()).Info("inside handler")
			if r.URL.Path == "/healthz" {
				rw.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			rw.WriteHeader(http.StatusTeapot)
		})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/rest", nil))

	inside, found := rec.FindEntry("inside handler")
	require.True(t, found)
	_, found = inside.FindField("request_id")
	require.True(t, found)

	completed, found := rec.FindEntryByFilter(func(e logtest.RecordedEntry) bool {
		return e.Level == log.LevelInfo && len(e.Text) > len("response completed") &&
			e.Text[:len("response completed")] == "response completed"
	})
	require.True(t, found)
	status, found := completed.FindField("status")
	require.True(t, found)
	require.EqualValues(t, http.StatusTeapot, status.Int)

	// Failed requests to excluded endpoints are still logged.
	rec.Reset()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Len(t, rec.Entries(), 2)
}

func TestRecovery(t *testing.T) {
	rec := logtest.NewRecorder()
	handler := Logging(rec, LoggingOpts{})(Recovery()(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.JSONEq(t, `{"error":"Internal error."}`, resp.Body.String())
	_, found := rec.FindEntry("Panic: boom")
	require.True(t, found)
}

func TestInFlightLimit(t *testing.T) {
	_, err := InFlightLimit(0, nil)
	require.Error(t, err)

	mw, err := InFlightLimit(1, nil)
	require.NoError(t, err)

	var innerResp *httptest.ResponseRecorder
	inner := mw(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {}))
	outer := mw(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		innerResp = httptest.NewRecorder()
		inner.ServeHTTP(innerResp, r)
	}))

	resp := httptest.NewRecorder()
	outer.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, http.StatusServiceUnavailable, innerResp.Code)

	// The slot is released after the request.
	resp = httptest.NewRecorder()
	inner.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestHTTPRequestMetrics(t *testing.T) {
	pm := NewHTTPRequestPrometheusMetrics("test")
	handler := HTTPRequestMetrics(pm, func(r *http.Request) string { return "/rest" }, []string{"/metrics"})(
		http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/rest", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, 1, testutil.CollectAndCount(pm.Durations))
	require.Equal(t, float64(0), testutil.ToFloat64(pm.InFlight))
}

func TestEndpointMatcher(t *testing.T) {
	m := newEndpointMatcher([]string{"/healthz", "/debug/*"})
	require.True(t, m.match("/healthz"))
	require.True(t, m.match("/debug/pprof"))
	require.False(t, m.match("/rest"))
	require.False(t, m.match("/healthz/extra"))
	require.False(t, newEndpointMatcher(nil).match("/healthz"))
}
