/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-rpcgate/log"
)

// LoggingOpts represents options for Logging middleware.
type LoggingOpts struct {
	RequestStart         bool
	SlowRequestThreshold time.Duration
	// ExcludedEndpoints are glob patterns of URL paths.
	ExcludedEndpoints    []string
}

// Logging puts a logger with request ids into the request's context and logs every completed request.
// Requests to excluded endpoints are logged only when they fail.
func Logging(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	if opts.SlowRequestThreshold == 0 {
		opts.SlowRequestThreshold = time.Second
	}
	excluded := newEndpointMatcher(opts.ExcludedEndpoints)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			startTime := GetRequestStartTimeFromContext(ctx)
			if startTime.IsZero() {
				startTime = time.Now()
				ctx = NewContextWithRequestStartTime(ctx, startTime)
			}

			loggerForNext := logger.With(
				log.String("request_id", GetRequestIDFromContext(ctx)),
				log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
			)
			reqLogger := loggerForNext.With(
				log.String("method", r.Method),
				log.String("uri", r.RequestURI),
				log.String("remote_addr", r.RemoteAddr),
				log.Int64("content_length", r.ContentLength),
			)

			noLog := excluded.match(r.URL.Path)
			if opts.RequestStart && !noLog {
				reqLogger.Info("request started")
			}

			wrw := chimw.NewWrapResponseWriter(rw, r.ProtoMajor)
			next.ServeHTTP(wrw, r.WithContext(NewContextWithLogger(ctx, loggerForNext)))

			if noLog && wrw.Status() < http.StatusBadRequest {
				return
			}
			duration := time.Since(startTime)
			fields := []log.Field{
				log.Int64("duration_ms", duration.Milliseconds()),
				log.Int("status", wrw.Status()),
				log.Int("bytes_sent", wrw.BytesWritten()),
			}
			if duration >= opts.SlowRequestThreshold {
				fields = append(fields, log.Bool("slow_request", true))
			}
			reqLogger.Info(fmt.Sprintf("response completed in %.3fs", duration.Seconds()), fields...)
		})
	}
}

// endpointMatcher reports whether a URL path matches one of the glob patterns (e.g. "/debug/*").
type endpointMatcher []func(s string) bool

func newEndpointMatcher(patterns []string) endpointMatcher {
	m := make(endpointMatcher, 0, len(patterns))
	for _, pattern := range patterns {
		m = append(m, glob.Compile(pattern))
	}
	return m
}

func (m endpointMatcher) match(urlPath string) bool {
	for _, matches := range m {
		if matches(urlPath) {
			return true
		}
	}
	return false
}
