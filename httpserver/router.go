/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-rpcgate/httpserver/middleware"
	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/restapi"
)

// Endpoints which are not involved in request logging, metrics collecting and in-flight requests limiting.
const (
	MetricsEndpoint     = "/metrics"
	HealthCheckEndpoint = "/healthz"
)

var systemEndpoints = []string{MetricsEndpoint, HealthCheckEndpoint}

type notFoundResponse struct {
	Error string `json:"error"`
}

func configureRouter(router chi.Router, logger log.FieldLogger, opts Opts) {
	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, MetricsEndpoint, metricsHandler)
	router.Method(http.MethodGet, HealthCheckEndpoint, NewHealthCheckHandler(opts.HealthCheck))

	if opts.Routes != nil {
		opts.Routes(router)
	}

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		restapi.RespondCodeAndJSON(rw, http.StatusNotFound, notFoundResponse{Error: "Not found."}, logger)
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		restapi.RespondCodeAndJSON(rw, http.StatusMethodNotAllowed, notFoundResponse{Error: "Method not allowed."}, logger)
	})
}

func applyDefaultMiddlewares(
	router chi.Router, cfg *Config, logger log.FieldLogger, promMetrics *middleware.HTTPRequestPrometheusMetrics,
) error {
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
		})
	})
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(logger, middleware.LoggingOpts{
		RequestStart:         cfg.Log.RequestStart,
		SlowRequestThreshold: cfg.Log.SlowRequestThreshold,
		ExcludedEndpoints:    systemEndpoints,
	}))
	router.Use(middleware.Recovery())
	router.Use(middleware.HTTPRequestMetrics(promMetrics, GetChiRoutePattern, systemEndpoints))
	if cfg.Limits.MaxRequests != 0 {
		inFlightLimitMw, err := middleware.InFlightLimit(cfg.Limits.MaxRequests, systemEndpoints)
		if err != nil {
			return fmt.Errorf("create in-flight limit middleware: %w", err)
		}
		router.Use(inFlightLimitMw)
	}
	return nil
}

// GetChiRoutePattern extracts chi route pattern from request.
func GetChiRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	routePath := r.URL.RawPath
	if routePath == "" {
		routePath = r.URL.Path
	}
	tctx := chi.NewRouteContext()
	if !rctx.Routes.Match(tctx, r.Method, routePath) {
		return ""
	}
	return tctx.RoutePattern()
}
