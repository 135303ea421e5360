/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Command rpcgate runs the RPC gateway: an HTTP endpoint that dispatches "_class"/"_method" calls
// to the registered backend services through a bounded admission queue and a fixed worker pool.
package main

import (
	"context"
	"fmt"
	golog "log"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-rpcgate/backend/funcs"
	"github.com/acronis/go-rpcgate/backend/native"
	"github.com/acronis/go-rpcgate/dispatch"
	"github.com/acronis/go-rpcgate/gateway"
	"github.com/acronis/go-rpcgate/httpserver"
	"github.com/acronis/go-rpcgate/httpserver/middleware/throttle"
	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/lrucache"
	"github.com/acronis/go-rpcgate/profserver"
	"github.com/acronis/go-rpcgate/service"
	"github.com/acronis/go-rpcgate/session"
	"github.com/acronis/go-rpcgate/txn"
	"github.com/acronis/go-rpcgate/txn/boltdb"
	"github.com/acronis/go-rpcgate/txn/sqldb"
)

func main() {
	if err := runApp(); err != nil {
		golog.Fatal(err)
	}
}

func runApp() error {
	cfgPath := os.Getenv(envVarConfigPath)
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	cfg, err := loadAppConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	res := &resources{dbCfg: cfg.Database, boltCfg: cfg.Bolt, logger: logger}
	defer res.close()

	unit, err := makeServiceUnit(cfg, res, logger)
	if err != nil {
		return err
	}
	return service.New(logger, unit).Start()
}

func makeServiceUnit(cfg *AppConfig, res *resources, logger log.FieldLogger) (service.Unit, error) {
	dispatchMetrics := dispatch.NewPrometheusMetrics(metricsNamespace)
	dispatcher := dispatch.New(cfg.Dispatch, logger, dispatchMetrics)

	cacheMetrics := lrucache.NewPrometheusMetrics(metricsNamespace, prometheus.Labels{"cache": "sessions"})
	sessions, err := session.NewManager(cfg.Session, session.StaticCredentials(cfg.Session.Users), cacheMetrics, logger)
	if err != nil {
		return nil, fmt.Errorf("create session manager: %w", err)
	}

	chain, err := makeChain(sessions, logger)
	if err != nil {
		return nil, err
	}

	gatewayMetrics := gateway.NewPrometheusMetrics(metricsNamespace)
	handler := gateway.NewHandler(chain, logger, gateway.HandlerOpts{
		Lifecycle: gateway.NewLifecycle(res.init, cfg.Gateway.InitTimeout, logger),
		Sessions:  sessions,
		Metrics:   gatewayMetrics,
	})
	transport := gateway.NewTransport(dispatcher, handler, logger, gateway.TransportOpts{
		MaxRequestSize: uint64(cfg.Gateway.MaxRequestSize),
		AdmissionRate:  cfg.Gateway.AdmissionRate,
		AdmissionBurst: cfg.Gateway.AdmissionBurst,
	})

	throttleMetrics := throttle.NewPrometheusMetrics(metricsNamespace)
	throttleMw, err := makeThrottleMiddleware(cfg.Throttle, throttleMetrics, logger)
	if err != nil {
		return nil, err
	}

	httpServer, err := httpserver.New(cfg.Server, logger, httpserver.Opts{
		Routes: func(router chi.Router) {
			router.With(throttleMw).Handle(cfg.Gateway.Path, transport)
		},
		HealthCheck:      makeHealthCheck(dispatcher, res),
		MetricsNamespace: metricsNamespace,
	})
	if err != nil {
		return nil, fmt.Errorf("create HTTP server: %w", err)
	}

	dispatcherUnit := service.NewWorkerUnitWithOpts(dispatcher, service.WorkerUnitOpts{
		MetricsRegisterer: metricsRegisterers{dispatchMetrics, gatewayMetrics, throttleMetrics},
	})
	sweepUnit := service.NewWorkerUnitWithOpts(
		service.NewPeriodicWorker(service.WorkerFunc(sessions.Sweep), cfg.Session.SweepInterval, logger),
		service.WorkerUnitOpts{MetricsRegisterer: cacheMetricsRegisterer{cacheMetrics}},
	)

	// The HTTP server stops first, so no new calls are admitted while the dispatcher drains.
	units := []service.Unit{httpServer, dispatcherUnit, sweepUnit}
	if cfg.Profiler.Enabled {
		profServer, profErr := profserver.New(cfg.Profiler, logger)
		if profErr != nil {
			return nil, fmt.Errorf("create profiling server: %w", profErr)
		}
		units = append(units, profServer)
	}
	return service.NewOrderedCompositeUnit(units...), nil
}

// makeThrottleMiddleware rate limits calls to the gateway path.
// Rejected calls get the usual error envelope, so clients see 200 OK as for any other failure.
func makeThrottleMiddleware(
	cfg *throttle.Config, metrics throttle.MetricsCollector, logger log.FieldLogger,
) (func(http.Handler) http.Handler, error) {
	mw, err := throttle.Middleware(cfg, metrics, throttle.MiddlewareOpts{
		OnReject: func(rw http.ResponseWriter, _ *http.Request, _ throttle.RejectParams, logger log.FieldLogger) {
			gateway.RespondError(rw, gateway.MsgRateLimited, nil, logger)
		},
		OnError: func(rw http.ResponseWriter, _ *http.Request, err error, logger log.FieldLogger) {
			gateway.RespondError(rw, gateway.MsgInternalError, err, logger)
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create throttling middleware: %w", err)
	}
	return mw, nil
}

func makeChain(sessions *session.Manager, logger log.FieldLogger) (*gateway.Chain, error) {
	services := native.New(logger)
	if err := services.Register(&Echo{}); err != nil {
		return nil, fmt.Errorf("register Echo service: %w", err)
	}
	if err := services.Register(&Store{}); err != nil {
		return nil, fmt.Errorf("register Store service: %w", err)
	}

	table := funcs.New()
	registerGatewayFuncs(table, sessions)

	return gateway.NewChain(logger, services, table), nil
}

func makeHealthCheck(dispatcher *dispatch.Dispatcher, res *resources) httpserver.HealthCheck {
	return func(ctx context.Context) (httpserver.HealthCheckResult, error) {
		result := httpserver.HealthCheckResult{"dispatcher": httpserver.HealthCheckStatusOK}
		if !dispatcher.Running() {
			result["dispatcher"] = httpserver.HealthCheckStatusFail
		}
		if pinger, ok := res.pinger(); ok {
			result["database"] = httpserver.HealthCheckStatusOK
			if err := pinger.Ping(ctx); err != nil {
				result["database"] = httpserver.HealthCheckStatusFail
			}
		}
		return result, nil
	}
}

// resources opens the transactional resource on the first call and closes it on exit.
type resources struct {
	dbCfg   *sqldb.Config
	boltCfg *boltdb.Config
	logger  log.FieldLogger

	mu       sync.Mutex
	provider txn.Provider
	closer   func() error
}

func (r *resources) init(ctx context.Context) (txn.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.boltCfg.Enabled():
		p, err := boltdb.Open(r.boltCfg)
		if err != nil {
			return nil, err
		}
		r.provider, r.closer = p, p.Close
	case r.dbCfg.Enabled():
		p, err := sqldb.Open(ctx, r.dbCfg, r.logger)
		if err != nil {
			return nil, err
		}
		r.provider, r.closer = p, p.Close
	default:
		r.logger.Info("no database configured, calls run without transactions")
	}
	return r.provider, nil
}

func (r *resources) pinger() (txn.Pinger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.provider.(txn.Pinger)
	return p, ok
}

func (r *resources) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer == nil {
		return
	}
	if err := r.closer(); err != nil {
		r.logger.Error("failed to close database", log.Error(err))
	}
}

type metricsRegisterers []service.MetricsRegisterer

func (mrs metricsRegisterers) MustRegisterMetrics() {
	for _, mr := range mrs {
		mr.MustRegisterMetrics()
	}
}

func (mrs metricsRegisterers) UnregisterMetrics() {
	for _, mr := range mrs {
		mr.UnregisterMetrics()
	}
}

type cacheMetricsRegisterer struct {
	*lrucache.PrometheusMetrics
}

func (cm cacheMetricsRegisterer) MustRegisterMetrics() { cm.MustRegister() }

func (cm cacheMetricsRegisterer) UnregisterMetrics() { cm.Unregister() }
