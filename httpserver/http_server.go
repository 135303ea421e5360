/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpserver provides the HTTP server unit of the gateway with request ids, logging,
// panic recovery, Prometheus metrics and health-check endpoints.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"

	"github.com/acronis/go-rpcgate/httpserver/middleware"
	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/service"
)

const (
	networkTCP  = "tcp"
	networkUnix = "unix"
)

// Opts represents options for creating HTTPServer.
type Opts struct {
	// Routes mounts the application handlers.
	Routes func(router chi.Router)

	HealthCheck HealthCheck

	// MetricsHandler serves /metrics. promhttp.Handler() is used when it is nil.
	MetricsHandler http.Handler

	// MetricsNamespace is the namespace of HTTP request metrics.
	MetricsNamespace string

	// Listener is used instead of creating a new one.
	Listener net.Listener
}

// HTTPServer wraps http.Server with a chi router. It implements service.Unit and service.MetricsRegisterer.
type HTTPServer struct {
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	UnixSocketPath  string
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener    net.Listener
	port        *atomic.Int32
	serveDone   chan struct{}
	promMetrics *middleware.HTTPRequestPrometheusMetrics
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer with predefined logging, metrics collecting,
// recovering after panics and health-checking functionality.
func New(cfg *Config, logger log.FieldLogger, opts Opts) (*HTTPServer, error) {
	promMetrics := middleware.NewHTTPRequestPrometheusMetrics(opts.MetricsNamespace)
	router := chi.NewRouter()
	if err := applyDefaultMiddlewares(router, cfg, logger, promMetrics); err != nil {
		return nil, err
	}
	configureRouter(router, logger, opts)

	return &HTTPServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			WriteTimeout:      cfg.Timeouts.Write,
			ReadTimeout:       cfg.Timeouts.Read,
			ReadHeaderTimeout: cfg.Timeouts.ReadHeader,
			IdleTimeout:       cfg.Timeouts.Idle,
			Handler:           router,
		},
		HTTPRouter:      router,
		UnixSocketPath:  cfg.UnixSocketPath,
		Logger:          logger,
		ShutdownTimeout: cfg.Timeouts.Shutdown,
		listener:        opts.Listener,
		port:            atomic.NewInt32(0),
		serveDone:       make(chan struct{}),
		promMetrics:     promMetrics,
	}, nil
}

// Start starts the HTTP server in a blocking way. A fatal error is sent to the fatalError channel.
func (s *HTTPServer) Start(fatalError chan<- error) {
	defer close(s.serveDone)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)

	if s.UnixSocketPath != "" {
		logger = logger.With(log.String("unix_socket_path", s.UnixSocketPath))
		if err := os.Remove(s.UnixSocketPath); err != nil && !os.IsNotExist(err) {
			fatalError <- fmt.Errorf("remove unix socket file %q: %w", s.UnixSocketPath, err)
			return
		}
	}

	logger.Info("starting application HTTP server...")

	var err error
	if s.listener == nil {
		network, addr := s.NetworkAndAddr()
		if s.listener, err = net.Listen(network, addr); err != nil {
			logger.Error("application HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
	}

	if s.listener.Addr().Network() == networkTCP {
		if _, portStr, splitErr := net.SplitHostPort(s.listener.Addr().String()); splitErr == nil {
			if port, parseErr := strconv.ParseInt(portStr, 10, 32); parseErr == nil {
				s.port.Store(int32(port))
			}
		}
	}

	if err = s.HTTPServer.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("application HTTP server closed")
			return
		}
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the HTTP server (gracefully or not).
// A graceful stop waits for the in-flight gateway calls up to ShutdownTimeout.
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing application HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("application HTTP server closing error", log.Error(err))
			return err
		}
		<-s.serveDone
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	s.Logger.Info("shutting down application HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("application HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("application HTTP server shut down")
	<-s.serveDone
	return nil
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (s *HTTPServer) MustRegisterMetrics() {
	s.promMetrics.MustRegister()
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (s *HTTPServer) UnregisterMetrics() {
	s.promMetrics.Unregister()
}

// NetworkAndAddr returns network type ("tcp" or "unix") and address (path to unix socket in case of "unix" network).
func (s *HTTPServer) NetworkAndAddr() (network string, addr string) {
	if s.UnixSocketPath != "" {
		return networkUnix, s.UnixSocketPath
	}
	return networkTCP, s.HTTPServer.Addr
}

// GetPort returns the TCP port the server listens on, 0 until it has started.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
