/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver serves pprof endpoints on a separate address, so the dispatcher's goroutines
// and heap can be inspected without exposing them on the gateway port.
package profserver

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/go-rpcgate/httpserver/middleware"
	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/service"
)

// ProfServer is a service.Unit serving /debug/pprof/.
type ProfServer struct {
	HTTPServer *http.Server
	Logger     log.FieldLogger

	listener  net.Listener
	serveDone chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New starts listening on the configured address. Requests are served after Start.
func New(cfg *Config, logger log.FieldLogger) (*ProfServer, error) {
	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID(),
		middleware.Logging(logger, middleware.LoggingOpts{RequestStart: true}),
	)
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		HTTPServer: &http.Server{Handler: router, ReadHeaderTimeout: time.Second * 5},
		Logger:     logger,
		listener:   ln,
		serveDone:  make(chan struct{}),
	}, nil
}

// Addr returns the address the server listens on.
func (s *ProfServer) Addr() string {
	return s.listener.Addr().String()
}

// Start serves requests until Stop is called.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.serveDone)

	logger := s.Logger.With(log.String("address", s.Addr()))
	logger.Info("starting profiling HTTP server...")
	if err := s.HTTPServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
	logger.Info("profiling HTTP server closed")
}

// Stop closes the server. Profiling requests are never waited for.
func (s *ProfServer) Stop(bool) error {
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("profiling HTTP server closing error", log.Error(err))
		return err
	}
	<-s.serveDone
	return nil
}
