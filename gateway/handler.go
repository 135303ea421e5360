/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/txn"
)

// Pseudo-methods served when the class is empty.
const (
	MethodLoginRequired = "LoginRequired"
	MethodLogin         = "Login"
)

// Error message prefixes of the envelopes written by the handler.
const (
	MsgInitFailed       = "System initialization failed"
	MsgDatabaseFailed   = "Unable to connect to the database"
	MsgLoginFailed      = "Login failure"
	MsgNoBackend        = "No back-end code found for"
	MsgBackendError     = "Back-end error in"
	MsgInternalError    = "Internal error"
	MsgQueueFull        = "Request queue is full"
	MsgRateLimited      = "Too many requests"
	MsgNotAccepting     = "Gateway is not accepting calls"
	MsgMalformedRequest = "Malformed request"
)

// Sessions validates session tokens and issues new ones.
type Sessions interface {
	Login(ctx context.Context, username, password string) (token string, err error)
	Validate(ctx context.Context, token string) error
}

// HandlerOpts contains optional parameters for Handler.
type HandlerOpts struct {
	// Lifecycle provides the transactional resource. Without it the gateway runs without one.
	Lifecycle *Lifecycle
	Sessions  Sessions
	Metrics   MetricsCollector
}

// Handler runs one call through initialization, the authentication gate, the provider chain
// and the commit or rollback of its transactional handle.
type Handler struct {
	chain     *Chain
	lifecycle *Lifecycle
	sessions  Sessions
	metrics   MetricsCollector
	logger    log.FieldLogger
}

// NewHandler creates a Handler.
func NewHandler(chain *Chain, logger log.FieldLogger, opts HandlerOpts) *Handler {
	if opts.Lifecycle == nil {
		opts.Lifecycle = NewLifecycle(nil, 0, logger)
	}
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}
	return &Handler{
		chain:     chain,
		lifecycle: opts.Lifecycle,
		sessions:  opts.Sessions,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// Handle executes the call and returns its response. It never returns nil.
// logger may be nil, then the handler's logger is used.
func (h *Handler) Handle(ctx context.Context, env *Envelope, uploads Uploads, logger log.FieldLogger) *Response {
	if logger == nil {
		logger = h.logger
	}
	startTime := time.Now()
	call := newCall(env, uploads, logger.With(log.String("class", env.Class()), log.String("method", env.Method())))
	resp, outcome := h.handle(ctx, call)
	h.metrics.ObserveCall(outcome, time.Since(startTime))
	return resp
}

func (h *Handler) handle(ctx context.Context, call *Call) (*Response, Outcome) {
	provider, err := h.lifecycle.Ensure(ctx)
	if err != nil {
		call.Fail(MsgInitFailed, err)
		return h.respond(call, OutcomeError)
	}

	if provider != nil {
		handle, openErr := txn.Open(ctx, provider)
		if openErr != nil {
			call.Logger().Error("failed to open transactional handle", log.Error(openErr))
			call.Fail(MsgDatabaseFailed, openErr)
			return h.respond(call, OutcomeError)
		}
		call.handle = handle
		defer func() {
			if closeErr := handle.Close(); closeErr != nil {
				call.Logger().Error("failed to release transactional handle", log.Error(closeErr))
			}
		}()
	}

	resp, outcome := h.respond(call, h.resolve(ctx, call, provider != nil))
	h.finalize(call, outcome)
	return resp, outcome
}

// respond builds and encodes the response. A success payload that cannot be encoded turns the call
// into an error, so its transaction is rolled back.
func (h *Handler) respond(call *Call, outcome Outcome) (*Response, Outcome) {
	resp := call.response(outcome)
	err := resp.encode()
	if err == nil || outcome != OutcomeSuccess {
		return resp, outcome
	}
	call.Logger().Error("failed to encode response payload", log.Error(err))
	call.Fail(MsgInternalError, err)
	resp = call.response(OutcomeError)
	_ = resp.encode()
	return resp, OutcomeError
}

func (h *Handler) resolve(ctx context.Context, call *Call, loginRequired bool) Outcome {
	env := call.Envelope()
	if env.Class() == "" {
		switch env.Method() {
		case MethodLoginRequired:
			call.Logger().Debug("login required", log.Bool("required", loginRequired))
			call.Out().Set(MethodLoginRequired, loginRequired)
			return OutcomeSuccess
		case MethodLogin:
			return h.login(ctx, call)
		}
	}

	if loginRequired {
		if err := h.authenticate(ctx, call); err != nil {
			call.Fail(MsgLoginFailed, err)
			return OutcomeError
		}
	}

	call.Logger().Debug("seeking service")
	switch outcome := h.chain.Resolve(ctx, call); outcome {
	case OutcomeSuccess:
		return OutcomeSuccess
	case OutcomeError:
		if call.Fail(fmt.Sprintf("%s %s.%s", MsgBackendError, env.Class(), env.Method()), nil) {
			call.Logger().Warn("backend provider reported an error without a message")
		}
		return OutcomeError
	default:
		call.Fail(MsgNoBackend+" "+env.Class(), nil)
		return OutcomeError
	}
}

func (h *Handler) login(ctx context.Context, call *Call) Outcome {
	if h.sessions == nil {
		call.Fail(MsgLoginFailed, fmt.Errorf("sessions are not configured"))
		return OutcomeError
	}
	env := call.Envelope()
	token, err := h.sessions.Login(ctx, env.ParamString("username"), env.ParamString("password"))
	if err != nil {
		call.Logger().Info("login failed", log.String("username", env.ParamString("username")), log.Error(err))
		call.Fail(MsgLoginFailed, err)
		return OutcomeError
	}
	call.Logger().Debug("login successful", log.String("username", env.ParamString("username")))
	call.Out().Set("uuid", token)
	return OutcomeSuccess
}

func (h *Handler) authenticate(ctx context.Context, call *Call) error {
	if h.sessions == nil {
		return fmt.Errorf("sessions are not configured")
	}
	token, _ := call.Envelope().SessionToken()
	return h.sessions.Validate(ctx, token)
}

// finalize commits on success and rolls back otherwise. Failures are logged only:
// the response has already been decided.
func (h *Handler) finalize(call *Call, outcome Outcome) {
	handle := call.Handle()
	if handle == nil {
		return
	}
	if outcome == OutcomeSuccess {
		if err := handle.Commit(); err != nil {
			call.Logger().Error("commit failed", log.Error(err))
		}
		return
	}
	if err := handle.Rollback(); err != nil {
		call.Logger().Error("rollback failed", log.Error(err))
	}
}
