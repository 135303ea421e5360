/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sort"

	"golang.org/x/time/rate"

	"github.com/acronis/go-rpcgate/dispatch"
	"github.com/acronis/go-rpcgate/httpserver/middleware"
	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/restapi"
)

const (
	contentTypeFormURLEncoded = "application/x-www-form-urlencoded"
	contentTypeMultipartForm  = "multipart/form-data"

	multipartMaxMemory = 8 << 20
)

// Admitter accepts packets for asynchronous execution.
type Admitter interface {
	Admit(pk *dispatch.Packet) error
}

// TransportOpts contains optional parameters for Transport.
type TransportOpts struct {
	MaxRequestSize uint64
	AdmissionRate  float64
	AdmissionBurst int
}

// Transport is the HTTP entry point. It parses the call, admits it and waits until a worker has handled it.
// Every call is answered with 200 OK.
type Transport struct {
	admitter       Admitter
	handler        *Handler
	logger         log.FieldLogger
	limiter        *rate.Limiter
	maxRequestSize uint64
}

// NewTransport creates a Transport.
func NewTransport(admitter Admitter, handler *Handler, logger log.FieldLogger, opts TransportOpts) *Transport {
	t := &Transport{admitter: admitter, handler: handler, logger: logger, maxRequestSize: opts.MaxRequestSize}
	if opts.AdmissionRate > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(opts.AdmissionRate), opts.AdmissionBurst)
	}
	return t
}

// ServeHTTP implements http.Handler.
func (t *Transport) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = t.logger
	}

	if t.limiter != nil && !t.limiter.Allow() {
		logger.Warn("call rejected by admission rate limit")
		t.respond(rw, NewErrorResponse(MsgRateLimited, nil), logger)
		return
	}

	if t.maxRequestSize > 0 {
		restapi.SetRequestMaxBodySize(rw, r, t.maxRequestSize)
	}
	env, uploads, cleanup, err := t.parseRequest(r)
	if err != nil {
		logger.Warn("malformed call", log.Error(err))
		t.respond(rw, NewErrorResponse(MsgMalformedRequest, err), logger)
		return
	}

	var resp *Response
	// The call must be finished even if the client goes away, so the exchange's cancellation is not propagated.
	pk := dispatch.NewPacket(context.WithoutCancel(r.Context()),
		func(ctx context.Context) {
			resp = t.handler.Handle(ctx, env, uploads, logger)
		},
		func(err error) {
			logger.Error("call aborted", log.Error(err))
			resp = NewErrorResponse(MsgInternalError, err)
		})
	if err = t.admitter.Admit(pk); err != nil {
		cleanup()
		logger.Warn("call was not admitted", log.Error(err))
		if errors.Is(err, dispatch.ErrQueueFull) {
			t.respond(rw, NewErrorResponse(MsgQueueFull, nil), logger)
		} else {
			t.respond(rw, NewErrorResponse(MsgNotAccepting, err), logger)
		}
		return
	}

	select {
	case <-pk.Done():
		cleanup()
		t.respond(rw, resp, logger)
	case <-r.Context().Done():
		logger.Warn("client closed the connection before the call was handled")
		go func() {
			<-pk.Done()
			cleanup()
		}()
	}
}

func (t *Transport) respond(rw http.ResponseWriter, resp *Response, logger log.FieldLogger) {
	restapi.RespondJSON(rw, resp, logger)
}

// RespondError answers a call that was turned away before reaching the gateway with an error envelope and 200 OK.
func RespondError(rw http.ResponseWriter, msg string, err error, logger log.FieldLogger) {
	restapi.RespondJSON(rw, NewErrorResponse(msg, err), logger)
}

func (t *Transport) parseRequest(r *http.Request) (env *Envelope, uploads Uploads, cleanup func(), err error) {
	cleanup = func() {}
	if r.Method != http.MethodPost {
		return nil, nil, cleanup, fmt.Errorf("method %s is not allowed", r.Method)
	}

	var contentType string
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if contentType, _, err = mime.ParseMediaType(ct); err != nil {
			return nil, nil, cleanup, fmt.Errorf("parse Content-Type: %w", err)
		}
	}

	params := NewPayload()
	uploads = NoUploads
	switch contentType {
	case contentTypeMultipartForm:
		if err = r.ParseMultipartForm(multipartMaxMemory); err != nil {
			return nil, nil, cleanup, fmt.Errorf("parse multipart form: %w", err)
		}
		form := r.MultipartForm
		cleanup = func() { _ = form.RemoveAll() }
		setFormValues(params, form.Value)
		uploads = NewFormUploads(form)
	case contentTypeFormURLEncoded:
		if err = r.ParseForm(); err != nil {
			return nil, nil, cleanup, fmt.Errorf("parse form: %w", err)
		}
		setFormValues(params, r.PostForm)
	default:
		if err = restapi.DecodeRequestJSON(r, params); err != nil {
			return nil, nil, cleanup, err
		}
	}

	if err = requireFields(params, FieldClass, FieldMethod); err != nil {
		cleanup()
		return nil, nil, func() {}, err
	}
	env = NewEnvelope(params.GetString(FieldClass), params.GetString(FieldMethod), params)
	return env, uploads, cleanup, nil
}

func requireFields(params *Payload, keys ...string) error {
	for _, key := range keys {
		if v, ok := params.Get(key); !ok || v == nil {
			return fmt.Errorf("%q is missing", key)
		}
	}
	return nil
}

// setFormValues copies form values in a stable order. Repeated fields keep their first value.
func setFormValues(params *Payload, values map[string][]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if vs := values[k]; len(vs) > 0 {
			params.Set(k, vs[0])
		}
	}
}

var _ http.Handler = (*Transport)(nil)
