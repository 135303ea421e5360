/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/acronis/go-rpcgate/httpserver/middleware"
	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/restapi"
)

// StatusClientClosedRequest is used by Nginx to show that the client closed the request
// before the server could send a response.
const StatusClientClosedRequest = 499

// HealthCheckStatus is a resulting status of the health-check.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult maps component names to their statuses.
type HealthCheckResult = map[string]HealthCheckStatus

// HealthCheck returns statuses of the service's components.
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

// HealthCheckHandler serves the health-check endpoint.
// It responds with 503 when at least one component is not healthy.
type HealthCheckHandler struct {
	healthCheckFn HealthCheck
}

// NewHealthCheckHandler creates a new HealthCheckHandler. A nil fn reports no components.
func NewHealthCheckHandler(fn HealthCheck) *HealthCheckHandler {
	if fn == nil {
		fn = func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{}, ctx.Err()
		}
	}
	return &HealthCheckHandler{fn}
}

// ServeHTTP implements http.Handler.
func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	hcResult, err := h.healthCheckFn(r.Context())
	if err != nil {
		if logger != nil {
			logger.Error("error while checking health", log.Error(err))
		}
		if errors.Is(err, context.Canceled) {
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	respStatus := http.StatusOK
	respData := healthCheckResponseData{Components: map[string]bool{}}
	for name, status := range hcResult {
		respData.Components[name] = status == HealthCheckStatusOK
		if status != HealthCheckStatusOK {
			respStatus = http.StatusServiceUnavailable
		}
	}
	restapi.RespondCodeAndJSON(rw, respStatus, respData, logger)
}
