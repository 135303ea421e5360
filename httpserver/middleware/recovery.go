/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/restapi"
)

// RecoveryStackSize defines the size of stack part which will be logged.
const RecoveryStackSize = 8192

type internalErrorResponse struct {
	Error string `json:"error"`
}

// Recovery recovers from panics, logs the panic value with a stacktrace and responds with 500.
func Recovery() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				logger := GetLoggerFromContext(r.Context())
				if p == http.ErrAbortHandler { //nolint:errorlint,goerr113
					// Sentinel panic for aborting a handler, http.Server does not log it either.
					if logger != nil {
						logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
					}
					panic(p)
				}
				if logger != nil {
					stack := make([]byte, RecoveryStackSize)
					stack = stack[:runtime.Stack(stack, false)]
					logger.Error(fmt.Sprintf("Panic: %+v", p), log.String("stack", string(stack)))
				}
				restapi.RespondCodeAndJSON(rw, http.StatusInternalServerError,
					internalErrorResponse{Error: "Internal error."}, logger)
			}()
			next.ServeHTTP(rw, r)
		})
	}
}
