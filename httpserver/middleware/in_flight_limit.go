/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/restapi"
)

// InFlightLimitRetryAfter is the value of the Retry-After header of rejected requests, in seconds.
const InFlightLimitRetryAfter = 5

type inFlightLimitResponse struct {
	Error string `json:"error"`
}

// InFlightLimit rejects requests with 503 while limit requests are already being served.
// Requests to excluded endpoints are neither limited nor counted.
func InFlightLimit(limit int, excludedEndpoints []string) (func(next http.Handler) http.Handler, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit should be positive, got %d", limit)
	}
	slots := make(chan struct{}, limit)
	excluded := newEndpointMatcher(excludedEndpoints)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if excluded.match(r.URL.Path) {
				next.ServeHTTP(rw, r)
				return
			}
			select {
			case slots <- struct{}{}:
			default:
				logger := GetLoggerFromContext(r.Context())
				if logger != nil {
					logger.Warn("too many in-flight requests, request is rejected", log.Int("limit", limit))
				}
				rw.Header().Set("Retry-After", strconv.Itoa(InFlightLimitRetryAfter))
				restapi.RespondCodeAndJSON(rw, http.StatusServiceUnavailable,
					inFlightLimitResponse{Error: "Too many in-flight requests."}, logger)
				return
			}
			defer func() { <-slots }()
			next.ServeHTTP(rw, r)
		})
	}, nil
}
