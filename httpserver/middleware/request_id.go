/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

const (
	headerRequestID         = "X-Request-ID"
	headerInternalRequestID = "X-Int-Request-ID"
)

func newID() string {
	return xid.New().String()
}

// RequestID reads the X-Request-ID header (generating a new id when it is empty)
// and generates an internal request id. Both are put into the request's context
// and returned in the X-Request-ID and X-Int-Request-ID response headers.
func RequestID() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(headerRequestID)
			if requestID == "" {
				requestID = newID()
			}
			internalRequestID := newID()
			rw.Header().Set(headerRequestID, requestID)
			rw.Header().Set(headerInternalRequestID, internalRequestID)

			ctx := NewContextWithInternalRequestID(NewContextWithRequestID(r.Context(), requestID), internalRequestID)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
