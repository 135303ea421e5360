/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package gateway resolves admitted calls against an ordered chain of backend providers
// and wraps every call into the session and transaction lifecycle.
//
// A call is answered with a Response whose "_Success" field carries the logical outcome.
// The HTTP status code is always 200: callers must not infer failure from it.
package gateway
