/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the gateway's long-lived components (HTTP server, dispatcher, background sweepers)
// as units with a common start/stop lifecycle driven by OS signals.
package service

// Unit is a component with its own lifecycle.
type Unit interface {
	// Start runs the unit. It may return immediately or block for the whole lifetime of the unit.
	// A failure is reported by sending exactly one error to fatalErr before returning;
	// the channel must not be used after Start has returned.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus collectors.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
