/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package throttleconfig contains the value types of the throttling configuration:
// rate limits written as "N/s", zone keys and Retry-After settings.
package throttleconfig
