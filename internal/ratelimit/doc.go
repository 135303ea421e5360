/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit implements the limiters behind the throttling middleware:
// GCRA (a leaky bucket variant) on top of throttled/v2 and a sliding window counter.
// Both keep their state in memory and may count requests per key.
package ratelimit
