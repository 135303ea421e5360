/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package throttle limits the rate of incoming HTTP requests by zones described in the "throttle" section.
package throttle

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-rpcgate/httpserver/middleware"
	"github.com/acronis/go-rpcgate/internal/ratelimit"
	"github.com/acronis/go-rpcgate/internal/throttleconfig"
	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/restapi"
)

// ZoneLogFieldName is a logged field that contains the name of the zone that rejected a request.
const ZoneLogFieldName = "throttle_zone"

// RejectParams describes a rejected request.
type RejectParams struct {
	Zone       string
	Key        string
	RetryAfter time.Duration
}

// OnRejectFunc writes the response to a request rejected by a zone. logger is never nil.
type OnRejectFunc func(rw http.ResponseWriter, r *http.Request, params RejectParams, logger log.FieldLogger)

// OnErrorFunc writes the response to a request that could not be checked against a zone.
type OnErrorFunc func(rw http.ResponseWriter, r *http.Request, err error, logger log.FieldLogger)

// MiddlewareOpts contains optional parameters for Middleware.
type MiddlewareOpts struct {
	// OnReject defaults to DefaultOnReject.
	OnReject OnRejectFunc

	// OnError defaults to DefaultOnError.
	OnError OnErrorFunc

	// Logger is used when the request context carries no logger.
	Logger log.FieldLogger
}

type rejectResponse struct {
	Error string `json:"error"`
}

// DefaultOnReject answers with 429 Too Many Requests.
func DefaultOnReject(rw http.ResponseWriter, _ *http.Request, _ RejectParams, logger log.FieldLogger) {
	restapi.RespondCodeAndJSON(rw, http.StatusTooManyRequests, rejectResponse{Error: "Too many requests."}, logger)
}

// DefaultOnError answers with 500 Internal Server Error.
func DefaultOnError(rw http.ResponseWriter, _ *http.Request, _ error, logger log.FieldLogger) {
	restapi.RespondCodeAndJSON(rw, http.StatusInternalServerError, rejectResponse{Error: "Internal error."}, logger)
}

type zone struct {
	name          string
	limiter       ratelimit.Limiter
	getKey        func(r *http.Request) (key string, bypass bool, err error)
	getRetryAfter func(estimated time.Duration) time.Duration
	dryRun        bool
}

// Middleware passes a request through the zones of cfg.RateLimits in order.
// The first zone whose limit is exceeded rejects it, unless the zone is in dry-run mode.
// mc may be nil.
func Middleware(cfg *Config, mc MetricsCollector, opts MiddlewareOpts) (func(next http.Handler) http.Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if mc == nil {
		mc = disabledMetrics{}
	}
	if opts.OnReject == nil {
		opts.OnReject = DefaultOnReject
	}
	if opts.OnError == nil {
		opts.OnError = DefaultOnError
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}

	zones := make([]zone, 0, len(cfg.RateLimits))
	for _, ref := range cfg.RateLimits {
		z, err := makeZone(ref.Zone, cfg.RateLimitZones[ref.Zone])
		if err != nil {
			return nil, fmt.Errorf("make rate limit zone %q: %w", ref.Zone, err)
		}
		zones = append(zones, z)
	}

	return func(next http.Handler) http.Handler {
		if len(zones) == 0 {
			return next
		}
		return &handler{next: next, zones: zones, mc: mc, opts: opts}
	}, nil
}

type handler struct {
	next  http.Handler
	zones []zone
	mc    MetricsCollector
	opts  MiddlewareOpts
}

func (h *handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = h.opts.Logger
	}
	for i := range h.zones {
		z := &h.zones[i]
		allow, key, retryAfter, err := z.allow(r)
		if err != nil {
			logger.Error("rate limiting failed", log.String(ZoneLogFieldName, z.name), log.Error(err))
			h.opts.OnError(rw, r, err, logger)
			return
		}
		if !allow && !h.reject(rw, r, z, key, retryAfter, logger) {
			return
		}
	}
	h.next.ServeHTTP(rw, r)
}

func (z *zone) allow(r *http.Request) (allow bool, key string, retryAfter time.Duration, err error) {
	key, bypass, err := z.getKey(r)
	if err != nil {
		return false, key, 0, fmt.Errorf("get key: %w", err)
	}
	if bypass {
		return true, key, 0, nil
	}
	allow, retryAfter, err = z.limiter.Allow(r.Context(), key)
	if err != nil {
		return false, key, 0, fmt.Errorf("rate limit: %w", err)
	}
	return allow, key, retryAfter, nil
}

// reject reports whether the request may go on, which is the case for dry-run zones only.
func (h *handler) reject(
	rw http.ResponseWriter, r *http.Request, z *zone, key string, estimated time.Duration, logger log.FieldLogger,
) bool {
	h.mc.IncRateLimitRejects(z.name, z.dryRun)
	logger = logger.With(log.String(ZoneLogFieldName, z.name), log.String("throttle_key", key))
	if z.dryRun {
		logger.Warn("rate limit exceeded, continuing in dry-run mode")
		return true
	}
	logger.Warn("rate limit exceeded, request is rejected")
	retryAfter := z.getRetryAfter(estimated)
	if retryAfter > 0 {
		rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
	h.opts.OnReject(rw, r, RejectParams{Zone: z.name, Key: key, RetryAfter: retryAfter}, logger)
	return false
}

func makeZone(name string, cfg RateLimitZoneConfig) (zone, error) {
	rate := ratelimit.Rate{Count: cfg.RateLimit.Count, Duration: cfg.RateLimit.Duration}
	var limiter ratelimit.Limiter
	var err error
	switch cfg.Alg {
	case "", throttleconfig.RateLimitAlgLeakyBucket:
		limiter, err = ratelimit.NewLeakyBucketLimiter(rate, cfg.BurstLimit, cfg.MaxKeys)
	case throttleconfig.RateLimitAlgSlidingWindow:
		limiter, err = ratelimit.NewSlidingWindowLimiter(rate, cfg.MaxKeys)
	default:
		err = fmt.Errorf("unknown rate limit alg %q", cfg.Alg)
	}
	if err != nil {
		return zone{}, err
	}
	getKey, err := makeGetKeyFunc(cfg.Key, cfg.ExcludedKeys, cfg.IncludedKeys)
	if err != nil {
		return zone{}, err
	}
	return zone{name: name, limiter: limiter, getKey: getKey, getRetryAfter: cfg.ResponseRetryAfter.Get, dryRun: cfg.DryRun}, nil
}

func makeGetKeyFunc(
	cfg throttleconfig.ZoneKeyConfig, excludedKeys, includedKeys []string,
) (func(r *http.Request) (string, bool, error), error) {
	var getKey func(r *http.Request) (string, bool, error)
	switch cfg.Type {
	case throttleconfig.ZoneKeyTypeNoKey:
		// All requests share one budget; excluded and included keys do not apply.
		return func(*http.Request) (string, bool, error) { return "", false, nil }, nil
	case throttleconfig.ZoneKeyTypeRemoteAddr:
		getKey = func(r *http.Request) (string, bool, error) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			return host, false, err
		}
	case throttleconfig.ZoneKeyTypeHeader:
		getKey = func(r *http.Request) (string, bool, error) {
			val := strings.TrimSpace(r.Header.Get(cfg.HeaderName))
			return val, val == "" && !cfg.NoBypassEmpty, nil
		}
	default:
		return nil, fmt.Errorf("unknown key type %q", cfg.Type)
	}

	patterns, exclude := includedKeys, false
	if len(excludedKeys) != 0 {
		patterns, exclude = excludedKeys, true
	}
	if len(patterns) == 0 {
		return getKey, nil
	}
	matchers := make([]func(string) bool, 0, len(patterns))
	for _, p := range patterns {
		matchers = append(matchers, glob.Compile(p))
	}
	return func(r *http.Request) (string, bool, error) {
		key, bypass, err := getKey(r)
		if err != nil || bypass {
			return key, bypass, err
		}
		matched := false
		for _, match := range matchers {
			if match(key) {
				matched = true
				break
			}
		}
		return key, matched == exclude, nil
	}, nil
}
