/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"context"

	"github.com/acronis/go-rpcgate/log"
)

// Provider is a backend able to execute some calls.
//
// Attempt must return OutcomeNotFound without touching the call when it does not know it.
// On OutcomeError the provider must have called Call.Fail.
// On OutcomeSuccess the result is expected in Call.Out.
type Provider interface {
	Attempt(ctx context.Context, call *Call) Outcome
}

// ProviderFunc is an adapter to allow the use of ordinary functions as Provider.
type ProviderFunc func(ctx context.Context, call *Call) Outcome

// Attempt implements Provider.
func (f ProviderFunc) Attempt(ctx context.Context, call *Call) Outcome {
	return f(ctx, call)
}

// Chain tries providers in a fixed order until one of them resolves the call.
type Chain struct {
	providers []Provider
	logger    log.FieldLogger
}

// NewChain creates a Chain. Providers are tried in the given order.
func NewChain(logger log.FieldLogger, providers ...Provider) *Chain {
	return &Chain{providers: append([]Provider(nil), providers...), logger: logger}
}

// Len returns the number of providers.
func (ch *Chain) Len() int {
	return len(ch.providers)
}

// Resolve returns the first OutcomeSuccess or OutcomeError, or OutcomeNotFound when no provider knows the call.
func (ch *Chain) Resolve(ctx context.Context, call *Call) Outcome {
	for i, p := range ch.providers {
		switch outcome := p.Attempt(ctx, call); outcome {
		case OutcomeSuccess, OutcomeError:
			return outcome
		}
		if call.touched() {
			call.Logger().Warn("backend provider reported not found but modified the call",
				log.Int("provider", i))
			call.reset()
		}
	}
	return OutcomeNotFound
}
