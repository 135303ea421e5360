/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"sync"

	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/txn"
)

// Call is the per-request state handed to backend providers.
// Providers put their result into Out and report failures with Fail.
type Call struct {
	envelope *Envelope
	handle   *txn.Handle
	uploads  Uploads
	logger   log.FieldLogger
	out      *Payload

	mu       sync.Mutex
	failed   bool
	errorMsg string
}

func newCall(env *Envelope, uploads Uploads, logger log.FieldLogger) *Call {
	if uploads == nil {
		uploads = NoUploads
	}
	return &Call{envelope: env, uploads: uploads, logger: logger, out: NewPayload()}
}

// Envelope returns the parsed call.
func (c *Call) Envelope() *Envelope { return c.envelope }

// Handle returns the call's transactional handle, or nil when no transactional resource is configured.
// Providers must not commit or roll it back.
func (c *Call) Handle() *txn.Handle { return c.handle }

// Uploads returns the files sent with the call.
func (c *Call) Uploads() Uploads { return c.uploads }

// Logger returns a logger carrying the request fields.
func (c *Call) Logger() log.FieldLogger { return c.logger }

// Out is the payload of a successful response.
func (c *Call) Out() *Payload { return c.out }

// Fail writes the error response of the call. Only the first write is kept;
// Fail reports whether this one was it.
func (c *Call) Fail(msg string, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return false
	}
	c.failed = true
	c.errorMsg = FlattenError(msg, err)
	return true
}

// Failed reports whether an error response has been written.
func (c *Call) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

func (c *Call) touched() bool {
	return c.Failed() || c.out.Len() > 0
}

// reset drops what a provider wrote to the call.
func (c *Call) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = NewPayload()
	c.failed = false
	c.errorMsg = ""
}

func (c *Call) response(outcome Outcome) *Response {
	if outcome == OutcomeSuccess {
		return NewSuccessResponse(c.out)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Response{ErrorMessage: c.errorMsg}
}
