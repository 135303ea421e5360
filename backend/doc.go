/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package backend holds what the gateway's backend providers share.
package backend

import (
	"fmt"

	"github.com/acronis/go-rpcgate/gateway"
)

// MsgExecutionFailed prefixes the error message of a failed backend method.
const MsgExecutionFailed = "Error executing"

// Fail reports err of a failed backend method on the call and returns gateway.OutcomeError.
func Fail(call *gateway.Call, err error) gateway.Outcome {
	env := call.Envelope()
	call.Fail(fmt.Sprintf("%s %s.%s", MsgExecutionFailed, env.Class(), env.Method()), err)
	return gateway.OutcomeError
}
