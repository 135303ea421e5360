/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"bytes"
	"encoding/json"
)

// Reserved request fields.
const (
	FieldClass        = "_class"
	FieldMethod       = "_method"
	FieldSessionToken = "_uuid"
)

// Reserved response fields.
const (
	FieldSuccess      = "_Success"
	FieldErrorMessage = "_ErrorMessage"
)

// Envelope is a parsed call. It is not modified after parsing.
type Envelope struct {
	class    string
	method   string
	token    string
	hasToken bool
	params   *Payload
}

// NewEnvelope creates an Envelope. The reserved fields are removed from params.
// A nil params is treated as empty.
func NewEnvelope(class, method string, params *Payload) *Envelope {
	env := &Envelope{class: class, method: method}
	if params == nil {
		env.params = NewPayload()
		return env
	}
	env.params = params.Clone()
	if v, ok := env.params.Get(FieldSessionToken); ok && v != nil {
		env.token, env.hasToken = env.params.GetString(FieldSessionToken), true
	}
	env.params.Delete(FieldClass)
	env.params.Delete(FieldMethod)
	env.params.Delete(FieldSessionToken)
	return env
}

// Class returns the target class. An empty class addresses the built-in pseudo-methods.
func (e *Envelope) Class() string { return e.class }

// Method returns the target method.
func (e *Envelope) Method() string { return e.method }

// SessionToken returns the token sent with the call, if any.
func (e *Envelope) SessionToken() (string, bool) { return e.token, e.hasToken }

// Param returns a call parameter.
func (e *Envelope) Param(key string) (interface{}, bool) { return e.params.Get(key) }

// ParamString returns a call parameter converted to a string.
func (e *Envelope) ParamString(key string) string { return e.params.GetString(key) }

// Params returns a copy of the call parameters.
func (e *Envelope) Params() *Payload { return e.params.Clone() }

// Outcome is the result of an attempt to resolve a call.
type Outcome int

// Outcome values.
const (
	// OutcomeNotFound means the provider does not know the call and left it untouched.
	OutcomeNotFound Outcome = iota
	// OutcomeSuccess means the call was executed and its output is in Call.Out.
	OutcomeSuccess
	// OutcomeError means the call failed and the provider has already reported it with Call.Fail.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	default:
		return "not_found"
	}
}

// Response is what the caller receives.
// Payload fields are written only on success, ErrorMessage only on failure.
type Response struct {
	Success      bool
	Payload      *Payload
	ErrorMessage string

	// encoded is the body fixed by encode. Later changes to the fields are not reflected in it.
	encoded []byte
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(payload *Payload) *Response {
	return &Response{Success: true, Payload: payload}
}

// NewErrorResponse creates a failed response with the flattened message.
func NewErrorResponse(msg string, err error) *Response {
	return &Response{ErrorMessage: FlattenError(msg, err)}
}

var reservedResponseFields = map[string]bool{FieldSuccess: true, FieldErrorMessage: true}

// MarshalJSON implements json.Marshaler.
func (r *Response) MarshalJSON() ([]byte, error) {
	if r.encoded != nil {
		return r.encoded, nil
	}
	return r.marshal()
}

// encode fixes the body of the response, so a payload that cannot be encoded is detected
// before the call's transaction is finalized.
func (r *Response) encode() error {
	body, err := r.marshal()
	if err != nil {
		return err
	}
	r.encoded = body
	return nil
}

func (r *Response) marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"` + FieldSuccess + `":`)
	if !r.Success {
		buf.WriteString(`false,"` + FieldErrorMessage + `":`)
		msg, err := json.Marshal(r.ErrorMessage)
		if err != nil {
			return nil, err
		}
		buf.Write(msg)
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	buf.WriteString("true")
	if r.Payload != nil {
		var fields bytes.Buffer
		if err := r.Payload.writeFields(&fields, reservedResponseFields); err != nil {
			return nil, err
		}
		if fields.Len() > 0 {
			buf.WriteByte(',')
			buf.Write(fields.Bytes())
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FlattenError builds the message shown to callers: msg followed by the error text, if any.
func FlattenError(msg string, err error) string {
	if err == nil {
		return msg
	}
	if msg == "" {
		return err.Error()
	}
	return msg + " " + err.Error()
}
