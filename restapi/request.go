/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"code.cloudfoundry.org/bytefmt"
)

// MalformedRequestError is an error that occurs in case of incorrect request.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

// Error returns a string representation of MalformedRequestError.
func (e *MalformedRequestError) Error() string {
	return e.Message
}

// NewTooLargeMalformedRequestError creates a new MalformedRequestError for case when request body is too large.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// SetRequestMaxBodySize wraps request body with a reader which limits the number of bytes to read.
func SetRequestMaxBodySize(w http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = &maxBytesReader{ReadCloser: http.MaxBytesReader(w, r.Body, int64(maxSizeBytes)), n: maxSizeBytes}
}

type maxBytesReader struct {
	io.ReadCloser
	n uint64
}

func (r *maxBytesReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		err = NewTooLargeMalformedRequestError(r.n)
	}
	return n, err
}

// DecodeRequestJSON reads the request body and decodes it as a single JSON value.
// A request without Content-Type is treated as JSON.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	if reqContentType := r.Header.Get("Content-Type"); reqContentType != "" {
		contentType, _, err := mime.ParseMediaType(reqContentType)
		if err != nil {
			return &MalformedRequestError{
				http.StatusUnsupportedMediaType,
				fmt.Sprintf("failed to parse Content-Type header for request: %s", err),
			}
		}
		if contentType != ContentTypeAppJSON {
			return &MalformedRequestError{
				http.StatusUnsupportedMediaType,
				fmt.Sprintf("Content-Type %q is not supported.", contentType),
			}
		}
	}

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var tooLargeErr *MalformedRequestError
		switch {
		case errors.Is(err, io.EOF):
			return &MalformedRequestError{http.StatusBadRequest, "Request body must not be empty."}
		case errors.Is(err, io.ErrUnexpectedEOF):
			return &MalformedRequestError{http.StatusBadRequest, "Request body contains badly-formed JSON."}
		case errors.As(err, &syntaxErr):
			return &MalformedRequestError{
				http.StatusBadRequest,
				fmt.Sprintf("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset),
			}
		case errors.As(err, &tooLargeErr):
			return tooLargeErr
		default:
			return &MalformedRequestError{http.StatusBadRequest, err.Error()}
		}
	}

	// Decoder is designed to decode streams of JSON objects, but we need to prevent this behavior.
	if decoder.More() {
		return &MalformedRequestError{http.StatusBadRequest, "Request body must only contain a single JSON object."}
	}
	return nil
}
