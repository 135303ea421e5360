/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-rpcgate/dispatch"
	"github.com/acronis/go-rpcgate/log/logtest"
)

// echoProvider serves "Echo.Say" by copying the "text" parameter and describing uploads.
var echoProvider = ProviderFunc(func(_ context.Context, call *Call) Outcome {
	env := call.Envelope()
	if env.Class() == "Echo" && env.Method() == "Ratio" {
		call.Out().Set("ratio", math.Inf(1))
		return OutcomeSuccess
	}
	if env.Class() != "Echo" || env.Method() != "Say" {
		return OutcomeNotFound
	}
	call.Out().Set("text", env.ParamString("text"))
	uploads := call.Uploads()
	if uploads.Count() > 0 {
		var names, contents []string
		for i := 0; i < uploads.Count(); i++ {
			name, _ := uploads.Name(i)
			names = append(names, name)
			path, err := uploads.SaveToTempFile(i)
			if err != nil {
				call.Fail("Unable to save upload", err)
				return OutcomeError
			}
			data, err := os.ReadFile(path)
			_ = os.Remove(path)
			if err != nil {
				call.Fail("Unable to read upload", err)
				return OutcomeError
			}
			contents = append(contents, string(data))
		}
		call.Out().Set("files", names)
		call.Out().Set("contents", contents)
	}
	return OutcomeSuccess
})

func newTestTransport(t *testing.T, opts TransportOpts) *Transport {
	t.Helper()
	rec := logtest.NewRecorder()
	d := dispatch.New(&dispatch.Config{Workers: 2, MaxRestarts: 1, RestartDelay: time.Millisecond}, rec, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	require.Eventually(t, d.Running, 3*time.Second, time.Millisecond)

	h := NewHandler(NewChain(rec, echoProvider), rec, HandlerOpts{})
	return NewTransport(d, h, rec, opts)
}

func serve(t *testing.T, handler http.Handler, req *http.Request) map[string]interface{} {
	t.Helper()
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

func TestTransport_JSON(t *testing.T) {
	tr := newTestTransport(t, TransportOpts{})

	req := httptest.NewRequest(http.MethodPost, "/rest",
		strings.NewReader(`{"_class":"Echo","_method":"Say","text":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	body := serve(t, tr, req)
	require.Equal(t, map[string]interface{}{"_Success": true, "text": "hello"}, body)

	req = httptest.NewRequest(http.MethodPost, "/rest", strings.NewReader(`{"_class":"Foo","_method":"Bar"}`))
	body = serve(t, tr, req)
	require.Equal(t, map[string]interface{}{
		"_Success": false, "_ErrorMessage": "No back-end code found for Foo",
	}, body)

	req = httptest.NewRequest(http.MethodPost, "/rest", strings.NewReader(`{"_class":"","_method":"LoginRequired"}`))
	body = serve(t, tr, req)
	require.Equal(t, map[string]interface{}{"_Success": true, "LoginRequired": false}, body)
}

func TestTransport_UnencodablePayload(t *testing.T) {
	tr := newTestTransport(t, TransportOpts{})

	req := httptest.NewRequest(http.MethodPost, "/rest", strings.NewReader(`{"_class":"Echo","_method":"Ratio"}`))
	body := serve(t, tr, req)
	require.Equal(t, map[string]interface{}{
		"_Success":      false,
		"_ErrorMessage": `Internal error marshal "ratio": json: unsupported value: +Inf`,
	}, body)
}

func TestTransport_Form(t *testing.T) {
	tr := newTestTransport(t, TransportOpts{})

	form := url.Values{"_class": {"Echo"}, "_method": {"Say"}, "text": {"from form"}}
	req := httptest.NewRequest(http.MethodPost, "/rest", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body := serve(t, tr, req)
	require.Equal(t, map[string]interface{}{"_Success": true, "text": "from form"}, body)
}

func TestTransport_MultipartUploads(t *testing.T) {
	tr := newTestTransport(t, TransportOpts{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("_class", "Echo"))
	require.NoError(t, mw.WriteField("_method", "Say"))
	require.NoError(t, mw.WriteField("text", "with files"))
	for i, f := range []struct{ name, content string }{{"a.txt", "first"}, {"b.bin", "second"}} {
		fw, err := mw.CreateFormFile(UploadFieldPrefix+string(rune('0'+i)), f.name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, f.content)
		require.NoError(t, err)
	}
	// Not a part of the sequence because "file-2" is missing.
	fw, err := mw.CreateFormFile(UploadFieldPrefix+"3", "c.txt")
	require.NoError(t, err)
	_, err = io.WriteString(fw, "ignored")
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/rest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	body := serve(t, tr, req)
	require.Equal(t, map[string]interface{}{
		"_Success": true,
		"text":     "with files",
		"files":    []interface{}{"a.txt", "b.bin"},
		"contents": []interface{}{"first", "second"},
	}, body)
}

func TestTransport_MalformedRequest(t *testing.T) {
	tr := newTestTransport(t, TransportOpts{MaxRequestSize: 64})

	tests := []struct {
		name    string
		method  string
		ctype   string
		body    string
		wantMsg string
	}{
		{"missing method", http.MethodPost, "", `{"_class":"Echo"}`, `Malformed request "_method" is missing`},
		{"missing class", http.MethodPost, "", `{"_method":"Say"}`, `Malformed request "_class" is missing`},
		{"not json", http.MethodPost, "application/json", `{"_class":`, "Malformed request Request body contains badly-formed JSON."},
		{"unsupported type", http.MethodPost, "text/plain", `hi`, `Malformed request Content-Type "text/plain" is not supported.`},
		{"wrong http method", http.MethodGet, "", "", "Malformed request method GET is not allowed"},
		{"too large", http.MethodPost, "", `{"_class":"Echo","_method":"Say","text":"` + strings.Repeat("x", 100) + `"}`,
			"Malformed request Request body must not be larger than 64B."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/rest", strings.NewReader(tt.body))
			if tt.ctype != "" {
				req.Header.Set("Content-Type", tt.ctype)
			}
			body := serve(t, tr, req)
			require.Equal(t, false, body[FieldSuccess])
			require.Equal(t, tt.wantMsg, body[FieldErrorMessage])
		})
	}
}

type admitterFunc func(pk *dispatch.Packet) error

func (f admitterFunc) Admit(pk *dispatch.Packet) error { return f(pk) }

func TestTransport_NotAdmitted(t *testing.T) {
	rec := logtest.NewRecorder()
	h := NewHandler(NewChain(rec, echoProvider), rec, HandlerOpts{})
	newReq := func() *http.Request {
		return httptest.NewRequest(http.MethodPost, "/rest", strings.NewReader(`{"_class":"Echo","_method":"Say"}`))
	}

	tr := NewTransport(admitterFunc(func(*dispatch.Packet) error { return dispatch.ErrQueueFull }), h, rec, TransportOpts{})
	body := serve(t, tr, newReq())
	require.Equal(t, map[string]interface{}{"_Success": false, "_ErrorMessage": "Request queue is full"}, body)

	tr = NewTransport(admitterFunc(func(*dispatch.Packet) error { return dispatch.ErrQueueClosed }), h, rec, TransportOpts{})
	body = serve(t, tr, newReq())
	require.Equal(t, "Gateway is not accepting calls admission queue is closed", body[FieldErrorMessage])

	tr = NewTransport(admitterFunc(func(pk *dispatch.Packet) error {
		go pk.Abort(dispatch.ErrDispatcherStopped)
		return nil
	}), h, rec, TransportOpts{})
	body = serve(t, tr, newReq())
	require.Equal(t, "Internal error dispatcher stopped", body[FieldErrorMessage])
}

func TestTransport_AdmissionRateLimit(t *testing.T) {
	tr := newTestTransport(t, TransportOpts{AdmissionRate: 0.001, AdmissionBurst: 1})
	newReq := func() *http.Request {
		return httptest.NewRequest(http.MethodPost, "/rest", strings.NewReader(`{"_class":"Echo","_method":"Say"}`))
	}
	require.Equal(t, true, serve(t, tr, newReq())[FieldSuccess])
	body := serve(t, tr, newReq())
	require.Equal(t, false, body[FieldSuccess])
	require.Equal(t, "Too many requests", body[FieldErrorMessage])
}
