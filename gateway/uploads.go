/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"strconv"
)

// UploadFieldPrefix is the prefix of the form fields carrying files: "file-0", "file-1", ...
const UploadFieldPrefix = "file-"

// Uploads gives backends access to the files sent with a call.
type Uploads interface {
	// Count returns the number of files.
	Count() int
	// Name returns the client-side file name of the i-th file.
	Name(i int) (string, bool)
	// Open returns the content of the i-th file. The caller must close it.
	Open(i int) (io.ReadCloser, bool)
	// SaveToTempFile copies the i-th file into a new temporary file and returns its path.
	// The caller owns the file.
	SaveToTempFile(i int) (string, error)
}

// NoUploads is used for calls without files.
var NoUploads Uploads = formUploads{}

type formUploads struct {
	files []*multipart.FileHeader
}

// NewFormUploads collects the "file-N" parts of a parsed multipart form.
// Counting stops at the first missing index.
func NewFormUploads(form *multipart.Form) Uploads {
	if form == nil {
		return NoUploads
	}
	var files []*multipart.FileHeader
	for i := 0; ; i++ {
		fhs := form.File[UploadFieldPrefix+strconv.Itoa(i)]
		if len(fhs) == 0 {
			break
		}
		files = append(files, fhs[0])
	}
	return formUploads{files: files}
}

func (u formUploads) Count() int {
	return len(u.files)
}

func (u formUploads) Name(i int) (string, bool) {
	if i < 0 || i >= len(u.files) {
		return "", false
	}
	return u.files[i].Filename, true
}

func (u formUploads) Open(i int) (io.ReadCloser, bool) {
	if i < 0 || i >= len(u.files) {
		return nil, false
	}
	f, err := u.files[i].Open()
	if err != nil {
		return nil, false
	}
	return f, true
}

func (u formUploads) SaveToTempFile(i int) (path string, err error) {
	src, ok := u.Open(i)
	if !ok {
		return "", fmt.Errorf("upload %d does not exist", i)
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	dst, err := os.CreateTemp("", "rpcgate-upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err = io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("copy upload %d: %w", i, err)
	}
	if err = dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return dst.Name(), nil
}
