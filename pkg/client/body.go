package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
)

// Body is an encoded request payload.
type Body struct {
	Data        []byte
	ContentType string
}

// NoBody is an empty payload.
var NoBody = Body{}

// JSONBody encodes v as a JSON payload.
func JSONBody(v any) (Body, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Body{}, fmt.Errorf("encode json body: %w", err)
	}
	return Body{Data: data, ContentType: "application/json"}, nil
}

// File is a multipart file part, e.g. an uploaded thesis document.
type File struct {
	Field    string
	Filename string
	Content  io.Reader
}

// MultipartBody encodes form fields and files as multipart/form-data.
// Fields are written in key order so payloads are reproducible.
func MultipartBody(fields map[string]string, files ...File) (Body, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.WriteField(name, fields[name]); err != nil {
			return Body{}, fmt.Errorf("write field %s: %w", name, err)
		}
	}

	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return Body{}, fmt.Errorf("create form file %s: %w", f.Filename, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return Body{}, fmt.Errorf("copy form file %s: %w", f.Filename, err)
		}
	}

	if err := w.Close(); err != nil {
		return Body{}, fmt.Errorf("close multipart writer: %w", err)
	}
	return Body{Data: buf.Bytes(), ContentType: w.FormDataContentType()}, nil
}
