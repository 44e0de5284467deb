// Package ingress accepts multipart track uploads on /trackupload and feeds
// the decoded items into the processing queues.
package ingress

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxUploadBytes caps one multipart upload.
const MaxUploadBytes = 10 * 1024 * 1024

type fileValue struct {
	filename string
	data     []byte
}

// FormValues holds one parsed multipart form: text fields and file fields,
// both keyed by field name.
type FormValues struct {
	strings map[string]string
	files   map[string]fileValue
}

func (v *FormValues) StringValue(name string) (string, bool) {
	s, ok := v.strings[name]
	return s, ok
}

func (v *FormValues) FileValue(name string) ([]byte, bool) {
	f, ok := v.files[name]
	return f.data, ok
}

// ParseForm reads the whole multipart body, enforcing the size cap.
func ParseForm(r *http.Request, limit int64) (*FormValues, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, limit)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("opening multipart reader: %w", err)
	}

	var values = &FormValues{
		strings: make(map[string]string),
		files:   make(map[string]fileValue),
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading multipart part: %w", err)
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("reading part %q: %w", part.FormName(), err)
		}

		if part.FileName() == "" {
			values.strings[part.FormName()] = string(data)
		} else {
			values.files[part.FormName()] = fileValue{filename: part.FileName(), data: data}
		}
	}
	return values, nil
}
