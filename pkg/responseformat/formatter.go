// Package responseformat writes API responses as JSON or, when the request
// carries format=msgpack, as MessagePack.
package responseformat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// Content types written by the formatter.
const (
	JSONContentType    = "application/json"
	MsgPackContentType = "application/x-msgpack"
)

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct{}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// WantsMsgPack reports whether the request asked for MessagePack.
func (f *Formatter) WantsMsgPack(req *http.Request) bool {
	return req.URL.Query().Get("format") == "msgpack"
}

// WriteResponse writes data with status 200. JSON is the default format.
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, data any, headers map[string]string) error {
	return f.WriteStatus(w, req, http.StatusOK, data, headers)
}

// WriteStatus writes data with the given status code. The body is encoded
// before any header is sent; an encoding failure becomes a 500.
func (f *Formatter) WriteStatus(w http.ResponseWriter, req *http.Request, status int, data any, headers map[string]string) error {
	var body bytes.Buffer
	contentType := JSONContentType
	var err error
	if f.WantsMsgPack(req) {
		contentType = MsgPackContentType
		encoder := msgpack.NewEncoder(&body)
		encoder.SetCustomStructTag("json") // Use json tags for MessagePack
		err = encoder.Encode(data)
	} else {
		err = json.NewEncoder(&body).Encode(data)
	}
	if err != nil {
		http.Error(w, "error encoding response", http.StatusInternalServerError)
		return fmt.Errorf("encoding %s response: %w", contentType, err)
	}

	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, err = w.Write(body.Bytes())
	return err
}

// WriteRaw writes pre-encoded bytes.
func (f *Formatter) WriteRaw(w http.ResponseWriter, contentType string, b []byte) error {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", contentType)
	_, err := w.Write(b)
	return err
}
