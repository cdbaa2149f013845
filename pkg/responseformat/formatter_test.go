package responseformat

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

type sample struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestWriteStatus(t *testing.T) {
	f := NewFormatter()

	t.Run("json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
		if err := f.WriteStatus(rec, req, http.StatusAccepted, sample{"a", 1.5}, map[string]string{"X-Run": "r1"}); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusAccepted {
			t.Errorf("status = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != JSONContentType {
			t.Errorf("content type = %q", ct)
		}
		if rec.Header().Get("X-Run") != "r1" {
			t.Error("custom header missing")
		}
		var got sample
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got != (sample{"a", 1.5}) {
			t.Errorf("body = %+v, %v", got, err)
		}
	})

	t.Run("msgpack", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/runs?format=msgpack", nil)
		if err := f.WriteResponse(rec, req, sample{"b", 2}, nil); err != nil {
			t.Fatal(err)
		}
		if ct := rec.Header().Get("Content-Type"); ct != MsgPackContentType {
			t.Errorf("content type = %q", ct)
		}
		var got map[string]any
		if err := msgpack.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got["name"] != "b" {
			t.Errorf("name = %v", got["name"])
		}
	})

	t.Run("unencodable", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
		if err := f.WriteResponse(rec, req, sample{"nan", math.NaN()}, nil); err == nil {
			t.Fatal("expected an encoding error")
		}
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}
