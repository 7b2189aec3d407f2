package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSONOK(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"runs": 3})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var got map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["runs"] != 3 {
		t.Errorf("body = %v", got)
	}
}

func TestErrorHelpers(t *testing.T) {
	cases := []struct {
		name  string
		write func(http.ResponseWriter)
		code  int
	}{
		{"method not allowed", MethodNotAllowed, http.StatusMethodNotAllowed},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad") }, http.StatusBadRequest},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "missing") }, http.StatusNotFound},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		c.write(rec)
		if rec.Code != c.code {
			t.Errorf("%s: status = %d, want %d", c.name, rec.Code, c.code)
		}
		var got map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("%s: decode body: %v", c.name, err)
		}
		if got["error"] == "" {
			t.Errorf("%s: missing error message in %v", c.name, got)
		}
	}
}
