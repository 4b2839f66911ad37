package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSON(w, http.StatusOK, map[string]string{"message": "hello"}, discardLogger())

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("X-Content-Type-Options header missing")
	}
	if w.Header().Get("Content-Length") == "" {
		t.Error("Content-Length header missing (buffer-first encoding should set it)")
	}

	var body map[string]string
	decodeData(t, w, &body)
	if body["message"] != "hello" {
		t.Errorf("data.message = %q, want %q", body["message"], "hello")
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, http.StatusBadRequest, "bad_input", "field is required", discardLogger())

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	e := decodeError(t, w)
	if e.Code != "bad_input" || e.Message != "field is required" {
		t.Errorf("error = %+v, want code bad_input, message 'field is required'", e)
	}
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	w := httptest.NewRecorder()

	// Channels cannot be JSON-encoded; buffer-first keeps the 500 clean
	WriteJSON(w, http.StatusOK, map[string]any{"ch": make(chan int)}, discardLogger())

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
