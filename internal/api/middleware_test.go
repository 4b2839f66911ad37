package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lorebase/lorebase/internal/log"
)

func TestRecoveryMiddleware_PanicReturns500(t *testing.T) {
	handler := recoveryMiddleware(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/boom", nil)
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if got := decodeError(t, w).Code; got != "internal_error" {
		t.Errorf("error code = %q, want %q", got, "internal_error")
	}
}

func TestRecoveryMiddleware_PanicAfterHeadersSent(t *testing.T) {
	handler := recoveryMiddleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		panic("too late")
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/boom", nil)
	handler.ServeHTTP(w, r)

	// Status is committed; the middleware must not write a second response
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Errorf("body = %q, want no error payload after committed headers", w.Body.String())
	}
}

func TestLoggingMiddleware_LogsRequest(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := log.NewWithWriter(buf, log.Config{Level: slog.LevelDebug})

	handler := loggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/missing", nil)
	handler.ServeHTTP(w, r)

	out := buf.String()
	if !strings.Contains(out, "status=404") {
		t.Errorf("log output missing status: %s", out)
	}
	if !strings.Contains(out, "path=/missing") {
		t.Errorf("log output missing path: %s", out)
	}
	if !strings.Contains(out, "bytes=4") {
		t.Errorf("log output missing byte count: %s", out)
	}
}

func TestLoggingWriter_DefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	lw := &loggingWriter{w: rec}

	if _, err := lw.Write([]byte("implicit ok")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if lw.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want %d after implicit WriteHeader", lw.statusCode, http.StatusOK)
	}
	if lw.bytesWritten != int64(len("implicit ok")) {
		t.Errorf("bytesWritten = %d, want %d", lw.bytesWritten, len("implicit ok"))
	}
}
