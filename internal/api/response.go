package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a success envelope {"data": payload} with the given
// status code.
func WriteJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	writeEnvelope(w, status, map[string]any{"data": data}, logger)
}

// WriteError writes an error envelope {"error": {"code": ..., "message": ...}}.
func WriteError(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	writeEnvelope(w, status, map[string]any{"error": ErrorBody{Code: code, Message: message}}, logger)
}

// writeEnvelope encodes buffer-first so headers are only sent after
// successful encoding; an encoding failure still produces a proper 500.
func writeEnvelope(w http.ResponseWriter, status int, payload any, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		logger.Error("encoding JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected
		logger.Debug("writing response body", "error", err)
	}
}
