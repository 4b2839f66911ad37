package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lorebase/lorebase/internal/knowledge"
)

// maxDocumentBytes caps the request body for document endpoints.
const maxDocumentBytes = 1 << 20 // 1 MiB

// documentsHandler holds dependencies for the document lifecycle endpoints.
type documentsHandler struct {
	knowledge Knowledge
	logger    *slog.Logger
}

// documentRequest is the request body for creating or updating a document.
type documentRequest struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// create handles POST /api/v1/documents. The document is chunked, embedded,
// and indexed; a missing ID is generated server-side.
func (h *documentsHandler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	}

	doc := knowledge.Document{
		ID:       id,
		Title:    req.Title,
		Content:  req.Content,
		Metadata: req.Metadata,
	}
	if err := h.knowledge.AddDocument(r.Context(), doc); err != nil {
		h.writeKnowledgeError(w, r, "adding document", err)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]string{"id": id}, h.logger)
}

// update handles PUT /api/v1/documents/{id}, replacing all chunks of the
// document with chunks of the new content.
func (h *documentsHandler) update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	req, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}

	doc := knowledge.Document{
		ID:       id,
		Title:    req.Title,
		Content:  req.Content,
		Metadata: req.Metadata,
	}
	if err := h.knowledge.UpdateDocument(r.Context(), doc); err != nil {
		h.writeKnowledgeError(w, r, "updating document", err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"id": id}, h.logger)
}

// remove handles DELETE /api/v1/documents/{id}. Removing a document that
// has no chunks is a success, matching the knowledge layer's semantics.
func (h *documentsHandler) remove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.knowledge.RemoveDocument(r.Context(), id); err != nil {
		h.writeKnowledgeError(w, r, "removing document", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeDocument parses and validates a document request body. On failure
// the error response has already been written and ok is false.
func (h *documentsHandler) decodeDocument(w http.ResponseWriter, r *http.Request) (documentRequest, bool) {
	var req documentRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", h.logger)
		return documentRequest{}, false
	}

	if strings.TrimSpace(req.Content) == "" {
		WriteError(w, http.StatusBadRequest, "missing_content", "content is required", h.logger)
		return documentRequest{}, false
	}

	return req, true
}

// writeKnowledgeError maps knowledge-layer sentinels onto HTTP statuses.
// Internal details are logged, not leaked to clients.
func (h *documentsHandler) writeKnowledgeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, knowledge.ErrNotInitialized):
		WriteError(w, http.StatusServiceUnavailable, "not_ready", "knowledge layer not initialized", h.logger)
	case errors.Is(err, knowledge.ErrEmptyDocumentID):
		WriteError(w, http.StatusBadRequest, "missing_id", "document id is required", h.logger)
	default:
		h.logger.Error(op, "error", err, "path", r.URL.Path)
		WriteError(w, http.StatusInternalServerError, "internal_error", op+" failed", h.logger)
	}
}
