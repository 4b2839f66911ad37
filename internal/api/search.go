package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/lorebase/lorebase/internal/knowledge"
)

const (
	// maxSearchQueryLength is the maximum allowed query length in bytes.
	maxSearchQueryLength = 1000

	// filterParamPrefix marks query parameters that become metadata filters:
	// filter.source=wiki filters on metadata key "source".
	filterParamPrefix = "filter."

	// defaultAPIUser attributes searches with no explicit user_id.
	defaultAPIUser = "api"
)

// searchHandler holds dependencies for the search endpoint.
type searchHandler struct {
	knowledge Knowledge
	logger    *slog.Logger
}

// search handles GET /api/v1/search?q=...&top_k=5&min_similarity=0.3 plus
// any number of filter.<key>=<value> metadata filters.
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		WriteError(w, http.StatusBadRequest, "missing_query", "query parameter 'q' is required", h.logger)
		return
	}
	if len(query) > maxSearchQueryLength {
		WriteError(w, http.StatusBadRequest, "query_too_long", "query must be 1000 characters or fewer", h.logger)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = defaultAPIUser
	}

	opts := searchOptions(r)

	results, err := h.knowledge.SearchKnowledge(r.Context(), userID, query, opts...)
	if err != nil {
		switch {
		case errors.Is(err, knowledge.ErrNotInitialized):
			WriteError(w, http.StatusServiceUnavailable, "not_ready", "knowledge layer not initialized", h.logger)
		case errors.Is(err, knowledge.ErrEmptyQuery):
			WriteError(w, http.StatusBadRequest, "missing_query", "query parameter 'q' is required", h.logger)
		default:
			h.logger.Error("searching knowledge", "error", err, "user_id", userID, "query_len", len(query))
			WriteError(w, http.StatusInternalServerError, "search_failed", "failed to search knowledge", h.logger)
		}
		return
	}

	if results == nil {
		results = []knowledge.SearchResult{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	}, h.logger)
}

// searchOptions translates query parameters into knowledge search options.
// Absent parameters keep the knowledge layer's defaults.
func searchOptions(r *http.Request) []knowledge.SearchOption {
	var opts []knowledge.SearchOption

	if topK := parseIntParam(r, "top_k", 0, 0, 100); topK > 0 {
		opts = append(opts, knowledge.WithTopK(topK))
	}

	if raw := r.URL.Query().Get("min_similarity"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 32); err == nil && v >= 0 && v <= 1 {
			opts = append(opts, knowledge.WithMinSimilarity(float32(v)))
		}
	}

	for key, values := range r.URL.Query() {
		name, ok := strings.CutPrefix(key, filterParamPrefix)
		if !ok || name == "" || len(values) == 0 {
			continue
		}
		opts = append(opts, knowledge.WithFilter(name, values[0]))
	}

	return opts
}

// parseIntParam parses an integer query parameter with bounds clamping.
func parseIntParam(r *http.Request, name string, defaultVal, minVal, maxVal int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	return min(max(val, minVal), maxVal)
}
