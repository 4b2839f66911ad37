package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lorebase/lorebase/internal/knowledge"
)

// Knowledge is the slice of the knowledge layer the API server consumes.
// *knowledge.Orchestrator satisfies it; tests substitute a mock.
type Knowledge interface {
	AddDocument(ctx context.Context, doc knowledge.Document) error
	UpdateDocument(ctx context.Context, doc knowledge.Document) error
	RemoveDocument(ctx context.Context, documentID string) error
	SearchKnowledge(ctx context.Context, userID, query string, opts ...knowledge.SearchOption) ([]knowledge.SearchResult, error)
	Stats(ctx context.Context) (knowledge.SystemStats, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Knowledge  Knowledge // Required
	RateRPS    float64   // Tokens refilled per IP per second (0 disables rate limiting)
	RateBurst  int       // Rate limiter burst size per IP (0 = default 20)
	TrustProxy bool      // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Knowledge == nil {
		return nil, errors.New("knowledge layer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	// Document lifecycle
	dh := &documentsHandler{knowledge: cfg.Knowledge, logger: logger}
	mux.HandleFunc("POST /api/v1/documents", dh.create)
	mux.HandleFunc("PUT /api/v1/documents/{id}", dh.update)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", dh.remove)

	// Semantic search
	sh := &searchHandler{knowledge: cfg.Knowledge, logger: logger}
	mux.HandleFunc("GET /api/v1/search", sh.search)

	// Stats
	st := &statsHandler{knowledge: cfg.Knowledge, logger: logger}
	mux.HandleFunc("GET /api/v1/stats", st.getStats)

	// Build middleware stack (outermost first):
	//   Recovery -> Logging -> RateLimit -> Routes
	var handler http.Handler = mux
	if cfg.RateRPS > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 20
		}
		rl := newRateLimiter(cfg.RateRPS, burst)
		handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	}
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Use a top-level mux to keep health probes outside the middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Knowledge))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
