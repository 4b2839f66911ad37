// Package api provides the JSON REST API server for lorebase.
//
// # Architecture
//
// The API server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery -> Logging -> RateLimit -> Routes
//
// Health probes (/health, /ready) bypass the middleware stack via a
// top-level mux, ensuring they remain fast and never rate limited.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /health: returns {"status":"ok"}
//   - GET /ready: returns {"status":"ok"} once the knowledge layer answers
//
// Documents:
//   - POST /api/v1/documents: index a document (ID generated if absent)
//   - PUT /api/v1/documents/{id}: replace a document's content
//   - DELETE /api/v1/documents/{id}: remove a document and its chunks
//
// Search:
//   - GET /api/v1/search: semantic search over indexed documents.
//     Query parameters: q (required), top_k, min_similarity, user_id,
//     and filter.<key>=<value> for metadata equality filters.
//
// Stats:
//   - GET /api/v1/stats: store and search statistics
//
// # Error Handling
//
// All responses use an envelope format:
//
//	Success: {"data": <payload>}
//	Error:   {"error": {"code": "...", "message": "..."}}
//
// Knowledge-layer sentinels map onto HTTP statuses: validation failures
// return 400, an uninitialized knowledge layer returns 503, everything
// else returns 500 with a generic message. Internal error details stay in
// the server log, never in the response body.
//
// # Rate Limiting
//
// State-changing and search endpoints share a per-IP token bucket
// (golang.org/x/time/rate). Stale per-IP buckets are pruned inline during
// request admission. Setting RateRPS to zero disables the limiter.
package api
