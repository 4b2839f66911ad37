package api

import "net/http"

// health is a liveness probe for Docker/Kubernetes. Returns 200 with
// {"status":"ok"} as long as the process serves requests.
func health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
}

// readiness reports whether the knowledge layer answers queries. Until
// Initialize has run (or after Close), Stats fails and the probe returns 503.
func readiness(k Knowledge) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := k.Stats(r.Context()); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "not_ready", "knowledge layer not initialized", nil)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
	})
}
