package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthChecker tracks liveness and readiness for the query server. The
// process is live as soon as it starts; it becomes ready once a completed
// run is queryable.
type HealthChecker struct {
	ready   atomic.Bool
	started time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{started: time.Now()}
}

func (h *HealthChecker) SetReady(ready bool) { h.ready.Store(ready) }

func (h *HealthChecker) IsReady() bool { return h.ready.Load() }

// LivenessHandler always reports alive, with process uptime.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(h.started).String(),
	})
}

// ReadinessHandler reports ready with 200, or not_ready with 503.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.ready.Load() {
		writeHealth(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeHealth(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

func writeHealth(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
