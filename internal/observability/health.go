package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Phase is the lifecycle stage of a replay run.
type Phase int32

const (
	PhaseLoading Phase = iota
	PhaseReplaying
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReplaying:
		return "replaying"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// HealthChecker tracks the run phase and serves liveness and readiness.
// Ready means the input is loaded and the replay has started or finished.
type HealthChecker struct {
	mu        sync.RWMutex
	phase     Phase
	detail    string
	watchers  []func(Phase)
	startTime time.Time
}

// NewHealthChecker creates a checker in the loading phase.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		phase:     PhaseLoading,
		startTime: time.Now(),
	}
}

// SetPhase records a phase transition and notifies watchers synchronously.
func (h *HealthChecker) SetPhase(p Phase, detail string) {
	h.mu.Lock()
	h.phase = p
	h.detail = detail
	watchers := append([]func(Phase){}, h.watchers...)
	h.mu.Unlock()

	for _, fn := range watchers {
		fn(p)
	}
}

// Watch registers fn for phase changes and calls it once with the current phase.
func (h *HealthChecker) Watch(fn func(Phase)) {
	h.mu.Lock()
	h.watchers = append(h.watchers, fn)
	current := h.phase
	h.mu.Unlock()
	fn(current)
}

// Phase returns the current phase.
func (h *HealthChecker) Phase() Phase {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.phase
}

// IsReady returns whether the run has left the loading phase without failing.
func (h *HealthChecker) IsReady() bool {
	p := h.Phase()
	return p == PhaseReplaying || p == PhaseDone
}

// LivenessHandler returns HTTP 200 while the process is alive.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 if the run is ready, 503 otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	phase, detail := h.phase, h.detail
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	body := map[string]interface{}{
		"phase": phase.String(),
	}
	if detail != "" {
		body["detail"] = detail
	}
	if phase == PhaseReplaying || phase == PhaseDone {
		w.WriteHeader(http.StatusOK)
		body["status"] = "ready"
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		body["status"] = "not_ready"
	}
	json.NewEncoder(w).Encode(body)
}
