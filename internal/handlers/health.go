package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BradenHooton/autopay/internal/admission"
	pkghttp "github.com/BradenHooton/autopay/pkg/http"
)

// HealthChecker pings a dependency
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BreakerReporter exposes the circuit state of every operation class
type BreakerReporter interface {
	BreakerStates() map[admission.Class]string
}

// HealthHandler reports database reachability and breaker states
type HealthHandler struct {
	db       HealthChecker
	breakers BreakerReporter
}

func NewHealthHandler(db HealthChecker, breakers BreakerReporter) *HealthHandler {
	return &HealthHandler{db: db, breakers: breakers}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string            `json:"status"`
	Database string            `json:"database"`
	Breakers map[string]string `json:"breakers"`
}

// Health returns 200 while the database answers, 503 otherwise. An open
// breaker degrades the status without failing the probe.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "ok", Breakers: map[string]string{}}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.HealthCheck(ctx); err != nil {
		resp.Status = "unavailable"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if h.breakers != nil {
		for class, state := range h.breakers.BreakerStates() {
			resp.Breakers[string(class)] = state
			if state != "closed" && resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
	}

	pkghttp.WriteJSON(w, status, resp)
}
