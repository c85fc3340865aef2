package api

import (
	"context"
	"net/http"

	"github.com/okian/pitchrank/internal/domain/types"
	"github.com/okian/pitchrank/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CohortLister reports cohort states for readiness.
type CohortLister interface {
	Cohorts(ctx context.Context) []types.CohortStatus
}

// HealthHandler handles health and readiness requests.
type HealthHandler struct {
	cohorts CohortLister
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(cohorts CohortLister) *HealthHandler {
	return &HealthHandler{cohorts: cohorts}
}

// HandleHealth handles GET /healthz by serving the metrics registry.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

type readyResponse struct {
	Ready   bool              `json:"ready"`
	Cohorts map[string]string `json:"cohorts"`
}

// HandleReady handles GET /readyz. It answers 200 once every cohort has
// loaded at least once, and 503 while any is still loading or failed.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Ready: true, Cohorts: map[string]string{}}
	for _, st := range h.cohorts.Cohorts(r.Context()) {
		resp.Cohorts[st.Key] = st.State
		if st.State != "ready" {
			resp.Ready = false
		}
	}
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
