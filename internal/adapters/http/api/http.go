// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"github.com/okian/pitchrank/internal/adapters/source"
	service "github.com/okian/pitchrank/internal/app"
	"github.com/okian/pitchrank/internal/domain/flags"
	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CohortDependencies

	// Flags exposes the keyed flag store.
	Flags() flags.Store
}

// CohortDependencies covers the cohort read and retry operations.
type CohortDependencies interface {
	Cohorts(ctx context.Context) []types.CohortStatus
	Status(ctx context.Context, key string) (types.CohortStatus, error)
	Search(ctx context.Context, key, query, excludeID string) ([]types.Team, error)
	Rankings(ctx context.Context, key string, spec model.SortSpec, vp model.Viewport) (types.Page, error)
	Locate(ctx context.Context, key, id string, spec model.SortSpec, vp model.Viewport) (types.Page, error)
	Retry(ctx context.Context, key string) (types.CohortStatus, error)
}

// Server wires HTTP routes for the rankings API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	cohortHandler *CohortHandler
	flagsHandler  *FlagsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(deps),
		statsHandler:  NewStatsHandler(statsProvider),
		cohortHandler: NewCohortHandler(deps),
		flagsHandler:  NewFlagsHandler(deps.Flags()),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /readyz", MetricsMiddleware(s.healthHandler.HandleReady, "readyz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /cohorts", MetricsMiddleware(s.cohortHandler.HandleList, "cohorts"))
	mux.HandleFunc("GET /cohorts/{key}", MetricsMiddleware(s.cohortHandler.HandleStatus, "cohort_status"))
	mux.HandleFunc("GET /cohorts/{key}/rankings", MetricsMiddleware(s.cohortHandler.HandleRankings, "rankings"))
	mux.HandleFunc("GET /cohorts/{key}/search", MetricsMiddleware(s.cohortHandler.HandleSearch, "search"))
	mux.HandleFunc("GET /cohorts/{key}/locate/{id}", MetricsMiddleware(s.cohortHandler.HandleLocate, "locate"))
	mux.HandleFunc("POST /cohorts/{key}/retry", MetricsMiddleware(s.cohortHandler.HandleRetry, "retry"))

	mux.HandleFunc("GET /flags/{key}", MetricsMiddleware(s.flagsHandler.HandleGet, "flags"))
	mux.HandleFunc("PUT /flags/{key}", MetricsMiddleware(s.flagsHandler.HandlePut, "flags"))
	mux.HandleFunc("DELETE /flags/{key}", MetricsMiddleware(s.flagsHandler.HandleDelete, "flags"))
	mux.HandleFunc("POST /flags/{key}/once", MetricsMiddleware(s.flagsHandler.HandleOnce, "flags_once"))
}

// Handler returns mux with response compression applied.
func Handler(mux *http.ServeMux) http.Handler {
	return gzhttp.GzipHandler(mux)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	State   string `json:"state,omitempty"`
	Retry   string `json:"retry,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if e, ok := v.(errorResponse); ok {
		if c, ok := w.(errorCoder); ok {
			c.setErrorCode(e.Code)
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure translates service errors for the cohort at key.
func writeFailure(w http.ResponseWriter, key string, err error) {
	resp := errorResponse{Message: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotStarted):
		status, resp.Code = http.StatusServiceUnavailable, "not_started"
	case errors.Is(err, service.ErrUnknownCohort), errors.Is(err, service.ErrTeamNotFound):
		status, resp.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, source.ErrFetchFailed):
		// Checked before preconditions: a rejected upstream list wraps both.
		status, resp.Code, resp.State = http.StatusBadGateway, "fetch_failed", "failed"
		resp.Retry = "/cohorts/" + key + "/retry"
	case errors.Is(err, model.ErrPrecondition), errors.Is(err, ErrBadRequest), errors.Is(err, flags.ErrEmptyKey):
		status, resp.Code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, source.ErrDataUnavailable):
		status, resp.Code, resp.State = http.StatusServiceUnavailable, "unavailable", "loading"
	default:
		resp.Code = "internal_error"
	}
	writeJSON(w, status, resp)
}
