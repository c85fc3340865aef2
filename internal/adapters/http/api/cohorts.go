package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/okian/pitchrank/internal/domain/model"
)

// CohortHandler serves cohort status, rankings and search.
type CohortHandler struct {
	deps CohortDependencies
}

// NewCohortHandler creates a new cohort handler.
func NewCohortHandler(deps CohortDependencies) *CohortHandler {
	return &CohortHandler{deps: deps}
}

// HandleList handles GET /cohorts.
func (h *CohortHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Cohorts(r.Context()))
}

// HandleStatus handles GET /cohorts/{key}.
func (h *CohortHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.cohort_status"
	key := r.PathValue("key")
	st, err := h.deps.Status(r.Context(), key)
	if err != nil {
		writeFailure(w, key, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleRankings handles GET /cohorts/{key}/rankings?sort&dir&offset&height&overscan.
func (h *CohortHandler) HandleRankings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rankings"
	key := r.PathValue("key")
	q := r.URL.Query()
	spec, err := parseSort(q)
	if err != nil {
		writeFailure(w, key, WrapKind(op, ErrBadRequest, err))
		return
	}
	vp, err := parseViewport(q)
	if err != nil {
		writeFailure(w, key, WrapKind(op, ErrBadRequest, err))
		return
	}
	page, err := h.deps.Rankings(r.Context(), key, spec, vp)
	if err != nil {
		writeFailure(w, key, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleLocate handles GET /cohorts/{key}/locate/{id}. The page scrolls so
// the team is the first visible row.
func (h *CohortHandler) HandleLocate(w http.ResponseWriter, r *http.Request) {
	const op = "api.locate"
	key, id := r.PathValue("key"), r.PathValue("id")
	q := r.URL.Query()
	spec, err := parseSort(q)
	if err != nil {
		writeFailure(w, key, WrapKind(op, ErrBadRequest, err))
		return
	}
	vp, err := parseViewport(q)
	if err != nil {
		writeFailure(w, key, WrapKind(op, ErrBadRequest, err))
		return
	}
	page, err := h.deps.Locate(r.Context(), key, id, spec, vp)
	if err != nil {
		writeFailure(w, key, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type searchResponse struct {
	Query   string `json:"query"`
	Results any    `json:"results"`
}

// HandleSearch handles GET /cohorts/{key}/search?q&exclude.
func (h *CohortHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "api.search"
	key := r.PathValue("key")
	q := r.URL.Query()
	teams, err := h.deps.Search(r.Context(), key, q.Get("q"), q.Get("exclude"))
	if err != nil {
		writeFailure(w, key, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q.Get("q"), Results: teams})
}

// HandleRetry handles POST /cohorts/{key}/retry. It waits for the reload.
func (h *CohortHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	const op = "api.retry"
	key := r.PathValue("key")
	st, err := h.deps.Retry(r.Context(), key)
	if err != nil {
		writeFailure(w, key, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func parseSort(q url.Values) (model.SortSpec, error) {
	spec := model.DefaultSort()
	if s := q.Get("sort"); s != "" {
		f, err := model.ParseField(s)
		if err != nil {
			return spec, err
		}
		spec = model.SortSpec{Field: f}
	}
	if s := q.Get("dir"); s != "" {
		d, err := model.ParseDirection(s)
		if err != nil {
			return spec, err
		}
		spec.Direction = d
	}
	return spec.Validate()
}

// parseViewport reads the scroll state. Missing values are left for the
// service to default; overscan uses -1 for that.
func parseViewport(q url.Values) (model.Viewport, error) {
	vp := model.Viewport{Overscan: -1}
	var err error
	if s := q.Get("offset"); s != "" {
		if vp.ScrollOffset, err = strconv.ParseFloat(s, 64); err != nil || vp.ScrollOffset < 0 {
			return vp, fmt.Errorf("invalid offset %q", s)
		}
	}
	if s := q.Get("height"); s != "" {
		if vp.VisibleHeight, err = strconv.ParseFloat(s, 64); err != nil || vp.VisibleHeight <= 0 {
			return vp, fmt.Errorf("invalid height %q", s)
		}
	}
	if s := q.Get("overscan"); s != "" {
		if vp.Overscan, err = strconv.Atoi(s); err != nil || vp.Overscan < 0 {
			return vp, fmt.Errorf("invalid overscan %q", s)
		}
	}
	return vp, nil
}
