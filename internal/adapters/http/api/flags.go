package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/pitchrank/internal/domain/flags"
)

// FlagsHandler serves the keyed flag store.
type FlagsHandler struct {
	store flags.Store
}

// NewFlagsHandler creates a new flags handler.
func NewFlagsHandler(store flags.Store) *FlagsHandler {
	return &FlagsHandler{store: store}
}

type flagRequest struct {
	Value string `json:"value"`
}

type flagResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type onceResponse struct {
	Key  string `json:"key"`
	Seen bool   `json:"seen"`
}

// HandleGet handles GET /flags/{key}.
func (h *FlagsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_flag"
	key := r.PathValue("key")
	v, ok, err := h.store.Get(r.Context(), key)
	if err != nil {
		writeFailure(w, "", Wrap(op, err))
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, flagResponse{Key: key, Value: v})
}

// HandlePut handles PUT /flags/{key} with a {"value": "..."} body.
func (h *FlagsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_flag"
	key := r.PathValue("key")
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.store.Set(r.Context(), key, req.Value); err != nil {
		writeFailure(w, "", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, flagResponse{Key: key, Value: req.Value})
}

// HandleDelete handles DELETE /flags/{key}.
func (h *FlagsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_flag"
	if err := h.store.Delete(r.Context(), r.PathValue("key")); err != nil {
		writeFailure(w, "", Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleOnce handles POST /flags/{key}/once: the first call for a key
// reports seen=false and records it, later calls report seen=true.
func (h *FlagsHandler) HandleOnce(w http.ResponseWriter, r *http.Request) {
	const op = "api.flag_once"
	key := r.PathValue("key")
	seen, err := h.store.SeenAndRecord(r.Context(), key)
	if err != nil {
		writeFailure(w, "", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, onceResponse{Key: key, Seen: seen})
}
