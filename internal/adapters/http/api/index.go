package api

import (
	"context"
	"net/http"

	"github.com/okian/signpost/internal/domain/model"
)

// IndexDependencies defines the aggregate operations the API needs.
type IndexDependencies interface {
	Index(ctx context.Context, preset, date string) (model.IndexSnapshot, error)
	IndexHistory(ctx context.Context, preset, from, to string) ([]model.IndexSnapshot, error)
	Recompute(ctx context.Context, preset, date string) (model.IndexSnapshot, error)
	Presets() []string
}

// IndexHandler handles index snapshot requests.
type IndexHandler struct {
	deps IndexDependencies
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(deps IndexDependencies) *IndexHandler {
	return &IndexHandler{deps: deps}
}

type recomputeRequest struct {
	Preset string `json:"preset"`
	Date   string `json:"date"`
}

// HandleIndex handles GET /index?preset=&date=.
func (h *IndexHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	snap, err := h.deps.Index(r.Context(), q.str("preset"), q.str("date"))
	if err != nil {
		writeError(w, r, Wrap("api.index", err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleHistory handles GET /index/history?preset=&from=&to=.
func (h *IndexHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	out, err := h.deps.IndexHistory(r.Context(), q.str("preset"), q.str("from"), q.str("to"))
	if err != nil {
		writeError(w, r, Wrap("api.index_history", err))
		return
	}
	if out == nil {
		out = []model.IndexSnapshot{}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleRecompute handles POST /recompute. Without a preset every preset
// is recomputed for the date.
func (h *IndexHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.recompute"
	var req recomputeRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	presets := []string{req.Preset}
	if req.Preset == "" {
		presets = h.deps.Presets()
	}
	out := make([]model.IndexSnapshot, 0, len(presets))
	for _, p := range presets {
		snap, err := h.deps.Recompute(r.Context(), p, req.Date)
		if err != nil {
			writeError(w, r, Wrap(op, err))
			return
		}
		out = append(out, snap)
	}
	writeJSON(w, http.StatusOK, out)
}
