package api

import (
	"context"
	"net/http"

	app "github.com/okian/signpost/internal/app"
	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/scoring"
)

// MilestoneDependencies defines the milestone reads the API needs.
type MilestoneDependencies interface {
	Milestones(ctx context.Context) ([]scoring.MilestoneProgress, error)
	Milestone(ctx context.Context, code string) (app.MilestoneDetail, error)
	Category(ctx context.Context, cat model.Category) (app.CategoryView, error)
}

// MilestonesHandler handles milestone and category requests.
type MilestonesHandler struct {
	deps MilestoneDependencies
}

// NewMilestonesHandler creates a new milestones handler.
func NewMilestonesHandler(deps MilestoneDependencies) *MilestonesHandler {
	return &MilestonesHandler{deps: deps}
}

// HandleList handles GET /milestones.
func (h *MilestonesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	out, err := h.deps.Milestones(r.Context())
	if err != nil {
		writeError(w, r, Wrap("api.list_milestones", err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /milestones/{code}.
func (h *MilestonesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.deps.Milestone(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, r, Wrap("api.get_milestone", err))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleCategory handles GET /categories/{category}.
func (h *MilestonesHandler) HandleCategory(w http.ResponseWriter, r *http.Request) {
	v, err := h.deps.Category(r.Context(), model.Category(r.PathValue("category")))
	if err != nil {
		writeError(w, r, Wrap("api.get_category", err))
		return
	}
	writeJSON(w, http.StatusOK, v)
}
