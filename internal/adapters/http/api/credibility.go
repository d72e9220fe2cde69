package api

import (
	"context"
	"net/http"

	"github.com/okian/signpost/internal/domain/model"
)

// CredibilityDependencies defines the credibility operations the API needs.
type CredibilityDependencies interface {
	Credibility(ctx context.Context, date string) ([]model.SourceCredibilitySnapshot, error)
	RunCredibility(ctx context.Context, date string) ([]model.SourceCredibilitySnapshot, int, error)
}

// CredibilityHandler handles publisher credibility requests.
type CredibilityHandler struct {
	deps CredibilityDependencies
}

// NewCredibilityHandler creates a new credibility handler.
func NewCredibilityHandler(deps CredibilityDependencies) *CredibilityHandler {
	return &CredibilityHandler{deps: deps}
}

type snapshotRequest struct {
	Date string `json:"date"`
}

type snapshotResponse struct {
	Date      string                            `json:"date,omitempty"`
	Inserted  int                               `json:"inserted"`
	Snapshots []model.SourceCredibilitySnapshot `json:"snapshots"`
}

// HandleList handles GET /credibility?date=. Without a date the latest
// stored snapshot date is used.
func (h *CredibilityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	out, err := h.deps.Credibility(r.Context(), newQuery(r).str("date"))
	if err != nil {
		writeError(w, r, Wrap("api.credibility", err))
		return
	}
	if out == nil {
		out = []model.SourceCredibilitySnapshot{}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSnapshot handles POST /credibility/snapshot.
func (h *CredibilityHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.credibility_snapshot"
	var req snapshotRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	snaps, inserted, err := h.deps.RunCredibility(r.Context(), req.Date)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	if snaps == nil {
		snaps = []model.SourceCredibilitySnapshot{}
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Date: req.Date, Inserted: inserted, Snapshots: snaps})
}
