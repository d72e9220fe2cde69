package api

import (
	"context"
	"net/http"

	"github.com/okian/signpost/internal/adapters/repository"
	"github.com/okian/signpost/internal/domain/model"
)

// LinkDependencies defines the link operations the API needs.
type LinkDependencies interface {
	ListLinks(ctx context.Context, f repository.LinkFilter) ([]model.Link, error)
	ApproveLink(ctx context.Context, id, actor string) (model.Link, error)
	RejectLink(ctx context.Context, id, actor string) (model.Link, error)
}

// LinksHandler handles link listing and review requests.
type LinksHandler struct {
	deps LinkDependencies
}

// NewLinksHandler creates a new links handler.
func NewLinksHandler(deps LinkDependencies) *LinksHandler {
	return &LinksHandler{deps: deps}
}

type reviewRequest struct {
	Actor string `json:"actor"`
}

// HandleList handles GET /links.
func (h *LinksHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_links"
	q := newQuery(r)
	f := repository.LinkFilter{
		ClaimID:       q.str("claim_id"),
		MilestoneCode: q.str("milestone"),
		Category:      model.Category(q.str("category")),
		Tier:          model.Tier(q.str("tier")),
		From:          q.instant("from", false),
		To:            q.instant("to", true),
		MinConfidence: q.number("min_confidence"),
		NeedsReview:   q.flag("needs_review"),
		Limit:         q.integer("limit"),
		Offset:        q.integer("offset"),
	}
	if p := q.flag("pending"); p != nil {
		f.Pending = *p
	}
	if q.err == nil && f.Tier != "" && !f.Tier.Valid() {
		q.fail("tier", string(f.Tier), "one of A, B, C, D")
	}
	if q.err == nil && f.Category != "" && !f.Category.Valid() {
		q.fail("category", string(f.Category), "a known category")
	}
	if q.err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, q.err))
		return
	}
	links, err := h.deps.ListLinks(r.Context(), f)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	if links == nil {
		links = []model.Link{}
	}
	writeJSON(w, http.StatusOK, links)
}

// HandleApprove handles POST /links/{id}/approve.
func (h *LinksHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "api.approve_link", h.deps.ApproveLink)
}

// HandleReject handles POST /links/{id}/reject.
func (h *LinksHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "api.reject_link", h.deps.RejectLink)
}

func (h *LinksHandler) review(w http.ResponseWriter, r *http.Request, op string,
	decide func(ctx context.Context, id, actor string) (model.Link, error),
) {
	var req reviewRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	l, err := decide(r.Context(), r.PathValue("id"), req.Actor)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, l)
}
