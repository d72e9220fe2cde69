package api

import (
	"context"
	"net/http"

	"github.com/okian/signpost/internal/adapters/repository"
	app "github.com/okian/signpost/internal/app"
	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/retraction"
)

// ClaimDependencies defines the claim operations the API needs.
type ClaimDependencies interface {
	Ingest(ctx context.Context, raw model.RawClaim) (app.IngestResult, error)
	Enqueue(ctx context.Context, raws []model.RawClaim) (int, error)
	ListClaims(ctx context.Context, f repository.ClaimFilter) ([]model.Claim, error)
	ClaimDetail(ctx context.Context, id string) (app.ClaimDetail, error)
	Retract(ctx context.Context, req retraction.Request) (retraction.Outcome, error)
}

// ClaimsHandler handles claim requests.
type ClaimsHandler struct {
	deps ClaimDependencies
}

// NewClaimsHandler creates a new claims handler.
func NewClaimsHandler(deps ClaimDependencies) *ClaimsHandler {
	return &ClaimsHandler{deps: deps}
}

type batchResponse struct {
	Status   string `json:"status"`
	Accepted int    `json:"accepted"`
}

// HandleIngest handles POST /claims: one claim ingested synchronously.
// Duplicates answer 200 with the existing claim, new claims 201.
func (h *ClaimsHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	const op = "api.ingest_claim"
	var raw model.RawClaim
	if err := decode(r, &raw, false); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Ingest(r.Context(), raw)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	status := http.StatusOK
	if res.Status.Stored() {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// HandleBatch handles POST /claims/batch: claims are queued for the
// ingestion workers.
func (h *ClaimsHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.batch_claims"
	var raws []model.RawClaim
	if err := decode(r, &raws, false); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(raws) == 0 {
		writeError(w, r, NewKind(op, ErrBadRequest))
		return
	}
	n, err := h.deps.Enqueue(r.Context(), raws)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, batchResponse{Status: "accepted", Accepted: n})
}

// HandleList handles GET /claims.
func (h *ClaimsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_claims"
	q := newQuery(r)
	f := repository.ClaimFilter{
		Tier:              model.Tier(q.str("tier")),
		Publisher:         q.str("publisher"),
		From:              q.instant("from", false),
		To:                q.instant("to", true),
		Category:          model.Category(q.str("category")),
		MinConfidence:     q.number("min_confidence"),
		NeedsReview:       q.flag("needs_review"),
		Retracted:         q.flag("retracted"),
		ProbableDuplicate: q.flag("probable_duplicate"),
		Unmapped:          q.flag("unmapped"),
		Limit:             q.integer("limit"),
		Offset:            q.integer("offset"),
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
	claims, err := h.deps.ListClaims(r.Context(), f)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	if claims == nil {
		claims = []model.Claim{}
	}
	writeJSON(w, http.StatusOK, claims)
}

// HandleGet handles GET /claims/{id}.
func (h *ClaimsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_claim"
	d, err := h.deps.ClaimDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleRetract handles POST /claims/{id}/retract. Retracting twice is not
// an error; the outcome reports already_retracted.
func (h *ClaimsHandler) HandleRetract(w http.ResponseWriter, r *http.Request) {
	const op = "api.retract_claim"
	var req retraction.Request
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	req.ClaimID = r.PathValue("id")
	out, err := h.deps.Retract(r.Context(), req)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}
