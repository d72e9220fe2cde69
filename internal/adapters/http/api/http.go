// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/signpost/pkg/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ClaimDependencies
	LinkDependencies
	MilestoneDependencies
	IndexDependencies
	CredibilityDependencies
	HealthDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	claimsHandler      *ClaimsHandler
	linksHandler       *LinksHandler
	milestonesHandler  *MilestonesHandler
	indexHandler       *IndexHandler
	credibilityHandler *CredibilityHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(deps),
		statsHandler:       NewStatsHandler(deps),
		claimsHandler:      NewClaimsHandler(deps),
		linksHandler:       NewLinksHandler(deps),
		milestonesHandler:  NewMilestonesHandler(deps),
		indexHandler:       NewIndexHandler(deps),
		credibilityHandler: NewCredibilityHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.Metrics())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /claims", MetricsMiddleware(s.claimsHandler.HandleIngest, "claims_ingest"))
	mux.HandleFunc("POST /claims/batch", MetricsMiddleware(s.claimsHandler.HandleBatch, "claims_batch"))
	mux.HandleFunc("GET /claims", MetricsMiddleware(s.claimsHandler.HandleList, "claims_list"))
	mux.HandleFunc("GET /claims/{id}", MetricsMiddleware(s.claimsHandler.HandleGet, "claims_get"))
	mux.HandleFunc("POST /claims/{id}/retract", MetricsMiddleware(s.claimsHandler.HandleRetract, "claims_retract"))

	mux.HandleFunc("GET /links", MetricsMiddleware(s.linksHandler.HandleList, "links_list"))
	mux.HandleFunc("POST /links/{id}/approve", MetricsMiddleware(s.linksHandler.HandleApprove, "links_approve"))
	mux.HandleFunc("POST /links/{id}/reject", MetricsMiddleware(s.linksHandler.HandleReject, "links_reject"))

	mux.HandleFunc("GET /milestones", MetricsMiddleware(s.milestonesHandler.HandleList, "milestones_list"))
	mux.HandleFunc("GET /milestones/{code}", MetricsMiddleware(s.milestonesHandler.HandleGet, "milestones_get"))
	mux.HandleFunc("GET /categories/{category}", MetricsMiddleware(s.milestonesHandler.HandleCategory, "categories_get"))

	mux.HandleFunc("GET /index", MetricsMiddleware(s.indexHandler.HandleIndex, "index"))
	mux.HandleFunc("GET /index/history", MetricsMiddleware(s.indexHandler.HandleHistory, "index_history"))
	mux.HandleFunc("POST /recompute", MetricsMiddleware(s.indexHandler.HandleRecompute, "recompute"))

	mux.HandleFunc("GET /credibility", MetricsMiddleware(s.credibilityHandler.HandleList, "credibility_list"))
	mux.HandleFunc("POST /credibility/snapshot", MetricsMiddleware(s.credibilityHandler.HandleSnapshot, "credibility_snapshot"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status and code that err classifies as.
// Internal errors are logged and their detail is not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Get().Named("api").Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decode reads a JSON body into v. An empty body leaves v untouched when
// optional is set.
func decode(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// query wraps URL query parsing and remembers the first failure.
type query struct {
	values map[string][]string
	err    error
}

func newQuery(r *http.Request) *query { return &query{values: r.URL.Query()} }

func (q *query) str(key string) string {
	if v := q.values[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func (q *query) fail(key, raw, want string) {
	if q.err == nil {
		q.err = fmt.Errorf("%s=%q is not %s", key, raw, want)
	}
}

func (q *query) integer(key string) int {
	raw := q.str(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		q.fail(key, raw, "a non-negative integer")
		return 0
	}
	return n
}

func (q *query) number(key string) *float64 {
	raw := q.str(key)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		q.fail(key, raw, "a number")
		return nil
	}
	return &f
}

func (q *query) flag(key string) *bool {
	raw := q.str(key)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		q.fail(key, raw, "a boolean")
		return nil
	}
	return &b
}

// instant accepts RFC3339 or YYYY-MM-DD. A bare date used as an upper bound
// covers the whole day.
func (q *query) instant(key string, endOfDay bool) *time.Time {
	raw := q.str(key)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		q.fail(key, raw, "an RFC3339 timestamp or YYYY-MM-DD date")
		return nil
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t
}
