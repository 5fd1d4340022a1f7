// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/internal/domain/routing"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// EnqueueRoute queues a routing pass. It reports true when the
	// idempotency key was already used.
	EnqueueRoute(ctx context.Context, key string, req routing.Request) (bool, error)

	Accept(ctx context.Context, prospectID int64, brokerID string) (model.Assignment, error)
	Reject(ctx context.Context, prospectID int64, brokerID string) (routing.Result, error)
	Assignments(ctx context.Context, prospectID int64) ([]model.Assignment, error)
	Sweep(ctx context.Context) (routing.SweepReport, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	prospectsHandler *ProspectsHandler
	sweepHandler     *SweepHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		prospectsHandler: NewProspectsHandler(deps),
		sweepHandler:     NewSweepHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /sweep", MetricsMiddleware(s.sweepHandler.HandleSweep, "sweep"))
	mux.HandleFunc("POST /prospects/{id}/route", MetricsMiddleware(s.prospectsHandler.HandleRoute, "route"))
	mux.HandleFunc("POST /prospects/{id}/accept", MetricsMiddleware(s.prospectsHandler.HandleAccept, "accept"))
	mux.HandleFunc("POST /prospects/{id}/reject", MetricsMiddleware(s.prospectsHandler.HandleReject, "reject"))
	mux.HandleFunc("GET /prospects/{id}/assignments", MetricsMiddleware(s.prospectsHandler.HandleAssignments, "assignments"))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// assignmentView is the wire shape of an assignment.
type assignmentView struct {
	ID         int64           `json:"id"`
	ProspectID int64           `json:"prospect_id"`
	BrokerID   string          `json:"broker_id"`
	Status     model.Status    `json:"status"`
	Motive     json.RawMessage `json:"motive"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
	AcceptedAt *time.Time      `json:"accepted_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func viewOf(a model.Assignment) assignmentView {
	motive, err := model.MarshalMotive(a.Motive)
	if err != nil {
		motive = json.RawMessage("null")
	}
	return assignmentView{
		ID:         a.ID,
		ProspectID: a.ProspectID,
		BrokerID:   a.BrokerID,
		Status:     a.Status,
		Motive:     motive,
		ExpiresAt:  a.ExpiresAt,
		AcceptedAt: a.AcceptedAt,
		CreatedAt:  a.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
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

// writeFailure maps err to a status and code and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}
