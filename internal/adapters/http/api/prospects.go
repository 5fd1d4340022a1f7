package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/internal/domain/routing"
)

// IdempotencyHeader carries the caller's key for route requests.
const IdempotencyHeader = "Idempotency-Key"

type routeRequest struct {
	IdempotencyKey   string     `json:"idempotency_key"`
	Exclude          []string   `json:"exclude"`
	StartTier        model.Tier `json:"start_tier"`
	ForceFallback    bool       `json:"force_fallback"`
	Source           string     `json:"source"`
	PreviousBrokerID string     `json:"previous_broker_id"`
}

type brokerRequest struct {
	BrokerID string `json:"broker_id"`
}

type rejectResponse struct {
	Status     string          `json:"status"`
	Rerouted   bool            `json:"rerouted"`
	Duplicate  bool            `json:"duplicate,omitempty"`
	Assignment *assignmentView `json:"assignment,omitempty"`
}

// ProspectsHandler serves the per-prospect routing endpoints.
type ProspectsHandler struct {
	deps Dependencies
}

// NewProspectsHandler creates a new prospects handler.
func NewProspectsHandler(deps Dependencies) *ProspectsHandler {
	return &ProspectsHandler{deps: deps}
}

// HandleRoute handles POST /prospects/{id}/route. The pass runs
// asynchronously; a repeated idempotency key is acknowledged with 200.
func (h *ProspectsHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	const op = "api.route"
	id, err := prospectID(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var body routeRequest
	if err := decodeOptional(r, &body); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key == "" {
		key = strings.TrimSpace(body.IdempotencyKey)
	}
	if key == "" {
		writeFailure(w, NewKind(op+": missing idempotency key", ErrBadRequest))
		return
	}
	source := body.Source
	if source == "" {
		source = routing.SourceManual
	}
	req := routing.Request{
		ProspectID:       id,
		Exclude:          model.NewBrokerSet(body.Exclude...),
		StartTier:        body.StartTier,
		ForceFallback:    body.ForceFallback,
		Source:           source,
		PreviousBrokerID: body.PreviousBrokerID,
	}
	dup, err := h.deps.EnqueueRoute(r.Context(), key, req)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// HandleAccept handles POST /prospects/{id}/accept.
func (h *ProspectsHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	const op = "api.accept"
	id, brokerID, err := brokerAction(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	a, err := h.deps.Accept(r.Context(), id, brokerID)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, viewOf(a))
}

// HandleReject handles POST /prospects/{id}/reject. The rejection stands even
// when no other broker can take the lead.
func (h *ProspectsHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	const op = "api.reject"
	id, brokerID, err := brokerAction(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Reject(r.Context(), id, brokerID)
	switch {
	case errors.Is(err, routing.ErrNoEligibleBroker):
		writeJSON(w, http.StatusOK, rejectResponse{Status: "rejected"})
		return
	case err != nil:
		writeFailure(w, Wrap(op, err))
		return
	}
	v := viewOf(res.Assignment)
	writeJSON(w, http.StatusOK, rejectResponse{
		Status:     "rejected",
		Rerouted:   true,
		Duplicate:  res.Duplicate,
		Assignment: &v,
	})
}

// HandleAssignments handles GET /prospects/{id}/assignments.
func (h *ProspectsHandler) HandleAssignments(w http.ResponseWriter, r *http.Request) {
	const op = "api.assignments"
	id, err := prospectID(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	list, err := h.deps.Assignments(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	out := make([]assignmentView, 0, len(list))
	for _, a := range list {
		out = append(out, viewOf(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func prospectID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid prospect id " + strconv.Quote(raw))
	}
	return id, nil
}

func brokerAction(r *http.Request) (int64, string, error) {
	id, err := prospectID(r)
	if err != nil {
		return 0, "", err
	}
	var body brokerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return 0, "", errors.New("invalid body: " + err.Error())
	}
	body.BrokerID = strings.TrimSpace(body.BrokerID)
	if body.BrokerID == "" {
		return 0, "", errors.New("broker_id is required")
	}
	return id, body.BrokerID, nil
}

// decodeOptional decodes a JSON body when one is present.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return errors.New("invalid body: " + err.Error())
	}
	return nil
}
