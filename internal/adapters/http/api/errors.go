package api

import (
	"errors"
	"net/http"

	"github.com/okian/leadrouter/internal/adapters/mq/queue"
	"github.com/okian/leadrouter/internal/domain/routing"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("service unavailable")
)

// Error records the handler operation that failed and the kind used to pick
// the response status.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	default:
		return e.Op
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	var out []error
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap tags err with the operation name.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapKind tags err with the operation name and an API kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NewKind builds an error of the given kind with no underlying cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// statusFor maps domain and API errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, routing.ErrProspectNotFound), errors.Is(err, routing.ErrBrokerNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, routing.ErrAssignmentNotFound):
		return http.StatusNotFound, "assignment_not_found"
	case errors.Is(err, routing.ErrAssignmentExpired):
		return http.StatusConflict, "assignment_expired"
	case errors.Is(err, routing.ErrSweepInProgress):
		return http.StatusConflict, "sweep_in_progress"
	case errors.Is(err, routing.ErrMissingLocation):
		return http.StatusUnprocessableEntity, "missing_location"
	case errors.Is(err, routing.ErrNoEligibleBroker):
		return http.StatusUnprocessableEntity, "no_eligible_broker"
	case errors.Is(err, ErrBackpressure), errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrUnavailable), errors.Is(err, queue.ErrQueueClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
